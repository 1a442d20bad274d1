package memstore

import (
	"context"
	"sort"

	"procurement/internal/domain"
	"procurement/internal/repository"

	"github.com/google/uuid"
)

type shopRepository struct{ v view }

func (r *shopRepository) Create(ctx context.Context, shop *domain.Shop) error {
	return r.v.run(ctx, func(st *state) error {
		for _, s := range st.shops {
			if s.OwnerID == shop.OwnerID {
				return repository.ErrShopAlreadyExists
			}
		}
		now := r.v.now()
		shop.CreatedAt, shop.UpdatedAt = now, now
		st.shops[shop.ID] = *shop
		return nil
	})
}

func (r *shopRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Shop, error) {
	var out *domain.Shop
	err := r.v.run(ctx, func(st *state) error {
		s, ok := st.shops[id]
		if !ok {
			return repository.ErrShopNotFound
		}
		out = &s
		return nil
	})
	return out, err
}

func (r *shopRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Shop, error) {
	var out *domain.Shop
	err := r.v.run(ctx, func(st *state) error {
		for _, s := range st.shops {
			if s.OwnerID == ownerID {
				out = &s
				return nil
			}
		}
		return repository.ErrShopNotFound
	})
	return out, err
}

func (r *shopRepository) List(ctx context.Context, onlyAccepting bool) ([]*domain.Shop, error) {
	out := []*domain.Shop{}
	err := r.v.run(ctx, func(st *state) error {
		for _, s := range st.shops {
			if onlyAccepting && !s.AcceptingOrders {
				continue
			}
			out = append(out, &s)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, err
}

// Locks are implicit: a transaction already owns the whole store.
func (r *shopRepository) LockForCheckout(ctx context.Context, id uuid.UUID) (*domain.Shop, error) {
	return r.FindByID(ctx, id)
}

func (r *shopRepository) LockForSync(ctx context.Context, id uuid.UUID) (*domain.Shop, error) {
	return r.FindByID(ctx, id)
}

func (r *shopRepository) SetAcceptingOrders(ctx context.Context, id uuid.UUID, accepting bool) (*domain.Shop, error) {
	var out *domain.Shop
	err := r.v.run(ctx, func(st *state) error {
		s, ok := st.shops[id]
		if !ok {
			return repository.ErrShopNotFound
		}
		s.AcceptingOrders = accepting
		s.UpdatedAt = r.v.now()
		st.shops[id] = s
		out = &s
		return nil
	})
	return out, err
}

func (r *shopRepository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	return r.v.run(ctx, func(st *state) error {
		s, ok := st.shops[id]
		if !ok {
			return repository.ErrShopNotFound
		}
		s.Name = name
		s.UpdatedAt = r.v.now()
		st.shops[id] = s
		return nil
	})
}

func (r *shopRepository) ReplaceCategories(ctx context.Context, shopID uuid.UUID, categoryIDs []uuid.UUID) error {
	return r.v.run(ctx, func(st *state) error {
		if _, ok := st.shops[shopID]; !ok {
			return repository.ErrShopNotFound
		}
		st.shopCats[shopID] = append([]uuid.UUID(nil), categoryIDs...)
		return nil
	})
}

type categoryRepository struct{ v view }

func sortCategories(cs []*domain.Category) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Name < cs[j].Name })
}

func (r *categoryRepository) List(ctx context.Context) ([]*domain.Category, error) {
	out := []*domain.Category{}
	err := r.v.run(ctx, func(st *state) error {
		for _, c := range st.categories {
			out = append(out, &c)
		}
		return nil
	})
	sortCategories(out)
	return out, err
}

func (r *categoryRepository) ListByShop(ctx context.Context, shopID uuid.UUID) ([]*domain.Category, error) {
	out := []*domain.Category{}
	err := r.v.run(ctx, func(st *state) error {
		for _, id := range st.shopCats[shopID] {
			if c, ok := st.categories[id]; ok {
				out = append(out, &c)
			}
		}
		return nil
	})
	sortCategories(out)
	return out, err
}

func (r *categoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	var out *domain.Category
	err := r.v.run(ctx, func(st *state) error {
		c, ok := st.categories[id]
		if !ok {
			return repository.ErrCategoryNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *categoryRepository) Resolve(ctx context.Context, name string) (*domain.Category, error) {
	var out *domain.Category
	err := r.v.run(ctx, func(st *state) error {
		for _, c := range st.categories {
			if c.Name == name {
				out = &c
				return nil
			}
		}
		c := domain.Category{ID: uuid.New(), Name: name}
		st.categories[c.ID] = c
		out = &c
		return nil
	})
	return out, err
}

type productRepository struct{ v view }

func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var out *domain.Product
	err := r.v.run(ctx, func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return repository.ErrProductNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *productRepository) Resolve(ctx context.Context, name string, categoryID uuid.UUID) (*domain.Product, error) {
	var out *domain.Product
	err := r.v.run(ctx, func(st *state) error {
		if _, ok := st.categories[categoryID]; !ok {
			return repository.ErrCategoryNotFound
		}
		for _, p := range st.products {
			if p.Name == name && p.CategoryID == categoryID {
				out = &p
				return nil
			}
		}
		p := domain.Product{ID: uuid.New(), Name: name, CategoryID: categoryID}
		st.products[p.ID] = p
		out = &p
		return nil
	})
	return out, err
}
