package memstore

import (
	"context"
	"sort"

	"procurement/internal/domain"
	"procurement/internal/repository"

	"github.com/google/uuid"
)

type listingRepository struct{ v view }

// materialize returns a caller-owned copy joined with its product
func materialize(st *state, l domain.Listing) *domain.Listing {
	p := st.products[l.ProductID]
	l.ProductName = p.Name
	l.CategoryID = p.CategoryID
	params := make(map[string]string, len(l.Parameters))
	for k, v := range l.Parameters {
		params[k] = v
	}
	l.Parameters = params
	return &l
}

func sortListings(st *state, ls []*domain.Listing) {
	sort.Slice(ls, func(i, j int) bool {
		a, b := ls[i], ls[j]
		if a.ProductName != b.ProductName {
			return a.ProductName < b.ProductName
		}
		sa, sb := st.shops[a.ShopID].Name, st.shops[b.ShopID].Name
		if sa != sb {
			return sa < sb
		}
		return a.ExternalSKU < b.ExternalSKU
	})
}

func (r *listingRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	var out *domain.Listing
	err := r.v.run(ctx, func(st *state) error {
		l, ok := st.listings[id]
		if !ok {
			return repository.ErrListingNotFound
		}
		out = materialize(st, l)
		return nil
	})
	return out, err
}

func (r *listingRepository) FindByShopAndProduct(ctx context.Context, shopID, productID uuid.UUID) (*domain.Listing, error) {
	var out *domain.Listing
	err := r.v.run(ctx, func(st *state) error {
		for _, l := range st.listings {
			if l.ShopID != shopID || l.ProductID != productID {
				continue
			}
			if out == nil || l.ExternalSKU < out.ExternalSKU {
				out = materialize(st, l)
			}
		}
		if out == nil {
			return repository.ErrListingNotFound
		}
		return nil
	})
	return out, err
}

func (r *listingRepository) ListByShop(ctx context.Context, shopID uuid.UUID) ([]*domain.Listing, error) {
	return r.Search(ctx, domain.ListingFilter{ShopID: &shopID})
}

func (r *listingRepository) Search(ctx context.Context, filter domain.ListingFilter) ([]*domain.Listing, error) {
	out := []*domain.Listing{}
	err := r.v.run(ctx, func(st *state) error {
		for _, l := range st.listings {
			if filter.ShopID != nil && l.ShopID != *filter.ShopID {
				continue
			}
			if filter.CategoryID != nil && st.products[l.ProductID].CategoryID != *filter.CategoryID {
				continue
			}
			if filter.OnlyAccepting && !st.shops[l.ShopID].AcceptingOrders {
				continue
			}
			out = append(out, materialize(st, l))
		}
		sortListings(st, out)
		return nil
	})
	return out, err
}

func (r *listingRepository) Reserve(ctx context.Context, id uuid.UUID, qty int) (*domain.Listing, error) {
	var out *domain.Listing
	err := r.v.run(ctx, func(st *state) error {
		l, ok := st.listings[id]
		if !ok {
			return repository.ErrListingNotFound
		}
		if l.Quantity < qty {
			return &domain.InsufficientStockError{ListingID: id, Requested: qty, Available: l.Quantity}
		}
		l.Quantity -= qty
		l.UpdatedAt = r.v.now()
		st.listings[id] = l
		out = materialize(st, l)
		return nil
	})
	return out, err
}

func (r *listingRepository) Release(ctx context.Context, id uuid.UUID, qty int) error {
	return r.v.run(ctx, func(st *state) error {
		l, ok := st.listings[id]
		if !ok {
			return repository.ErrListingNotFound
		}
		l.Quantity += qty
		l.UpdatedAt = r.v.now()
		st.listings[id] = l
		return nil
	})
}

func (r *listingRepository) ReplaceForShop(ctx context.Context, shopID uuid.UUID, listings []*domain.Listing) (domain.SyncStats, error) {
	var stats domain.SyncStats
	err := r.v.run(ctx, func(st *state) error {
		existing := make(map[domain.ListingKey]uuid.UUID)
		for id, l := range st.listings {
			if l.ShopID == shopID {
				existing[l.Key()] = id
			}
		}

		now := r.v.now()
		kept := make(map[uuid.UUID]bool, len(listings))
		for _, in := range listings {
			if _, ok := st.products[in.ProductID]; !ok {
				return repository.ErrProductNotFound
			}
			in.ShopID = shopID
			rec := *in
			rec.ProductName, rec.CategoryID = "", uuid.Nil
			rec.Parameters = make(map[string]string, len(in.Parameters))
			for k, v := range in.Parameters {
				rec.Parameters[k] = v
			}
			rec.UpdatedAt = now

			if id, ok := existing[in.Key()]; ok {
				if kept[id] {
					return repository.ErrDuplicateListing
				}
				in.ID, rec.ID = id, id
				kept[id] = true
				stats.Updated++
			} else {
				if in.ID == uuid.Nil {
					in.ID = uuid.New()
				}
				rec.ID = in.ID
				existing[in.Key()] = in.ID
				kept[in.ID] = true
				stats.Inserted++
			}
			st.listings[rec.ID] = rec
		}

		for key, id := range existing {
			if kept[id] {
				continue
			}
			delete(st.listings, id)
			delete(existing, key)
			stats.Removed++
			removeListingRefs(st, id)
		}
		return nil
	})
	if err != nil {
		return domain.SyncStats{}, err
	}
	return stats, nil
}

// removeListingRefs mirrors the foreign key actions: basket lines cascade,
// order lines and reservations keep a nil reference.
func removeListingRefs(st *state, id uuid.UUID) {
	for basketID, lines := range st.basketLines {
		kept := lines[:0]
		for _, ln := range lines {
			if ln.ListingID != id {
				kept = append(kept, ln)
			}
		}
		st.basketLines[basketID] = kept
	}
	for orderID, o := range st.orders {
		changed := false
		items := make([]domain.OrderItem, len(o.Items))
		copy(items, o.Items)
		for i := range items {
			if items[i].ListingID != nil && *items[i].ListingID == id {
				items[i].ListingID = nil
				changed = true
			}
		}
		if changed {
			o.Items = items
			st.orders[orderID] = o
		}
	}
	for orderID, rs := range st.reservations {
		for i := range rs {
			if rs[i].ListingID != nil && *rs[i].ListingID == id {
				rs[i].ListingID = nil
			}
		}
		st.reservations[orderID] = rs
	}
}
