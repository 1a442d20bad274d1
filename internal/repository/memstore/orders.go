package memstore

import (
	"context"
	"sort"

	"procurement/internal/domain"
	"procurement/internal/repository"

	"github.com/google/uuid"
)

type basketRepository struct{ v view }

func openBasket(st *state, userID uuid.UUID) (domain.Basket, bool) {
	for _, b := range st.baskets {
		if b.UserID == userID && b.State == domain.BasketOpen {
			return b, true
		}
	}
	return domain.Basket{}, false
}

func withItems(st *state, b domain.Basket) *domain.Basket {
	lines := append([]basketLine(nil), st.basketLines[b.ID]...)
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Seq < lines[j].Seq })

	b.Items = []domain.BasketItem{}
	for _, ln := range lines {
		l, ok := st.listings[ln.ListingID]
		if !ok {
			continue
		}
		b.Items = append(b.Items, domain.BasketItem{
			ListingID:   l.ID,
			ShopID:      l.ShopID,
			ProductID:   l.ProductID,
			ProductName: st.products[l.ProductID].Name,
			Price:       l.Price,
			Quantity:    ln.Quantity,
		})
	}
	return &b
}

func (r *basketRepository) FindOpen(ctx context.Context, userID uuid.UUID) (*domain.Basket, error) {
	var out *domain.Basket
	err := r.v.run(ctx, func(st *state) error {
		b, ok := openBasket(st, userID)
		if !ok {
			return repository.ErrBasketNotFound
		}
		out = withItems(st, b)
		return nil
	})
	return out, err
}

func (r *basketRepository) LockOpen(ctx context.Context, userID uuid.UUID) (*domain.Basket, error) {
	return r.FindOpen(ctx, userID)
}

func (r *basketRepository) Open(ctx context.Context, userID uuid.UUID) (*domain.Basket, error) {
	var out *domain.Basket
	err := r.v.run(ctx, func(st *state) error {
		b, ok := openBasket(st, userID)
		if !ok {
			now := r.v.now()
			b = domain.Basket{ID: uuid.New(), UserID: userID, State: domain.BasketOpen, CreatedAt: now, UpdatedAt: now}
			st.baskets[b.ID] = b
		}
		out = withItems(st, b)
		return nil
	})
	return out, err
}

func (r *basketRepository) SetItem(ctx context.Context, basketID, listingID uuid.UUID, qty int) error {
	return r.v.run(ctx, func(st *state) error {
		if _, ok := st.baskets[basketID]; !ok {
			return repository.ErrBasketNotFound
		}
		if _, ok := st.listings[listingID]; !ok {
			return repository.ErrListingNotFound
		}
		lines := st.basketLines[basketID]
		for i := range lines {
			if lines[i].ListingID == listingID {
				lines[i].Quantity = qty
				return nil
			}
		}
		st.basketLines[basketID] = append(lines, basketLine{ListingID: listingID, Quantity: qty, Seq: st.next()})
		return nil
	})
}

func (r *basketRepository) RemoveItem(ctx context.Context, basketID, listingID uuid.UUID) error {
	return r.v.run(ctx, func(st *state) error {
		lines := st.basketLines[basketID]
		kept := lines[:0]
		for _, ln := range lines {
			if ln.ListingID != listingID {
				kept = append(kept, ln)
			}
		}
		st.basketLines[basketID] = kept
		return nil
	})
}

func (r *basketRepository) Close(ctx context.Context, basketID uuid.UUID, to domain.BasketState) error {
	return r.v.run(ctx, func(st *state) error {
		b, ok := st.baskets[basketID]
		if !ok || b.State != domain.BasketOpen {
			return repository.ErrBasketNotFound
		}
		b.State = to
		b.UpdatedAt = r.v.now()
		st.baskets[basketID] = b
		return nil
	})
}

type orderRepository struct{ v view }

func copyOrder(o domain.Order) *domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return &o
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	return r.v.run(ctx, func(st *state) error {
		if _, ok := st.contacts[order.ContactID]; !ok {
			return repository.ErrContactNotFound
		}
		now := r.v.now()
		order.CreatedAt, order.UpdatedAt = now, now

		reservations := make([]domain.Reservation, 0, len(order.Items))
		for i := range order.Items {
			it := &order.Items[i]
			if it.ID == uuid.Nil {
				it.ID = uuid.New()
			}
			reservations = append(reservations, domain.Reservation{
				OrderID:   order.ID,
				ListingID: it.ListingID,
				Quantity:  it.Quantity,
				Status:    domain.ReservationReserved,
			})
		}

		st.orders[order.ID] = *copyOrder(*order)
		st.reservations[order.ID] = reservations
		return nil
	})
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var out *domain.Order
	err := r.v.run(ctx, func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return repository.ErrOrderNotFound
		}
		out = copyOrder(o)
		return nil
	})
	return out, err
}

func (r *orderRepository) LockByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r *orderRepository) UpdateState(ctx context.Context, id uuid.UUID, from, to domain.OrderState) error {
	return r.v.run(ctx, func(st *state) error {
		o, ok := st.orders[id]
		if !ok || o.State != from {
			return repository.ErrStateConflict
		}
		o.State = to
		o.UpdatedAt = r.v.now()
		st.orders[id] = o
		return nil
	})
}

func (r *orderRepository) collect(ctx context.Context, match func(domain.Order) bool) ([]*domain.Order, error) {
	out := []*domain.Order{}
	err := r.v.run(ctx, func(st *state) error {
		for _, o := range st.orders {
			if match(o) {
				out = append(out, copyOrder(o))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, err
}

func (r *orderRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*domain.Order, error) {
	return r.collect(ctx, func(o domain.Order) bool { return o.BuyerID == buyerID })
}

func (r *orderRepository) ListByShop(ctx context.Context, shopID uuid.UUID) ([]*domain.Order, error) {
	return r.collect(ctx, func(o domain.Order) bool { return o.HasShop(shopID) })
}

func (r *orderRepository) ActiveReservations(ctx context.Context, orderID uuid.UUID) ([]domain.Reservation, error) {
	out := []domain.Reservation{}
	err := r.v.run(ctx, func(st *state) error {
		for _, res := range st.reservations[orderID] {
			if res.Status == domain.ReservationReserved {
				out = append(out, res)
			}
		}
		return nil
	})
	return out, err
}

func (r *orderRepository) MarkReservationsReleased(ctx context.Context, orderID uuid.UUID) error {
	return r.v.run(ctx, func(st *state) error {
		rs := st.reservations[orderID]
		for i := range rs {
			rs[i].Status = domain.ReservationReleased
		}
		return nil
	})
}

type contactRepository struct{ v view }

func (r *contactRepository) Create(ctx context.Context, c *domain.Contact) error {
	return r.v.run(ctx, func(st *state) error {
		c.CreatedAt = r.v.now()
		st.contacts[c.ID] = *c
		return nil
	})
}

func (r *contactRepository) FindForUser(ctx context.Context, id, userID uuid.UUID) (*domain.Contact, error) {
	var out *domain.Contact
	err := r.v.run(ctx, func(st *state) error {
		c, ok := st.contacts[id]
		if !ok || c.UserID != userID {
			return repository.ErrContactNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *contactRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Contact, error) {
	out := []*domain.Contact{}
	err := r.v.run(ctx, func(st *state) error {
		for _, c := range st.contacts {
			if c.UserID == userID {
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}
