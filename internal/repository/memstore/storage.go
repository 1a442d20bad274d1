// Package memstore is an in-process Storage. Every transaction runs under a
// single store-wide lock against a private copy of the data that replaces the
// live copy only on success, so it offers serializable semantics.
package memstore

import (
	"context"
	"sync"
	"time"

	"procurement/internal/domain"
	"procurement/internal/repository"

	"github.com/google/uuid"
)

type basketLine struct {
	ListingID uuid.UUID
	Quantity  int
	Seq       int64
}

type state struct {
	seq          int64
	shops        map[uuid.UUID]domain.Shop
	shopCats     map[uuid.UUID][]uuid.UUID
	categories   map[uuid.UUID]domain.Category
	products     map[uuid.UUID]domain.Product
	listings     map[uuid.UUID]domain.Listing
	baskets      map[uuid.UUID]domain.Basket
	basketLines  map[uuid.UUID][]basketLine
	orders       map[uuid.UUID]domain.Order
	reservations map[uuid.UUID][]domain.Reservation
	contacts     map[uuid.UUID]domain.Contact
	tokens       map[uuid.UUID]domain.Token
	deadLetters  []domain.DeadLetter
}

func newState() *state {
	return &state{
		shops:        map[uuid.UUID]domain.Shop{},
		shopCats:     map[uuid.UUID][]uuid.UUID{},
		categories:   map[uuid.UUID]domain.Category{},
		products:     map[uuid.UUID]domain.Product{},
		listings:     map[uuid.UUID]domain.Listing{},
		baskets:      map[uuid.UUID]domain.Basket{},
		basketLines:  map[uuid.UUID][]basketLine{},
		orders:       map[uuid.UUID]domain.Order{},
		reservations: map[uuid.UUID][]domain.Reservation{},
		contacts:     map[uuid.UUID]domain.Contact{},
		tokens:       map[uuid.UUID]domain.Token{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySlices[K comparable, V any](m map[K][]V) map[K][]V {
	out := make(map[K][]V, len(m))
	for k, v := range m {
		out[k] = append([]V(nil), v...)
	}
	return out
}

// clone copies every table. Nested slices and maps held by entity values
// (order items, listing parameters) are never mutated in place, so sharing them is safe.
func (s *state) clone() *state {
	return &state{
		seq:          s.seq,
		shops:        copyMap(s.shops),
		shopCats:     copySlices(s.shopCats),
		categories:   copyMap(s.categories),
		products:     copyMap(s.products),
		listings:     copyMap(s.listings),
		baskets:      copyMap(s.baskets),
		basketLines:  copySlices(s.basketLines),
		orders:       copyMap(s.orders),
		reservations: copySlices(s.reservations),
		contacts:     copyMap(s.contacts),
		tokens:       copyMap(s.tokens),
		deadLetters:  append([]domain.DeadLetter(nil), s.deadLetters...),
	}
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

// Storage implements repository.Storage in memory
type Storage struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

// New creates an empty store
func New() *Storage {
	return &Storage{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type runner func(ctx context.Context, fn func(*state) error) error

// view binds the repositories to either the live data or a transaction's copy
type view struct {
	run runner
	now func() time.Time
}

func (v view) Shops() repository.ShopRepository             { return &shopRepository{v} }
func (v view) Categories() repository.CategoryRepository    { return &categoryRepository{v} }
func (v view) Products() repository.ProductRepository       { return &productRepository{v} }
func (v view) Listings() repository.ListingRepository       { return &listingRepository{v} }
func (v view) Baskets() repository.BasketRepository         { return &basketRepository{v} }
func (v view) Orders() repository.OrderRepository           { return &orderRepository{v} }
func (v view) Contacts() repository.ContactRepository       { return &contactRepository{v} }
func (v view) Tokens() repository.TokenRepository           { return &tokenRepository{v} }
func (v view) DeadLetters() repository.DeadLetterRepository { return &deadLetterRepository{v} }

// autocommit runs every call as its own transaction
func (s *Storage) autocommit() view {
	return view{
		now: s.now,
		run: func(ctx context.Context, fn func(*state) error) error {
			return s.commit(ctx, fn)
		},
	}
}

func (s *Storage) commit(ctx context.Context, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Storage) Shops() repository.ShopRepository          { return s.autocommit().Shops() }
func (s *Storage) Categories() repository.CategoryRepository { return s.autocommit().Categories() }
func (s *Storage) Products() repository.ProductRepository    { return s.autocommit().Products() }
func (s *Storage) Listings() repository.ListingRepository    { return s.autocommit().Listings() }
func (s *Storage) Baskets() repository.BasketRepository      { return s.autocommit().Baskets() }
func (s *Storage) Orders() repository.OrderRepository        { return s.autocommit().Orders() }
func (s *Storage) Contacts() repository.ContactRepository    { return s.autocommit().Contacts() }
func (s *Storage) Tokens() repository.TokenRepository        { return s.autocommit().Tokens() }
func (s *Storage) DeadLetters() repository.DeadLetterRepository {
	return s.autocommit().DeadLetters()
}

// WithinTx runs fn against a private copy and publishes it only when fn succeeds
func (s *Storage) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	return s.commit(ctx, func(work *state) error {
		return fn(view{
			now: s.now,
			run: func(ctx context.Context, inner func(*state) error) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return inner(work)
			},
		})
	})
}

// Close is a no-op
func (s *Storage) Close() {}

var _ repository.Storage = (*Storage)(nil)
