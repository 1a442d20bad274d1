package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"procurement/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrShopNotFound     = fmt.Errorf("shop %w", domain.ErrNotFound)
	ErrCategoryNotFound = fmt.Errorf("category %w", domain.ErrNotFound)
	ErrProductNotFound  = fmt.Errorf("product %w", domain.ErrNotFound)
	ErrListingNotFound  = fmt.Errorf("listing %w", domain.ErrNotFound)
	ErrBasketNotFound   = fmt.Errorf("basket %w", domain.ErrNotFound)
	ErrOrderNotFound    = fmt.Errorf("order %w", domain.ErrNotFound)
	ErrContactNotFound  = fmt.Errorf("contact %w", domain.ErrNotFound)
	ErrTokenNotFound    = fmt.Errorf("token %w", domain.ErrNotFound)

	ErrShopAlreadyExists = errors.New("partner already owns a shop")
	ErrLiveTokenExists   = errors.New("a live token already exists for this subject and purpose")
	ErrStateConflict     = errors.New("order state changed concurrently")
	ErrDuplicateListing  = errors.New("listing set contains the same product and SKU twice")
)

// Store gives access to every repository over one connection or transaction
type Store interface {
	Shops() ShopRepository
	Categories() CategoryRepository
	Products() ProductRepository
	Listings() ListingRepository
	Baskets() BasketRepository
	Orders() OrderRepository
	Contacts() ContactRepository
	Tokens() TokenRepository
	DeadLetters() DeadLetterRepository
}

// TxManager runs fn inside one atomic unit. A returned error or a panic rolls
// everything back. fn may be re-run when the store reports a transient failure.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(Store) error) error
}

// Storage is the full persistence surface used by the services
type Storage interface {
	Store
	TxManager
	Close()
}

// ShopRepository defines the interface for shop data access
type ShopRepository interface {
	Create(ctx context.Context, shop *domain.Shop) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Shop, error)
	FindByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Shop, error)
	List(ctx context.Context, onlyAccepting bool) ([]*domain.Shop, error)
	// LockForCheckout takes a shared row lock so a concurrent sync waits for the checkout
	LockForCheckout(ctx context.Context, id uuid.UUID) (*domain.Shop, error)
	// LockForSync takes an exclusive row lock for the duration of a catalog swap
	LockForSync(ctx context.Context, id uuid.UUID) (*domain.Shop, error)
	SetAcceptingOrders(ctx context.Context, id uuid.UUID, accepting bool) (*domain.Shop, error)
	Rename(ctx context.Context, id uuid.UUID, name string) error
	ReplaceCategories(ctx context.Context, shopID uuid.UUID, categoryIDs []uuid.UUID) error
}

// CategoryRepository defines the interface for category data access
type CategoryRepository interface {
	List(ctx context.Context) ([]*domain.Category, error)
	ListByShop(ctx context.Context, shopID uuid.UUID) ([]*domain.Category, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	// Resolve returns the category with the given name, creating it if needed
	Resolve(ctx context.Context, name string) (*domain.Category, error)
}

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	// Resolve returns the product identity for (name, category), creating it if needed
	Resolve(ctx context.Context, name string, categoryID uuid.UUID) (*domain.Product, error)
}

// ListingRepository defines the interface for per-shop listing data access
type ListingRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Listing, error)
	FindByShopAndProduct(ctx context.Context, shopID, productID uuid.UUID) (*domain.Listing, error)
	ListByShop(ctx context.Context, shopID uuid.UUID) ([]*domain.Listing, error)
	Search(ctx context.Context, filter domain.ListingFilter) ([]*domain.Listing, error)
	// Reserve decrements quantity only when it covers qty. Returns the updated listing
	// or an *domain.InsufficientStockError.
	Reserve(ctx context.Context, id uuid.UUID, qty int) (*domain.Listing, error)
	Release(ctx context.Context, id uuid.UUID, qty int) error
	// ReplaceForShop swaps the shop's full listing set. Rows are matched on
	// (product, external SKU); matches keep their id.
	ReplaceForShop(ctx context.Context, shopID uuid.UUID, listings []*domain.Listing) (domain.SyncStats, error)
}

// BasketRepository defines the interface for basket data access
type BasketRepository interface {
	FindOpen(ctx context.Context, userID uuid.UUID) (*domain.Basket, error)
	LockOpen(ctx context.Context, userID uuid.UUID) (*domain.Basket, error)
	// Open returns the user's open basket, creating an empty one if none exists
	Open(ctx context.Context, userID uuid.UUID) (*domain.Basket, error)
	SetItem(ctx context.Context, basketID, listingID uuid.UUID, qty int) error
	RemoveItem(ctx context.Context, basketID, listingID uuid.UUID) error
	Close(ctx context.Context, basketID uuid.UUID, state domain.BasketState) error
}

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	// Create stores the order, its lines and one reservation per line
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	UpdateState(ctx context.Context, id uuid.UUID, from, to domain.OrderState) error
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*domain.Order, error)
	ListByShop(ctx context.Context, shopID uuid.UUID) ([]*domain.Order, error)
	ActiveReservations(ctx context.Context, orderID uuid.UUID) ([]domain.Reservation, error)
	MarkReservationsReleased(ctx context.Context, orderID uuid.UUID) error
}

// ContactRepository defines the interface for delivery contact data access
type ContactRepository interface {
	Create(ctx context.Context, contact *domain.Contact) error
	FindForUser(ctx context.Context, id, userID uuid.UUID) (*domain.Contact, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Contact, error)
}

// TokenRepository defines the interface for expiring token data access
type TokenRepository interface {
	// Supersede invalidates the live token for (subject, purpose), if any
	Supersede(ctx context.Context, subjectID uuid.UUID, purpose domain.TokenPurpose, at time.Time) error
	Create(ctx context.Context, token *domain.Token) error
	// Consume atomically marks a live, unexpired token as used
	Consume(ctx context.Context, valueHash string, purpose domain.TokenPurpose, now time.Time) (*domain.Token, error)
	FindByHash(ctx context.Context, valueHash string) (*domain.Token, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// DeadLetterRepository keeps notifications that could not be delivered
type DeadLetterRepository interface {
	Save(ctx context.Context, letter *domain.DeadLetter) error
	List(ctx context.Context, limit int) ([]*domain.DeadLetter, error)
}
