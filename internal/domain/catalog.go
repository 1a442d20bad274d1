package domain

import (
	"time"

	"github.com/google/uuid"
)

// Shop represents a partner storefront. Owned by exactly one partner account.
type Shop struct {
	ID              uuid.UUID `json:"id" db:"id"`
	OwnerID         uuid.UUID `json:"owner_id" db:"owner_id"`
	Name            string    `json:"name" db:"name"`
	AcceptingOrders bool      `json:"accepting_orders" db:"accepting_orders"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Category represents a product category
type Category struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Name string    `json:"name" db:"name"`
}

// Product is the catalog identity shared across shops
type Product struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	CategoryID uuid.UUID `json:"category_id" db:"category_id"`
}

// Listing is a shop's price and stock offer for a product.
// Prices are kept in minor currency units.
type Listing struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	ShopID      uuid.UUID         `json:"shop_id" db:"shop_id"`
	ProductID   uuid.UUID         `json:"product_id" db:"product_id"`
	ProductName string            `json:"product_name" db:"product_name"`
	CategoryID  uuid.UUID         `json:"category_id" db:"category_id"`
	ExternalSKU string            `json:"external_sku" db:"external_sku"`
	Model       string            `json:"model" db:"model"`
	Price       int64             `json:"price" db:"price"`
	PriceRRC    int64             `json:"price_rrc" db:"price_rrc"`
	Quantity    int               `json:"quantity" db:"quantity"`
	Parameters  map[string]string `json:"parameters" db:"parameters"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

// ListingKey identifies a listing within one shop's catalog
type ListingKey struct {
	ProductID   uuid.UUID
	ExternalSKU string
}

// Key returns the per-shop identity used when diffing catalogs
func (l *Listing) Key() ListingKey {
	return ListingKey{ProductID: l.ProductID, ExternalSKU: l.ExternalSKU}
}

// ListingFilter narrows a catalog search. Zero values mean "any".
type ListingFilter struct {
	ShopID        *uuid.UUID
	CategoryID    *uuid.UUID
	OnlyAccepting bool
}

// SyncStats summarizes one catalog replacement
type SyncStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Removed  int `json:"removed"`
}
