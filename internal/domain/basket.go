package domain

import (
	"time"

	"github.com/google/uuid"
)

// BasketState tracks whether a basket is still a draft
type BasketState string

const (
	BasketOpen    BasketState = "open"
	BasketOrdered BasketState = "ordered"
	BasketCleared BasketState = "cleared"
)

// Basket is a buyer's draft order. At most one open basket exists per user.
type Basket struct {
	ID        uuid.UUID    `json:"id"`
	UserID    uuid.UUID    `json:"user_id"`
	State     BasketState  `json:"state"`
	Items     []BasketItem `json:"items"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// BasketItem is one basket line joined with the current listing data
type BasketItem struct {
	ListingID   uuid.UUID `json:"listing_id"`
	ShopID      uuid.UUID `json:"shop_id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Price       int64     `json:"price"`
	Quantity    int       `json:"quantity"`
}

// BasketLine is a requested change to a basket line
type BasketLine struct {
	ListingID uuid.UUID `json:"listing_id" validate:"required"`
	Quantity  int       `json:"quantity"`
}

// Total returns the basket value at current listing prices
func (b *Basket) Total() int64 {
	var total int64
	for _, it := range b.Items {
		total += it.Price * int64(it.Quantity)
	}
	return total
}

// Quantity returns the quantity requested for a listing, zero if absent
func (b *Basket) Quantity(listingID uuid.UUID) int {
	for _, it := range b.Items {
		if it.ListingID == listingID {
			return it.Quantity
		}
	}
	return 0
}
