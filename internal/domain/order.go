package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderState string

const (
	OrderNew       OrderState = "new"
	OrderConfirmed OrderState = "confirmed"
	OrderAssembled OrderState = "assembled"
	OrderSent      OrderState = "sent"
	OrderDelivered OrderState = "delivered"
	OrderCanceled  OrderState = "canceled"
)

var validNext = map[OrderState]map[OrderState]bool{
	OrderNew:       {OrderConfirmed: true, OrderCanceled: true},
	OrderConfirmed: {OrderAssembled: true},
	OrderAssembled: {OrderSent: true},
	OrderSent:      {OrderDelivered: true},
	OrderDelivered: {},
	OrderCanceled:  {},
}

// CanTransition reports whether an order may move from one state to another
func CanTransition(from, to OrderState) bool {
	return validNext[from][to]
}

// Valid reports whether s is a known order state
func (s OrderState) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal reports whether no further transitions are possible
func (s OrderState) Terminal() bool {
	return len(validNext[s]) == 0
}

// Order is an immutable snapshot of a checked-out basket plus its lifecycle state
type Order struct {
	ID        uuid.UUID   `json:"id"`
	BuyerID   uuid.UUID   `json:"buyer_id"`
	ContactID uuid.UUID   `json:"contact_id"`
	State     OrderState  `json:"state"`
	Items     []OrderItem `json:"items"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// OrderItem snapshots a listing at the time of checkout. ListingID becomes
// nil once a later catalog sync removes the listing.
type OrderItem struct {
	ID          uuid.UUID  `json:"id"`
	ListingID   *uuid.UUID `json:"listing_id,omitempty"`
	ShopID      uuid.UUID  `json:"shop_id"`
	ProductID   uuid.UUID  `json:"product_id"`
	ProductName string     `json:"product_name"`
	ExternalSKU string     `json:"external_sku"`
	Quantity    int        `json:"quantity"`
	Price       int64      `json:"price"`
}

// Sum returns the line value
func (i OrderItem) Sum() int64 {
	return i.Price * int64(i.Quantity)
}

// ReservationStatus tracks a stock reservation
type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "RESERVED"
	ReservationReleased ReservationStatus = "RELEASED"
)

// Reservation records stock taken from a listing on behalf of an order
type Reservation struct {
	OrderID   uuid.UUID         `json:"order_id"`
	ListingID *uuid.UUID        `json:"listing_id,omitempty"`
	Quantity  int               `json:"quantity"`
	Status    ReservationStatus `json:"status"`
}

// ShopIDs returns the distinct shops with lines in the order, in line order
func (o *Order) ShopIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, it := range o.Items {
		if !seen[it.ShopID] {
			seen[it.ShopID] = true
			ids = append(ids, it.ShopID)
		}
	}
	return ids
}

// HasShop reports whether the order contains a line from the shop
func (o *Order) HasShop(shopID uuid.UUID) bool {
	for _, it := range o.Items {
		if it.ShopID == shopID {
			return true
		}
	}
	return false
}

// Total returns the order value
func (o *Order) Total() int64 {
	var total int64
	for _, it := range o.Items {
		total += it.Sum()
	}
	return total
}

// BuyerOrderView is the buyer's projection: every line and the full total.
type BuyerOrderView struct {
	ID        uuid.UUID   `json:"id"`
	State     OrderState  `json:"state"`
	ContactID uuid.UUID   `json:"contact_id"`
	Items     []OrderItem `json:"items"`
	Total     int64       `json:"total"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// PartnerOrderView is one partner's projection: only its own lines and their subtotal.
type PartnerOrderView struct {
	ID        uuid.UUID   `json:"id"`
	ShopID    uuid.UUID   `json:"shop_id"`
	State     OrderState  `json:"state"`
	ContactID uuid.UUID   `json:"contact_id"`
	Items     []OrderItem `json:"items"`
	Subtotal  int64       `json:"subtotal"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// BuyerView projects the order for its buyer
func (o *Order) BuyerView() BuyerOrderView {
	items := make([]OrderItem, len(o.Items))
	copy(items, o.Items)
	return BuyerOrderView{
		ID:        o.ID,
		State:     o.State,
		ContactID: o.ContactID,
		Items:     items,
		Total:     o.Total(),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// PartnerView projects the order for one shop. ok is false when the shop has no lines in it.
func (o *Order) PartnerView(shopID uuid.UUID) (view PartnerOrderView, ok bool) {
	var items []OrderItem
	var subtotal int64
	for _, it := range o.Items {
		if it.ShopID != shopID {
			continue
		}
		items = append(items, it)
		subtotal += it.Sum()
	}
	if len(items) == 0 {
		return PartnerOrderView{}, false
	}
	return PartnerOrderView{
		ID:        o.ID,
		ShopID:    shopID,
		State:     o.State,
		ContactID: o.ContactID,
		Items:     items,
		Subtotal:  subtotal,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}, true
}
