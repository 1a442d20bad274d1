package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrShopClosed           = errors.New("shop is not accepting orders")
	ErrValidation           = errors.New("validation failed")
	ErrTokenExpired         = errors.New("token has expired")
	ErrTokenInvalid         = errors.New("token is invalid")
	ErrTokenAlreadyConsumed = errors.New("token has already been used")
	ErrTransientStore       = errors.New("store temporarily unavailable")
	ErrInvalidTransition    = errors.New("invalid order state transition")
	ErrEmptyBasket          = errors.New("basket is empty")
	ErrForbidden            = errors.New("forbidden")
)

// InsufficientStockError reports which listing could not cover a reservation
type InsufficientStockError struct {
	ListingID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for listing %s: requested %d, available %d",
		e.ListingID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ShopClosedError reports the shop that blocked a checkout
type ShopClosedError struct {
	ShopID uuid.UUID
}

func (e *ShopClosedError) Error() string {
	return fmt.Sprintf("shop %s is not accepting orders", e.ShopID)
}

func (e *ShopClosedError) Unwrap() error { return ErrShopClosed }

// RowError pinpoints the price-list row that rejected a sync
type RowError struct {
	Section string
	Row     int
	Field   string
	Reason  string
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s row %d: %s", e.Section, e.Row, e.Reason)
	}
	return fmt.Sprintf("%s row %d: field %s: %s", e.Section, e.Row, e.Field, e.Reason)
}

func (e *RowError) Unwrap() error { return ErrValidation }

// TransitionError reports a rejected order state change
type TransitionError struct {
	From OrderState
	To   OrderState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
