package service

import (
	"context"
	"errors"
	"fmt"

	"procurement/internal/domain"
	"procurement/internal/repository"

	"github.com/google/uuid"
)

// BasketService defines the interface for basket business logic.
// Baskets express intent only: no stock is checked or reserved here.
type BasketService interface {
	GetBasket(ctx context.Context, userID uuid.UUID) (*domain.Basket, error)
	AddToBasket(ctx context.Context, userID uuid.UUID, lines []domain.BasketLine) (*domain.Basket, error)
	UpdateBasket(ctx context.Context, userID uuid.UUID, lines []domain.BasketLine) (*domain.Basket, error)
	RemoveFromBasket(ctx context.Context, userID uuid.UUID, listingIDs []uuid.UUID) (*domain.Basket, error)
	ClearBasket(ctx context.Context, userID uuid.UUID) error
}

type basketService struct {
	store repository.Storage
}

// NewBasketService creates a new instance of BasketService
func NewBasketService(store repository.Storage) BasketService {
	return &basketService{store: store}
}

// GetBasket returns the open basket, or an empty one when the user has none
func (s *basketService) GetBasket(ctx context.Context, userID uuid.UUID) (*domain.Basket, error) {
	basket, err := s.store.Baskets().FindOpen(ctx, userID)
	if errors.Is(err, repository.ErrBasketNotFound) {
		return &domain.Basket{UserID: userID, State: domain.BasketOpen, Items: []domain.BasketItem{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load basket: %w", err)
	}
	return basket, nil
}

// AddToBasket adds each quantity to the existing line. A quantity of zero or
// less removes the line.
func (s *basketService) AddToBasket(ctx context.Context, userID uuid.UUID, lines []domain.BasketLine) (*domain.Basket, error) {
	return s.apply(ctx, userID, lines, true)
}

// UpdateBasket sets each line to the given quantity
func (s *basketService) UpdateBasket(ctx context.Context, userID uuid.UUID, lines []domain.BasketLine) (*domain.Basket, error) {
	return s.apply(ctx, userID, lines, false)
}

func (s *basketService) apply(ctx context.Context, userID uuid.UUID, lines []domain.BasketLine, accumulate bool) (*domain.Basket, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no basket lines given", domain.ErrValidation)
	}

	var out *domain.Basket
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		basket, err := tx.Baskets().Open(ctx, userID)
		if err != nil {
			return err
		}

		for _, line := range lines {
			qty := line.Quantity
			if accumulate && qty > 0 {
				qty += basket.Quantity(line.ListingID)
			}

			if qty <= 0 {
				if err := tx.Baskets().RemoveItem(ctx, basket.ID, line.ListingID); err != nil {
					return err
				}
				setLocalQuantity(basket, line.ListingID, 0)
				continue
			}

			if _, err := tx.Listings().FindByID(ctx, line.ListingID); err != nil {
				return err
			}
			if err := tx.Baskets().SetItem(ctx, basket.ID, line.ListingID, qty); err != nil {
				return err
			}
			setLocalQuantity(basket, line.ListingID, qty)
		}

		out, err = tx.Baskets().FindOpen(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// setLocalQuantity keeps the in-tx copy current so repeated listing ids accumulate
func setLocalQuantity(b *domain.Basket, listingID uuid.UUID, qty int) {
	for i := range b.Items {
		if b.Items[i].ListingID == listingID {
			b.Items[i].Quantity = qty
			return
		}
	}
	b.Items = append(b.Items, domain.BasketItem{ListingID: listingID, Quantity: qty})
}

// RemoveFromBasket drops lines. Removing an absent line is not an error.
func (s *basketService) RemoveFromBasket(ctx context.Context, userID uuid.UUID, listingIDs []uuid.UUID) (*domain.Basket, error) {
	var out *domain.Basket
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		basket, err := tx.Baskets().Open(ctx, userID)
		if err != nil {
			return err
		}
		for _, id := range listingIDs {
			if err := tx.Baskets().RemoveItem(ctx, basket.ID, id); err != nil {
				return err
			}
		}
		out, err = tx.Baskets().FindOpen(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClearBasket discards the open basket. A user without one is left untouched.
func (s *basketService) ClearBasket(ctx context.Context, userID uuid.UUID) error {
	return s.store.WithinTx(ctx, func(tx repository.Store) error {
		basket, err := tx.Baskets().LockOpen(ctx, userID)
		if errors.Is(err, repository.ErrBasketNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Baskets().Close(ctx, basket.ID, domain.BasketCleared)
	})
}
