package repository

import (
	"context"
	"errors"
	"fmt"

	"procurement/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type basketRepository struct {
	db DBTX
}

func (r *basketRepository) findOpen(ctx context.Context, userID uuid.UUID, lock bool) (*domain.Basket, error) {
	query := `
		SELECT id, user_id, state, created_at, updated_at
		FROM baskets
		WHERE user_id = $1 AND state = 'open'
	`
	if lock {
		query += ` FOR UPDATE`
	}

	basket := &domain.Basket{}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&basket.ID,
		&basket.UserID,
		&basket.State,
		&basket.CreatedAt,
		&basket.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBasketNotFound
		}
		return nil, fmt.Errorf("failed to find open basket: %w", err)
	}

	if err := r.loadItems(ctx, basket); err != nil {
		return nil, err
	}
	return basket, nil
}

func (r *basketRepository) loadItems(ctx context.Context, basket *domain.Basket) error {
	query := `
		SELECT bi.listing_id, l.shop_id, l.product_id, p.name, l.price, bi.quantity
		FROM basket_items bi
		JOIN listings l ON l.id = bi.listing_id
		JOIN products p ON p.id = l.product_id
		WHERE bi.basket_id = $1
		ORDER BY bi.added_at ASC, bi.listing_id ASC
	`

	rows, err := r.db.Query(ctx, query, basket.ID)
	if err != nil {
		return fmt.Errorf("failed to load basket items: %w", err)
	}
	defer rows.Close()

	basket.Items = []domain.BasketItem{}
	for rows.Next() {
		var it domain.BasketItem
		if err := rows.Scan(&it.ListingID, &it.ShopID, &it.ProductID, &it.ProductName, &it.Price, &it.Quantity); err != nil {
			return fmt.Errorf("failed to scan basket item: %w", err)
		}
		basket.Items = append(basket.Items, it)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating basket items: %w", err)
	}
	return nil
}

// FindOpen returns the user's open basket with its lines
func (r *basketRepository) FindOpen(ctx context.Context, userID uuid.UUID) (*domain.Basket, error) {
	return r.findOpen(ctx, userID, false)
}

// LockOpen is FindOpen holding the basket row until the transaction ends
func (r *basketRepository) LockOpen(ctx context.Context, userID uuid.UUID) (*domain.Basket, error) {
	return r.findOpen(ctx, userID, true)
}

// Open returns the open basket, creating it lazily
func (r *basketRepository) Open(ctx context.Context, userID uuid.UUID) (*domain.Basket, error) {
	query := `
		INSERT INTO baskets (id, user_id, state)
		VALUES ($1, $2, 'open')
		ON CONFLICT (user_id) WHERE state = 'open' DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, uuid.New(), userID); err != nil {
		return nil, fmt.Errorf("failed to open basket: %w", err)
	}
	return r.findOpen(ctx, userID, true)
}

// SetItem upserts a basket line with an absolute quantity
func (r *basketRepository) SetItem(ctx context.Context, basketID, listingID uuid.UUID, qty int) error {
	query := `
		INSERT INTO basket_items (basket_id, listing_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (basket_id, listing_id) DO UPDATE SET quantity = EXCLUDED.quantity
	`
	if _, err := r.db.Exec(ctx, query, basketID, listingID, qty); err != nil {
		return fmt.Errorf("failed to set basket item: %w", err)
	}
	return nil
}

// RemoveItem deletes a basket line. Removing an absent line is not an error.
func (r *basketRepository) RemoveItem(ctx context.Context, basketID, listingID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM basket_items WHERE basket_id = $1 AND listing_id = $2`, basketID, listingID)
	if err != nil {
		return fmt.Errorf("failed to remove basket item: %w", err)
	}
	return nil
}

// Close moves an open basket to a final state
func (r *basketRepository) Close(ctx context.Context, basketID uuid.UUID, state domain.BasketState) error {
	tag, err := r.db.Exec(ctx, `UPDATE baskets SET state = $2 WHERE id = $1 AND state = 'open'`, basketID, state)
	if err != nil {
		return fmt.Errorf("failed to close basket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBasketNotFound
	}
	return nil
}
