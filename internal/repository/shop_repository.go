package repository

import (
	"context"
	"errors"
	"fmt"

	"procurement/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type shopRepository struct {
	db DBTX
}

const shopColumns = `id, owner_id, name, accepting_orders, created_at, updated_at`

func scanShop(row pgx.Row) (*domain.Shop, error) {
	shop := &domain.Shop{}
	err := row.Scan(
		&shop.ID,
		&shop.OwnerID,
		&shop.Name,
		&shop.AcceptingOrders,
		&shop.CreatedAt,
		&shop.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrShopNotFound
		}
		return nil, err
	}
	return shop, nil
}

// Create inserts a new shop
func (r *shopRepository) Create(ctx context.Context, shop *domain.Shop) error {
	query := `
		INSERT INTO shops (id, owner_id, name, accepting_orders)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, shop.ID, shop.OwnerID, shop.Name, shop.AcceptingOrders).
		Scan(&shop.CreatedAt, &shop.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "shops_owner_id_key") {
			return ErrShopAlreadyExists
		}
		return fmt.Errorf("failed to create shop: %w", err)
	}

	return nil
}

// FindByID retrieves a shop by ID
func (r *shopRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Shop, error) {
	shop, err := scanShop(r.db.QueryRow(ctx, `SELECT `+shopColumns+` FROM shops WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrShopNotFound) {
		return nil, fmt.Errorf("failed to find shop by ID: %w", err)
	}
	return shop, err
}

// FindByOwner retrieves the shop owned by a partner account
func (r *shopRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Shop, error) {
	shop, err := scanShop(r.db.QueryRow(ctx, `SELECT `+shopColumns+` FROM shops WHERE owner_id = $1`, ownerID))
	if err != nil && !errors.Is(err, ErrShopNotFound) {
		return nil, fmt.Errorf("failed to find shop by owner: %w", err)
	}
	return shop, err
}

// List retrieves shops ordered by name
func (r *shopRepository) List(ctx context.Context, onlyAccepting bool) ([]*domain.Shop, error) {
	query := `SELECT ` + shopColumns + ` FROM shops`
	if onlyAccepting {
		query += ` WHERE accepting_orders`
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	defer rows.Close()

	shops := []*domain.Shop{}
	for rows.Next() {
		shop, err := scanShop(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shop: %w", err)
		}
		shops = append(shops, shop)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shops: %w", err)
	}

	return shops, nil
}

func (r *shopRepository) lock(ctx context.Context, id uuid.UUID, mode string) (*domain.Shop, error) {
	shop, err := scanShop(r.db.QueryRow(ctx, `SELECT `+shopColumns+` FROM shops WHERE id = $1 FOR `+mode, id))
	if err != nil && !errors.Is(err, ErrShopNotFound) {
		return nil, fmt.Errorf("failed to lock shop: %w", err)
	}
	return shop, err
}

func (r *shopRepository) LockForCheckout(ctx context.Context, id uuid.UUID) (*domain.Shop, error) {
	return r.lock(ctx, id, "SHARE")
}

func (r *shopRepository) LockForSync(ctx context.Context, id uuid.UUID) (*domain.Shop, error) {
	return r.lock(ctx, id, "UPDATE")
}

// SetAcceptingOrders toggles the partner's order intake flag
func (r *shopRepository) SetAcceptingOrders(ctx context.Context, id uuid.UUID, accepting bool) (*domain.Shop, error) {
	query := `UPDATE shops SET accepting_orders = $2 WHERE id = $1 RETURNING ` + shopColumns

	shop, err := scanShop(r.db.QueryRow(ctx, query, id, accepting))
	if err != nil && !errors.Is(err, ErrShopNotFound) {
		return nil, fmt.Errorf("failed to update shop state: %w", err)
	}
	return shop, err
}

// Rename changes the shop's display name
func (r *shopRepository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := r.db.Exec(ctx, `UPDATE shops SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("failed to rename shop: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrShopNotFound
	}
	return nil
}

// ReplaceCategories rewrites the shop's category links
func (r *shopRepository) ReplaceCategories(ctx context.Context, shopID uuid.UUID, categoryIDs []uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM shop_categories WHERE shop_id = $1`, shopID); err != nil {
		return fmt.Errorf("failed to clear shop categories: %w", err)
	}
	if len(categoryIDs) == 0 {
		return nil
	}

	query := `
		INSERT INTO shop_categories (shop_id, category_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, shopID, uuidStrings(categoryIDs)); err != nil {
		return fmt.Errorf("failed to link shop categories: %w", err)
	}
	return nil
}
