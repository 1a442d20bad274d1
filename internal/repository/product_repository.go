package repository

import (
	"context"
	"errors"
	"fmt"

	"procurement/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type productRepository struct {
	db DBTX
}

// FindByID retrieves a product by ID
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product := &domain.Product{}
	err := r.db.QueryRow(ctx, `SELECT id, name, category_id FROM products WHERE id = $1`, id).
		Scan(&product.ID, &product.Name, &product.CategoryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	return product, nil
}

// Resolve upserts the product identity for (name, category)
func (r *productRepository) Resolve(ctx context.Context, name string, categoryID uuid.UUID) (*domain.Product, error) {
	query := `
		INSERT INTO products (id, name, category_id)
		VALUES ($1, $2, $3)
		ON CONFLICT ON CONSTRAINT products_name_category_key DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, category_id
	`

	product := &domain.Product{}
	err := r.db.QueryRow(ctx, query, uuid.New(), name, categoryID).
		Scan(&product.ID, &product.Name, &product.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve product %q: %w", name, err)
	}
	return product, nil
}
