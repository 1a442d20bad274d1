package repository

import (
	"context"
	"errors"
	"fmt"

	"procurement/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type categoryRepository struct {
	db DBTX
}

func (r *categoryRepository) scanAll(rows pgx.Rows) ([]*domain.Category, error) {
	defer rows.Close()

	categories := []*domain.Category{}
	for rows.Next() {
		category := &domain.Category{}
		if err := rows.Scan(&category.ID, &category.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

// List retrieves all categories
func (r *categoryRepository) List(ctx context.Context) ([]*domain.Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return r.scanAll(rows)
}

// ListByShop retrieves the categories a shop stocks
func (r *categoryRepository) ListByShop(ctx context.Context, shopID uuid.UUID) ([]*domain.Category, error) {
	query := `
		SELECT c.id, c.name
		FROM categories c
		JOIN shop_categories sc ON sc.category_id = c.id
		WHERE sc.shop_id = $1
		ORDER BY c.name ASC
	`
	rows, err := r.db.Query(ctx, query, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shop categories: %w", err)
	}
	return r.scanAll(rows)
}

// FindByID retrieves a category by ID
func (r *categoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	category := &domain.Category{}
	err := r.db.QueryRow(ctx, `SELECT id, name FROM categories WHERE id = $1`, id).
		Scan(&category.ID, &category.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to find category by ID: %w", err)
	}
	return category, nil
}

// Resolve upserts by name. The no-op update makes RETURNING yield the existing row.
func (r *categoryRepository) Resolve(ctx context.Context, name string) (*domain.Category, error) {
	query := `
		INSERT INTO categories (id, name)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name
	`

	category := &domain.Category{}
	if err := r.db.QueryRow(ctx, query, uuid.New(), name).Scan(&category.ID, &category.Name); err != nil {
		return nil, fmt.Errorf("failed to resolve category %q: %w", name, err)
	}
	return category, nil
}
