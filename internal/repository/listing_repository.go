package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"procurement/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type listingRepository struct {
	db DBTX
}

const listingSelect = `
	SELECT l.id, l.shop_id, l.product_id, p.name, p.category_id, l.external_sku,
	       l.model, l.price, l.price_rrc, l.quantity, l.parameters, l.updated_at
	FROM listings l
	JOIN products p ON p.id = l.product_id
`

func scanListing(row pgx.Row) (*domain.Listing, error) {
	listing := &domain.Listing{}
	err := row.Scan(
		&listing.ID,
		&listing.ShopID,
		&listing.ProductID,
		&listing.ProductName,
		&listing.CategoryID,
		&listing.ExternalSKU,
		&listing.Model,
		&listing.Price,
		&listing.PriceRRC,
		&listing.Quantity,
		&listing.Parameters,
		&listing.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	if listing.Parameters == nil {
		listing.Parameters = map[string]string{}
	}
	return listing, nil
}

func collectListings(rows pgx.Rows) ([]*domain.Listing, error) {
	defer rows.Close()

	listings := []*domain.Listing{}
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, listing)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating listings: %w", err)
	}

	return listings, nil
}

// FindByID retrieves a listing by ID
func (r *listingRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	listing, err := scanListing(r.db.QueryRow(ctx, listingSelect+` WHERE l.id = $1`, id))
	if err != nil && !errors.Is(err, ErrListingNotFound) {
		return nil, fmt.Errorf("failed to find listing by ID: %w", err)
	}
	return listing, err
}

// FindByShopAndProduct returns the shop's listing for a product. When the shop
// lists the product under several SKUs the lowest SKU wins.
func (r *listingRepository) FindByShopAndProduct(ctx context.Context, shopID, productID uuid.UUID) (*domain.Listing, error) {
	query := listingSelect + `
		WHERE l.shop_id = $1 AND l.product_id = $2
		ORDER BY l.external_sku ASC
		LIMIT 1
	`
	listing, err := scanListing(r.db.QueryRow(ctx, query, shopID, productID))
	if err != nil && !errors.Is(err, ErrListingNotFound) {
		return nil, fmt.Errorf("failed to find listing: %w", err)
	}
	return listing, err
}

// ListByShop retrieves every listing of a shop
func (r *listingRepository) ListByShop(ctx context.Context, shopID uuid.UUID) ([]*domain.Listing, error) {
	rows, err := r.db.Query(ctx, listingSelect+` WHERE l.shop_id = $1 ORDER BY p.name ASC, l.external_sku ASC`, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shop listings: %w", err)
	}
	return collectListings(rows)
}

// Search retrieves listings matching the filter
func (r *listingRepository) Search(ctx context.Context, filter domain.ListingFilter) ([]*domain.Listing, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.ShopID != nil {
		args = append(args, *filter.ShopID)
		conditions = append(conditions, fmt.Sprintf("l.shop_id = $%d", len(args)))
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		conditions = append(conditions, fmt.Sprintf("p.category_id = $%d", len(args)))
	}
	if filter.OnlyAccepting {
		conditions = append(conditions, "s.accepting_orders")
	}

	query := listingSelect + ` JOIN shops s ON s.id = l.shop_id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY p.name ASC, s.name ASC, l.external_sku ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	return collectListings(rows)
}

// Reserve is a compare-and-decrement: the row is only touched when it holds enough stock
func (r *listingRepository) Reserve(ctx context.Context, id uuid.UUID, qty int) (*domain.Listing, error) {
	query := `
		WITH reserved AS (
			UPDATE listings SET quantity = quantity - $2
			WHERE id = $1 AND quantity >= $2
			RETURNING *
		)
		SELECT l.id, l.shop_id, l.product_id, p.name, p.category_id, l.external_sku,
		       l.model, l.price, l.price_rrc, l.quantity, l.parameters, l.updated_at
		FROM reserved l
		JOIN products p ON p.id = l.product_id
	`

	listing, err := scanListing(r.db.QueryRow(ctx, query, id, qty))
	if err == nil {
		return listing, nil
	}
	if !errors.Is(err, ErrListingNotFound) {
		return nil, fmt.Errorf("failed to reserve stock: %w", err)
	}

	var available int
	err = r.db.QueryRow(ctx, `SELECT quantity FROM listings WHERE id = $1`, id).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to read listing stock: %w", err)
	}

	return nil, &domain.InsufficientStockError{ListingID: id, Requested: qty, Available: available}
}

// Release returns reserved quantity to a listing
func (r *listingRepository) Release(ctx context.Context, id uuid.UUID, qty int) error {
	tag, err := r.db.Exec(ctx, `UPDATE listings SET quantity = quantity + $2 WHERE id = $1`, id, qty)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}

// ReplaceForShop must run inside a transaction holding the shop's sync lock
func (r *listingRepository) ReplaceForShop(ctx context.Context, shopID uuid.UUID, listings []*domain.Listing) (domain.SyncStats, error) {
	var stats domain.SyncStats

	rows, err := r.db.Query(ctx, `SELECT id, product_id, external_sku FROM listings WHERE shop_id = $1 FOR UPDATE`, shopID)
	if err != nil {
		return stats, fmt.Errorf("failed to load current listings: %w", err)
	}
	existing := make(map[domain.ListingKey]uuid.UUID)
	for rows.Next() {
		var id uuid.UUID
		var key domain.ListingKey
		if err := rows.Scan(&id, &key.ProductID, &key.ExternalSKU); err != nil {
			rows.Close()
			return stats, fmt.Errorf("failed to scan listing key: %w", err)
		}
		existing[key] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("error iterating listing keys: %w", err)
	}

	batch := &pgx.Batch{}
	kept := make(map[uuid.UUID]bool, len(listings))
	incoming := make(map[domain.ListingKey]bool, len(listings))
	for _, l := range listings {
		if incoming[l.Key()] {
			return stats, ErrDuplicateListing
		}
		incoming[l.Key()] = true
		l.ShopID = shopID
		params := l.Parameters
		if params == nil {
			params = map[string]string{}
		}

		if id, ok := existing[l.Key()]; ok {
			l.ID = id
			kept[id] = true
			stats.Updated++
			batch.Queue(`
				UPDATE listings
				SET model = $2, price = $3, price_rrc = $4, quantity = $5, parameters = $6
				WHERE id = $1
			`, l.ID, l.Model, l.Price, l.PriceRRC, l.Quantity, params)
			continue
		}

		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		stats.Inserted++
		batch.Queue(`
			INSERT INTO listings (id, shop_id, product_id, external_sku, model, price, price_rrc, quantity, parameters)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, l.ID, shopID, l.ProductID, l.ExternalSKU, l.Model, l.Price, l.PriceRRC, l.Quantity, params)
	}

	if batch.Len() > 0 {
		results := r.db.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return stats, fmt.Errorf("failed to write listing: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return stats, fmt.Errorf("failed to write listings: %w", err)
		}
	}

	var stale []uuid.UUID
	for _, id := range existing {
		if !kept[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		tag, err := r.db.Exec(ctx, `DELETE FROM listings WHERE id = ANY($1::uuid[])`, uuidStrings(stale))
		if err != nil {
			return stats, fmt.Errorf("failed to remove stale listings: %w", err)
		}
		stats.Removed = int(tag.RowsAffected())
	}

	return stats, nil
}
