package repository

import (
	"context"
	"errors"
	"fmt"

	"procurement/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type orderRepository struct {
	db DBTX
}

// Create inserts the order header, its lines and a RESERVED reservation per line
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO orders (id, buyer_id, contact_id, state)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, order.ID, order.BuyerID, order.ContactID, order.State).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range order.Items {
		it := &order.Items[i]
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		batch.Queue(`
			INSERT INTO order_items (id, order_id, listing_id, shop_id, product_id, product_name, external_sku, quantity, price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, it.ID, order.ID, it.ListingID, it.ShopID, it.ProductID, it.ProductName, it.ExternalSKU, it.Quantity, it.Price)
		batch.Queue(`
			INSERT INTO stock_reservations (order_id, order_item_id, listing_id, quantity, status)
			VALUES ($1, $2, $3, $4, 'RESERVED')
		`, order.ID, it.ID, it.ListingID, it.Quantity)
	}

	results := r.db.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to create order lines: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to create order lines: %w", err)
	}
	return nil
}

func (r *orderRepository) find(ctx context.Context, id uuid.UUID, lock bool) (*domain.Order, error) {
	query := `SELECT id, buyer_id, contact_id, state, created_at, updated_at FROM orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	order := &domain.Order{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&order.ID,
		&order.BuyerID,
		&order.ContactID,
		&order.State,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	if err := r.attachItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// FindByID retrieves an order with all its lines
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.find(ctx, id, false)
}

// LockByID retrieves an order holding its row lock
func (r *orderRepository) LockByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.find(ctx, id, true)
}

// UpdateState moves the order only if it is still in the expected state
func (r *orderRepository) UpdateState(ctx context.Context, id uuid.UUID, from, to domain.OrderState) error {
	tag, err := r.db.Exec(ctx, `UPDATE orders SET state = $3 WHERE id = $1 AND state = $2`, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to update order state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

func (r *orderRepository) list(ctx context.Context, query string, arg uuid.UUID) ([]*domain.Order, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := []*domain.Order{}
	for rows.Next() {
		order := &domain.Order{}
		if err := rows.Scan(&order.ID, &order.BuyerID, &order.ContactID, &order.State, &order.CreatedAt, &order.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListByBuyer retrieves a buyer's orders, newest first
func (r *orderRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*domain.Order, error) {
	return r.list(ctx, `
		SELECT id, buyer_id, contact_id, state, created_at, updated_at
		FROM orders
		WHERE buyer_id = $1
		ORDER BY created_at DESC, id ASC
	`, buyerID)
}

// ListByShop retrieves orders with at least one line from the shop, newest first
func (r *orderRepository) ListByShop(ctx context.Context, shopID uuid.UUID) ([]*domain.Order, error) {
	return r.list(ctx, `
		SELECT o.id, o.buyer_id, o.contact_id, o.state, o.created_at, o.updated_at
		FROM orders o
		WHERE EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = o.id AND oi.shop_id = $1)
		ORDER BY o.created_at DESC, o.id ASC
	`, shopID)
}

func (r *orderRepository) attachItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(orders))
	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []domain.OrderItem{}
	}

	rows, err := r.db.Query(ctx, `
		SELECT order_id, id, listing_id, shop_id, product_id, product_name, external_sku, quantity, price
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, product_name ASC, id ASC
	`, uuidStrings(ids))
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var it domain.OrderItem
		if err := rows.Scan(&orderID, &it.ID, &it.ListingID, &it.ShopID, &it.ProductID, &it.ProductName, &it.ExternalSKU, &it.Quantity, &it.Price); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating order items: %w", err)
	}
	return nil
}

// ActiveReservations returns the order's reservations still holding stock
func (r *orderRepository) ActiveReservations(ctx context.Context, orderID uuid.UUID) ([]domain.Reservation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT order_id, listing_id, quantity, status
		FROM stock_reservations
		WHERE order_id = $1 AND status = 'RESERVED'
		ORDER BY listing_id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reservations: %w", err)
	}
	defer rows.Close()

	reservations := []domain.Reservation{}
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.OrderID, &res.ListingID, &res.Quantity, &res.Status); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reservations: %w", err)
	}
	return reservations, nil
}

// MarkReservationsReleased flags every reservation of the order as RELEASED
func (r *orderRepository) MarkReservationsReleased(ctx context.Context, orderID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE stock_reservations SET status = 'RELEASED'
		WHERE order_id = $1 AND status = 'RESERVED'
	`, orderID)
	if err != nil {
		return fmt.Errorf("failed to release reservations: %w", err)
	}
	return nil
}
