package repository

import (
	"context"
	"errors"
	"fmt"

	"procurement/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type contactRepository struct {
	db DBTX
}

const contactColumns = `id, user_id, city, street, house, structure, building, apartment, phone, created_at`

func scanContact(row pgx.Row) (*domain.Contact, error) {
	c := &domain.Contact{}
	err := row.Scan(&c.ID, &c.UserID, &c.City, &c.Street, &c.House, &c.Structure, &c.Building, &c.Apartment, &c.Phone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	return c, nil
}

// Create inserts a new contact
func (r *contactRepository) Create(ctx context.Context, c *domain.Contact) error {
	query := `
		INSERT INTO contacts (id, user_id, city, street, house, structure, building, apartment, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, c.ID, c.UserID, c.City, c.Street, c.House, c.Structure, c.Building, c.Apartment, c.Phone).
		Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// FindForUser retrieves a contact only if it belongs to the user
func (r *contactRepository) FindForUser(ctx context.Context, id, userID uuid.UUID) (*domain.Contact, error) {
	c, err := scanContact(r.db.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil && !errors.Is(err, ErrContactNotFound) {
		return nil, fmt.Errorf("failed to find contact: %w", err)
	}
	return c, err
}

// ListByUser retrieves the user's contacts
func (r *contactRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Contact, error) {
	rows, err := r.db.Query(ctx, `SELECT `+contactColumns+` FROM contacts WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	contacts := []*domain.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contacts: %w", err)
	}
	return contacts, nil
}
