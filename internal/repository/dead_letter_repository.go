package repository

import (
	"context"
	"fmt"

	"procurement/internal/domain"
)

type deadLetterRepository struct {
	db DBTX
}

// Save stores an undeliverable notification
func (r *deadLetterRepository) Save(ctx context.Context, l *domain.DeadLetter) error {
	query := `
		INSERT INTO dead_letters (id, job_id, kind, recipient_id, payload, attempts, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, l.ID, l.JobID, l.Kind, l.RecipientID, string(l.Payload), l.Attempts, l.LastError).
		Scan(&l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save dead letter: %w", err)
	}
	return nil
}

// List retrieves the most recent dead letters
func (r *deadLetterRepository) List(ctx context.Context, limit int) ([]*domain.DeadLetter, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, job_id, kind, recipient_id, payload::text, attempts, last_error, created_at
		FROM dead_letters
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	letters := []*domain.DeadLetter{}
	for rows.Next() {
		l := &domain.DeadLetter{}
		var payload string
		if err := rows.Scan(&l.ID, &l.JobID, &l.Kind, &l.RecipientID, &payload, &l.Attempts, &l.LastError, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		l.Payload = []byte(payload)
		letters = append(letters, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}
	return letters, nil
}
