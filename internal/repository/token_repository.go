package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"procurement/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type tokenRepository struct {
	db DBTX
}

const tokenColumns = `id, subject_id, purpose, value_hash, issued_at, expires_at, consumed_at, superseded_at`

func scanToken(row pgx.Row) (*domain.Token, error) {
	t := &domain.Token{}
	err := row.Scan(&t.ID, &t.SubjectID, &t.Purpose, &t.ValueHash, &t.IssuedAt, &t.ExpiresAt, &t.ConsumedAt, &t.SupersededAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return t, nil
}

// Supersede invalidates the current live token for the pair
func (r *tokenRepository) Supersede(ctx context.Context, subjectID uuid.UUID, purpose domain.TokenPurpose, at time.Time) error {
	query := `
		UPDATE tokens SET superseded_at = $3
		WHERE subject_id = $1 AND purpose = $2
		  AND consumed_at IS NULL AND superseded_at IS NULL
	`
	if _, err := r.db.Exec(ctx, query, subjectID, purpose, at); err != nil {
		return fmt.Errorf("failed to supersede token: %w", err)
	}
	return nil
}

// Create inserts a token. A concurrent live token for the same pair yields ErrLiveTokenExists.
func (r *tokenRepository) Create(ctx context.Context, t *domain.Token) error {
	query := `
		INSERT INTO tokens (id, subject_id, purpose, value_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, t.ID, t.SubjectID, t.Purpose, t.ValueHash, t.IssuedAt, t.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err, "tokens_one_live_per_subject") {
			return ErrLiveTokenExists
		}
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

// Consume flips consumed_at in one statement; concurrent callers race on the row lock
// and only the first sees a row.
func (r *tokenRepository) Consume(ctx context.Context, valueHash string, purpose domain.TokenPurpose, now time.Time) (*domain.Token, error) {
	query := `
		UPDATE tokens SET consumed_at = $3
		WHERE value_hash = $1 AND purpose = $2
		  AND consumed_at IS NULL AND superseded_at IS NULL
		  AND expires_at > $3
		RETURNING ` + tokenColumns

	t, err := scanToken(r.db.QueryRow(ctx, query, valueHash, purpose, now))
	if err != nil && !errors.Is(err, ErrTokenNotFound) {
		return nil, fmt.Errorf("failed to consume token: %w", err)
	}
	return t, err
}

// FindByHash retrieves a token by the digest of its value
func (r *tokenRepository) FindByHash(ctx context.Context, valueHash string) (*domain.Token, error) {
	t, err := scanToken(r.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE value_hash = $1`, valueHash))
	if err != nil && !errors.Is(err, ErrTokenNotFound) {
		return nil, fmt.Errorf("failed to find token: %w", err)
	}
	return t, err
}

// DeleteExpired purges tokens that expired before the cutoff
func (r *tokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
