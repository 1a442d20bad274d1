package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"procurement/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type pgStore struct {
	db DBTX
}

func (s *pgStore) Shops() ShopRepository             { return &shopRepository{db: s.db} }
func (s *pgStore) Categories() CategoryRepository    { return &categoryRepository{db: s.db} }
func (s *pgStore) Products() ProductRepository       { return &productRepository{db: s.db} }
func (s *pgStore) Listings() ListingRepository       { return &listingRepository{db: s.db} }
func (s *pgStore) Baskets() BasketRepository         { return &basketRepository{db: s.db} }
func (s *pgStore) Orders() OrderRepository           { return &orderRepository{db: s.db} }
func (s *pgStore) Contacts() ContactRepository       { return &contactRepository{db: s.db} }
func (s *pgStore) Tokens() TokenRepository           { return &tokenRepository{db: s.db} }
func (s *pgStore) DeadLetters() DeadLetterRepository { return &deadLetterRepository{db: s.db} }

// PostgresStorage is the pgx-backed Storage
type PostgresStorage struct {
	pgStore
	pool       *pgxpool.Pool
	maxRetries uint64
	backoff    time.Duration
	logger     *zap.Logger
}

// NewPostgresStorage wraps a pool. Transactions that fail with a serialization
// failure, a deadlock or a dropped connection are retried up to maxRetries times.
func NewPostgresStorage(pool *pgxpool.Pool, maxRetries uint64, backoff time.Duration, logger *zap.Logger) *PostgresStorage {
	if backoff <= 0 {
		backoff = 20 * time.Millisecond
	}
	return &PostgresStorage{
		pgStore:    pgStore{db: pool},
		pool:       pool,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger.Named("store"),
	}
}

// WithinTx runs fn in a READ COMMITTED transaction. Row locks taken by the
// repositories provide the isolation the callers depend on.
func (s *PostgresStorage) WithinTx(ctx context.Context, fn func(Store) error) error {
	attempt := 0
	b := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.backoff))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := s.runTx(ctx, fn)
		if isTransient(err) {
			s.logger.Warn("Transient store failure, retrying transaction",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return err
	})
	if isTransient(err) {
		return fmt.Errorf("%w: %v", domain.ErrTransientStore, err)
	}
	return err
}

func (s *PostgresStorage) runTx(ctx context.Context, fn func(Store) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.Background())
			panic(p)
		}
	}()

	if err := fn(&pgStore{db: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close releases the pool
func (s *PostgresStorage) Close() {
	s.pool.Close()
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return pgconn.SafeToRetry(err)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
