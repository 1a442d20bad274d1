package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"procurement/internal/domain"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	tokenBytes        = 32
	maxIssueConflicts = 3
)

// TokenService defines the interface for single-use expiring tokens
type TokenService interface {
	// Issue creates a token and invalidates any live one for the same subject and purpose.
	// A non-positive ttl uses the purpose default.
	Issue(ctx context.Context, subjectID uuid.UUID, purpose domain.TokenPurpose, ttl time.Duration) (string, error)
	// VerifyAndConsume returns the token's subject. It succeeds at most once per token.
	VerifyAndConsume(ctx context.Context, value string, purpose domain.TokenPurpose) (uuid.UUID, error)
	// PurgeExpired deletes tokens that expired before the cutoff
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// TokenTTLs holds the default lifetime per purpose
type TokenTTLs struct {
	ConfirmEmail  time.Duration
	ResetPassword time.Duration
}

func (t TokenTTLs) forPurpose(p domain.TokenPurpose) time.Duration {
	if p == domain.PurposeResetPassword {
		return t.ResetPassword
	}
	return t.ConfirmEmail
}

type tokenService struct {
	store    repository.Storage
	notifier Notifier
	ttls     TokenTTLs
	now      func() time.Time
	logger   *zap.Logger
}

// TokenOption customizes a TokenService
type TokenOption func(*tokenService)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) TokenOption {
	return func(s *tokenService) { s.now = now }
}

// NewTokenService creates a new instance of TokenService
func NewTokenService(store repository.Storage, notifier Notifier, ttls TokenTTLs, logger *zap.Logger, opts ...TokenOption) TokenService {
	s := &tokenService{
		store:    store,
		notifier: notifier,
		ttls:     ttls,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func hashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func newTokenValue() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *tokenService) Issue(ctx context.Context, subjectID uuid.UUID, purpose domain.TokenPurpose, ttl time.Duration) (string, error) {
	if !purpose.Valid() {
		return "", fmt.Errorf("%w: unknown token purpose %q", domain.ErrValidation, purpose)
	}
	if ttl <= 0 {
		ttl = s.ttls.forPurpose(purpose)
	}

	value, err := newTokenValue()
	if err != nil {
		return "", err
	}
	now := s.now()
	token := &domain.Token{
		ID:        uuid.New(),
		SubjectID: subjectID,
		Purpose:   purpose,
		ValueHash: hashToken(value),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	// a concurrent Issue for the same pair can win the live slot between our
	// supersede and insert; go again so the newest request ends up live
	for attempt := 1; ; attempt++ {
		err = s.store.WithinTx(ctx, func(tx repository.Store) error {
			if err := tx.Tokens().Supersede(ctx, subjectID, purpose, now); err != nil {
				return err
			}
			return tx.Tokens().Create(ctx, token)
		})
		if !errors.Is(err, repository.ErrLiveTokenExists) || attempt >= maxIssueConflicts {
			break
		}
	}
	if err != nil {
		return "", err
	}

	s.logger.Info("Token issued",
		zap.String("subject_id", subjectID.String()),
		zap.String("purpose", string(purpose)),
		zap.Time("expires_at", token.ExpiresAt),
	)
	s.notifier.Enqueue(domain.NewJob(domain.JobTokenIssued, subjectID, domain.TokenIssuedPayload{
		Purpose:   purpose,
		Value:     value,
		ExpiresAt: token.ExpiresAt,
	}))
	return value, nil
}

func (s *tokenService) VerifyAndConsume(ctx context.Context, value string, purpose domain.TokenPurpose) (uuid.UUID, error) {
	if value == "" || !purpose.Valid() {
		return uuid.Nil, domain.ErrTokenInvalid
	}
	hash := hashToken(value)
	now := s.now()

	token, err := s.store.Tokens().Consume(ctx, hash, purpose, now)
	if err == nil {
		return token.SubjectID, nil
	}
	if !errors.Is(err, repository.ErrTokenNotFound) {
		return uuid.Nil, err
	}

	// Consume found nothing live; work out why for the caller
	token, err = s.store.Tokens().FindByHash(ctx, hash)
	if errors.Is(err, repository.ErrTokenNotFound) {
		return uuid.Nil, domain.ErrTokenInvalid
	}
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Nil, classifyDeadToken(token, purpose, now)
}

func classifyDeadToken(t *domain.Token, purpose domain.TokenPurpose, now time.Time) error {
	switch {
	case t.Purpose != purpose:
		return domain.ErrTokenInvalid
	case t.ConsumedAt != nil:
		return domain.ErrTokenAlreadyConsumed
	case t.SupersededAt != nil:
		return domain.ErrTokenInvalid
	case !now.Before(t.ExpiresAt):
		return domain.ErrTokenExpired
	default:
		return domain.ErrTokenInvalid
	}
}

func (s *tokenService) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.store.Tokens().DeleteExpired(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Expired tokens purged", zap.Int64("count", n))
	}
	return n, nil
}
