package domain

import (
	"time"

	"github.com/google/uuid"
)

// TokenPurpose scopes a token to one flow
type TokenPurpose string

const (
	PurposeConfirmEmail  TokenPurpose = "confirm-email"
	PurposeResetPassword TokenPurpose = "reset-password"
)

// Valid reports whether p is a known purpose
func (p TokenPurpose) Valid() bool {
	return p == PurposeConfirmEmail || p == PurposeResetPassword
}

// Token is a single-use expiring credential. Only the digest of the value is stored.
type Token struct {
	ID           uuid.UUID
	SubjectID    uuid.UUID
	Purpose      TokenPurpose
	ValueHash    string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	ConsumedAt   *time.Time
	SupersededAt *time.Time
}

// Live reports whether the token can still be consumed at the given instant
func (t *Token) Live(now time.Time) bool {
	return t.ConsumedAt == nil && t.SupersededAt == nil && now.Before(t.ExpiresAt)
}
