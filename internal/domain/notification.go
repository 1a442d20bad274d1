package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobKind names the notification template
type JobKind string

const (
	JobOrderPlaced       JobKind = "order.placed"
	JobOrderReceived     JobKind = "order.received"
	JobOrderStateChanged JobKind = "order.state_changed"
	JobCatalogUpdated    JobKind = "catalog.updated"
	JobTokenIssued       JobKind = "token.issued"
)

// Job is an abstract notification addressed to one subject.
// Payload must be JSON-serializable.
type Job struct {
	ID          uuid.UUID `json:"id"`
	Kind        JobKind   `json:"kind"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Payload     any       `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewJob stamps a job with an id and creation time
func NewJob(kind JobKind, recipient uuid.UUID, payload any) Job {
	return Job{
		ID:          uuid.New(),
		Kind:        kind,
		RecipientID: recipient,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
}

// DeadLetter keeps a job that exhausted its delivery attempts
type DeadLetter struct {
	ID          uuid.UUID `json:"id"`
	JobID       uuid.UUID `json:"job_id"`
	Kind        JobKind   `json:"kind"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Payload     []byte    `json:"payload"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error"`
	CreatedAt   time.Time `json:"created_at"`
}

type OrderPlacedPayload struct {
	OrderID   uuid.UUID `json:"order_id"`
	ItemCount int       `json:"item_count"`
	Total     int64     `json:"total"`
}

type OrderReceivedPayload struct {
	OrderID   uuid.UUID `json:"order_id"`
	ShopID    uuid.UUID `json:"shop_id"`
	ItemCount int       `json:"item_count"`
	Subtotal  int64     `json:"subtotal"`
}

type OrderStateChangedPayload struct {
	OrderID uuid.UUID  `json:"order_id"`
	From    OrderState `json:"from"`
	To      OrderState `json:"to"`
}

type CatalogUpdatedPayload struct {
	ShopID uuid.UUID `json:"shop_id"`
	SyncStats
}

type TokenIssuedPayload struct {
	Purpose   TokenPurpose `json:"purpose"`
	Value     string       `json:"value"`
	ExpiresAt time.Time    `json:"expires_at"`
}
