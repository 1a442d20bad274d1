package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"procurement/internal/domain"
)

const (
	envelopeVersion = 1
	producerName    = "procurement"
)

// Envelope is the wire shape shared by the broker senders
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	RecipientID  string          `json:"recipient_id"`
	Payload      json.RawMessage `json:"payload"`
}

// Encode wraps the job payload into an envelope. A payload that cannot be
// marshalled is a permanent failure.
func Encode(job domain.Job) ([]byte, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, Permanent(fmt.Errorf("marshal payload: %w", err))
	}
	occurred := job.CreatedAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	body, err := json.Marshal(Envelope{
		EventID:      job.ID.String(),
		EventType:    string(job.Kind),
		EventVersion: envelopeVersion,
		OccurredAt:   occurred,
		Producer:     producerName,
		RecipientID:  job.RecipientID.String(),
		Payload:      payload,
	})
	if err != nil {
		return nil, Permanent(fmt.Errorf("marshal envelope: %w", err))
	}
	return body, nil
}
