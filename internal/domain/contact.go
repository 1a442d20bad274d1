package domain

import (
	"time"

	"github.com/google/uuid"
)

// Contact is a buyer's delivery address
type Contact struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	City      string    `json:"city"`
	Street    string    `json:"street"`
	House     string    `json:"house"`
	Structure string    `json:"structure"`
	Building  string    `json:"building"`
	Apartment string    `json:"apartment"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}
