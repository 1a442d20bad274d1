package service

import (
	"context"
	"fmt"
	"strings"

	"procurement/internal/domain"
	"procurement/internal/repository"

	"github.com/google/uuid"
)

// ContactService manages buyers' delivery contacts
type ContactService interface {
	Create(ctx context.Context, contact *domain.Contact) error
	List(ctx context.Context, userID uuid.UUID) ([]*domain.Contact, error)
}

type contactService struct {
	store repository.Storage
}

// NewContactService creates a new instance of ContactService
func NewContactService(store repository.Storage) ContactService {
	return &contactService{store: store}
}

func (s *contactService) Create(ctx context.Context, c *domain.Contact) error {
	c.City = strings.TrimSpace(c.City)
	c.Street = strings.TrimSpace(c.Street)
	c.Phone = strings.TrimSpace(c.Phone)
	if c.City == "" || c.Street == "" || c.Phone == "" {
		return fmt.Errorf("%w: city, street and phone are required", domain.ErrValidation)
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if err := s.store.Contacts().Create(ctx, c); err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

func (s *contactService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Contact, error) {
	return s.store.Contacts().ListByUser(ctx, userID)
}
