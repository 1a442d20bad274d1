package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"procurement/internal/domain"
	"procurement/internal/repository"

	"github.com/google/uuid"
)

// CatalogService defines the read side of the catalog and partner shop settings
type CatalogService interface {
	ListShops(ctx context.Context, onlyAccepting bool) ([]*domain.Shop, error)
	ListCategories(ctx context.Context, shopID *uuid.UUID) ([]*domain.Category, error)
	SearchListings(ctx context.Context, filter domain.ListingFilter) ([]*domain.Listing, error)
	GetListing(ctx context.Context, shopID, productID uuid.UUID) (*domain.Listing, error)
	PartnerShop(ctx context.Context, ownerID uuid.UUID) (*domain.Shop, error)
	EnsurePartnerShop(ctx context.Context, ownerID uuid.UUID, name string) (*domain.Shop, error)
	SetAcceptingOrders(ctx context.Context, ownerID uuid.UUID, accepting bool) (*domain.Shop, error)
}

type catalogService struct {
	store repository.Storage
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(store repository.Storage) CatalogService {
	return &catalogService{store: store}
}

func (s *catalogService) ListShops(ctx context.Context, onlyAccepting bool) ([]*domain.Shop, error) {
	shops, err := s.store.Shops().List(ctx, onlyAccepting)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	return shops, nil
}

func (s *catalogService) ListCategories(ctx context.Context, shopID *uuid.UUID) ([]*domain.Category, error) {
	var (
		cats []*domain.Category
		err  error
	)
	if shopID != nil {
		cats, err = s.store.Categories().ListByShop(ctx, *shopID)
	} else {
		cats, err = s.store.Categories().List(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return cats, nil
}

func (s *catalogService) SearchListings(ctx context.Context, filter domain.ListingFilter) ([]*domain.Listing, error) {
	listings, err := s.store.Listings().Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	return listings, nil
}

// GetListing returns the shop's offer for a product. When the shop lists the
// product under several SKUs the lowest SKU wins.
func (s *catalogService) GetListing(ctx context.Context, shopID, productID uuid.UUID) (*domain.Listing, error) {
	return s.store.Listings().FindByShopAndProduct(ctx, shopID, productID)
}

func (s *catalogService) PartnerShop(ctx context.Context, ownerID uuid.UUID) (*domain.Shop, error) {
	return s.store.Shops().FindByOwner(ctx, ownerID)
}

// EnsurePartnerShop returns the partner's shop, creating a closed one on first use
func (s *catalogService) EnsurePartnerShop(ctx context.Context, ownerID uuid.UUID, name string) (*domain.Shop, error) {
	shop, err := s.store.Shops().FindByOwner(ctx, ownerID)
	if err == nil {
		return shop, nil
	}
	if !errors.Is(err, repository.ErrShopNotFound) {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: shop name is required", domain.ErrValidation)
	}
	shop = &domain.Shop{ID: uuid.New(), OwnerID: ownerID, Name: name}
	if err := s.store.Shops().Create(ctx, shop); err != nil {
		if errors.Is(err, repository.ErrShopAlreadyExists) {
			return s.store.Shops().FindByOwner(ctx, ownerID)
		}
		return nil, fmt.Errorf("failed to create shop: %w", err)
	}
	return shop, nil
}

func (s *catalogService) SetAcceptingOrders(ctx context.Context, ownerID uuid.UUID, accepting bool) (*domain.Shop, error) {
	shop, err := s.store.Shops().FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.store.Shops().SetAcceptingOrders(ctx, shop.ID, accepting)
}
