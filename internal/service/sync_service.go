package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"procurement/internal/domain"
	"procurement/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncService defines the interface for partner catalog synchronization
type SyncService interface {
	SyncPartnerCatalog(ctx context.Context, shopID uuid.UUID, list *domain.PriceList) (*domain.SyncStats, error)
}

type syncService struct {
	store    repository.Storage
	notifier Notifier
	validate *validator.Validate
	logger   *zap.Logger
}

// NewSyncService creates a new instance of SyncService
func NewSyncService(store repository.Storage, notifier Notifier, logger *zap.Logger) SyncService {
	return &syncService{
		store:    store,
		notifier: notifier,
		validate: validator.New(),
		logger:   logger,
	}
}

// plannedListing is a validated price-list row with its category resolved by name
type plannedListing struct {
	item         domain.PriceListItem
	categoryName string
}

// SyncPartnerCatalog replaces the shop's listings with the price list. The
// whole list is validated before the store is touched; any bad row rejects
// the submission and leaves the catalog as it was.
func (s *syncService) SyncPartnerCatalog(ctx context.Context, shopID uuid.UUID, list *domain.PriceList) (*domain.SyncStats, error) {
	if list == nil {
		return nil, fmt.Errorf("%w: empty price list", domain.ErrValidation)
	}
	plan, err := s.plan(list)
	if err != nil {
		return nil, err
	}

	var (
		stats   domain.SyncStats
		ownerID uuid.UUID
	)
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		shop, err := tx.Shops().LockForSync(ctx, shopID)
		if err != nil {
			return err
		}
		ownerID = shop.OwnerID

		if name := strings.TrimSpace(list.ShopName); name != "" && name != shop.Name {
			if err := tx.Shops().Rename(ctx, shop.ID, name); err != nil {
				return err
			}
		}

		categoryIDs := make(map[string]uuid.UUID)
		linked := make([]uuid.UUID, 0)
		for _, p := range plan {
			if _, ok := categoryIDs[p.categoryName]; ok {
				continue
			}
			cat, err := tx.Categories().Resolve(ctx, p.categoryName)
			if err != nil {
				return err
			}
			categoryIDs[p.categoryName] = cat.ID
			linked = append(linked, cat.ID)
		}
		if err := tx.Shops().ReplaceCategories(ctx, shop.ID, linked); err != nil {
			return err
		}

		listings := make([]*domain.Listing, 0, len(plan))
		for _, p := range plan {
			categoryID := categoryIDs[p.categoryName]
			product, err := tx.Products().Resolve(ctx, p.item.Name, categoryID)
			if err != nil {
				return err
			}
			listings = append(listings, &domain.Listing{
				ShopID:      shop.ID,
				ProductID:   product.ID,
				ProductName: product.Name,
				CategoryID:  categoryID,
				ExternalSKU: p.item.ExternalSKU,
				Model:       p.item.Model,
				Price:       p.item.Price,
				PriceRRC:    p.item.PriceRRC,
				Quantity:    p.item.Quantity,
				Parameters:  p.item.Parameters,
			})
		}

		stats, err = tx.Listings().ReplaceForShop(ctx, shop.ID, listings)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateListing) {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		return nil, err
	}

	s.logger.Info("Partner catalog synchronized",
		zap.String("shop_id", shopID.String()),
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("removed", stats.Removed),
	)
	s.notifier.Enqueue(domain.NewJob(domain.JobCatalogUpdated, ownerID, domain.CatalogUpdatedPayload{
		ShopID:    shopID,
		SyncStats: stats,
	}))
	return &stats, nil
}

// plan validates every row and resolves partner category references
func (s *syncService) plan(list *domain.PriceList) ([]plannedListing, error) {
	categories := make(map[string]string, len(list.Categories))
	for i, c := range list.Categories {
		c.ExternalID = strings.TrimSpace(c.ExternalID)
		c.Name = strings.TrimSpace(c.Name)
		if err := s.validate.Struct(c); err != nil {
			return nil, rowError("categories", i, err)
		}
		if _, dup := categories[c.ExternalID]; dup {
			return nil, &domain.RowError{Section: "categories", Row: i, Field: "id", Reason: fmt.Sprintf("duplicate category id %q", c.ExternalID)}
		}
		categories[c.ExternalID] = c.Name
	}

	type identity struct {
		name, category, sku string
	}
	seen := make(map[identity]int, len(list.Items))
	plan := make([]plannedListing, 0, len(list.Items))
	for i, item := range list.Items {
		item.ExternalSKU = strings.TrimSpace(item.ExternalSKU)
		item.CategoryRef = strings.TrimSpace(item.CategoryRef)
		item.Name = strings.TrimSpace(item.Name)
		item.Model = strings.TrimSpace(item.Model)

		if err := s.validate.Struct(item); err != nil {
			return nil, rowError("goods", i, err)
		}
		categoryName, ok := categories[item.CategoryRef]
		if !ok {
			return nil, &domain.RowError{Section: "goods", Row: i, Field: "category", Reason: fmt.Sprintf("unknown category %q", item.CategoryRef)}
		}

		key := identity{name: item.Name, category: categoryName, sku: item.ExternalSKU}
		if first, dup := seen[key]; dup {
			return nil, &domain.RowError{Section: "goods", Row: i, Reason: fmt.Sprintf("duplicates row %d", first)}
		}
		seen[key] = i

		plan = append(plan, plannedListing{item: item, categoryName: categoryName})
	}
	return plan, nil
}

func rowError(section string, row int, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &domain.RowError{Section: section, Row: row, Reason: err.Error()}
	}
	fe := verrs[0]
	return &domain.RowError{Section: section, Row: row, Field: fieldName(fe.Field()), Reason: fieldReason(fe)}
}

var priceListFields = map[string]string{
	"ExternalID":  "id",
	"Name":        "name",
	"ExternalSKU": "id",
	"CategoryRef": "category",
	"Model":       "model",
	"Price":       "price",
	"PriceRRC":    "price_rrc",
	"Quantity":    "quantity",
	"Parameters":  "parameters",
}

func fieldName(f string) string {
	if name, ok := priceListFields[f]; ok {
		return name
	}
	return strings.ToLower(f)
}

func fieldReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
