package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"procurement/internal/domain"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedListing(t *testing.T, s *Storage, qty int) (*domain.Shop, *domain.Listing) {
	t.Helper()
	ctx := context.Background()

	shop := &domain.Shop{ID: uuid.New(), OwnerID: uuid.New(), Name: "Svyaznoy", AcceptingOrders: true}
	require.NoError(t, s.Shops().Create(ctx, shop))
	cat, err := s.Categories().Resolve(ctx, "Smartphones")
	require.NoError(t, err)
	prod, err := s.Products().Resolve(ctx, "iPhone XS", cat.ID)
	require.NoError(t, err)

	listing := &domain.Listing{ProductID: prod.ID, ExternalSKU: "4216292", Price: 110000, Quantity: qty}
	_, err = s.Listings().ReplaceForShop(ctx, shop.ID, []*domain.Listing{listing})
	require.NoError(t, err)
	return shop, listing
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := New()
	_, listing := seedListing(t, s, 5)
	boom := errors.New("boom")

	err := s.WithinTx(context.Background(), func(tx repository.Store) error {
		if _, err := tx.Listings().Reserve(context.Background(), listing.ID, 3); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Listings().FindByID(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	s := New()
	_, listing := seedListing(t, s, 5)

	assert.Panics(t, func() {
		_ = s.WithinTx(context.Background(), func(tx repository.Store) error {
			_, _ = tx.Listings().Reserve(context.Background(), listing.ID, 5)
			panic("unexpected")
		})
	})

	got, err := s.Listings().FindByID(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)
}

func TestReserveIsCompareAndDecrement(t *testing.T) {
	s := New()
	_, listing := seedListing(t, s, 3)
	ctx := context.Background()

	_, err := s.Listings().Reserve(ctx, listing.ID, 2)
	require.NoError(t, err)

	_, err = s.Listings().Reserve(ctx, listing.ID, 2)
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.Available)

	_, err = s.Listings().Reserve(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReplaceForShopKeepsMatchedIDsAndCascadesBasketLines(t *testing.T) {
	s := New()
	ctx := context.Background()
	shop, listing := seedListing(t, s, 3)

	basket, err := s.Baskets().Open(ctx, uuid.New())
	require.NoError(t, err)
	require.NoError(t, s.Baskets().SetItem(ctx, basket.ID, listing.ID, 1))

	updated := &domain.Listing{ProductID: listing.ProductID, ExternalSKU: listing.ExternalSKU, Price: 120000, Quantity: 7}
	stats, err := s.Listings().ReplaceForShop(ctx, shop.ID, []*domain.Listing{updated})
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStats{Updated: 1}, stats)
	assert.Equal(t, listing.ID, updated.ID)

	b, err := s.Baskets().FindOpen(ctx, basket.UserID)
	require.NoError(t, err)
	require.Len(t, b.Items, 1)
	assert.Equal(t, int64(120000), b.Items[0].Price)

	stats, err = s.Listings().ReplaceForShop(ctx, shop.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Removed)

	b, err = s.Baskets().FindOpen(ctx, basket.UserID)
	require.NoError(t, err)
	assert.Empty(t, b.Items)
}

func TestReplaceForShopRejectsDuplicateKeys(t *testing.T) {
	s := New()
	ctx := context.Background()
	shop, listing := seedListing(t, s, 3)

	dup := []*domain.Listing{
		{ProductID: listing.ProductID, ExternalSKU: "A", Quantity: 1},
		{ProductID: listing.ProductID, ExternalSKU: "A", Quantity: 2},
	}
	_, err := s.Listings().ReplaceForShop(ctx, shop.ID, dup)
	require.ErrorIs(t, err, repository.ErrDuplicateListing)

	all, err := s.Listings().ListByShop(ctx, shop.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, listing.ID, all[0].ID)
}

func TestTokenConsumeSucceedsOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	tok := &domain.Token{
		ID: uuid.New(), SubjectID: uuid.New(), Purpose: domain.PurposeConfirmEmail,
		ValueHash: "abc", IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, s.Tokens().Create(ctx, tok))

	second := *tok
	second.ID, second.ValueHash = uuid.New(), "def"
	require.ErrorIs(t, s.Tokens().Create(ctx, &second), repository.ErrLiveTokenExists)

	_, err := s.Tokens().Consume(ctx, "abc", domain.PurposeConfirmEmail, now)
	require.NoError(t, err)
	_, err = s.Tokens().Consume(ctx, "abc", domain.PurposeConfirmEmail, now)
	require.ErrorIs(t, err, repository.ErrTokenNotFound)
}
