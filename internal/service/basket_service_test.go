package service

import (
	"context"
	"testing"

	"procurement/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasketService(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	shop := f.openShop(t, "North")
	listings := f.stock(t, shop,
		row{sku: "A", name: "Gear", price: 100, quantity: 1},
		row{sku: "B", name: "Chain", price: 200, quantity: 0},
	)
	a, b := listings["A"], listings["B"]
	buyerID := uuid.New()

	t.Run("empty basket for a new buyer", func(t *testing.T) {
		basket, err := f.baskets.GetBasket(ctx, buyerID)
		require.NoError(t, err)
		assert.Empty(t, basket.Items)
		assert.Equal(t, domain.BasketOpen, basket.State)
	})

	t.Run("add accumulates and ignores stock", func(t *testing.T) {
		_, err := f.baskets.AddToBasket(ctx, buyerID, []domain.BasketLine{{ListingID: a.ID, Quantity: 2}})
		require.NoError(t, err)
		basket, err := f.baskets.AddToBasket(ctx, buyerID, []domain.BasketLine{
			{ListingID: a.ID, Quantity: 3},
			{ListingID: b.ID, Quantity: 4},
		})
		require.NoError(t, err)
		assert.Equal(t, 5, basket.Quantity(a.ID))
		assert.Equal(t, 4, basket.Quantity(b.ID))
		assert.Equal(t, int64(5*100+4*200), basket.Total())
	})

	t.Run("update replaces", func(t *testing.T) {
		basket, err := f.baskets.UpdateBasket(ctx, buyerID, []domain.BasketLine{{ListingID: a.ID, Quantity: 1}})
		require.NoError(t, err)
		assert.Equal(t, 1, basket.Quantity(a.ID))
		assert.Equal(t, 4, basket.Quantity(b.ID))
	})

	t.Run("add with non-positive quantity removes the line", func(t *testing.T) {
		other := uuid.New()
		for _, qty := range []int{0, -1} {
			_, err := f.baskets.AddToBasket(ctx, other, []domain.BasketLine{{ListingID: a.ID, Quantity: 3}})
			require.NoError(t, err)

			basket, err := f.baskets.AddToBasket(ctx, other, []domain.BasketLine{{ListingID: a.ID, Quantity: qty}})
			require.NoError(t, err)
			assert.Zero(t, basket.Quantity(a.ID), "qty %d", qty)
			assert.Empty(t, basket.Items, "qty %d", qty)
		}
	})

	t.Run("non-positive quantity removes the line", func(t *testing.T) {
		basket, err := f.baskets.UpdateBasket(ctx, buyerID, []domain.BasketLine{{ListingID: b.ID, Quantity: 0}})
		require.NoError(t, err)
		assert.Zero(t, basket.Quantity(b.ID))
		assert.Len(t, basket.Items, 1)
	})

	t.Run("unknown listing fails without partial changes", func(t *testing.T) {
		_, err := f.baskets.AddToBasket(ctx, buyerID, []domain.BasketLine{
			{ListingID: a.ID, Quantity: 10},
			{ListingID: uuid.New(), Quantity: 1},
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		basket, err := f.baskets.GetBasket(ctx, buyerID)
		require.NoError(t, err)
		assert.Equal(t, 1, basket.Quantity(a.ID))
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			basket, err := f.baskets.RemoveFromBasket(ctx, buyerID, []uuid.UUID{a.ID})
			require.NoError(t, err)
			assert.Empty(t, basket.Items)
		}
	})

	t.Run("clear closes the basket", func(t *testing.T) {
		_, err := f.baskets.AddToBasket(ctx, buyerID, []domain.BasketLine{{ListingID: a.ID, Quantity: 1}})
		require.NoError(t, err)
		require.NoError(t, f.baskets.ClearBasket(ctx, buyerID))
		require.NoError(t, f.baskets.ClearBasket(ctx, buyerID))

		basket, err := f.baskets.GetBasket(ctx, buyerID)
		require.NoError(t, err)
		assert.Empty(t, basket.Items)
	})

	t.Run("no lines", func(t *testing.T) {
		_, err := f.baskets.AddToBasket(ctx, buyerID, nil)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}
