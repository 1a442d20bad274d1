package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"procurement/internal/domain"
	"procurement/internal/repository/memstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []domain.Job
}

func (n *recordingNotifier) Enqueue(job domain.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
}

func (n *recordingNotifier) ofKind(kind domain.JobKind) []domain.Job {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Job
	for _, j := range n.jobs {
		if j.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}

type fixture struct {
	store    *memstore.Storage
	notifier *recordingNotifier
	catalog  CatalogService
	baskets  BasketService
	orders   OrderService
	sync     SyncService
	tokens   TokenService
}

func newFixture() *fixture {
	store := memstore.New()
	notifier := &recordingNotifier{}
	logger := zap.NewNop()
	return &fixture{
		store:    store,
		notifier: notifier,
		catalog:  NewCatalogService(store),
		baskets:  NewBasketService(store),
		orders:   NewOrderService(store, notifier, logger),
		sync:     NewSyncService(store, notifier, logger),
		tokens:   NewTokenService(store, notifier, TokenTTLs{ConfirmEmail: time.Hour, ResetPassword: time.Hour}, logger),
	}
}

// openShop creates an accepting shop owned by a fresh partner
func (f *fixture) openShop(t testing.TB, name string) *domain.Shop {
	t.Helper()
	ctx := context.Background()
	owner := uuid.New()
	shop, err := f.catalog.EnsurePartnerShop(ctx, owner, name)
	require.NoError(t, err)
	shop, err = f.catalog.SetAcceptingOrders(ctx, owner, true)
	require.NoError(t, err)
	return shop
}

type row struct {
	sku      string
	name     string
	price    int64
	quantity int
}

// priceList builds a single-category price list
func priceList(shopName string, rows ...row) *domain.PriceList {
	list := &domain.PriceList{
		ShopName:   shopName,
		Categories: []domain.PriceListCategory{{ExternalID: "1", Name: "Parts"}},
	}
	for _, r := range rows {
		list.Items = append(list.Items, domain.PriceListItem{
			ExternalSKU: r.sku,
			CategoryRef: "1",
			Name:        r.name,
			Price:       r.price,
			PriceRRC:    r.price,
			Quantity:    r.quantity,
		})
	}
	return list
}

// listingsBySKU loads the shop's listings keyed by external SKU
func (f *fixture) listingsBySKU(t testing.TB, shopID uuid.UUID) map[string]*domain.Listing {
	t.Helper()
	listings, err := f.store.Listings().ListByShop(context.Background(), shopID)
	require.NoError(t, err)
	out := make(map[string]*domain.Listing, len(listings))
	for _, l := range listings {
		out[l.ExternalSKU] = l
	}
	return out
}

// buyer creates a buyer with a delivery contact
func (f *fixture) buyer(t testing.TB) (uuid.UUID, uuid.UUID) {
	t.Helper()
	buyerID := uuid.New()
	contact := &domain.Contact{ID: uuid.New(), UserID: buyerID, City: "Kazan", Street: "Baumana", House: "1", Phone: "+70000000000"}
	require.NoError(t, f.store.Contacts().Create(context.Background(), contact))
	return buyerID, contact.ID
}
