package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"procurement/internal/domain"
	"procurement/internal/middleware"
	"procurement/internal/repository/memstore"
	"procurement/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "transport-secret"

type stubFetcher struct {
	list *domain.PriceList
	err  error
}

func (f *stubFetcher) Fetch(ctx context.Context, rawURL string) (*domain.PriceList, error) {
	return f.list, f.err
}

type jobLog struct {
	mu   sync.Mutex
	jobs []domain.Job
}

func (l *jobLog) Enqueue(job domain.Job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = append(l.jobs, job)
}

func (l *jobLog) last(kind domain.JobKind) (domain.Job, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.jobs) - 1; i >= 0; i-- {
		if l.jobs[i].Kind == kind {
			return l.jobs[i], true
		}
	}
	return domain.Job{}, false
}

type testAPI struct {
	router  chi.Router
	fetcher *stubFetcher
	jobs    *jobLog
}

func passthrough(next http.Handler) http.Handler { return next }

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memstore.New()
	jobs := &jobLog{}
	fetcher := &stubFetcher{}
	logger := zap.NewNop()

	catalog := service.NewCatalogService(store)
	orders := service.NewOrderService(store, jobs, logger)
	syncer := service.NewSyncService(store, jobs, logger)
	tokens := service.NewTokenService(store, jobs, service.TokenTTLs{ConfirmEmail: time.Hour, ResetPassword: time.Hour}, logger)

	auth := middleware.AuthMiddleware(testSecret, logger)
	r := chi.NewRouter()
	NewCatalogHandler(catalog, logger).RegisterRoutes(r)
	NewBasketHandler(service.NewBasketService(store), logger).RegisterRoutes(r, auth)
	NewContactHandler(service.NewContactService(store), logger).RegisterRoutes(r, auth)
	NewOrderHandler(orders, logger).RegisterRoutes(r, auth, passthrough)
	NewPartnerHandler(catalog, syncer, orders, fetcher, logger).RegisterRoutes(r, auth)
	NewTokenHandler(tokens, logger).RegisterRoutes(r, auth, passthrough)

	return &testAPI{router: r, fetcher: fetcher, jobs: jobs}
}

func bearer(t *testing.T, a domain.Actor) string {
	t.Helper()
	token, err := middleware.NewAccessToken(testSecret, a, time.Hour)
	require.NoError(t, err)
	return token
}

func (api *testAPI) do(t *testing.T, method, path string, who *domain.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if who != nil {
		req.Header.Set("Authorization", "Bearer "+bearer(t, *who))
	}
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorDetails(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	return decode[middleware.ErrorResponse](t, w).Error.Details
}

func samplePriceList() *domain.PriceList {
	return &domain.PriceList{
		ShopName:   "Acme",
		Categories: []domain.PriceListCategory{{ExternalID: "1", Name: "Phones"}},
		Items: []domain.PriceListItem{
			{ExternalSKU: "A1", CategoryRef: "1", Name: "Handset", Price: 100, PriceRRC: 120, Quantity: 3},
			{ExternalSKU: "B2", CategoryRef: "1", Name: "Charger", Price: 50, PriceRRC: 60, Quantity: 5},
		},
	}
}

// onboardPartner uploads the sample price list and optionally opens the shop
func (api *testAPI) onboardPartner(t *testing.T, open bool) (domain.Actor, map[string]domain.Listing) {
	t.Helper()
	partner := domain.Actor{ID: uuid.New(), Role: domain.RoleShop}
	api.fetcher.list = samplePriceList()

	w := api.do(t, http.MethodPost, "/api/partner/update", &partner, map[string]string{"url": "https://example.com/price.yaml"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stats := decode[PartnerUpdateResponse](t, w)
	assert.Equal(t, 2, stats.Inserted)

	if open {
		w = api.do(t, http.MethodPost, "/api/partner/state", &partner, map[string]bool{"accepting_orders": true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = api.do(t, http.MethodGet, "/api/products?shop_id="+stats.ShopID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[Page[domain.Listing]](t, w)
	bySKU := make(map[string]domain.Listing, len(page.Items))
	for _, l := range page.Items {
		bySKU[l.ExternalSKU] = l
	}
	return partner, bySKU
}

func (api *testAPI) newBuyer(t *testing.T) (domain.Actor, uuid.UUID) {
	t.Helper()
	buyer := domain.Actor{ID: uuid.New(), Role: domain.RoleBuyer}
	w := api.do(t, http.MethodPost, "/api/contacts", &buyer, ContactRequest{City: "Kazan", Street: "Baumana", House: "7", Phone: "+79990000000"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return buyer, decode[domain.Contact](t, w).ID
}

func (api *testAPI) fillBasket(t *testing.T, buyer domain.Actor, listingID uuid.UUID, qty int) {
	t.Helper()
	w := api.do(t, http.MethodPost, "/api/basket", &buyer, BasketLinesRequest{Items: []domain.BasketLine{{ListingID: listingID, Quantity: qty}}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestCheckoutFlow(t *testing.T) {
	api := newTestAPI(t)
	partner, listings := api.onboardPartner(t, true)
	buyer, contactID := api.newBuyer(t)

	api.fillBasket(t, buyer, listings["A1"].ID, 2)
	w := api.do(t, http.MethodGet, "/api/basket", &buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 200, decode[BasketResponse](t, w).Total)

	w = api.do(t, http.MethodPost, "/api/orders", &buyer, PlaceOrderRequest{ContactID: contactID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	placed := decode[domain.BuyerOrderView](t, w)
	assert.Equal(t, domain.OrderNew, placed.State)
	assert.EqualValues(t, 200, placed.Total)

	_, ok := api.jobs.last(domain.JobOrderPlaced)
	assert.True(t, ok)
	received, ok := api.jobs.last(domain.JobOrderReceived)
	require.True(t, ok)
	assert.Equal(t, partner.ID, received.RecipientID)

	w = api.do(t, http.MethodGet, "/api/basket", &buyer, nil)
	assert.Empty(t, decode[BasketResponse](t, w).Items)

	w = api.do(t, http.MethodGet, "/api/partner/orders", &partner, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	partnerOrders := decode[Page[domain.PartnerOrderView]](t, w)
	require.Len(t, partnerOrders.Items, 1)
	assert.EqualValues(t, 200, partnerOrders.Items[0].Subtotal)

	w = api.do(t, http.MethodPost, "/api/partner/orders/"+placed.ID.String()+"/state", &partner, OrderStateRequest{State: domain.OrderConfirmed})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.OrderConfirmed, decode[domain.PartnerOrderView](t, w).State)

	w = api.do(t, http.MethodGet, "/api/orders/"+placed.ID.String(), &buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.OrderConfirmed, decode[domain.BuyerOrderView](t, w).State)

	w = api.do(t, http.MethodPost, "/api/partner/orders/"+placed.ID.String()+"/state", &partner, OrderStateRequest{State: domain.OrderCanceled})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCheckoutRejections(t *testing.T) {
	t.Run("insufficient stock", func(t *testing.T) {
		api := newTestAPI(t)
		_, listings := api.onboardPartner(t, true)
		buyer, contactID := api.newBuyer(t)
		api.fillBasket(t, buyer, listings["A1"].ID, 4)

		w := api.do(t, http.MethodPost, "/api/orders", &buyer, PlaceOrderRequest{ContactID: contactID})
		require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
		details := errorDetails(t, w)
		assert.Equal(t, "insufficient_stock", details["reason"])
		assert.EqualValues(t, 3, details["available"])
	})

	t.Run("shop closed", func(t *testing.T) {
		api := newTestAPI(t)
		_, listings := api.onboardPartner(t, false)
		buyer, contactID := api.newBuyer(t)
		api.fillBasket(t, buyer, listings["A1"].ID, 1)

		w := api.do(t, http.MethodPost, "/api/orders", &buyer, PlaceOrderRequest{ContactID: contactID})
		require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
		assert.Equal(t, "shop_closed", errorDetails(t, w)["reason"])

		w = api.do(t, http.MethodGet, "/api/basket", &buyer, nil)
		assert.Len(t, decode[BasketResponse](t, w).Items, 1)
	})

	t.Run("empty basket", func(t *testing.T) {
		api := newTestAPI(t)
		buyer, contactID := api.newBuyer(t)

		w := api.do(t, http.MethodPost, "/api/orders", &buyer, PlaceOrderRequest{ContactID: contactID})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing contact id", func(t *testing.T) {
		api := newTestAPI(t)
		buyer, _ := api.newBuyer(t)

		w := api.do(t, http.MethodPost, "/api/orders", &buyer, map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestBasketEndpoints(t *testing.T) {
	api := newTestAPI(t)
	_, listings := api.onboardPartner(t, true)
	buyer, _ := api.newBuyer(t)
	a1, b2 := listings["A1"].ID, listings["B2"].ID

	api.fillBasket(t, buyer, a1, 1)
	api.fillBasket(t, buyer, a1, 2)
	api.fillBasket(t, buyer, b2, 1)

	w := api.do(t, http.MethodPut, "/api/basket", &buyer, BasketLinesRequest{Items: []domain.BasketLine{{ListingID: b2, Quantity: 4}}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	basket := decode[BasketResponse](t, w)
	assert.Equal(t, 3, basket.Quantity(a1))
	assert.Equal(t, 4, basket.Quantity(b2))
	assert.EqualValues(t, 3*100+4*50, basket.Total)

	w = api.do(t, http.MethodDelete, "/api/basket", &buyer, BasketRemoveRequest{ListingIDs: []uuid.UUID{a1}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[BasketResponse](t, w).Items, 1)

	w = api.do(t, http.MethodPost, "/api/basket", &buyer, BasketLinesRequest{Items: []domain.BasketLine{{ListingID: uuid.New(), Quantity: 1}}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPost, "/api/basket/clear", &buyer, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = api.do(t, http.MethodGet, "/api/basket", &buyer, nil)
	assert.Empty(t, decode[BasketResponse](t, w).Items)
}

func TestPartnerRoutesRequireShopRole(t *testing.T) {
	api := newTestAPI(t)
	buyer := domain.Actor{ID: uuid.New(), Role: domain.RoleBuyer}

	w := api.do(t, http.MethodGet, "/api/partner/state", &buyer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodGet, "/api/partner/state", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	partner := domain.Actor{ID: uuid.New(), Role: domain.RoleShop}
	w = api.do(t, http.MethodGet, "/api/partner/state", &partner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, "/api/basket", &partner, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPartnerUpdateRejectsBadRow(t *testing.T) {
	api := newTestAPI(t)
	partner := domain.Actor{ID: uuid.New(), Role: domain.RoleShop}
	list := samplePriceList()
	list.Items[1].CategoryRef = "9"
	api.fetcher.list = list

	w := api.do(t, http.MethodPost, "/api/partner/update", &partner, map[string]string{"url": "https://example.com/price.yaml"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	details := errorDetails(t, w)
	assert.Equal(t, "goods", details["section"])
	assert.EqualValues(t, 1, details["row"])
	assert.Equal(t, "category", details["field"])

	w = api.do(t, http.MethodPost, "/api/partner/update", &partner, map[string]string{"url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTokenEndpoints(t *testing.T) {
	api := newTestAPI(t)
	user := domain.Actor{ID: uuid.New(), Role: domain.RoleBuyer}

	w := api.do(t, http.MethodPost, "/api/tokens/confirm-email", &user, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "value")

	job, ok := api.jobs.last(domain.JobTokenIssued)
	require.True(t, ok)
	value := job.Payload.(domain.TokenIssuedPayload).Value

	w = api.do(t, http.MethodPost, "/api/tokens/reset-password/verify", nil, VerifyTokenRequest{Token: value})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/tokens/confirm-email/verify", nil, VerifyTokenRequest{Token: value})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, user.ID.String(), decode[VerifyTokenResponse](t, w).SubjectID)

	w = api.do(t, http.MethodPost, "/api/tokens/confirm-email/verify", nil, VerifyTokenRequest{Token: value})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "token_consumed", errorDetails(t, w)["reason"])

	w = api.do(t, http.MethodPost, "/api/tokens/unknown/verify", nil, VerifyTokenRequest{Token: value})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogEndpoints(t *testing.T) {
	api := newTestAPI(t)
	_, listings := api.onboardPartner(t, false)
	a1 := listings["A1"]

	w := api.do(t, http.MethodGet, "/api/shops", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[Page[domain.Shop]](t, w).TotalItems)

	w = api.do(t, http.MethodGet, "/api/shops?accepting=true", nil, nil)
	assert.Equal(t, 0, decode[Page[domain.Shop]](t, w).TotalItems)

	w = api.do(t, http.MethodGet, "/api/categories?shop_id="+a1.ShopID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	categories := decode[[]domain.Category](t, w)
	require.Len(t, categories, 1)
	assert.Equal(t, "Phones", categories[0].Name)

	w = api.do(t, http.MethodGet, "/api/shops/"+a1.ShopID.String()+"/products/"+a1.ProductID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, a1.ID, decode[domain.Listing](t, w).ID)

	w = api.do(t, http.MethodGet, "/api/products?shop_id=nope", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/products?page=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
