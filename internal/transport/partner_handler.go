package transport

import (
	"context"
	"net/http"

	"procurement/internal/domain"
	"procurement/internal/middleware"
	"procurement/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PriceListFetcher downloads and parses a partner price list
type PriceListFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*domain.PriceList, error)
}

// PartnerStateRequest toggles order intake
type PartnerStateRequest struct {
	AcceptingOrders *bool `json:"accepting_orders" validate:"required"`
}

// PartnerUpdateRequest points at a price list to import
type PartnerUpdateRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// PartnerUpdateResponse reports the outcome of a catalog sync
type PartnerUpdateResponse struct {
	ShopID uuid.UUID `json:"shop_id"`
	domain.SyncStats
}

// OrderStateRequest moves an order forward
type OrderStateRequest struct {
	State domain.OrderState `json:"state" validate:"required,oneof=confirmed assembled sent delivered canceled"`
}

// PartnerHandler serves partner accounts
type PartnerHandler struct {
	catalogService service.CatalogService
	syncService    service.SyncService
	orderService   service.OrderService
	fetcher        PriceListFetcher
	logger         *zap.Logger
}

// NewPartnerHandler creates a new PartnerHandler
func NewPartnerHandler(
	catalogService service.CatalogService,
	syncService service.SyncService,
	orderService service.OrderService,
	fetcher PriceListFetcher,
	logger *zap.Logger,
) *PartnerHandler {
	return &PartnerHandler{
		catalogService: catalogService,
		syncService:    syncService,
		orderService:   orderService,
		fetcher:        fetcher,
		logger:         logger,
	}
}

// RegisterRoutes registers the partner routes. Only shop accounts get through.
func (h *PartnerHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/partner", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequirePartner(h.logger))

		r.Get("/state", h.GetState)
		r.Post("/state", h.SetState)
		r.Post("/update", h.Update)
		r.Get("/orders", h.ListOrders)
		r.Post("/orders/{orderID}/state", h.TransitionOrder)
	})
}

// GetState returns the partner's shop
func (h *PartnerHandler) GetState(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	shop, err := h.catalogService.PartnerShop(r.Context(), a.ID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, shop)
}

// SetState opens or closes the partner's shop for new orders
func (h *PartnerHandler) SetState(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req PartnerStateRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	shop, err := h.catalogService.SetAcceptingOrders(r.Context(), a.ID, *req.AcceptingOrders)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.logger.Info("Shop state changed",
		zap.String("shop_id", shop.ID.String()),
		zap.Bool("accepting_orders", shop.AcceptingOrders),
	)
	middleware.RespondWithJSON(w, http.StatusOK, shop)
}

// Update imports a price list from a URL and replaces the shop's catalog
func (h *PartnerHandler) Update(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req PartnerUpdateRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	list, err := h.fetcher.Fetch(r.Context(), req.URL)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	shop, err := h.catalogService.EnsurePartnerShop(r.Context(), a.ID, list.ShopName)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	stats, err := h.syncService.SyncPartnerCatalog(r.Context(), shop.ID, list)
	if err != nil {
		h.logger.Info("Price list rejected",
			zap.String("shop_id", shop.ID.String()),
			zap.Error(err),
		)
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, PartnerUpdateResponse{ShopID: shop.ID, SyncStats: *stats})
}

// ListOrders returns orders containing the partner's listings, restricted to its own lines
func (h *PartnerHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	page, ok := pageParam(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid page")
		return
	}

	shop, err := h.catalogService.PartnerShop(r.Context(), a.ID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	orders, err := h.orderService.ListOrdersForPartner(r.Context(), shop.ID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, paginate(orders, page))
}

// TransitionOrder moves an order containing the partner's lines to a new state
func (h *PartnerHandler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req OrderStateRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	shop, err := h.catalogService.PartnerShop(r.Context(), a.ID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	order, err := h.orderService.TransitionOrder(r.Context(), a, orderID, req.State)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	view, _ := order.PartnerView(shop.ID)
	middleware.RespondWithJSON(w, http.StatusOK, view)
}
