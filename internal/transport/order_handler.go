package transport

import (
	"net/http"

	"procurement/internal/domain"
	"procurement/internal/middleware"
	"procurement/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlaceOrderRequest represents the checkout request payload
type PlaceOrderRequest struct {
	ContactID uuid.UUID `json:"contact_id" validate:"required"`
}

// OrderHandler handles the buyer's orders
type OrderHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// RegisterRoutes registers the order routes. Checkout goes through rateLimit.
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware, rateLimit func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireRole([]domain.Role{domain.RoleBuyer}, h.logger))

		r.Get("/", h.List)
		r.Get("/{orderID}", h.Get)
		r.With(rateLimit).Post("/", h.Place)
	})
}

// Place converts the open basket into an order
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req PlaceOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	order, err := h.orderService.PlaceOrder(r.Context(), a.ID, req.ContactID)
	if err != nil {
		h.logger.Info("Checkout rejected",
			zap.String("user_id", a.ID.String()),
			zap.Error(err),
		)
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, order.BuyerView())
}

// List returns the caller's orders, newest first
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	page, ok := pageParam(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid page")
		return
	}

	orders, err := h.orderService.ListOrdersForBuyer(r.Context(), a.ID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, paginate(orders, page))
}

// Get returns one of the caller's orders
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	view, err := h.orderService.GetOrderForBuyer(r.Context(), a.ID, orderID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, view)
}
