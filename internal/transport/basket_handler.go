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

// BasketLinesRequest carries basket lines for add and update
type BasketLinesRequest struct {
	Items []domain.BasketLine `json:"items" validate:"required,min=1,dive"`
}

// BasketRemoveRequest lists the listings to drop from the basket
type BasketRemoveRequest struct {
	ListingIDs []uuid.UUID `json:"listing_ids" validate:"required,min=1"`
}

// BasketResponse is the basket with its current total
type BasketResponse struct {
	*domain.Basket
	Total int64 `json:"total"`
}

// BasketHandler handles the buyer's draft basket
type BasketHandler struct {
	basketService service.BasketService
	logger        *zap.Logger
}

// NewBasketHandler creates a new BasketHandler
func NewBasketHandler(basketService service.BasketService, logger *zap.Logger) *BasketHandler {
	return &BasketHandler{
		basketService: basketService,
		logger:        logger,
	}
}

// RegisterRoutes registers the basket routes behind authentication
func (h *BasketHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/basket", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireRole([]domain.Role{domain.RoleBuyer}, h.logger))

		r.Get("/", h.Get)
		r.Post("/", h.Add)
		r.Put("/", h.Update)
		r.Delete("/", h.Remove)
		r.Post("/clear", h.Clear)
	})
}

func (h *BasketHandler) respond(w http.ResponseWriter, b *domain.Basket) {
	if b.Items == nil {
		b.Items = []domain.BasketItem{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, BasketResponse{Basket: b, Total: b.Total()})
}

// Get returns the open basket, empty when none exists yet
func (h *BasketHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	basket, err := h.basketService.GetBasket(r.Context(), a.ID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.respond(w, basket)
}

// Add adds quantities to basket lines
func (h *BasketHandler) Add(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, h.basketService.AddToBasket)
}

// Update sets basket line quantities
func (h *BasketHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, h.basketService.UpdateBasket)
}

type basketUpsert func(ctx context.Context, userID uuid.UUID, lines []domain.BasketLine) (*domain.Basket, error)

func (h *BasketHandler) upsert(w http.ResponseWriter, r *http.Request, apply basketUpsert) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req BasketLinesRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Basket validation failed", zap.Error(err))
		respondDecodeError(w, err)
		return
	}

	basket, err := apply(r.Context(), a.ID, req.Items)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.respond(w, basket)
}

// Remove drops lines from the basket
func (h *BasketHandler) Remove(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req BasketRemoveRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	basket, err := h.basketService.RemoveFromBasket(r.Context(), a.ID, req.ListingIDs)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	h.respond(w, basket)
}

// Clear discards the open basket
func (h *BasketHandler) Clear(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	if err := h.basketService.ClearBasket(r.Context(), a.ID); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
