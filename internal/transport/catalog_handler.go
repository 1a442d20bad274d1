package transport

import (
	"net/http"
	"strconv"

	"procurement/internal/domain"
	"procurement/internal/middleware"
	"procurement/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogHandler serves the public catalog
type CatalogHandler struct {
	catalogService service.CatalogService
	logger         *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalogService service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalogService: catalogService,
		logger:         logger,
	}
}

// RegisterRoutes registers the catalog routes. They need no authentication.
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/shops", h.ListShops)
	r.Get("/api/shops/{shopID}/products/{productID}", h.GetListing)
	r.Get("/api/categories", h.ListCategories)
	r.Get("/api/products", h.SearchProducts)
}

// ListShops lists shops, optionally only those accepting orders
func (h *CatalogHandler) ListShops(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid page")
		return
	}
	onlyAccepting, _ := strconv.ParseBool(r.URL.Query().Get("accepting"))

	shops, err := h.catalogService.ListShops(r.Context(), onlyAccepting)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, paginate(shops, page))
}

// ListCategories lists categories, optionally those stocked by one shop
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	shopID, ok := uuidParam(r, "shop_id")
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid shop_id")
		return
	}

	categories, err := h.catalogService.ListCategories(r.Context(), shopID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if categories == nil {
		categories = []*domain.Category{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, categories)
}

// SearchProducts lists listings filtered by shop and category
func (h *CatalogHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid page")
		return
	}
	shopID, ok := uuidParam(r, "shop_id")
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid shop_id")
		return
	}
	categoryID, ok := uuidParam(r, "category_id")
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid category_id")
		return
	}
	onlyAccepting, _ := strconv.ParseBool(r.URL.Query().Get("accepting"))

	listings, err := h.catalogService.SearchListings(r.Context(), domain.ListingFilter{
		ShopID:        shopID,
		CategoryID:    categoryID,
		OnlyAccepting: onlyAccepting,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, paginate(listings, page))
}

// GetListing returns one shop's offer for a product
func (h *CatalogHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	shopID, err := uuid.Parse(chi.URLParam(r, "shopID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid shop id")
		return
	}
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	listing, err := h.catalogService.GetListing(r.Context(), shopID, productID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, listing)
}
