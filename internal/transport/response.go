package transport

import (
	"errors"
	"net/http"
	"strconv"

	"procurement/internal/domain"
	"procurement/internal/middleware"
	"procurement/internal/pricelist"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PageSize is the number of items per page in list responses
const PageSize = 20

// Page is one slice of a list response
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// paginate cuts the requested page out of items. Pages start at 1.
func paginate[T any](items []T, page int) Page[T] {
	if page < 1 {
		page = 1
	}
	total := len(items)
	start := (page - 1) * PageSize
	if start > total {
		start = total
	}
	end := min(start+PageSize, total)

	out := items[start:end]
	if out == nil {
		out = []T{}
	}
	return Page[T]{
		Items:      out,
		Page:       page,
		PageSize:   PageSize,
		TotalItems: total,
		TotalPages: (total + PageSize - 1) / PageSize,
	}
}

func pageParam(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}

// uuidParam parses an optional uuid query parameter
func uuidParam(r *http.Request, name string) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	return &id, true
}

// respondDecodeError answers a request whose body failed DecodeAndValidate
func respondDecodeError(w http.ResponseWriter, err error) {
	if fields := middleware.FormatValidationErrors(err); len(fields) > 0 {
		middleware.RespondWithValidationErrors(w, fields)
		return
	}
	middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
}

// respondError maps core errors onto HTTP responses
func respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var (
		stockErr  *domain.InsufficientStockError
		closedErr *domain.ShopClosedError
		rowErr    *domain.RowError
		trErr     *domain.TransitionError
	)

	switch {
	case errors.As(err, &stockErr):
		middleware.RespondWithErrorDetails(w, http.StatusConflict, "insufficient stock", map[string]any{
			"reason":     "insufficient_stock",
			"listing_id": stockErr.ListingID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
	case errors.As(err, &closedErr):
		middleware.RespondWithErrorDetails(w, http.StatusConflict, "shop is not accepting orders", map[string]any{
			"reason":  "shop_closed",
			"shop_id": closedErr.ShopID,
		})
	case errors.As(err, &rowErr):
		details := map[string]any{"section": rowErr.Section, "row": rowErr.Row, "reason": rowErr.Reason}
		if rowErr.Field != "" {
			details["field"] = rowErr.Field
		}
		middleware.RespondWithErrorDetails(w, http.StatusUnprocessableEntity, "price list rejected", details)
	case errors.As(err, &trErr):
		middleware.RespondWithErrorDetails(w, http.StatusConflict, trErr.Error(), map[string]any{
			"from": trErr.From,
			"to":   trErr.To,
		})
	case errors.Is(err, domain.ErrValidation):
		middleware.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrEmptyBasket):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		middleware.RespondWithError(w, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, domain.ErrTokenExpired):
		middleware.RespondWithErrorDetails(w, http.StatusGone, err.Error(), map[string]any{"reason": "token_expired"})
	case errors.Is(err, domain.ErrTokenAlreadyConsumed):
		middleware.RespondWithErrorDetails(w, http.StatusConflict, err.Error(), map[string]any{"reason": "token_consumed"})
	case errors.Is(err, domain.ErrTokenInvalid):
		middleware.RespondWithErrorDetails(w, http.StatusBadRequest, err.Error(), map[string]any{"reason": "token_invalid"})
	case errors.Is(err, pricelist.ErrFetch):
		logger.Warn("Price list download failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadGateway, "could not download price list")
	case errors.Is(err, domain.ErrTransientStore):
		logger.Error("Store unavailable", zap.Error(err))
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "service temporarily unavailable, retry later")
	default:
		logger.Error("Unhandled error", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

// actor returns the authenticated caller. Routes using it sit behind AuthMiddleware.
func actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	a, ok := middleware.ActorFrom(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "authentication required")
	}
	return a, ok
}
