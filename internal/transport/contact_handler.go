package transport

import (
	"net/http"

	"procurement/internal/domain"
	"procurement/internal/middleware"
	"procurement/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ContactRequest represents a new delivery contact
type ContactRequest struct {
	City      string `json:"city" validate:"required,max=50"`
	Street    string `json:"street" validate:"required,max=100"`
	House     string `json:"house" validate:"max=15"`
	Structure string `json:"structure" validate:"max=15"`
	Building  string `json:"building" validate:"max=15"`
	Apartment string `json:"apartment" validate:"max=15"`
	Phone     string `json:"phone" validate:"required,max=20"`
}

// ContactHandler handles the buyer's delivery contacts
type ContactHandler struct {
	contactService service.ContactService
	logger         *zap.Logger
}

// NewContactHandler creates a new ContactHandler
func NewContactHandler(contactService service.ContactService, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{
		contactService: contactService,
		logger:         logger,
	}
}

// RegisterRoutes registers the contact routes behind authentication
func (h *ContactHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/contacts", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.List)
		r.Post("/", h.Create)
	})
}

// List returns the caller's contacts
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	contacts, err := h.contactService.List(r.Context(), a.ID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if contacts == nil {
		contacts = []*domain.Contact{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, contacts)
}

// Create stores a new contact for the caller
func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req ContactRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	contact := &domain.Contact{
		UserID:    a.ID,
		City:      req.City,
		Street:    req.Street,
		House:     req.House,
		Structure: req.Structure,
		Building:  req.Building,
		Apartment: req.Apartment,
		Phone:     req.Phone,
	}
	if err := h.contactService.Create(r.Context(), contact); err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, contact)
}
