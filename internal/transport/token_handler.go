package transport

import (
	"net/http"

	"procurement/internal/domain"
	"procurement/internal/middleware"
	"procurement/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// VerifyTokenRequest carries a token value received out of band
type VerifyTokenRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

// VerifyTokenResponse names the subject the token was issued to
type VerifyTokenResponse struct {
	SubjectID string `json:"subject_id"`
	Purpose   string `json:"purpose"`
}

// TokenHandler exposes email confirmation and password reset tokens
type TokenHandler struct {
	tokenService service.TokenService
	logger       *zap.Logger
}

// NewTokenHandler creates a new TokenHandler
func NewTokenHandler(tokenService service.TokenService, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{
		tokenService: tokenService,
		logger:       logger,
	}
}

// RegisterRoutes registers the token routes. Verification is public and rate limited.
func (h *TokenHandler) RegisterRoutes(r chi.Router, authMiddleware, rateLimit func(http.Handler) http.Handler) {
	r.Route("/api/tokens/{purpose}", func(r chi.Router) {
		r.With(authMiddleware).Post("/", h.Issue)
		r.With(rateLimit).Post("/verify", h.Verify)
	})
}

func purposeParam(w http.ResponseWriter, r *http.Request) (domain.TokenPurpose, bool) {
	purpose := domain.TokenPurpose(chi.URLParam(r, "purpose"))
	if !purpose.Valid() {
		middleware.RespondWithError(w, http.StatusNotFound, "unknown token purpose")
		return "", false
	}
	return purpose, true
}

// Issue sends the caller a fresh token. The value travels only through the notification channel.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	purpose, ok := purposeParam(w, r)
	if !ok {
		return
	}

	if _, err := h.tokenService.Issue(r.Context(), a.ID, purpose, 0); err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// Verify consumes a token
func (h *TokenHandler) Verify(w http.ResponseWriter, r *http.Request) {
	purpose, ok := purposeParam(w, r)
	if !ok {
		return
	}

	var req VerifyTokenRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		respondDecodeError(w, err)
		return
	}

	subjectID, err := h.tokenService.VerifyAndConsume(r.Context(), req.Token, purpose)
	if err != nil {
		h.logger.Debug("Token verification failed", zap.String("purpose", string(purpose)), zap.Error(err))
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, VerifyTokenResponse{
		SubjectID: subjectID.String(),
		Purpose:   string(purpose),
	})
}
