package middleware

import (
	"net/http"
	"slices"

	"procurement/internal/domain"

	"go.uber.org/zap"
)

// RequirePartner only lets shop accounts through
func RequirePartner(logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRole([]domain.Role{domain.RoleShop}, logger)
}

// RequireRole middleware ensures the actor has one of the specified roles
func RequireRole(allowedRoles []domain.Role, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				logger.Warn("Actor not found in context")
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			if !slices.Contains(allowedRoles, actor.Role) {
				logger.Warn("User role not authorized",
					zap.String("role", string(actor.Role)),
					zap.String("path", r.URL.Path),
				)
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
