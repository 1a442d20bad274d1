package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"procurement/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const actorKey contextKey = "actor"

// AccessClaims is the access token payload issued by the identity service
type AccessClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// NewAccessToken signs an HS256 access token for the actor
func NewAccessToken(secret string, actor domain.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: actor.ID.String(),
		Role:   string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// AuthMiddleware validates bearer access tokens and puts the caller's actor in the context
func AuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Debug("Missing authorization header")
				RespondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Debug("Invalid authorization header format")
				RespondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			claims := &AccessClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
				return []byte(jwtSecret), nil
			}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
			if err != nil {
				logger.Debug("Token validation failed", zap.Error(err))
				if errors.Is(err, jwt.ErrTokenExpired) {
					RespondWithError(w, http.StatusUnauthorized, "token expired")
				} else {
					RespondWithError(w, http.StatusUnauthorized, "invalid token")
				}
				return
			}
			if !token.Valid {
				RespondWithError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			actor, ok := claims.actor()
			if !ok {
				logger.Warn("Token carries unusable claims",
					zap.String("user_id", claims.UserID),
					zap.String("role", claims.Role),
				)
				RespondWithError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			logger.Debug("User authenticated",
				zap.String("user_id", actor.ID.String()),
				zap.String("role", string(actor.Role)),
			)

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func (c *AccessClaims) actor() (domain.Actor, bool) {
	id, err := uuid.Parse(c.UserID)
	if err != nil || id == uuid.Nil {
		return domain.Actor{}, false
	}
	role := domain.Role(c.Role)
	switch role {
	case domain.RoleBuyer, domain.RoleShop:
	default:
		return domain.Actor{}, false
	}
	return domain.Actor{ID: id, Role: role}, true
}

// WithActor stores the authenticated actor in ctx
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the authenticated actor, if any
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(domain.Actor)
	return actor, ok
}
