package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"procurement/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serveWithAuth(header string) int {
	handler := AuthMiddleware(testSecret, zap.NewNop())(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/basket", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Code
}

func signed(t *testing.T, claims jwt.Claims, method jwt.SigningMethod) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestAuthMiddleware_PutsActorInContext(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("a valid token yields its actor", prop.ForAll(
		func(role string) bool {
			want := domain.Actor{ID: uuid.New(), Role: domain.Role(role)}
			token, err := NewAccessToken(testSecret, want, time.Hour)
			if err != nil {
				return false
			}

			var got domain.Actor
			handler := AuthMiddleware(testSecret, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = ActorFrom(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			return w.Code == http.StatusOK && got == want
		},
		gen.OneConstOf("buyer", "shop"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestAuthMiddleware_RejectsMalformedHeaders(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("garbage after Bearer is rejected", prop.ForAll(
		func(token string) bool {
			return serveWithAuth("Bearer "+token) == http.StatusUnauthorized
		},
		gen.AnyString(),
	))

	properties.Property("headers without the Bearer scheme are rejected", prop.ForAll(
		func(token string) bool {
			return serveWithAuth(token) == http.StatusUnauthorized
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	valid := func(mut func(*AccessClaims)) *AccessClaims {
		c := &AccessClaims{
			UserID: uuid.NewString(),
			Role:   "buyer",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		mut(c)
		return c
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "expired", header: "Bearer " + signed(t, valid(func(c *AccessClaims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		}), jwt.SigningMethodHS256)},
		{name: "user id is not a uuid", header: "Bearer " + signed(t, valid(func(c *AccessClaims) {
			c.UserID = "42"
		}), jwt.SigningMethodHS256)},
		{name: "unknown role", header: "Bearer " + signed(t, valid(func(c *AccessClaims) {
			c.Role = "admin"
		}), jwt.SigningMethodHS256)},
		{name: "system role cannot be claimed", header: "Bearer " + signed(t, valid(func(c *AccessClaims) {
			c.Role = "system"
		}), jwt.SigningMethodHS256)},
		{name: "unsigned", header: "Bearer " + func() string {
			s, _ := jwt.NewWithClaims(jwt.SigningMethodNone, valid(func(*AccessClaims) {})).SignedString(jwt.UnsafeAllowNoneSignatureType)
			return s
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, serveWithAuth(tt.header))
		})
	}
}

func TestRequirePartner(t *testing.T) {
	handler := RequirePartner(zap.NewNop())(okHandler())

	tests := []struct {
		name  string
		actor *domain.Actor
		want  int
	}{
		{name: "partner", actor: &domain.Actor{ID: uuid.New(), Role: domain.RoleShop}, want: http.StatusOK},
		{name: "buyer", actor: &domain.Actor{ID: uuid.New(), Role: domain.RoleBuyer}, want: http.StatusForbidden},
		{name: "anonymous", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/partner/update", nil)
			if tt.actor != nil {
				req = req.WithContext(WithActor(req.Context(), *tt.actor))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
