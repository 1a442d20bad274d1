package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"procurement/internal/config"
	custommiddleware "procurement/internal/middleware"
	"procurement/internal/repository"
	"procurement/internal/service"
	"procurement/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies are the collaborators built by the process entry point
type Dependencies struct {
	Storage  repository.Storage
	Notifier service.Notifier
	Fetcher  transport.PriceListFetcher
	// Redis backs rate limiting. Nil disables it.
	Redis *redis.Client
	// Health reports backing store status for /health. Optional.
	Health func(ctx context.Context) map[string]string
}

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	redis  *redis.Client
	tokens service.TokenService
}

func NewServer(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Server {
	router := chi.NewRouter()

	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.Env != "production"))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		status := http.StatusOK
		if deps.Health != nil {
			store := deps.Health(r.Context())
			body["store"] = store
			if store["status"] == "down" {
				body["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		custommiddleware.RespondWithJSON(w, status, body)
	})

	// Initialize services
	catalogService := service.NewCatalogService(deps.Storage)
	basketService := service.NewBasketService(deps.Storage)
	contactService := service.NewContactService(deps.Storage)
	orderService := service.NewOrderService(deps.Storage, deps.Notifier, logger.Named("orders"))
	syncService := service.NewSyncService(deps.Storage, deps.Notifier, logger.Named("sync"))
	tokenService := service.NewTokenService(deps.Storage, deps.Notifier, service.TokenTTLs{
		ConfirmEmail:  cfg.Token.ConfirmEmailTTL,
		ResetPassword: cfg.Token.ResetPasswordTTL,
	}, logger.Named("tokens"))

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	checkoutLimit := rateLimiter(deps.Redis, cfg.RateLimit, "ratelimit:checkout", logger)
	verifyLimit := rateLimiter(deps.Redis, cfg.RateLimit, "ratelimit:verify", logger)

	// Register routes
	transport.NewCatalogHandler(catalogService, logger).RegisterRoutes(router)
	transport.NewBasketHandler(basketService, logger).RegisterRoutes(router, authMiddleware)
	transport.NewContactHandler(contactService, logger).RegisterRoutes(router, authMiddleware)
	transport.NewOrderHandler(orderService, logger).RegisterRoutes(router, authMiddleware, checkoutLimit)
	transport.NewPartnerHandler(catalogService, syncService, orderService, deps.Fetcher, logger).
		RegisterRoutes(router, authMiddleware)
	transport.NewTokenHandler(tokenService, logger).RegisterRoutes(router, authMiddleware, verifyLimit)

	return &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		config: cfg,
		logger: logger,
		redis:  deps.Redis,
		tokens: tokenService,
	}
}

func rateLimiter(client *redis.Client, cfg config.RateLimitConfig, prefix string, logger *zap.Logger) func(http.Handler) http.Handler {
	if client == nil || !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return custommiddleware.RateLimitMiddleware(client, custommiddleware.RateLimitConfig{
		RequestsPerWindow: cfg.RequestsPerWindow,
		Window:            cfg.Window,
		KeyPrefix:         prefix,
	}, logger)
}

// Tokens exposes the token engine for the maintenance janitor
func (s *Server) Tokens() service.TokenService {
	return s.tokens
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
	return nil
}
