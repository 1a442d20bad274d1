package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"procurement/internal/config"
	"procurement/internal/database"
	"procurement/internal/logger"
	"procurement/internal/notify"
	"procurement/internal/pricelist"
	"procurement/internal/repository"
	"procurement/internal/repository/memstore"
	"procurement/internal/scheduler"
	"procurement/internal/server"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

type closer interface {
	Close() error
}

// openStorage picks the persistence driver. The returned cleanup releases it.
func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Storage, func(context.Context) map[string]string, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		log.Warn("Using in-memory store, data is lost on restart")
		return memstore.New(), nil, func() {}, nil
	case "postgres":
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.RunMigrations(pool, cfg.Store.MigrationsDir, log); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		storage := repository.NewPostgresStorage(pool, cfg.Store.TxMaxRetries, cfg.Store.TxRetryBackoff, log)
		health := func(ctx context.Context) map[string]string { return database.Health(ctx, pool) }
		return storage, health, storage.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// openSender picks the notification transport
func openSender(cfg config.NotifyConfig, log *zap.Logger) (notify.Sender, closer, error) {
	switch cfg.Transport {
	case "log":
		return notify.NewLogSender(log), nil, nil
	case "kafka":
		s := notify.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic)
		return s, s, nil
	case "amqp":
		s, err := notify.NewAMQPSender(cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown notification transport %q", cfg.Transport)
	}
}

func migrationStatus(cfg *config.Config, log *zap.Logger) error {
	pool, err := database.Connect(context.Background(), cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	return database.GetMigrationStatus(pool, cfg.Store.MigrationsDir, log)
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, health, closeStorage, err := openStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStorage()

	sender, senderCloser, err := openSender(cfg.Notify, log.Named("sender"))
	if err != nil {
		return fmt.Errorf("failed to open notification transport: %w", err)
	}
	if senderCloser != nil {
		defer senderCloser.Close()
	}

	dispatcher := notify.NewDispatcher(sender, storage.DeadLetters(), notify.Config{
		Workers:        cfg.Notify.Workers,
		MaxAttempts:    cfg.Notify.MaxAttempts,
		InitialBackoff: cfg.Notify.InitialBackoff,
		MaxBackoff:     cfg.Notify.MaxBackoff,
		AttemptTimeout: cfg.Notify.AttemptTimeout,
	}, log)
	dispatcher.Start(ctx)

	var redisClient *redis.Client
	if cfg.RateLimit.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	srv := server.NewServer(cfg, log, server.Dependencies{
		Storage:  storage,
		Notifier: dispatcher,
		Fetcher:  pricelist.NewFetcher(cfg.PriceList.FetchTimeout, cfg.PriceList.MaxBytes),
		Redis:    redisClient,
		Health:   health,
	})

	janitor, err := scheduler.NewJanitor(cfg.Janitor.Schedule, srv.Tokens(), cfg.Token.Retention, log)
	if err != nil {
		return err
	}
	janitor.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
		}
		if err := janitor.Stop(shutdownCtx); err != nil {
			log.Error("Janitor did not stop in time", zap.Error(err))
		}
		// Handlers are done, so nothing enqueues any more.
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			log.Error("Notification queue not drained", zap.Error(err))
		}
		return srv.Close()
	})

	return g.Wait()
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	if len(os.Args) > 1 && os.Args[1] == "migrate-status" {
		if err := migrationStatus(cfg, log); err != nil {
			log.Fatal("Failed to read migration status", zap.Error(err))
		}
		return
	}

	log.Info("Starting procurement API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver),
		zap.String("notify", cfg.Notify.Transport),
	)

	if err := run(cfg, log); err != nil {
		log.Fatal("Server exited with error", zap.Error(err))
	}
	log.Info("Graceful shutdown complete")
}
