package database

import (
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// gooseLogger routes goose output through zap
type gooseLogger struct {
	sugar *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...any) { l.sugar.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...any) { l.sugar.Fatalf(format, v...) }

func openMigrator(pool *pgxpool.Pool, logger *zap.Logger) (*sql.DB, error) {
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	goose.SetLogger(gooseLogger{sugar: logger.Named("migrations").Sugar()})
	return stdlib.OpenDBFromPool(pool), nil
}

// RunMigrations applies every pending migration in migrationsDir
func RunMigrations(pool *pgxpool.Pool, migrationsDir string, logger *zap.Logger) error {
	db, err := openMigrator(pool, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := goose.Up(db, migrationsDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.Info("Schema is up to date", zap.Int64("version", version), zap.String("dir", migrationsDir))
	return nil
}

// GetMigrationStatus prints the state of every migration
func GetMigrationStatus(pool *pgxpool.Pool, migrationsDir string, logger *zap.Logger) error {
	db, err := openMigrator(pool, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return goose.Status(db, migrationsDir)
}
