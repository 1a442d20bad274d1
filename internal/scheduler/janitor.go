// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TokenPurger deletes tokens that expired before a cutoff
type TokenPurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// Janitor purges tokens that have been expired for longer than the retention window
type Janitor struct {
	cron      *cron.Cron
	purger    TokenPurger
	retention time.Duration
	timeout   time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewJanitor registers the purge job on schedule, a standard five-field cron
// spec or a descriptor such as @hourly.
func NewJanitor(schedule string, purger TokenPurger, retention time.Duration, logger *zap.Logger) (*Janitor, error) {
	j := &Janitor{
		cron:      cron.New(),
		purger:    purger,
		retention: retention,
		timeout:   time.Minute,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.Named("janitor"),
	}
	if _, err := j.cron.AddFunc(schedule, j.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start runs one purge in the background and starts the schedule
func (j *Janitor) Start() {
	go j.RunOnce()
	j.cron.Start()
	j.logger.Info("Janitor started", zap.Duration("retention", j.retention))
}

// Stop halts the schedule and waits for a running purge, bounded by ctx
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce purges expired tokens now
func (j *Janitor) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	cutoff := j.now().Add(-j.retention)
	n, err := j.purger.PurgeExpired(ctx, cutoff)
	if err != nil {
		j.logger.Error("Token purge failed", zap.Error(err))
		return
	}
	j.logger.Debug("Token purge finished", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
}
