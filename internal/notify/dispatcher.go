// Package notify delivers notification jobs out of band with at-least-once
// semantics. Jobs for the same recipient share a worker, which keeps their
// delivery order best-effort FIFO.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"procurement/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

var ErrDispatcherStopped = errors.New("dispatcher is stopped")

// Sender hands a job to the delivery transport
type Sender interface {
	Send(ctx context.Context, job domain.Job) error
}

// DeadLetterSink stores jobs that exhausted their retries
type DeadLetterSink interface {
	Save(ctx context.Context, letter *domain.DeadLetter) error
}

// Permanent marks an error as not worth retrying
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Config controls worker count and the retry policy
type Config struct {
	Workers        int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	return c
}

// Dispatcher is a fixed pool of workers, each draining its own unbounded queue
type Dispatcher struct {
	sender      Sender
	deadLetters DeadLetterSink
	cfg         Config
	logger      *zap.Logger

	shards  []*queue
	wg      conc.WaitGroup
	stopped atomic.Bool
	runCtx  context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

// NewDispatcher creates a dispatcher. Call Start before enqueueing.
func NewDispatcher(sender Sender, deadLetters DeadLetterSink, cfg Config, logger *zap.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	shards := make([]*queue, cfg.Workers)
	for i := range shards {
		shards[i] = newQueue()
	}
	return &Dispatcher{
		sender:      sender,
		deadLetters: deadLetters,
		cfg:         cfg,
		logger:      logger.Named("dispatcher"),
		shards:      shards,
	}
}

// Start launches the workers
func (d *Dispatcher) Start(ctx context.Context) {
	d.once.Do(func() {
		d.runCtx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
		for i, q := range d.shards {
			d.wg.Go(func() { d.work(i, q) })
		}
		d.logger.Info("Notification dispatcher started", zap.Int("workers", len(d.shards)))
	})
}

// Enqueue hands a job over and returns immediately. It never blocks on delivery.
func (d *Dispatcher) Enqueue(job domain.Job) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if d.stopped.Load() || !d.shardFor(job.RecipientID).push(job) {
		d.logger.Warn("Job enqueued after shutdown", zap.String("job_id", job.ID.String()))
		d.bury(context.Background(), job, 0, ErrDispatcherStopped)
	}
}

func (d *Dispatcher) shardFor(recipient uuid.UUID) *queue {
	return d.shards[xxhash.Sum64(recipient[:])%uint64(len(d.shards))]
}

// Shutdown stops intake and drains the queues. When ctx expires first, delivery
// is abandoned and whatever is left goes to the dead-letter store.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.stopped.Store(true)
	for _, q := range d.shards {
		q.close()
	}
	if d.cancel == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("Notification dispatcher drained")
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		d.logger.Warn("Notification dispatcher shutdown deadline reached")
		return ctx.Err()
	}
}

// Pending returns the number of queued jobs
func (d *Dispatcher) Pending() int {
	n := 0
	for _, q := range d.shards {
		n += q.len()
	}
	return n
}

func (d *Dispatcher) work(shard int, q *queue) {
	logger := d.logger.With(zap.Int("shard", shard))
	for {
		job, ok := q.pop()
		if !ok {
			return
		}
		if err := d.runCtx.Err(); err != nil {
			d.bury(context.Background(), job, 0, err)
			continue
		}
		attempts, err := d.deliver(job)
		if err != nil {
			logger.Error("Notification delivery failed",
				zap.String("job_id", job.ID.String()),
				zap.String("kind", string(job.Kind)),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
			d.bury(context.Background(), job, attempts, err)
			continue
		}
		logger.Debug("Notification delivered",
			zap.String("job_id", job.ID.String()),
			zap.String("kind", string(job.Kind)),
			zap.Int("attempts", attempts),
		)
	}
}

func (d *Dispatcher) deliver(job domain.Job) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialBackoff
	b.MaxInterval = d.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.cfg.MaxAttempts-1)), d.runCtx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		ctx, cancel := context.WithTimeout(d.runCtx, d.cfg.AttemptTimeout)
		defer cancel()
		return d.sender.Send(ctx, job)
	}, policy)
	return attempts, err
}

func (d *Dispatcher) bury(ctx context.Context, job domain.Job, attempts int, cause error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		payload = []byte("null")
	}
	letter := &domain.DeadLetter{
		ID:          uuid.New(),
		JobID:       job.ID,
		Kind:        job.Kind,
		RecipientID: job.RecipientID,
		Payload:     payload,
		Attempts:    attempts,
		LastError:   cause.Error(),
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.deadLetters.Save(ctx, letter); err != nil {
		d.logger.Error("Failed to store dead letter",
			zap.String("job_id", job.ID.String()),
			zap.ByteString("payload", payload),
			zap.Error(err),
		)
	}
}
