package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"procurement/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu        sync.Mutex
	delivered []domain.Job
	attempts  map[uuid.UUID]int
	send      func(ctx context.Context, job domain.Job, attempt int) error
}

func newFakeSender(send func(ctx context.Context, job domain.Job, attempt int) error) *fakeSender {
	return &fakeSender{attempts: make(map[uuid.UUID]int), send: send}
}

func (s *fakeSender) Send(ctx context.Context, job domain.Job) error {
	s.mu.Lock()
	s.attempts[job.ID]++
	attempt := s.attempts[job.ID]
	s.mu.Unlock()

	if s.send != nil {
		if err := s.send(ctx, job, attempt); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.delivered = append(s.delivered, job)
	s.mu.Unlock()
	return nil
}

func (s *fakeSender) deliveredJobs() []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Job(nil), s.delivered...)
}

func (s *fakeSender) attemptsFor(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[id]
}

type memorySink struct {
	mu      sync.Mutex
	letters []*domain.DeadLetter
}

func (s *memorySink) Save(_ context.Context, letter *domain.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, letter)
	return nil
}

func (s *memorySink) all() []*domain.DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.DeadLetter(nil), s.letters...)
}

func testConfig() Config {
	return Config{
		Workers:        3,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func startDispatcher(t *testing.T, sender Sender, sink DeadLetterSink, cfg Config) *Dispatcher {
	t.Helper()
	d := NewDispatcher(sender, sink, cfg, zap.NewNop())
	d.Start(context.Background())
	return d
}

func shutdown(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
}

func TestDispatcher_DeliversInOrderPerRecipient(t *testing.T) {
	sender := newFakeSender(nil)
	sink := &memorySink{}
	d := startDispatcher(t, sender, sink, testConfig())

	recipients := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	const perRecipient = 25
	for i := 0; i < perRecipient; i++ {
		for _, r := range recipients {
			d.Enqueue(domain.NewJob(domain.JobOrderStateChanged, r, map[string]int{"seq": i}))
		}
	}
	shutdown(t, d)

	delivered := sender.deliveredJobs()
	require.Len(t, delivered, perRecipient*len(recipients))
	assert.Empty(t, sink.all())

	next := make(map[uuid.UUID]int)
	for _, job := range delivered {
		seq := job.Payload.(map[string]int)["seq"]
		assert.Equal(t, next[job.RecipientID], seq, "recipient %s out of order", job.RecipientID)
		next[job.RecipientID] = seq + 1
	}
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	sender := newFakeSender(func(_ context.Context, _ domain.Job, attempt int) error {
		if attempt < 3 {
			return errors.New("broker unavailable")
		}
		return nil
	})
	sink := &memorySink{}
	d := startDispatcher(t, sender, sink, testConfig())

	job := domain.NewJob(domain.JobOrderPlaced, uuid.New(), domain.OrderPlacedPayload{OrderID: uuid.New()})
	d.Enqueue(job)
	shutdown(t, d)

	assert.Equal(t, 3, sender.attemptsFor(job.ID))
	assert.Len(t, sender.deliveredJobs(), 1)
	assert.Empty(t, sink.all())
}

func TestDispatcher_DeadLettersAfterMaxAttempts(t *testing.T) {
	sender := newFakeSender(func(context.Context, domain.Job, int) error {
		return errors.New("smtp refused")
	})
	sink := &memorySink{}
	d := startDispatcher(t, sender, sink, testConfig())

	payload := domain.OrderPlacedPayload{OrderID: uuid.New(), ItemCount: 2, Total: 500}
	job := domain.NewJob(domain.JobOrderPlaced, uuid.New(), payload)
	d.Enqueue(job)
	shutdown(t, d)

	assert.Equal(t, 3, sender.attemptsFor(job.ID))
	letters := sink.all()
	require.Len(t, letters, 1)
	assert.Equal(t, job.ID, letters[0].JobID)
	assert.Equal(t, job.Kind, letters[0].Kind)
	assert.Equal(t, 3, letters[0].Attempts)
	assert.Contains(t, letters[0].LastError, "smtp refused")

	var stored domain.OrderPlacedPayload
	require.NoError(t, json.Unmarshal(letters[0].Payload, &stored))
	assert.Equal(t, payload, stored)
}

func TestDispatcher_PermanentErrorIsNotRetried(t *testing.T) {
	sender := newFakeSender(func(context.Context, domain.Job, int) error {
		return Permanent(errors.New("unknown recipient"))
	})
	sink := &memorySink{}
	d := startDispatcher(t, sender, sink, testConfig())

	job := domain.NewJob(domain.JobTokenIssued, uuid.New(), nil)
	d.Enqueue(job)
	shutdown(t, d)

	assert.Equal(t, 1, sender.attemptsFor(job.ID))
	require.Len(t, sink.all(), 1)
}

func TestDispatcher_EnqueueAfterShutdownIsDeadLettered(t *testing.T) {
	sender := newFakeSender(nil)
	sink := &memorySink{}
	d := startDispatcher(t, sender, sink, testConfig())
	shutdown(t, d)

	d.Enqueue(domain.NewJob(domain.JobCatalogUpdated, uuid.New(), nil))

	assert.Empty(t, sender.deliveredJobs())
	letters := sink.all()
	require.Len(t, letters, 1)
	assert.Equal(t, ErrDispatcherStopped.Error(), letters[0].LastError)
}

func TestDispatcher_EnqueueIntoClosedShardIsDeadLettered(t *testing.T) {
	sender := newFakeSender(nil)
	sink := &memorySink{}
	d := startDispatcher(t, sender, sink, testConfig())

	// shards closed while the stopped flag still reads false
	for _, q := range d.shards {
		q.close()
	}
	d.Enqueue(domain.NewJob(domain.JobOrderPlaced, uuid.New(), nil))
	shutdown(t, d)

	assert.Empty(t, sender.deliveredJobs())
	letters := sink.all()
	require.Len(t, letters, 1)
	assert.Equal(t, ErrDispatcherStopped.Error(), letters[0].LastError)
	assert.Zero(t, d.Pending())
}

func TestDispatcher_EnqueueRacingShutdownLosesNothing(t *testing.T) {
	for run := 0; run < 50; run++ {
		sender := newFakeSender(nil)
		sink := &memorySink{}
		d := startDispatcher(t, sender, sink, testConfig())

		const producers, perProducer = 4, 50
		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perProducer; i++ {
					d.Enqueue(domain.NewJob(domain.JobOrderPlaced, uuid.New(), nil))
				}
			}()
		}
		shutdown(t, d)
		wg.Wait()

		assert.Equal(t, producers*perProducer, len(sender.deliveredJobs())+len(sink.all()))
		assert.Zero(t, d.Pending())
	}
}

func TestQueue_PushAfterClose(t *testing.T) {
	q := newQueue()
	assert.True(t, q.push(domain.Job{ID: uuid.New()}))
	q.close()
	assert.False(t, q.push(domain.Job{ID: uuid.New()}))

	_, ok := q.pop()
	assert.True(t, ok)
	_, ok = q.pop()
	assert.False(t, ok)
}

func TestDispatcher_ShutdownDeadlineDeadLettersRemainder(t *testing.T) {
	sender := newFakeSender(func(ctx context.Context, _ domain.Job, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	})
	sink := &memorySink{}
	cfg := testConfig()
	cfg.Workers = 1
	cfg.AttemptTimeout = time.Minute
	d := startDispatcher(t, sender, sink, cfg)

	recipient := uuid.New()
	for i := 0; i < 5; i++ {
		d.Enqueue(domain.NewJob(domain.JobOrderReceived, recipient, nil))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := d.Shutdown(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, sender.deliveredJobs())
	assert.Len(t, sink.all(), 5)
	assert.Zero(t, d.Pending())
}

func TestDispatcher_EnqueueDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	sender := newFakeSender(func(ctx context.Context, _ domain.Job, _ int) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	sink := &memorySink{}
	cfg := testConfig()
	cfg.Workers = 1
	d := startDispatcher(t, sender, sink, cfg)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			d.Enqueue(domain.NewJob(domain.JobOrderPlaced, uuid.New(), nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on a stalled sender")
	}
	close(release)
	shutdown(t, d)
	assert.Len(t, sender.deliveredJobs(), 1000)
}

func TestEncode(t *testing.T) {
	job := domain.NewJob(domain.JobOrderStateChanged, uuid.New(), domain.OrderStateChangedPayload{
		OrderID: uuid.New(),
		From:    domain.OrderNew,
		To:      domain.OrderConfirmed,
	})

	body, err := Encode(job)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Equal(t, job.ID.String(), env.EventID)
	assert.Equal(t, "order.state_changed", env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, job.RecipientID.String(), env.RecipientID)
	assert.JSONEq(t, `{"order_id":"`+job.Payload.(domain.OrderStateChangedPayload).OrderID.String()+`","from":"new","to":"confirmed"}`, string(env.Payload))

	assert.Equal(t, "notify.order.placed", routingKey(domain.JobOrderPlaced))
}

func TestEncode_UnmarshallablePayloadIsPermanent(t *testing.T) {
	_, err := Encode(domain.NewJob(domain.JobOrderPlaced, uuid.New(), make(chan int)))
	require.Error(t, err)

	var perm *backoff.PermanentError
	assert.ErrorAs(t, err, &perm)
}
