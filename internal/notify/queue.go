package notify

import (
	"sync"

	"procurement/internal/domain"
)

// queue is an unbounded FIFO with a wake-up signal
type queue struct {
	mu     sync.Mutex
	items  []domain.Job
	closed bool
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

// push appends a job. It reports false once the queue is closed.
func (q *queue) push(job domain.Job) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, job)
	q.mu.Unlock()
	q.wake()
	return true
}

func (q *queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop blocks until a job is available. ok is false once the queue is closed and empty.
func (q *queue) pop() (job domain.Job, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			job = q.items[0]
			q.items[0] = domain.Job{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return job, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return domain.Job{}, false
		}
		<-q.signal
	}
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
