package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
)

// ErrQueueFull is returned by AsyncSender when the backlog is at capacity.
var ErrQueueFull = errors.New("delivery queue is full")

// ErrClosed is returned by AsyncSender after Close.
var ErrClosed = errors.New("delivery queue is closed")

type job struct {
	address string
	code    string
}

// AsyncSender queues codes and sends them from a background worker.
// SendCode only fails when the job cannot be queued. Send errors are logged
// and counted as delivery failures.
type AsyncSender struct {
	next    Sender
	logger  logging.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	done   chan struct{}
}

// NewAsyncSender starts a worker draining a queue of size capacity into next.
// m may be nil.
func NewAsyncSender(next Sender, capacity int, logger logging.Logger, m *metrics.Metrics) *AsyncSender {
	if capacity <= 0 {
		capacity = 1
	}
	s := &AsyncSender{
		next:    next,
		logger:  logger.With("module", "delivery"),
		metrics: m,
		timeout: 30 * time.Second,
		jobs:    make(chan job, capacity),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSender) SendCode(_ context.Context, address, code string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.jobs <- job{address: address, code: code}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *AsyncSender) run() {
	defer close(s.done)
	for j := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.next.SendCode(ctx, j.address, j.code); err != nil {
			s.logger.Error(ctx, "code delivery failed", "email", j.address, "error", err)
			s.metrics.DeliveryFailed()
		} else {
			s.logger.Debug(ctx, "code delivered", "email", j.address)
		}
		cancel()
	}
}

// Close stops accepting jobs and waits for the backlog to drain or ctx to end.
func (s *AsyncSender) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
