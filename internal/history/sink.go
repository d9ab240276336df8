package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"swingspin/bowler/internal/bowling"
	"swingspin/bowler/internal/logging"
)

const (
	// writeTimeout bounds each database write made by the sink worker.
	writeTimeout = 2 * time.Second
	// sinkQueueSize is how many writes may wait before new ones are dropped.
	sinkQueueSize = 256
)

// ErrSinkClosed is returned when draining a closed sink.
var ErrSinkClosed = errors.New("history sink closed")

type sinkJob func(ctx context.Context)

// Sink records game lifecycle events into a Store. Observer callbacks only
// enqueue; a single worker performs the writes in order, so a slow or locked
// database never holds up the caller. Failures are logged.
type Sink struct {
	store     *Store
	sessionID string
	log       *logging.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan sinkJob
	done   chan struct{}
}

// NewSink binds store to one session and starts its writer.
func NewSink(store *Store, sessionID string, logger *logging.Logger) *Sink {
	return newSink(store, sessionID, logger, sinkQueueSize)
}

func newSink(store *Store, sessionID string, logger *logging.Logger, size int) *Sink {
	if logger == nil {
		logger = logging.L()
	}
	s := &Sink{
		store:     store,
		sessionID: sessionID,
		log:       logger,
		jobs:      make(chan sinkJob, size),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Sink) run() {
	defer close(s.done)
	for job := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		job(ctx)
		cancel()
	}
}

// enqueue hands job to the worker without blocking. It reports false when the
// queue is full or the sink is closed.
func (s *Sink) enqueue(job sinkJob) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.jobs <- job:
		return true
	default:
		return false
	}
}

// DeliveryStarted implements bowling.Observer.
func (s *Sink) DeliveryStarted(d bowling.Delivery) {
	queued := s.enqueue(func(ctx context.Context) {
		if err := s.store.RecordDelivery(ctx, s.sessionID, d); err != nil {
			s.log.Warn("history delivery write failed", logging.Uint64(logging.DeliveryIDField, d.ID), logging.Error(err))
		}
	})
	if !queued {
		s.log.Warn("history delivery dropped", logging.Uint64(logging.DeliveryIDField, d.ID))
	}
}

// BallLanded implements bowling.Observer.
func (s *Sink) BallLanded(l bowling.Landing) {
	queued := s.enqueue(func(ctx context.Context) {
		err := s.store.RecordLanding(ctx, s.sessionID, l)
		if errors.Is(err, ErrNotFound) {
			s.log.Debug("history landing without delivery", logging.Uint64(logging.DeliveryIDField, l.DeliveryID))
			return
		}
		if err != nil {
			s.log.Warn("history landing write failed", logging.Uint64(logging.DeliveryIDField, l.DeliveryID), logging.Error(err))
		}
	})
	if !queued {
		s.log.Warn("history landing dropped", logging.Uint64(logging.DeliveryIDField, l.DeliveryID))
	}
}

// BallRetired implements bowling.Observer. Retirement is not persisted.
func (s *Sink) BallRetired(bowling.Retirement) {}

// Drain blocks until every write queued before the call has finished.
func (s *Sink) Drain(ctx context.Context) error {
	barrier := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrSinkClosed
	}
	select {
	case s.jobs <- func(context.Context) { close(barrier) }:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for queued writes. Closing twice is a no-op.
func (s *Sink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()
	<-s.done
}

var _ bowling.Observer = (*Sink)(nil)
