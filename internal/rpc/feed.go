package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"swingspin/bowler/internal/bowling"
	"swingspin/bowler/internal/logging"
)

// Event types carried on the stream.
const (
	EventDelivery = "delivery"
	EventLanding  = "landing"
	EventRetired  = "retired"
)

// ErrFeedClosed is returned when subscribing to a closed feed.
var ErrFeedClosed = errors.New("event feed closed")

// Event is one lifecycle notification with its JSON payload.
type Event struct {
	Type    string          `json:"type"`
	AtMs    int64           `json:"at_ms"`
	Payload json.RawMessage `json:"payload"`
}

// EventSource exposes subscription semantics for lifecycle fan-out.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
}

// Feed fans game lifecycle events out to stream subscribers. A subscriber
// whose buffer is full misses the event.
type Feed struct {
	buffer int
	log    *logging.Logger

	mu      sync.Mutex
	subs    map[int]chan Event
	next    int
	dropped uint64
	closed  bool
}

// NewFeed constructs a feed whose subscribers buffer up to buffer events.
func NewFeed(buffer int, logger *logging.Logger) *Feed {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = logging.L()
	}
	return &Feed{buffer: buffer, log: logger, subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber until cancel runs or ctx ends.
func (f *Feed) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, func() {}, ErrFeedClosed
	}
	id := f.next
	f.next++
	ch := make(chan Event, f.buffer)
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if sub, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(sub)
			}
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}

// Subscribers reports the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Dropped reports how many events were skipped for slow subscribers.
func (f *Feed) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Close ends every subscription.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}

// DeliveryStarted implements bowling.Observer.
func (f *Feed) DeliveryStarted(d bowling.Delivery) { f.publish(EventDelivery, d.At, d) }

// BallLanded implements bowling.Observer.
func (f *Feed) BallLanded(l bowling.Landing) { f.publish(EventLanding, l.At, l) }

// BallRetired implements bowling.Observer.
func (f *Feed) BallRetired(r bowling.Retirement) { f.publish(EventRetired, r.At, r) }

func (f *Feed) publish(kind string, at time.Duration, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		f.log.Warn("feed encode failed", logging.String("type", kind), logging.Error(err))
		return
	}
	event := Event{Type: kind, AtMs: at.Milliseconds(), Payload: raw}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- event:
		default:
			f.dropped++
		}
	}
}

var (
	_ bowling.Observer = (*Feed)(nil)
	_ EventSource      = (*Feed)(nil)
)
