package httpapi

import (
	"sync"
	"time"
)

// SlidingWindowLimiter admits at most limit calls in any trailing window.
// A zero window or limit disables limiting.
type SlidingWindowLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu    sync.Mutex
	stamp []time.Time
}

// NewSlidingWindowLimiter constructs a limiter allowing up to limit calls per window.
func NewSlidingWindowLimiter(window time.Duration, limit int, timeSource func() time.Time) *SlidingWindowLimiter {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &SlidingWindowLimiter{window: window, limit: limit, now: timeSource}
}

func (l *SlidingWindowLimiter) disabled() bool {
	return l == nil || l.limit <= 0 || l.window <= 0
}

// expireLocked drops admissions older than the window. Stamps are in order.
func (l *SlidingWindowLimiter) expireLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamp) && !l.stamp[i].After(cutoff) {
		i++
	}
	l.stamp = l.stamp[i:]
}

// Allow records an admission when the window has room.
func (l *SlidingWindowLimiter) Allow() bool {
	if l.disabled() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.expireLocked(now)
	if len(l.stamp) >= l.limit {
		return false
	}
	l.stamp = append(l.stamp, now)
	return true
}

// Remaining reports how many calls the current window still admits.
func (l *SlidingWindowLimiter) Remaining() int {
	if l.disabled() {
		return -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expireLocked(l.now())
	return l.limit - len(l.stamp)
}
