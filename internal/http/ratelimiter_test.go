package httpapi

import (
	"testing"
	"time"
)

func TestSlidingWindowLimiter(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewSlidingWindowLimiter(time.Minute, 2, func() time.Time { return now })

	if !limiter.Allow() || !limiter.Allow() {
		t.Fatal("expected first two resets to be allowed")
	}
	if limiter.Allow() {
		t.Fatal("expected third reset to be denied")
	}
	if limiter.Remaining() != 0 {
		t.Fatalf("expected no remaining budget, got %d", limiter.Remaining())
	}

	now = now.Add(30 * time.Second)
	if limiter.Allow() {
		t.Fatal("expected call within window to still be denied")
	}

	now = now.Add(31 * time.Second)
	if limiter.Remaining() != 2 {
		t.Fatalf("expected full budget after the window, got %d", limiter.Remaining())
	}
	if !limiter.Allow() {
		t.Fatal("expected limiter to permit call after window passes")
	}
}

func TestSlidingWindowLimiterDisabled(t *testing.T) {
	limiter := NewSlidingWindowLimiter(0, 0, nil)
	if !limiter.Allow() || limiter.Remaining() != -1 {
		t.Fatal("limiter with zero configuration should allow")
	}
	var nilLimiter *SlidingWindowLimiter
	if !nilLimiter.Allow() {
		t.Fatal("nil limiter should allow")
	}
}
