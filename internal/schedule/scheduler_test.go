package schedule

import (
	"testing"
	"time"
)

func TestSchedulerFiresInDeadlineOrder(t *testing.T) {
	s := New()
	var order []string
	s.After(2*time.Second, func() { order = append(order, "late") })
	s.After(time.Second, func() { order = append(order, "early") })
	s.After(time.Second, func() { order = append(order, "early-second") })

	if fired := s.Advance(500 * time.Millisecond); fired != 0 {
		t.Fatalf("nothing should fire before the first deadline, fired=%d", fired)
	}
	if fired := s.Advance(1500 * time.Millisecond); fired != 3 {
		t.Fatalf("expected three actions, fired=%d", fired)
	}
	want := []string{"early", "early-second", "late"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order %v", order)
		}
	}
	if s.Now() != 2*time.Second {
		t.Fatalf("unexpected clock %v", s.Now())
	}
}

func TestHandleCancelPreventsFiring(t *testing.T) {
	s := New()
	fired := false
	h := s.After(time.Second, func() { fired = true })
	other := s.After(3*time.Second, func() {})

	if !h.Cancel() {
		t.Fatalf("first cancel should report a pending action")
	}
	if h.Cancel() {
		t.Fatalf("second cancel should be a no-op")
	}
	s.Advance(2 * time.Second)
	if fired {
		t.Fatalf("cancelled action fired")
	}
	if !other.Pending() || s.Len() != 1 {
		t.Fatalf("unrelated action should still be queued, len=%d", s.Len())
	}
}

func TestCallbacksMayRescheduleDuringAdvance(t *testing.T) {
	s := New()
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			s.After(0, tick)
		}
	}
	s.After(time.Second, tick)
	s.Advance(time.Second)
	if count != 3 {
		t.Fatalf("expected chained zero-delay actions to run in the same advance, got %d", count)
	}
}

func TestFiredHandleIsNotPending(t *testing.T) {
	s := New()
	h := s.After(0, func() {})
	s.Advance(0)
	if h.Pending() || h.Cancel() {
		t.Fatalf("fired handle must not be pending or cancellable")
	}
	var nilHandle *Handle
	if nilHandle.Pending() || nilHandle.Cancel() {
		t.Fatalf("nil handle must be inert")
	}
}
