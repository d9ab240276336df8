// Package schedule runs cancellable one-shot actions against a simulated clock.
//
// The scheduler never spawns goroutines: deadlines are compared when the owner
// advances time, so callbacks run on the caller's goroutine in deadline order.
package schedule

import (
	"container/heap"
	"time"
)

// Handle identifies a scheduled action.
type Handle struct {
	id        uint64
	deadline  time.Duration
	fn        func()
	index     int
	cancelled bool
	fired     bool
	owner     *Scheduler
}

// Cancel prevents the action from firing. It reports whether the action was still pending.
func (h *Handle) Cancel() bool {
	if h == nil || h.cancelled || h.fired {
		return false
	}
	h.cancelled = true
	if h.owner != nil && h.index >= 0 {
		heap.Remove(&h.owner.queue, h.index)
	}
	return true
}

// Pending reports whether the action is still waiting for its deadline.
func (h *Handle) Pending() bool {
	return h != nil && !h.cancelled && !h.fired
}

// Deadline returns the simulated time at which the action fires.
func (h *Handle) Deadline() time.Duration {
	if h == nil {
		return 0
	}
	return h.deadline
}

// Scheduler owns the simulated clock and the pending action queue.
type Scheduler struct {
	now   time.Duration
	seq   uint64
	queue taskQueue
}

// New returns a scheduler whose clock starts at zero.
func New() *Scheduler {
	return &Scheduler{}
}

// Now returns the simulated time elapsed since construction.
func (s *Scheduler) Now() time.Duration {
	if s == nil {
		return 0
	}
	return s.now
}

// Len reports the number of pending actions.
func (s *Scheduler) Len() int {
	if s == nil {
		return 0
	}
	return len(s.queue)
}

// After schedules fn to run once delay has elapsed on the simulated clock.
func (s *Scheduler) After(delay time.Duration, fn func()) *Handle {
	if s == nil || fn == nil {
		return nil
	}
	if delay < 0 {
		delay = 0
	}
	s.seq++
	h := &Handle{id: s.seq, deadline: s.now + delay, fn: fn, owner: s, index: -1}
	heap.Push(&s.queue, h)
	return h
}

// Advance moves the clock forward by dt and fires every action that became due.
// It returns how many actions fired.
func (s *Scheduler) Advance(dt time.Duration) int {
	if s == nil {
		return 0
	}
	if dt > 0 {
		s.now += dt
	}
	fired := 0
	for len(s.queue) > 0 {
		next := s.queue[0]
		if next.deadline > s.now {
			break
		}
		//1.- Pop before running so the callback may schedule or cancel freely.
		heap.Pop(&s.queue)
		next.fired = true
		next.fn()
		fired++
	}
	return fired
}

type taskQueue []*Handle

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].deadline == q[j].deadline {
		return q[i].id < q[j].id
	}
	return q[i].deadline < q[j].deadline
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	h := x.(*Handle)
	h.index = len(*q)
	*q = append(*q, h)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	h := old[n-1]
	old[n-1] = nil
	h.index = -1
	*q = old[:n-1]
	return h
}
