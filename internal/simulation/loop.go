package simulation

import (
	"context"
	"sync"
	"time"
)

// StepFunc advances the simulation by one fixed timestep.
type StepFunc func(step time.Duration)

// DefaultMaxCatchUp bounds how many fixed steps one wake-up may run.
const DefaultMaxCatchUp = 5

// Loop drives a fixed timestep simulation from wall-clock ticks.
type Loop struct {
	step       time.Duration
	stepFunc   StepFunc
	monitor    *TickMonitor
	maxCatchUp int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// LoopOption customises a loop at construction time.
type LoopOption func(*Loop)

// WithMonitor records the wall time spent in every step.
func WithMonitor(m *TickMonitor) LoopOption {
	return func(l *Loop) { l.monitor = m }
}

// WithMaxCatchUp overrides DefaultMaxCatchUp. Backlog beyond it is dropped.
func WithMaxCatchUp(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxCatchUp = n
		}
	}
}

// NewLoop configures a loop that targets the provided steps per second.
func NewLoop(targetHz float64, step StepFunc, opts ...LoopOption) *Loop {
	if targetHz <= 0 {
		targetHz = 50
	}
	if step == nil {
		step = func(time.Duration) {}
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 50
	}
	l := &Loop{step: interval, stepFunc: step, maxCatchUp: DefaultMaxCatchUp}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Start begins ticking until the context is cancelled or Stop is invoked.
// Starting a running loop is a no-op.
func (l *Loop) Start(ctx context.Context) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.step)
	defer ticker.Stop()
	last := time.Now()
	accumulator := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			//1.- Accumulate elapsed wall time and run fixed steps while catching up.
			accumulator += now.Sub(last)
			last = now
			ran := 0
			for accumulator >= l.step && ran < l.maxCatchUp {
				started := time.Now()
				l.stepFunc(l.step)
				l.monitor.Observe(time.Since(started))
				accumulator -= l.step
				ran++
			}
			//2.- Drop the backlog after a long stall instead of fast-forwarding.
			if accumulator >= l.step {
				l.monitor.Skip(int(accumulator / l.step))
				accumulator %= l.step
			}
		}
	}
}

// Stop cancels the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// StepDuration exposes the configured timestep.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}
