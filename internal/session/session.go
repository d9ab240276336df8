package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"swingspin/bowler/internal/bowling"
	"swingspin/bowler/internal/delivery"
	"swingspin/bowler/internal/history"
	"swingspin/bowler/internal/logging"
	"swingspin/bowler/internal/meter"
	"swingspin/bowler/internal/physics"
	"swingspin/bowler/internal/pool"
	"swingspin/bowler/internal/replay"
	"swingspin/bowler/internal/schedule"
)

// StumpsTag labels the trigger volume around the far wicket.
const StumpsTag = "Stumps"

// Stumps is the far wicket trigger volume.
var Stumps = physics.Collider{
	Tag: StumpsTag,
	Min: physics.Vec3{X: -0.115, Y: 0, Z: 10.0},
	Max: physics.Vec3{X: 0.115, Y: 0.71, Z: 10.1},
}

// Command is one discrete player input.
type Command int

const (
	CmdBowl Command = iota
	CmdSwing
	CmdSpin
	CmdLeft
	CmdRight
	CmdStraight
	CmdToggleSide
	CmdReset
)

// FrameSink receives sampled world frames.
type FrameSink func(replay.Frame)

// Snapshot is a consistent copy of the session state for renderers and queries.
type Snapshot struct {
	SessionID    string             `json:"session_id"`
	Now          time.Duration      `json:"now"`
	State        string             `json:"state"`
	ModeText     string             `json:"mode_text"`
	DirText      string             `json:"direction_text"`
	Side         string             `json:"side"`
	Phase        float64            `json:"phase"`
	MeterRunning bool               `json:"meter_running"`
	Zones        meter.Zones        `json:"zones"`
	Marker       physics.Vec3       `json:"marker"`
	Balls        []replay.BallState `json:"balls"`
	Pool         pool.Stats         `json:"pool"`
	Deliveries   uint64             `json:"deliveries"`
	Last         *bowling.Delivery  `json:"last,omitempty"`
	LastLanding  *bowling.Landing   `json:"last_landing,omitempty"`
}

// Summary is the aggregate answer to a stats query.
type Summary struct {
	SessionID  string         `json:"session_id"`
	Uptime     float64        `json:"uptime_seconds"`
	Deliveries uint64         `json:"deliveries"`
	Pool       pool.Stats     `json:"pool"`
	History    *history.Stats `json:"history,omitempty"`
}

// Session owns one game and its world, serialising every access behind a
// mutex so the step loop, the terminal and the network surfaces can share it.
type Session struct {
	mu sync.Mutex

	id       string
	world    *physics.World
	sched    *schedule.Scheduler
	game     *bowling.Game
	recorder *replay.Recorder
	store    *history.Store
	sink     *history.Sink
	frames   FrameSink
	log      *logging.Logger
	now      func() time.Time

	observers []bowling.Observer
	pending   []Command
	axisH     float64
	axisV     float64

	modeText    string
	dirText     string
	deliveries  uint64
	lastLanding *bowling.Landing
	nextFrame   time.Duration
	started     time.Time
	startupErr  error
}

// Option configures optional collaborators.
type Option func(*Session)

// WithRecorder streams events and frames into a replay bundle.
func WithRecorder(r *replay.Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithHistory persists deliveries and answers stats queries from store.
func WithHistory(store *history.Store) Option {
	return func(s *Session) { s.store = store }
}

// WithObserver adds a lifecycle observer such as a telemetry feed.
func WithObserver(o bowling.Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithFrameSink publishes a frame every replay.FrameInterval of simulated time.
func WithFrameSink(sink FrameSink) Option {
	return func(s *Session) { s.frames = sink }
}

// WithLogger overrides the global logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the wall clock used for uptime.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStartupError marks the session as degraded for readiness probes.
func WithStartupError(err error) Option {
	return func(s *Session) { s.startupErr = err }
}

// New builds the world, scheduler and game for one play session.
func New(id string, cfg bowling.Config, m *meter.Meter, opts ...Option) *Session {
	s := &Session{id: id, log: logging.L(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.started = s.now()
	s.log = s.log.With(logging.String("session_id", id))

	s.world = physics.NewWorld(physics.WithGravity(cfg.Gravity), physics.WithCollider(Stumps))
	s.sched = schedule.New()

	gameOpts := []bowling.Option{bowling.WithDisplay(s), bowling.WithLogger(s.log), bowling.WithObserver(landingTracker{s})}
	if s.recorder != nil {
		gameOpts = append(gameOpts, bowling.WithObserver(s.recorder))
	}
	if s.store != nil {
		s.sink = history.NewSink(s.store, id, s.log)
		gameOpts = append(gameOpts, bowling.WithObserver(s.sink))
	}
	for _, o := range s.observers {
		gameOpts = append(gameOpts, bowling.WithObserver(o))
	}
	s.game = bowling.New(cfg, s.world, m, s.sched, gameOpts...)
	return s
}

// ShowMode implements bowling.Display.
func (s *Session) ShowMode(text string) { s.modeText = text }

// ShowDirection implements bowling.Display.
func (s *Session) ShowDirection(text string) { s.dirText = text }

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Queue records a command for the next step.
func (s *Session) Queue(cmd Command) {
	s.mu.Lock()
	s.pending = append(s.pending, cmd)
	s.mu.Unlock()
}

// SetAxes sets the marker movement axes held until changed.
func (s *Session) SetAxes(horizontal, vertical float64) {
	s.mu.Lock()
	s.axisH, s.axisV = horizontal, vertical
	s.mu.Unlock()
}

// Step advances the session by one fixed step: commands, the game frame,
// then physics, then frame sampling.
func (s *Session) Step(step time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	//1.- Apply queued selection commands; a bowl request becomes edge input.
	input := bowling.FrameInput{Horizontal: s.axisH, Vertical: s.axisV}
	for _, cmd := range s.pending {
		switch cmd {
		case CmdBowl:
			input.Bowl = true
		case CmdSwing:
			s.game.SetSwingMode()
		case CmdSpin:
			s.game.SetSpinMode()
		case CmdLeft:
			s.game.SetDirection(delivery.Left)
		case CmdRight:
			s.game.SetDirection(delivery.Right)
		case CmdStraight:
			s.game.SetDirection(delivery.Straight)
		case CmdToggleSide:
			s.game.ToggleSide()
		case CmdReset:
			s.game.Reset()
		}
	}
	s.pending = s.pending[:0]

	//2.- Per-frame phase, then the fixed physics step.
	if _, ok := s.game.Frame(step, input); ok {
		s.deliveries++
	}
	s.world.Step(step.Seconds())

	//3.- Sample the world for the replay and live viewers.
	now := s.sched.Now()
	bodies := s.world.Bodies()
	if s.recorder != nil {
		s.recorder.CaptureFrame(now, bodies)
	}
	if s.frames != nil && now >= s.nextFrame {
		s.frames(replay.FrameFromBodies(s.world.Steps(), now.Milliseconds(), bodies))
		s.nextFrame = now + replay.FrameInterval
	}
}

// Snapshot copies the state for rendering.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.game.Meter()
	frame := replay.FrameFromBodies(s.world.Steps(), s.sched.Now().Milliseconds(), s.world.Bodies())
	snap := Snapshot{
		SessionID:    s.id,
		Now:          s.sched.Now(),
		State:        s.game.State().String(),
		ModeText:     s.modeText,
		DirText:      s.dirText,
		Side:         s.game.Side().String(),
		Phase:        m.Phase(),
		MeterRunning: m.Running(),
		Zones:        m.Zones(),
		Marker:       s.game.Marker(),
		Balls:        frame.Balls,
		Pool:         s.game.PoolStats(),
		Deliveries:   s.deliveries,
	}
	if d, ok := s.game.LastDelivery(); ok {
		snap.Last = &d
	}
	if s.lastLanding != nil {
		l := *s.lastLanding
		snap.LastLanding = &l
	}
	return snap
}

// LastDelivery returns the most recent accepted delivery.
func (s *Session) LastDelivery() (bowling.Delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.LastDelivery()
}

// Deliveries counts accepted deliveries.
func (s *Session) Deliveries() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveries
}

// PoolStats reports ball pool usage.
func (s *Session) PoolStats() pool.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.PoolStats()
}

// Stats summarises the session, with the history aggregate when persisted.
func (s *Session) Stats(ctx context.Context) (any, error) {
	s.mu.Lock()
	summary := Summary{
		SessionID:  s.id,
		Uptime:     s.now().Sub(s.started).Seconds(),
		Deliveries: s.deliveries,
		Pool:       s.game.PoolStats(),
	}
	store, sink := s.store, s.sink
	s.mu.Unlock()

	if store != nil {
		//1.- Let queued writes land so the aggregate includes the latest delivery.
		if sink != nil {
			if err := sink.Drain(ctx); err != nil && !errors.Is(err, history.ErrSinkClosed) {
				return nil, err
			}
		}
		stats, err := store.Stats(ctx)
		if err != nil {
			return nil, err
		}
		summary.History = &stats
	}
	return summary, nil
}

// Reset re-arms the game immediately.
func (s *Session) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.game.Reset()
	s.log.Info("session reset")
	return nil
}

// StartupError reports a degraded optional sink.
func (s *Session) StartupError() error { return s.startupErr }

// Uptime reports wall time since New.
func (s *Session) Uptime() time.Duration { return s.now().Sub(s.started) }

// Close finalises the replay bundle. The history store is owned by the caller.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs error
	if s.recorder != nil {
		errs = errors.Join(errs, s.recorder.Close())
	}
	if s.sink != nil {
		s.sink.Close()
	}
	return errs
}

// landingTracker keeps the latest bounce for snapshots. It runs inside Step,
// so the session lock is already held.
type landingTracker struct{ s *Session }

func (t landingTracker) DeliveryStarted(bowling.Delivery) {}

func (t landingTracker) BallLanded(l bowling.Landing) { t.s.lastLanding = &l }

func (t landingTracker) BallRetired(bowling.Retirement) {}

var _ bowling.Display = (*Session)(nil)
