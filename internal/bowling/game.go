package bowling

import (
	"context"
	"math"
	"time"

	"swingspin/bowler/internal/ball"
	"swingspin/bowler/internal/delivery"
	"swingspin/bowler/internal/logging"
	"swingspin/bowler/internal/meter"
	"swingspin/bowler/internal/physics"
	"swingspin/bowler/internal/pool"
	"swingspin/bowler/internal/schedule"
)

// State is the orchestrator gate.
type State int

const (
	// Armed accepts a bowl trigger.
	Armed State = iota
	// Cooling drops bowl triggers until the cooldown elapses.
	Cooling
)

func (s State) String() string {
	if s == Cooling {
		return "cooling"
	}
	return "armed"
}

// Side selects which release spawn the bowler uses.
type Side int

const (
	LeftSide Side = iota
	RightSide
)

func (s Side) String() string {
	if s == RightSide {
		return "RIGHT"
	}
	return "LEFT"
}

// markerDeadzone ignores axis noise below this magnitude.
const markerDeadzone = 0.01

// Host is the physics world the game places its balls into.
type Host interface {
	AddBody(radius float64) *physics.Body
	Attach(body *physics.Body, listener physics.Listener)
}

// Display receives the current selection as display strings.
type Display interface {
	ShowMode(text string)
	ShowDirection(text string)
}

// Observer is notified about delivery lifecycle events.
type Observer interface {
	DeliveryStarted(d Delivery)
	BallLanded(l Landing)
	BallRetired(r Retirement)
}

// FrameInput is the per-frame input snapshot. Bowl is edge triggered.
type FrameInput struct {
	Bowl       bool
	Horizontal float64
	Vertical   float64
}

// Delivery records one accepted bowl trigger.
type Delivery struct {
	ID        uint64             `json:"id"`
	BallID    int                `json:"ball_id"`
	Side      string             `json:"side"`
	Mode      delivery.Mode      `json:"mode"`
	Direction delivery.Direction `json:"direction"`
	Accuracy  meter.Tier         `json:"accuracy"`
	Phase     float64            `json:"phase"`
	Release   delivery.Spawn     `json:"release"`
	Target    physics.Vec3       `json:"target"`
	Duration  float64            `json:"duration"`
	Plan      delivery.Plan      `json:"plan"`
	At        time.Duration      `json:"at"`
}

// Landing records the first ground contact of a delivery.
type Landing struct {
	DeliveryID uint64        `json:"delivery_id"`
	BallID     int           `json:"ball_id"`
	Point      physics.Vec3  `json:"point"`
	Before     physics.Vec3  `json:"before"`
	After      physics.Vec3  `json:"after"`
	At         time.Duration `json:"at"`
}

// Retirement records a ball hidden by its expiry timer.
type Retirement struct {
	DeliveryID uint64        `json:"delivery_id"`
	BallID     int           `json:"ball_id"`
	At         time.Duration `json:"at"`
}

// Game sequences deliveries: it owns the Armed/Cooling gate, the ball pool,
// the bounce marker and the current selection.
type Game struct {
	cfg       Config
	meter     *meter.Meter
	sched     *schedule.Scheduler
	pool      *pool.Pool[*ball.Ball]
	display   Display
	observers []Observer
	logger    *logging.Logger

	state     State
	rearm     *schedule.Handle
	mode      delivery.Mode
	direction delivery.Direction
	side      Side
	marker    physics.Vec3

	nextID  uint64
	owners  map[int]uint64
	last    Delivery
	hasLast bool
}

// Option configures optional collaborators.
type Option func(*Game)

// WithDisplay attaches the selection display.
func WithDisplay(d Display) Option {
	return func(g *Game) { g.display = d }
}

// WithObserver appends a lifecycle observer. Nil observers are ignored.
func WithObserver(o Observer) Option {
	return func(g *Game) {
		if o != nil {
			g.observers = append(g.observers, o)
		}
	}
}

// WithLogger overrides the global logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Game) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates the pool inside host and returns an armed game.
func New(cfg Config, host Host, m *meter.Meter, sched *schedule.Scheduler, opts ...Option) *Game {
	cfg = cfg.normalized()
	g := &Game{
		cfg:    cfg,
		meter:  m,
		sched:  sched,
		logger: logging.L(),
		marker: cfg.Marker,
		owners: make(map[int]uint64),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	//1.- Pre-create every ball; the pool starts with all of them hidden.
	balls := make([]*ball.Ball, cfg.PoolSize)
	for i := range balls {
		body := host.AddBody(cfg.BallRadius)
		balls[i] = ball.New(i, body, sched,
			ball.WithExpiry(cfg.BallExpiry),
			ball.WithLandFunc(g.onLand),
			ball.WithRetireFunc(g.onRetire),
		)
		host.Attach(body, balls[i])
	}
	g.pool = pool.New(balls)

	//2.- Push the initial selection to the display.
	g.refreshDisplay()
	return g
}

// State returns the gate state.
func (g *Game) State() State { return g.state }

// Mode returns the selected delivery mode.
func (g *Game) Mode() delivery.Mode { return g.mode }

// Direction returns the selected lateral direction.
func (g *Game) Direction() delivery.Direction { return g.direction }

// Side returns the selected bowler side.
func (g *Game) Side() Side { return g.side }

// Marker returns the bounce target.
func (g *Game) Marker() physics.Vec3 { return g.marker }

// Meter exposes the timing meter.
func (g *Game) Meter() *meter.Meter { return g.meter }

// Balls returns the pooled balls in slot order.
func (g *Game) Balls() []*ball.Ball { return g.pool.Items() }

// PoolStats reports pool usage.
func (g *Game) PoolStats() pool.Stats { return g.pool.Stats() }

// LastDelivery returns the most recent accepted delivery.
func (g *Game) LastDelivery() (Delivery, bool) { return g.last, g.hasLast }

// SetSwingMode selects swing deliveries.
func (g *Game) SetSwingMode() { g.setMode(delivery.Swing) }

// SetSpinMode selects spin deliveries.
func (g *Game) SetSpinMode() { g.setMode(delivery.Spin) }

func (g *Game) setMode(mode delivery.Mode) {
	g.mode = mode
	g.refreshDisplay()
}

// SetDirection selects the lateral direction of the next delivery.
func (g *Game) SetDirection(direction delivery.Direction) {
	g.direction = delivery.Direction(int(direction.Sign()))
	g.refreshDisplay()
}

// ToggleSide swaps the bowler between the left and right spawns.
func (g *Game) ToggleSide() {
	if g.side == LeftSide {
		g.side = RightSide
	} else {
		g.side = LeftSide
	}
}

func (g *Game) refreshDisplay() {
	if g.display == nil {
		return
	}
	g.display.ShowMode("Mode: " + g.mode.String())
	g.display.ShowDirection("Dir: " + g.direction.String())
}

// Frame runs the per-frame phase: timers, meter, marker, then the bowl trigger.
// It returns the delivery started this frame, if any.
func (g *Game) Frame(dt time.Duration, in FrameInput) (Delivery, bool) {
	if dt > 0 {
		g.sched.Advance(dt)
	}
	g.meter.Advance(g.sched.Now())
	g.moveMarker(dt, in.Horizontal, in.Vertical)
	if !in.Bowl {
		return Delivery{}, false
	}
	return g.Bowl()
}

func (g *Game) moveMarker(dt time.Duration, h, v float64) {
	if math.Abs(h) <= markerDeadzone && math.Abs(v) <= markerDeadzone {
		return
	}
	step := g.cfg.MarkerSpeed * dt.Seconds()
	b := g.cfg.MarkerBounds
	g.marker = physics.Vec3{
		X: clamp(g.marker.X+h*step, b.MinX, b.MaxX),
		Y: MarkerHeight,
		Z: clamp(g.marker.Z+v*step, b.MinZ, b.MaxZ),
	}
}

// SetMarker places the bounce target directly, applying the same clamp as
// axis movement.
func (g *Game) SetMarker(x, z float64) {
	b := g.cfg.MarkerBounds
	g.marker = physics.Vec3{X: clamp(x, b.MinX, b.MaxX), Y: MarkerHeight, Z: clamp(z, b.MinZ, b.MaxZ)}
}

// Bowl starts a delivery when armed. In Cooling it does nothing and returns false.
func (g *Game) Bowl() (Delivery, bool) {
	if g.state == Cooling {
		g.logger.Debug("bowl ignored while cooling")
		return Delivery{}, false
	}
	g.state = Cooling

	//1.- Freeze the meter and read the accuracy tier.
	phase := g.meter.Phase()
	accuracy := g.meter.Stop()

	//2.- Claim a ball at the selected spawn and clear the previous delivery.
	spawn := g.cfg.spawnFor(g.side)
	b := g.pool.Acquire(spawn.Position)
	b.Reset()

	//3.- Solve the launch towards the marker.
	duration := delivery.FlightDuration(spawn.Position, g.marker, g.cfg.TargetBallSpeed)
	plan := delivery.PlanVelocity(delivery.Request{
		Release:    spawn,
		Target:     g.marker,
		Duration:   duration,
		Gravity:    g.cfg.Gravity,
		Mode:       g.mode,
		Accuracy:   accuracy,
		Direction:  g.direction,
		SwingForce: g.cfg.SwingForce,
	})
	b.Launch(plan.Velocity)
	b.Initialize(delivery.Parameters{
		Mode:         g.mode,
		Accuracy:     accuracy,
		Direction:    g.direction,
		SwingForce:   g.cfg.SwingForce,
		SpinAngleDeg: g.cfg.SpinAngleDeg,
	})

	//4.- Re-arm the meter after the cooldown.
	g.rearm.Cancel()
	g.rearm = g.sched.After(g.cfg.Cooldown, g.arm)

	g.nextID++
	d := Delivery{
		ID:        g.nextID,
		BallID:    b.ID(),
		Side:      g.side.String(),
		Mode:      g.mode,
		Direction: g.direction,
		Accuracy:  accuracy,
		Phase:     phase,
		Release:   spawn,
		Target:    g.marker,
		Duration:  duration,
		Plan:      plan,
		At:        g.sched.Now(),
	}
	g.owners[b.ID()] = d.ID
	g.last, g.hasLast = d, true

	_, logger := logging.WithDelivery(context.Background(), g.logger, d.ID)
	logger.Info("delivery bowled",
		logging.String("mode", d.Mode.String()),
		logging.String("direction", d.Direction.String()),
		logging.String("accuracy", d.Accuracy.String()),
		logging.Int("ball_id", d.BallID),
		logging.Float64("duration", d.Duration),
		logging.Float64("drift", plan.Drift),
	)
	for _, o := range g.observers {
		o.DeliveryStarted(d)
	}
	return d, true
}

func (g *Game) arm() {
	g.rearm = nil
	g.meter.Start()
	g.state = Armed
}

// Reset cancels a pending re-arm and returns the game to Armed with the meter running.
func (g *Game) Reset() {
	g.rearm.Cancel()
	g.arm()
}

func (g *Game) onLand(b *ball.Ball, contact physics.Contact, before, after physics.Vec3) {
	l := Landing{
		DeliveryID: g.owners[b.ID()],
		BallID:     b.ID(),
		Point:      contact.Point,
		Before:     before,
		After:      after,
		At:         g.sched.Now(),
	}
	g.logger.Debug("ball landed",
		logging.Uint64(logging.DeliveryIDField, l.DeliveryID),
		logging.Int("ball_id", l.BallID),
		logging.Any("after", l.After),
	)
	for _, o := range g.observers {
		o.BallLanded(l)
	}
}

func (g *Game) onRetire(b *ball.Ball) {
	g.pool.Release(b)
	r := Retirement{DeliveryID: g.owners[b.ID()], BallID: b.ID(), At: g.sched.Now()}
	delete(g.owners, b.ID())
	for _, o := range g.observers {
		o.BallRetired(r)
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
