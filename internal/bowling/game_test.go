package bowling

import (
	"math"
	"testing"
	"time"

	"swingspin/bowler/internal/delivery"
	"swingspin/bowler/internal/meter"
	"swingspin/bowler/internal/physics"
	"swingspin/bowler/internal/schedule"
)

const tick = 20 * time.Millisecond

type recordingDisplay struct {
	mode      string
	direction string
	writes    int
}

func (d *recordingDisplay) ShowMode(text string)      { d.mode = text; d.writes++ }
func (d *recordingDisplay) ShowDirection(text string) { d.direction = text; d.writes++ }

type recordingObserver struct {
	started []Delivery
	landed  []Landing
	retired []Retirement
}

func (o *recordingObserver) DeliveryStarted(d Delivery) { o.started = append(o.started, d) }
func (o *recordingObserver) BallLanded(l Landing)       { o.landed = append(o.landed, l) }
func (o *recordingObserver) BallRetired(r Retirement)   { o.retired = append(o.retired, r) }

func newTestGame(t *testing.T, cfg Config, opts ...Option) (*Game, *physics.World, *schedule.Scheduler) {
	t.Helper()
	world := physics.NewWorld(physics.WithGravity(cfg.normalized().Gravity))
	sched := schedule.New()
	m := meter.New(meter.DefaultSpeed, meter.DefaultZones)
	return New(cfg, world, m, sched, opts...), world, sched
}

// run alternates the frame phase and the fixed physics phase.
func run(g *Game, world *physics.World, d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += tick {
		g.Frame(tick, FrameInput{})
		world.Step(tick.Seconds())
	}
}

func TestPoolStartsHidden(t *testing.T) {
	g, world, _ := newTestGame(t, DefaultConfig())
	if len(world.Bodies()) != 10 || g.PoolStats().Size != 10 {
		t.Fatalf("expected 10 pooled balls, got %d bodies", len(world.Bodies()))
	}
	for _, body := range world.Bodies() {
		if body.Active() {
			t.Fatalf("body %d should start inactive", body.ID())
		}
	}
}

func TestBowlIgnoredWhileCooling(t *testing.T) {
	obs := &recordingObserver{}
	g, _, _ := newTestGame(t, DefaultConfig(), WithObserver(obs))

	if _, ok := g.Bowl(); !ok {
		t.Fatalf("first bowl should be accepted")
	}
	if g.State() != Cooling || g.Meter().Running() {
		t.Fatalf("expected cooling with stopped meter, got %v running=%v", g.State(), g.Meter().Running())
	}
	if _, ok := g.Bowl(); ok {
		t.Fatalf("bowl during cooling should be dropped")
	}
	if len(obs.started) != 1 || g.PoolStats().Acquired != 1 {
		t.Fatalf("cooling bowl must not claim a ball, started=%d", len(obs.started))
	}
}

func TestRearmAfterCooldown(t *testing.T) {
	g, _, _ := newTestGame(t, DefaultConfig())
	g.Bowl()

	for i := 0; i < 99; i++ {
		g.Frame(tick, FrameInput{})
	}
	if g.State() != Cooling {
		t.Fatalf("re-armed before the cooldown elapsed")
	}
	if _, ok := g.Frame(tick, FrameInput{Bowl: true}); !ok {
		t.Fatalf("expected bowl to be accepted once the cooldown elapsed")
	}
}

func TestResetCancelsPendingRearm(t *testing.T) {
	g, _, sched := newTestGame(t, DefaultConfig())
	g.Bowl()
	g.Reset()
	if g.State() != Armed || !g.Meter().Running() {
		t.Fatalf("reset should re-arm immediately")
	}
	g.Bowl()
	sched.Advance(time.Second)
	g.Reset()
	g.Bowl()
	sched.Advance(1500 * time.Millisecond)
	if g.State() != Cooling {
		t.Fatalf("stale re-arm from an earlier delivery fired")
	}
}

func TestPerfectReleaseScenario(t *testing.T) {
	g, _, _ := newTestGame(t, DefaultConfig())
	g.Frame(200*time.Millisecond, FrameInput{})

	d, ok := g.Frame(0, FrameInput{Bowl: true})
	if !ok {
		t.Fatalf("expected delivery")
	}
	if d.Accuracy != meter.Perfect {
		t.Fatalf("expected perfect at phase %.3f, got %v", d.Phase, d.Accuracy)
	}
}

func TestSpinDeliveryTurnsAtFirstBounce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LeftSpawn.Position = physics.Vec3{Y: 1, Z: -6}
	obs := &recordingObserver{}
	g, world, _ := newTestGame(t, cfg, WithObserver(obs))
	g.SetSpinMode()
	g.SetDirection(delivery.Right)
	g.Frame(200*time.Millisecond, FrameInput{})

	d, ok := g.Bowl()
	if !ok || d.Accuracy != meter.Perfect {
		t.Fatalf("expected perfect delivery, got %+v", d)
	}
	if math.Abs(d.Duration-0.48) > 1e-12 {
		t.Fatalf("expected 0.48s flight, got %v", d.Duration)
	}
	if d.Plan.AdjustedTarget != d.Target {
		t.Fatalf("spin must not adjust the aim point")
	}

	run(g, world, time.Second)
	if len(obs.landed) != 1 {
		t.Fatalf("expected exactly one landing, got %d", len(obs.landed))
	}
	l := obs.landed[0]
	if l.DeliveryID != d.ID || l.BallID != d.BallID {
		t.Fatalf("landing not attributed to delivery: %+v", l)
	}
	want := l.Before.RotateY(30)
	if !l.After.ApproxEqual(want, 1e-9) {
		t.Fatalf("expected post-bounce %+v, got %+v", want, l.After)
	}
	if math.Abs(l.Point.X) > 1e-9 || math.Abs(l.Point.Z-6) > 0.6 {
		t.Fatalf("ball landed off the marker at %+v", l.Point)
	}
}

func TestSwingDeliveryLandsOnMarker(t *testing.T) {
	obs := &recordingObserver{}
	g, world, _ := newTestGame(t, DefaultConfig(), WithObserver(obs))
	g.SetSwingMode()
	g.SetDirection(delivery.Left)
	g.Frame(200*time.Millisecond, FrameInput{})

	d, _ := g.Bowl()
	if d.Plan.Drift <= 0 {
		t.Fatalf("swing delivery should carry a drift, got %v", d.Plan.Drift)
	}
	if d.Plan.AdjustedTarget.X <= d.Target.X {
		t.Fatalf("left swing should aim right of the marker, got %+v", d.Plan.AdjustedTarget)
	}

	run(g, world, time.Second)
	if len(obs.landed) != 1 {
		t.Fatalf("expected a landing, got %d", len(obs.landed))
	}
	if math.Abs(obs.landed[0].Point.X-d.Target.X) > 0.1 {
		t.Fatalf("swing drift not compensated: landed at %+v, target %+v", obs.landed[0].Point, d.Target)
	}
}

func TestSinglePoolSlotIsFullyResetBetweenDeliveries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PoolSize = 1
	g, world, _ := newTestGame(t, cfg)
	g.SetSpinMode()
	g.SetDirection(delivery.Right)

	first, _ := g.Bowl()
	run(g, world, 600*time.Millisecond)
	b := g.Balls()[0]
	if !b.Landed() {
		t.Fatalf("first delivery should have landed")
	}
	body := world.Bodies()[0]
	body.SetAngularVelocity(physics.Vec3{Y: 120})
	body.SetOrientation(physics.Orientation{YawDeg: 33})

	g.Reset()
	g.SetSwingMode()
	g.SetDirection(delivery.Straight)
	second, ok := g.Bowl()
	if !ok || second.BallID != first.BallID {
		t.Fatalf("expected the single ball to be reused")
	}
	if b.Landed() || b.Parameters().Mode != delivery.Swing {
		t.Fatalf("landed flag or mode leaked from the first delivery")
	}
	if body.Velocity() != second.Plan.Velocity {
		t.Fatalf("expected fresh launch velocity %+v, got %+v", second.Plan.Velocity, body.Velocity())
	}
	if !body.AngularVelocity().IsZero() || body.Orientation() != physics.Identity {
		t.Fatalf("rotation leaked into the second delivery")
	}
	if body.Position() != cfg.LeftSpawn.Position {
		t.Fatalf("ball not moved to the release point: %+v", body.Position())
	}
	if stats := g.PoolStats(); stats.Recycled != 1 {
		t.Fatalf("expected one forced recycle, got %+v", stats)
	}
}

func TestExpiryReleasesBallToPool(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BallExpiry = time.Second
	obs := &recordingObserver{}
	g, world, _ := newTestGame(t, cfg, WithObserver(obs))

	d, _ := g.Bowl()
	run(g, world, time.Second)
	if len(obs.retired) != 1 || obs.retired[0].DeliveryID != d.ID {
		t.Fatalf("expected retirement of delivery %d, got %+v", d.ID, obs.retired)
	}
	if g.Balls()[d.BallID].Visible() {
		t.Fatalf("retired ball should be hidden")
	}
	if stats := g.PoolStats(); stats.InUse != 0 || stats.Released != 1 {
		t.Fatalf("unexpected pool stats %+v", stats)
	}
}

func TestDisplayReceivesSelection(t *testing.T) {
	display := &recordingDisplay{}
	g, _, _ := newTestGame(t, DefaultConfig(), WithDisplay(display))
	if display.mode != "Mode: SWING" || display.direction != "Dir: STRAIGHT" {
		t.Fatalf("unexpected initial display %+v", display)
	}
	g.SetSpinMode()
	g.SetDirection(delivery.Left)
	if display.mode != "Mode: SPIN" || display.direction != "Dir: LEFT" {
		t.Fatalf("unexpected display %+v", display)
	}
	g.SetDirection(delivery.Direction(5))
	if display.direction != "Dir: RIGHT" || g.Direction() != delivery.Right {
		t.Fatalf("direction should be normalised to its sign")
	}
}

func TestMissingDisplayIsTolerated(t *testing.T) {
	g, _, _ := newTestGame(t, DefaultConfig())
	g.SetSpinMode()
	g.SetDirection(delivery.Right)
	if g.Mode() != delivery.Spin {
		t.Fatalf("selection should still apply without a display")
	}
}

func TestMarkerMovesAndClamps(t *testing.T) {
	g, _, _ := newTestGame(t, DefaultConfig())

	g.Frame(100*time.Millisecond, FrameInput{Horizontal: 0.005, Vertical: -0.005})
	if g.Marker() != (physics.Vec3{Y: MarkerHeight, Z: 6}) {
		t.Fatalf("deadzone input moved the marker to %+v", g.Marker())
	}

	g.Frame(100*time.Millisecond, FrameInput{Horizontal: 1})
	if math.Abs(g.Marker().X-0.5) > 1e-9 {
		t.Fatalf("expected marker x 0.5, got %+v", g.Marker())
	}

	g.Frame(10*time.Second, FrameInput{Horizontal: -1, Vertical: 1})
	want := physics.Vec3{X: -1.8, Y: MarkerHeight, Z: 14}
	if !g.Marker().ApproxEqual(want, 1e-9) {
		t.Fatalf("expected clamped marker %+v, got %+v", want, g.Marker())
	}
}

func TestSetMarkerClampsAndAimsDelivery(t *testing.T) {
	obs := &recordingObserver{}
	g, world, _ := newTestGame(t, DefaultConfig(), WithObserver(obs))

	g.SetMarker(-5, -3)
	if want := (physics.Vec3{X: -1.8, Y: MarkerHeight, Z: 0}); !g.Marker().ApproxEqual(want, 1e-9) {
		t.Fatalf("expected clamped marker %+v, got %+v", want, g.Marker())
	}

	//1.- Aim at the far corner and let a swing delivery pitch there.
	g.SetMarker(1.8, 14)
	g.SetSwingMode()
	g.SetDirection(delivery.Right)
	d, ok := g.Bowl()
	if !ok {
		t.Fatalf("expected an armed game")
	}
	if d.Target.X != 1.8 || d.Target.Z != 14 {
		t.Fatalf("delivery ignored the placed marker: %+v", d.Target)
	}

	run(g, world, 2*time.Second)
	if len(obs.landed) != 1 {
		t.Fatalf("expected a landing, got %d", len(obs.landed))
	}
	if miss := obs.landed[0].Point.Sub(d.Target).HorizontalLength(); miss > 0.1 {
		t.Fatalf("corner delivery missed by %.3fm at %+v", miss, obs.landed[0].Point)
	}
}

func TestToggleSideSelectsSpawn(t *testing.T) {
	g, _, _ := newTestGame(t, DefaultConfig())
	g.ToggleSide()
	d, _ := g.Bowl()
	if d.Side != "RIGHT" || d.Release.Position.X != 0.5 {
		t.Fatalf("expected right spawn, got %+v", d.Release)
	}
	g.ToggleSide()
	if g.Side() != LeftSide {
		t.Fatalf("toggle should return to the left side")
	}
}
