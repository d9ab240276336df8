package delivery

import (
	"math"
	"testing"

	"swingspin/bowler/internal/meter"
	"swingspin/bowler/internal/physics"
)

const gravity = 9.81

var scenarioSpawn = Spawn{Position: physics.Vec3{Y: 1, Z: -6}, Right: physics.Vec3{X: 1}}

var scenarioTarget = physics.Vec3{Y: 0.12, Z: 6}

func forward(release physics.Vec3, velocity physics.Vec3, lateral physics.Vec3, t float64) physics.Vec3 {
	accel := lateral.Add(physics.Vec3{Y: -gravity})
	return release.Add(velocity.Scale(t)).Add(accel.Scale(0.5 * t * t))
}

func TestFlightDurationUsesHorizontalDistance(t *testing.T) {
	duration := FlightDuration(scenarioSpawn.Position, scenarioTarget, 25)
	if math.Abs(duration-0.48) > 1e-12 {
		t.Fatalf("expected 0.48s, got %v", duration)
	}
}

func TestFlightDurationPanicsOnZeroDistance(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for zero flight time")
		}
	}()
	FlightDuration(scenarioTarget, scenarioTarget, 25)
}

func TestPlanVelocityPanicsOnZeroDuration(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for zero duration")
		}
	}()
	PlanVelocity(Request{Release: scenarioSpawn, Target: scenarioTarget})
}

func TestPlanRoundTripLandsOnAdjustedTarget(t *testing.T) {
	modes := []Mode{Swing, Spin}
	directions := []Direction{Left, Straight, Right}
	tiers := []meter.Tier{meter.Poor, meter.Fair, meter.Good, meter.Perfect}
	for _, mode := range modes {
		for _, dir := range directions {
			for _, tier := range tiers {
				req := Request{
					Release:    scenarioSpawn,
					Target:     scenarioTarget,
					Duration:   0.48,
					Gravity:    gravity,
					Mode:       mode,
					Accuracy:   tier,
					Direction:  dir,
					SwingForce: 5,
				}
				plan := PlanVelocity(req)
				landed := forward(req.Release.Position, plan.Velocity, physics.Vec3{}, req.Duration)
				if !landed.ApproxEqual(plan.AdjustedTarget, 1e-9) {
					t.Fatalf("%v/%v/%v: landed %+v, want %+v", mode, dir, tier, landed, plan.AdjustedTarget)
				}
				if (mode == Spin || dir == Straight) && plan.AdjustedTarget != req.Target {
					t.Fatalf("%v/%v: target must be unchanged, got %+v", mode, dir, plan.AdjustedTarget)
				}
			}
		}
	}
}

func TestSwingCompensationOffsetsOppositeToForce(t *testing.T) {
	req := Request{
		Release:    scenarioSpawn,
		Target:     scenarioTarget,
		Duration:   0.48,
		Gravity:    gravity,
		Mode:       Swing,
		Accuracy:   meter.Good,
		Direction:  Right,
		SwingForce: 5,
	}
	plan := PlanVelocity(req)
	wantDrift := 0.5 * (5 * 0.7) * 0.48 * 0.48
	if math.Abs(plan.Drift-wantDrift) > 1e-12 {
		t.Fatalf("drift %v, want %v", plan.Drift, wantDrift)
	}
	if math.Abs(plan.AdjustedTarget.X-(scenarioTarget.X-wantDrift)) > 1e-12 {
		t.Fatalf("aim point should move against the force: %+v", plan.AdjustedTarget)
	}
	if plan.AdjustedTarget.Y != scenarioTarget.Y || plan.AdjustedTarget.Z != scenarioTarget.Z {
		t.Fatalf("only the lateral axis may move: %+v", plan.AdjustedTarget)
	}

	//1.- Apply the swing acceleration analytically and land on the original target.
	lateral := scenarioSpawn.Right.Scale(req.SwingForce * req.Accuracy.Value())
	landed := forward(req.Release.Position, plan.Velocity, lateral, req.Duration)
	if !landed.ApproxEqual(scenarioTarget, 1e-9) {
		t.Fatalf("swing drift should cancel: landed %+v", landed)
	}
}

type swingPush struct {
	body  *physics.Body
	accel physics.Vec3
}

func (s *swingPush) OnPhysicsStep(float64)           { s.body.AddAcceleration(s.accel) }
func (s *swingPush) OnGroundContact(physics.Contact) {}

func TestSwingCompensationSurvivesSteppedIntegration(t *testing.T) {
	req := Request{
		Release:    scenarioSpawn,
		Target:     scenarioTarget,
		Duration:   0.48,
		Gravity:    gravity,
		Mode:       Swing,
		Accuracy:   meter.Perfect,
		Direction:  Left,
		SwingForce: 5,
	}
	plan := PlanVelocity(req)

	world := physics.NewWorld(physics.WithGravity(gravity))
	body := world.AddBody(0)
	body.SetActive(true)
	body.SetPosition(req.Release.Position)
	body.SetVelocity(plan.Velocity)
	world.Attach(body, &swingPush{body: body, accel: req.Release.Right.Scale(req.Direction.Sign() * req.SwingForce)})

	const steps = 2000
	dt := req.Duration / steps
	for i := 0; i < steps; i++ {
		world.Step(dt)
	}
	if math.Abs(body.Position().X-scenarioTarget.X) > 5e-3 {
		t.Fatalf("ball should cross the target line, x=%.5f", body.Position().X)
	}
	if math.Abs(body.Position().Z-scenarioTarget.Z) > 1e-6 {
		t.Fatalf("unexpected z=%.6f", body.Position().Z)
	}
}

func TestParametersStraightNeverDeviates(t *testing.T) {
	p := Parameters{Mode: Spin, Accuracy: meter.Perfect, Direction: Straight, SwingForce: 5, SpinAngleDeg: 30}
	if p.Deviates() || p.SpinTurnDeg() != 0 {
		t.Fatalf("straight deliveries must not deviate")
	}
	p.Direction = Right
	if p.SpinTurnDeg() != 30 {
		t.Fatalf("expected full spin turn, got %v", p.SpinTurnDeg())
	}
	p.Accuracy = meter.Poor
	if p.SpinTurnDeg() != 0 || p.SwingAcceleration() != 0 {
		t.Fatalf("poor accuracy must neutralise deviation")
	}
}
