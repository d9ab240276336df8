package delivery

import (
	"fmt"

	"swingspin/bowler/internal/meter"
	"swingspin/bowler/internal/physics"
)

// Request carries everything the planner needs for one delivery.
type Request struct {
	Release    Spawn
	Target     physics.Vec3
	Duration   float64
	Gravity    float64
	Mode       Mode
	Accuracy   meter.Tier
	Direction  Direction
	SwingForce float64
}

// Plan is the solved launch.
type Plan struct {
	Velocity       physics.Vec3 `json:"velocity"`
	AdjustedTarget physics.Vec3 `json:"adjusted_target"`
	Drift          float64      `json:"drift"`
}

// FlightDuration divides the horizontal release-to-target distance by speed.
// A non-positive result violates the caller's contract and panics.
func FlightDuration(release, target physics.Vec3, speed float64) float64 {
	duration := target.Sub(release).HorizontalLength() / speed
	if !(duration > 0) {
		panic(fmt.Sprintf("delivery: flight duration must be positive, got %v (speed %v)", duration, speed))
	}
	return duration
}

// PlanVelocity solves the launch velocity reaching the target after
// req.Duration seconds under gravity. Swing deliveries aim off the target so
// the lateral acceleration carries the ball back onto it.
func PlanVelocity(req Request) Plan {
	t := req.Duration
	if !(t > 0) {
		panic(fmt.Sprintf("delivery: flight duration must be positive, got %v", t))
	}

	//1.- Pre-compensate the aim point against the expected swing drift.
	adjusted := req.Target
	drift := 0.0
	if req.Mode == Swing && req.Direction.Sign() != 0 {
		force := req.SwingForce * req.Accuracy.Value()
		drift = 0.5 * force * t * t
		adjusted = adjusted.Sub(req.Release.Right.Scale(req.Direction.Sign() * drift))
	}

	//2.- Solve each axis independently under constant acceleration.
	d := adjusted.Sub(req.Release.Position)
	velocity := physics.Vec3{
		X: d.X / t,
		Y: (d.Y + 0.5*req.Gravity*t*t) / t,
		Z: d.Z / t,
	}
	return Plan{Velocity: velocity, AdjustedTarget: adjusted, Drift: drift}
}
