package delivery

import (
	"swingspin/bowler/internal/meter"
	"swingspin/bowler/internal/physics"
)

// Mode selects how a delivery deviates from its straight-line plan.
type Mode int

const (
	// Swing applies a lateral acceleration for the whole flight until the first bounce.
	Swing Mode = iota
	// Spin turns the velocity about the vertical axis once, at the first bounce.
	Spin
)

func (m Mode) String() string {
	if m == Spin {
		return "SPIN"
	}
	return "SWING"
}

// MarshalText renders the mode by name in JSON payloads.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Direction is the signed lateral choice for a delivery.
type Direction int

const (
	Left     Direction = -1
	Straight Direction = 0
	Right    Direction = 1
)

// Sign returns -1, 0 or +1 as a float multiplier.
func (d Direction) Sign() float64 {
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

func (d Direction) String() string {
	switch {
	case d < 0:
		return "LEFT"
	case d > 0:
		return "RIGHT"
	default:
		return "STRAIGHT"
	}
}

// MarshalText renders the direction by name in JSON payloads.
func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Parameters are fixed at launch and read by the force model for the ball's lifetime.
type Parameters struct {
	Mode         Mode
	Accuracy     meter.Tier
	Direction    Direction
	SwingForce   float64
	SpinAngleDeg float64
}

// Deviates reports whether the parameters can produce any lateral effect.
func (p Parameters) Deviates() bool { return p.Direction.Sign() != 0 }

// SwingAcceleration is the lateral acceleration magnitude per unit of direction.
func (p Parameters) SwingAcceleration() float64 {
	return p.SwingForce * p.Accuracy.Value()
}

// SpinTurnDeg is the signed yaw applied to the velocity at the bounce.
func (p Parameters) SpinTurnDeg() float64 {
	return p.Direction.Sign() * p.Accuracy.Value() * p.SpinAngleDeg
}

// Spawn is a release point with its local lateral axis.
type Spawn struct {
	Position physics.Vec3 `json:"position"`
	Right    physics.Vec3 `json:"right"`
}
