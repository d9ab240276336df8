package meter

import (
	"math"
	"time"
)

// Tier is the discrete accuracy bucket produced when the meter stops.
type Tier int

const (
	Poor Tier = iota
	Fair
	Good
	Perfect
)

// Value returns the accuracy multiplier fed into the force model.
func (t Tier) Value() float64 {
	switch t {
	case Perfect:
		return 1.0
	case Good:
		return 0.7
	case Fair:
		return 0.4
	default:
		return 0.0
	}
}

func (t Tier) String() string {
	switch t {
	case Perfect:
		return "perfect"
	case Good:
		return "good"
	case Fair:
		return "fair"
	default:
		return "poor"
	}
}

// MarshalText renders the tier by name in JSON payloads.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Center is the phase value scoring a perfect release.
const Center = 0.5

// Zones holds the radii around Center for each tier, narrowest first.
type Zones struct {
	Perfect float64
	Good    float64
	Fair    float64
}

// DefaultZones mirrors the blue, green and yellow bands of the on-screen meter.
var DefaultZones = Zones{Perfect: 0.05, Good: 0.15, Fair: 0.30}

// DefaultSpeed is the ping-pong rate in cycles of unit length per second.
const DefaultSpeed = 2.5

// TierForDistance maps a distance from Center onto a tier. The narrowest band
// is tested first and each bound is exclusive.
func (z Zones) TierForDistance(dist float64) Tier {
	if dist < z.Perfect {
		return Perfect
	}
	if dist < z.Good {
		return Good
	}
	if dist < z.Fair {
		return Fair
	}
	return Poor
}

// Classify maps a phase value onto a tier.
func (z Zones) Classify(phase float64) Tier {
	return z.TierForDistance(math.Abs(Center - phase))
}

// Classify maps a phase value onto a tier using DefaultZones.
func Classify(phase float64) Tier { return DefaultZones.Classify(phase) }

// PingPong folds t into a triangle wave rising from 0 to length and back.
func PingPong(t, length float64) float64 {
	if !(length > 0) {
		return 0
	}
	period := 2 * length
	m := math.Mod(t, period)
	if m < 0 {
		m += period
	}
	if m > length {
		return period - m
	}
	return m
}

// Meter is the oscillating timing bar. Its phase is a pure function of the
// elapsed time passed to Advance while running, and freezes when stopped.
type Meter struct {
	speed   float64
	zones   Zones
	running bool
	phase   float64
}

// New returns a running meter at phase zero. Non-positive speeds fall back to DefaultSpeed.
func New(speed float64, zones Zones) *Meter {
	if !(speed > 0) {
		speed = DefaultSpeed
	}
	return &Meter{speed: speed, zones: zones, running: true}
}

// Advance recomputes the phase from the absolute elapsed time. Stopped meters ignore it.
func (m *Meter) Advance(elapsed time.Duration) {
	if m == nil || !m.running {
		return
	}
	m.phase = PingPong(elapsed.Seconds()*m.speed, 1)
}

// Stop freezes the phase and classifies it. Repeated calls return the same tier.
func (m *Meter) Stop() Tier {
	if m == nil {
		return Poor
	}
	m.running = false
	return m.zones.Classify(m.phase)
}

// Start resumes advancement without resetting the phase.
func (m *Meter) Start() {
	if m == nil {
		return
	}
	m.running = true
}

// Running reports whether Advance updates the phase.
func (m *Meter) Running() bool { return m != nil && m.running }

// Phase returns the current phase in [0, 1].
func (m *Meter) Phase() float64 {
	if m == nil {
		return 0
	}
	return m.phase
}

// Zones returns the configured tier radii.
func (m *Meter) Zones() Zones {
	if m == nil {
		return DefaultZones
	}
	return m.zones
}
