package bowling

import (
	"time"

	"swingspin/bowler/internal/ball"
	"swingspin/bowler/internal/config"
	"swingspin/bowler/internal/delivery"
	"swingspin/bowler/internal/physics"
)

// MarkerHeight pins the bounce marker just above the pitch.
const MarkerHeight = 0.12

// Bounds clamps the bounce marker on the pitch plane.
type Bounds struct {
	MinX float64
	MaxX float64
	MinZ float64
	MaxZ float64
}

// Config holds the static delivery tunables.
type Config struct {
	TargetBallSpeed float64
	SwingForce      float64
	SpinAngleDeg    float64
	Gravity         float64
	BallRadius      float64
	PoolSize        int
	Cooldown        time.Duration
	BallExpiry      time.Duration

	LeftSpawn    delivery.Spawn
	RightSpawn   delivery.Spawn
	Marker       physics.Vec3
	MarkerBounds Bounds
	MarkerSpeed  float64
}

// DefaultConfig mirrors the config package defaults with the standard pitch layout.
func DefaultConfig() Config {
	return Config{
		TargetBallSpeed: config.DefaultTargetBallSpeed,
		SwingForce:      config.DefaultSwingForce,
		SpinAngleDeg:    config.DefaultSpinAngle,
		Gravity:         config.DefaultGravity,
		BallRadius:      config.DefaultBallRadius,
		PoolSize:        config.DefaultPoolSize,
		Cooldown:        config.DefaultCooldown,
		BallExpiry:      ball.DefaultExpiry,
		LeftSpawn:       delivery.Spawn{Position: physics.Vec3{X: -0.5, Y: 1, Z: -6}, Right: physics.Vec3{X: 1}},
		RightSpawn:      delivery.Spawn{Position: physics.Vec3{X: 0.5, Y: 1, Z: -6}, Right: physics.Vec3{X: 1}},
		Marker:          physics.Vec3{Y: MarkerHeight, Z: 6},
		MarkerBounds: Bounds{
			MinX: config.DefaultMarkerMinX,
			MaxX: config.DefaultMarkerMaxX,
			MinZ: config.DefaultMarkerMinZ,
			MaxZ: config.DefaultMarkerMaxZ,
		},
		MarkerSpeed: config.DefaultMarkerSpeed,
	}
}

// ConfigFrom maps the loaded runtime configuration onto game tunables.
func ConfigFrom(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	out.TargetBallSpeed = cfg.Physics.TargetBallSpeed
	out.SwingForce = cfg.Physics.SwingForce
	out.SpinAngleDeg = cfg.Physics.SpinAngle
	out.Gravity = cfg.Physics.Gravity
	out.BallRadius = cfg.Physics.BallRadius
	out.PoolSize = cfg.PoolSize
	out.Cooldown = cfg.Cooldown
	out.BallExpiry = cfg.BallExpiry
	out.MarkerBounds = Bounds{MinX: cfg.Marker.MinX, MaxX: cfg.Marker.MaxX, MinZ: cfg.Marker.MinZ, MaxZ: cfg.Marker.MaxZ}
	out.MarkerSpeed = cfg.Marker.Speed
	return out
}

// normalized fills zero values with defaults so a partial Config still runs.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if !(c.TargetBallSpeed > 0) {
		c.TargetBallSpeed = def.TargetBallSpeed
	}
	if !(c.Gravity > 0) {
		c.Gravity = def.Gravity
	}
	if !(c.BallRadius > 0) {
		c.BallRadius = def.BallRadius
	}
	if c.PoolSize <= 0 {
		c.PoolSize = def.PoolSize
	}
	if c.Cooldown <= 0 {
		c.Cooldown = def.Cooldown
	}
	if c.BallExpiry <= 0 {
		c.BallExpiry = def.BallExpiry
	}
	if c.LeftSpawn.Right.IsZero() {
		c.LeftSpawn = def.LeftSpawn
	}
	if c.RightSpawn.Right.IsZero() {
		c.RightSpawn = def.RightSpawn
	}
	if c.MarkerBounds == (Bounds{}) {
		c.MarkerBounds = def.MarkerBounds
	}
	if !(c.MarkerSpeed > 0) {
		c.MarkerSpeed = def.MarkerSpeed
	}
	if c.Marker.IsZero() {
		c.Marker = def.Marker
	}
	return c
}

func (c Config) spawnFor(side Side) delivery.Spawn {
	if side == RightSide {
		return c.RightSpawn
	}
	return c.LeftSpawn
}
