package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultTargetBallSpeed is the horizontal speed used to derive flight time.
	DefaultTargetBallSpeed = 25.0
	// DefaultSwingForce is the swing acceleration at perfect accuracy.
	DefaultSwingForce = 5.0
	// DefaultSpinAngle is the spin turn in degrees at perfect accuracy.
	DefaultSpinAngle = 30.0
	// DefaultMeterSpeed is the ping-pong rate of the timing meter.
	DefaultMeterSpeed = 2.5
	// DefaultPerfectZone, DefaultGoodZone and DefaultFairZone are the meter band radii.
	DefaultPerfectZone = 0.05
	DefaultGoodZone    = 0.15
	DefaultFairZone    = 0.30
	// DefaultPoolSize bounds how many balls can be on screen at once.
	DefaultPoolSize = 10
	// DefaultCooldown delays re-arming the meter after a delivery.
	DefaultCooldown = 2 * time.Second
	// DefaultBallExpiry controls how long a ball stays visible after launch.
	DefaultBallExpiry = 8 * time.Second
	// DefaultGravity is the downward acceleration magnitude.
	DefaultGravity = 9.81
	// DefaultBallRadius is the contact radius of the ball.
	DefaultBallRadius = 0.12
	// DefaultTickHz is the fixed physics rate.
	DefaultTickHz = 50.0

	// DefaultMarkerMinX and friends clamp the bounce marker.
	DefaultMarkerMinX  = -1.8
	DefaultMarkerMaxX  = 1.8
	DefaultMarkerMinZ  = 0.0
	DefaultMarkerMaxZ  = 14.0
	DefaultMarkerSpeed = 5.0

	// DefaultLogLevel controls verbosity for bowler logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "bowler.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 20
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 5
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultReplayKeep limits how many replay sessions stay on disk.
	DefaultReplayKeep = 20
)

// Config captures all runtime tunables for the simulator.
type Config struct {
	Physics      PhysicsConfig
	Meter        MeterConfig
	Marker       MarkerConfig
	PoolSize     int
	Cooldown     time.Duration
	BallExpiry   time.Duration
	TickHz       float64
	Logging      LoggingConfig
	ReplayDir    string
	ReplayKeep   int
	HistoryPath  string
	HTTPAddr     string
	AdminToken   string
	GRPCAddr     string
	AudioEnabled bool
}

// PhysicsConfig holds the force model and integrator knobs.
type PhysicsConfig struct {
	TargetBallSpeed float64
	SwingForce      float64
	SpinAngle       float64
	Gravity         float64
	BallRadius      float64
}

// MeterConfig holds the timing meter knobs.
type MeterConfig struct {
	Speed       float64
	PerfectZone float64
	GoodZone    float64
	FairZone    float64
}

// MarkerConfig bounds the bounce marker.
type MarkerConfig struct {
	MinX  float64
	MaxX  float64
	MinZ  float64
	MaxZ  float64
	Speed float64
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Stdout     bool
}

// Default returns the configuration used when no overrides are present.
func Default() *Config {
	return &Config{
		Physics: PhysicsConfig{
			TargetBallSpeed: DefaultTargetBallSpeed,
			SwingForce:      DefaultSwingForce,
			SpinAngle:       DefaultSpinAngle,
			Gravity:         DefaultGravity,
			BallRadius:      DefaultBallRadius,
		},
		Meter: MeterConfig{
			Speed:       DefaultMeterSpeed,
			PerfectZone: DefaultPerfectZone,
			GoodZone:    DefaultGoodZone,
			FairZone:    DefaultFairZone,
		},
		Marker: MarkerConfig{
			MinX:  DefaultMarkerMinX,
			MaxX:  DefaultMarkerMaxX,
			MinZ:  DefaultMarkerMinZ,
			MaxZ:  DefaultMarkerMaxZ,
			Speed: DefaultMarkerSpeed,
		},
		PoolSize:   DefaultPoolSize,
		Cooldown:   DefaultCooldown,
		BallExpiry: DefaultBallExpiry,
		TickHz:     DefaultTickHz,
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			Path:       DefaultLogPath,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
		ReplayKeep:   DefaultReplayKeep,
		AudioEnabled: true,
	}
}

// Load reads an optional .env file, then the BOWLER_* environment variables,
// applying defaults and returning every invalid override in one error.
func Load(envFiles ...string) (*Config, error) {
	//1.- A missing .env file is normal; anything else is reported.
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := Default()
	cfg.Logging.Level = getString("BOWLER_LOG_LEVEL", DefaultLogLevel)
	cfg.Logging.Path = getString("BOWLER_LOG_PATH", DefaultLogPath)
	cfg.ReplayDir = strings.TrimSpace(os.Getenv("BOWLER_REPLAY_DIR"))
	cfg.HistoryPath = strings.TrimSpace(os.Getenv("BOWLER_HISTORY_PATH"))
	cfg.HTTPAddr = strings.TrimSpace(os.Getenv("BOWLER_HTTP_ADDR"))
	cfg.AdminToken = strings.TrimSpace(os.Getenv("BOWLER_ADMIN_TOKEN"))
	cfg.GRPCAddr = strings.TrimSpace(os.Getenv("BOWLER_GRPC_ADDR"))

	p := &problems{}

	//2.- Physics and meter knobs must be strictly positive.
	p.positiveFloat("BOWLER_TARGET_BALL_SPEED", &cfg.Physics.TargetBallSpeed)
	p.positiveFloat("BOWLER_SWING_FORCE", &cfg.Physics.SwingForce)
	p.positiveFloat("BOWLER_SPIN_ANGLE", &cfg.Physics.SpinAngle)
	p.positiveFloat("BOWLER_GRAVITY", &cfg.Physics.Gravity)
	p.positiveFloat("BOWLER_BALL_RADIUS", &cfg.Physics.BallRadius)
	p.positiveFloat("BOWLER_METER_SPEED", &cfg.Meter.Speed)
	p.positiveFloat("BOWLER_METER_PERFECT_ZONE", &cfg.Meter.PerfectZone)
	p.positiveFloat("BOWLER_METER_GOOD_ZONE", &cfg.Meter.GoodZone)
	p.positiveFloat("BOWLER_METER_FAIR_ZONE", &cfg.Meter.FairZone)
	p.positiveFloat("BOWLER_TICK_HZ", &cfg.TickHz)
	p.positiveFloat("BOWLER_MARKER_SPEED", &cfg.Marker.Speed)
	p.anyFloat("BOWLER_MARKER_MIN_X", &cfg.Marker.MinX)
	p.anyFloat("BOWLER_MARKER_MAX_X", &cfg.Marker.MaxX)
	p.anyFloat("BOWLER_MARKER_MIN_Z", &cfg.Marker.MinZ)
	p.anyFloat("BOWLER_MARKER_MAX_Z", &cfg.Marker.MaxZ)

	p.positiveInt("BOWLER_POOL_SIZE", &cfg.PoolSize)
	p.positiveDuration("BOWLER_COOLDOWN", &cfg.Cooldown)
	p.positiveDuration("BOWLER_BALL_EXPIRY", &cfg.BallExpiry)
	p.nonNegativeInt("BOWLER_REPLAY_KEEP", &cfg.ReplayKeep)
	p.boolean("BOWLER_AUDIO", &cfg.AudioEnabled)

	p.positiveInt("BOWLER_LOG_MAX_SIZE_MB", &cfg.Logging.MaxSizeMB)
	p.nonNegativeInt("BOWLER_LOG_MAX_BACKUPS", &cfg.Logging.MaxBackups)
	p.nonNegativeInt("BOWLER_LOG_MAX_AGE_DAYS", &cfg.Logging.MaxAgeDays)
	p.boolean("BOWLER_LOG_COMPRESS", &cfg.Logging.Compress)
	p.boolean("BOWLER_LOG_STDOUT", &cfg.Logging.Stdout)

	//3.- Cross-field checks after every individual override was parsed.
	m := cfg.Meter
	if !(m.PerfectZone < m.GoodZone && m.GoodZone < m.FairZone) {
		p.add(fmt.Sprintf("meter zones must be strictly increasing, got %.3f/%.3f/%.3f", m.PerfectZone, m.GoodZone, m.FairZone))
	}
	if cfg.Marker.MinX > cfg.Marker.MaxX || cfg.Marker.MinZ > cfg.Marker.MaxZ {
		p.add("marker bounds must satisfy min <= max")
	}

	if len(p.list) > 0 {
		return nil, errors.New(strings.Join(p.list, "; "))
	}
	return cfg, nil
}

type problems struct {
	list []string
}

func (p *problems) add(msg string) { p.list = append(p.list, msg) }

func (p *problems) positiveFloat(key string, dst *float64) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || !(value > 0) {
		p.add(fmt.Sprintf("%s must be a positive number, got %q", key, raw))
		return
	}
	*dst = value
}

func (p *problems) anyFloat(key string, dst *float64) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.add(fmt.Sprintf("%s must be a number, got %q", key, raw))
		return
	}
	*dst = value
}

func (p *problems) positiveInt(key string, dst *int) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		p.add(fmt.Sprintf("%s must be a positive integer, got %q", key, raw))
		return
	}
	*dst = value
}

func (p *problems) nonNegativeInt(key string, dst *int) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		p.add(fmt.Sprintf("%s must be a non-negative integer, got %q", key, raw))
		return
	}
	*dst = value
}

func (p *problems) positiveDuration(key string, dst *time.Duration) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	duration, err := time.ParseDuration(raw)
	if err != nil || duration <= 0 {
		p.add(fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
		return
	}
	*dst = duration
}

func (p *problems) boolean(key string, dst *bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		p.add(fmt.Sprintf("%s must be a boolean value, got %q", key, raw))
		return
	}
	*dst = value
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
