package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"swingspin/bowler/internal/bowling"
	"swingspin/bowler/internal/logging"
	"swingspin/bowler/internal/meter"
)

const (
	sampleRate = beep.SampleRate(44100)

	releaseLength = 60 * time.Millisecond
	bounceLength  = 40 * time.Millisecond
	bounceTone    = 220.0
)

// releaseTones rises with accuracy so a perfect release is audibly higher.
var releaseTones = map[meter.Tier]float64{
	meter.Poor:    523.25,
	meter.Fair:    659.25,
	meter.Good:    783.99,
	meter.Perfect: 987.77,
}

// Player plays a finite streamer.
type Player interface {
	Play(s beep.Streamer)
}

type speakerPlayer struct{}

func (speakerPlayer) Play(s beep.Streamer) { speaker.Play(s) }

// Cues plays short tones for releases and bounces. Without a working audio
// device every cue is a no-op.
type Cues struct {
	mu     sync.Mutex
	player Player
	rate   beep.SampleRate
	log    *logging.Logger
	played int
}

// New returns silent cues until Init succeeds.
func New(logger *logging.Logger) *Cues {
	if logger == nil {
		logger = logging.L()
	}
	return &Cues{rate: sampleRate, log: logger}
}

// NewWithPlayer routes cues to p at rate.
func NewWithPlayer(p Player, rate beep.SampleRate, logger *logging.Logger) *Cues {
	c := New(logger)
	c.player = p
	if rate > 0 {
		c.rate = rate
	}
	return c
}

// Init opens the speaker. A failure leaves the cues silent and is returned
// for the caller to log.
func (c *Cues) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player != nil {
		return nil
	}
	if err := speaker.Init(c.rate, c.rate.N(time.Second/10)); err != nil {
		return err
	}
	c.player = speakerPlayer{}
	return nil
}

// Enabled reports whether cues reach a player.
func (c *Cues) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player != nil
}

// Played counts cues handed to the player.
func (c *Cues) Played() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.played
}

// Close silences anything still playing.
func (c *Cues) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.player.(speakerPlayer); ok {
		speaker.Clear()
	}
	c.player = nil
}

// DeliveryStarted implements bowling.Observer.
func (c *Cues) DeliveryStarted(d bowling.Delivery) {
	freq, ok := releaseTones[d.Accuracy]
	if !ok {
		freq = releaseTones[meter.Poor]
	}
	c.tone(freq, releaseLength, -1)
}

// BallLanded implements bowling.Observer.
func (c *Cues) BallLanded(bowling.Landing) {
	c.tone(bounceTone, bounceLength, 0)
}

// BallRetired implements bowling.Observer.
func (c *Cues) BallRetired(bowling.Retirement) {}

func (c *Cues) tone(freq float64, length time.Duration, volume float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.player == nil {
		return
	}
	sine, err := generators.SineTone(c.rate, freq)
	if err != nil {
		c.log.Debug("audio tone rejected", logging.Float64("freq", freq), logging.Error(err))
		return
	}
	shaped := &effects.Volume{Streamer: beep.Take(c.rate.N(length), sine), Base: 2, Volume: volume}
	c.player.Play(shaped)
	c.played++
}

var _ bowling.Observer = (*Cues)(nil)
