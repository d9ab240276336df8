package audio

import (
	"testing"
	"time"

	"github.com/gopxl/beep"

	"swingspin/bowler/internal/bowling"
	"swingspin/bowler/internal/logging"
	"swingspin/bowler/internal/meter"
)

type capturePlayer struct {
	streams []beep.Streamer
}

func (p *capturePlayer) Play(s beep.Streamer) { p.streams = append(p.streams, s) }

func drain(s beep.Streamer) int {
	total := 0
	buf := make([][2]float64, 512)
	for {
		n, ok := s.Stream(buf)
		total += n
		for i := 0; i < n; i++ {
			if buf[i][0] < -1 || buf[i][0] > 1 {
				return -1
			}
		}
		if !ok {
			return total
		}
	}
}

func TestCuesPlayFiniteTones(t *testing.T) {
	player := &capturePlayer{}
	rate := beep.SampleRate(8000)
	cues := NewWithPlayer(player, rate, logging.NewTestLogger())

	cues.DeliveryStarted(bowling.Delivery{Accuracy: meter.Perfect})
	cues.BallLanded(bowling.Landing{})
	cues.BallRetired(bowling.Retirement{})

	if len(player.streams) != 2 || cues.Played() != 2 {
		t.Fatalf("expected release and bounce cues, got %d", len(player.streams))
	}
	if got, want := drain(player.streams[0]), rate.N(releaseLength); got != want {
		t.Fatalf("release cue: got %d samples want %d", got, want)
	}
	if got, want := drain(player.streams[1]), rate.N(bounceLength); got != want {
		t.Fatalf("bounce cue: got %d samples want %d", got, want)
	}
}

func TestCuesSilentWithoutPlayer(t *testing.T) {
	cues := New(logging.NewTestLogger())
	if cues.Enabled() {
		t.Fatalf("cues should start disabled")
	}
	cues.DeliveryStarted(bowling.Delivery{})
	cues.BallLanded(bowling.Landing{})
	if cues.Played() != 0 {
		t.Fatalf("disabled cues should not play")
	}
}

func TestCloseDisablesCues(t *testing.T) {
	player := &capturePlayer{}
	cues := NewWithPlayer(player, 0, nil)
	if !cues.Enabled() {
		t.Fatalf("expected enabled cues")
	}
	cues.Close()
	cues.BallLanded(bowling.Landing{At: time.Second})
	if len(player.streams) != 0 {
		t.Fatalf("closed cues should be silent")
	}
}

func TestReleaseTonesRiseWithAccuracy(t *testing.T) {
	tiers := []meter.Tier{meter.Poor, meter.Fair, meter.Good, meter.Perfect}
	for i := 1; i < len(tiers); i++ {
		if releaseTones[tiers[i]] <= releaseTones[tiers[i-1]] {
			t.Fatalf("tone for %v should exceed %v", tiers[i], tiers[i-1])
		}
	}
}
