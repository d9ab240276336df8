package replay

import (
	"time"

	"swingspin/bowler/internal/bowling"
	"swingspin/bowler/internal/logging"
	"swingspin/bowler/internal/physics"
)

// Event types written by Recorder.
const (
	EventDelivery = "delivery"
	EventLanding  = "landing"
	EventRetired  = "retired"
)

// Recorder feeds game lifecycle events and world frames into a Writer.
// Write failures are logged and never interrupt the game.
type Recorder struct {
	writer *Writer
	step   time.Duration
	log    *logging.Logger
}

// NewRecorder wraps writer. step converts simulated time into tick numbers.
func NewRecorder(writer *Writer, step time.Duration, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.L()
	}
	if step <= 0 {
		step = 20 * time.Millisecond
	}
	return &Recorder{writer: writer, step: step, log: logger}
}

func (r *Recorder) tick(at time.Duration) uint64 { return uint64(at / r.step) }

// DeliveryStarted implements bowling.Observer.
func (r *Recorder) DeliveryStarted(d bowling.Delivery) {
	r.append(d.At, EventDelivery, d)
}

// BallLanded implements bowling.Observer.
func (r *Recorder) BallLanded(l bowling.Landing) {
	r.append(l.At, EventLanding, l)
}

// BallRetired implements bowling.Observer.
func (r *Recorder) BallRetired(rt bowling.Retirement) {
	r.append(rt.At, EventRetired, rt)
}

func (r *Recorder) append(at time.Duration, kind string, payload any) {
	if err := r.writer.AppendEvent(r.tick(at), at.Milliseconds(), kind, payload); err != nil {
		r.log.Warn("replay event dropped", logging.String("type", kind), logging.Error(err))
	}
}

// CaptureFrame records the bodies at simulated time at.
func (r *Recorder) CaptureFrame(at time.Duration, bodies []*physics.Body) {
	frame := FrameFromBodies(r.tick(at), at.Milliseconds(), bodies)
	if err := r.writer.AppendFrame(frame); err != nil {
		r.log.Warn("replay frame dropped", logging.Uint64("tick", frame.Tick), logging.Error(err))
	}
}

// Close finalises the bundle.
func (r *Recorder) Close() error { return r.writer.Close() }

var _ bowling.Observer = (*Recorder)(nil)
