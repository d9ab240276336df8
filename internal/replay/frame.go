package replay

import (
	"encoding/binary"
	"errors"
	"math"

	"swingspin/bowler/internal/physics"
)

// BallState is one ball's pose inside a frame.
type BallState struct {
	ID       int          `json:"id"`
	Active   bool         `json:"active"`
	Grounded bool         `json:"grounded,omitempty"`
	Position physics.Vec3 `json:"position"`
	Velocity physics.Vec3 `json:"velocity"`
}

// Frame is a snapshot of every pooled ball at one physics tick.
type Frame struct {
	Tick        uint64      `json:"tick"`
	SimulatedMs int64       `json:"simulated_ms"`
	Balls       []BallState `json:"balls"`
}

const (
	flagActive   byte = 1 << 0
	flagGrounded byte = 1 << 1
)

const (
	frameHeaderSize = 8 + 8 + 4
	ballRecordSize  = 4 + 1 + 6*8
)

var errShortFrame = errors.New("replay: truncated frame")

// FrameFromBodies captures the bodies' current state.
func FrameFromBodies(tick uint64, simulatedMs int64, bodies []*physics.Body) Frame {
	f := Frame{Tick: tick, SimulatedMs: simulatedMs, Balls: make([]BallState, 0, len(bodies))}
	for _, body := range bodies {
		f.Balls = append(f.Balls, BallState{
			ID:       body.ID(),
			Active:   body.Active(),
			Grounded: body.Grounded(),
			Position: body.Position(),
			Velocity: body.Velocity(),
		})
	}
	return f
}

// appendFrame encodes f little-endian: tick, simulated ms, ball count, then
// one fixed-size record per ball.
func appendFrame(buf []byte, f Frame) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, f.Tick)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(f.SimulatedMs))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(f.Balls)))
	for _, b := range f.Balls {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(b.ID))
		flag := byte(0)
		if b.Active {
			flag |= flagActive
		}
		if b.Grounded {
			flag |= flagGrounded
		}
		buf = append(buf, flag)
		for _, v := range []float64{b.Position.X, b.Position.Y, b.Position.Z, b.Velocity.X, b.Velocity.Y, b.Velocity.Z} {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	return buf
}

// decodeFrames splits a decompressed frame stream back into frames.
func decodeFrames(raw []byte) ([]Frame, error) {
	var frames []Frame
	for len(raw) > 0 {
		if len(raw) < frameHeaderSize {
			return frames, errShortFrame
		}
		f := Frame{
			Tick:        binary.LittleEndian.Uint64(raw[0:8]),
			SimulatedMs: int64(binary.LittleEndian.Uint64(raw[8:16])),
		}
		count := int(binary.LittleEndian.Uint32(raw[16:20]))
		raw = raw[frameHeaderSize:]
		if len(raw) < count*ballRecordSize {
			return frames, errShortFrame
		}
		f.Balls = make([]BallState, count)
		for i := range f.Balls {
			rec := raw[:ballRecordSize]
			var vals [6]float64
			for j := range vals {
				vals[j] = math.Float64frombits(binary.LittleEndian.Uint64(rec[5+8*j:]))
			}
			f.Balls[i] = BallState{
				ID:       int(binary.LittleEndian.Uint32(rec[0:4])),
				Active:   rec[4]&flagActive != 0,
				Grounded: rec[4]&flagGrounded != 0,
				Position: physics.Vec3{X: vals[0], Y: vals[1], Z: vals[2]},
				Velocity: physics.Vec3{X: vals[3], Y: vals[4], Z: vals[5]},
			}
			raw = raw[ballRecordSize:]
		}
		frames = append(frames, f)
	}
	return frames, nil
}
