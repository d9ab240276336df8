package replayplayer

import (
	"fmt"

	"swingspin/bowler/internal/bowling"
	"swingspin/bowler/internal/physics"
	"swingspin/bowler/internal/replay"
)

// DeliveryReport joins a delivery with its first bounce and retirement.
type DeliveryReport struct {
	Delivery  bowling.Delivery `json:"delivery"`
	Landing   *bowling.Landing `json:"landing,omitempty"`
	RetiredMs *int64           `json:"retired_ms,omitempty"`
	// MissMetres is the horizontal gap between the marker and the bounce.
	MissMetres *float64 `json:"miss_metres,omitempty"`
}

// Report summarises one recorded session.
type Report struct {
	Manifest   replay.Manifest  `json:"manifest"`
	Header     replay.Header    `json:"header"`
	Deliveries []DeliveryReport `json:"deliveries"`
	Frames     int              `json:"frames"`
	DurationMs int64            `json:"duration_ms"`
}

// ReplayBundle loads the session stored at path and builds its report.
func ReplayBundle(path string) (Report, error) {
	if path == "" {
		return Report{}, fmt.Errorf("path is required")
	}
	bundle, err := replay.Load(path)
	if err != nil {
		return Report{}, err
	}
	return Summarize(bundle)
}

// Summarize folds the event log into per-delivery reports in bowling order.
func Summarize(bundle *replay.Bundle) (Report, error) {
	report := Report{Manifest: bundle.Manifest, Header: bundle.Header, Frames: len(bundle.Frames)}
	index := make(map[uint64]int)

	for _, ev := range bundle.Events {
		//1.- Deliveries open a report; landings and retirements attach by id.
		switch ev.Type {
		case replay.EventDelivery:
			var d bowling.Delivery
			if err := ev.Decode(&d); err != nil {
				return Report{}, fmt.Errorf("decode delivery at tick %d: %w", ev.Tick, err)
			}
			index[d.ID] = len(report.Deliveries)
			report.Deliveries = append(report.Deliveries, DeliveryReport{Delivery: d})
		case replay.EventLanding:
			var l bowling.Landing
			if err := ev.Decode(&l); err != nil {
				return Report{}, fmt.Errorf("decode landing at tick %d: %w", ev.Tick, err)
			}
			i, ok := index[l.DeliveryID]
			if !ok {
				continue
			}
			entry := &report.Deliveries[i]
			entry.Landing = &l
			miss := horizontalMiss(entry.Delivery.Target, l.Point)
			entry.MissMetres = &miss
		case replay.EventRetired:
			var r bowling.Retirement
			if err := ev.Decode(&r); err != nil {
				return Report{}, fmt.Errorf("decode retirement at tick %d: %w", ev.Tick, err)
			}
			if i, ok := index[r.DeliveryID]; ok {
				ms := r.At.Milliseconds()
				report.Deliveries[i].RetiredMs = &ms
			}
		}
		if ev.SimulatedMs > report.DurationMs {
			report.DurationMs = ev.SimulatedMs
		}
	}
	if n := len(bundle.Frames); n > 0 && bundle.Frames[n-1].SimulatedMs > report.DurationMs {
		report.DurationMs = bundle.Frames[n-1].SimulatedMs
	}
	return report, nil
}

// Track extracts the recorded positions of one ball while it was visible.
func Track(frames []replay.Frame, ballID int) []physics.Vec3 {
	var out []physics.Vec3
	for _, f := range frames {
		for _, b := range f.Balls {
			if b.ID == ballID && b.Active {
				out = append(out, b.Position)
			}
		}
	}
	return out
}

func horizontalMiss(target, point physics.Vec3) float64 {
	return point.Sub(target).HorizontalLength()
}
