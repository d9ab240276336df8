package replay

import (
	"testing"
	"time"

	"swingspin/bowler/internal/bowling"
	"swingspin/bowler/internal/logging"
	"swingspin/bowler/internal/physics"
)

func TestRecorderCapturesLifecycleAndFrames(t *testing.T) {
	writer, _, err := NewWriter(t.TempDir(), "rec", fixedClock())
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	rec := NewRecorder(writer, 20*time.Millisecond, logging.NewTestLogger())

	world := physics.NewWorld()
	body := world.AddBody(0.12)
	body.SetActive(true)
	body.SetPosition(physics.Vec3{Y: 1})

	rec.DeliveryStarted(bowling.Delivery{ID: 4, BallID: 0, At: 200 * time.Millisecond})
	rec.CaptureFrame(200*time.Millisecond, world.Bodies())
	rec.BallLanded(bowling.Landing{DeliveryID: 4, At: 680 * time.Millisecond})
	rec.BallRetired(bowling.Retirement{DeliveryID: 4, At: 8200 * time.Millisecond})
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	bundle, err := Load(writer.Directory())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(bundle.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(bundle.Events))
	}
	landing := bundle.EventsOfType(EventLanding)
	if len(landing) != 1 || landing[0].Tick != 34 || landing[0].SimulatedMs != 680 {
		t.Fatalf("unexpected landing event %+v", landing)
	}
	var d struct {
		ID   uint64 `json:"id"`
		Mode string `json:"mode"`
	}
	if err := bundle.EventsOfType(EventDelivery)[0].Decode(&d); err != nil || d.ID != 4 || d.Mode != "SWING" {
		t.Fatalf("unexpected delivery payload %+v (%v)", d, err)
	}
	if len(bundle.Frames) != 1 || bundle.Frames[0].Tick != 10 || bundle.Frames[0].Balls[0].Position.Y != 1 {
		t.Fatalf("unexpected frames %+v", bundle.Frames)
	}
	if bundle.Header.Deliveries != 1 {
		t.Fatalf("expected header to count one delivery, got %d", bundle.Header.Deliveries)
	}
}

func TestRecorderLogsAfterClose(t *testing.T) {
	writer, _, err := NewWriter(t.TempDir(), "closed", fixedClock())
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	rec := NewRecorder(writer, 0, nil)
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	rec.DeliveryStarted(bowling.Delivery{ID: 1})
	rec.CaptureFrame(0, nil)
}
