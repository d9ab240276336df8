package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"swingspin/bowler/internal/bowling"
	"swingspin/bowler/internal/logging"
)

type backendStub struct {
	last    bowling.Delivery
	hasLast bool
	stats   any
	err     error
}

func (b *backendStub) LastDelivery() (bowling.Delivery, bool) { return b.last, b.hasLast }

func (b *backendStub) Stats(context.Context) (any, error) { return b.stats, b.err }

type manualSource struct {
	ch  chan Event
	err error
}

func (m *manualSource) Subscribe(context.Context) (<-chan Event, func(), error) {
	if m.err != nil {
		return nil, func() {}, m.err
	}
	return m.ch, func() {}, nil
}

type eventStreamStub struct {
	ctx    context.Context
	header metadata.MD
	frames []*wrapperspb.BytesValue
}

func (s *eventStreamStub) Send(frame *wrapperspb.BytesValue) error {
	s.frames = append(s.frames, frame)
	return nil
}

func (s *eventStreamStub) SetHeader(md metadata.MD) error { return nil }
func (s *eventStreamStub) SendHeader(md metadata.MD) error {
	s.header = md
	return nil
}
func (s *eventStreamStub) SetTrailer(metadata.MD)   {}
func (s *eventStreamStub) Context() context.Context { return s.ctx }
func (s *eventStreamStub) SendMsg(m any) error      { return s.Send(m.(*wrapperspb.BytesValue)) }
func (s *eventStreamStub) RecvMsg(any) error        { return nil }

var _ grpc.ServerStreamingServer[wrapperspb.BytesValue] = (*eventStreamStub)(nil)

// pumpTicks feeds tickCh until done closes.
func pumpTicks(tickCh chan time.Time, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-time.After(2 * time.Millisecond):
			select {
			case tickCh <- time.Now():
			default:
			}
		}
	}
}

func TestServiceLastDelivery(t *testing.T) {
	service := NewService(&backendStub{})
	if _, err := service.LastDelivery(context.Background(), &emptypb.Empty{}); status.Code(err) != codes.NotFound {
		t.Fatalf("expected not found before any delivery, got %v", err)
	}

	service = NewService(&backendStub{last: bowling.Delivery{ID: 4, BallID: 1, Side: "RIGHT", Duration: 0.48}, hasLast: true})
	out, err := service.LastDelivery(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("last delivery: %v", err)
	}
	fields := out.GetFields()
	if fields["id"].GetNumberValue() != 4 || fields["side"].GetStringValue() != "RIGHT" {
		t.Fatalf("unexpected struct %v", out)
	}
	if fields["mode"].GetStringValue() != "SWING" || fields["accuracy"].GetStringValue() != "poor" {
		t.Fatalf("enums should encode as text, got %v", out)
	}
}

func TestServiceStats(t *testing.T) {
	service := NewService(&backendStub{stats: map[string]any{"deliveries": 3, "pool": map[string]int{"in_use": 2}}})
	out, err := service.Stats(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if out.GetFields()["deliveries"].GetNumberValue() != 3 {
		t.Fatalf("unexpected stats %v", out)
	}
	if out.GetFields()["pool"].GetStructValue().GetFields()["in_use"].GetNumberValue() != 2 {
		t.Fatalf("nested stats missing: %v", out)
	}

	failing := NewService(&backendStub{err: errors.New("db locked")})
	if _, err := failing.Stats(context.Background(), &emptypb.Empty{}); status.Code(err) != codes.Internal {
		t.Fatalf("expected internal error, got %v", err)
	}
	var nilService *Service
	if _, err := nilService.Stats(context.Background(), &emptypb.Empty{}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
}

func TestServiceStreamEventsOrdering(t *testing.T) {
	source := &manualSource{ch: make(chan Event, 3)}
	tickCh := make(chan time.Time, 1)
	service := NewService(&backendStub{}, WithEventSource(source), WithTickerFactory(func(time.Duration) (<-chan time.Time, func()) {
		return tickCh, func() {}
	}))

	for i, kind := range []string{EventDelivery, EventLanding, EventRetired} {
		source.ch <- Event{Type: kind, AtMs: int64(i * 100), Payload: json.RawMessage(`{}`)}
	}
	close(source.ch)

	stream := &eventStreamStub{ctx: context.Background()}
	done := make(chan struct{})
	go pumpTicks(tickCh, done)
	err := service.StreamEvents(&emptypb.Empty{}, stream)
	close(done)
	if err != nil {
		t.Fatalf("stream events: %v", err)
	}

	if got := stream.header.Get(EncodingHeader); len(got) != 1 || got[0] != "snappy" {
		t.Fatalf("unexpected encoding header %v", stream.header)
	}
	if len(stream.frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(stream.frames))
	}
	compressor := NewSnappyCompressor()
	for i, want := range []string{EventDelivery, EventLanding, EventRetired} {
		raw, err := compressor.Decompress(stream.frames[i].GetValue())
		if err != nil {
			t.Fatalf("frame %d decompress: %v", i, err)
		}
		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			t.Fatalf("frame %d decode: %v", i, err)
		}
		if event.Type != want || event.AtMs != int64(i*100) {
			t.Fatalf("frame %d: got %+v want type %s", i, event, want)
		}
	}
}

func TestServiceStreamEventsErrors(t *testing.T) {
	service := NewService(&backendStub{})
	if err := service.StreamEvents(&emptypb.Empty{}, &eventStreamStub{ctx: context.Background()}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition without a source, got %v", err)
	}

	service = NewService(&backendStub{}, WithEventSource(&manualSource{err: ErrFeedClosed}))
	if err := service.StreamEvents(&emptypb.Empty{}, &eventStreamStub{ctx: context.Background()}); status.Code(err) != codes.Unavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	service = NewService(&backendStub{}, WithEventSource(&manualSource{ch: make(chan Event)}))
	if err := service.StreamEvents(&emptypb.Empty{}, &eventStreamStub{ctx: ctx}); status.Code(err) != codes.Canceled {
		t.Fatalf("expected cancelled, got %v", err)
	}
}

func TestFeedFanOutAndCancel(t *testing.T) {
	feed := NewFeed(1, logging.NewTestLogger())
	first, cancelFirst, err := feed.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ctx, cancelCtx := context.WithCancel(context.Background())
	second, _, err := feed.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	feed.DeliveryStarted(bowling.Delivery{ID: 1, At: 1500 * time.Millisecond})
	feed.BallLanded(bowling.Landing{DeliveryID: 1})
	if feed.Dropped() != 2 {
		t.Fatalf("expected the second event dropped for both subscribers, got %d", feed.Dropped())
	}
	for _, ch := range []<-chan Event{first, second} {
		event := <-ch
		if event.Type != EventDelivery || event.AtMs != 1500 {
			t.Fatalf("unexpected event %+v", event)
		}
	}

	cancelFirst()
	cancelFirst()
	if _, ok := <-first; ok {
		t.Fatalf("cancelled subscription should be closed")
	}
	cancelCtx()
	deadline := time.Now().Add(time.Second)
	for feed.Subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if feed.Subscribers() != 0 {
		t.Fatalf("context cancellation should unsubscribe")
	}

	feed.Close()
	if _, _, err := feed.Subscribe(context.Background()); !errors.Is(err, ErrFeedClosed) {
		t.Fatalf("expected ErrFeedClosed, got %v", err)
	}
}
