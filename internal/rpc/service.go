package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"swingspin/bowler/internal/bowling"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "bowler.v1.DeliveryService"

	methodLastDelivery = "/" + ServiceName + "/LastDelivery"
	methodStats        = "/" + ServiceName + "/Stats"
	methodStreamEvents = "/" + ServiceName + "/StreamEvents"

	// EncodingHeader names the stream header carrying the payload codec.
	EncodingHeader = "x-payload-encoding"

	eventStreamRateHz = 20
)

// Backend is the game state queried by the service.
type Backend interface {
	LastDelivery() (bowling.Delivery, bool)
	// Stats returns a JSON encodable summary.
	Stats(ctx context.Context) (any, error)
}

// DeliveryServer is the server API for bowler.v1.DeliveryService.
type DeliveryServer interface {
	LastDelivery(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	StreamEvents(*emptypb.Empty, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error
}

// Option customises the behaviour of the gRPC service.
type Option func(*Service)

// tickerFactory constructs cancellable tick channels for throttled streaming.
type tickerFactory func(time.Duration) (<-chan time.Time, func())

// WithCompressor overrides the default payload compressor.
func WithCompressor(compressor Compressor) Option {
	return func(s *Service) {
		if compressor != nil {
			s.compressor = compressor
		}
	}
}

// WithEventSource enables StreamEvents.
func WithEventSource(source EventSource) Option {
	return func(s *Service) { s.events = source }
}

// WithTickerFactory overrides the throttling ticker factory (used in tests).
func WithTickerFactory(factory tickerFactory) Option {
	return func(s *Service) {
		if factory != nil {
			s.newTicker = factory
		}
	}
}

func defaultTickerFactory(interval time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(interval)
	return ticker.C, ticker.Stop
}

// Service implements DeliveryServer on top of a Backend.
type Service struct {
	backend    Backend
	events     EventSource
	compressor Compressor
	newTicker  tickerFactory
}

// NewService wires the gRPC service to the backend and optional settings.
func NewService(backend Backend, opts ...Option) *Service {
	service := &Service{backend: backend, compressor: NewSnappyCompressor(), newTicker: defaultTickerFactory}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service
}

// LastDelivery returns the most recent accepted delivery.
func (s *Service) LastDelivery(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "game unavailable")
	}
	d, ok := s.backend.LastDelivery()
	if !ok {
		return nil, status.Error(codes.NotFound, "no delivery bowled yet")
	}
	out, err := toStruct(d)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode delivery: %v", err)
	}
	return out, nil
}

// Stats returns the backend summary.
func (s *Service) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.backend == nil {
		return nil, status.Error(codes.FailedPrecondition, "game unavailable")
	}
	summary, err := s.backend.Stats(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "stats: %v", err)
	}
	out, err := toStruct(summary)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode stats: %v", err)
	}
	return out, nil
}

// StreamEvents relays lifecycle events as compressed JSON frames.
func (s *Service) StreamEvents(_ *emptypb.Empty, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	if s == nil || s.events == nil {
		return status.Error(codes.FailedPrecondition, "streaming unavailable")
	}
	ctx := stream.Context()
	//1.- Subscribe to the feed so we receive future events.
	eventCh, cancel, err := s.events.Subscribe(ctx)
	if err != nil {
		return status.Errorf(codes.Unavailable, "subscribe events: %v", err)
	}
	defer cancel()

	//2.- Advertise the codec before the first frame.
	if err := stream.SendHeader(metadata.Pairs(EncodingHeader, s.compressor.Name())); err != nil {
		return err
	}

	tickCh, stop := s.newTicker(time.Second / eventStreamRateHz)
	defer stop()

	var (
		pending []Event
		closed  bool
	)
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return status.Error(codes.Canceled, "stream cancelled")
			}
			return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
		case event, ok := <-eventCh:
			if !ok {
				//3.- Drain what is buffered, then finish.
				closed = true
				eventCh = nil
				if len(pending) == 0 {
					return nil
				}
				continue
			}
			pending = append(pending, event)
		case <-tickCh:
			if len(pending) == 0 {
				if closed {
					return nil
				}
				continue
			}
			//4.- Flush the whole backlog each tick, oldest first.
			for _, event := range pending {
				raw, err := json.Marshal(event)
				if err != nil {
					return status.Errorf(codes.Internal, "encode event: %v", err)
				}
				compressed, err := s.compressor.Compress(raw)
				if err != nil {
					return status.Errorf(codes.Internal, "compress event: %v", err)
				}
				if err := stream.Send(wrapperspb.Bytes(compressed)); err != nil {
					return err
				}
			}
			pending = pending[:0]
		}
	}
}

// toStruct converts any JSON encodable value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Register attaches srv to the gRPC server.
func Register(server grpc.ServiceRegistrar, srv DeliveryServer) {
	server.RegisterService(&serviceDesc, srv)
}

func lastDeliveryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeliveryServer).LastDelivery(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodLastDelivery}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeliveryServer).LastDelivery(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeliveryServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStats}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeliveryServer).Stats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func streamEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DeliveryServer).StreamEvents(in, &grpc.GenericServerStream[emptypb.Empty, wrapperspb.BytesValue]{ServerStream: stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DeliveryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "LastDelivery", Handler: lastDeliveryHandler},
		{MethodName: "Stats", Handler: statsHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamEvents", Handler: streamEventsHandler, ServerStreams: true},
	},
	Metadata: "bowler/v1/delivery.proto",
}

var _ DeliveryServer = (*Service)(nil)
