package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls a remote DeliveryService.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// LastDelivery fetches the most recent delivery.
func (c *Client) LastDelivery(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodLastDelivery, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats fetches the summary.
func (c *Client) Stats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodStats, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// EventStream decodes frames from StreamEvents.
type EventStream struct {
	stream     grpc.ClientStream
	compressor Compressor
}

// StreamEvents opens the event stream and resolves its codec from the header.
func (c *Client) StreamEvents(ctx context.Context, opts ...grpc.CallOption) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], methodStreamEvents, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	header, err := stream.Header()
	if err != nil {
		return nil, err
	}
	values := header.Get(EncodingHeader)
	if len(values) == 0 {
		return nil, fmt.Errorf("stream header missing %s", EncodingHeader)
	}
	compressor, err := CompressorByName(values[0])
	if err != nil {
		return nil, err
	}
	return &EventStream{stream: stream, compressor: compressor}, nil
}

// Recv blocks for the next event. io.EOF marks the end of the stream.
func (s *EventStream) Recv() (Event, error) {
	frame := new(wrapperspb.BytesValue)
	if err := s.stream.RecvMsg(frame); err != nil {
		return Event{}, err
	}
	raw, err := s.compressor.Decompress(frame.GetValue())
	if err != nil {
		return Event{}, err
	}
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return event, nil
}
