package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"swingspin/bowler/internal/logging"
)

// NewServer builds a gRPC server exposing svc and the standard health service.
func NewServer(svc *Service, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(opts...)
	Register(server, svc)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return server, healthServer
}

// Serve listens on addr and serves until ctx ends, then stops gracefully.
func Serve(ctx context.Context, addr string, server *grpc.Server, healthServer *health.Server, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.L()
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	logger.Info("grpc listening", logging.String("addr", listener.Addr().String()))

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()

	select {
	case <-ctx.Done():
		//1.- Flip health first so probes stop routing before connections drain.
		if healthServer != nil {
			healthServer.Shutdown()
		}
		server.GracefulStop()
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
