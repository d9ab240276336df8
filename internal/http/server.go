package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"swingspin/bowler/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// NewMux registers the ops handlers and mounts feed at /ws when present.
func NewMux(handlers *HandlerSet, feed http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	handlers.Register(mux)
	if feed != nil {
		mux.Handle("/ws", feed)
	}
	return mux
}

// Serve runs handler on addr until ctx ends, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.L()
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("http listening", logging.String("addr", listener.Addr().String()))

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
