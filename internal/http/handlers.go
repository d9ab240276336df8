package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"swingspin/bowler/internal/logging"
	"swingspin/bowler/internal/pool"
	"swingspin/bowler/internal/replay"
	"swingspin/bowler/internal/simulation"
)

// ReadinessProvider exposes simulator state required for readiness checks.
type ReadinessProvider interface {
	StartupError() error
	Uptime() time.Duration
}

// Metrics is one sample of the simulator counters.
type Metrics struct {
	Deliveries uint64
	Viewers    int
	Tick       simulation.TickMetricsSnapshot
	Pool       pool.Stats
	Replay     *replay.StorageStats
}

// MetricsFunc samples the simulator counters.
type MetricsFunc func() Metrics

// RecentFunc lists up to limit recent deliveries.
type RecentFunc func(ctx context.Context, limit int) (any, error)

// Resetter re-arms the game.
type Resetter interface {
	Reset(ctx context.Context) error
}

// ResetterFunc adapts a function into a Resetter.
type ResetterFunc func(ctx context.Context) error

// Reset implements Resetter.
func (f ResetterFunc) Reset(ctx context.Context) error { return f(ctx) }

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Readiness   ReadinessProvider
	Metrics     MetricsFunc
	Recent      RecentFunc
	Reset       Resetter
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
}

// HandlerSet bundles the simulator operational handlers.
type HandlerSet struct {
	logger      *logging.Logger
	readiness   ReadinessProvider
	metrics     MetricsFunc
	recent      RecentFunc
	reset       Resetter
	adminToken  string
	rateLimiter RateLimiter
	now         func() time.Time
}

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:      logger,
		readiness:   opts.Readiness,
		metrics:     opts.Metrics,
		recent:      opts.Recent,
		reset:       opts.Reset,
		adminToken:  strings.TrimSpace(opts.AdminToken),
		rateLimiter: opts.RateLimiter,
		now:         now,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/deliveries", h.RecentHandler())
	mux.HandleFunc("/admin/reset", h.ResetHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports whether every configured sink started.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.readiness != nil {
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m Metrics
		if h.metrics != nil {
			m = h.metrics()
		}
		var uptime float64
		if h.readiness != nil {
			uptime = h.readiness.Uptime().Seconds()
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(w, "# HELP bowler_uptime_seconds Simulator uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE bowler_uptime_seconds gauge\n")
		fmt.Fprintf(w, "bowler_uptime_seconds %.0f\n", uptime)

		fmt.Fprintf(w, "# HELP bowler_deliveries_total Deliveries accepted by the orchestrator.\n")
		fmt.Fprintf(w, "# TYPE bowler_deliveries_total counter\n")
		fmt.Fprintf(w, "bowler_deliveries_total %d\n", m.Deliveries)

		fmt.Fprintf(w, "# HELP bowler_viewers Current connected telemetry viewers.\n")
		fmt.Fprintf(w, "# TYPE bowler_viewers gauge\n")
		fmt.Fprintf(w, "bowler_viewers %d\n", m.Viewers)

		fmt.Fprintf(w, "# HELP bowler_pool_balls Balls in the pool by state.\n")
		fmt.Fprintf(w, "# TYPE bowler_pool_balls gauge\n")
		fmt.Fprintf(w, "bowler_pool_balls{state=\"in_use\"} %d\n", m.Pool.InUse)
		fmt.Fprintf(w, "bowler_pool_balls{state=\"free\"} %d\n", m.Pool.Size-m.Pool.InUse)
		fmt.Fprintf(w, "# HELP bowler_pool_recycled_total Acquisitions that reused a ball still in flight.\n")
		fmt.Fprintf(w, "# TYPE bowler_pool_recycled_total counter\n")
		fmt.Fprintf(w, "bowler_pool_recycled_total %d\n", m.Pool.Recycled)

		fmt.Fprintf(w, "# HELP bowler_tick_seconds Physics step wall duration.\n")
		fmt.Fprintf(w, "# TYPE bowler_tick_seconds gauge\n")
		fmt.Fprintf(w, "bowler_tick_seconds{stat=\"average\"} %.6f\n", m.Tick.Average.Seconds())
		fmt.Fprintf(w, "bowler_tick_seconds{stat=\"max\"} %.6f\n", m.Tick.Max.Seconds())
		fmt.Fprintf(w, "# HELP bowler_ticks_skipped_total Steps dropped to bound catch-up.\n")
		fmt.Fprintf(w, "# TYPE bowler_ticks_skipped_total counter\n")
		fmt.Fprintf(w, "bowler_ticks_skipped_total %d\n", m.Tick.Skipped)

		if m.Replay != nil {
			fmt.Fprintf(w, "# HELP bowler_replay_sessions Replay sessions retained on disk.\n")
			fmt.Fprintf(w, "# TYPE bowler_replay_sessions gauge\n")
			fmt.Fprintf(w, "bowler_replay_sessions %d\n", m.Replay.Sessions)
			fmt.Fprintf(w, "# HELP bowler_replay_bytes Replay storage size in bytes.\n")
			fmt.Fprintf(w, "# TYPE bowler_replay_bytes gauge\n")
			fmt.Fprintf(w, "bowler_replay_bytes %d\n", m.Replay.Bytes)
			fmt.Fprintf(w, "# HELP bowler_replay_removed_total Replay sessions pruned by retention.\n")
			fmt.Fprintf(w, "# TYPE bowler_replay_removed_total counter\n")
			fmt.Fprintf(w, "bowler_replay_removed_total %d\n", m.Replay.Removed)
		}
	}
}

// RecentHandler lists recent deliveries from the history store.
func (h *HandlerSet) RecentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.recent == nil {
			http.Error(w, "delivery history is unavailable", http.StatusServiceUnavailable)
			return
		}
		limit := defaultRecentLimit
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = min(parsed, maxRecentLimit)
		}
		records, err := h.recent(r.Context(), limit)
		if err != nil {
			h.logger.Error("list deliveries failed", logging.Error(err))
			http.Error(w, "failed to list deliveries", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

// ResetHandler authorises and re-arms the game.
func (h *HandlerSet) ResetHandler() http.HandlerFunc {
	type response struct {
		Status string `json:"status"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "reset"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("reset denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("reset denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("reset denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.reset == nil {
			reqLogger.Warn("reset denied: no game attached")
			http.Error(w, "reset is unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := h.reset.Reset(r.Context()); err != nil {
			reqLogger.Error("reset failed", logging.Error(err))
			http.Error(w, "failed to reset", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("game reset")
		writeJSON(w, http.StatusAccepted, response{Status: "accepted"})
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
