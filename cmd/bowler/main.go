package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"swingspin/bowler/internal/audio"
	"swingspin/bowler/internal/bowling"
	"swingspin/bowler/internal/config"
	httpapi "swingspin/bowler/internal/http"
	"swingspin/bowler/internal/history"
	"swingspin/bowler/internal/logging"
	"swingspin/bowler/internal/meter"
	"swingspin/bowler/internal/replay"
	"swingspin/bowler/internal/rpc"
	"swingspin/bowler/internal/session"
	"swingspin/bowler/internal/simulation"
	"swingspin/bowler/internal/telemetry"
)

const (
	cleanerInterval = time.Minute
	feedBuffer      = 64
	resetWindow     = time.Minute
	resetLimit      = 5
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bowler:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionID := logging.GenerateSessionID()
	log := logger.With(logging.String("session_id", sessionID))
	step := time.Duration(float64(time.Second) / cfg.TickHz)

	bowler := assemble(ctx, cfg, sessionID, step, log)

	screen, err := tcell.NewScreen()
	if err != nil {
		bowler.shutdown(stop)
		return fmt.Errorf("open terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		bowler.shutdown(stop)
		return fmt.Errorf("init terminal: %w", err)
	}

	//1.- The loop owns the fixed step; the terminal only queues commands and draws.
	bowler.loop.Start(ctx)
	log.Info("session started", logging.Float64("tick_hz", cfg.TickHz))
	newTerminal(screen, bowler.session).run(ctx)
	screen.Fini()

	bowler.shutdown(stop)
	log.Info("session finished", logging.Uint64("deliveries", bowler.session.Deliveries()))
	return nil
}

// app holds the session and every optional collaborator started for it.
type app struct {
	session *session.Session
	loop    *simulation.Loop
	monitor *simulation.TickMonitor
	store   *history.Store
	cleaner *replay.Cleaner
	hub     *telemetry.Hub
	feed    *rpc.Feed
	cues    *audio.Cues
	log     *logging.Logger
	wg      sync.WaitGroup
}

// assemble opens the configured sinks and servers around a new session.
// A sink that fails to open degrades readiness instead of aborting.
func assemble(ctx context.Context, cfg *config.Config, sessionID string, step time.Duration, log *logging.Logger) *app {
	a := &app{log: log, monitor: simulation.NewTickMonitor()}
	opts := []session.Option{session.WithLogger(log)}
	var startupErr error

	//1.- Replay bundle plus retention sweeping.
	if cfg.ReplayDir != "" {
		writer, _, err := replay.NewWriter(cfg.ReplayDir, sessionID, nil)
		if err != nil {
			log.Warn("replay disabled", logging.Error(err))
			startupErr = errors.Join(startupErr, fmt.Errorf("replay: %w", err))
		} else {
			writer.SetHeaderMetadata(sessionID, tuningFor(cfg))
			opts = append(opts, session.WithRecorder(replay.NewRecorder(writer, step, log)))
			log.Info("recording replay", logging.String("dir", writer.Directory()))
		}
		a.cleaner = replay.NewCleaner(cfg.ReplayDir, replay.RetentionPolicy{MaxSessions: cfg.ReplayKeep}, log)
	}

	//2.- Delivery history.
	if cfg.HistoryPath != "" {
		store, err := history.Open(ctx, cfg.HistoryPath)
		if err != nil {
			log.Warn("history disabled", logging.Error(err))
			startupErr = errors.Join(startupErr, fmt.Errorf("history: %w", err))
		} else {
			a.store = store
			opts = append(opts, session.WithHistory(store))
		}
	}

	//3.- Live viewers and the gRPC event feed observe the game.
	if cfg.HTTPAddr != "" {
		a.hub = telemetry.NewHub(telemetry.WithLogger(log))
		hub := a.hub
		opts = append(opts,
			session.WithObserver(hub),
			session.WithFrameSink(func(f replay.Frame) {
				if err := hub.Broadcast(telemetry.TypeFrame, f); err != nil {
					log.Debug("frame broadcast failed", logging.Error(err))
				}
			}),
		)
	}
	if cfg.GRPCAddr != "" {
		a.feed = rpc.NewFeed(feedBuffer, log)
		opts = append(opts, session.WithObserver(a.feed))
	}

	//4.- Audio never blocks startup.
	if cfg.AudioEnabled {
		a.cues = audio.New(log)
		if err := a.cues.Init(); err != nil {
			log.Warn("audio unavailable", logging.Error(err))
		}
		opts = append(opts, session.WithObserver(a.cues))
	}

	opts = append(opts, session.WithStartupError(startupErr))
	m := meter.New(cfg.Meter.Speed, meter.Zones{Perfect: cfg.Meter.PerfectZone, Good: cfg.Meter.GoodZone, Fair: cfg.Meter.FairZone})
	a.session = session.New(sessionID, bowling.ConfigFrom(cfg), m, opts...)
	a.loop = simulation.NewLoop(cfg.TickHz, a.session.Step, simulation.WithMonitor(a.monitor))

	a.serve(ctx, cfg)
	return a
}

// serve starts the background servers; each stops when ctx ends.
func (a *app) serve(ctx context.Context, cfg *config.Config) {
	if a.cleaner != nil {
		a.goRun(func() { a.cleaner.Run(ctx, cleanerInterval) })
	}
	if a.hub != nil {
		handlers := httpapi.NewHandlerSet(httpapi.Options{
			Logger:      a.log,
			Readiness:   a.session,
			Metrics:     a.metrics,
			Recent:      a.recent(),
			Reset:       a.session,
			AdminToken:  cfg.AdminToken,
			RateLimiter: httpapi.NewSlidingWindowLimiter(resetWindow, resetLimit, nil),
		})
		mux := httpapi.NewMux(handlers, a.hub)
		a.goRun(func() {
			if err := httpapi.Serve(ctx, cfg.HTTPAddr, mux, a.log); err != nil {
				a.log.Error("http server stopped", logging.Error(err))
			}
		})
	}
	if a.feed != nil {
		server, health := rpc.NewServer(rpc.NewService(a.session, rpc.WithEventSource(a.feed)))
		a.goRun(func() {
			if err := rpc.Serve(ctx, cfg.GRPCAddr, server, health, a.log); err != nil {
				a.log.Error("grpc server stopped", logging.Error(err))
			}
		})
	}
}

func (a *app) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *app) metrics() httpapi.Metrics {
	m := httpapi.Metrics{
		Deliveries: a.session.Deliveries(),
		Tick:       a.monitor.Snapshot(),
		Pool:       a.session.PoolStats(),
	}
	if a.hub != nil {
		m.Viewers = a.hub.Clients()
	}
	if a.cleaner != nil {
		stats := a.cleaner.Stats()
		m.Replay = &stats
	}
	return m
}

func (a *app) recent() httpapi.RecentFunc {
	if a.store == nil {
		return nil
	}
	return func(ctx context.Context, limit int) (any, error) {
		return a.store.Recent(ctx, limit)
	}
}

// shutdown stops the loop before the sinks it feeds, then waits for servers.
func (a *app) shutdown(cancel context.CancelFunc) {
	if a.loop != nil {
		a.loop.Stop()
	}
	if err := a.session.Close(); err != nil {
		a.log.Error("close session", logging.Error(err))
	}
	cancel()
	if a.hub != nil {
		a.hub.Close()
	}
	if a.feed != nil {
		a.feed.Close()
	}
	a.wg.Wait()
	if a.cues != nil {
		a.cues.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error("close history", logging.Error(err))
		}
	}
}

// tuningFor records the knobs that shape a delivery in the replay header.
func tuningFor(cfg *config.Config) replay.Tuning {
	return replay.Tuning{
		"target_ball_speed": cfg.Physics.TargetBallSpeed,
		"swing_force":       cfg.Physics.SwingForce,
		"spin_angle":        cfg.Physics.SpinAngle,
		"gravity":           cfg.Physics.Gravity,
		"meter_speed":       cfg.Meter.Speed,
		"perfect_zone":      cfg.Meter.PerfectZone,
		"good_zone":         cfg.Meter.GoodZone,
		"fair_zone":         cfg.Meter.FairZone,
		"cooldown_seconds":  cfg.Cooldown.Seconds(),
		"tick_hz":           cfg.TickHz,
	}
}
