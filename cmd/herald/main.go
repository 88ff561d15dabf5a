package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/herald/internal/api"
	"github.com/gyaneshwarpardhi/herald/internal/bus"
	"github.com/gyaneshwarpardhi/herald/internal/config"
	"github.com/gyaneshwarpardhi/herald/internal/correlate"
	"github.com/gyaneshwarpardhi/herald/internal/event"
	"github.com/gyaneshwarpardhi/herald/internal/gate"
	"github.com/gyaneshwarpardhi/herald/internal/ingest"
	"github.com/gyaneshwarpardhi/herald/internal/natsclient"
	"github.com/gyaneshwarpardhi/herald/internal/pipeline"
	"github.com/gyaneshwarpardhi/herald/internal/rules"
	"github.com/gyaneshwarpardhi/herald/internal/session"
	"github.com/gyaneshwarpardhi/herald/internal/sink"
)

// app ties the reloadable stages together for hot reload and forced reload.
type app struct {
	engine     *rules.Engine
	gate       *gate.Gate
	correlator *correlate.Correlator
}

// Apply pushes a validated config onto the running stages. Correlation group
// topology and NATS wiring are fixed at startup; everything else swaps live.
func (a *app) Apply(cfg *config.Config) error {
	if err := a.engine.Reload(cfg.RuleList(), cfg.DefaultTier()); err != nil {
		return err
	}
	quiet, err := gate.ParseQuietHours(cfg.QuietHours.Start, cfg.QuietHours.End)
	if err != nil {
		return err
	}
	a.gate.SetPolicy(quiet, time.Duration(cfg.Gate.MaxDeferMs)*time.Millisecond)
	a.correlator.SetParams(
		time.Duration(cfg.Correlation.WindowMs)*time.Millisecond,
		cfg.Correlation.Threshold,
	)
	return nil
}

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	cfgPath := flag.String("config", "configs/herald.yaml", "Path to YAML config")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Rule engine ───────────────────────────────────────────────────────────
	engine, err := rules.NewEngine(cfg.RuleList(), cfg.DefaultTier())
	if err != nil {
		slog.Error("failed to compile rules", "err", err)
		os.Exit(1)
	}
	slog.Info("rules loaded", "count", engine.Len(), "default", cfg.DefaultTier())

	// ── Bus ───────────────────────────────────────────────────────────────────
	grace := time.Duration(cfg.Bus.ShutdownGraceMs) * time.Millisecond
	b := bus.New(logger, cfg.Bus.QueueDepth, grace)

	// ── Sinks ─────────────────────────────────────────────────────────────────
	sinks := []sink.Sink{sink.NewLogSink(logger)}
	var nc *natsclient.Client
	if cfg.NATS.URL != "" {
		nc, err = natsclient.Connect(natsclient.Config{URL: cfg.NATS.URL, Token: cfg.NATS.Token}, logger)
		if err != nil {
			slog.Error("failed to connect to NATS", "err", err)
			os.Exit(1)
		}
		defer nc.Close()
		if cfg.NATS.AnnounceSubject != "" {
			sinks = append(sinks, sink.NewNATSSink(nc.Conn(), cfg.NATS.AnnounceSubject))
		}
	}
	dispatcher := sink.NewDispatcher(ctx, logger, sinks,
		cfg.Sink.Workers, cfg.Sink.QueueDepth,
		time.Duration(cfg.Sink.TimeoutMs)*time.Millisecond)

	// ── Gate and session tracking ─────────────────────────────────────────────
	tracker := session.NewTracker(time.Duration(cfg.Gate.SessionIdleMs) * time.Millisecond)
	quiet, err := gate.ParseQuietHours(cfg.QuietHours.Start, cfg.QuietHours.End)
	if err != nil {
		slog.Error("invalid quiet hours", "err", err)
		os.Exit(1)
	}
	g := gate.New(logger, tracker, dispatcher.Emit, quiet,
		time.Duration(cfg.Gate.MaxDeferMs)*time.Millisecond,
		time.Duration(cfg.Gate.SweepIntervalMs)*time.Millisecond)
	g.Start()

	// ── Correlator ────────────────────────────────────────────────────────────
	groups := make([]*correlate.Group, 0, len(cfg.Correlation.Groups))
	for _, gc := range cfg.Correlation.Groups {
		types := make([]event.Type, 0, len(gc.EventTypes))
		for _, t := range gc.EventTypes {
			types = append(types, event.Type(t))
		}
		groups = append(groups, &correlate.Group{
			Name:           gc.Name,
			EventTypes:     types,
			EntityPrefixes: gc.EntityPrefixes,
		})
	}
	correlator := correlate.New(logger, b, groups,
		time.Duration(cfg.Correlation.WindowMs)*time.Millisecond,
		cfg.Correlation.Threshold)

	// ── Pipeline wiring ───────────────────────────────────────────────────────
	pipe, err := pipeline.New(logger, b, engine, correlator, g, tracker)
	if err != nil {
		slog.Error("failed to wire pipeline", "err", err)
		os.Exit(1)
	}

	// History is just another subscriber; persistence belongs to collaborators.
	for _, t := range event.KnownTypes() {
		if _, err := pipe.Subscribe(t, "history", func(_ context.Context, ev *event.Event) {
			slog.Debug("event", "id", ev.ID, "type", ev.Type, "priority", ev.Priority(), "source", ev.Source)
		}); err != nil {
			slog.Error("failed to wire history subscriber", "err", err)
			os.Exit(1)
		}
	}

	// ── Ingest sources ────────────────────────────────────────────────────────
	schedules := make([]ingest.Schedule, 0, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		schedules = append(schedules, ingest.Schedule{
			Name:     s.Name,
			Interval: time.Duration(s.IntervalMs) * time.Millisecond,
			Payload:  s.Payload,
		})
	}
	scheduler := ingest.NewScheduler(logger, schedules, pipe)
	scheduler.Start(ctx)

	var adapter *ingest.NATSAdapter
	if nc != nil && len(cfg.NATS.Subscriptions) > 0 {
		mappings := make([]ingest.SubjectMapping, 0, len(cfg.NATS.Subscriptions))
		for _, s := range cfg.NATS.Subscriptions {
			mappings = append(mappings, ingest.SubjectMapping{
				Subject:   s.Subject,
				EventType: s.EventType,
				Source:    s.Source,
			})
		}
		adapter = ingest.NewNATSAdapter(logger, nc.Conn(), mappings, pipe)
		if err := adapter.Start(ctx); err != nil {
			slog.Error("failed to start NATS adapter", "err", err)
			os.Exit(1)
		}
	}

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	application := &app{engine: engine, gate: g, correlator: correlator}
	loader.OnChange(func(newCfg *config.Config) {
		if err := config.Validate(newCfg); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
			return
		}
		if err := application.Apply(newCfg); err != nil {
			slog.Warn("hot-reload skipped: apply failed", "err", err)
			return
		}
		slog.Info("config hot-reloaded", "rules", len(newCfg.Rules))
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	listen := cfg.HTTPAddr
	if *addr != "" {
		listen = *addr
	}
	handler := api.New(logger, pipe, loader, application, g, b)
	srv := &http.Server{
		Addr:         listen,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)

	scheduler.Stop()
	if adapter != nil {
		adapter.Stop()
	}
	correlator.FlushAll()
	b.Close()
	g.Stop()
	dispatcher.Drain()
	cancel()
	slog.Info("goodbye")
}
