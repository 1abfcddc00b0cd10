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

	"github.com/gyaneshwarpardhi/markovflow/internal/alert"
	"github.com/gyaneshwarpardhi/markovflow/internal/api"
	"github.com/gyaneshwarpardhi/markovflow/internal/config"
	"github.com/gyaneshwarpardhi/markovflow/internal/engine"
	"github.com/gyaneshwarpardhi/markovflow/internal/state"
	"github.com/gyaneshwarpardhi/markovflow/internal/store"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/detector.yaml", "Path to detector YAML config")
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
	strategies := state.NewRegistry()
	if err := config.Validate(cfg, strategies); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Archive store ─────────────────────────────────────────────────────────
	var archive store.Store
	switch cfg.Storage.Driver {
	case "postgres":
		archive, err = store.NewPostgres(ctx, cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to connect postgres store", "err", err)
			os.Exit(1)
		}
	default:
		archive = store.NewMemory(cfg.Storage.MaxEvents, cfg.Storage.MaxAlerts)
	}
	defer archive.Close()
	slog.Info("store ready", "driver", cfg.Storage.Driver)

	// ── Alert sinks ───────────────────────────────────────────────────────────
	sinks := alert.NewSinkRegistry()
	sinks.Register(alert.NewLogSink(logger))
	sinks.Register(alert.NewStoreSink(archive))

	// ── Detector ──────────────────────────────────────────────────────────────
	det, err := engine.New(ctx, cfg, strategies, sinks, archive)
	if err != nil {
		slog.Error("failed to start detector", "err", err)
		os.Exit(1)
	}
	slog.Info("detector started",
		"strategy", cfg.State.Strategy,
		"scenarios", len(cfg.Scenarios),
		"rebuild_interval", cfg.Engine.RebuildInterval())

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		if err := config.Validate(newCfg, strategies); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
			return
		}
		if err := det.UpdateConfig(newCfg, strategies, sinks); err != nil {
			slog.Warn("hot-reload skipped", "err", err)
			return
		}
		slog.Info("config hot-reloaded",
			"strategy", newCfg.State.Strategy, "scenarios", len(newCfg.Scenarios))
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(det, loader, strategies, sinks, archive)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
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
	cancel() // stop the rebuild loop and workers
	det.Shutdown()
	slog.Info("goodbye")
}
