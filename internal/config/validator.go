package config

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/markovflow/internal/state"
)

// Validate checks the config for:
//   - Required fields and a known state strategy
//   - Positive engine sizing (workers, queue, timeout, window, cadence)
//   - Solver parameter ranges (damping, tolerance, iteration cap)
//   - Duplicate scenario IDs and empty exclusion sets
//   - Alert threshold ordering (warn ≤ critical)
//
// All problems are reported at once.
func Validate(cfg *Config, strategies *state.Registry) error {
	var errs []string

	if cfg.Version == "" {
		errs = append(errs, "version is required")
	}

	if cfg.Engine.IngestWorkers <= 0 {
		errs = append(errs, fmt.Sprintf("engine.ingest_workers must be positive, got %d", cfg.Engine.IngestWorkers))
	}
	if cfg.Engine.QueueDepth <= 0 {
		errs = append(errs, fmt.Sprintf("engine.queue_depth must be positive, got %d", cfg.Engine.QueueDepth))
	}
	if cfg.Engine.EventTimeoutMs <= 0 {
		errs = append(errs, fmt.Sprintf("engine.event_timeout_ms must be positive, got %d", cfg.Engine.EventTimeoutMs))
	}
	if cfg.Engine.WindowSize <= 0 {
		errs = append(errs, fmt.Sprintf("engine.window_size must be positive, got %d", cfg.Engine.WindowSize))
	}
	if cfg.Engine.RebuildIntervalMs <= 0 {
		errs = append(errs, fmt.Sprintf("engine.rebuild_interval_ms must be positive, got %d", cfg.Engine.RebuildIntervalMs))
	}

	if _, err := strategies.Get(cfg.State.Strategy); err != nil {
		errs = append(errs, fmt.Sprintf("state.strategy: %s (known: %s)",
			err, strings.Join(strategies.Names(), ", ")))
	}
	if cfg.State.SessionGapMs < 0 {
		errs = append(errs, "state.session_gap_ms must not be negative")
	}

	if d := cfg.Solver.Damping; d <= 0 || d > 1 {
		errs = append(errs, fmt.Sprintf("solver.damping must be in (0,1], got %g", d))
	}
	if cfg.Solver.Tolerance <= 0 {
		errs = append(errs, fmt.Sprintf("solver.tolerance must be positive, got %g", cfg.Solver.Tolerance))
	}
	if cfg.Solver.MaxIterations <= 0 {
		errs = append(errs, fmt.Sprintf("solver.max_iterations must be positive, got %d", cfg.Solver.MaxIterations))
	}

	ids := make(map[string]struct{})
	for i, sc := range cfg.Scenarios {
		if sc.ID == "" {
			errs = append(errs, fmt.Sprintf("scenarios[%d]: id is required", i))
			continue
		}
		if _, dup := ids[sc.ID]; dup {
			errs = append(errs, fmt.Sprintf("duplicate scenario id %q", sc.ID))
		} else {
			ids[sc.ID] = struct{}{}
		}
		if len(sc.ExcludeActors) == 0 && len(sc.ExcludeEntities) == 0 {
			errs = append(errs, fmt.Sprintf("scenario %s: exclusion set must not be empty", sc.ID))
		}
	}

	if cfg.Alerts.KLWarn > cfg.Alerts.KLCritical {
		errs = append(errs, fmt.Sprintf("alerts: kl_warn %g exceeds kl_critical %g",
			cfg.Alerts.KLWarn, cfg.Alerts.KLCritical))
	}
	if cfg.Alerts.TVWarn > cfg.Alerts.TVCritical {
		errs = append(errs, fmt.Sprintf("alerts: tv_warn %g exceeds tv_critical %g",
			cfg.Alerts.TVWarn, cfg.Alerts.TVCritical))
	}

	switch cfg.Storage.Driver {
	case "memory":
	case "postgres":
		if cfg.Storage.DSN == "" {
			errs = append(errs, "storage: dsn is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.driver must be memory or postgres, got %q", cfg.Storage.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
