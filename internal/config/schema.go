package config

import (
	"time"

	"github.com/gyaneshwarpardhi/markovflow/internal/alert"
	"github.com/gyaneshwarpardhi/markovflow/internal/markov"
	"github.com/gyaneshwarpardhi/markovflow/internal/perturb"
)

// Config is the top-level YAML structure.
type Config struct {
	Version   string             `yaml:"version"`
	Engine    EngineConf         `yaml:"engine"`
	State     StateConf          `yaml:"state"`
	Solver    SolverConf         `yaml:"solver"`
	Scenarios []perturb.Scenario `yaml:"scenarios"`
	Alerts    alert.Thresholds   `yaml:"alerts"`
	Storage   StorageConf        `yaml:"storage"`
}

// EngineConf holds tunable concurrency and windowing settings.
type EngineConf struct {
	IngestWorkers     int `yaml:"ingest_workers"`
	QueueDepth        int `yaml:"queue_depth"`
	EventTimeoutMs    int `yaml:"event_timeout_ms"`
	WindowSize        int `yaml:"window_size"`         // events kept in the modeling window
	RebuildIntervalMs int `yaml:"rebuild_interval_ms"` // model rebuild cadence
}

// RebuildInterval returns the rebuild cadence as a duration.
func (e EngineConf) RebuildInterval() time.Duration {
	return time.Duration(e.RebuildIntervalMs) * time.Millisecond
}

// EventTimeout returns the synchronous ingestion timeout.
func (e EngineConf) EventTimeout() time.Duration {
	return time.Duration(e.EventTimeoutMs) * time.Millisecond
}

// StateConf selects the state-definition strategy and session splitting.
type StateConf struct {
	Strategy     string `yaml:"strategy"`
	SessionGapMs int    `yaml:"session_gap_ms"`
}

// SessionGap returns the inactivity gap that closes a session.
func (s StateConf) SessionGap() time.Duration {
	return time.Duration(s.SessionGapMs) * time.Millisecond
}

// SolverConf holds equilibrium solver tuning.
type SolverConf struct {
	Damping       float64 `yaml:"damping"`
	Tolerance     float64 `yaml:"tolerance"`
	MaxIterations int     `yaml:"max_iterations"`
	ShiftEpsilon  float64 `yaml:"shift_epsilon"` // per-state significance for impact radius
}

// Options converts the section into solver options.
func (s SolverConf) Options() markov.SolveOptions {
	return markov.SolveOptions{
		Damping:       s.Damping,
		Tolerance:     s.Tolerance,
		MaxIterations: s.MaxIterations,
	}
}

// StorageConf selects the archive backend.
type StorageConf struct {
	Driver    string `yaml:"driver"` // "memory" or "postgres"
	DSN       string `yaml:"dsn"`
	MaxEvents int    `yaml:"max_events"` // memory driver caps
	MaxAlerts int    `yaml:"max_alerts"`
}
