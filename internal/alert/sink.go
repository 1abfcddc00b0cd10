package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Sink receives emitted alerts. Implementations must be safe for concurrent
// use: the detector's rebuild loop and on-demand analysis share them.
type Sink interface {
	// Name returns the key this sink is registered under.
	Name() string
	// Emit delivers one alert.
	Emit(ctx context.Context, a *Alert) error
}

// SinkRegistry holds the configured sinks.
// Safe for concurrent reads; Register should only be called at startup.
type SinkRegistry struct {
	mu    sync.RWMutex
	sinks map[string]Sink
	order []string
}

// NewSinkRegistry creates an empty SinkRegistry.
func NewSinkRegistry() *SinkRegistry {
	return &SinkRegistry{sinks: make(map[string]Sink)}
}

// Register adds a sink. Panics on duplicate name to surface
// misconfiguration early.
func (r *SinkRegistry) Register(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sinks[s.Name()]; exists {
		panic(fmt.Sprintf("alert sink registry: duplicate sink %q", s.Name()))
	}
	r.sinks[s.Name()] = s
	r.order = append(r.order, s.Name())
}

// All returns the sinks in registration order.
func (r *SinkRegistry) All() []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Sink, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sinks[name])
	}
	return out
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses the default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Emit(_ context.Context, a *Alert) error {
	s.logger.Warn("anomaly alert",
		"alert_id", a.ID,
		"scenario_id", a.ScenarioID,
		"severity", a.Severity,
		"score", a.Score,
		"kl_divergence", a.KLDivergence,
		"total_variation", a.TotalVariation,
		"impact_radius", a.ImpactRadius,
		"reason", a.Reason,
	)
	return nil
}

// AlertSaver is the slice of the alert store the store sink needs.
type AlertSaver interface {
	SaveAlert(ctx context.Context, a *Alert) error
}

// StoreSink persists alerts for later audit via GET /v1/alerts.
type StoreSink struct {
	store AlertSaver
}

// NewStoreSink creates a StoreSink backed by store.
func NewStoreSink(store AlertSaver) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Emit(ctx context.Context, a *Alert) error {
	return s.store.SaveAlert(ctx, a)
}
