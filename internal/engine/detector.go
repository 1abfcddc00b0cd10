// Package engine runs the detection pipeline: ingested events accumulate in
// a rolling window; on a fixed cadence the window is sessionized into a
// transition matrix, solved for its stationary distribution, swept through
// the configured perturbation scenarios, and any triggering scenario is
// turned into an alert. The published model is an immutable Snapshot behind
// an atomic pointer, so reads never contend with rebuilds.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/markovflow/internal/alert"
	"github.com/gyaneshwarpardhi/markovflow/internal/config"
	"github.com/gyaneshwarpardhi/markovflow/internal/event"
	"github.com/gyaneshwarpardhi/markovflow/internal/markov"
	"github.com/gyaneshwarpardhi/markovflow/internal/metrics"
	"github.com/gyaneshwarpardhi/markovflow/internal/perturb"
	"github.com/gyaneshwarpardhi/markovflow/internal/state"
	"github.com/gyaneshwarpardhi/markovflow/internal/store"
)

// Snapshot is one published model build. Immutable.
type Snapshot struct {
	BuiltAt     time.Time           `json:"built_at"`
	Strategy    string              `json:"strategy"`
	EventCount  int                 `json:"event_count"` // window size at build
	Matrix      *markov.Matrix      `json:"-"`
	Stationary  markov.Distribution `json:"stationary"`
	SolveStats  markov.SolveStats   `json:"solve_stats"`
	Entropy     float64             `json:"entropy"`
	SinkStates  []string            `json:"sink_states,omitempty"`
	Transitions int64               `json:"transitions"`
}

// Ingestion failure modes callers may branch on with errors.Is.
var (
	ErrQueueFull     = errors.New("ingest queue full")
	ErrIngestTimeout = errors.New("ingest timed out")
)

// IngestResult is the outcome of one synchronous ingestion.
type IngestResult struct {
	EventID    string `json:"event_id"`
	State      string `json:"state"`
	WindowSize int    `json:"window_size"`
	DurationMs int64  `json:"duration_ms"`
}

// params is the rebuild-relevant slice of config, swapped atomically on
// hot reload so in-flight work sees a consistent set.
type params struct {
	strat     state.Strategy
	gap       time.Duration
	solve     markov.SolveOptions
	shiftEps  float64
	scenarios []perturb.Scenario
	alerter   *alert.Engine
	window    int
	timeout   time.Duration
}

type ingestWork struct {
	ev      *event.Event
	resultC chan *IngestResult
}

// Detector owns the rolling window and the rebuild loop.
type Detector struct {
	params   atomic.Pointer[params]
	snapshot atomic.Pointer[Snapshot]

	mu     sync.Mutex
	window []*event.Event

	archive  store.Store
	pool     *pool[*ingestWork]
	rebuildC chan chan error
	done     chan struct{}
}

// New creates a Detector, starts its ingestion pool and rebuild loop.
// The strategy name in cfg must already be validated against strategies.
func New(ctx context.Context, cfg *config.Config, strategies *state.Registry, sinks *alert.SinkRegistry, archive store.Store) (*Detector, error) {
	d := &Detector{
		archive:  archive,
		rebuildC: make(chan chan error, 1),
		done:     make(chan struct{}),
	}
	if err := d.applyConfig(cfg, strategies, sinks); err != nil {
		return nil, err
	}

	d.pool = newPool(ctx, cfg.Engine.IngestWorkers, cfg.Engine.QueueDepth,
		func(ctx context.Context, w *ingestWork) {
			d.ingest(ctx, w)
		})

	go d.rebuildLoop(ctx, cfg.Engine.RebuildInterval())
	return d, nil
}

func (d *Detector) applyConfig(cfg *config.Config, strategies *state.Registry, sinks *alert.SinkRegistry) error {
	strat, err := strategies.Get(cfg.State.Strategy)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	d.params.Store(&params{
		strat:     strat,
		gap:       cfg.State.SessionGap(),
		solve:     cfg.Solver.Options(),
		shiftEps:  cfg.Solver.ShiftEpsilon,
		scenarios: cfg.Scenarios,
		alerter:   alert.NewEngine(cfg.Alerts, sinks),
		window:    cfg.Engine.WindowSize,
		timeout:   cfg.Engine.EventTimeout(),
	})
	return nil
}

// UpdateConfig swaps the detection parameters (hot reload) and schedules an
// immediate rebuild so the new strategy takes effect without waiting a tick.
func (d *Detector) UpdateConfig(cfg *config.Config, strategies *state.Registry, sinks *alert.SinkRegistry) error {
	if err := d.applyConfig(cfg, strategies, sinks); err != nil {
		return err
	}
	select {
	case d.rebuildC <- nil:
	default: // a rebuild is already pending
	}
	return nil
}

// IngestSync archives and windows the event, returning its state label under
// the active strategy. Returns ErrQueueFull when the pool rejects the event,
// or ErrIngestTimeout when the event was queued but not processed within the
// configured timeout (it may still be ingested after the call returns).
func (d *Detector) IngestSync(ctx context.Context, ev *event.Event) (*IngestResult, error) {
	p := d.params.Load()
	resultC := make(chan *IngestResult, 1)
	if !d.pool.Submit(&ingestWork{ev: ev, resultC: resultC}) {
		metrics.EventsDropped.Inc()
		return nil, fmt.Errorf("engine: %w (capacity %d)", ErrQueueFull, d.pool.Cap())
	}
	metrics.EventsIngested.Inc()

	select {
	case res := <-resultC:
		return res, nil
	case <-time.After(p.timeout):
		return nil, fmt.Errorf("engine: %w after %v", ErrIngestTimeout, p.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IngestAsync enqueues an event for background processing.
// Returns false if the queue is full.
func (d *Detector) IngestAsync(ev *event.Event) bool {
	if !d.pool.Submit(&ingestWork{ev: ev}) {
		metrics.EventsDropped.Inc()
		return false
	}
	metrics.EventsIngested.Inc()
	return true
}

func (d *Detector) ingest(ctx context.Context, w *ingestWork) {
	start := time.Now()
	p := d.params.Load()

	if err := d.archive.AppendEvent(ctx, w.ev); err != nil {
		slog.Error("event archive failed", "event_id", w.ev.ID, "err", err)
	}

	d.mu.Lock()
	d.window = append(d.window, w.ev)
	if len(d.window) > p.window {
		trimmed := make([]*event.Event, p.window)
		copy(trimmed, d.window[len(d.window)-p.window:])
		d.window = trimmed
	}
	size := len(d.window)
	d.mu.Unlock()

	if w.resultC != nil {
		w.resultC <- &IngestResult{
			EventID:    w.ev.ID,
			State:      p.strat.StateOf(w.ev),
			WindowSize: size,
			DurationMs: time.Since(start).Milliseconds(),
		}
	}
}

// Snapshot returns the latest published model, or nil before the first build.
func (d *Detector) Snapshot() *Snapshot {
	return d.snapshot.Load()
}

// QueueUtilization returns queue used / capacity (0–1).
func (d *Detector) QueueUtilization() float64 {
	if d.pool.Cap() == 0 {
		return 0
	}
	return float64(d.pool.Len()) / float64(d.pool.Cap())
}

// Rebuild forces a rebuild now and waits for it to finish. When the window
// has no transitions or the solve does not converge, the previous model stays
// published and the failure is returned.
func (d *Detector) Rebuild(ctx context.Context) (*Snapshot, error) {
	doneC := make(chan error, 1)
	select {
	case d.rebuildC <- doneC:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case err := <-doneC:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return d.snapshot.Load(), nil
}

// AnalyzeScenario runs one configured scenario against the current baseline
// on demand.
func (d *Detector) AnalyzeScenario(ctx context.Context, id string) (*perturb.Result, error) {
	p := d.params.Load()
	var sc *perturb.Scenario
	for i := range p.scenarios {
		if p.scenarios[i].ID == id {
			sc = &p.scenarios[i]
			break
		}
	}
	if sc == nil {
		return nil, fmt.Errorf("engine: unknown scenario %q", id)
	}

	snap := d.snapshot.Load()
	if snap == nil || snap.Stationary == nil {
		return nil, fmt.Errorf("engine: no baseline model yet")
	}

	analyzer := perturb.NewAnalyzer(p.strat, p.gap, p.solve, p.shiftEps)
	res, err := analyzer.Analyze(d.windowCopy(), snap.Matrix, snap.Stationary, *sc)
	if err != nil {
		return nil, err
	}
	metrics.ScenariosAnalyzed.WithLabelValues(sc.ID).Inc()
	return res, nil
}

// Scenarios returns the currently configured scenarios.
func (d *Detector) Scenarios() []perturb.Scenario {
	return d.params.Load().scenarios
}

func (d *Detector) windowCopy() []*event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*event.Event, len(d.window))
	copy(out, d.window)
	return out
}

func (d *Detector) rebuildLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(d.done)

	for {
		select {
		case <-ticker.C:
			d.rebuild(ctx) // failures are logged; the old model stays up
		case doneC := <-d.rebuildC:
			err := d.rebuild(ctx)
			if doneC != nil {
				doneC <- err
			}
		case <-ctx.Done():
			return
		}
	}
}

// rebuild recomputes the model from the current window and, on success,
// publishes a new Snapshot and sweeps the scenarios. A failed solve keeps
// the previous snapshot in place and is reported to forced rebuilds.
func (d *Detector) rebuild(ctx context.Context) error {
	start := time.Now()
	p := d.params.Load()
	events := d.windowCopy()

	m := markov.BuildMatrix(events, p.strat, p.gap)
	if m.Len() == 0 {
		slog.Debug("rebuild skipped: no transitions in window", "events", len(events))
		return fmt.Errorf("engine: no transitions in window (%d events)", len(events))
	}

	dist, stats, err := m.Stationary(p.solve)
	metrics.SolverIterations.Observe(float64(stats.Iterations))
	if err != nil {
		metrics.SolverFailures.Inc()
		slog.Warn("stationary solve failed, keeping previous model",
			"states", m.Len(), "iterations", stats.Iterations, "residual", stats.Residual, "err", err)
		return fmt.Errorf("engine: keeping previous model: %w", err)
	}

	snap := &Snapshot{
		BuiltAt:     time.Now(),
		Strategy:    p.strat.Name(),
		EventCount:  len(events),
		Matrix:      m,
		Stationary:  dist,
		SolveStats:  stats,
		Entropy:     dist.Entropy(),
		SinkStates:  m.Sinks(),
		Transitions: m.TransitionCount(),
	}
	d.snapshot.Store(snap)

	metrics.Rebuilds.Inc()
	metrics.RebuildDuration.Observe(float64(time.Since(start).Milliseconds()))
	metrics.ModelStates.Set(float64(m.Len()))
	metrics.ModelEntropy.Set(snap.Entropy)
	metrics.QueueUtilization.Set(d.QueueUtilization())

	slog.Info("model rebuilt",
		"states", m.Len(), "transitions", snap.Transitions,
		"iterations", stats.Iterations, "entropy", snap.Entropy,
		"duration_ms", time.Since(start).Milliseconds())

	d.sweepScenarios(ctx, p, events, snap)
	return nil
}

func (d *Detector) sweepScenarios(ctx context.Context, p *params, events []*event.Event, snap *Snapshot) {
	if len(p.scenarios) == 0 {
		return
	}
	analyzer := perturb.NewAnalyzer(p.strat, p.gap, p.solve, p.shiftEps)
	for _, sc := range p.scenarios {
		res, err := analyzer.Analyze(events, snap.Matrix, snap.Stationary, sc)
		if err != nil {
			slog.Warn("scenario analysis failed", "scenario_id", sc.ID, "err", err)
			continue
		}
		metrics.ScenariosAnalyzed.WithLabelValues(sc.ID).Inc()

		if a := p.alerter.Evaluate(res, time.Now()); a != nil {
			p.alerter.Emit(ctx, a)
		}
	}
}

// Shutdown drains the ingestion pool and waits for the rebuild loop to stop.
// The caller cancels the context passed to New first.
func (d *Detector) Shutdown() {
	d.pool.Drain()
	<-d.done
}
