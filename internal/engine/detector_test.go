package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/markovflow/internal/alert"
	"github.com/gyaneshwarpardhi/markovflow/internal/config"
	"github.com/gyaneshwarpardhi/markovflow/internal/engine"
	"github.com/gyaneshwarpardhi/markovflow/internal/event"
	"github.com/gyaneshwarpardhi/markovflow/internal/perturb"
	"github.com/gyaneshwarpardhi/markovflow/internal/state"
	"github.com/gyaneshwarpardhi/markovflow/internal/store"
)

type recordingSink struct {
	mu  sync.Mutex
	got []*alert.Alert
}

func (r *recordingSink) Name() string { return "recording" }
func (r *recordingSink) Emit(_ context.Context, a *alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, a)
	return nil
}

func (r *recordingSink) alerts() []*alert.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*alert.Alert{}, r.got...)
}

func testConfig() *config.Config {
	cfg := &config.Config{Version: "v1"}
	cfg.Engine.IngestWorkers = 2
	cfg.Engine.QueueDepth = 64
	cfg.Engine.EventTimeoutMs = 2000
	cfg.Engine.WindowSize = 1000
	cfg.Engine.RebuildIntervalMs = 3600_000 // effectively manual rebuilds only
	cfg.State.Strategy = "actor_action"
	cfg.State.SessionGapMs = int((30 * time.Minute).Milliseconds())
	cfg.Solver.Damping = 0.85
	cfg.Solver.Tolerance = 1e-10
	cfg.Solver.MaxIterations = 200
	cfg.Solver.ShiftEpsilon = 1e-6
	cfg.Alerts = alert.DefaultThresholds()
	cfg.Storage.Driver = "memory"
	return cfg
}

func startDetector(t *testing.T, cfg *config.Config, sink alert.Sink) (*engine.Detector, *store.Memory) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sinks := alert.NewSinkRegistry()
	if sink != nil {
		sinks.Register(sink)
	}
	mem := store.NewMemory(0, 0)
	d, err := engine.New(ctx, cfg, state.NewRegistry(), sinks, mem)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Shutdown()
	})
	return d, mem
}

func feed(t *testing.T, d *engine.Detector, events []*event.Event) {
	t.Helper()
	for _, ev := range events {
		ev.Normalize(time.Now())
		if _, err := d.IngestSync(context.Background(), ev); err != nil {
			t.Fatalf("IngestSync: %v", err)
		}
	}
}

func marketEvents() []*event.Event {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var out []*event.Event
	mk := func(actor, entity, action string, offset time.Duration) *event.Event {
		return &event.Event{
			Timestamp: t0.Add(offset),
			ActorID:   actor,
			EntityID:  entity,
			Action:    action,
		}
	}
	for i, b := range []string{"buyer_1", "buyer_2", "buyer_3"} {
		base := time.Duration(i*10) * time.Minute
		out = append(out,
			mk(b, "item_a", "view", base),
			mk(b, "item_a", "bid", base+time.Minute),
			mk(b, "item_a", "purchase", base+2*time.Minute),
		)
	}
	// Wash-trading ring cycling one item.
	for r := 0; r < 10; r++ {
		for i, a := range []string{"ring_1", "ring_2", "ring_3"} {
			base := time.Duration(r*3+i) * time.Minute
			out = append(out,
				mk(a, "hot_item", "list", base),
				mk(a, "hot_item", "sale", base+time.Second),
			)
		}
	}
	return out
}

func TestIngestAndRebuild(t *testing.T) {
	d, mem := startDetector(t, testConfig(), nil)
	feed(t, d, marketEvents())

	if got := d.Snapshot(); got != nil {
		t.Fatal("snapshot should be nil before first rebuild")
	}

	snap, err := d.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if snap.Matrix.Len() == 0 {
		t.Fatal("empty model")
	}
	if !snap.SolveStats.Converged {
		t.Error("solve should converge")
	}
	if sum := snap.Stationary.Sum(); sum < 0.999 || sum > 1.001 {
		t.Errorf("stationary sum = %f, want ≈1", sum)
	}
	if snap.Strategy != "actor_action" {
		t.Errorf("strategy = %q", snap.Strategy)
	}

	// Events were archived on the way in.
	n, err := mem.CountEvents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if int(n) != len(marketEvents()) {
		t.Errorf("archived %d events, want %d", n, len(marketEvents()))
	}
}

func TestScenarioSweepEmitsAlert(t *testing.T) {
	sink := &recordingSink{}
	cfg := testConfig()
	cfg.Scenarios = []perturb.Scenario{{
		ID:            "drop-ring",
		Name:          "remove suspected wash-trading ring",
		ExcludeActors: []string{"ring_1", "ring_2", "ring_3"},
	}}

	d, _ := startDetector(t, cfg, sink)
	feed(t, d, marketEvents())

	if _, err := d.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	alerts := sink.alerts()
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	a := alerts[0]
	if a.ScenarioID != "drop-ring" {
		t.Errorf("scenario = %q", a.ScenarioID)
	}
	if a.KLDivergence <= 0 || a.Score <= 0 {
		t.Errorf("alert lacks measurements: %+v", a)
	}
	if len(a.States) == 0 {
		t.Error("alert lacks state evidence")
	}
}

func TestAnalyzeScenarioOnDemand(t *testing.T) {
	cfg := testConfig()
	cfg.Scenarios = []perturb.Scenario{{
		ID:            "drop-buyer",
		ExcludeActors: []string{"buyer_1"},
	}}
	d, _ := startDetector(t, cfg, nil)
	feed(t, d, marketEvents())

	if _, err := d.AnalyzeScenario(context.Background(), "drop-buyer"); err == nil {
		t.Fatal("want error before first rebuild")
	}
	if _, err := d.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	res, err := d.AnalyzeScenario(context.Background(), "drop-buyer")
	if err != nil {
		t.Fatalf("AnalyzeScenario: %v", err)
	}
	if res.ScenarioID != "drop-buyer" || res.ExcludedEvents == 0 {
		t.Errorf("unexpected result: %+v", res)
	}

	if _, err := d.AnalyzeScenario(context.Background(), "nope"); err == nil {
		t.Error("want error for unknown scenario")
	}
}

func TestHotReloadSwapsStrategy(t *testing.T) {
	cfg := testConfig()
	d, _ := startDetector(t, cfg, nil)
	feed(t, d, marketEvents())
	if _, err := d.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	next := testConfig()
	next.State.Strategy = "action_only"
	if err := d.UpdateConfig(next, state.NewRegistry(), alert.NewSinkRegistry()); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	snap, err := d.Rebuild(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Strategy != "action_only" {
		t.Errorf("strategy after reload = %q, want action_only", snap.Strategy)
	}
}

func TestRebuildSurfacesSolveFailure(t *testing.T) {
	cfg := testConfig()
	cfg.State.Strategy = "action_only"
	d, _ := startDetector(t, cfg, nil)

	// One walker bouncing a<->b plus a feeder c->a. Undamped power iteration
	// oscillates on this chain and never meets the tolerance.
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mk := func(actor, action string, offset time.Duration) *event.Event {
		return &event.Event{Timestamp: t0.Add(offset), ActorID: actor, EntityID: "item_x", Action: action}
	}
	feed(t, d, []*event.Event{
		mk("walker_1", "a", 0),
		mk("walker_1", "b", time.Minute),
		mk("walker_1", "a", 2*time.Minute),
		mk("walker_1", "b", 3*time.Minute),
		mk("walker_2", "c", 0),
		mk("walker_2", "a", time.Minute),
	})

	first, err := d.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	next := testConfig()
	next.State.Strategy = "action_only"
	next.Solver.Damping = 1.0
	next.Solver.MaxIterations = 50
	if err := d.UpdateConfig(next, state.NewRegistry(), alert.NewSinkRegistry()); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	if _, err := d.Rebuild(context.Background()); err == nil {
		t.Fatal("forced rebuild should report the solve failure")
	}
	snap := d.Snapshot()
	if snap == nil || !snap.BuiltAt.Equal(first.BuiltAt) {
		t.Error("previous model should stay published after a failed rebuild")
	}
}

func TestRebuildEmptyWindow(t *testing.T) {
	d, _ := startDetector(t, testConfig(), nil)
	if _, err := d.Rebuild(context.Background()); err == nil {
		t.Fatal("want error when the window has no transitions")
	}
}

type slowStore struct {
	*store.Memory
	delay time.Duration
}

func (s *slowStore) AppendEvent(ctx context.Context, ev *event.Event) error {
	time.Sleep(s.delay)
	return s.Memory.AppendEvent(ctx, ev)
}

func TestIngestSyncTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.EventTimeoutMs = 1

	ctx, cancel := context.WithCancel(context.Background())
	slow := &slowStore{Memory: store.NewMemory(0, 0), delay: 200 * time.Millisecond}
	d, err := engine.New(ctx, cfg, state.NewRegistry(), alert.NewSinkRegistry(), slow)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Shutdown()
	})

	ev := marketEvents()[0]
	ev.Normalize(time.Now())
	if _, err := d.IngestSync(context.Background(), ev); !errors.Is(err, engine.ErrIngestTimeout) {
		t.Fatalf("err = %v, want ErrIngestTimeout", err)
	}
}

func TestIngestAsyncBackpressure(t *testing.T) {
	cfg := testConfig()
	d, _ := startDetector(t, cfg, nil)

	ev := marketEvents()[0]
	ev.Normalize(time.Now())
	if !d.IngestAsync(ev) {
		t.Error("queue should accept the event")
	}
	if u := d.QueueUtilization(); u < 0 || u > 1 {
		t.Errorf("utilization = %f", u)
	}
}
