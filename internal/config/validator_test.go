package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gyaneshwarpardhi/markovflow/internal/config"
	"github.com/gyaneshwarpardhi/markovflow/internal/perturb"
	"github.com/gyaneshwarpardhi/markovflow/internal/state"
)

func validConfig() *config.Config {
	cfg := &config.Config{Version: "v1"}
	cfg.Engine.IngestWorkers = 2
	cfg.Engine.QueueDepth = 64
	cfg.Engine.EventTimeoutMs = 2000
	cfg.Engine.WindowSize = 1000
	cfg.Engine.RebuildIntervalMs = 30000
	cfg.State.Strategy = "entity_action"
	cfg.Solver.Damping = 0.85
	cfg.Solver.Tolerance = 1e-10
	cfg.Solver.MaxIterations = 200
	cfg.Storage.Driver = "memory"
	cfg.Alerts.KLWarn, cfg.Alerts.KLCritical = 0.05, 0.5
	cfg.Alerts.TVWarn, cfg.Alerts.TVCritical = 0.05, 0.3
	cfg.Scenarios = []perturb.Scenario{
		{ID: "sc_ring", ExcludeActors: []string{"a1"}},
	}
	return cfg
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string // substring; empty means valid
	}{
		{"valid", func(c *config.Config) {}, ""},
		{"missing version", func(c *config.Config) { c.Version = "" }, "version is required"},
		{"unknown strategy", func(c *config.Config) { c.State.Strategy = "bogus" }, "state.strategy"},
		{"negative workers", func(c *config.Config) { c.Engine.IngestWorkers = -1 }, "engine.ingest_workers"},
		{"zero queue depth", func(c *config.Config) { c.Engine.QueueDepth = 0 }, "engine.queue_depth"},
		{"negative event timeout", func(c *config.Config) { c.Engine.EventTimeoutMs = -5 }, "engine.event_timeout_ms"},
		{"zero window", func(c *config.Config) { c.Engine.WindowSize = 0 }, "engine.window_size"},
		{"negative rebuild interval", func(c *config.Config) { c.Engine.RebuildIntervalMs = -1 }, "engine.rebuild_interval_ms"},
		{"damping zero", func(c *config.Config) { c.Solver.Damping = 0 }, "solver.damping"},
		{"damping above one", func(c *config.Config) { c.Solver.Damping = 1.5 }, "solver.damping"},
		{"bad tolerance", func(c *config.Config) { c.Solver.Tolerance = -1 }, "solver.tolerance"},
		{"bad iterations", func(c *config.Config) { c.Solver.MaxIterations = 0 }, "solver.max_iterations"},
		{"duplicate scenario", func(c *config.Config) {
			c.Scenarios = append(c.Scenarios, perturb.Scenario{ID: "sc_ring", ExcludeActors: []string{"x"}})
		}, `duplicate scenario id "sc_ring"`},
		{"empty exclusions", func(c *config.Config) {
			c.Scenarios = []perturb.Scenario{{ID: "sc_empty"}}
		}, "exclusion set must not be empty"},
		{"threshold ordering", func(c *config.Config) { c.Alerts.KLWarn = 0.9 }, "kl_warn"},
		{"unknown driver", func(c *config.Config) { c.Storage.Driver = "sqlite" }, "storage.driver"},
		{"postgres needs dsn", func(c *config.Config) { c.Storage.Driver = "postgres" }, "dsn is required"},
	}

	reg := state.NewRegistry()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := config.Validate(cfg, reg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Version = ""
	cfg.Solver.Damping = 2
	err := config.Validate(cfg, state.NewRegistry())
	if err == nil {
		t.Fatal("want error")
	}
	for _, want := range []string{"version is required", "solver.damping"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestLoaderDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detector.yaml")
	raw := `
version: v1
scenarios:
  - id: sc_ring
    name: drop the ring
    exclude_actors: [seller_1]
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	loader, err := config.NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	cfg := loader.Config()

	if cfg.Engine.IngestWorkers != 16 || cfg.Engine.QueueDepth != 10000 {
		t.Errorf("engine defaults not applied: %+v", cfg.Engine)
	}
	if cfg.State.Strategy != "entity_action" {
		t.Errorf("strategy default = %q", cfg.State.Strategy)
	}
	if cfg.Solver.Damping != 0.85 || cfg.Solver.MaxIterations != 200 {
		t.Errorf("solver defaults not applied: %+v", cfg.Solver)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("storage default = %q", cfg.Storage.Driver)
	}
	if err := config.Validate(cfg, state.NewRegistry()); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoaderReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detector.yaml")
	write := func(version string) {
		t.Helper()
		raw := "version: " + version + "\n"
		if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("v1")

	loader, err := config.NewLoader(path)
	if err != nil {
		t.Fatal(err)
	}

	var seen string
	loader.OnChange(func(c *config.Config) { seen = c.Version })

	write("v2")
	cfg, err := loader.Reload()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Version != "v2" || loader.Config().Version != "v2" {
		t.Errorf("reload did not take: %q / %q", cfg.Version, loader.Config().Version)
	}
	if seen != "v2" {
		t.Errorf("OnChange callback saw %q, want v2", seen)
	}
}
