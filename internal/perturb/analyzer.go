package perturb

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/gyaneshwarpardhi/markovflow/internal/event"
	"github.com/gyaneshwarpardhi/markovflow/internal/markov"
	"github.com/gyaneshwarpardhi/markovflow/internal/state"
)

// maxTopShifts bounds the per-result evidence list.
const maxTopShifts = 10

// Analyzer recomputes the equilibrium under a scenario and measures the
// divergence from baseline. It never mutates its inputs, so running the same
// scenario against the same baseline twice yields identical numbers.
type Analyzer struct {
	strat state.Strategy
	gap   time.Duration
	solve markov.SolveOptions
	// shiftEps is the per-state mass shift below which a state counts as
	// unaffected for the impact radius.
	shiftEps float64
}

// NewAnalyzer creates an Analyzer using the same strategy, session gap and
// solver options that produced the baseline.
func NewAnalyzer(strat state.Strategy, gap time.Duration, solve markov.SolveOptions, shiftEps float64) *Analyzer {
	if shiftEps <= 0 {
		shiftEps = 1e-6
	}
	return &Analyzer{strat: strat, gap: gap, solve: solve, shiftEps: shiftEps}
}

// StateShift is one state's before/after mass, the unit of alert evidence.
type StateShift struct {
	State     string  `json:"state"`
	Baseline  float64 `json:"baseline"`
	Perturbed float64 `json:"perturbed"`
	Delta     float64 `json:"delta"` // perturbed − baseline
}

// Result is the full outcome of one perturbation run.
type Result struct {
	ScenarioID      string              `json:"scenario_id"`
	ExcludedEvents  int                 `json:"excluded_events"`
	BaselineStates  int                 `json:"baseline_states"`
	PerturbedStates int                 `json:"perturbed_states"`
	KLDivergence    float64             `json:"kl_divergence"`
	TotalVariation  float64             `json:"total_variation"`
	ImpactRadius    int                 `json:"impact_radius"`
	TopShifts       []StateShift        `json:"top_shifts"`
	Baseline        markov.Distribution `json:"baseline"`
	Perturbed       markov.Distribution `json:"perturbed"`
	SolveStats      markov.SolveStats   `json:"solve_stats"`
}

// Analyze applies sc to events, rebuilds and re-solves the chain, and
// compares against the baseline matrix and distribution (both read-only).
func (a *Analyzer) Analyze(events []*event.Event, baseMat *markov.Matrix, baseDist markov.Distribution, sc Scenario) (*Result, error) {
	kept, excluded := sc.Apply(events)

	pertMat := markov.BuildMatrix(kept, a.strat, a.gap)
	var pertDist markov.Distribution
	var stats markov.SolveStats
	if pertMat.Len() > 0 {
		var err error
		pertDist, stats, err = pertMat.Stationary(a.solve)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.ID, err)
		}
	}

	res := &Result{
		ScenarioID:      sc.ID,
		ExcludedEvents:  excluded,
		BaselineStates:  baseMat.Len(),
		PerturbedStates: pertMat.Len(),
		KLDivergence:    KLDivergence(baseDist, pertDist),
		TotalVariation:  TotalVariation(baseDist, pertDist),
		TopShifts:       topShifts(baseDist, pertDist),
		Baseline:        baseDist,
		Perturbed:       pertDist,
		SolveStats:      stats,
	}
	res.ImpactRadius = a.impactRadius(events, baseMat, baseDist, pertDist, sc)
	return res, nil
}

// topShifts ranks states by absolute mass shift, descending, ties by label.
func topShifts(base, perturbed markov.Distribution) []StateShift {
	states := unionStates(base, perturbed)
	shifts := make([]StateShift, 0, len(states))
	for _, s := range states {
		b, p := base[s], perturbed[s]
		if b == p {
			continue
		}
		shifts = append(shifts, StateShift{State: s, Baseline: b, Perturbed: p, Delta: p - b})
	}
	sort.Slice(shifts, func(i, j int) bool {
		di, dj := math.Abs(shifts[i].Delta), math.Abs(shifts[j].Delta)
		if di != dj {
			return di > dj
		}
		return shifts[i].State < shifts[j].State
	})
	if len(shifts) > maxTopShifts {
		shifts = shifts[:maxTopShifts]
	}
	return shifts
}

// impactRadius walks the baseline graph breadth-first from the states the
// excluded events touched directly, and returns the farthest hop at which a
// state still shifted by more than shiftEps. Hop 0 is the touched set itself.
func (a *Analyzer) impactRadius(events []*event.Event, baseMat *markov.Matrix, base, perturbed markov.Distribution, sc Scenario) int {
	shifted := func(s string) bool {
		return math.Abs(perturbed[s]-base[s]) > a.shiftEps
	}

	// Seed: states of excluded events that exist in the baseline chain.
	seedSet := make(map[string]struct{})
	for _, ev := range events {
		if !sc.Excludes(ev) {
			continue
		}
		if s := a.strat.StateOf(ev); baseMat.Contains(s) {
			seedSet[s] = struct{}{}
		}
	}
	if len(seedSet) == 0 {
		return 0
	}

	frontier := make([]string, 0, len(seedSet))
	for s := range seedSet {
		frontier = append(frontier, s)
	}
	sort.Strings(frontier)

	visited := make(map[string]struct{}, len(seedSet))
	for _, s := range frontier {
		visited[s] = struct{}{}
	}

	radius := 0
	for hop := 0; len(frontier) > 0; hop++ {
		hit := false
		var next []string
		for _, s := range frontier {
			if shifted(s) {
				hit = true
			}
			for to := range baseMat.Row(s) {
				if _, seen := visited[to]; !seen {
					visited[to] = struct{}{}
					next = append(next, to)
				}
			}
		}
		if hit {
			radius = hop
		}
		sort.Strings(next)
		frontier = next
	}
	return radius
}
