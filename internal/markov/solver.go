package markov

import (
	"fmt"
	"math"
	"sort"
)

// SolveOptions configures power iteration.
//   - Damping: teleport factor d ∈ (0,1]. Each step keeps d of the chain's
//     own mass and spreads (1-d) uniformly, guaranteeing convergence on
//     reducible or periodic chains. 1.0 disables teleportation.
//   - Tolerance: L1 residual below which iteration stops.
//   - MaxIterations: hard cap; exceeding it is ErrNoConvergence.
type SolveOptions struct {
	Damping       float64
	Tolerance     float64
	MaxIterations int
}

// DefaultSolveOptions returns the tuning used when config leaves the solver
// section empty.
func DefaultSolveOptions() SolveOptions {
	return SolveOptions{
		Damping:       0.85,
		Tolerance:     1e-10,
		MaxIterations: 200,
	}
}

// SolveStats reports how a solve went, converged or not.
type SolveStats struct {
	Iterations int     `json:"iterations"`
	Residual   float64 `json:"residual"`
	Converged  bool    `json:"converged"`
}

// Distribution maps states to probability mass. A valid distribution sums
// to 1 across all states.
type Distribution map[string]float64

// StateMass pairs a state with its probability mass, for ranked output.
type StateMass struct {
	State string  `json:"state"`
	Mass  float64 `json:"mass"`
}

// Stationary computes the stationary distribution of m by power iteration.
// Sink rows redistribute their mass uniformly each step, so no row is ever
// divided by zero and total mass stays 1. On non-convergence the partial
// vector is withheld: callers get nil, the stats, and ErrNoConvergence.
func (m *Matrix) Stationary(opts SolveOptions) (Distribution, SolveStats, error) {
	n := len(m.states)
	if n == 0 {
		return nil, SolveStats{}, ErrEmptyChain
	}

	uniform := 1.0 / float64(n)
	teleport := (1.0 - opts.Damping) * uniform

	pi := make([]float64, n)
	for i := range pi {
		pi[i] = uniform
	}
	idx := make(map[string]int, n)
	for i, s := range m.states {
		idx[s] = i
	}

	next := make([]float64, n)
	stats := SolveStats{}
	for iter := 1; iter <= opts.MaxIterations; iter++ {
		var sinkMass float64
		for i := range next {
			next[i] = 0
		}
		for i, from := range m.states {
			if len(m.rows[from]) == 0 {
				sinkMass += pi[i]
				continue
			}
			targets, row := m.sortedRow(from)
			for _, to := range targets {
				next[idx[to]] += pi[i] * row[to]
			}
		}
		spread := opts.Damping*sinkMass*uniform + teleport
		var residual float64
		for i := range next {
			next[i] = opts.Damping*next[i] + spread
			residual += math.Abs(next[i] - pi[i])
		}
		pi, next = next, pi

		stats.Iterations = iter
		stats.Residual = residual
		if residual < opts.Tolerance {
			stats.Converged = true
			break
		}
	}

	if !stats.Converged {
		return nil, stats, fmt.Errorf("%w after %d iterations (residual %.3g, tolerance %.3g)",
			ErrNoConvergence, stats.Iterations, stats.Residual, opts.Tolerance)
	}

	dist := make(Distribution, n)
	for i, s := range m.states {
		dist[s] = pi[i]
	}
	return dist, stats, nil
}

// Sum returns total probability mass (≈1 for a valid distribution).
func (d Distribution) Sum() float64 {
	states := make([]string, 0, len(d))
	for s := range d {
		states = append(states, s)
	}
	sort.Strings(states)
	var sum float64
	for _, s := range states {
		sum += d[s]
	}
	return sum
}

// Entropy returns the Shannon entropy of d in nats. Lower entropy means
// mass concentrated on fewer states.
func (d Distribution) Entropy() float64 {
	states := make([]string, 0, len(d))
	for s := range d {
		states = append(states, s)
	}
	sort.Strings(states)
	var h float64
	for _, s := range states {
		if p := d[s]; p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}

// TopStates returns up to n states by descending mass, ties broken by label.
func (d Distribution) TopStates(n int) []StateMass {
	out := make([]StateMass, 0, len(d))
	for s, p := range d {
		out = append(out, StateMass{State: s, Mass: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mass != out[j].Mass {
			return out[i].Mass > out[j].Mass
		}
		return out[i].State < out[j].State
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}
