// Package markov builds sparse stochastic transition matrices from observed
// state sequences and solves for their stationary distributions.
//
// States enter the chain only through observed transitions: a state seen in
// isolation (a one-event session) is not a vertex, so excluding an actor or
// entity that never produced a transition leaves the chain bit-identical.
// All floating-point accumulation walks states in sorted order, which makes
// every computation here deterministic for a given input.
package markov

import (
	"errors"
	"sort"
)

var (
	// ErrEmptyChain is returned when a matrix has no states.
	ErrEmptyChain = errors.New("markov: chain has no states")
	// ErrNoConvergence is returned when power iteration exhausts its
	// iteration cap before reaching the configured tolerance.
	ErrNoConvergence = errors.New("markov: power iteration did not converge")
)

// Matrix is a sparse row-stochastic transition matrix. Immutable once built;
// every row with outgoing mass sums to 1.
type Matrix struct {
	states    []string                      // sorted state labels
	rows      map[string]map[string]float64 // from → to → probability
	rowTotals map[string]int64              // from → observed outgoing count
}

// Builder accumulates transition counts and produces a normalized Matrix.
type Builder struct {
	counts map[string]map[string]int64
	states map[string]struct{}
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		counts: make(map[string]map[string]int64),
		states: make(map[string]struct{}),
	}
}

// Observe records one transition from → to.
func (b *Builder) Observe(from, to string) {
	row, ok := b.counts[from]
	if !ok {
		row = make(map[string]int64)
		b.counts[from] = row
	}
	row[to]++
	b.states[from] = struct{}{}
	b.states[to] = struct{}{}
}

// ObserveSeq records the consecutive pairs of one session's state sequence.
// Sequences shorter than two states contribute nothing.
func (b *Builder) ObserveSeq(states []string) {
	for i := 1; i < len(states); i++ {
		b.Observe(states[i-1], states[i])
	}
}

// Build normalizes the accumulated counts into a stochastic Matrix.
// States with no outgoing count become sink rows (empty, never divided).
func (b *Builder) Build() *Matrix {
	m := &Matrix{
		states:    make([]string, 0, len(b.states)),
		rows:      make(map[string]map[string]float64, len(b.counts)),
		rowTotals: make(map[string]int64, len(b.counts)),
	}
	for s := range b.states {
		m.states = append(m.states, s)
	}
	sort.Strings(m.states)

	for from, row := range b.counts {
		var total int64
		for _, c := range row {
			total += c
		}
		if total == 0 {
			continue
		}
		probs := make(map[string]float64, len(row))
		for to, c := range row {
			probs[to] = float64(c) / float64(total)
		}
		m.rows[from] = probs
		m.rowTotals[from] = total
	}
	return m
}

// States returns the sorted state labels. Callers must not mutate the slice.
func (m *Matrix) States() []string { return m.states }

// Len returns the number of states.
func (m *Matrix) Len() int { return len(m.states) }

// Contains reports whether s is a state of the chain.
func (m *Matrix) Contains(s string) bool {
	i := sort.SearchStrings(m.states, s)
	return i < len(m.states) && m.states[i] == s
}

// Prob returns the transition probability from → to (0 if absent).
func (m *Matrix) Prob(from, to string) float64 {
	return m.rows[from][to]
}

// Row returns a copy of the outgoing probabilities of from.
// Empty for sink states and unknown states.
func (m *Matrix) Row(from string) map[string]float64 {
	row := m.rows[from]
	out := make(map[string]float64, len(row))
	for to, p := range row {
		out[to] = p
	}
	return out
}

// RowTotal returns the observed outgoing transition count of from.
func (m *Matrix) RowTotal(from string) int64 { return m.rowTotals[from] }

// IsSink reports whether s has no outgoing mass.
func (m *Matrix) IsSink(s string) bool {
	return m.Contains(s) && len(m.rows[s]) == 0
}

// Sinks returns the sorted sink states.
func (m *Matrix) Sinks() []string {
	var out []string
	for _, s := range m.states {
		if len(m.rows[s]) == 0 {
			out = append(out, s)
		}
	}
	return out
}

// TransitionCount returns the total number of observed transitions.
func (m *Matrix) TransitionCount() int64 {
	var n int64
	for _, t := range m.rowTotals {
		n += t
	}
	return n
}

// sortedRow returns the targets of from in sorted order with their
// probabilities, for deterministic accumulation.
func (m *Matrix) sortedRow(from string) ([]string, map[string]float64) {
	row := m.rows[from]
	targets := make([]string, 0, len(row))
	for to := range row {
		targets = append(targets, to)
	}
	sort.Strings(targets)
	return targets, row
}
