package perturb

import (
	"math"
	"sort"

	"github.com/gyaneshwarpardhi/markovflow/internal/markov"
)

// klFloor substitutes for zero mass in the perturbed distribution so that
// KL divergence stays finite when a state vanishes entirely.
const klFloor = 1e-12

// unionStates returns the sorted union of both supports.
func unionStates(p, q markov.Distribution) []string {
	seen := make(map[string]struct{}, len(p)+len(q))
	for s := range p {
		seen[s] = struct{}{}
	}
	for s := range q {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// KLDivergence returns D(base ‖ perturbed) in nats over the union support.
// Zero perturbed mass is floored, never divided by.
func KLDivergence(base, perturbed markov.Distribution) float64 {
	var d float64
	for _, s := range unionStates(base, perturbed) {
		p := base[s]
		if p <= 0 {
			continue
		}
		q := perturbed[s]
		if q < klFloor {
			q = klFloor
		}
		d += p * math.Log(p/q)
	}
	if d < 0 {
		// Floored tails can push the sum a hair below zero.
		d = 0
	}
	return d
}

// TotalVariation returns ½·Σ|p−q| over the union support, in [0,1].
func TotalVariation(base, perturbed markov.Distribution) float64 {
	var d float64
	for _, s := range unionStates(base, perturbed) {
		d += math.Abs(base[s] - perturbed[s])
	}
	return d / 2
}
