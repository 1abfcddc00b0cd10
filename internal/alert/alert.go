// Package alert converts perturbation measurements into scored, explainable
// alerts and fans them out to registered sinks.
package alert

import (
	"time"

	"github.com/gyaneshwarpardhi/markovflow/internal/markov"
	"github.com/gyaneshwarpardhi/markovflow/internal/perturb"
)

// Severity bands for alerts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a scored, auditable record of one triggering perturbation run.
// It carries the exact measurements and distributions that justified it.
type Alert struct {
	ID             string               `json:"id"`
	ScenarioID     string               `json:"scenario_id"`
	Severity       Severity             `json:"severity"`
	Score          float64              `json:"score"` // 0–1
	Reason         string               `json:"reason"`
	KLDivergence   float64              `json:"kl_divergence"`
	TotalVariation float64              `json:"total_variation"`
	ImpactRadius   int                  `json:"impact_radius"`
	States         []perturb.StateShift `json:"states"`
	Baseline       markov.Distribution  `json:"baseline"`
	Perturbed      markov.Distribution  `json:"perturbed"`
	TriggeredAt    time.Time            `json:"triggered_at"`
}
