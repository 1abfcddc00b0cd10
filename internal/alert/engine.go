package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/markovflow/internal/metrics"
	"github.com/gyaneshwarpardhi/markovflow/internal/perturb"
)

// Thresholds band divergence measurements into severities. Warn values must
// not exceed their critical counterparts (enforced by config validation).
type Thresholds struct {
	KLWarn     float64 `yaml:"kl_warn" json:"kl_warn"`
	KLCritical float64 `yaml:"kl_critical" json:"kl_critical"`
	TVWarn     float64 `yaml:"tv_warn" json:"tv_warn"`
	TVCritical float64 `yaml:"tv_critical" json:"tv_critical"`
	MinScore   float64 `yaml:"min_score" json:"min_score"`
}

// DefaultThresholds returns the banding used when config leaves the alerts
// section empty.
func DefaultThresholds() Thresholds {
	return Thresholds{
		KLWarn:     0.05,
		KLCritical: 0.5,
		TVWarn:     0.05,
		TVCritical: 0.3,
		MinScore:   0.1,
	}
}

// Engine scores perturbation results and emits alerts to its sinks.
type Engine struct {
	thresholds Thresholds
	sinks      *SinkRegistry
}

// NewEngine creates an alert Engine.
func NewEngine(t Thresholds, sinks *SinkRegistry) *Engine {
	return &Engine{thresholds: t, sinks: sinks}
}

// Evaluate scores res against the thresholds. It returns nil when the
// measurements stay below the warning band or the score is under MinScore.
func (e *Engine) Evaluate(res *perturb.Result, now time.Time) *Alert {
	sev := e.severity(res)
	if sev == "" {
		return nil
	}
	score := e.score(res)
	if score < e.thresholds.MinScore {
		return nil
	}

	return &Alert{
		ID:         uuid.New().String(),
		ScenarioID: res.ScenarioID,
		Severity:   sev,
		Score:      score,
		Reason: fmt.Sprintf(
			"scenario %s: KL divergence %.4f, total variation %.4f, impact radius %d (excluded %d events)",
			res.ScenarioID, res.KLDivergence, res.TotalVariation, res.ImpactRadius, res.ExcludedEvents),
		KLDivergence:   res.KLDivergence,
		TotalVariation: res.TotalVariation,
		ImpactRadius:   res.ImpactRadius,
		States:         res.TopShifts,
		Baseline:       res.Baseline,
		Perturbed:      res.Perturbed,
		TriggeredAt:    now,
	}
}

// Emit fans the alert out to every sink. Sink failures are logged and
// counted, never propagated: one bad sink must not silence the others.
func (e *Engine) Emit(ctx context.Context, a *Alert) {
	for _, s := range e.sinks.All() {
		if err := s.Emit(ctx, a); err != nil {
			slog.Error("alert sink failed", "sink", s.Name(), "alert_id", a.ID, "err", err)
			metrics.AlertSinkErrors.WithLabelValues(s.Name()).Inc()
			continue
		}
	}
	metrics.AlertsEmitted.WithLabelValues(string(a.Severity), a.ScenarioID).Inc()
}

func (e *Engine) severity(res *perturb.Result) Severity {
	t := e.thresholds
	switch {
	case res.KLDivergence >= t.KLCritical || res.TotalVariation >= t.TVCritical:
		return SeverityCritical
	case res.KLDivergence >= t.KLWarn || res.TotalVariation >= t.TVWarn:
		return SeverityWarning
	default:
		return ""
	}
}

// score normalizes each measurement against its critical threshold and takes
// the worst, clamped to [0,1].
func (e *Engine) score(res *perturb.Result) float64 {
	t := e.thresholds
	s := 0.0
	if t.KLCritical > 0 {
		if v := res.KLDivergence / t.KLCritical; v > s {
			s = v
		}
	}
	if t.TVCritical > 0 {
		if v := res.TotalVariation / t.TVCritical; v > s {
			s = v
		}
	}
	if s > 1 {
		s = 1
	}
	return s
}
