package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "markovflow_events_ingested_total",
		Help: "Total number of events accepted onto the ingestion queue.",
	})

	EventsInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "markovflow_events_invalid_total",
		Help: "Total number of events rejected by validation.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "markovflow_events_dropped_total",
		Help: "Total number of events rejected due to a full queue.",
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "markovflow_queue_utilization_ratio",
		Help: "Current ingestion queue utilization (0–1).",
	})

	Rebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "markovflow_model_rebuilds_total",
		Help: "Total number of transition-model rebuilds.",
	})

	RebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "markovflow_model_rebuild_duration_ms",
		Help:    "End-to-end model rebuild latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
	})

	SolverIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "markovflow_solver_iterations",
		Help:    "Power-iteration counts per stationary solve.",
		Buckets: []float64{5, 10, 25, 50, 100, 200, 500, 1000},
	})

	SolverFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "markovflow_solver_nonconvergence_total",
		Help: "Total number of solves that hit the iteration cap.",
	})

	ModelStates = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "markovflow_model_states",
		Help: "Number of states in the current transition model.",
	})

	ModelEntropy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "markovflow_model_entropy_nats",
		Help: "Shannon entropy of the current stationary distribution.",
	})

	ScenariosAnalyzed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "markovflow_scenarios_analyzed_total",
		Help: "Total number of perturbation runs, labelled by scenario ID.",
	}, []string{"scenario_id"})

	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "markovflow_alerts_emitted_total",
		Help: "Total number of alerts emitted, labelled by severity and scenario.",
	}, []string{"severity", "scenario_id"})

	AlertSinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "markovflow_alert_sink_errors_total",
		Help: "Total number of sink delivery failures, labelled by sink.",
	}, []string{"sink"})
)
