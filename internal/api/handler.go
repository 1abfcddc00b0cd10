package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/markovflow/internal/alert"
	"github.com/gyaneshwarpardhi/markovflow/internal/config"
	"github.com/gyaneshwarpardhi/markovflow/internal/engine"
	"github.com/gyaneshwarpardhi/markovflow/internal/event"
	"github.com/gyaneshwarpardhi/markovflow/internal/metrics"
	"github.com/gyaneshwarpardhi/markovflow/internal/state"
	"github.com/gyaneshwarpardhi/markovflow/internal/store"
)

const (
	maxBatchSize   = 500
	topStatesLimit = 10
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	det        *engine.Detector
	loader     *config.Loader
	strategies *state.Registry
	sinks      *alert.SinkRegistry
	archive    store.Store
}

// New creates the service router.
func New(det *engine.Detector, loader *config.Loader, strategies *state.Registry, sinks *alert.SinkRegistry, archive store.Store) http.Handler {
	h := &Handler{det: det, loader: loader, strategies: strategies, sinks: sinks, archive: archive}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events", h.ingestEvent)
		r.Post("/events/batch", h.ingestBatch)
		r.Get("/model", h.getModel)
		r.Get("/model/state", h.getModelState)
		r.Post("/model/rebuild", h.rebuildModel)
		r.Get("/scenarios", h.listScenarios)
		r.Post("/scenarios/{id}/analyze", h.analyzeScenario)
		r.Get("/alerts", h.listAlerts)
		r.Post("/config/reload", h.reloadConfig)
	})
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// requestLogger logs one line per request with latency and status.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// POST /v1/events — synchronous single-event ingestion.
func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var ev event.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	ev.Normalize(time.Now())
	if err := ev.Validate(); err != nil {
		metrics.EventsInvalid.Inc()
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.det.IngestSync(r.Context(), &ev)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, engine.ErrIngestTimeout):
		// The event is already queued; only the acknowledgement timed out.
		writeError(w, r, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, r, http.StatusTooManyRequests, err.Error())
	}
}

// POST /v1/events/batch — async batch ingestion.
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var events []*event.Event
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(events) == 0 {
		writeError(w, r, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if len(events) > maxBatchSize {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(events), maxBatchSize))
		return
	}

	now := time.Now()
	queued, invalid := 0, 0
	for _, ev := range events {
		if ev == nil { // a JSON null in the array
			metrics.EventsInvalid.Inc()
			invalid++
			continue
		}
		ev.Normalize(now)
		if err := ev.Validate(); err != nil {
			metrics.EventsInvalid.Inc()
			invalid++
			continue
		}
		if h.det.IngestAsync(ev) {
			queued++
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":   uuid.New().String(),
		"total":    len(events),
		"queued":   queued,
		"invalid":  invalid,
		"rejected": len(events) - queued - invalid,
	})
}

// GET /v1/model — current model summary.
func (h *Handler) getModel(w http.ResponseWriter, r *http.Request) {
	snap := h.det.Snapshot()
	if snap == nil {
		writeError(w, r, http.StatusNotFound, "model not built yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"built_at":    snap.BuiltAt,
		"strategy":    snap.Strategy,
		"event_count": snap.EventCount,
		"states":      snap.Matrix.Len(),
		"transitions": snap.Transitions,
		"sink_states": snap.SinkStates,
		"entropy":     snap.Entropy,
		"solve_stats": snap.SolveStats,
		"top_states":  snap.Stationary.TopStates(topStatesLimit),
	})
}

// GET /v1/model/state?label=… — one state's outgoing row and stationary mass.
func (h *Handler) getModelState(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	if label == "" {
		writeError(w, r, http.StatusBadRequest, "label query parameter is required")
		return
	}
	snap := h.det.Snapshot()
	if snap == nil {
		writeError(w, r, http.StatusNotFound, "model not built yet")
		return
	}
	if !snap.Matrix.Contains(label) {
		writeError(w, r, http.StatusNotFound, fmt.Sprintf("unknown state %q", label))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":           label,
		"stationary_mass": snap.Stationary[label],
		"sink":            snap.Matrix.IsSink(label),
		"outgoing":        snap.Matrix.Row(label),
		"observed_count":  snap.Matrix.RowTotal(label),
	})
}

// POST /v1/model/rebuild — force a rebuild now.
func (h *Handler) rebuildModel(w http.ResponseWriter, r *http.Request) {
	snap, err := h.det.Rebuild(r.Context())
	if err != nil {
		writeError(w, r, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"built_at":    snap.BuiltAt,
		"states":      snap.Matrix.Len(),
		"transitions": snap.Transitions,
		"solve_stats": snap.SolveStats,
	})
}

// GET /v1/scenarios — configured perturbation scenarios.
func (h *Handler) listScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scenarios": h.det.Scenarios(),
	})
}

// POST /v1/scenarios/{id}/analyze — run one scenario on demand.
func (h *Handler) analyzeScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.det.AnalyzeScenario(r.Context(), id)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /v1/alerts?limit=N — recent alerts, newest first.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	alerts, err := h.archive.RecentAlerts(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// POST /v1/config/reload — re-read config from disk and apply it.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if err := config.Validate(cfg, h.strategies); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.det.UpdateConfig(cfg, h.strategies, h.sinks); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":  true,
		"version":   cfg.Version,
		"strategy":  cfg.State.Strategy,
		"scenarios": len(cfg.Scenarios),
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if the ingestion queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.det.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}
