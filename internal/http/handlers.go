package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/dropzone-weather-service/internal/client"
	"github.com/kjstillabower/dropzone-weather-service/internal/degraded"
	"github.com/kjstillabower/dropzone-weather-service/internal/models"
	"github.com/kjstillabower/dropzone-weather-service/internal/observability"
	"github.com/kjstillabower/dropzone-weather-service/internal/parser"
	"github.com/kjstillabower/dropzone-weather-service/internal/service"
	"github.com/kjstillabower/dropzone-weather-service/internal/store"
	"github.com/kjstillabower/dropzone-weather-service/internal/validation"
)

// StateReader exposes the published pipeline state. *store.Store implements it.
type StateReader interface {
	Snapshot() store.Snapshot
	Raw(query string) (store.RawDocument, bool)
}

// Refresher accepts refresh triggers and forecast-day changes. *service.Orchestrator implements it.
type Refresher interface {
	Trigger(reason service.Reason) bool
	SelectForecastDay(day int) error
}

// ObservationGetter serves observation reports for arbitrary stations.
type ObservationGetter interface {
	GetObservations(ctx context.Context, fmisid string, rangeHours int) (models.ObservationReport, error)
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow     time.Duration
	DegradedErrorPct   int
	DegradedMinSamples int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	state        StateReader
	refresher    Refresher
	observations ObservationGetter
	healthConfig *HealthConfig
	logger       *zap.Logger

	shuttingDown     atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	state StateReader,
	refresher Refresher,
	observations ObservationGetter,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		state:        state,
		refresher:    refresher,
		observations: observations,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// SetShuttingDown marks the process as draining. /health reports shutting-down while set.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

// GetState handles GET /api/state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, h.state.Snapshot())
}

// GetRaw handles GET /api/raw/{query}: the last document received for a stored query.
func (h *Handler) GetRaw(w http.ResponseWriter, r *http.Request) {
	query := mux.Vars(r)["query"]
	doc, ok := h.state.Raw(query)
	if !ok {
		writeError(w, r, http.StatusNotFound, "RAW_NOT_FOUND", "no document received for "+query)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Last-Modified", doc.ReceivedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}

// GetObservations handles GET /api/observations?fmisid=&observation_range=.
func (h *Handler) GetObservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fmisid, err := validation.ValidateStation(q.Get("fmisid"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_STATION", err.Error())
		return
	}
	rangeHours, err := validation.ParseRange(q.Get("observation_range"), service.DefaultObservationRange)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_RANGE", err.Error())
		return
	}

	report, err := h.observations.GetObservations(r.Context(), fmisid, rangeHours)
	if err != nil {
		writeObservationError(w, r, fmisid, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// PostRefresh handles POST /api/refresh?reason=.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	reason, ok := service.ParseReason(r.URL.Query().Get("reason"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "INVALID_REASON", "reason must be visibility, pageshow or manual")
		return
	}
	if !h.refresher.Trigger(reason) {
		writeError(w, r, http.StatusServiceUnavailable, "REFRESH_BUSY", "refresh queue is full")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"queued": true,
		"reason": reason,
	})
}

// PutForecastDay handles PUT /api/forecast-day/{day}.
func (h *Handler) PutForecastDay(w http.ResponseWriter, r *http.Request) {
	day, err := validation.ParseForecastDay(mux.Vars(r)["day"], service.MaxForecastDay)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORECAST_DAY", err.Error())
		return
	}
	if err := h.refresher.SelectForecastDay(day); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORECAST_DAY", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"forecastDay": day,
	})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"refresh": "healthy"}
	if result.reason == "refresh_failure_rate" {
		checks["refresh"] = "unhealthy"
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "dropzone-weather-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if snap := h.state.Snapshot(); snap.UpdatedAt != nil {
		resp["lastUpdate"] = snap.UpdatedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if h.shuttingDown.Load() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		threshold := float64(h.healthConfig.DegradedErrorPct) / 100
		if degraded.IsDegraded(h.healthConfig.DegradedWindow, threshold, h.healthConfig.DegradedMinSamples) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "refresh_failure_rate"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// writeObservationError maps observation lookup failures onto the error envelope.
func writeObservationError(w http.ResponseWriter, r *http.Request, fmisid string, err error) {
	switch {
	case errors.Is(err, service.ErrMissingInput):
		writeError(w, r, http.StatusBadRequest, "INVALID_STATION", "Observation station (FMISID) is missing.")
	case errors.Is(err, client.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "STATION_NOT_FOUND", "Observation station "+fmisid+" not found.")
	case errors.Is(err, parser.ErrMalformed):
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Observation station "+fmisid+" returned no usable station data.")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Failed to fetch observations for station "+fmisid+".")
	}
	observability.LoggerFromContext(r.Context(), zap.NewNop()).Debug("observation lookup failed",
		zap.String("fmisid", fmisid),
		zap.String("category", string(client.CategorizeError(err))),
		zap.Error(err))
}
