package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/dropzone-weather-service/internal/observability"
)

// RouterConfig configures NewRouter. A nil Limiter disables rate limiting and
// an empty StaticDir serves no assets.
type RouterConfig struct {
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
	StaticDir      string
}

// NewRouter wires the handlers, /metrics and static assets.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	api.HandleFunc("/state", h.GetState).Methods(http.MethodGet)
	api.HandleFunc("/raw/{query}", h.GetRaw).Methods(http.MethodGet)
	api.HandleFunc("/observations", h.GetObservations).Methods(http.MethodGet)
	api.HandleFunc("/refresh", h.PostRefresh).Methods(http.MethodPost)
	api.HandleFunc("/forecast-day/{day}", h.PutForecastDay).Methods(http.MethodPut)

	if cfg.StaticDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir))).Methods(http.MethodGet, http.MethodHead)
	}
	return router
}
