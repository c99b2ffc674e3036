package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/dropzone-weather-service/internal/client"
	"github.com/kjstillabower/dropzone-weather-service/internal/config"
	"github.com/kjstillabower/dropzone-weather-service/internal/observability"
	"github.com/kjstillabower/dropzone-weather-service/internal/service"
	"github.com/kjstillabower/dropzone-weather-service/internal/store"
)

// pipeline is the acquisition stack shared by serve and refresh.
type pipeline struct {
	store        *store.Store
	orchestrator *service.Orchestrator
	observations *service.ObservationService
}

// buildPipeline wires two FMI clients behind one breaker. Only the refresh
// client reports into the store; on-demand observation lookups for other
// stations must not touch its loading counter or raw documents.
func buildPipeline(cfg *config.Config, logger *zap.Logger) (*pipeline, error) {
	st := store.New()
	breaker := client.NewCircuitBreaker(client.BreakerConfig{
		MaxRequests:         cfg.BreakerMaxRequests,
		Interval:            cfg.BreakerInterval,
		Timeout:             cfg.BreakerTimeout,
		ConsecutiveFailures: cfg.BreakerFailures,
	})

	refreshClient, err := client.NewFMIClient(cfg.FMIURL, cfg.FMITimeout,
		client.WithTracker(st.LoadingTracker()),
		client.WithTracker(observability.FMIInFlightTracker{}),
		client.WithRawSink(st.RecordRaw),
		client.WithBreaker(breaker),
	)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("fmi client: %w", err)
	}
	lookupClient, err := client.NewFMIClient(cfg.FMIURL, cfg.FMITimeout,
		client.WithTracker(observability.FMIInFlightTracker{}),
		client.WithBreaker(breaker),
	)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("fmi lookup client: %w", err)
	}

	opts := []service.Option{
		service.WithLocation(cfg.Location),
		service.WithCacheBustWindow(cfg.CacheBustWindow),
	}
	orch := service.NewOrchestrator(refreshClient, st, service.Inputs{
		FMISID:           cfg.FMISID,
		ICAOCode:         cfg.ICAOCode,
		ForecastDay:      cfg.ForecastDay,
		ObservationRange: cfg.ObservationRange,
		ForecastRange:    cfg.ForecastRange,
	}, logger, opts...)

	return &pipeline{
		store:        st,
		orchestrator: orch,
		observations: service.NewObservationService(lookupClient, cfg.ObservationMaxAge, logger, opts...),
	}, nil
}

// loadConfigAndLogger loads configuration, then builds the logger at the configured level.
func loadConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}
