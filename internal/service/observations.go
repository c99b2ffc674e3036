package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/dropzone-weather-service/internal/cache"
	"github.com/kjstillabower/dropzone-weather-service/internal/client"
	"github.com/kjstillabower/dropzone-weather-service/internal/models"
	"github.com/kjstillabower/dropzone-weather-service/internal/observability"
	"github.com/kjstillabower/dropzone-weather-service/internal/parser"
)

// DefaultObservationMaxAge is how old the newest observation may be before a
// cached report is refetched.
const DefaultObservationMaxAge = 15 * time.Minute

// ObservationService serves combined observation reports for arbitrary stations.
// Reports are cached per station and range while their newest observation is
// still current.
type ObservationService struct {
	fetcher client.DocumentFetcher
	reports *cache.ResultCache[string, models.ObservationReport]
	logger  *zap.Logger
	maxAge  time.Duration
	settings
}

// NewObservationService creates an ObservationService. maxAge <= 0 uses DefaultObservationMaxAge.
func NewObservationService(fetcher client.DocumentFetcher, maxAge time.Duration, logger *zap.Logger, opts ...Option) *ObservationService {
	if maxAge <= 0 {
		maxAge = DefaultObservationMaxAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ObservationService{
		fetcher:  fetcher,
		logger:   logger,
		maxAge:   maxAge,
		settings: newSettings(opts),
	}
	s.reports = cache.NewResultCache[string, models.ObservationReport](s.reportIsStale,
		cache.WithName("observations"), cache.WithClock(s.now))
	return s
}

// reportIsStale refetches once the weather itself is old, but never more often
// than once per cache-bust window.
func (s *ObservationService) reportIsStale(_ context.Context, r models.ObservationReport) (bool, error) {
	now := s.now()
	return r.IsDataOld(now, s.maxAge) && now.Sub(r.FetchedAt) >= s.window, nil
}

// GetObservations returns the combined observations of station fmisid over the
// last rangeHours hours, newest first.
func (s *ObservationService) GetObservations(ctx context.Context, fmisid string, rangeHours int) (models.ObservationReport, error) {
	if fmisid == "" {
		return models.ObservationReport{}, fmt.Errorf("fmisid: %w", ErrMissingInput)
	}
	if rangeHours <= 0 {
		rangeHours = DefaultObservationRange
	}
	key := fmisid + "/" + strconv.Itoa(rangeHours)
	logger := observability.LoggerFromContext(ctx, s.logger)

	report, err := s.reports.GetOrCompute(ctx, key, func(ctx context.Context) (models.ObservationReport, error) {
		return s.fetchReport(ctx, fmisid, rangeHours)
	})
	if err != nil {
		logger.Debug("observation report failed", zap.String("fmisid", fmisid), zap.Error(err))
		return models.ObservationReport{}, fmt.Errorf("observations for %s: %w", fmisid, err)
	}
	return report, nil
}

func (s *ObservationService) fetchReport(ctx context.Context, fmisid string, rangeHours int) (models.ObservationReport, error) {
	now := s.now()
	doc, err := s.fetcher.Fetch(ctx, client.QueryObservations, client.Params{
		"cch":        cacheBust(now, s.window),
		"starttime":  formatTime(observationStart(now, rangeHours, s.loc)),
		"parameters": observationParameters,
		"fmisid":     fmisid,
	})
	if err != nil {
		return models.ObservationReport{}, err
	}
	station, err := parser.ParseStation(doc.Root)
	if err != nil {
		return models.ObservationReport{}, err
	}
	return models.ObservationReport{
		FMISID:       fmisid,
		Station:      station,
		Observations: combineObservations(doc, now),
		FetchedAt:    now,
	}, nil
}

// Prune drops cached reports fetched before cutoff.
func (s *ObservationService) Prune(cutoff time.Time) int {
	return s.reports.Prune(cutoff)
}
