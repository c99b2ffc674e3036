package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/dropzone-weather-service/internal/cache"
	"github.com/kjstillabower/dropzone-weather-service/internal/client"
	"github.com/kjstillabower/dropzone-weather-service/internal/degraded"
	"github.com/kjstillabower/dropzone-weather-service/internal/models"
	"github.com/kjstillabower/dropzone-weather-service/internal/observability"
	"github.com/kjstillabower/dropzone-weather-service/internal/parser"
	"github.com/kjstillabower/dropzone-weather-service/internal/store"
)

// ErrMissingInput is returned when a required station input is not configured.
var ErrMissingInput = errors.New("missing input")

const (
	DefaultObservationRange = 12
	DefaultForecastRange    = 8
	DefaultCacheBustWindow  = 30 * time.Second

	observationParameters = "winddirection,windspeedms,windgust,n_man"
	forecastParameters    = "HourlyMaximumGust,WindDirection,WindSpeedMS,MiddleAndLowCloudCover"
	forecastTimestep      = "10"
)

// Error sources used as metric labels.
const (
	sourceMetar        = "metar"
	sourceObservations = "observations"
	sourceForecasts    = "forecasts"
)

// Inputs select the station and windows for a refresh cycle. Ranges are in hours.
type Inputs struct {
	FMISID           string
	ICAOCode         string
	ForecastDay      int
	ObservationRange int
	ForecastRange    int
}

func (in Inputs) withDefaults() Inputs {
	if in.ObservationRange <= 0 {
		in.ObservationRange = DefaultObservationRange
	}
	if in.ForecastRange <= 0 {
		in.ForecastRange = DefaultForecastRange
	}
	return in
}

// CycleResult summarizes one refresh cycle.
type CycleResult struct {
	Generation   uint64        `json:"generation"`
	Outcome      string        `json:"outcome"`
	Errors       []string      `json:"errors"`
	Observations int           `json:"observations"`
	Forecasts    int           `json:"forecasts"`
	Metars       int           `json:"metars"`
	Duration     time.Duration `json:"duration"`
}

// settings are shared by the orchestrator and the observation service.
type settings struct {
	loc    *time.Location
	now    func() time.Time
	window time.Duration
}

func newSettings(opts []Option) settings {
	st := settings{loc: time.Local, now: time.Now, window: DefaultCacheBustWindow}
	for _, opt := range opts {
		opt(&st)
	}
	return st
}

type Option func(*settings)

// WithLocation sets the zone used for hour truncation and daytime forecast windows.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithCacheBustWindow sets how long a fetched document is reused.
func WithCacheBustWindow(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.window = d
		}
	}
}

// Orchestrator runs refresh cycles: it fetches METAR, observations and forecasts
// for the configured inputs and publishes the normalized result to the store.
type Orchestrator struct {
	fetcher client.DocumentFetcher
	store   *store.Store
	docs    *cache.ResultCache[string, *client.Document]
	logger  *zap.Logger
	settings

	mu     sync.RWMutex
	inputs Inputs

	triggers chan Reason
	cycles   sync.WaitGroup
}

func NewOrchestrator(fetcher client.DocumentFetcher, st *store.Store, inputs Inputs, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		fetcher:  fetcher,
		store:    st,
		logger:   logger,
		settings: newSettings(opts),
		inputs:   inputs.withDefaults(),
		triggers: make(chan Reason, triggerBuffer),
	}
	o.docs = cache.NewResultCache[string, *client.Document](o.documentIsStale,
		cache.WithName("documents"), cache.WithClock(o.now))
	// ForecastDay is owned by SelectForecastDay from here on; cycles only read it.
	st.ForecastDay.Set(o.inputs.ForecastDay)
	return o
}

// Inputs returns the inputs the next cycle will use.
func (o *Orchestrator) Inputs() Inputs {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.inputs
}

func (o *Orchestrator) documentIsStale(_ context.Context, doc *client.Document) (bool, error) {
	return o.now().Sub(doc.FetchedAt) >= o.window, nil
}

// fetch goes through the document cache so overlapping cycles share requests.
func (o *Orchestrator) fetch(ctx context.Context, query client.StoredQuery, params client.Params) (*client.Document, error) {
	return o.docs.GetOrCompute(ctx, client.CacheKey(query, params), func(ctx context.Context) (*client.Document, error) {
		return o.fetcher.Fetch(ctx, query, params)
	})
}

// cycle is the state of one RunRefreshCycle call.
type cycle struct {
	o      *Orchestrator
	gen    uint64
	in     Inputs
	now    time.Time
	cch    string
	logger *zap.Logger

	mu     sync.Mutex
	errors []string
	result CycleResult
}

// RunRefreshCycle fetches and publishes one round of data. Failures do not abort
// the cycle as a whole: each is logged, counted and appended to the published
// error list, and the branch it occurred in stops.
func (o *Orchestrator) RunRefreshCycle(ctx context.Context) CycleResult {
	start := time.Now()
	in := o.Inputs()
	gen := o.store.BeginCycle()
	now := o.now()

	c := &cycle{
		o:      o,
		gen:    gen,
		in:     in,
		now:    now,
		cch:    cacheBust(now, o.window),
		logger: observability.LoggerFromContext(ctx, o.logger).With(zap.Uint64("generation", gen)),
	}
	c.result.Generation = gen

	o.docs.Prune(now.Add(-2 * o.window))

	c.apply(func() {
		o.store.Errors.Set([]string{})
		o.store.Name.Set(in.ICAOCode)
	})

	obsStart := observationStart(now, in.ObservationRange, o.loc)

	var g errgroup.Group
	g.Go(func() error {
		return c.metar(ctx, obsStart)
	})
	obsErr := c.observationsAndForecasts(ctx, obsStart)
	metarErr := g.Wait()

	c.apply(func() { o.store.UpdatedAt.Set(now) })
	o.store.CompleteCycle(gen)

	c.mu.Lock()
	res := c.result
	res.Errors = append([]string{}, c.errors...)
	c.mu.Unlock()

	res.Duration = time.Since(start)
	res.Outcome = outcome(res, obsErr, metarErr)

	observability.RefreshCyclesTotal.WithLabelValues(res.Outcome).Inc()
	observability.RefreshCycleDuration.Observe(res.Duration.Seconds())
	if res.Outcome == "failed" {
		degraded.RecordError()
	} else {
		degraded.RecordSuccess()
	}

	c.logger.Info("refresh cycle finished",
		zap.String("outcome", res.Outcome),
		zap.Int("errors", len(res.Errors)),
		zap.Int("observations", res.Observations),
		zap.Int("forecasts", res.Forecasts),
		zap.Int("metars", res.Metars),
		zap.Duration("duration", res.Duration),
	)
	return res
}

func outcome(res CycleResult, obsErr, metarErr error) string {
	switch {
	case len(res.Errors) == 0:
		return "success"
	case obsErr != nil && metarErr != nil && res.Observations == 0:
		return "failed"
	default:
		return "partial"
	}
}

// apply writes to the store unless a newer cycle has already completed.
func (c *cycle) apply(fn func()) bool {
	if c.o.store.Apply(c.gen, fn) {
		return true
	}
	c.logger.Debug("store write discarded, newer cycle completed")
	return false
}

// fail records err under source and publishes msg.
func (c *cycle) fail(source, msg string, err error) error {
	category := categorize(err)
	observability.RefreshErrorsTotal.WithLabelValues(source, category).Inc()
	c.logger.Warn("refresh step failed",
		zap.String("source", source),
		zap.String("category", category),
		zap.String("message", msg),
		zap.Error(err),
	)

	c.mu.Lock()
	c.errors = append(c.errors, msg)
	c.mu.Unlock()
	c.apply(func() { c.o.store.AppendError(msg) })
	return err
}

func categorize(err error) string {
	if errors.Is(err, ErrMissingInput) {
		return "missing_input"
	}
	return string(client.CategorizeError(err))
}

func (c *cycle) metar(ctx context.Context, obsStart time.Time) error {
	icao := c.in.ICAOCode
	if icao == "" {
		return c.fail(sourceMetar, "Airport code (ICAO) is missing.",
			fmt.Errorf("icao code: %w", ErrMissingInput))
	}

	doc, err := c.o.fetch(ctx, client.QueryMetar, client.Params{
		"cch":       c.cch,
		"starttime": formatTime(obsStart),
		"icaocode":  icao,
	})
	if errors.Is(err, client.ErrNotFound) {
		return c.fail(sourceMetar, fmt.Sprintf("Unknown airport code %s.", icao), err)
	}
	if err != nil {
		return c.fail(sourceMetar, fmt.Sprintf("Failed to fetch METAR for %s.", icao), err)
	}

	records := parser.ParseMetarRecords(doc.Root, c.now)
	if records == nil {
		records = []models.MetarRecord{}
	}
	if c.apply(func() { c.o.store.Metars.Set(records) }) {
		c.mu.Lock()
		c.result.Metars = len(records)
		c.mu.Unlock()
	}
	return nil
}

func (c *cycle) observationsAndForecasts(ctx context.Context, obsStart time.Time) error {
	fmisid := c.in.FMISID
	if fmisid == "" {
		return c.fail(sourceObservations, "Observation station (FMISID) is missing.",
			fmt.Errorf("fmisid: %w", ErrMissingInput))
	}

	doc, err := c.o.fetch(ctx, client.QueryObservations, client.Params{
		"cch":        c.cch,
		"starttime":  formatTime(obsStart),
		"parameters": observationParameters,
		"fmisid":     fmisid,
	})
	if errors.Is(err, client.ErrNotFound) {
		return c.fail(sourceObservations, fmt.Sprintf("Observation station %s not found.", fmisid), err)
	}
	if err != nil {
		return c.fail(sourceObservations, fmt.Sprintf("Failed to fetch observations for station %s.", fmisid), err)
	}

	station, err := parser.ParseStation(doc.Root)
	if err != nil {
		return c.fail(sourceObservations, fmt.Sprintf("Observation station %s returned no usable station data.", fmisid), err)
	}

	observations := combineObservations(doc, c.now)
	if c.apply(func() {
		c.o.store.StationName.Set(station.Name)
		if c.in.ICAOCode == "" {
			c.o.store.Name.Set(station.Name)
		}
		c.o.store.Position.Set(station.Coordinates)
		c.o.store.Observations.Set(observations)
	}) {
		c.mu.Lock()
		c.result.Observations = len(observations)
		c.mu.Unlock()
	}

	return c.forecasts(ctx, station.Coordinates)
}

func combineObservations(doc *client.Document, now time.Time) []models.WeatherData {
	return parser.ZipObservations(
		parser.Reverse(parser.ParseTimeSeries(doc.Root, parser.ObservationGustSeries, now)),
		parser.Reverse(parser.ParseTimeSeries(doc.Root, parser.ObservationSpeedSeries, now)),
		parser.Reverse(parser.ParseTimeSeries(doc.Root, parser.ObservationDirectionSeries, now)),
	)
}

func (c *cycle) forecasts(ctx context.Context, pos models.Coordinates) error {
	w := forecastWindow(c.now, c.in.ForecastDay, c.in.ForecastRange, c.o.loc)
	doc, err := c.o.fetch(ctx, client.QueryForecast, client.Params{
		"cch":        c.cch,
		"starttime":  formatTime(w.Start),
		"endtime":    formatTime(w.End),
		"timestep":   forecastTimestep,
		"parameters": forecastParameters,
		"latlon":     pos.LatLon(),
	})
	if errors.Is(err, client.ErrNotFound) {
		return c.fail(sourceForecasts, "No forecasts found.", err)
	}
	if err != nil {
		return c.fail(sourceForecasts, "Failed to fetch forecasts.", err)
	}

	forecasts := parser.ZipForecasts(
		parser.ParseTimeSeries(doc.Root, parser.ForecastGustSeries, c.now),
		parser.ParseTimeSeries(doc.Root, parser.ForecastSpeedSeries, c.now),
		parser.ParseTimeSeries(doc.Root, parser.ForecastDirectionSeries, c.now),
		parser.ParseTimeSeries(doc.Root, parser.ForecastCloudSeries, c.now),
	)
	day := c.in.ForecastDay
	if c.apply(func() {
		c.o.store.Forecasts.Set(forecasts)
		// A day selected while this cycle ran keeps the flag until its own cycle lands.
		if c.o.store.ForecastDay.Get() == day {
			c.o.store.StaleForecasts.Set(false)
		}
	}) {
		c.mu.Lock()
		c.result.Forecasts = len(forecasts)
		c.mu.Unlock()
	}
	return nil
}
