package store

import (
	"sync"
	"time"

	"github.com/kjstillabower/dropzone-weather-service/internal/models"
	"github.com/kjstillabower/dropzone-weather-service/internal/observability"
)

// Store is the published state of the acquisition pipeline. The orchestrator is
// its only writer apart from the loading counter and raw snapshots, which the
// FMI client maintains. Readers may run in any goroutine.
type Store struct {
	Name           *Signal[string]
	StationName    *Signal[string]
	Position       *Signal[models.Coordinates]
	Observations   *Signal[[]models.WeatherData]
	Forecasts      *Signal[[]models.WeatherData]
	Metars         *Signal[[]models.MetarRecord]
	Errors         *Signal[[]string]
	Loading        *Signal[int]
	RawData        *Signal[map[string]RawDocument]
	ForecastDay    *Signal[int]
	StaleForecasts *Signal[bool]
	UpdatedAt      *Signal[time.Time]

	Trend *Computed[float64]

	now func() time.Time

	genMu     sync.Mutex
	issued    uint64
	completed uint64

	cancelStale func()
}

// RawDocument is the last body received for a stored query.
type RawDocument struct {
	Body       []byte
	ReceivedAt time.Time
}

type Option func(*Store)

// WithClock replaces time.Now for the trend and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store. Forecasts start out stale until a cycle delivers them.
func New(opts ...Option) *Store {
	s := &Store{
		Name:           NewComparableSignal(""),
		StationName:    NewComparableSignal(""),
		Position:       NewComparableSignal(models.Coordinates{}),
		Observations:   NewSignal([]models.WeatherData{}),
		Forecasts:      NewSignal([]models.WeatherData{}),
		Metars:         NewSignal([]models.MetarRecord{}),
		Errors:         NewSignal([]string{}),
		Loading:        NewComparableSignal(0),
		RawData:        NewSignal(map[string]RawDocument{}),
		ForecastDay:    NewComparableSignal(0),
		StaleForecasts: NewComparableSignal(true),
		UpdatedAt:      NewComparableSignal(time.Time{}),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Trend = NewComputed(func() float64 {
		return GustTrend(s.Observations.Get(), s.Forecasts.Get(), s.now())
	}, s.Observations, s.Forecasts, s.ForecastDay)

	// Forecasts on display belong to the previous day until the next cycle replaces them.
	s.cancelStale = s.ForecastDay.OnChange(func() { s.StaleForecasts.Set(true) })
	return s
}

// Now returns the store clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// BeginCycle issues a new generation number for a refresh cycle.
func (s *Store) BeginCycle() uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.issued++
	return s.issued
}

// Apply runs fn if no generation newer than gen has completed. It reports
// whether fn ran. Discarded writes are counted.
func (s *Store) Apply(gen uint64, fn func()) bool {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if gen < s.completed {
		observability.StoreWritesDiscardedTotal.Inc()
		return false
	}
	fn()
	return true
}

// CompleteCycle marks gen as completed. Writes of older generations arriving
// afterwards are discarded.
func (s *Store) CompleteCycle(gen uint64) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if gen > s.completed {
		s.completed = gen
	}
}

// AppendError adds msg to the error list of the current cycle.
func (s *Store) AppendError(msg string) {
	s.Errors.Update(func(cur []string) []string {
		next := make([]string, len(cur), len(cur)+1)
		copy(next, cur)
		return append(next, msg)
	})
}

// RecordRaw keeps body as the latest raw document for query.
func (s *Store) RecordRaw(query string, body []byte) {
	doc := RawDocument{Body: body, ReceivedAt: s.now()}
	s.RawData.Update(func(cur map[string]RawDocument) map[string]RawDocument {
		next := make(map[string]RawDocument, len(cur)+1)
		for k, v := range cur {
			next[k] = v
		}
		next[query] = doc
		return next
	})
}

// Raw returns the latest raw document for query.
func (s *Store) Raw(query string) (RawDocument, bool) {
	doc, ok := s.RawData.Get()[query]
	return doc, ok
}

// Counter is incremented when a request starts and decremented when it ends.
type Counter interface {
	Inc()
	Dec()
}

// LoadingTracker exposes the loading counter to the FMI client.
func (s *Store) LoadingTracker() Counter {
	return loadingTracker{s.Loading}
}

type loadingTracker struct{ sig *Signal[int] }

func (t loadingTracker) Inc() { t.sig.Update(func(n int) int { return n + 1 }) }
func (t loadingTracker) Dec() { t.sig.Update(func(n int) int { return n - 1 }) }

// Snapshot is a consistent-enough, JSON-ready view of the store.
type Snapshot struct {
	Name           string               `json:"name"`
	StationName    string               `json:"stationName"`
	LatLon         string               `json:"latlon,omitempty"`
	Position       models.Coordinates   `json:"position"`
	Observations   []models.WeatherData `json:"observations"`
	Forecasts      []models.WeatherData `json:"forecasts"`
	Metars         []models.MetarRecord `json:"metars"`
	Errors         []string             `json:"errors"`
	Loading        int                  `json:"loading"`
	ForecastDay    int                  `json:"forecastDay"`
	StaleForecasts bool                 `json:"staleForecasts"`
	GustTrend      float64              `json:"gustTrend"`
	UpdatedAt      *time.Time           `json:"updatedAt,omitempty"`
}

func (s *Store) Snapshot() Snapshot {
	pos := s.Position.Get()
	snap := Snapshot{
		Name:           s.Name.Get(),
		StationName:    s.StationName.Get(),
		Position:       pos,
		Observations:   s.Observations.Get(),
		Forecasts:      s.Forecasts.Get(),
		Metars:         s.Metars.Get(),
		Errors:         s.Errors.Get(),
		Loading:        s.Loading.Get(),
		ForecastDay:    s.ForecastDay.Get(),
		StaleForecasts: s.StaleForecasts.Get(),
		GustTrend:      s.Trend.Get(),
	}
	if pos != (models.Coordinates{}) {
		snap.LatLon = pos.LatLon()
	}
	if t := s.UpdatedAt.Get(); !t.IsZero() {
		snap.UpdatedAt = &t
	}
	return snap
}

// Close detaches internal subscriptions.
func (s *Store) Close() {
	s.Trend.Close()
	if s.cancelStale != nil {
		s.cancelStale()
	}
}
