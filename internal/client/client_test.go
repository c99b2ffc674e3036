package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/kjstillabower/dropzone-weather-service/internal/observability"
)

const minimalDoc = `<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0"><wfs:member/></wfs:FeatureCollection>`

type countingTracker struct{ n, peak atomic.Int32 }

func (c *countingTracker) Inc() {
	v := c.n.Add(1)
	if v > c.peak.Load() {
		c.peak.Store(v)
	}
}
func (c *countingTracker) Dec() { c.n.Add(-1) }

func TestNewFMIClient_InvalidURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"default", "", false},
		{"explicit", "https://opendata.fmi.fi/wfs", false},
		{"no scheme", "opendata.fmi.fi/wfs", true},
		{"garbage", "://", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewFMIClient(tt.url, time.Second)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFMIClient(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if !tt.wantErr && c == nil {
				t.Fatal("NewFMIClient() returned nil client")
			}
		})
	}
}

func TestFMIClient_Fetch_Success(t *testing.T) {
	fetchedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(minimalDoc))
	}))
	defer server.Close()

	var rawQuery string
	var rawBody []byte
	c, err := NewFMIClient(server.URL, 2*time.Second,
		WithClock(func() time.Time { return fetchedAt }),
		WithRawSink(func(query string, body []byte) {
			rawQuery, rawBody = query, body
		}),
	)
	if err != nil {
		t.Fatalf("NewFMIClient() error = %v", err)
	}

	doc, err := c.Fetch(context.Background(), QueryObservations, Params{
		"fmisid":     "101191",
		"parameters": "winddirection,windspeedms,windgust,n_man",
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	wantPrefix := "request=getFeature&storedquery_id=fmi::observations::weather::timevaluepair&"
	if !strings.HasPrefix(gotQuery, wantPrefix) {
		t.Errorf("query = %q, want prefix %q", gotQuery, wantPrefix)
	}
	if !strings.Contains(gotQuery, "fmisid=101191") {
		t.Errorf("query = %q, want fmisid param", gotQuery)
	}
	if !strings.Contains(gotQuery, "parameters=winddirection%2Cwindspeedms%2Cwindgust%2Cn_man") {
		t.Errorf("query = %q, want encoded parameters", gotQuery)
	}
	if doc.Query != QueryObservations {
		t.Errorf("doc.Query = %q, want %q", doc.Query, QueryObservations)
	}
	if root := xmlquery.FindOne(doc.Root, "/*"); root == nil || root.Data != "FeatureCollection" {
		t.Errorf("doc.Root does not hold the parsed FeatureCollection")
	}
	if !doc.FetchedAt.Equal(fetchedAt) {
		t.Errorf("doc.FetchedAt = %v, want %v", doc.FetchedAt, fetchedAt)
	}
	if rawQuery != string(QueryObservations) || string(rawBody) != minimalDoc {
		t.Errorf("raw sink got (%q, %q)", rawQuery, rawBody)
	}
}

// TestFMIClient_Fetch_ErrorHandling verifies status mapping, that the in-flight
// tracker returns to its prior value on every outcome and that the raw sink
// receives every 2xx body even when it cannot be parsed.
func TestFMIClient_Fetch_ErrorHandling(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  error
		wantSink bool
	}{
		{"not found", http.StatusNotFound, "", ErrNotFound, false},
		{"server error", http.StatusInternalServerError, "", ErrUpstreamFailure, false},
		{"bad request", http.StatusBadRequest, "", ErrUpstreamFailure, false},
		{"unparsable body", http.StatusOK, "<unterminated", ErrUpstreamFailure, true},
		{"empty body", http.StatusOK, "", ErrUpstreamFailure, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			tracker := &countingTracker{}
			sinkCalled := false
			var sinkBody []byte
			c, _ := NewFMIClient(server.URL, 2*time.Second,
				WithTracker(tracker),
				WithRawSink(func(_ string, body []byte) {
					sinkCalled = true
					sinkBody = body
				}),
			)

			doc, err := c.Fetch(context.Background(), QueryMetar, Params{"icaocode": "EFUT"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
			if doc != nil {
				t.Errorf("Fetch() doc = %v, want nil", doc)
			}
			if tracker.n.Load() != 0 {
				t.Errorf("in-flight = %d after Fetch, want 0", tracker.n.Load())
			}
			if tracker.peak.Load() != 1 {
				t.Errorf("in-flight peak = %d, want 1", tracker.peak.Load())
			}
			if sinkCalled != tt.wantSink {
				t.Errorf("raw sink called = %v, want %v", sinkCalled, tt.wantSink)
			}
			if tt.wantSink && string(sinkBody) != tt.body {
				t.Errorf("raw sink body = %q, want %q", sinkBody, tt.body)
			}
		})
	}
}

func TestFMIClient_Fetch_NotFoundIsNotUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c, _ := NewFMIClient(server.URL, time.Second)
	_, err := c.Fetch(context.Background(), QueryObservations, Params{"fmisid": "1"})
	if errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("404 should not be reported as upstream failure: %v", err)
	}
}

func TestFMIClient_Fetch_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	tracker := &countingTracker{}
	c, _ := NewFMIClient(url, time.Second, WithTracker(tracker))
	_, err := c.Fetch(context.Background(), QueryForecast, Params{"latlon": "60.9,26.9"})
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("Fetch() error = %v, want ErrUpstreamFailure", err)
	}
	if tracker.n.Load() != 0 {
		t.Errorf("in-flight = %d, want 0", tracker.n.Load())
	}
}

func TestFMIClient_Fetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c, _ := NewFMIClient(server.URL, 20*time.Millisecond)
	_, err := c.Fetch(context.Background(), QueryMetar, nil)
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("Fetch() error = %v, want ErrUpstreamFailure", err)
	}
	if got := CategorizeError(err); got != ErrorCategoryTimeout {
		t.Errorf("CategorizeError() = %v, want %v", got, ErrorCategoryTimeout)
	}
}

func TestFMIClient_Fetch_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, _ := NewFMIClient(server.URL, time.Second, WithCircuitBreaker(BreakerConfig{
		ConsecutiveFailures: 2,
		Timeout:             time.Minute,
	}))

	for i := 0; i < 2; i++ {
		_, err := c.Fetch(context.Background(), QueryMetar, nil)
		if !errors.Is(err, ErrUpstreamFailure) || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("call %d error = %v, want plain upstream failure", i, err)
		}
	}

	_, err := c.Fetch(context.Background(), QueryMetar, nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Fetch() error = %v, want ErrCircuitOpen", err)
	}
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("open breaker error should also be an upstream failure: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2", calls.Load())
	}
}

func TestFMIClient_Fetch_SharedBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cb := NewCircuitBreaker(BreakerConfig{ConsecutiveFailures: 1, Timeout: time.Minute})
	a, _ := NewFMIClient(server.URL, time.Second, WithBreaker(cb))
	b, _ := NewFMIClient(server.URL, time.Second, WithBreaker(cb))

	if _, err := a.Fetch(context.Background(), QueryMetar, nil); errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("first call error = %v, want plain upstream failure", err)
	}
	if _, err := b.Fetch(context.Background(), QueryObservations, nil); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second client error = %v, want ErrCircuitOpen", err)
	}
}

func TestFMIClient_Fetch_NotFoundDoesNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c, _ := NewFMIClient(server.URL, time.Second, WithCircuitBreaker(BreakerConfig{ConsecutiveFailures: 1}))
	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background(), QueryMetar, nil)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("call %d error = %v, want ErrNotFound", i, err)
		}
	}
}

func TestFMIClient_Fetch_CorrelationID(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Correlation-ID")
		_, _ = w.Write([]byte(minimalDoc))
	}))
	defer server.Close()

	c, _ := NewFMIClient(server.URL, time.Second)
	ctx := observability.WithCorrelationID(context.Background(), "corr-42")
	if _, err := c.Fetch(ctx, QueryMetar, nil); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got != "corr-42" {
		t.Errorf("X-Correlation-ID = %q, want corr-42", got)
	}
}

func TestCacheKey_StableOrder(t *testing.T) {
	a := CacheKey(QueryForecast, Params{"latlon": "60.9,26.9", "timestep": "10", "cch": "1"})
	b := CacheKey(QueryForecast, Params{"cch": "1", "timestep": "10", "latlon": "60.9,26.9"})
	if a != b {
		t.Errorf("CacheKey differs by insertion order: %q vs %q", a, b)
	}
	if c := CacheKey(QueryForecast, Params{"latlon": "60.9,26.9", "timestep": "10", "cch": "2"}); c == a {
		t.Error("CacheKey should change with cch")
	}
}
