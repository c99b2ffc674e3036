package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/sony/gobreaker"

	"github.com/kjstillabower/dropzone-weather-service/internal/observability"
	"github.com/kjstillabower/dropzone-weather-service/internal/parser"
)

// StoredQuery is an FMI WFS stored query identifier.
type StoredQuery string

const (
	QueryObservations StoredQuery = "fmi::observations::weather::timevaluepair"
	QueryMetar        StoredQuery = "fmi::avi::observations::iwxxm"
	QueryForecast     StoredQuery = "fmi::forecast::edited::weather::scandinavia::point::timevaluepair"
)

// DefaultBaseURL is the public FMI open-data WFS endpoint.
const DefaultBaseURL = "https://opendata.fmi.fi/wfs"

const maxBodyBytes = 16 << 20

var (
	ErrNotFound        = errors.New("not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrCircuitOpen     = errors.New("circuit breaker open")
)

// Params are stored query parameters. Values are sent as given.
type Params map[string]string

// Encode renders the params as a query string in key order.
func (p Params) Encode() string {
	v := url.Values{}
	for k, val := range p {
		v.Set(k, val)
	}
	return v.Encode()
}

// CacheKey identifies a request for result caching.
func CacheKey(query StoredQuery, params Params) string {
	return string(query) + "?" + params.Encode()
}

// Document is a parsed WFS response.
type Document struct {
	Query     StoredQuery
	Root      *xmlquery.Node
	FetchedAt time.Time
}

// DocumentFetcher fetches stored query results.
type DocumentFetcher interface {
	Fetch(ctx context.Context, query StoredQuery, params Params) (*Document, error)
}

// Tracker counts outstanding requests.
type Tracker interface {
	Inc()
	Dec()
}

// RawSink receives the raw body of every successful response.
type RawSink func(query string, body []byte)

// BreakerConfig configures the circuit breaker around the transport.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

type Option func(*FMIClient)

// WithTracker adds an in-flight tracker. Trackers are incremented before and
// decremented after every Fetch, whatever its outcome.
func WithTracker(t Tracker) Option {
	return func(c *FMIClient) { c.trackers = append(c.trackers, t) }
}

func WithRawSink(sink RawSink) Option {
	return func(c *FMIClient) { c.rawSink = sink }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *FMIClient) { c.client = hc }
}

func WithClock(now func() time.Time) Option {
	return func(c *FMIClient) { c.now = now }
}

// WithCircuitBreaker wraps the transport in a circuit breaker. Server errors and
// transport failures count against it; 404 does not.
func WithCircuitBreaker(cfg BreakerConfig) Option {
	return WithBreaker(NewCircuitBreaker(cfg))
}

// WithBreaker guards the transport with cb. Clients for the same upstream can
// share one breaker so they trip together.
func WithBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *FMIClient) { c.breaker = cb }
}

// NewCircuitBreaker builds the breaker WithCircuitBreaker installs.
func NewCircuitBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fmi",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			observability.CircuitBreakerState.Set(float64(to))
		},
	})
}

// FMIClient fetches stored queries from the FMI open-data WFS endpoint.
// It does not retry; callers decide what a failure means.
type FMIClient struct {
	baseURL  *url.URL
	client   *http.Client
	trackers []Tracker
	rawSink  RawSink
	breaker  *gobreaker.CircuitBreaker
	now      func() time.Time
}

func NewFMIClient(baseURL string, timeout time.Duration, opts ...Option) (*FMIClient, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid FMI URL %q", baseURL)
	}
	c := &FMIClient{
		baseURL: u,
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// response is what crosses the breaker boundary.
type response struct {
	status int
	body   []byte
}

func (c *FMIClient) Fetch(ctx context.Context, query StoredQuery, params Params) (*Document, error) {
	for _, t := range c.trackers {
		t.Inc()
	}
	defer func() {
		for _, t := range c.trackers {
			t.Dec()
		}
	}()

	start := time.Now()
	doc, label, err := c.fetch(ctx, query, params)
	observability.FMIAPICallsTotal.WithLabelValues(string(query), label).Inc()
	observability.FMIAPIDuration.WithLabelValues(string(query), label).Observe(time.Since(start).Seconds())
	return doc, err
}

func (c *FMIClient) fetch(ctx context.Context, query StoredQuery, params Params) (*Document, string, error) {
	resp, err := c.execute(ctx, query, params)
	label := statusLabel(resp, err)
	if err != nil {
		return nil, label, err
	}
	if resp.status == http.StatusNotFound {
		return nil, label, fmt.Errorf("%s: %w", query, ErrNotFound)
	}
	if resp.status < 200 || resp.status >= 300 {
		return nil, label, fmt.Errorf("%w: %s: HTTP %d", ErrUpstreamFailure, query, resp.status)
	}

	// The sink sees every 2xx body, including ones that fail to parse.
	if c.rawSink != nil {
		c.rawSink(string(query), resp.body)
	}
	root, err := parser.Parse(bytes.NewReader(resp.body))
	if err != nil {
		return nil, "parse_error", fmt.Errorf("%w: parse %s response: %w", ErrUpstreamFailure, query, err)
	}
	if !parser.HasRoot(root) {
		return nil, "parse_error", fmt.Errorf("%w: %s response has no root element", ErrUpstreamFailure, query)
	}
	return &Document{Query: query, Root: root, FetchedAt: c.now()}, label, nil
}

func (c *FMIClient) execute(ctx context.Context, query StoredQuery, params Params) (response, error) {
	if c.breaker == nil {
		return c.roundTrip(ctx, query, params)
	}
	var got response
	_, err := c.breaker.Execute(func() (interface{}, error) {
		r, err := c.roundTrip(ctx, query, params)
		got = r
		if err != nil {
			return nil, err
		}
		if r.status >= 500 {
			return nil, fmt.Errorf("%w: %s: HTTP %d", ErrUpstreamFailure, query, r.status)
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return response{}, fmt.Errorf("%w: %w", ErrUpstreamFailure, ErrCircuitOpen)
	}
	if err != nil && got.status >= 500 {
		// Server errors are reported through the status like the unguarded path.
		return got, nil
	}
	return got, err
}

func (c *FMIClient) roundTrip(ctx context.Context, query StoredQuery, params Params) (response, error) {
	req, err := c.buildRequest(ctx, query, params)
	if err != nil {
		return response{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return response{}, fmt.Errorf("%w: request timeout: %w", ErrUpstreamFailure, err)
		}
		return response{}, fmt.Errorf("%w: http request failed: %w", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return response{}, fmt.Errorf("%w: read response body: %w", ErrUpstreamFailure, err)
	}
	return response{status: resp.StatusCode, body: body}, nil
}

func (c *FMIClient) buildRequest(ctx context.Context, query StoredQuery, params Params) (*http.Request, error) {
	u := *c.baseURL
	u.RawQuery = encodeQuery(query, params)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/xml")
	if id := observability.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	return req, nil
}

// encodeQuery keeps request and storedquery_id first, followed by params in key
// order. The stored query id is left unescaped so URLs stay readable in logs.
func encodeQuery(query StoredQuery, params Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("request=getFeature&storedquery_id=")
	b.WriteString(string(query))
	for _, k := range keys {
		b.WriteByte('&')
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

func statusLabel(resp response, err error) string {
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case err != nil:
		return "error"
	case resp.status >= 200 && resp.status < 300:
		return "success"
	case resp.status == http.StatusNotFound:
		return "not_found"
	case resp.status >= 400 && resp.status < 500:
		return "client_error"
	case resp.status >= 500:
		return "server_error"
	}
	return "error"
}
