package http

import (
	"context"
	"sync"
)

// requestDrain counts requests being served and lets shutdown wait for the
// count to drop to zero. Inc and Dec match client.Tracker.
type requestDrain struct {
	mu   sync.Mutex
	n    int64
	idle chan struct{} // closed while n == 0
}

func newRequestDrain() *requestDrain {
	idle := make(chan struct{})
	close(idle)
	return &requestDrain{idle: idle}
}

func (d *requestDrain) Inc() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.n == 0 {
		d.idle = make(chan struct{})
	}
	d.n++
}

// Dec without a matching Inc is ignored.
func (d *requestDrain) Dec() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.n == 0 {
		return
	}
	d.n--
	if d.n == 0 {
		close(d.idle)
	}
}

func (d *requestDrain) Len() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}

// Wait returns once the count has been zero at some point after the call, or
// with ctx's error when ctx ends first.
func (d *requestDrain) Wait(ctx context.Context) error {
	d.mu.Lock()
	idle := d.idle
	d.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// inFlight counts requests passing through MetricsMiddleware.
var inFlight = newRequestDrain()

// InFlightCount returns the number of requests MetricsMiddleware is serving.
func InFlightCount() int64 {
	return inFlight.Len()
}

// WaitForInFlight blocks until MetricsMiddleware has no request in progress or ctx is done.
func WaitForInFlight(ctx context.Context) error {
	return inFlight.Wait(ctx)
}
