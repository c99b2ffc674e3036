package http

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kjstillabower/dropzone-weather-service/internal/client"
)

var _ client.Tracker = (*requestDrain)(nil)

func TestRequestDrain_Len(t *testing.T) {
	d := newRequestDrain()
	d.Inc()
	d.Inc()
	if got := d.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
	d.Dec()
	d.Dec()
	d.Dec()
	if got := d.Len(); got != 0 {
		t.Errorf("Len() = %d after unmatched Dec, want 0", got)
	}
}

func TestRequestDrain_WaitReturnsWhenIdle(t *testing.T) {
	d := newRequestDrain()
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() on idle drain error = %v", err)
	}

	d.Inc()
	go func() {
		time.Sleep(20 * time.Millisecond)
		d.Dec()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestRequestDrain_WaitTimesOut(t *testing.T) {
	d := newRequestDrain()
	d.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := d.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}

// A request that starts after the drain went idle must be waited for again.
func TestRequestDrain_ReopensAfterIdle(t *testing.T) {
	d := newRequestDrain()
	d.Inc()
	d.Dec()
	d.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := d.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded while a request is open", err)
	}
	d.Dec()
	if err := d.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v after last Dec", err)
	}
}
