package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/dropzone-weather-service/internal/validation"
)

// Reason names what asked for a refresh cycle.
type Reason string

const (
	ReasonInitial     Reason = "initial"
	ReasonPeriodic    Reason = "periodic"
	ReasonVisibility  Reason = "visibility"
	ReasonPageShow    Reason = "pageshow"
	ReasonForecastDay Reason = "forecast_day"
	ReasonManual      Reason = "manual"
)

const (
	triggerBuffer  = 16
	MaxForecastDay = validation.MaxForecastDay
)

var ErrInvalidForecastDay = errors.New("invalid forecast day")

// ParseReason accepts the reasons an external client may send.
func ParseReason(s string) (Reason, bool) {
	switch r := Reason(s); r {
	case ReasonVisibility, ReasonPageShow, ReasonManual:
		return r, true
	case "":
		return ReasonManual, true
	}
	return "", false
}

// Trigger queues a refresh cycle without blocking. Triggers are not coalesced;
// the result cache absorbs duplicate fetches. It reports false when the queue is full.
func (o *Orchestrator) Trigger(reason Reason) bool {
	select {
	case o.triggers <- reason:
		return true
	default:
		o.logger.Warn("refresh trigger dropped, queue full", zap.String("reason", string(reason)))
		return false
	}
}

// Run performs the initial cycle and then one cycle per trigger until ctx is
// done. Cycles may overlap. In-flight cycles run to completion before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	// Cycles outlive ctx so fetches already in flight are never cancelled.
	cycleCtx := context.WithoutCancel(ctx)
	o.startCycle(cycleCtx, ReasonInitial)
	for {
		select {
		case <-ctx.Done():
			o.cycles.Wait()
			return nil
		case reason := <-o.triggers:
			o.startCycle(cycleCtx, reason)
		}
	}
}

func (o *Orchestrator) startCycle(ctx context.Context, reason Reason) {
	o.cycles.Add(1)
	go func() {
		defer o.cycles.Done()
		o.logger.Info("refresh cycle started", zap.String("reason", string(reason)))
		o.RunRefreshCycle(ctx)
	}()
}

// Wait blocks until every started cycle has finished.
func (o *Orchestrator) Wait() {
	o.cycles.Wait()
}

// SelectForecastDay switches the forecast to day days ahead (0 = today). The
// store marks forecasts stale until a cycle for the new day completes.
func (o *Orchestrator) SelectForecastDay(day int) error {
	if day < 0 || day > MaxForecastDay {
		return fmt.Errorf("%w: %d (want 0..%d)", ErrInvalidForecastDay, day, MaxForecastDay)
	}
	o.mu.Lock()
	o.inputs.ForecastDay = day
	o.mu.Unlock()

	o.store.ForecastDay.Set(day)
	o.Trigger(ReasonForecastDay)
	return nil
}
