// Package scheduler fires periodic refresh triggers.
package scheduler

import (
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/dropzone-weather-service/internal/service"
)

// Triggerer accepts refresh requests. *service.Orchestrator implements it.
type Triggerer interface {
	Trigger(reason service.Reason) bool
}

// Scheduler asks for a periodic refresh every interval. It only enqueues a
// trigger; cycles run on the orchestrator and may outlast the interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	target    Triggerer
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a Scheduler. Call Start to begin.
func New(target Triggerer, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		target:    target,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the job and starts the underlying scheduler. The first
// trigger fires one interval from now; the initial cycle is run by the orchestrator.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}
	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(func() {
		if !s.target.Trigger(service.ReasonPeriodic) {
			s.logger.Debug("periodic refresh not queued")
		}
	})
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("refresh scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// AddMaintenance runs fn every interval, starting one interval after Start.
// Call before Start.
func (s *Scheduler) AddMaintenance(name string, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return errors.New("scheduler: maintenance interval must be positive")
	}
	_, err := s.scheduler.Every(interval).WaitForSchedule().Do(func() {
		fn()
		s.logger.Debug("maintenance job finished", zap.String("job", name))
	})
	return err
}

// Stop stops the scheduler. Cycles already triggered keep running.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
