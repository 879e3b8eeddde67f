package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"SignalMonitor/internal/domain"
	"SignalMonitor/internal/ports"
)

// CycleRunner is the single cycle entry point guarded by the Scheduler.
type CycleRunner interface {
	RunCycle(ctx context.Context, trigger domain.Trigger) (domain.CycleSummary, error)
}

// Scheduler wires the ticker driver with the pipeline use case and makes sure
// at most one cycle runs at a time, whichever way it was triggered.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline CycleRunner
	logger   *slog.Logger

	running atomic.Bool

	mu   sync.RWMutex
	last *domain.CycleSummary
}

// NewScheduler returns a helper to start/stop recurring cycles.
func NewScheduler(driver ports.Scheduler, pipeline CycleRunner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// RunForever drives scheduled cycles until ctx is cancelled, then waits for the
// in-flight cycle to finish.
func (s *Scheduler) RunForever(ctx context.Context, interval time.Duration, jitter float64) error {
	job := func(time.Time) {
		_, err := s.run(ctx, domain.TriggerScheduled)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrCycleInProgress):
			s.logger.Info("scheduled cycle skipped, another cycle is running")
		default:
			s.logger.Error("scheduled cycle failed", "error", err)
		}
	}

	if err := s.driver.Start(ctx, interval, jitter, job); err != nil {
		return err
	}
	s.logger.Info("scheduler started", "interval", interval, "jitter", jitter)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Minute)
	defer cancel()
	if err := s.driver.Stop(stopCtx); err != nil {
		return err
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// TriggerNow runs a cycle immediately. It returns domain.ErrCycleInProgress
// without waiting when a cycle is already running.
func (s *Scheduler) TriggerNow(ctx context.Context) (domain.CycleSummary, error) {
	return s.run(ctx, domain.TriggerManual)
}

// Running reports whether a cycle is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// LastSummary returns the most recent finished cycle, if any.
func (s *Scheduler) LastSummary() (domain.CycleSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return domain.CycleSummary{}, false
	}
	return *s.last, true
}

func (s *Scheduler) run(ctx context.Context, trigger domain.Trigger) (domain.CycleSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return domain.CycleSummary{}, domain.ErrCycleInProgress
	}
	defer s.running.Store(false)

	summary, err := s.pipeline.RunCycle(ctx, trigger)

	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()

	return summary, err
}
