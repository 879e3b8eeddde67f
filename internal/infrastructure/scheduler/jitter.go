package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"SignalMonitor/internal/ports"
)

// JitterTicker runs a job immediately and then every interval ± jitter.
type JitterTicker struct {
	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	randFn  func() float64
	running bool
}

var _ ports.Scheduler = (*JitterTicker)(nil)

// NewJitterTicker builds an idle ticker.
func NewJitterTicker() *JitterTicker {
	return &JitterTicker{randFn: rand.Float64}
}

// Start begins ticking. Jobs never overlap: the next wait starts after the
// previous job returned. Starting a running ticker is a no-op.
func (j *JitterTicker) Start(ctx context.Context, interval time.Duration, jitter float64, job func(time.Time)) error {
	if job == nil {
		return nil
	}
	if interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}
	if jitter < 0 || jitter >= 1 {
		return errors.New("scheduler: jitter must be in [0,1)")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return nil
	}

	j.stop = make(chan struct{})
	j.done = make(chan struct{})
	j.running = true

	stop, done := j.stop, j.done
	go func() {
		defer close(done)

		job(time.Now())
		for {
			timer := time.NewTimer(j.nextDelay(interval, jitter))
			select {
			case t := <-timer.C:
				job(t)
			case <-ctx.Done():
				timer.Stop()
				return
			case <-stop:
				timer.Stop()
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker and waits for an in-flight job, bounded by ctx.
func (j *JitterTicker) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	close(j.stop)
	done := j.done
	j.running = false
	j.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *JitterTicker) nextDelay(interval time.Duration, jitter float64) time.Duration {
	if jitter == 0 {
		return interval
	}
	// uniform in [1-jitter, 1+jitter)
	factor := 1 + jitter*(2*j.randFn()-1)
	return time.Duration(float64(interval) * factor)
}
