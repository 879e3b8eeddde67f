package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJitterTickerRunsImmediatelyAndRepeats(t *testing.T) {
	ticker := NewJitterTicker()
	var runs atomic.Int32

	require.NoError(t, ticker.Start(context.Background(), 10*time.Millisecond, 0.5, func(time.Time) {
		runs.Add(1)
	}))

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, ticker.Stop(context.Background()))

	after := runs.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestJitterTickerStopWaitsForJob(t *testing.T) {
	ticker := NewJitterTicker()
	started := make(chan struct{})
	var finished atomic.Bool

	require.NoError(t, ticker.Start(context.Background(), time.Hour, 0, func(time.Time) {
		close(started)
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
	}))

	<-started
	require.NoError(t, ticker.Stop(context.Background()))
	assert.True(t, finished.Load())
}

func TestJitterTickerRejectsBadArguments(t *testing.T) {
	ticker := NewJitterTicker()
	job := func(time.Time) {}

	assert.Error(t, ticker.Start(context.Background(), 0, 0, job))
	assert.Error(t, ticker.Start(context.Background(), time.Second, 1, job))
	assert.NoError(t, ticker.Stop(context.Background()))
}

func TestNextDelayBounds(t *testing.T) {
	ticker := NewJitterTicker()

	ticker.randFn = func() float64 { return 0 }
	assert.Equal(t, 90*time.Second, ticker.nextDelay(100*time.Second, 0.1))

	ticker.randFn = func() float64 { return 0.5 }
	assert.Equal(t, 100*time.Second, ticker.nextDelay(100*time.Second, 0.1))

	assert.Equal(t, 100*time.Second, ticker.nextDelay(100*time.Second, 0))
}
