package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalMonitor/internal/domain"
)

func unavailableEnricher(context.Context, string) (domain.EnrichedSignal, error) {
	return domain.EnrichedSignal{}, fmt.Errorf("provider down: %w", domain.ErrTransient)
}

func TestRunCycleFallbackScenario(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	items := []domain.RawItem{post("1001", "acme", "raw: Tesla deliveries beat Q4 estimates", now.Add(-time.Minute))}
	h := newHarness(t, items, unavailableEnricher, "acme")

	summary, err := h.pipeline.RunCycle(ctx, domain.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeCompleted, summary.Outcome)
	assert.Equal(t, 1, summary.New)
	assert.Equal(t, 1, summary.Fallbacks)
	assert.Equal(t, 1, summary.Dispatched)
	assert.NotEmpty(t, summary.ID)

	sent := h.notifier.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "*Tickers:* $TSLA")
	assert.Contains(t, sent[0], "*Action:* UNKNOWN")
	assert.Contains(t, sent[0], "*Confidence:* UNKNOWN")

	entry, err := h.ledger.Get(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDispatched, entry.Status)
	assert.Equal(t, 1, entry.Attempts)
}

func TestRunCycleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	items := []domain.RawItem{
		post("1", "acme", "first $AAPL", now.Add(-2*time.Minute)),
		post("2", "acme", "second", now.Add(-time.Minute)),
	}
	h := newHarness(t, items, okEnricher, "acme")

	_, err := h.pipeline.RunCycle(ctx, domain.TriggerScheduled)
	require.NoError(t, err)

	summary, err := h.pipeline.RunCycle(ctx, domain.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.New)
	assert.Equal(t, 2, summary.Duplicates)
	assert.Equal(t, 0, summary.Dispatched)

	sent := h.notifier.sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "first")
	assert.Contains(t, sent[0], "$NVDA, $AAPL")
	assert.Contains(t, sent[0], "*Action:* BUY")
	assert.Contains(t, sent[1], "second")
}

func TestRunCycleDropsUntrackedHandles(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	items := []domain.RawItem{
		post("1", "Acme", "tracked", now),
		post("2", "stranger", "not tracked", now),
	}
	h := newHarness(t, items, okEnricher, "acme")

	summary, err := h.pipeline.RunCycle(ctx, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 1, summary.Untracked)
	assert.Equal(t, 1, summary.Dispatched)

	_, err = h.ledger.Get(ctx, "2")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunCycleRenewsSessionOnceOnAuthFailure(t *testing.T) {
	ctx := context.Background()
	items := []domain.RawItem{post("1", "acme", "hello", time.Now())}
	h := newHarness(t, items, okEnricher, "acme")
	h.source.fetch = func(_ context.Context, session domain.Session) ([]domain.RawItem, error) {
		if session.Credentials["auth_token"] != "fresh" {
			return nil, fmt.Errorf("status 401: %w", domain.ErrAuth)
		}
		return items, nil
	}

	summary, err := h.pipeline.RunCycle(ctx, domain.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeCompleted, summary.Outcome)
	assert.EqualValues(t, 1, h.auth.calls.Load())
	assert.EqualValues(t, 2, h.source.calls.Load())
	assert.Equal(t, 1, summary.Dispatched)
	assert.Equal(t, "fresh", h.repo.stored().Credentials["auth_token"])
}

func TestRunCycleAuthStillRejectedAfterRenewal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, okEnricher, "acme")
	h.source.fetch = func(context.Context, domain.Session) ([]domain.RawItem, error) {
		return nil, fmt.Errorf("status 403: %w", domain.ErrAuth)
	}

	summary, err := h.pipeline.RunCycle(ctx, domain.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeAuthBlocked, summary.Outcome)
	assert.EqualValues(t, 1, h.auth.calls.Load())
	assert.EqualValues(t, 2, h.source.calls.Load())
}

func TestRunCycleChallengeBlocksCycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, okEnricher, "acme")
	h.repo.session = &domain.Session{Status: domain.SessionChallengeRequired}

	summary, err := h.pipeline.RunCycle(ctx, domain.TriggerScheduled)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeAuthBlocked, summary.Outcome)
	assert.Zero(t, h.source.calls.Load())
	assert.Zero(t, h.auth.calls.Load())
	assert.Empty(t, h.notifier.sent())
}

func TestRunCycleRetriesPendingItemsOldestFirstAfterCrash(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	a := post("10", "acme", "alpha", now.Add(-3*time.Minute))
	b := post("11", "acme", "bravo", now.Add(-2*time.Minute))
	c := post("12", "acme", "charlie", now.Add(-time.Minute))
	h := newHarness(t, []domain.RawItem{c, b, a}, okEnricher, "acme")

	// a previous run died after recording a and b, and after enriching b
	_, err := h.ledger.RecordSeen(ctx, b, now)
	require.NoError(t, err)
	_, err = h.ledger.RecordSeen(ctx, a, now)
	require.NoError(t, err)
	require.NoError(t, h.ledger.Advance(ctx, b.ID, domain.StatusEnriched, nil))

	summary, err := h.pipeline.RunCycle(ctx, domain.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Retried)
	assert.Equal(t, 2, summary.Duplicates)
	assert.Equal(t, 1, summary.New)
	assert.Equal(t, 3, summary.Dispatched)

	sent := h.notifier.sent()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[0], "alpha")
	assert.Contains(t, sent[1], "bravo")
	assert.Contains(t, sent[2], "charlie")

	entry, err := h.ledger.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Attempts)
}

func TestRunCycleTransientDispatchFailureRetriedNextCycle(t *testing.T) {
	ctx := context.Background()
	items := []domain.RawItem{post("1", "acme", "hello", time.Now())}
	h := newHarness(t, items, okEnricher, "acme")

	var down atomic.Bool
	down.Store(true)
	h.notifier.fail = func(string) error {
		if down.Load() {
			return fmt.Errorf("status 502: %w", domain.ErrTransient)
		}
		return nil
	}

	summary, err := h.pipeline.RunCycle(ctx, domain.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	entry, err := h.ledger.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, entry.Status)
	assert.False(t, entry.Exhausted)
	assert.Contains(t, entry.LastError, "502")

	down.Store(false)
	summary, err = h.pipeline.RunCycle(ctx, domain.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Retried)
	assert.Equal(t, 1, summary.Dispatched)
	require.Len(t, h.notifier.sent(), 1)

	entry, err = h.ledger.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDispatched, entry.Status)
	assert.Equal(t, 2, entry.Attempts)
}

func TestRunCyclePermanentDispatchFailureIsNotRetried(t *testing.T) {
	ctx := context.Background()
	items := []domain.RawItem{post("1", "acme", "hello", time.Now())}
	h := newHarness(t, items, okEnricher, "acme")

	var sends atomic.Int32
	h.notifier.fail = func(string) error {
		sends.Add(1)
		return fmt.Errorf("chat not found: %w", domain.ErrPermanent)
	}

	_, err := h.pipeline.RunCycle(ctx, domain.TriggerScheduled)
	require.NoError(t, err)
	assert.EqualValues(t, 1, sends.Load())

	summary, err := h.pipeline.RunCycle(ctx, domain.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Retried)
	assert.EqualValues(t, 1, sends.Load())

	entry, err := h.ledger.Get(ctx, "1")
	require.NoError(t, err)
	assert.True(t, entry.Exhausted)
}

func TestRunCycleSourceFailureStillRetriesPending(t *testing.T) {
	ctx := context.Background()
	pending := post("7", "acme", "pending", time.Now())
	h := newHarness(t, nil, okEnricher, "acme")
	h.source.fetch = func(context.Context, domain.Session) ([]domain.RawItem, error) {
		return nil, fmt.Errorf("status 503: %w", domain.ErrTransient)
	}
	_, err := h.ledger.RecordSeen(ctx, pending, time.Now())
	require.NoError(t, err)

	summary, err := h.pipeline.RunCycle(ctx, domain.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSourceFailed, summary.Outcome)
	assert.Equal(t, 1, summary.Dispatched)
}

func TestRunCycleCancellationFinishesInFlightItem(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now()
	items := []domain.RawItem{
		post("1", "acme", "first", now.Add(-time.Minute)),
		post("2", "acme", "second", now),
	}
	h := newHarness(t, items, okEnricher, "acme")
	h.notifier.fail = func(message string) error {
		if strings.Contains(message, "first") {
			cancel()
		}
		return nil
	}

	summary, err := h.pipeline.RunCycle(ctx, domain.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAborted, summary.Outcome)
	assert.Equal(t, 1, summary.Dispatched)

	first, err := h.ledger.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDispatched, first.Status)

	h.notifier.fail = nil
	summary, err = h.pipeline.RunCycle(context.Background(), domain.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Dispatched)
	require.Len(t, h.notifier.sent(), 2)
}

func TestRunCycleShutdownDuringFetchAborts(t *testing.T) {
	for _, tc := range []struct {
		name     string
		fetchErr bool
	}{
		{name: "fetch returns context error", fetchErr: true},
		{name: "fetch completes after cancel", fetchErr: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			items := []domain.RawItem{post("1", "acme", "buy $AAPL", time.Now())}
			h := newHarness(t, items, okEnricher, "acme")
			h.source.fetch = func(c context.Context, _ domain.Session) ([]domain.RawItem, error) {
				cancel()
				if tc.fetchErr {
					return nil, c.Err()
				}
				return items, nil
			}

			summary, err := h.pipeline.RunCycle(ctx, domain.TriggerScheduled)
			require.NoError(t, err)
			assert.Equal(t, domain.OutcomeAborted, summary.Outcome)
			assert.Empty(t, h.notifier.sent())

			_, err = h.ledger.Get(context.Background(), "1")
			require.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestRunCycleProcessesHandlesInParallelLanes(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	var items []domain.RawItem
	for i, handle := range []string{"acme", "beta", "gamma"} {
		for j := 0; j < 3; j++ {
			items = append(items, post(fmt.Sprintf("%d%d", i, j), handle, fmt.Sprintf("%s-%d", handle, j), now.Add(time.Duration(j)*time.Second)))
		}
	}
	h := newHarness(t, items, okEnricher, "acme", "beta", "gamma")

	summary, err := h.pipeline.RunCycle(ctx, domain.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 9, summary.Dispatched)

	// per-handle order survives concurrency
	last := map[string]int{}
	for _, msg := range h.notifier.sent() {
		for _, handle := range []string{"acme", "beta", "gamma"} {
			for j := 0; j < 3; j++ {
				if strings.Contains(msg, fmt.Sprintf("%s-%d", handle, j)) {
					prev, seen := last[handle]
					if seen {
						assert.Greater(t, j, prev)
					}
					last[handle] = j
				}
			}
		}
	}
	assert.Len(t, last, 3)
}
