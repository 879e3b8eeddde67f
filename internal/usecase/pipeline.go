package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"SignalMonitor/internal/domain"
	"SignalMonitor/internal/ports"
	"SignalMonitor/internal/tickers"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Sessions *SessionStore
	Source   ports.TimelineSource
	Ledger   ports.Ledger
	Registry ports.HandleRegistry
	Enricher ports.Enricher
	Notifier ports.Notifier
	Logger   *slog.Logger
}

// PipelineOptions tunes concurrency and retry behaviour of a cycle.
type PipelineOptions struct {
	Workers       int
	RetryWindow   time.Duration
	Retention     time.Duration
	ItemTimeout   time.Duration
	EnrichRetries int
	SendRetries   int
	Backoff       time.Duration
}

// DefaultPipelineOptions mirrors the configuration defaults.
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		Workers:       4,
		RetryWindow:   24 * time.Hour,
		Retention:     30 * 24 * time.Hour,
		ItemTimeout:   2 * time.Minute,
		EnrichRetries: 2,
		SendRetries:   2,
		Backoff:       time.Second,
	}
}

// Pipeline runs poll cycles: fetch, dedupe, enrich, dispatch.
type Pipeline struct {
	sessions *SessionStore
	source   ports.TimelineSource
	ledger   ports.Ledger
	registry ports.HandleRegistry
	enricher ports.Enricher
	notifier ports.Notifier
	logger   *slog.Logger
	opts     PipelineOptions

	locks *keyedMutex
	now   func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps, opts PipelineOptions) *Pipeline {
	defaults := DefaultPipelineOptions()
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	if opts.RetryWindow <= 0 {
		opts.RetryWindow = defaults.RetryWindow
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = defaults.ItemTimeout
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaults.Backoff
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		sessions: deps.Sessions,
		source:   deps.Source,
		ledger:   deps.Ledger,
		registry: deps.Registry,
		enricher: deps.Enricher,
		notifier: deps.Notifier,
		logger:   logger,
		opts:     opts,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// cycleRun collects counters from concurrent lanes.
type cycleRun struct {
	mu      sync.Mutex
	summary domain.CycleSummary
}

func (c *cycleRun) add(fn func(s *domain.CycleSummary)) {
	c.mu.Lock()
	fn(&c.summary)
	c.mu.Unlock()
}

type lane struct {
	handle  string
	retries []domain.LedgerEntry
	fresh   []domain.RawItem
}

// RunCycle executes one poll cycle. Adapter failures are reflected in the
// summary outcome; only ledger failures are returned as errors.
func (p *Pipeline) RunCycle(ctx context.Context, trigger domain.Trigger) (domain.CycleSummary, error) {
	run := &cycleRun{summary: domain.CycleSummary{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: p.now(),
	}}
	logger := p.logger.With("cycle_id", run.summary.ID, "trigger", string(trigger))
	logger.Debug("poll cycle started")

	err := p.runCycle(ctx, run, logger)

	run.mu.Lock()
	summary := run.summary
	run.mu.Unlock()

	summary.FinishedAt = p.now()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// shutdown interrupted a ledger call; nothing was corrupted
		err = nil
	}
	switch {
	case err != nil:
		summary.Outcome = domain.OutcomeLedgerFailed
		summary.Err = err.Error()
	case ctx.Err() != nil:
		summary.Outcome = domain.OutcomeAborted
	case summary.Outcome == "":
		summary.Outcome = domain.OutcomeCompleted
	}

	level := slog.LevelInfo
	if summary.Outcome != domain.OutcomeCompleted {
		level = slog.LevelWarn
	}
	logger.Log(context.WithoutCancel(ctx), level, "poll cycle finished",
		"outcome", string(summary.Outcome),
		"duration", summary.Duration(),
		"fetched", summary.Fetched,
		"untracked", summary.Untracked,
		"new", summary.New,
		"duplicates", summary.Duplicates,
		"retried", summary.Retried,
		"enriched", summary.Enriched,
		"fallbacks", summary.Fallbacks,
		"dispatched", summary.Dispatched,
		"failed", summary.Failed,
		"error", summary.Err,
	)

	return summary, err
}

func (p *Pipeline) runCycle(ctx context.Context, run *cycleRun, logger *slog.Logger) error {
	items, stop := p.fetch(ctx, run, logger)
	if stop || ctx.Err() != nil {
		return nil
	}

	tracked, err := p.trackedSet(ctx)
	if err != nil {
		return err
	}

	if exhausted, err := p.ledger.ExhaustStale(ctx, p.opts.RetryWindow); err != nil {
		return fmt.Errorf("ledger: exhaust stale: %w", err)
	} else if exhausted > 0 {
		logger.Info("ledger entries exhausted", "count", exhausted)
	}

	retryable, err := p.ledger.Retryable(ctx, p.opts.RetryWindow)
	if err != nil {
		return fmt.Errorf("ledger: retryable: %w", err)
	}

	lanes := map[string]*lane{}
	laneFor := func(handle string) *lane {
		l, ok := lanes[handle]
		if !ok {
			l = &lane{handle: handle}
			lanes[handle] = l
		}
		return l
	}

	for _, entry := range retryable {
		l := laneFor(strings.ToLower(entry.Handle))
		l.retries = append(l.retries, entry)
	}

	untracked := 0
	for _, item := range items {
		handle := strings.ToLower(item.Handle)
		if _, ok := tracked[handle]; !ok {
			untracked++
			continue
		}
		l := laneFor(handle)
		l.fresh = append(l.fresh, item)
	}
	run.add(func(s *domain.CycleSummary) { s.Untracked = untracked })

	ordered := make([]*lane, 0, len(lanes))
	for _, l := range lanes {
		domain.SortOldestFirst(l.fresh)
		ordered = append(ordered, l)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].handle < ordered[j].handle })

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for _, l := range ordered {
		g.Go(func() error {
			return p.runLane(gctx, run, l, logger)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if p.opts.Retention > 0 && ctx.Err() == nil {
		if pruned, err := p.ledger.PruneOlderThan(ctx, p.opts.Retention); err != nil {
			logger.Warn("prune ledger", "error", err)
		} else if pruned > 0 {
			logger.Info("ledger pruned", "count", pruned)
		}
	}

	return nil
}

// fetch reads the timeline, renewing the session once on an auth failure.
// stop reports that the cycle cannot proceed at all.
func (p *Pipeline) fetch(ctx context.Context, run *cycleRun, logger *slog.Logger) ([]domain.RawItem, bool) {
	session, err := p.sessions.GetActiveSession(ctx)
	if err != nil {
		return nil, p.sourceFailed(run, logger, err)
	}

	items, err := p.source.FetchTimeline(ctx, session)
	if err != nil && domain.Classify(err) == domain.VerdictAuthExpired {
		logger.Info("timeline rejected the session, renewing", "error", err)
		p.sessions.Invalidate(ctx, err.Error())

		session, err = p.sessions.GetActiveSession(ctx)
		if err != nil {
			return nil, p.sourceFailed(run, logger, err)
		}
		items, err = p.source.FetchTimeline(ctx, session)
	}
	if err != nil {
		return nil, p.sourceFailed(run, logger, err)
	}

	p.sessions.Touch(ctx)
	run.add(func(s *domain.CycleSummary) { s.Fetched = len(items) })
	return items, false
}

func (p *Pipeline) sourceFailed(run *cycleRun, logger *slog.Logger, err error) bool {
	verdict := domain.Classify(err)
	if verdict == domain.VerdictNeedsOperator || verdict == domain.VerdictAuthExpired {
		logger.Error("poll blocked on authentication", "error", err, "verdict", verdict.String())
		run.add(func(s *domain.CycleSummary) {
			s.Outcome = domain.OutcomeAuthBlocked
			s.Err = err.Error()
		})
		return true
	}

	logger.Warn("timeline fetch failed", "error", err, "verdict", verdict.String())
	run.add(func(s *domain.CycleSummary) {
		s.Outcome = domain.OutcomeSourceFailed
		s.Err = err.Error()
	})
	return false
}

func (p *Pipeline) trackedSet(ctx context.Context) (map[string]struct{}, error) {
	handles, err := p.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: list handles: %w", err)
	}
	set := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		set[h.Handle] = struct{}{}
	}
	return set, nil
}

func (p *Pipeline) runLane(ctx context.Context, run *cycleRun, l *lane, logger *slog.Logger) error {
	logger = logger.With("handle", l.handle)

	for _, entry := range l.retries {
		if ctx.Err() != nil {
			return nil
		}
		run.add(func(s *domain.CycleSummary) { s.Retried++ })
		if err := p.processItem(ctx, run, entry.Item(), true, logger); err != nil {
			return err
		}
	}

	for _, item := range l.fresh {
		if ctx.Err() != nil {
			return nil
		}

		unlock := p.locks.Lock(item.ID)
		inserted, err := p.ledger.RecordSeen(ctx, item, p.now())
		unlock()
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		if !inserted {
			run.add(func(s *domain.CycleSummary) { s.Duplicates++ })
			continue
		}
		run.add(func(s *domain.CycleSummary) { s.New++ })

		if err := p.processItem(ctx, run, item, false, logger); err != nil {
			return err
		}
	}

	return nil
}

// processItem enriches and dispatches one item. The item runs to completion on a
// detached context even if the cycle is cancelled meanwhile. Only ledger
// failures are returned.
func (p *Pipeline) processItem(ctx context.Context, run *cycleRun, item domain.RawItem, retry bool, logger *slog.Logger) error {
	unlock := p.locks.Lock(item.ID)
	defer unlock()

	itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.ItemTimeout)
	defer cancel()

	logger = logger.With("item_id", item.ID)

	if retry {
		done, err := p.ledger.IsProcessed(itemCtx, item.ID)
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		if done {
			return nil
		}
	}

	regexTickers := tickers.Extract(item.Text)
	signal, err := p.enrich(itemCtx, item.Text)
	if err != nil {
		logger.Warn("enrichment failed, using fallback", "error", err, "verdict", domain.Classify(err).String())
		signal = domain.FallbackSignal(regexTickers)
		run.add(func(s *domain.CycleSummary) { s.Fallbacks++ })
	} else {
		signal = signal.Normalize(regexTickers)
		run.add(func(s *domain.CycleSummary) { s.Enriched++ })
	}

	if err := p.ledger.Advance(itemCtx, item.ID, domain.StatusEnriched, nil); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	message := FormatMessage(item, signal, tickers.Actions(item.Text))
	if err := p.dispatch(itemCtx, message); err != nil {
		logger.Warn("dispatch failed", "error", err, "verdict", domain.Classify(err).String())
		run.add(func(s *domain.CycleSummary) { s.Failed++ })
		if aErr := p.ledger.Advance(itemCtx, item.ID, domain.StatusFailed, err); aErr != nil {
			return fmt.Errorf("ledger: %w", aErr)
		}
		return nil
	}

	if err := p.ledger.Advance(itemCtx, item.ID, domain.StatusDispatched, nil); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	run.add(func(s *domain.CycleSummary) { s.Dispatched++ })
	logger.Debug("item dispatched", "fallback", signal.Fallback)
	return nil
}

func (p *Pipeline) enrich(ctx context.Context, text string) (domain.EnrichedSignal, error) {
	if p.enricher == nil {
		return domain.EnrichedSignal{}, errors.New("no enrichment provider configured")
	}

	var signal domain.EnrichedSignal
	err := p.retry(ctx, p.opts.EnrichRetries, func() error {
		s, err := p.enricher.Summarize(ctx, text)
		if err != nil {
			return err
		}
		signal = s
		return nil
	})
	return signal, err
}

func (p *Pipeline) dispatch(ctx context.Context, message string) error {
	return p.retry(ctx, p.opts.SendRetries, func() error {
		return p.notifier.Send(ctx, message)
	})
}

// retry re-runs op with exponential backoff while it fails with a retryable error.
func (p *Pipeline) retry(ctx context.Context, retries int, op func() error) error {
	if retries < 0 {
		retries = 0
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.opts.Backoff
	exp.MaxInterval = 30 * p.opts.Backoff
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && domain.Classify(err) != domain.VerdictRetryable {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
