package ports

import (
	"context"
	"time"

	"SignalMonitor/internal/domain"
)

// Authenticator runs the source's login flow and returns a fresh session.
type Authenticator interface {
	Authenticate(ctx context.Context, creds domain.Credentials) (domain.Session, error)
}

// TimelineSource reads the aggregated timeline visible to the session.
type TimelineSource interface {
	FetchTimeline(ctx context.Context, session domain.Session) ([]domain.RawItem, error)
}

// SessionRepository persists the single process-wide session.
type SessionRepository interface {
	Load(ctx context.Context) (domain.Session, bool, error)
	Save(ctx context.Context, session domain.Session) error
}

// Ledger is the durable idempotency record keyed by item identifier.
type Ledger interface {
	IsProcessed(ctx context.Context, itemID string) (bool, error)
	RecordSeen(ctx context.Context, item domain.RawItem, fetchedAt time.Time) (bool, error)
	Advance(ctx context.Context, itemID string, status domain.LedgerStatus, cause error) error
	PruneOlderThan(ctx context.Context, retention time.Duration) (int64, error)
	Retryable(ctx context.Context, window time.Duration) ([]domain.LedgerEntry, error)
	ExhaustStale(ctx context.Context, window time.Duration) (int64, error)
	Get(ctx context.Context, itemID string) (domain.LedgerEntry, error)
	ListFailed(ctx context.Context, limit int) ([]domain.LedgerEntry, error)
}

// HandleRegistry is the durable set of tracked handles.
type HandleRegistry interface {
	Add(ctx context.Context, raw string) (domain.TrackedHandle, error)
	Remove(ctx context.Context, raw string) error
	List(ctx context.Context) ([]domain.TrackedHandle, error)
	Contains(ctx context.Context, raw string) (bool, error)
}

// Enricher turns raw post text into a structured signal.
type Enricher interface {
	Summarize(ctx context.Context, text string) (domain.EnrichedSignal, error)
}

// Notifier delivers a formatted message to the notification sink.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Scheduler drives a job on a jittered interval until stopped.
type Scheduler interface {
	Start(ctx context.Context, interval time.Duration, jitter float64, job func(time.Time)) error
	Stop(ctx context.Context) error
}
