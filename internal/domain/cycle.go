package domain

import "time"

// Trigger identifies what started a poll cycle.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Outcome is how a poll cycle ended.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeAuthBlocked  Outcome = "auth_blocked"
	OutcomeSourceFailed Outcome = "source_failed"
	OutcomeAborted      Outcome = "aborted"
	OutcomeLedgerFailed Outcome = "ledger_failed"
)

// CycleSummary reports the counters of one poll cycle.
type CycleSummary struct {
	ID         string
	Trigger    Trigger
	Outcome    Outcome
	StartedAt  time.Time
	FinishedAt time.Time

	Fetched    int
	Untracked  int
	New        int
	Duplicates int
	Retried    int
	Enriched   int
	Fallbacks  int
	Dispatched int
	Failed     int

	Err string
}

// Duration is the wall time the cycle took.
func (s CycleSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
