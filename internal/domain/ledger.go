package domain

import "time"

// LedgerStatus enumerates processing milestones of an item.
type LedgerStatus string

const (
	StatusSeen       LedgerStatus = "seen"
	StatusEnriched   LedgerStatus = "enriched"
	StatusDispatched LedgerStatus = "dispatched"
	StatusFailed     LedgerStatus = "failed"
)

// Valid reports whether s is a known status.
func (s LedgerStatus) Valid() bool {
	switch s {
	case StatusSeen, StatusEnriched, StatusDispatched, StatusFailed:
		return true
	}
	return false
}

// LedgerEntry is the durable processing record of one source item.
type LedgerEntry struct {
	ItemID       string
	Handle       string
	Text         string
	URL          string
	CreatedAt    time.Time
	FetchedAt    time.Time
	Status       LedgerStatus
	LastError    string
	Attempts     int
	Exhausted    bool
	UpdatedAt    time.Time
	DispatchedAt time.Time
}

// Item rebuilds the raw item captured when the entry was first seen.
func (e LedgerEntry) Item() RawItem {
	return RawItem{
		ID:        e.ItemID,
		Handle:    e.Handle,
		CreatedAt: e.CreatedAt,
		Text:      e.Text,
		URL:       e.URL,
	}
}

// CanTransition reports whether moving from one status to another is a legal
// forward step. Re-entering ENRICHED from ENRICHED or FAILED starts a new attempt.
func CanTransition(from, to LedgerStatus) bool {
	switch from {
	case StatusSeen:
		return to == StatusEnriched || to == StatusFailed
	case StatusEnriched:
		return to == StatusEnriched || to == StatusDispatched || to == StatusFailed
	case StatusFailed:
		return to == StatusEnriched || to == StatusFailed
	}
	return false
}
