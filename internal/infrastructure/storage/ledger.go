package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"SignalMonitor/internal/domain"
	"SignalMonitor/internal/ports"
)

const (
	ledgerTable = "processed_items"

	defaultMaxAttempts = 3
	retryBudgetMessage = "retry budget exhausted"
)

var ledgerColumns = []string{
	"item_id", "handle", "text", "url", "created_at", "fetched_at", "status",
	"attempts", "last_error", "exhausted", "updated_at", "dispatched_at",
}

// LedgerRepository persists per-item processing state.
type LedgerRepository struct {
	db          *DB
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

var _ ports.Ledger = (*LedgerRepository)(nil)

// NewLedgerRepository wires the ledger over an open database.
func NewLedgerRepository(db *DB, maxAttempts int, logger *slog.Logger) *LedgerRepository {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerRepository{
		db:          db,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

// IsProcessed reports whether the item reached DISPATCHED.
func (r *LedgerRepository) IsProcessed(ctx context.Context, itemID string) (bool, error) {
	entry, err := r.Get(ctx, itemID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return entry.Status == domain.StatusDispatched, nil
}

// RecordSeen inserts a SEEN entry. It returns false when the item already exists,
// leaving the stored entry untouched.
func (r *LedgerRepository) RecordSeen(ctx context.Context, item domain.RawItem, fetchedAt time.Time) (bool, error) {
	now := toMillis(r.now())
	insert := r.db.builder.Insert(ledgerTable).
		Columns("item_id", "handle", "text", "url", "created_at", "fetched_at", "status", "attempts", "exhausted", "updated_at").
		Values(item.ID, item.Handle, item.Text, item.URL, toMillis(item.CreatedAt), toMillis(fetchedAt),
			string(domain.StatusSeen), 0, false, now).
		Suffix("ON CONFLICT (item_id) DO NOTHING")

	res, err := r.db.exec(ctx, insert)
	if err != nil {
		return false, fmt.Errorf("record seen %s: %w", item.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record seen rows: %w", err)
	}
	return affected == 1, nil
}

// Advance moves the item forward. Transitions out of DISPATCHED are ignored
// with a warning; any other illegal move returns domain.ErrInvalidTransition.
func (r *LedgerRepository) Advance(ctx context.Context, itemID string, status domain.LedgerStatus, cause error) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, status)
	}

	entry, err := r.Get(ctx, itemID)
	if err != nil {
		return err
	}

	if entry.Status == domain.StatusDispatched {
		r.logger.Warn("ledger: ignoring transition of dispatched item", "item_id", itemID, "to", status)
		return nil
	}
	if !domain.CanTransition(entry.Status, status) {
		return fmt.Errorf("%w: %s -> %s for %s", domain.ErrInvalidTransition, entry.Status, status, itemID)
	}

	now := r.now()
	update := r.db.builder.Update(ledgerTable).
		Set("status", string(status)).
		Set("updated_at", toMillis(now)).
		Where(sq.Eq{"item_id": itemID, "status": string(entry.Status)})

	switch status {
	case domain.StatusEnriched:
		update = update.Set("attempts", sq.Expr("attempts + 1"))
	case domain.StatusFailed:
		msg := "unknown error"
		if cause != nil {
			msg = cause.Error()
		}
		exhausted := entry.Attempts >= r.maxAttempts || errors.Is(cause, domain.ErrPermanent)
		update = update.Set("last_error", msg).Set("exhausted", exhausted)
	case domain.StatusDispatched:
		update = update.Set("dispatched_at", toMillis(now)).Set("last_error", nil)
	}

	res, err := r.db.exec(ctx, update)
	if err != nil {
		return fmt.Errorf("advance %s: %w", itemID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("advance %s: entry changed concurrently", itemID)
	}

	return nil
}

// Get loads a single entry.
func (r *LedgerRepository) Get(ctx context.Context, itemID string) (domain.LedgerEntry, error) {
	rows, err := r.db.query(ctx, r.db.builder.Select(ledgerColumns...).From(ledgerTable).Where(sq.Eq{"item_id": itemID}))
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("get %s: %w", itemID, err)
	}

	entries, err := scanEntries(rows)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if len(entries) == 0 {
		return domain.LedgerEntry{}, fmt.Errorf("ledger entry %s: %w", itemID, domain.ErrNotFound)
	}
	return entries[0], nil
}

// Retryable lists non-exhausted entries below DISPATCHED fetched within window,
// oldest post first.
func (r *LedgerRepository) Retryable(ctx context.Context, window time.Duration) ([]domain.LedgerEntry, error) {
	cutoff := toMillis(r.now().Add(-window))

	rows, err := r.db.query(ctx, r.db.builder.Select(ledgerColumns...).
		From(ledgerTable).
		Where(sq.NotEq{"status": string(domain.StatusDispatched)}).
		Where(sq.Eq{"exhausted": false}).
		Where(sq.GtOrEq{"fetched_at": cutoff}).
		OrderBy("created_at ASC", "item_id ASC"))
	if err != nil {
		return nil, fmt.Errorf("query retryable: %w", err)
	}
	return scanEntries(rows)
}

// ExhaustStale marks entries that ran out of attempts or aged past window as
// permanently FAILED.
func (r *LedgerRepository) ExhaustStale(ctx context.Context, window time.Duration) (int64, error) {
	now := r.now()
	cutoff := toMillis(now.Add(-window))

	update := r.db.builder.Update(ledgerTable).
		Set("status", string(domain.StatusFailed)).
		Set("exhausted", true).
		Set("last_error", sq.Expr("COALESCE(last_error, ?)", retryBudgetMessage)).
		Set("updated_at", toMillis(now)).
		Where(sq.NotEq{"status": string(domain.StatusDispatched)}).
		Where(sq.Eq{"exhausted": false}).
		Where(sq.Or{
			sq.GtOrEq{"attempts": r.maxAttempts},
			sq.Lt{"fetched_at": cutoff},
		})

	res, err := r.db.exec(ctx, update)
	if err != nil {
		return 0, fmt.Errorf("exhaust stale: %w", err)
	}
	return res.RowsAffected()
}

// PruneOlderThan deletes terminal entries first seen before now-retention.
// Entries still eligible for retry are kept.
func (r *LedgerRepository) PruneOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := toMillis(r.now().Add(-retention))

	del := r.db.builder.Delete(ledgerTable).
		Where(sq.Lt{"fetched_at": cutoff}).
		Where(sq.Or{
			sq.Eq{"status": string(domain.StatusDispatched)},
			sq.Eq{"exhausted": true},
		})

	res, err := r.db.exec(ctx, del)
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	return res.RowsAffected()
}

// ListFailed returns FAILED entries, most recently updated first.
func (r *LedgerRepository) ListFailed(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	sel := r.db.builder.Select(ledgerColumns...).
		From(ledgerTable).
		Where(sq.Eq{"status": string(domain.StatusFailed)}).
		OrderBy("updated_at DESC", "item_id ASC")
	if limit > 0 {
		sel = sel.Limit(uint64(limit))
	}

	rows, err := r.db.query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return scanEntries(rows)
}

// Counts returns the number of entries per status.
func (r *LedgerRepository) Counts(ctx context.Context) (map[domain.LedgerStatus]int64, error) {
	rows, err := r.db.query(ctx, r.db.builder.Select("status", "COUNT(*)").From(ledgerTable).GroupBy("status"))
	if err != nil {
		return nil, fmt.Errorf("count ledger: %w", err)
	}
	defer rows.Close()

	result := make(map[domain.LedgerStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		result[domain.LedgerStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

func scanEntries(rows *sql.Rows) ([]domain.LedgerEntry, error) {
	var result []domain.LedgerEntry
	for rows.Next() {
		var (
			entry        domain.LedgerEntry
			status       string
			createdAt    int64
			fetchedAt    int64
			updatedAt    int64
			lastError    sql.NullString
			dispatchedAt sql.NullInt64
		)
		if err := rows.Scan(&entry.ItemID, &entry.Handle, &entry.Text, &entry.URL, &createdAt, &fetchedAt,
			&status, &entry.Attempts, &lastError, &entry.Exhausted, &updatedAt, &dispatchedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		entry.Status = domain.LedgerStatus(status)
		entry.CreatedAt = fromMillis(createdAt)
		entry.FetchedAt = fromMillis(fetchedAt)
		entry.UpdatedAt = fromMillis(updatedAt)
		entry.LastError = lastError.String
		if dispatchedAt.Valid {
			entry.DispatchedAt = fromMillis(dispatchedAt.Int64)
		}
		result = append(result, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}
