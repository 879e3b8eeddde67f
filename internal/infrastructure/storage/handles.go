package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"SignalMonitor/internal/domain"
	"SignalMonitor/internal/ports"
)

const handlesTable = "tracked_handles"

// HandleRepository is the durable set of monitored handles.
type HandleRepository struct {
	db  *DB
	now func() time.Time
}

var _ ports.HandleRegistry = (*HandleRepository)(nil)

// NewHandleRepository wires the registry over an open database.
func NewHandleRepository(db *DB) *HandleRepository {
	return &HandleRepository{db: db, now: time.Now}
}

// Add normalises and stores a handle. Adding an existing handle returns
// domain.ErrAlreadyExists and leaves the stored record unchanged.
func (r *HandleRepository) Add(ctx context.Context, raw string) (domain.TrackedHandle, error) {
	handle, err := domain.NormalizeHandle(raw)
	if err != nil {
		return domain.TrackedHandle{}, err
	}

	tracked := domain.TrackedHandle{Handle: handle, CreatedAt: r.now().UTC()}
	insert := r.db.builder.Insert(handlesTable).
		Columns("handle", "created_at").
		Values(tracked.Handle, toMillis(tracked.CreatedAt)).
		Suffix("ON CONFLICT (handle) DO NOTHING")

	res, err := r.db.exec(ctx, insert)
	if err != nil {
		return domain.TrackedHandle{}, fmt.Errorf("add handle %s: %w", handle, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.TrackedHandle{}, fmt.Errorf("add handle rows: %w", err)
	}
	if affected == 0 {
		return domain.TrackedHandle{}, fmt.Errorf("handle %s: %w", handle, domain.ErrAlreadyExists)
	}

	return tracked, nil
}

// Remove deletes a handle, returning domain.ErrNotFound when it is not tracked.
func (r *HandleRepository) Remove(ctx context.Context, raw string) error {
	handle, err := domain.NormalizeHandle(raw)
	if err != nil {
		return err
	}

	res, err := r.db.exec(ctx, r.db.builder.Delete(handlesTable).Where(sq.Eq{"handle": handle}))
	if err != nil {
		return fmt.Errorf("remove handle %s: %w", handle, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove handle rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("handle %s: %w", handle, domain.ErrNotFound)
	}
	return nil
}

// List returns all tracked handles ordered by name.
func (r *HandleRepository) List(ctx context.Context) ([]domain.TrackedHandle, error) {
	rows, err := r.db.query(ctx, r.db.builder.Select("handle", "created_at").From(handlesTable).OrderBy("handle ASC"))
	if err != nil {
		return nil, fmt.Errorf("list handles: %w", err)
	}
	defer rows.Close()

	result := []domain.TrackedHandle{}
	for rows.Next() {
		var (
			tracked   domain.TrackedHandle
			createdAt int64
		)
		if err := rows.Scan(&tracked.Handle, &createdAt); err != nil {
			return nil, fmt.Errorf("scan handle: %w", err)
		}
		tracked.CreatedAt = fromMillis(createdAt)
		result = append(result, tracked)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return result, nil
}

// Contains reports whether the normalised handle is tracked.
func (r *HandleRepository) Contains(ctx context.Context, raw string) (bool, error) {
	handle, err := domain.NormalizeHandle(raw)
	if err != nil {
		return false, err
	}

	row, err := r.db.queryRow(ctx, r.db.builder.Select("COUNT(*)").From(handlesTable).Where(sq.Eq{"handle": handle}))
	if err != nil {
		return false, err
	}

	var n int
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("contains %s: %w", handle, err)
	}
	return n > 0, nil
}
