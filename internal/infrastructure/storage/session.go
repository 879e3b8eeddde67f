package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"SignalMonitor/internal/domain"
	"SignalMonitor/internal/ports"
)

const (
	sessionTable = "session"
	sessionRowID = 1
)

// SessionRepository stores the single process-wide session row.
type SessionRepository struct {
	db  *DB
	now func() time.Time
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository wires the session store over an open database.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Load returns the persisted session. The bool is false when none was saved.
func (r *SessionRepository) Load(ctx context.Context) (domain.Session, bool, error) {
	row, err := r.db.queryRow(ctx, r.db.builder.
		Select("credentials_json", "status", "last_validated").
		From(sessionTable).
		Where(sq.Eq{"id": sessionRowID}))
	if err != nil {
		return domain.Session{}, false, err
	}

	var (
		raw           string
		status        string
		lastValidated int64
	)
	if err := row.Scan(&raw, &status, &lastValidated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, fmt.Errorf("load session: %w", err)
	}

	session := domain.Session{
		Status:        domain.SessionStatus(status),
		LastValidated: fromMillis(lastValidated),
	}
	if err := json.Unmarshal([]byte(raw), &session.Credentials); err != nil {
		return domain.Session{}, false, fmt.Errorf("decode session credentials: %w", err)
	}

	return session, true, nil
}

// Save upserts the session row.
func (r *SessionRepository) Save(ctx context.Context, session domain.Session) error {
	raw, err := json.Marshal(session.Credentials)
	if err != nil {
		return fmt.Errorf("encode session credentials: %w", err)
	}

	upsert := r.db.builder.Insert(sessionTable).
		Columns("id", "credentials_json", "status", "last_validated", "updated_at").
		Values(sessionRowID, string(raw), string(session.Status), toMillis(session.LastValidated), toMillis(r.now())).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			credentials_json = EXCLUDED.credentials_json,
			status = EXCLUDED.status,
			last_validated = EXCLUDED.last_validated,
			updated_at = EXCLUDED.updated_at`)

	if _, err := r.db.exec(ctx, upsert); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
