package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"SignalMonitor/internal/domain"
	"SignalMonitor/internal/ports"
)

const defaultFreshness = 12 * time.Hour

// SessionStore owns the single source session. Renewal is serialised so that
// concurrent callers observing an expired session trigger one login.
type SessionStore struct {
	repo      ports.SessionRepository
	auth      ports.Authenticator
	creds     domain.Credentials
	freshness time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	loaded  bool
	current domain.Session
}

// NewSessionStore wires the store. A zero freshness falls back to 12h.
func NewSessionStore(repo ports.SessionRepository, auth ports.Authenticator, creds domain.Credentials, freshness time.Duration, logger *slog.Logger) *SessionStore {
	if freshness <= 0 {
		freshness = defaultFreshness
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		repo:      repo,
		auth:      auth,
		creds:     creds,
		freshness: freshness,
		logger:    logger,
		now:       time.Now,
	}
}

// GetActiveSession returns a usable session, logging in again when the current
// one is missing, expired or stale. A pending challenge fails fast with
// domain.ErrChallengeRequired until ResolveChallenge is called.
func (s *SessionStore) GetActiveSession(ctx context.Context) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		return domain.Session{}, err
	}

	if s.current.Usable(s.now(), s.freshness) {
		return s.current.Clone(), nil
	}

	if s.current.Status == domain.SessionChallengeRequired {
		return domain.Session{}, fmt.Errorf("session blocked: %w", domain.ErrChallengeRequired)
	}

	return s.renewLocked(ctx)
}

// Login forces a fresh login regardless of the current session state.
func (s *SessionStore) Login(ctx context.Context) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		return domain.Session{}, err
	}
	return s.renewLocked(ctx)
}

// Invalidate marks the session expired after the source rejected it. Persisting
// the new state is best effort.
func (s *SessionStore) Invalidate(ctx context.Context, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		s.logger.Error("invalidate session", "error", err)
		return
	}
	if s.current.Status == domain.SessionChallengeRequired {
		return
	}

	s.current.Status = domain.SessionExpired
	s.logger.Info("session invalidated", "reason", reason)

	if err := s.repo.Save(ctx, s.current); err != nil {
		s.logger.Error("persist invalidated session", "error", err)
	}
}

// Touch records that the session was just accepted by the source.
func (s *SessionStore) Touch(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Status != domain.SessionActive {
		return
	}
	s.current.LastValidated = s.now()

	if err := s.repo.Save(ctx, s.current); err != nil {
		s.logger.Warn("persist session touch", "error", err)
	}
}

// Persist stores an externally obtained session and makes it current.
func (s *SessionStore) Persist(ctx context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Save(ctx, session); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	s.current = session.Clone()
	s.loaded = true
	return nil
}

// ResolveChallenge clears a pending challenge so the next request logs in again.
func (s *SessionStore) ResolveChallenge(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		return err
	}
	if s.current.Status != domain.SessionChallengeRequired {
		return nil
	}

	s.current.Status = domain.SessionUnauthenticated
	if err := s.repo.Save(ctx, s.current); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	s.logger.Info("session challenge resolved by operator")
	return nil
}

// Status returns a snapshot of the current session.
func (s *SessionStore) Status(ctx context.Context) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		return domain.Session{}, err
	}
	return s.current.Clone(), nil
}

func (s *SessionStore) loadLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	session, found, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if found {
		s.current = session
	} else {
		s.current = domain.Session{Status: domain.SessionUnauthenticated}
	}
	s.loaded = true
	return nil
}

func (s *SessionStore) renewLocked(ctx context.Context) (domain.Session, error) {
	if s.creds.Username == "" || s.creds.Password == "" {
		return domain.Session{}, fmt.Errorf("no source credentials configured: %w", domain.ErrAuthRequired)
	}

	s.logger.Info("renewing source session", "username", s.creds.Username)

	session, err := s.auth.Authenticate(ctx, s.creds)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrChallengeRequired):
			s.current.Status = domain.SessionChallengeRequired
			s.saveBestEffort(ctx)
			s.logger.Error("source login requires an interactive challenge; resolve it and run session resolve")
			return domain.Session{}, fmt.Errorf("session renewal: %w", err)
		case errors.Is(err, domain.ErrAuth), errors.Is(err, domain.ErrAuthRequired):
			s.current.Status = domain.SessionUnauthenticated
			s.saveBestEffort(ctx)
			return domain.Session{}, fmt.Errorf("%w: %v", domain.ErrAuthRequired, err)
		default:
			return domain.Session{}, fmt.Errorf("session renewal: %w", err)
		}
	}

	session.Status = domain.SessionActive
	if session.LastValidated.IsZero() {
		session.LastValidated = s.now()
	}

	if err := s.repo.Save(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("persist session: %w", err)
	}

	s.current = session.Clone()
	s.logger.Info("source session renewed", "cookies", len(session.Credentials))
	return session, nil
}

func (s *SessionStore) saveBestEffort(ctx context.Context) {
	if err := s.repo.Save(ctx, s.current); err != nil {
		s.logger.Error("persist session state", "status", s.current.Status, "error", err)
	}
}
