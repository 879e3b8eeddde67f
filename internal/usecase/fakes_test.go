package usecase

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"SignalMonitor/internal/domain"
	"SignalMonitor/internal/infrastructure/storage"
	"SignalMonitor/internal/logging"
	"SignalMonitor/internal/ports"
)

type memorySessionRepo struct {
	mu      sync.Mutex
	session *domain.Session
	saves   int
}

func (r *memorySessionRepo) Load(context.Context) (domain.Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return domain.Session{}, false, nil
	}
	return r.session.Clone(), true, nil
}

func (r *memorySessionRepo) Save(_ context.Context, s domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := s.Clone()
	r.session = &c
	r.saves++
	return nil
}

func (r *memorySessionRepo) stored() domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return domain.Session{}
	}
	return r.session.Clone()
}

type fakeAuth struct {
	calls atomic.Int32
	delay time.Duration
	token string
	err   error
}

func (a *fakeAuth) Authenticate(context.Context, domain.Credentials) (domain.Session, error) {
	a.calls.Add(1)
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if a.err != nil {
		return domain.Session{}, a.err
	}
	token := a.token
	if token == "" {
		token = "fresh"
	}
	return domain.Session{Credentials: map[string]string{"auth_token": token}}, nil
}

type fakeSource struct {
	calls atomic.Int32
	fetch func(ctx context.Context, session domain.Session) ([]domain.RawItem, error)
}

func (s *fakeSource) FetchTimeline(ctx context.Context, session domain.Session) ([]domain.RawItem, error) {
	s.calls.Add(1)
	return s.fetch(ctx, session)
}

type enricherFunc func(ctx context.Context, text string) (domain.EnrichedSignal, error)

func (f enricherFunc) Summarize(ctx context.Context, text string) (domain.EnrichedSignal, error) {
	return f(ctx, text)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	fail     func(message string) error
}

func (n *recordingNotifier) Send(_ context.Context, message string) error {
	if n.fail != nil {
		if err := n.fail(message); err != nil {
			return err
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type harness struct {
	ledger   *storage.LedgerRepository
	registry *storage.HandleRepository
	repo     *memorySessionRepo
	auth     *fakeAuth
	source   *fakeSource
	notifier *recordingNotifier
	sessions *SessionStore
	pipeline *Pipeline
}

func newHarness(t *testing.T, items []domain.RawItem, enricher enricherFunc, handles ...string) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, storage.DriverSQLite, filepath.Join(t.TempDir(), "usecase.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		ledger:   storage.NewLedgerRepository(db, 3, logging.Discard()),
		registry: storage.NewHandleRepository(db),
		repo: &memorySessionRepo{session: &domain.Session{
			Credentials:   map[string]string{"auth_token": "valid"},
			Status:        domain.SessionActive,
			LastValidated: time.Now(),
		}},
		auth:     &fakeAuth{},
		notifier: &recordingNotifier{},
	}
	h.source = &fakeSource{fetch: func(context.Context, domain.Session) ([]domain.RawItem, error) {
		return items, nil
	}}

	for _, handle := range handles {
		_, err := h.registry.Add(ctx, handle)
		require.NoError(t, err)
	}

	creds := domain.Credentials{Username: "operator", Password: "secret"}
	h.sessions = NewSessionStore(h.repo, h.auth, creds, time.Hour, logging.Discard())

	var enr ports.Enricher
	if enricher != nil {
		enr = enricher
	}
	h.pipeline = NewPipeline(PipelineDeps{
		Sessions: h.sessions,
		Source:   h.source,
		Ledger:   h.ledger,
		Registry: h.registry,
		Enricher: enr,
		Notifier: h.notifier,
		Logger:   logging.Discard(),
	}, PipelineOptions{
		Workers:       2,
		RetryWindow:   time.Hour,
		ItemTimeout:   5 * time.Second,
		EnrichRetries: 1,
		SendRetries:   1,
		Backoff:       time.Millisecond,
	})

	return h
}

func post(id, handle, text string, created time.Time) domain.RawItem {
	return domain.RawItem{
		ID:        id,
		Handle:    handle,
		CreatedAt: created,
		Text:      text,
		URL:       "https://x.com/" + handle + "/status/" + id,
	}
}

func okEnricher(context.Context, string) (domain.EnrichedSignal, error) {
	return domain.EnrichedSignal{
		Bullets:    []string{"summary"},
		Tickers:    []string{"$nvda"},
		Action:     domain.ActionBuy,
		Horizon:    domain.HorizonDays,
		Confidence: domain.ConfidenceHigh,
	}, nil
}
