package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalMonitor/internal/domain"
	"SignalMonitor/internal/logging"
)

var testCreds = domain.Credentials{Username: "operator", Password: "secret"}

func TestSessionStoreRenewsAndPersistsBeforeReturning(t *testing.T) {
	ctx := context.Background()
	repo := &memorySessionRepo{}
	auth := &fakeAuth{token: "t1"}
	store := NewSessionStore(repo, auth, testCreds, time.Hour, logging.Discard())

	session, err := store.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, session.Status)
	assert.Equal(t, "t1", session.Credentials["auth_token"])

	stored := repo.stored()
	assert.Equal(t, domain.SessionActive, stored.Status)
	assert.Equal(t, "t1", stored.Credentials["auth_token"])

	_, err = store.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, auth.calls.Load())
}

func TestSessionStoreRenewsStaleSession(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := &memorySessionRepo{session: &domain.Session{
		Credentials:   map[string]string{"auth_token": "old"},
		Status:        domain.SessionActive,
		LastValidated: now.Add(-13 * time.Hour),
	}}
	auth := &fakeAuth{token: "new"}
	store := NewSessionStore(repo, auth, testCreds, 0, logging.Discard())
	store.now = func() time.Time { return now }

	session, err := store.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", session.Credentials["auth_token"])
	assert.Equal(t, now, session.LastValidated)
}

func TestSessionStoreSingleRenewalUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	repo := &memorySessionRepo{session: &domain.Session{
		Credentials:   map[string]string{"auth_token": "old"},
		Status:        domain.SessionActive,
		LastValidated: time.Now(),
	}}
	auth := &fakeAuth{delay: 20 * time.Millisecond}
	store := NewSessionStore(repo, auth, testCreds, time.Hour, logging.Discard())

	store.Invalidate(ctx, "forced expiry")
	assert.Equal(t, domain.SessionExpired, repo.stored().Status)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := store.GetActiveSession(ctx)
			assert.NoError(t, err)
			assert.Equal(t, "fresh", session.Credentials["auth_token"])
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, auth.calls.Load())
}

func TestSessionStoreChallengeFailsFastUntilResolved(t *testing.T) {
	ctx := context.Background()
	repo := &memorySessionRepo{}
	auth := &fakeAuth{err: fmt.Errorf("verification prompt: %w", domain.ErrChallengeRequired)}
	store := NewSessionStore(repo, auth, testCreds, time.Hour, logging.Discard())

	_, err := store.GetActiveSession(ctx)
	require.ErrorIs(t, err, domain.ErrChallengeRequired)
	assert.Equal(t, domain.SessionChallengeRequired, repo.stored().Status)

	_, err = store.GetActiveSession(ctx)
	require.ErrorIs(t, err, domain.ErrChallengeRequired)
	assert.EqualValues(t, 1, auth.calls.Load())

	store.Invalidate(ctx, "should not clear challenge")
	assert.Equal(t, domain.SessionChallengeRequired, repo.stored().Status)

	require.NoError(t, store.ResolveChallenge(ctx))
	auth.err = nil

	session, err := store.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, session.Status)
	assert.EqualValues(t, 2, auth.calls.Load())
}

func TestSessionStoreRejectedCredentials(t *testing.T) {
	ctx := context.Background()
	repo := &memorySessionRepo{}
	auth := &fakeAuth{err: fmt.Errorf("wrong password: %w", domain.ErrAuth)}
	store := NewSessionStore(repo, auth, testCreds, time.Hour, logging.Discard())

	_, err := store.GetActiveSession(ctx)
	require.ErrorIs(t, err, domain.ErrAuthRequired)
	assert.Equal(t, domain.SessionUnauthenticated, repo.stored().Status)
}

func TestSessionStoreWithoutCredentials(t *testing.T) {
	auth := &fakeAuth{}
	store := NewSessionStore(&memorySessionRepo{}, auth, domain.Credentials{}, time.Hour, logging.Discard())

	_, err := store.GetActiveSession(context.Background())
	require.ErrorIs(t, err, domain.ErrAuthRequired)
	assert.Zero(t, auth.calls.Load())
}

func TestSessionStoreTransientLoginKeepsState(t *testing.T) {
	ctx := context.Background()
	repo := &memorySessionRepo{}
	auth := &fakeAuth{err: fmt.Errorf("timeout: %w", domain.ErrTransient)}
	store := NewSessionStore(repo, auth, testCreds, time.Hour, logging.Discard())

	_, err := store.GetActiveSession(ctx)
	require.ErrorIs(t, err, domain.ErrTransient)

	status, err := store.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionUnauthenticated, status.Status)
}

func TestSessionStoreTouchAndPersist(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := &memorySessionRepo{}
	store := NewSessionStore(repo, &fakeAuth{}, testCreds, time.Hour, logging.Discard())
	store.now = func() time.Time { return now }

	require.NoError(t, store.Persist(ctx, domain.Session{
		Credentials:   map[string]string{"auth_token": "imported"},
		Status:        domain.SessionActive,
		LastValidated: now.Add(-30 * time.Minute),
	}))

	store.Touch(ctx)
	assert.Equal(t, now, repo.stored().LastValidated)
}
