package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu    sync.Mutex
	creds map[string]Credential
}

func newFakeStore() *fakeStore {
	return &fakeStore{creds: make(map[string]Credential)}
}

func storeKey(accountID string, provider ProviderID, locationID string) string {
	return accountID + "|" + string(provider) + "|" + locationID
}

func (f *fakeStore) Get(_ context.Context, accountID string, provider ProviderID, locationID string) (Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cred, ok := f.creds[storeKey(accountID, provider, locationID)]
	if !ok || !cred.Active {
		return Credential{}, ErrNotConnected
	}
	return cred, nil
}

func (f *fakeStore) Upsert(_ context.Context, cred Credential) (Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cred.Active = true
	f.creds[storeKey(cred.AccountID, cred.ProviderID, cred.ExternalLocationID)] = cred
	return cred, nil
}

func (f *fakeStore) Deactivate(_ context.Context, accountID string, provider ProviderID, locationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := storeKey(accountID, provider, locationID)
	cred, ok := f.creds[key]
	if ok {
		cred.Active = false
		f.creds[key] = cred
	}
	return nil
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	grant Grant
	err   error
}

func (f *fakeRefresher) RefreshGrant(_ context.Context, _ string) (Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Grant{}, f.err
	}
	return f.grant, nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func seedCredential(t *testing.T, store *fakeStore, expiresAt time.Time) Credential {
	t.Helper()
	cred := Credential{
		AccountID:          "7c9a2f5e-0b0f-4a0a-9d7d-4f1a2b3c4d5e",
		ProviderID:         ProviderCRM,
		ExternalLocationID: "loc-1",
		AccessToken:        "stored-access",
		RefreshToken:       "stored-refresh",
		TokenType:          "Bearer",
		ExpiresAt:          expiresAt,
		Active:             true,
	}
	_, err := store.Upsert(context.Background(), cred)
	require.NoError(t, err)
	return cred
}

func TestValidAccessTokenFreshCredentialSkipsRefresh(t *testing.T) {
	store := newFakeStore()
	refresher := &fakeRefresher{}
	svc := NewService(slog.Default(), store)
	svc.RegisterRefresher(ProviderCRM, refresher)

	cred := seedCredential(t, store, time.Now().Add(time.Hour))

	token, err := svc.ValidAccessToken(context.Background(), cred.AccountID, ProviderCRM, cred.ExternalLocationID)
	require.NoError(t, err)
	assert.Equal(t, "stored-access", token)
	assert.Equal(t, 0, refresher.callCount(), "no network call while outside the buffer window")
}

func TestValidAccessTokenExpiringCredentialRefreshesOnce(t *testing.T) {
	store := newFakeStore()
	refresher := &fakeRefresher{grant: Grant{
		AccessToken:  "new-access",
		RefreshToken: "rotated-refresh",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour),
	}}
	svc := NewService(slog.Default(), store)
	svc.RegisterRefresher(ProviderCRM, refresher)

	cred := seedCredential(t, store, time.Now().Add(time.Minute))

	token, err := svc.ValidAccessToken(context.Background(), cred.AccountID, ProviderCRM, cred.ExternalLocationID)
	require.NoError(t, err)
	assert.Equal(t, "new-access", token)
	assert.Equal(t, 1, refresher.callCount())

	stored, err := store.Get(context.Background(), cred.AccountID, ProviderCRM, cred.ExternalLocationID)
	require.NoError(t, err)
	assert.Equal(t, "new-access", stored.AccessToken)
	assert.Equal(t, "rotated-refresh", stored.RefreshToken)
	assert.True(t, stored.ExpiresAt.After(time.Now().Add(30*time.Minute)))
}

func TestValidAccessTokenKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	store := newFakeStore()
	refresher := &fakeRefresher{grant: Grant{
		AccessToken: "new-access",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	svc := NewService(slog.Default(), store)
	svc.RegisterRefresher(ProviderCRM, refresher)

	cred := seedCredential(t, store, time.Now().Add(-time.Minute))

	_, err := svc.ValidAccessToken(context.Background(), cred.AccountID, ProviderCRM, cred.ExternalLocationID)
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), cred.AccountID, ProviderCRM, cred.ExternalLocationID)
	require.NoError(t, err)
	assert.Equal(t, "stored-refresh", stored.RefreshToken)
}

func TestValidAccessTokenRefreshFailureDeactivates(t *testing.T) {
	store := newFakeStore()
	refresher := &fakeRefresher{err: fmt.Errorf("invalid_grant")}
	svc := NewService(slog.Default(), store)
	svc.RegisterRefresher(ProviderCRM, refresher)

	cred := seedCredential(t, store, time.Now().Add(time.Minute))

	_, err := svc.ValidAccessToken(context.Background(), cred.AccountID, ProviderCRM, cred.ExternalLocationID)
	require.ErrorIs(t, err, ErrRefreshFailed)

	_, err = store.Get(context.Background(), cred.AccountID, ProviderCRM, cred.ExternalLocationID)
	assert.ErrorIs(t, err, ErrNotConnected, "credential must be deactivated after a failed refresh")
}

func TestValidAccessTokenNoCredential(t *testing.T) {
	svc := NewService(slog.Default(), newFakeStore())

	_, err := svc.ValidAccessToken(context.Background(), "7c9a2f5e-0b0f-4a0a-9d7d-4f1a2b3c4d5e", ProviderDocs, "")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestValidAccessTokenConcurrentCallersSingleRefresh(t *testing.T) {
	store := newFakeStore()
	refresher := &fakeRefresher{grant: Grant{
		AccessToken: "new-access",
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
	svc := NewService(slog.Default(), store)
	svc.RegisterRefresher(ProviderCRM, refresher)

	cred := seedCredential(t, store, time.Now().Add(time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := svc.ValidAccessToken(context.Background(), cred.AccountID, ProviderCRM, cred.ExternalLocationID)
			assert.NoError(t, err)
			assert.Equal(t, "new-access", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, refresher.callCount(), "owner lock plus re-read should collapse concurrent refreshes")
}
