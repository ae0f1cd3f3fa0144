package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CredentialStore is the slice of Store the refresh engine needs.
type CredentialStore interface {
	Get(ctx context.Context, accountID string, provider ProviderID, locationID string) (Credential, error)
	Upsert(ctx context.Context, cred Credential) (Credential, error)
	Deactivate(ctx context.Context, accountID string, provider ProviderID, locationID string) error
}

// Service hands out currently-valid access tokens, refreshing transparently
// when a credential is within the expiry buffer.
type Service struct {
	store      CredentialStore
	refreshers map[ProviderID]TokenRefresher
	logger     *slog.Logger
	buffer     time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(log *slog.Logger, store CredentialStore) *Service {
	return &Service{
		store:      store,
		refreshers: make(map[ProviderID]TokenRefresher),
		logger:     log.With(slog.String("service", "credentials")),
		buffer:     RefreshBuffer,
		locks:      make(map[string]*sync.Mutex),
	}
}

// RegisterRefresher wires the token client for a provider.
func (s *Service) RegisterRefresher(provider ProviderID, refresher TokenRefresher) {
	s.refreshers[provider] = refresher
}

// ValidAccessToken returns an access token guaranteed to outlive the buffer
// window. No network call happens while more than the buffer remains. On
// refresh failure the credential is deactivated and ErrRefreshFailed returned.
func (s *Service) ValidAccessToken(ctx context.Context, accountID string, provider ProviderID, locationID string) (string, error) {
	cred, err := s.store.Get(ctx, accountID, provider, locationID)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return "", fmt.Errorf("%w: please reconnect %s", ErrNotConnected, provider)
		}
		return "", fmt.Errorf("load credential: %w", err)
	}

	if time.Until(cred.ExpiresAt) > s.buffer {
		return cred.AccessToken, nil
	}

	// Serialize refreshes per owner. Correctness does not depend on this
	// (upsert is atomic and a duplicate refresh overwrites harmlessly), but
	// it avoids burning single-use refresh tokens on concurrent callers.
	lock := s.ownerLock(accountID, provider, locationID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: a concurrent caller may have refreshed already.
	cred, err = s.store.Get(ctx, accountID, provider, locationID)
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	if time.Until(cred.ExpiresAt) > s.buffer {
		return cred.AccessToken, nil
	}

	return s.refresh(ctx, cred)
}

func (s *Service) refresh(ctx context.Context, cred Credential) (string, error) {
	refresher, ok := s.refreshers[cred.ProviderID]
	if !ok {
		return "", fmt.Errorf("no token client registered for provider %s", cred.ProviderID)
	}

	s.logger.Info("refreshing access token",
		slog.String("account_id", cred.AccountID),
		slog.String("provider", string(cred.ProviderID)))

	grant, err := refresher.RefreshGrant(ctx, cred.RefreshToken)
	if err != nil {
		s.logger.Warn("token refresh rejected, deactivating credential",
			slog.String("account_id", cred.AccountID),
			slog.String("provider", string(cred.ProviderID)),
			slog.Any("error", err))
		if dErr := s.store.Deactivate(ctx, cred.AccountID, cred.ProviderID, cred.ExternalLocationID); dErr != nil {
			s.logger.Error("deactivate credential failed", slog.Any("error", dErr))
		}
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	updated := cred
	updated.AccessToken = grant.AccessToken
	updated.ExpiresAt = grant.ExpiresAt
	if grant.RefreshToken != "" {
		updated.RefreshToken = grant.RefreshToken
	}
	if grant.TokenType != "" {
		updated.TokenType = grant.TokenType
	}
	if grant.Scope != "" {
		updated.Scope = grant.Scope
	}

	if _, err := s.store.Upsert(ctx, updated); err != nil {
		return "", fmt.Errorf("persist refreshed credential: %w", err)
	}
	return updated.AccessToken, nil
}

func (s *Service) ownerLock(accountID string, provider ProviderID, locationID string) *sync.Mutex {
	key := accountID + "|" + string(provider) + "|" + locationID
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
