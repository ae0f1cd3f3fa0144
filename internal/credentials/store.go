package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatbridge/chatbridge/internal/db"
)

// Store persists OAuth credentials. Upsert is a single atomic statement so
// concurrent refreshes for the same owner cannot interleave a read-then-write.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "credential_store")),
	}
}

const credentialColumns = `id, account_id, provider_id, external_location_id, access_token,
	refresh_token, token_type, scope, user_type, provider_email, expires_at, is_active,
	created_at, updated_at`

func scanCredential(row pgx.Row) (Credential, error) {
	var c Credential
	err := row.Scan(&c.ID, &c.AccountID, &c.ProviderID, &c.ExternalLocationID, &c.AccessToken,
		&c.RefreshToken, &c.TokenType, &c.Scope, &c.UserType, &c.ProviderEmail, &c.ExpiresAt,
		&c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, ErrNotConnected
	}
	if err != nil {
		return Credential{}, err
	}
	return c, nil
}

// Get returns the active credential for (account, provider, location).
// Deactivated credentials are invisible here; they remain as audit history.
func (s *Store) Get(ctx context.Context, accountID string, provider ProviderID, locationID string) (Credential, error) {
	pgAccountID, err := db.ParseUUID(accountID)
	if err != nil {
		return Credential{}, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+credentialColumns+`
		FROM oauth_credentials
		WHERE account_id = $1 AND provider_id = $2 AND external_location_id = $3 AND is_active`,
		pgAccountID, string(provider), locationID)
	return scanCredential(row)
}

// Upsert atomically inserts or replaces the credential keyed by
// (account, provider, location), reactivating a previously deactivated row.
func (s *Store) Upsert(ctx context.Context, cred Credential) (Credential, error) {
	pgAccountID, err := db.ParseUUID(cred.AccountID)
	if err != nil {
		return Credential{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO oauth_credentials (
			account_id, provider_id, external_location_id, access_token, refresh_token,
			token_type, scope, user_type, provider_email, expires_at, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)
		ON CONFLICT (account_id, provider_id, external_location_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			user_type = EXCLUDED.user_type,
			provider_email = EXCLUDED.provider_email,
			expires_at = EXCLUDED.expires_at,
			is_active = TRUE,
			updated_at = now()
		RETURNING `+credentialColumns,
		pgAccountID, string(cred.ProviderID), cred.ExternalLocationID, cred.AccessToken,
		cred.RefreshToken, cred.TokenType, cred.Scope, cred.UserType, cred.ProviderEmail,
		cred.ExpiresAt)
	stored, err := scanCredential(row)
	if err != nil {
		return Credential{}, fmt.Errorf("upsert credential: %w", err)
	}
	return stored, nil
}

// Deactivate marks the credential inactive, preserving the row for audit.
func (s *Store) Deactivate(ctx context.Context, accountID string, provider ProviderID, locationID string) error {
	pgAccountID, err := db.ParseUUID(accountID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE oauth_credentials
		SET is_active = FALSE, updated_at = now()
		WHERE account_id = $1 AND provider_id = $2 AND external_location_id = $3`,
		pgAccountID, string(provider), locationID)
	if err != nil {
		return fmt.Errorf("deactivate credential: %w", err)
	}
	return nil
}
