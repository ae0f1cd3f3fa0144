package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/chatbridge/chatbridge/internal/db"
)

// ErrNotFound is returned when no account row matches the lookup.
var ErrNotFound = errors.New("account not found")

// Service reads and writes account rows.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "accounts")),
	}
}

const accountColumns = `id, username, COALESCE(email, ''), role, COALESCE(crm_location_id, ''), is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.Role, &a.CRMLocationID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// Get retrieves an account by id.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Account{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, pgID)
	return scanAccount(row)
}

// GetByUsername retrieves an active account by username.
func (s *Service) GetByUsername(ctx context.Context, username string) (Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1 AND is_active`, strings.TrimSpace(username))
	return scanAccount(row)
}

// GetByLocationID resolves the account owning a CRM location identifier.
// Webhook ingestion uses this to map inbound events to a tenant.
func (s *Service) GetByLocationID(ctx context.Context, locationID string) (Account, error) {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return Account{}, ErrNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE crm_location_id = $1 AND is_active`, locationID)
	return scanAccount(row)
}

// SetLocationID links an account to its CRM location after a successful connect.
func (s *Service) SetLocationID(ctx context.Context, accountID, locationID string) error {
	pgID, err := db.ParseUUID(accountID)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET crm_location_id = $1, updated_at = now() WHERE id = $2`,
		db.ToPgText(locationID), pgID)
	if err != nil {
		return fmt.Errorf("set crm location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Create inserts a new account with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, params CreateParams) (Account, error) {
	username := strings.TrimSpace(params.Username)
	if username == "" {
		return Account{}, fmt.Errorf("username is required")
	}
	if params.Password == "" {
		return Account{}, fmt.Errorf("password is required")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}
	role := params.Role
	if role == "" {
		role = "member"
	}

	var email pgtype.Text = db.ToPgText(params.Email)
	row := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (username, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING `+accountColumns,
		username, email, string(hashed), role)
	return scanAccount(row)
}

// Count returns the number of account rows.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return count, nil
}

// Authenticate verifies a username/password pair and returns the account.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Account, error) {
	var (
		account Account
		hash    string
	)
	row := s.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`, password_hash
		FROM accounts WHERE username = $1 AND is_active`, strings.TrimSpace(username))
	err := row.Scan(&account.ID, &account.Username, &account.Email, &account.Role,
		&account.CRMLocationID, &account.IsActive, &account.CreatedAt, &account.UpdatedAt, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Account{}, fmt.Errorf("invalid credentials")
	}
	return account, nil
}
