package credentials

import (
	"context"
	"errors"
	"time"
)

// ProviderID identifies which external provider a credential belongs to.
type ProviderID string

const (
	ProviderCRM  ProviderID = "crm"
	ProviderDocs ProviderID = "docs"
)

// RefreshBuffer is the margin before expiry that triggers a proactive refresh.
const RefreshBuffer = 5 * time.Minute

var (
	// ErrNotConnected means no active credential is on file; the user must
	// go through the connect flow again.
	ErrNotConnected = errors.New("provider not connected")
	// ErrRefreshFailed means the provider rejected the refresh token; the
	// credential has been deactivated and the user must reconnect.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// Credential is one account's OAuth grant for one provider. For the CRM
// provider the external location id participates in the unique key because a
// single account may bridge several locations.
type Credential struct {
	ID                 string     `json:"id"`
	AccountID          string     `json:"account_id"`
	ProviderID         ProviderID `json:"provider_id"`
	ExternalLocationID string     `json:"external_location_id,omitempty"`
	AccessToken        string     `json:"-"`
	RefreshToken       string     `json:"-"`
	TokenType          string     `json:"token_type"`
	Scope              string     `json:"scope,omitempty"`
	UserType           string     `json:"user_type,omitempty"`
	ProviderEmail      string     `json:"provider_email,omitempty"`
	ExpiresAt          time.Time  `json:"expires_at"`
	Active             bool       `json:"active"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Grant is the normalized result of a provider token exchange or refresh.
type Grant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	UserType     string
	ExpiresAt    time.Time
}

// TokenRefresher performs the provider-specific refresh-token exchange.
// Implementations make a single HTTP call and never retry.
type TokenRefresher interface {
	RefreshGrant(ctx context.Context, refreshToken string) (Grant, error)
}
