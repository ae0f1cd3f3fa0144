package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chatbridge/chatbridge/internal/config"
	"github.com/chatbridge/chatbridge/internal/credentials"
)

// ProviderError carries the provider's HTTP status and raw error body so
// operators can diagnose rejections. Handlers must not leak Body to
// unauthenticated callers; it belongs in logs.
type ProviderError struct {
	Op     string
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: provider returned %d: %s", e.Op, e.Status, e.Body)
}

// TokenResponse is the CRM token endpoint's response shape. Beyond the
// standard OAuth fields it reports the grant's user type and which location
// or company the grant is scoped to.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	UserType     string `json:"userType"`
	LocationID   string `json:"locationId"`
	CompanyID    string `json:"companyId"`
}

// ExternalID returns the location id the grant is bound to, falling back to
// the company id for company-level grants.
func (r TokenResponse) ExternalID() string {
	if r.LocationID != "" {
		return r.LocationID
	}
	return r.CompanyID
}

// LocationTokenResponse is the company-to-location token grant response.
type LocationTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	LocationID  string `json:"locationId"`
}

// TokenClient performs the CRM provider's OAuth exchanges. Each call is a
// single form-encoded POST with a bounded timeout and no retries; retry
// policy belongs to callers.
type TokenClient struct {
	cfg         config.CRMConfig
	redirectURI string
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewTokenClient(log *slog.Logger, cfg config.CRMConfig, redirectURI string, timeout time.Duration) *TokenClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TokenClient{
		cfg:         cfg,
		redirectURI: redirectURI,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      log.With(slog.String("service", "crm_oauth")),
	}
}

// AuthorizationURL builds the marketplace authorization URL the user is sent
// to at the start of the connect flow.
func (c *TokenClient) AuthorizationURL(state string) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {c.cfg.ClientID},
		"redirect_uri":  {c.redirectURI},
		"scope":         {strings.Join(c.cfg.Scopes, " ")},
	}
	if state != "" {
		params.Set("state", state)
	}
	return c.cfg.AuthURL + "?" + params.Encode()
}

// ExchangeCode trades an authorization code for tokens.
func (c *TokenClient) ExchangeCode(ctx context.Context, code string) (TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"redirect_uri":  {c.redirectURI},
	}
	return c.tokenPost(ctx, "exchange code", form)
}

// Refresh trades a refresh token for a new access token.
func (c *TokenClient) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}
	return c.tokenPost(ctx, "refresh token", form)
}

// RefreshGrant adapts Refresh to the credential engine's refresher contract.
func (c *TokenClient) RefreshGrant(ctx context.Context, refreshToken string) (credentials.Grant, error) {
	resp, err := c.Refresh(ctx, refreshToken)
	if err != nil {
		return credentials.Grant{}, err
	}
	return credentials.Grant{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		Scope:        resp.Scope,
		UserType:     resp.UserType,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

// LocationToken derives a location-scoped token from a company-level grant.
func (c *TokenClient) LocationToken(ctx context.Context, companyToken, companyID, locationID string) (LocationTokenResponse, error) {
	form := url.Values{
		"companyId":  {companyID},
		"locationId": {locationID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LocationTokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return LocationTokenResponse{}, fmt.Errorf("build location token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+companyToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return LocationTokenResponse{}, fmt.Errorf("location token request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return LocationTokenResponse{}, &ProviderError{Op: "location token", Status: resp.StatusCode, Body: string(body)}
	}

	var out LocationTokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return LocationTokenResponse{}, fmt.Errorf("decode location token response: %w", err)
	}
	return out, nil
}

func (c *TokenClient) tokenPost(ctx context.Context, op string, form url.Values) (TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TokenResponse{}, &ProviderError{Op: op, Status: resp.StatusCode, Body: string(body)}
	}

	var out TokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return TokenResponse{}, fmt.Errorf("decode %s response: %w", op, err)
	}
	return out, nil
}
