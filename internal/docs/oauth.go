package docs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/chatbridge/chatbridge/internal/config"
	"github.com/chatbridge/chatbridge/internal/credentials"
)

// ErrNoRefreshToken means the provider issued an access token without a
// refresh token, usually because the user had already consented. The connect
// flow must force re-consent and try again.
var ErrNoRefreshToken = errors.New("provider returned no refresh token")

// UserInfo identifies the provider account a grant belongs to.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// OAuthClient handles the document provider's OAuth flow. The provider is a
// standards-compliant OAuth2 server, so the stock oauth2 machinery applies.
type OAuthClient struct {
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewOAuthClient(log *slog.Logger, cfg config.DocsConfig, redirectURI string, timeout time.Duration) *OAuthClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OAuthClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      log.With(slog.String("service", "docs_oauth")),
	}
}

// AuthorizationURL builds the consent URL. Offline access plus forced
// approval guarantees a refresh token even for repeat connections.
func (c *OAuthClient) AuthorizationURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a grant. A missing refresh token
// is an error here: without one the credential dies at first expiry.
func (c *OAuthClient) Exchange(ctx context.Context, code string) (credentials.Grant, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return credentials.Grant{}, wrapRetrieveError("exchange code", err)
	}
	if token.RefreshToken == "" {
		return credentials.Grant{}, ErrNoRefreshToken
	}
	return grantFromToken(token), nil
}

// RefreshGrant exchanges a refresh token for a fresh access token. The
// provider usually omits the refresh token on renewal; the stored one stays
// valid, so the returned grant leaves it empty in that case.
func (c *OAuthClient) RefreshGrant(ctx context.Context, refreshToken string) (credentials.Grant, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	source := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return credentials.Grant{}, wrapRetrieveError("refresh token", err)
	}
	grant := grantFromToken(token)
	if token.RefreshToken == refreshToken {
		grant.RefreshToken = ""
	}
	return grant, nil
}

// UserInfo fetches the provider identity behind an access token.
func (c *OAuthClient) UserInfo(ctx context.Context, accessToken string) (UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return UserInfo{}, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UserInfo{}, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return UserInfo{}, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, body)
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return UserInfo{}, fmt.Errorf("decode userinfo: %w", err)
	}
	return info, nil
}

func grantFromToken(token *oauth2.Token) credentials.Grant {
	return credentials.Grant{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    token.Expiry,
	}
}

func wrapRetrieveError(op string, err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		return fmt.Errorf("%s: provider returned %d: %s", op, rErr.Response.StatusCode, rErr.Body)
	}
	return fmt.Errorf("%s: %w", op, err)
}
