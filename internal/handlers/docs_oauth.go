package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chatbridge/chatbridge/internal/auth"
	"github.com/chatbridge/chatbridge/internal/config"
	"github.com/chatbridge/chatbridge/internal/credentials"
	"github.com/chatbridge/chatbridge/internal/docs"
)

// Docs callback error codes surfaced to the knowledge page.
const (
	docsErrMissingParameters   = "missing_parameters"
	docsErrInvalidState        = "invalid_state"
	docsErrExpiredState        = "expired_state"
	docsErrNoRefreshToken      = "no_refresh_token"
	docsErrTokenExchangeFailed = "token_exchange_failed"
	docsErrCallbackFailed      = "callback_failed"
)

type DocsOAuthHandler struct {
	oauth       *docs.OAuthClient
	credentials *credentials.Store
	app         config.AppConfig
	cfg         config.DocsConfig
	logger      *slog.Logger
}

func NewDocsOAuthHandler(log *slog.Logger, oauth *docs.OAuthClient, creds *credentials.Store, app config.AppConfig, cfg config.DocsConfig) *DocsOAuthHandler {
	return &DocsOAuthHandler{
		oauth:       oauth,
		credentials: creds,
		app:         app,
		cfg:         cfg,
		logger:      log.With(slog.String("service", "docs_oauth_handler")),
	}
}

func (h *DocsOAuthHandler) Register(e *echo.Echo) {
	e.GET("/oauth/docs/authorize", h.Authorize)
	e.GET("/oauth/docs/callback", h.Callback)
	e.GET("/oauth/docs/status", h.Status)
	e.DELETE("/oauth/docs/disconnect", h.Disconnect)
}

// Authorize godoc
// @Summary Start the docs connect flow
// @Tags oauth
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} ErrorResponse
// @Router /oauth/docs/authorize [get]
func (h *DocsOAuthHandler) Authorize(c echo.Context) error {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return err
	}
	if !h.cfg.Configured() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "docs integration is not configured")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"authUrl": h.oauth.AuthorizationURL(encodeState(accountID)),
	})
}

// Callback godoc
// @Summary Docs OAuth redirect target
// @Description Exchanges the authorization code and stores the credential. Always redirects back to the knowledge page with a result code.
// @Tags oauth
// @Param code query string false "Authorization code"
// @Param state query string false "Opaque state from authorize"
// @Success 302
// @Router /oauth/docs/callback [get]
func (h *DocsOAuthHandler) Callback(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return h.redirectError(c, docsErrMissingParameters)
	}

	accountID, err := decodeState(state)
	if err != nil {
		if errors.Is(err, errExpiredState) {
			return h.redirectError(c, docsErrExpiredState)
		}
		return h.redirectError(c, docsErrInvalidState)
	}

	ctx := c.Request().Context()
	grant, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, docs.ErrNoRefreshToken) {
			return h.redirectError(c, docsErrNoRefreshToken)
		}
		h.logger.Error("docs code exchange failed",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return h.redirectError(c, docsErrTokenExchangeFailed)
	}

	var email string
	if info, err := h.oauth.UserInfo(ctx, grant.AccessToken); err == nil {
		email = info.Email
	} else {
		h.logger.Warn("docs userinfo lookup failed", slog.Any("error", err))
	}

	_, err = h.credentials.Upsert(ctx, credentials.Credential{
		AccountID:     accountID,
		ProviderID:    credentials.ProviderDocs,
		AccessToken:   grant.AccessToken,
		RefreshToken:  grant.RefreshToken,
		TokenType:     grant.TokenType,
		Scope:         grant.Scope,
		ProviderEmail: email,
		ExpiresAt:     grant.ExpiresAt,
	})
	if err != nil {
		h.logger.Error("store docs credential failed",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return h.redirectError(c, docsErrCallbackFailed)
	}

	h.logger.Info("docs connected",
		slog.String("account_id", accountID),
		slog.String("provider_email", email))
	return h.redirect(c, url.Values{"google_connected": {"true"}})
}

type DocsStatusResponse struct {
	Connected bool      `json:"connected"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Status godoc
// @Summary Docs connection status
// @Tags oauth
// @Produce json
// @Success 200 {object} DocsStatusResponse
// @Router /oauth/docs/status [get]
func (h *DocsOAuthHandler) Status(c echo.Context) error {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return err
	}
	cred, err := h.credentials.Get(c.Request().Context(), accountID, credentials.ProviderDocs, "")
	if err != nil {
		if errors.Is(err, credentials.ErrNotConnected) {
			return c.JSON(http.StatusOK, DocsStatusResponse{Connected: false})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, DocsStatusResponse{
		Connected: true,
		Email:     cred.ProviderEmail,
		ExpiresAt: cred.ExpiresAt,
	})
}

// Disconnect godoc
// @Summary Disconnect the docs integration
// @Tags oauth
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /oauth/docs/disconnect [delete]
func (h *DocsOAuthHandler) Disconnect(c echo.Context) error {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return err
	}
	if err := h.credentials.Deactivate(c.Request().Context(), accountID, credentials.ProviderDocs, ""); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"disconnected": true})
}

func (h *DocsOAuthHandler) redirectError(c echo.Context, code string) error {
	return h.redirect(c, url.Values{"google_error": {code}})
}

func (h *DocsOAuthHandler) redirect(c echo.Context, params url.Values) error {
	return c.Redirect(http.StatusFound, h.app.RedirectURL(h.app.KnowledgePath)+"?"+params.Encode())
}
