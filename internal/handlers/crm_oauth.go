package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chatbridge/chatbridge/internal/accounts"
	"github.com/chatbridge/chatbridge/internal/auth"
	"github.com/chatbridge/chatbridge/internal/config"
	"github.com/chatbridge/chatbridge/internal/credentials"
	"github.com/chatbridge/chatbridge/internal/crm"
)

// CRM callback error codes surfaced to the settings page.
const (
	crmErrMissingParameters   = "missing_parameters"
	crmErrInvalidState        = "invalid_state"
	crmErrExpiredState        = "expired_state"
	crmErrNoLocationID        = "no_location_id"
	crmErrTokenExchangeFailed = "token_exchange_failed"
	crmErrCallbackFailed      = "callback_failed"
)

type CRMOAuthHandler struct {
	tokens      *crm.TokenClient
	credentials *credentials.Store
	accounts    *accounts.Service
	app         config.AppConfig
	cfg         config.CRMConfig
	logger      *slog.Logger
}

func NewCRMOAuthHandler(log *slog.Logger, tokens *crm.TokenClient, creds *credentials.Store, accounts *accounts.Service, app config.AppConfig, cfg config.CRMConfig) *CRMOAuthHandler {
	return &CRMOAuthHandler{
		tokens:      tokens,
		credentials: creds,
		accounts:    accounts,
		app:         app,
		cfg:         cfg,
		logger:      log.With(slog.String("service", "crm_oauth_handler")),
	}
}

func (h *CRMOAuthHandler) Register(e *echo.Echo) {
	e.GET("/oauth/crm/authorize", h.Authorize)
	e.GET("/oauth/crm/callback", h.Callback)
	e.DELETE("/oauth/crm/disconnect", h.Disconnect)
}

// Authorize godoc
// @Summary Start the CRM connect flow
// @Tags oauth
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} ErrorResponse
// @Router /oauth/crm/authorize [get]
func (h *CRMOAuthHandler) Authorize(c echo.Context) error {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return err
	}
	if !h.cfg.Configured() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "crm integration is not configured")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"authUrl": h.tokens.AuthorizationURL(encodeState(accountID)),
	})
}

// Callback godoc
// @Summary CRM OAuth redirect target
// @Description Exchanges the authorization code and stores the credential. Always redirects back to the settings page with a result code.
// @Tags oauth
// @Param code query string false "Authorization code"
// @Param state query string false "Opaque state from authorize"
// @Success 302
// @Router /oauth/crm/callback [get]
func (h *CRMOAuthHandler) Callback(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return h.redirectError(c, crmErrMissingParameters)
	}

	accountID, err := decodeState(state)
	if err != nil {
		if errors.Is(err, errExpiredState) {
			return h.redirectError(c, crmErrExpiredState)
		}
		return h.redirectError(c, crmErrInvalidState)
	}

	ctx := c.Request().Context()
	token, err := h.tokens.ExchangeCode(ctx, code)
	if err != nil {
		h.logger.Error("crm code exchange failed",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return h.redirectError(c, crmErrTokenExchangeFailed)
	}

	locationID := token.ExternalID()
	if locationID == "" {
		return h.redirectError(c, crmErrNoLocationID)
	}

	_, err = h.credentials.Upsert(ctx, credentials.Credential{
		AccountID:          accountID,
		ProviderID:         credentials.ProviderCRM,
		ExternalLocationID: locationID,
		AccessToken:        token.AccessToken,
		RefreshToken:       token.RefreshToken,
		TokenType:          token.TokenType,
		Scope:              token.Scope,
		UserType:           token.UserType,
		ExpiresAt:          time.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
	})
	if err != nil {
		h.logger.Error("store crm credential failed",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return h.redirectError(c, crmErrCallbackFailed)
	}

	if err := h.accounts.SetLocationID(ctx, accountID, locationID); err != nil {
		h.logger.Error("bind crm location failed",
			slog.String("account_id", accountID),
			slog.String("location_id", locationID),
			slog.Any("error", err))
		return h.redirectError(c, crmErrCallbackFailed)
	}

	h.logger.Info("crm connected",
		slog.String("account_id", accountID),
		slog.String("location_id", locationID))
	return h.redirect(c, url.Values{"crm_connected": {"true"}})
}

// Disconnect godoc
// @Summary Disconnect the CRM integration
// @Tags oauth
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /oauth/crm/disconnect [delete]
func (h *CRMOAuthHandler) Disconnect(c echo.Context) error {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	account, err := h.accounts.Get(ctx, accountID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "account not found")
	}
	if err := h.credentials.Deactivate(ctx, accountID, credentials.ProviderCRM, account.CRMLocationID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"disconnected": true})
}

func (h *CRMOAuthHandler) redirectError(c echo.Context, code string) error {
	return h.redirect(c, url.Values{"crm_error": {code}})
}

func (h *CRMOAuthHandler) redirect(c echo.Context, params url.Values) error {
	return c.Redirect(http.StatusFound, h.app.RedirectURL(h.app.SettingsPath)+"?"+params.Encode())
}
