package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatbridge/chatbridge/internal/conversations"
)

type WebhookHandler struct {
	router *conversations.Router
	logger *slog.Logger
}

func NewWebhookHandler(log *slog.Logger, router *conversations.Router) *WebhookHandler {
	return &WebhookHandler{
		router: router,
		logger: log.With(slog.String("service", "webhook_handler")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/crm/message", h.InboundMessage)
}

// InboundMessage godoc
// @Summary Ingest an inbound CRM message event
// @Description Routes a provider webhook event into the owning account's conversation. Redelivered events are acknowledged without writing.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param event body conversations.WebhookEvent true "Provider event"
// @Success 200 {object} conversations.IngestResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /webhooks/crm/message [post]
func (h *WebhookHandler) InboundMessage(c echo.Context) error {
	var ev conversations.WebhookEvent
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.router.Ingest(c.Request().Context(), ev)
	if err != nil {
		switch {
		case errors.Is(err, conversations.ErrUnknownAccount):
			return echo.NewHTTPError(http.StatusNotFound, "no account for location")
		case errors.Is(err, conversations.ErrInvalidEvent):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("webhook ingestion failed",
				slog.String("location_id", ev.LocationID),
				slog.Any("error", err))
			return echo.NewHTTPError(http.StatusInternalServerError, "ingestion failed")
		}
	}
	return c.JSON(http.StatusOK, result)
}
