package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/chatbridge/chatbridge/internal/auth"
	"github.com/chatbridge/chatbridge/internal/conversations"
	"github.com/chatbridge/chatbridge/internal/credentials"
	"github.com/chatbridge/chatbridge/internal/dispatch"
)

type ConversationsHandler struct {
	store      *conversations.Store
	dispatcher *dispatch.Dispatcher
}

func NewConversationsHandler(store *conversations.Store, dispatcher *dispatch.Dispatcher) *ConversationsHandler {
	return &ConversationsHandler{store: store, dispatcher: dispatcher}
}

func (h *ConversationsHandler) Register(e *echo.Echo) {
	group := e.Group("/conversations")
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.GET("/:id/messages", h.Messages)
	group.POST("/:id/send", h.Send)
	group.POST("/:id/close", h.Close)
}

// List godoc
// @Summary List the account's conversations
// @Tags conversations
// @Produce json
// @Param limit query int false "Maximum rows"
// @Success 200 {array} conversations.Conversation
// @Router /conversations [get]
func (h *ConversationsHandler) List(c echo.Context) error {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	list, err := h.store.ListByAccount(c.Request().Context(), accountID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if list == nil {
		list = []conversations.Conversation{}
	}
	return c.JSON(http.StatusOK, list)
}

// Get godoc
// @Summary Get one conversation
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation id"
// @Success 200 {object} conversations.Conversation
// @Failure 404 {object} ErrorResponse
// @Router /conversations/{id} [get]
func (h *ConversationsHandler) Get(c echo.Context) error {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return err
	}
	conv, err := h.store.GetByID(c.Request().Context(), accountID, c.Param("id"))
	if err != nil {
		if errors.Is(err, conversations.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, conv)
}

// Messages godoc
// @Summary List a conversation's messages in order
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation id"
// @Param limit query int false "Maximum rows"
// @Success 200 {array} conversations.Message
// @Router /conversations/{id}/messages [get]
func (h *ConversationsHandler) Messages(c echo.Context) error {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	msgs, err := h.store.ListMessages(c.Request().Context(), accountID, c.Param("id"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if msgs == nil {
		msgs = []conversations.Message{}
	}
	return c.JSON(http.StatusOK, msgs)
}

// Send godoc
// @Summary Send an outbound message on a conversation
// @Tags conversations
// @Accept json
// @Produce json
// @Param id path string true "Conversation id"
// @Param request body dispatch.SendRequest true "Message"
// @Success 200 {object} dispatch.SendResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /conversations/{id}/send [post]
func (h *ConversationsHandler) Send(c echo.Context) error {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return err
	}
	var req dispatch.SendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.dispatcher.Send(c.Request().Context(), accountID, c.Param("id"), req)
	if err != nil {
		switch {
		case errors.Is(err, conversations.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		case errors.Is(err, credentials.ErrNotConnected),
			errors.Is(err, credentials.ErrRefreshFailed):
			return echo.NewHTTPError(http.StatusConflict, "crm is not connected, please reconnect")
		default:
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
	}
	return c.JSON(http.StatusOK, result)
}

// Close godoc
// @Summary Close a conversation
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation id"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} ErrorResponse
// @Router /conversations/{id}/close [post]
func (h *ConversationsHandler) Close(c echo.Context) error {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return err
	}
	if err := h.store.Close(c.Request().Context(), accountID, c.Param("id")); err != nil {
		if errors.Is(err, conversations.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"closed": true})
}
