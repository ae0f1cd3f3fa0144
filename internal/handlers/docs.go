package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/chatbridge/chatbridge/internal/auth"
	"github.com/chatbridge/chatbridge/internal/credentials"
	"github.com/chatbridge/chatbridge/internal/knowledge"
)

type DocsHandler struct {
	knowledge *knowledge.Service
}

func NewDocsHandler(svc *knowledge.Service) *DocsHandler {
	return &DocsHandler{knowledge: svc}
}

func (h *DocsHandler) Register(e *echo.Echo) {
	e.GET("/docs", h.ListAvailable)
	e.POST("/docs/import", h.Import)
	e.GET("/knowledge", h.ListImported)
	e.DELETE("/knowledge/:id", h.Delete)
}

// ListAvailable godoc
// @Summary List documents available for import
// @Tags docs
// @Produce json
// @Param page_size query int false "Page size"
// @Param page_token query string false "Continuation token"
// @Success 200 {object} docs.DocumentList
// @Failure 409 {object} ErrorResponse
// @Router /docs [get]
func (h *DocsHandler) ListAvailable(c echo.Context) error {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return err
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	list, err := h.knowledge.Available(c.Request().Context(), accountID, pageSize, c.QueryParam("page_token"))
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, list)
}

type ImportRequest struct {
	DocumentID  string `json:"document_id"`
	WebViewLink string `json:"web_view_link,omitempty"`
}

// Import godoc
// @Summary Import a document into the knowledge base
// @Tags docs
// @Accept json
// @Produce json
// @Param request body ImportRequest true "Document to import"
// @Success 200 {object} knowledge.Document
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /docs/import [post]
func (h *DocsHandler) Import(c echo.Context) error {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return err
	}
	var req ImportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DocumentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "document_id is required")
	}

	doc, err := h.knowledge.Import(c.Request().Context(), accountID, req.DocumentID, req.WebViewLink)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

// ListImported godoc
// @Summary List imported knowledge documents
// @Tags docs
// @Produce json
// @Success 200 {array} knowledge.Document
// @Router /knowledge [get]
func (h *DocsHandler) ListImported(c echo.Context) error {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return err
	}
	list, err := h.knowledge.Imported(c.Request().Context(), accountID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if list == nil {
		list = []knowledge.Document{}
	}
	return c.JSON(http.StatusOK, list)
}

// Delete godoc
// @Summary Remove an imported knowledge document
// @Tags docs
// @Produce json
// @Param id path string true "Knowledge document id"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} ErrorResponse
// @Router /knowledge/{id} [delete]
func (h *DocsHandler) Delete(c echo.Context) error {
	accountID, err := auth.AccountIDFromContext(c)
	if err != nil {
		return err
	}
	if err := h.knowledge.Remove(c.Request().Context(), accountID, c.Param("id")); err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "knowledge document not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"deleted": true})
}

func (h *DocsHandler) mapError(err error) error {
	if errors.Is(err, credentials.ErrNotConnected) || errors.Is(err, credentials.ErrRefreshFailed) {
		return echo.NewHTTPError(http.StatusConflict, "docs provider is not connected, please reconnect")
	}
	return echo.NewHTTPError(http.StatusBadGateway, err.Error())
}
