package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatbridge/chatbridge/internal/healthcheck"
)

type HealthHandler struct {
	checks *healthcheck.Service
}

func NewHealthHandler(checks *healthcheck.Service) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
}

// Health godoc
// @Summary Per-dependency health report
// @Description Reports database reachability and integration configuration. An unconfigured integration degrades the report without failing it.
// @Tags health
// @Produce json
// @Success 200 {object} healthcheck.Report
// @Failure 503 {object} healthcheck.Report
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	report := h.checks.Run(c.Request().Context())
	status := http.StatusOK
	if report.Status == healthcheck.StatusError {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}
