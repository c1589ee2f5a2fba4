package smtp

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/leadts/leadts/internal/apperror"
)

// Handler handles HTTP requests for mail settings management.
// Admin-only -- all routes require the admin middleware.
type Handler struct {
	service MailSettingsService
}

// NewHandler creates a new mail settings handler.
func NewHandler(service MailSettingsService) *Handler {
	return &Handler{service: service}
}

// Settings returns the mail configuration (GET /api/admin/mail).
func (h *Handler) Settings(c echo.Context) error {
	settings, err := h.service.GetSettings(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, settings)
}

// UpdateSettings saves mail settings (PUT /api/admin/mail).
func (h *Handler) UpdateSettings(c echo.Context) error {
	var req UpdateMailSettingsRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.UpdateSettings(c.Request().Context(), req); err != nil {
		return err
	}

	settings, err := h.service.GetSettings(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, settings)
}

// TestConnection tests mail server connectivity (POST /api/admin/mail/test).
func (h *Handler) TestConnection(c echo.Context) error {
	if err := h.service.TestConnection(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
