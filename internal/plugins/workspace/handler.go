package workspace

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/leadts/leadts/internal/apperror"
	"github.com/leadts/leadts/internal/plugins/session"
)

// Handler handles HTTP requests for workspace settings.
type Handler struct {
	service WorkspaceService
}

// NewHandler creates a new workspace handler.
func NewHandler(service WorkspaceService) *Handler {
	return &Handler{service: service}
}

// Settings returns the workspace settings (GET /api/workspace). Readable by
// any authenticated user so the portal can brand itself.
func (h *Handler) Settings(c echo.Context) error {
	settings, err := h.service.GetSettings(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, settings)
}

// UpdateSettings saves workspace settings (PUT /api/workspace).
func (h *Handler) UpdateSettings(c echo.Context) error {
	var req UpdateWorkspaceRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	settings, err := h.service.UpdateSettings(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, settings)
}

// RegisterRoutes sets up workspace routes on the given Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler, sessions session.SessionService) {
	read := e.Group("/api/workspace", session.RequireAuth(sessions))
	read.GET("", h.Settings)

	write := e.Group("/api/workspace",
		session.RequireAuth(sessions),
		session.RequireAdmin(),
	)
	write.PUT("", h.UpdateSettings)
}
