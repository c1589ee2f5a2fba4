package smtp

import (
	"github.com/labstack/echo/v4"

	"github.com/leadts/leadts/internal/plugins/session"
)

// RegisterRoutes sets up mail settings routes on the given Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler, sessions session.SessionService) {
	g := e.Group("/api/admin/mail",
		session.RequireAuth(sessions),
		session.RequireAdmin(),
	)
	g.GET("", h.Settings)
	g.PUT("", h.UpdateSettings)
	g.POST("/test", h.TestConnection)
}
