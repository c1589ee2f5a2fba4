package clients

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/leadts/leadts/internal/apperror"
	"github.com/leadts/leadts/internal/plugins/session"
)

// Handler handles HTTP requests for client management.
type Handler struct {
	service ClientService
}

// NewHandler creates a new clients handler.
func NewHandler(service ClientService) *Handler {
	return &Handler{service: service}
}

// Create creates a client (POST /api/clients).
func (h *Handler) Create(c echo.Context) error {
	var req CreateClientRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	client, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, client)
}

// List returns all clients (GET /api/clients).
func (h *Handler) List(c echo.Context) error {
	clients, err := h.service.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, clients)
}

// Get returns one client (GET /api/clients/:id).
func (h *Handler) Get(c echo.Context) error {
	client, err := h.service.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, client)
}

// Update applies a partial update (PATCH /api/clients/:id).
func (h *Handler) Update(c echo.Context) error {
	var req UpdateClientRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	client, err := h.service.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, client)
}

// Delete removes a client (DELETE /api/clients/:id).
func (h *Handler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// RegisterRoutes sets up client routes on the given Echo instance. The
// directory is admin-only; client users see their own campaigns instead.
func RegisterRoutes(e *echo.Echo, h *Handler, sessions session.SessionService) {
	g := e.Group("/api/clients",
		session.RequireAuth(sessions),
		session.RequireAdmin(),
	)
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}
