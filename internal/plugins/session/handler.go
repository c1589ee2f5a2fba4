package session

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/leadts/leadts/internal/apperror"
)

// Handler handles HTTP requests for authentication. Handlers are thin:
// bind request, call service, render response.
type Handler struct {
	service      SessionService
	sessionTTL   time.Duration
	secureCookie bool
}

// NewHandler creates a new session handler. secureCookie should be true in
// production, where the app is served over HTTPS.
func NewHandler(service SessionService, sessionTTL time.Duration, secureCookie bool) *Handler {
	return &Handler{service: service, sessionTTL: sessionTTL, secureCookie: secureCookie}
}

// Login authenticates a user (POST /api/login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	token, user, err := h.service.Login(c.Request().Context(), LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	setSessionCookie(c, token, int(h.sessionTTL.Seconds()), h.secureCookie)
	return c.JSON(http.StatusOK, map[string]any{
		"token": token,
		"user":  user,
	})
}

// Logout destroys the current session (POST /api/logout).
func (h *Handler) Logout(c echo.Context) error {
	if token := sessionToken(c); token != "" {
		if err := h.service.DestroySession(c.Request().Context(), token); err != nil {
			return err
		}
	}
	clearSessionCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// Me returns the current session (GET /api/me).
func (h *Handler) Me(c echo.Context) error {
	sess := GetSession(c)
	if sess == nil {
		return apperror.NewUnauthorized("authentication required")
	}
	return c.JSON(http.StatusOK, sess)
}

// CreateUser creates a login (POST /api/users). Admin only.
func (h *Handler) CreateUser(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	user, err := h.service.CreateUser(c.Request().Context(), CreateUserInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     Role(req.Role),
		ClientID: req.ClientID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}

// Impersonate issues a client-scoped session for the current admin
// (POST /api/impersonate/:clientID).
func (h *Handler) Impersonate(c echo.Context) error {
	sess := GetSession(c)
	if sess == nil {
		return apperror.NewUnauthorized("authentication required")
	}

	token, err := h.service.Impersonate(c.Request().Context(), sess, c.Param("clientID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

// RegisterRoutes sets up authentication routes on the given Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler, svc SessionService) {
	e.POST("/api/login", h.Login)
	e.POST("/api/logout", h.Logout)

	authed := e.Group("/api", RequireAuth(svc))
	authed.GET("/me", h.Me)

	admin := e.Group("/api", RequireAuth(svc), RequireAdmin())
	admin.POST("/users", h.CreateUser)
	admin.POST("/impersonate/:clientID", h.Impersonate)
}
