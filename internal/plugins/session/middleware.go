package session

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/leadts/leadts/internal/apperror"
)

// cookieName is the session cookie set at login.
const cookieName = "leadts_session"

// Context keys for storing session data in Echo context. Other plugins use
// these keys via the exported getters below.
const (
	contextKeySession = "session"
	contextKeyUserID  = "session_user_id"
)

// RequireAuth returns middleware that validates the session token and
// injects the session into the request context. The token comes from the
// session cookie or an Authorization: Bearer header.
func RequireAuth(service SessionService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := sessionToken(c)
			if token == "" {
				return apperror.NewUnauthorized("authentication required")
			}

			sess, err := service.ValidateSession(c.Request().Context(), token)
			if err != nil {
				clearSessionCookie(c)
				return apperror.NewUnauthorized("authentication required")
			}

			c.Set(contextKeySession, sess)
			c.Set(contextKeyUserID, sess.UserID)

			return next(c)
		}
	}
}

// RequireAdmin returns middleware that rejects non-admin sessions. Must be
// applied AFTER RequireAuth.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := GetSession(c)
			if sess == nil {
				return apperror.NewUnauthorized("authentication required")
			}
			if !sess.IsAdmin() {
				return apperror.NewForbidden("admin access required")
			}
			return next(c)
		}
	}
}

// --- Exported getters for other plugins ---

// GetSession retrieves the authenticated session from the Echo context.
// Returns nil if the request is not authenticated (middleware not applied).
func GetSession(c echo.Context) *Session {
	sess, ok := c.Get(contextKeySession).(*Session)
	if !ok {
		return nil
	}
	return sess
}

// GetUserID retrieves the authenticated user's ID from the Echo context.
// Returns empty string if the request is not authenticated.
func GetUserID(c echo.Context) string {
	id, ok := c.Get(contextKeyUserID).(string)
	if !ok {
		return ""
	}
	return id
}

// --- Helpers ---

// sessionToken extracts the session token from the cookie or the
// Authorization header.
func sessionToken(c echo.Context) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// setSessionCookie writes the session cookie.
func setSessionCookie(c echo.Context, token string, maxAge int, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie removes a stale session cookie.
func clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
