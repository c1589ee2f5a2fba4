package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
)

// Recovery converts handler panics into logged 500 responses so one broken
// request cannot take down the server. The body matches the JSON error shape
// the rest of the API produces, keeping clients on a single error contract.
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (returnErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic recovered",
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", c.Request().Method),
						slog.String("path", c.Request().URL.Path),
					)

					returnErr = c.JSON(http.StatusInternalServerError, map[string]string{
						"error":   "internal_error",
						"message": "An unexpected error occurred. Please try again.",
					})
				}
			}()

			return next(c)
		}
	}
}
