package ingest

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// ingestKeyContextKey is the Echo context key for the authenticated key.
const ingestKeyContextKey = "ingest_key"

// defaultMaxBodyBytes caps the webhook request body when no limit is
// configured. Ad platform payloads are small; anything bigger is not a lead.
const defaultMaxBodyBytes = 256 * 1024

// GetIngestKey retrieves the authenticated key from the request context.
func GetIngestKey(c echo.Context) *IngestKey {
	key, _ := c.Get(ingestKeyContextKey).(*IngestKey)
	return key
}

// RequireIngestKey returns middleware that authenticates webhook requests
// via the Authorization header.
func RequireIngestKey(service IngestService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "api key required")
			}

			rawKey := strings.TrimPrefix(authHeader, "Bearer ")
			if rawKey == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format, use: Bearer <key>")
			}

			key, err := service.AuthenticateKey(c.Request().Context(), rawKey)
			if err != nil {
				return err
			}

			c.Set(ingestKeyContextKey, key)
			return next(c)
		}
	}
}

// --- Rate Limiting ---

// rateLimiter tracks per-key request counts in fixed one-minute windows.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[int]*rateLimitWindow // Keyed by ingest key ID.
}

type rateLimitWindow struct {
	count   int
	resetAt time.Time
}

var globalRateLimiter = &rateLimiter{
	windows: make(map[int]*rateLimitWindow),
}

// RateLimit returns middleware that enforces each key's requests-per-minute
// limit with a fixed-window counter.
func RateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := GetIngestKey(c)
			if key == nil {
				return next(c)
			}

			globalRateLimiter.mu.Lock()
			window, exists := globalRateLimiter.windows[key.ID]
			now := time.Now()

			if !exists || now.After(window.resetAt) {
				window = &rateLimitWindow{resetAt: now.Add(time.Minute)}
				globalRateLimiter.windows[key.ID] = window
			}

			window.count++
			remaining := key.RateLimit - window.count
			globalRateLimiter.mu.Unlock()

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(key.RateLimit))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))

			if remaining < 0 {
				c.Response().Header().Set("Retry-After", "60")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			return next(c)
		}
	}
}

// BodyLimit returns middleware that rejects oversized webhook payloads.
// maxBytes <= 0 falls back to the default cap.
func BodyLimit(maxBytes int64) echo.MiddlewareFunc {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.ContentLength > maxBytes {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
			}
			req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBytes)
			return next(c)
		}
	}
}
