package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRecovery(t *testing.T) {
	e := echo.New()
	e.Use(Recovery())
	e.GET("/boom", func(c echo.Context) error {
		panic("kaboom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body["error"] != "internal_error" {
		t.Errorf("unexpected error type: %q", body["error"])
	}
	if body["message"] == "" || body["message"] == "kaboom" {
		t.Errorf("the client must get a generic message, got %q", body["message"])
	}
}
