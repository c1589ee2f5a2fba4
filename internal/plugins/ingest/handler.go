package ingest

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/leadts/leadts/internal/apperror"
	"github.com/leadts/leadts/internal/plugins/campaigns"
	"github.com/leadts/leadts/internal/plugins/session"
)

// Handler handles HTTP requests for webhook keys and ingestion.
type Handler struct {
	service IngestService
}

// NewHandler creates a new ingest handler.
func NewHandler(service IngestService) *Handler {
	return &Handler{service: service}
}

// --- Key Management (admin) ---

// CreateKey registers a webhook key for a campaign
// (POST /api/campaigns/:id/ingest-keys). The response carries the plaintext
// key once; it cannot be retrieved again.
func (h *Handler) CreateKey(c echo.Context) error {
	campaign := campaigns.GetCampaign(c)

	var req CreateIngestKeyRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	result, err := h.service.CreateKey(c.Request().Context(), campaign.ID, session.GetUserID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

// ListKeys returns a campaign's webhook keys
// (GET /api/campaigns/:id/ingest-keys).
func (h *Handler) ListKeys(c echo.Context) error {
	campaign := campaigns.GetCampaign(c)

	keys, err := h.service.ListKeys(c.Request().Context(), campaign.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, keys)
}

// SetKeyActive toggles a key (PATCH /api/campaigns/:id/ingest-keys/:kid).
func (h *Handler) SetKeyActive(c echo.Context) error {
	keyID, err := strconv.Atoi(c.Param("kid"))
	if err != nil {
		return apperror.NewBadRequest("invalid key id")
	}

	var req struct {
		IsActive bool `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if err := h.service.SetKeyActive(c.Request().Context(), keyID, req.IsActive); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// RevokeKey deletes a key (DELETE /api/campaigns/:id/ingest-keys/:kid).
func (h *Handler) RevokeKey(c echo.Context) error {
	keyID, err := strconv.Atoi(c.Param("kid"))
	if err != nil {
		return apperror.NewBadRequest("invalid key id")
	}

	if err := h.service.RevokeKey(c.Request().Context(), keyID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Webhook (key-authenticated) ---

// IngestLead receives one lead payload (POST /api/v1/ingest/:campaignID).
// The body is an arbitrary flat JSON object; keys are mapped onto the
// campaign schema. A key scoped to one campaign cannot post into another.
func (h *Handler) IngestLead(c echo.Context) error {
	key := GetIngestKey(c)
	if key == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "api key required")
	}
	if c.Param("campaignID") != key.CampaignID {
		return echo.NewHTTPError(http.StatusForbidden, "api key not authorized for this campaign")
	}

	var payload map[string]any
	if err := c.Bind(&payload); err != nil {
		return apperror.NewBadRequest("invalid JSON payload")
	}

	result, err := h.service.Ingest(c.Request().Context(), key, payload)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}
