package ingest

import (
	"github.com/labstack/echo/v4"

	"github.com/leadts/leadts/internal/plugins/campaigns"
	"github.com/leadts/leadts/internal/plugins/session"
)

// RegisterRoutes sets up ingest routes on the given Echo instance. Key
// management is session-authenticated admin API; the webhook endpoint is
// authenticated by the ingest key itself.
func RegisterRoutes(e *echo.Echo, h *Handler, svc IngestService, campaignSvc campaigns.CampaignService, sessions session.SessionService, maxBodyBytes int64) {
	admin := e.Group("/api/campaigns/:id/ingest-keys",
		session.RequireAuth(sessions),
		session.RequireAdmin(),
		campaigns.ResolveCampaign(campaignSvc),
	)
	admin.POST("", h.CreateKey)
	admin.GET("", h.ListKeys)
	admin.PATCH("/:kid", h.SetKeyActive)
	admin.DELETE("/:kid", h.RevokeKey)

	webhook := e.Group("/api/v1/ingest",
		BodyLimit(maxBodyBytes),
		RequireIngestKey(svc),
		RateLimit(),
	)
	webhook.POST("/:campaignID", h.IngestLead)
}
