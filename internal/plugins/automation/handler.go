package automation

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/leadts/leadts/internal/apperror"
	"github.com/leadts/leadts/internal/plugins/campaigns"
	"github.com/leadts/leadts/internal/plugins/session"
)

// Handler exposes the delivery history for troubleshooting workflows.
type Handler struct {
	deliveries DeliveryRepository
}

// NewHandler creates a new automation handler.
func NewHandler(deliveries DeliveryRepository) *Handler {
	return &Handler{deliveries: deliveries}
}

// ListDeliveries returns a lead's notification history
// (GET /api/campaigns/:id/leads/:lid/deliveries).
func (h *Handler) ListDeliveries(c echo.Context) error {
	campaign := campaigns.GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	deliveries, err := h.deliveries.ListByLead(c.Request().Context(), c.Param("lid"))
	if err != nil {
		return err
	}

	// Guard against a lead id from another campaign leaking history.
	filtered := deliveries[:0]
	for _, d := range deliveries {
		if d.CampaignID == campaign.ID {
			filtered = append(filtered, d)
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"items": filtered})
}

// RegisterRoutes sets up automation routes on the given Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler, campaignSvc campaigns.CampaignService, sessions session.SessionService) {
	g := e.Group("/api/campaigns/:id/leads/:lid/deliveries",
		session.RequireAuth(sessions),
		session.RequireAdmin(),
		campaigns.ResolveCampaign(campaignSvc),
	)
	g.GET("", h.ListDeliveries)
}
