package campaigns

import (
	"github.com/labstack/echo/v4"

	"github.com/leadts/leadts/internal/plugins/session"
)

// RegisterRoutes sets up all campaign routes on the given Echo instance.
// Listing and creation are admin-only; campaign-scoped reads allow client
// sessions for their own client's campaigns, every mutation stays admin-only.
func RegisterRoutes(e *echo.Echo, h *Handler, svc CampaignService, sessions session.SessionService) {
	admin := e.Group("/api/campaigns", session.RequireAuth(sessions), session.RequireAdmin())
	admin.GET("", h.List)
	admin.GET("/templates", h.ListTemplates)
	admin.POST("", h.Create)

	// Campaign-scoped reads: clients may view their own campaigns.
	cg := e.Group("/api/campaigns/:id",
		session.RequireAuth(sessions),
		ResolveCampaign(svc),
	)
	cg.GET("", h.Show)

	// Campaign-scoped mutations are admin-only.
	cm := e.Group("/api/campaigns/:id",
		session.RequireAuth(sessions),
		session.RequireAdmin(),
		ResolveCampaign(svc),
	)
	cm.PUT("", h.Update)
	cm.DELETE("", h.Delete)
	cm.POST("/duplicate", h.Duplicate)

	cm.PUT("/settings", h.ReplaceSettings)

	cm.POST("/fields", h.AddCustomField)
	cm.POST("/fields/toggle", h.ToggleField)
	cm.POST("/fields/preset", h.ApplyPreset)
	cm.PUT("/fields/aliases", h.UpdateAliases)
	cm.PUT("/fields/visibility", h.SetVisibility)
	cm.DELETE("/fields/:index", h.DeleteCustomField)

	cm.POST("/stages", h.AddStage)
	cm.POST("/stages/move", h.MoveStage)
	cm.PUT("/stages/order", h.ReorderStages)
	cm.PUT("/stages/:sid", h.UpdateStage)
	cm.DELETE("/stages/:sid", h.DeleteStage)

	cm.PUT("/card-layout", h.UpdateCardLayout)
	cm.POST("/stats/recompute", h.RecomputeStats)
}
