package leads

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/leadts/leadts/internal/apperror"
	"github.com/leadts/leadts/internal/plugins/campaigns"
	"github.com/leadts/leadts/internal/plugins/session"
)

// Handler handles HTTP requests for lead operations.
type Handler struct {
	service LeadService
}

// NewHandler creates a new lead handler.
func NewHandler(service LeadService) *Handler {
	return &Handler{service: service}
}

// listResponse is the standard paginated list envelope.
type listResponse struct {
	Items any `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
}

// List returns a campaign's leads (GET /api/campaigns/:id/leads). Client
// sessions get the public view of every lead.
func (h *Handler) List(c echo.Context) error {
	campaign := campaigns.GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	opts := DefaultListOptions()
	if page > 0 {
		opts.Page = page
	}
	opts.StageID = c.QueryParam("stage_id")

	leads, total, err := h.service.ListByCampaign(c.Request().Context(), campaign.ID, opts)
	if err != nil {
		return err
	}

	if sess := session.GetSession(c); sess != nil && !sess.IsAdmin() {
		views := make([]Lead, len(leads))
		for i := range leads {
			views[i] = *h.service.PublicView(campaign, &leads[i])
		}
		leads = views
	}

	return c.JSON(http.StatusOK, listResponse{Items: leads, Total: total, Page: opts.Page})
}

// Create creates a lead (POST /api/campaigns/:id/leads).
func (h *Handler) Create(c echo.Context) error {
	campaign := campaigns.GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	var req CreateLeadRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	lead, err := h.service.Create(c.Request().Context(), campaign.ID, CreateLeadInput{
		StageID: req.StageID,
		Data:    req.Data,
		Notes:   req.Notes,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, lead)
}

// Show returns one lead (GET /api/campaigns/:id/leads/:lid).
func (h *Handler) Show(c echo.Context) error {
	campaign := campaigns.GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	lead, err := h.leadInCampaign(c, campaign)
	if err != nil {
		return err
	}

	if sess := session.GetSession(c); sess != nil && !sess.IsAdmin() {
		lead = h.service.PublicView(campaign, lead)
	}
	return c.JSON(http.StatusOK, lead)
}

// Update merges data values into a lead (PUT /api/campaigns/:id/leads/:lid).
func (h *Handler) Update(c echo.Context) error {
	campaign := campaigns.GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	lead, err := h.leadInCampaign(c, campaign)
	if err != nil {
		return err
	}

	var req UpdateLeadRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	updated, err := h.service.Update(c.Request().Context(), lead.ID, UpdateLeadInput{
		Data:  req.Data,
		Notes: req.Notes,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// Move moves a lead to another stage (POST /api/campaigns/:id/leads/:lid/move).
func (h *Handler) Move(c echo.Context) error {
	campaign := campaigns.GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	lead, err := h.leadInCampaign(c, campaign)
	if err != nil {
		return err
	}

	var req MoveLeadRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	moved, err := h.service.MoveToStage(c.Request().Context(), lead.ID, req.StageID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, moved)
}

// Delete removes a lead (DELETE /api/campaigns/:id/leads/:lid).
func (h *Handler) Delete(c echo.Context) error {
	campaign := campaigns.GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	lead, err := h.leadInCampaign(c, campaign)
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.Request().Context(), lead.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// leadInCampaign loads the :lid lead and verifies it belongs to the
// resolved campaign, so a campaign-scoped URL can never reach another
// campaign's lead.
func (h *Handler) leadInCampaign(c echo.Context, campaign *campaigns.Campaign) (*Lead, error) {
	lead, err := h.service.GetByID(c.Request().Context(), c.Param("lid"))
	if err != nil {
		return nil, err
	}
	if lead.CampaignID != campaign.ID {
		return nil, apperror.NewNotFound("lead not found")
	}
	return lead, nil
}

// RegisterRoutes sets up lead routes on the given Echo instance. Reads
// allow client sessions for their campaigns; mutations are admin-only.
func RegisterRoutes(e *echo.Echo, h *Handler, campaignSvc campaigns.CampaignService, sessions session.SessionService) {
	read := e.Group("/api/campaigns/:id/leads",
		session.RequireAuth(sessions),
		campaigns.ResolveCampaign(campaignSvc),
	)
	read.GET("", h.List)
	read.GET("/:lid", h.Show)

	write := e.Group("/api/campaigns/:id/leads",
		session.RequireAuth(sessions),
		session.RequireAdmin(),
		campaigns.ResolveCampaign(campaignSvc),
	)
	write.POST("", h.Create)
	write.PUT("/:lid", h.Update)
	write.POST("/:lid/move", h.Move)
	write.DELETE("/:lid", h.Delete)
}
