package campaigns

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/leadts/leadts/internal/apperror"
	"github.com/leadts/leadts/internal/fields"
)

// Request-to-domain conversions. Validation happens in the settings
// operations; these only translate the wire representation.

func fieldType(s string) fields.FieldType {
	return fields.FieldType(s)
}

func fieldVisibility(s string) fields.Visibility {
	if s == string(fields.VisibilityPublic) {
		return fields.VisibilityPublic
	}
	return fields.VisibilityInternal
}

func isSystemKey(key string) bool {
	return fields.IsSystem(key)
}

// Handler handles HTTP requests for campaign operations. Handlers are thin:
// bind request, call service, render response. No business logic lives here.
type Handler struct {
	service CampaignService
}

// NewHandler creates a new campaign handler.
func NewHandler(service CampaignService) *Handler {
	return &Handler{service: service}
}

// parseDate parses a YYYY-MM-DD request value. Empty input is not an error;
// the zero time signals "not provided" to the service.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, apperror.NewBadRequest("dates must be YYYY-MM-DD")
	}
	return t, nil
}

// listResponse is the standard paginated list envelope.
type listResponse struct {
	Items any `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
}

// --- Campaign CRUD ---

// List returns non-template campaigns (GET /api/campaigns).
func (h *Handler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	opts := DefaultListOptions()
	if page > 0 {
		opts.Page = page
	}

	var (
		campaigns []Campaign
		total     int
		err       error
	)
	if clientID := c.QueryParam("client_id"); clientID != "" {
		campaigns, total, err = h.service.ListByClient(c.Request().Context(), clientID, opts)
	} else {
		campaigns, total, err = h.service.List(c.Request().Context(), opts)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, listResponse{Items: campaigns, Total: total, Page: opts.Page})
}

// ListTemplates returns template campaigns (GET /api/campaigns/templates).
func (h *Handler) ListTemplates(c echo.Context) error {
	templates, err := h.service.ListTemplates(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, templates)
}

// Create creates a campaign (POST /api/campaigns). With a template_id the
// new campaign inherits the template's settings, secrets cleared.
func (h *Handler) Create(c echo.Context) error {
	var req CreateCampaignRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		return err
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		return err
	}

	input := CreateCampaignInput{
		ClientID:   req.ClientID,
		Name:       req.Name,
		Budget:     req.Budget,
		StartDate:  startDate,
		TemplateID: req.TemplateID,
	}
	if !endDate.IsZero() {
		input.EndDate = &endDate
	}

	campaign, err := h.service.Create(c.Request().Context(), input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, campaign)
}

// Show returns one campaign with its full settings (GET /api/campaigns/:id).
func (h *Handler) Show(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}
	return c.JSON(http.StatusOK, campaign)
}

// Update modifies top-level campaign attributes (PUT /api/campaigns/:id).
func (h *Handler) Update(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	var req UpdateCampaignRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		return err
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		return err
	}

	input := UpdateCampaignInput{
		Name:      req.Name,
		Status:    Status(req.Status),
		Budget:    req.Budget,
		StartDate: startDate,
		Spend:     req.Spend,
	}
	if !endDate.IsZero() {
		input.EndDate = &endDate
	}

	updated, err := h.service.Update(c.Request().Context(), campaign.ID, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// Delete removes a campaign (DELETE /api/campaigns/:id).
func (h *Handler) Delete(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}
	if err := h.service.Delete(c.Request().Context(), campaign.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Duplicate clones a campaign (POST /api/campaigns/:id/duplicate).
func (h *Handler) Duplicate(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	var req DuplicateCampaignRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	dup, err := h.service.Duplicate(c.Request().Context(), campaign.ID, req.Name, req.AsTemplate)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, dup)
}

// --- Settings ---

// ReplaceSettings swaps in a whole settings document
// (PUT /api/campaigns/:id/settings).
func (h *Handler) ReplaceSettings(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	var req ReplaceSettingsRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	updated, err := h.service.ReplaceSettings(c.Request().Context(), campaign.ID, req.Settings, req.SettingsVersion)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// --- Fields ---

// AddCustomField adds a custom field (POST /api/campaigns/:id/fields).
func (h *Handler) AddCustomField(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	var req AddCustomFieldRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	def := CustomFieldDefinition{
		Key:        req.Key,
		Name:       req.Name,
		Type:       fieldType(req.Type),
		Required:   req.Required,
		IsActive:   true,
		Visibility: fieldVisibility(req.Visibility),
		Options:    req.Options,
	}

	updated, err := h.service.AddCustomField(c.Request().Context(), campaign.ID, def, req.SettingsVersion)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// ToggleField flips a field's active state (POST /api/campaigns/:id/fields/toggle).
// System and custom fields share the endpoint; the key decides which path runs.
func (h *Handler) ToggleField(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	var req ToggleFieldRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	var (
		updated *Campaign
		err     error
	)
	if isSystemKey(req.Key) {
		updated, err = h.service.ToggleSystemField(c.Request().Context(), campaign.ID, req.Key, req.SettingsVersion)
	} else {
		updated, err = h.service.ToggleCustomField(c.Request().Context(), campaign.ID, req.Key, req.SettingsVersion)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// DeleteCustomField removes a custom field by position
// (DELETE /api/campaigns/:id/fields/:index).
func (h *Handler) DeleteCustomField(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return apperror.NewBadRequest("field index must be a number")
	}
	version, err := strconv.ParseInt(c.QueryParam("settings_version"), 10, 64)
	if err != nil {
		return apperror.NewBadRequest("settings_version is required")
	}

	updated, err := h.service.DeleteCustomField(c.Request().Context(), campaign.ID, index, version)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// ApplyPreset batch-adds a platform preset's fields
// (POST /api/campaigns/:id/fields/preset).
func (h *Handler) ApplyPreset(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	var req ApplyPresetRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	updated, err := h.service.ApplyPreset(c.Request().Context(), campaign.ID, req.Preset, req.SettingsVersion)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// UpdateAliases replaces a custom field's alias list
// (PUT /api/campaigns/:id/fields/aliases).
func (h *Handler) UpdateAliases(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	var req UpdateAliasesRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	updated, err := h.service.UpdateFieldAliases(c.Request().Context(), campaign.ID, req.Key, req.Aliases, req.SettingsVersion)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// SetVisibility sets a field's client-portal visibility
// (PUT /api/campaigns/:id/fields/visibility).
func (h *Handler) SetVisibility(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	var req SetVisibilityRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	updated, err := h.service.SetFieldVisibility(c.Request().Context(), campaign.ID, req.Key, req.Public, req.SettingsVersion)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// --- Pipeline ---

// AddStage appends a pipeline stage (POST /api/campaigns/:id/stages).
func (h *Handler) AddStage(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	var req AddStageRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	stageType := StageType(req.Type)
	if req.Type == "" {
		stageType = StageStandard
	}

	updated, err := h.service.AddStage(c.Request().Context(), campaign.ID, req.Name, stageType, req.Color, req.SettingsVersion)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// MoveStage swaps a stage with a neighbor (POST /api/campaigns/:id/stages/move).
func (h *Handler) MoveStage(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	var req MoveStageRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	updated, err := h.service.MoveStage(c.Request().Context(), campaign.ID, req.Index, req.Direction, req.SettingsVersion)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// ReorderStages applies a full stage permutation
// (PUT /api/campaigns/:id/stages/order).
func (h *Handler) ReorderStages(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	var req ReorderStagesRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	updated, err := h.service.ReorderStages(c.Request().Context(), campaign.ID, req.StageIDs, req.SettingsVersion)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// UpdateStage renames or retypes a stage (PUT /api/campaigns/:id/stages/:sid).
func (h *Handler) UpdateStage(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	var req UpdateStageRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	updated, err := h.service.UpdateStage(c.Request().Context(), campaign.ID, c.Param("sid"), req.Name, StageType(req.Type), req.SettingsVersion)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// DeleteStage removes a stage, migrating its leads to the new default stage
// (DELETE /api/campaigns/:id/stages/:sid).
func (h *Handler) DeleteStage(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	version, err := strconv.ParseInt(c.QueryParam("settings_version"), 10, 64)
	if err != nil {
		return apperror.NewBadRequest("settings_version is required")
	}

	updated, err := h.service.DeleteStage(c.Request().Context(), campaign.ID, c.Param("sid"), version)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// --- Card layout ---

// UpdateCardLayout replaces the card layout (PUT /api/campaigns/:id/card-layout).
func (h *Handler) UpdateCardLayout(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	var req UpdateCardLayoutRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	updated, err := h.service.UpdateCardLayout(c.Request().Context(), campaign.ID, req.CardFieldOrder, req.CardPrimaryField, req.SettingsVersion)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// --- Stats ---

// RecomputeStats re-aggregates lead counters (POST /api/campaigns/:id/stats/recompute).
func (h *Handler) RecomputeStats(c echo.Context) error {
	campaign := GetCampaign(c)
	if campaign == nil {
		return apperror.NewMissingContext()
	}

	stats, err := h.service.RecomputeStats(c.Request().Context(), campaign.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}
