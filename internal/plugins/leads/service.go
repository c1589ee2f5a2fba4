package leads

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadts/leadts/internal/apperror"
	"github.com/leadts/leadts/internal/fields"
	"github.com/leadts/leadts/internal/plugins/campaigns"
	"github.com/leadts/leadts/internal/sanitize"
)

// LeadService handles business logic for lead operations.
type LeadService interface {
	Create(ctx context.Context, campaignID string, input CreateLeadInput) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	ListByCampaign(ctx context.Context, campaignID string, opts ListOptions) ([]Lead, int, error)
	Update(ctx context.Context, leadID string, input UpdateLeadInput) (*Lead, error)
	MoveToStage(ctx context.Context, leadID, stageID string) (*Lead, error)
	Delete(ctx context.Context, leadID string) error

	// PublicView strips admin-only field values from a lead for the client
	// portal, per the campaign's visibility rules.
	PublicView(campaign *campaigns.Campaign, lead *Lead) *Lead

	// MoveLeadsToStage rebases all leads of one stage onto another. Backs
	// stage deletion in the campaigns plugin.
	MoveLeadsToStage(ctx context.Context, campaignID, fromStageID, toStageID string) error
}

// leadService implements LeadService.
type leadService struct {
	repo      LeadRepository
	campaigns CampaignSource
	notifier  AutomationNotifier // May be nil when automations are not wired.
}

// NewLeadService creates a new lead service with the given dependencies.
func NewLeadService(repo LeadRepository, campaignSvc CampaignSource, notifier AutomationNotifier) LeadService {
	return &leadService{
		repo:      repo,
		campaigns: campaignSvc,
		notifier:  notifier,
	}
}

// CreateLeadInput is the validated input for creating a lead.
type CreateLeadInput struct {
	StageID string
	Data    map[string]any
	Notes   string
}

// UpdateLeadInput is the validated input for updating a lead.
type UpdateLeadInput struct {
	Data  map[string]any
	Notes *string
}

// Create validates the data bag against the campaign schema, places the
// lead on the requested stage (or the default stage when none is given),
// and fires the lead-created automations before returning.
func (s *leadService) Create(ctx context.Context, campaignID string, input CreateLeadInput) (*Lead, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	stageID := input.StageID
	if stageID == "" {
		stage := campaign.Settings.DefaultStage()
		if stage == nil {
			return nil, apperror.NewInternal(fmt.Errorf("campaign %s has no pipeline stages", campaignID))
		}
		stageID = stage.ID
	} else if campaign.Settings.StageByID(stageID) == nil {
		return nil, apperror.NewUnknownStageReference(stageID)
	}

	data, err := coerceData(&campaign.Settings, input.Data)
	if err != nil {
		return nil, err
	}
	if err := checkRequired(&campaign.Settings, data); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	lead := &Lead{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		StageID:    stageID,
		Data:       data,
		Notes:      sanitize.HTML(input.Notes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, lead); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating lead: %w", err))
	}

	slog.Info("lead created",
		slog.String("lead_id", lead.ID),
		slog.String("campaign_id", campaignID),
		slog.String("stage_id", stageID),
	)

	if s.notifier != nil {
		s.notifier.LeadCreated(ctx, campaign, lead)
	}

	return lead, nil
}

// GetByID retrieves a lead by id.
func (s *leadService) GetByID(ctx context.Context, id string) (*Lead, error) {
	return s.repo.FindByID(ctx, id)
}

// ListByCampaign returns a campaign's leads.
func (s *leadService) ListByCampaign(ctx context.Context, campaignID string, opts ListOptions) ([]Lead, int, error) {
	return s.repo.ListByCampaign(ctx, campaignID, opts)
}

// Update merges new data values into the lead's bag after validating them
// against the campaign schema. Keys absent from the input stay untouched.
func (s *leadService) Update(ctx context.Context, leadID string, input UpdateLeadInput) (*Lead, error) {
	lead, err := s.repo.FindByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	campaign, err := s.campaigns.GetByID(ctx, lead.CampaignID)
	if err != nil {
		return nil, err
	}

	if len(input.Data) > 0 {
		coerced, err := coerceData(&campaign.Settings, input.Data)
		if err != nil {
			return nil, err
		}
		if lead.Data == nil {
			lead.Data = map[string]any{}
		}
		for key, value := range coerced {
			lead.Data[key] = value
		}
		if err := checkRequired(&campaign.Settings, lead.Data); err != nil {
			return nil, err
		}
	}
	if input.Notes != nil {
		lead.Notes = sanitize.HTML(*input.Notes)
	}

	if err := s.repo.Update(ctx, lead); err != nil {
		return nil, err
	}
	return lead, nil
}

// MoveToStage moves a lead to another pipeline stage and fires the
// stage-change automations. Moving to the current stage is a no-op that
// fires nothing.
func (s *leadService) MoveToStage(ctx context.Context, leadID, stageID string) (*Lead, error) {
	lead, err := s.repo.FindByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	campaign, err := s.campaigns.GetByID(ctx, lead.CampaignID)
	if err != nil {
		return nil, err
	}

	if campaign.Settings.StageByID(stageID) == nil {
		return nil, apperror.NewUnknownStageReference(stageID)
	}
	if lead.StageID == stageID {
		return lead, nil
	}

	fromStageID := lead.StageID
	if err := s.repo.UpdateStage(ctx, leadID, stageID); err != nil {
		return nil, err
	}
	lead.StageID = stageID

	slog.Info("lead moved",
		slog.String("lead_id", leadID),
		slog.String("from_stage", fromStageID),
		slog.String("to_stage", stageID),
	)

	if s.notifier != nil {
		s.notifier.StageChanged(ctx, campaign, lead, fromStageID)
	}

	return lead, nil
}

// Delete removes a lead.
func (s *leadService) Delete(ctx context.Context, leadID string) error {
	return s.repo.Delete(ctx, leadID)
}

// PublicView returns a copy of the lead with admin-only values removed.
func (s *leadService) PublicView(campaign *campaigns.Campaign, lead *Lead) *Lead {
	view := *lead
	view.Data = make(map[string]any, len(lead.Data))
	for key, value := range lead.Data {
		if !campaign.Settings.IsAdminOnly(key) {
			view.Data[key] = value
		}
	}
	if !campaign.Settings.ClientView.ShowNotes {
		view.Notes = ""
	}
	return &view
}

// MoveLeadsToStage implements campaigns.LeadMigrator.
func (s *leadService) MoveLeadsToStage(ctx context.Context, campaignID, fromStageID, toStageID string) error {
	return s.repo.MoveAllFromStage(ctx, campaignID, fromStageID, toStageID)
}

// --- Schema validation ---

// coerceData validates every key against the campaign schema and coerces
// values to their field's type. Unknown keys are rejected; inactive fields
// still accept writes so imports can carry historical columns.
func coerceData(settings *campaigns.Settings, data map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(data))
	for key, value := range data {
		descriptor := settings.ResolveField(key)
		if descriptor == nil {
			return nil, apperror.NewUnknownFieldReference(key)
		}
		coerced, err := coerceValue(descriptor, value)
		if err != nil {
			return nil, err
		}
		if err := checkSelectOption(settings, key, coerced); err != nil {
			return nil, err
		}
		out[key] = coerced
	}
	return out, nil
}

// checkSelectOption verifies a select field's value against its options.
func checkSelectOption(settings *campaigns.Settings, key string, value any) error {
	for i := range settings.CustomFields {
		cf := &settings.CustomFields[i]
		if cf.Key != key || cf.Type != fields.TypeSelect {
			continue
		}
		str, _ := value.(string)
		if str == "" {
			return nil
		}
		for _, option := range cf.Options {
			if option == str {
				return nil
			}
		}
		return apperror.NewValidation(fmt.Sprintf("field %q must be one of its options", key))
	}
	return nil
}

// coerceValue converts one value to the canonical form for its field type.
func coerceValue(d *fields.Descriptor, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch d.Type {
	case fields.TypeNumber, fields.TypeCurrency:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, apperror.NewValidation(fmt.Sprintf("field %q must be numeric", d.Key))
			}
			return parsed, nil
		default:
			return nil, apperror.NewValidation(fmt.Sprintf("field %q must be numeric", d.Key))
		}

	case fields.TypeDate:
		str, ok := value.(string)
		if !ok {
			return nil, apperror.NewValidation(fmt.Sprintf("field %q must be a date string", d.Key))
		}
		str = strings.TrimSpace(str)
		if _, err := time.Parse("2006-01-02", str); err != nil {
			if _, err := time.Parse(time.RFC3339, str); err != nil {
				return nil, apperror.NewValidation(fmt.Sprintf("field %q must be YYYY-MM-DD", d.Key))
			}
		}
		return str, nil

	case fields.TypeEmail:
		str := stringValue(value)
		if str != "" && !strings.Contains(str, "@") {
			return nil, apperror.NewValidation(fmt.Sprintf("field %q must be an email address", d.Key))
		}
		return strings.TrimSpace(str), nil

	default:
		// text, tel, select all store plain strings.
		return strings.TrimSpace(stringValue(value)), nil
	}
}

// checkRequired verifies every required active custom field has a value.
func checkRequired(settings *campaigns.Settings, data map[string]any) error {
	for _, cf := range settings.CustomFields {
		if !cf.Required || !cf.IsActive {
			continue
		}
		if value, ok := data[cf.Key]; !ok || value == nil || value == "" {
			return apperror.NewValidation(fmt.Sprintf("field %q is required", cf.Key))
		}
	}
	return nil
}

// stringValue renders a scalar as a string without scientific notation for
// round numbers.
func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
