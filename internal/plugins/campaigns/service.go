package campaigns

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadts/leadts/internal/apperror"
	"github.com/leadts/leadts/internal/fields"
)

// discoveredKeysRetries is how many times RecordDiscoveredKeys retries a
// stale write. Concurrent webhook deliveries merging keys into the same
// campaign can race; the merge is commutative so retrying is always safe.
const discoveredKeysRetries = 3

// CampaignService handles business logic for campaign operations. Every
// settings mutation goes through a read-modify-CAS-write cycle against the
// settings version the caller presents.
type CampaignService interface {
	// Campaign CRUD
	Create(ctx context.Context, input CreateCampaignInput) (*Campaign, error)
	GetByID(ctx context.Context, id string) (*Campaign, error)
	List(ctx context.Context, opts ListOptions) ([]Campaign, int, error)
	ListByClient(ctx context.Context, clientID string, opts ListOptions) ([]Campaign, int, error)
	ListTemplates(ctx context.Context) ([]Campaign, error)
	Update(ctx context.Context, campaignID string, input UpdateCampaignInput) (*Campaign, error)
	Delete(ctx context.Context, campaignID string) error
	CountAll(ctx context.Context) (int, error)

	// Duplication & templates
	Duplicate(ctx context.Context, sourceID, newName string, asTemplate bool) (*Campaign, error)

	// Whole-settings replacement
	ReplaceSettings(ctx context.Context, campaignID string, settings Settings, expectedVersion int64) (*Campaign, error)

	// Schema store
	AddCustomField(ctx context.Context, campaignID string, def CustomFieldDefinition, expectedVersion int64) (*Campaign, error)
	ToggleSystemField(ctx context.Context, campaignID, key string, expectedVersion int64) (*Campaign, error)
	ToggleCustomField(ctx context.Context, campaignID, key string, expectedVersion int64) (*Campaign, error)
	DeleteCustomField(ctx context.Context, campaignID string, index int, expectedVersion int64) (*Campaign, error)
	ApplyPreset(ctx context.Context, campaignID, preset string, expectedVersion int64) (*Campaign, error)
	UpdateFieldAliases(ctx context.Context, campaignID, key string, aliases []string, expectedVersion int64) (*Campaign, error)

	// RecordDiscoveredKeys merges import-observed keys. Unlike the editor
	// operations it retries stale writes internally, since webhook handlers
	// have no version to present and the merge is order-independent.
	RecordDiscoveredKeys(ctx context.Context, campaignID string, keys []string) error

	// Visibility matrix
	SetFieldVisibility(ctx context.Context, campaignID, key string, public bool, expectedVersion int64) (*Campaign, error)

	// Pipeline model
	AddStage(ctx context.Context, campaignID, name string, stageType StageType, color string, expectedVersion int64) (*Campaign, error)
	MoveStage(ctx context.Context, campaignID string, index int, direction string, expectedVersion int64) (*Campaign, error)
	ReorderStages(ctx context.Context, campaignID string, stageIDs []string, expectedVersion int64) (*Campaign, error)
	DeleteStage(ctx context.Context, campaignID, stageID string, expectedVersion int64) (*Campaign, error)
	UpdateStage(ctx context.Context, campaignID, stageID, name string, stageType StageType, expectedVersion int64) (*Campaign, error)

	// Card layout
	UpdateCardLayout(ctx context.Context, campaignID string, order []string, primary string, expectedVersion int64) (*Campaign, error)

	// Stats
	RecomputeStats(ctx context.Context, campaignID string) (*Stats, error)
}

// campaignService implements CampaignService.
type campaignService struct {
	repo     CampaignRepository
	migrator LeadMigrator // May be nil until the leads plugin is wired.
	stats    StatsSource  // May be nil until the leads plugin is wired.
}

// NewCampaignService creates a new campaign service with the given
// dependencies. The migrator and stats parameters are wired after the leads
// plugin is constructed; SetLeadDependencies completes the cycle.
func NewCampaignService(repo CampaignRepository) CampaignService {
	return &campaignService{repo: repo}
}

// SetLeadDependencies wires the lead-side collaborators. Called once during
// app setup; campaigns and leads reference each other, so one side has to
// be attached late.
func SetLeadDependencies(svc CampaignService, migrator LeadMigrator, stats StatsSource) {
	if s, ok := svc.(*campaignService); ok {
		s.migrator = migrator
		s.stats = stats
	}
}

// CreateCampaignInput is the validated input for creating a campaign.
type CreateCampaignInput struct {
	ClientID   string
	Name       string
	Budget     float64
	StartDate  time.Time
	EndDate    *time.Time
	TemplateID string
}

// UpdateCampaignInput is the validated input for updating a campaign.
type UpdateCampaignInput struct {
	Name      string
	Status    Status
	Budget    float64
	StartDate time.Time
	EndDate   *time.Time
	Spend     float64
}

// --- Campaign CRUD ---

// Create creates a new campaign. With a TemplateID the settings are cloned
// from the template (secrets re-sanitized); otherwise the hard-coded
// defaults apply: DefaultStages, no custom fields, full_name as the card
// primary field.
func (s *campaignService) Create(ctx context.Context, input CreateCampaignInput) (*Campaign, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperror.NewBadRequest("campaign name is required")
	}
	if len(name) > 200 {
		return nil, apperror.NewBadRequest("campaign name must be at most 200 characters")
	}
	if input.ClientID == "" {
		return nil, apperror.NewBadRequest("client_id is required")
	}

	settings := DefaultSettings()
	if input.TemplateID != "" {
		template, err := s.repo.FindByID(ctx, input.TemplateID)
		if err != nil {
			return nil, err
		}
		if !template.IsTemplate {
			return nil, apperror.NewBadRequest("referenced campaign is not a template")
		}
		settings = template.Settings.Clone()
		settings.SanitizeSecrets()
	}

	now := time.Now().UTC()
	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = now
	}

	campaign := &Campaign{
		ID:        uuid.NewString(),
		ClientID:  input.ClientID,
		Name:      name,
		Status:    StatusActive,
		Budget:    input.Budget,
		StartDate: startDate,
		EndDate:   input.EndDate,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, campaign); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating campaign: %w", err))
	}

	slog.Info("campaign created",
		slog.String("campaign_id", campaign.ID),
		slog.String("client_id", campaign.ClientID),
		slog.Bool("from_template", input.TemplateID != ""),
	)

	return campaign, nil
}

// GetByID retrieves a campaign by id.
func (s *campaignService) GetByID(ctx context.Context, id string) (*Campaign, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns non-template campaigns.
func (s *campaignService) List(ctx context.Context, opts ListOptions) ([]Campaign, int, error) {
	return s.repo.List(ctx, opts)
}

// ListByClient returns a client's campaigns.
func (s *campaignService) ListByClient(ctx context.Context, clientID string, opts ListOptions) ([]Campaign, int, error) {
	return s.repo.ListByClient(ctx, clientID, opts)
}

// ListTemplates returns all template campaigns.
func (s *campaignService) ListTemplates(ctx context.Context) ([]Campaign, error) {
	return s.repo.ListTemplates(ctx)
}

// Update modifies a campaign's top-level attributes.
func (s *campaignService) Update(ctx context.Context, campaignID string, input UpdateCampaignInput) (*Campaign, error) {
	campaign, err := s.repo.FindByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		if len(name) > 200 {
			return nil, apperror.NewBadRequest("campaign name must be at most 200 characters")
		}
		campaign.Name = name
	}
	if input.Status != "" {
		if !input.Status.IsValid() {
			return nil, apperror.NewValidation(fmt.Sprintf("unknown campaign status %q", input.Status))
		}
		campaign.Status = input.Status
	}
	if input.Budget > 0 {
		campaign.Budget = input.Budget
	}
	if !input.StartDate.IsZero() {
		campaign.StartDate = input.StartDate
	}
	if input.EndDate != nil {
		campaign.EndDate = input.EndDate
	}
	if input.Spend > 0 {
		campaign.Stats.Spend = input.Spend
		if campaign.Stats.Spend > 0 {
			campaign.Stats.ROAS = campaign.Stats.Revenue / campaign.Stats.Spend
		}
	}

	if err := s.repo.Update(ctx, campaign); err != nil {
		return nil, err
	}
	return campaign, nil
}

// Delete removes a campaign and everything hanging off it.
func (s *campaignService) Delete(ctx context.Context, campaignID string) error {
	if err := s.repo.Delete(ctx, campaignID); err != nil {
		return err
	}
	slog.Info("campaign deleted", slog.String("campaign_id", campaignID))
	return nil
}

// CountAll returns the total number of campaigns.
func (s *campaignService) CountAll(ctx context.Context) (int, error) {
	return s.repo.CountAll(ctx)
}

// --- Duplication & templates ---

// Duplicate deep-clones a campaign's settings into a new campaign. The
// clone starts paused with zeroed stats, leads are never copied, and every
// connection secret is cleared while event flags and message templates
// survive verbatim.
func (s *campaignService) Duplicate(ctx context.Context, sourceID, newName string, asTemplate bool) (*Campaign, error) {
	source, err := s.repo.FindByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(newName)
	if name == "" {
		name = source.Name + " (Copy)"
	}

	settings := source.Settings.Clone()
	settings.SanitizeSecrets()

	now := time.Now().UTC()
	dup := &Campaign{
		ID:         uuid.NewString(),
		ClientID:   source.ClientID,
		Name:       name,
		Status:     StatusPaused,
		Budget:     source.Budget,
		StartDate:  now,
		IsTemplate: asTemplate,
		Settings:   settings,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, dup); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating duplicate: %w", err))
	}

	slog.Info("campaign duplicated",
		slog.String("source_id", sourceID),
		slog.String("campaign_id", dup.ID),
		slog.Bool("as_template", asTemplate),
	)

	return dup, nil
}

// --- Settings mutation plumbing ---

// mutateSettings runs the read-modify-CAS-write cycle: load the campaign,
// apply fn to a copy of its settings, and write the copy back guarded by
// the version the caller read. On success returns the campaign with the
// new settings and incremented version.
func (s *campaignService) mutateSettings(ctx context.Context, campaignID string, expectedVersion int64, fn func(*Settings) error) (*Campaign, error) {
	campaign, err := s.repo.FindByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	settings := campaign.Settings.Clone()
	if err := fn(&settings); err != nil {
		return nil, err
	}

	if err := s.repo.ReplaceSettings(ctx, campaignID, settings, expectedVersion); err != nil {
		return nil, err
	}

	campaign.Settings = settings
	campaign.SettingsVersion = expectedVersion + 1
	return campaign, nil
}

// ReplaceSettings swaps in a complete settings document after validating
// its cross-field invariants.
func (s *campaignService) ReplaceSettings(ctx context.Context, campaignID string, settings Settings, expectedVersion int64) (*Campaign, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return s.mutateSettings(ctx, campaignID, expectedVersion, func(current *Settings) error {
		*current = settings
		return nil
	})
}

// --- Schema store ---

// AddCustomField appends a validated custom field definition.
func (s *campaignService) AddCustomField(ctx context.Context, campaignID string, def CustomFieldDefinition, expectedVersion int64) (*Campaign, error) {
	return s.mutateSettings(ctx, campaignID, expectedVersion, func(settings *Settings) error {
		return settings.AddCustomField(def)
	})
}

// ToggleSystemField flips a system field's active state.
func (s *campaignService) ToggleSystemField(ctx context.Context, campaignID, key string, expectedVersion int64) (*Campaign, error) {
	return s.mutateSettings(ctx, campaignID, expectedVersion, func(settings *Settings) error {
		return settings.ToggleSystemField(key)
	})
}

// ToggleCustomField flips a custom field's active state.
func (s *campaignService) ToggleCustomField(ctx context.Context, campaignID, key string, expectedVersion int64) (*Campaign, error) {
	return s.mutateSettings(ctx, campaignID, expectedVersion, func(settings *Settings) error {
		return settings.ToggleCustomField(key)
	})
}

// DeleteCustomField removes the custom field at the given position.
func (s *campaignService) DeleteCustomField(ctx context.Context, campaignID string, index int, expectedVersion int64) (*Campaign, error) {
	return s.mutateSettings(ctx, campaignID, expectedVersion, func(settings *Settings) error {
		return settings.DeleteCustomField(index)
	})
}

// ApplyPreset batch-adds the named platform preset's fields.
func (s *campaignService) ApplyPreset(ctx context.Context, campaignID, preset string, expectedVersion int64) (*Campaign, error) {
	keys := fields.Preset(preset)
	if keys == nil {
		return nil, apperror.NewBadRequest(fmt.Sprintf("unknown preset %q", preset))
	}
	return s.mutateSettings(ctx, campaignID, expectedVersion, func(settings *Settings) error {
		settings.ApplyPreset(keys)
		return nil
	})
}

// UpdateFieldAliases replaces a custom field's alias list in strict mode.
func (s *campaignService) UpdateFieldAliases(ctx context.Context, campaignID, key string, aliases []string, expectedVersion int64) (*Campaign, error) {
	return s.mutateSettings(ctx, campaignID, expectedVersion, func(settings *Settings) error {
		return settings.UpdateFieldAliases(key, aliases)
	})
}

// RecordDiscoveredKeys merges observed payload keys, retrying stale writes.
func (s *campaignService) RecordDiscoveredKeys(ctx context.Context, campaignID string, keys []string) error {
	var lastErr error
	for attempt := 0; attempt < discoveredKeysRetries; attempt++ {
		campaign, err := s.repo.FindByID(ctx, campaignID)
		if err != nil {
			return err
		}
		settings := campaign.Settings.Clone()
		settings.RecordDiscoveredKeys(keys)

		err = s.repo.ReplaceSettings(ctx, campaignID, settings, campaign.SettingsVersion)
		if err == nil {
			return nil
		}
		lastErr = err
		if apperror.SafeCode(err) != 409 {
			return err
		}
	}
	return lastErr
}

// --- Visibility matrix ---

// SetFieldVisibility sets a field's client-portal visibility.
func (s *campaignService) SetFieldVisibility(ctx context.Context, campaignID, key string, public bool, expectedVersion int64) (*Campaign, error) {
	return s.mutateSettings(ctx, campaignID, expectedVersion, func(settings *Settings) error {
		return settings.SetPublic(key, public)
	})
}

// --- Pipeline model ---

// AddStage appends a pipeline stage.
func (s *campaignService) AddStage(ctx context.Context, campaignID, name string, stageType StageType, color string, expectedVersion int64) (*Campaign, error) {
	return s.mutateSettings(ctx, campaignID, expectedVersion, func(settings *Settings) error {
		_, err := settings.AddStage(name, stageType, color)
		return err
	})
}

// MoveStage swaps a stage with its neighbor.
func (s *campaignService) MoveStage(ctx context.Context, campaignID string, index int, direction string, expectedVersion int64) (*Campaign, error) {
	return s.mutateSettings(ctx, campaignID, expectedVersion, func(settings *Settings) error {
		return settings.MoveStage(index, direction)
	})
}

// ReorderStages applies a full stage permutation.
func (s *campaignService) ReorderStages(ctx context.Context, campaignID string, stageIDs []string, expectedVersion int64) (*Campaign, error) {
	return s.mutateSettings(ctx, campaignID, expectedVersion, func(settings *Settings) error {
		return settings.ReorderStages(stageIDs)
	})
}

// DeleteStage removes a stage and migrates its leads to the stage that
// becomes the lowest-order one. The settings write commits first; the lead
// migration follows, so a concurrent editor conflict never strands leads on
// a half-deleted pipeline.
func (s *campaignService) DeleteStage(ctx context.Context, campaignID, stageID string, expectedVersion int64) (*Campaign, error) {
	campaign, err := s.mutateSettings(ctx, campaignID, expectedVersion, func(settings *Settings) error {
		return settings.DeleteStage(stageID)
	})
	if err != nil {
		return nil, err
	}

	fallback := campaign.Settings.DefaultStage()
	if s.migrator != nil && fallback != nil {
		if err := s.migrator.MoveLeadsToStage(ctx, campaignID, stageID, fallback.ID); err != nil {
			slog.Error("migrating leads off deleted stage failed",
				slog.String("campaign_id", campaignID),
				slog.String("stage_id", stageID),
				slog.String("fallback_stage_id", fallback.ID),
				slog.Any("error", err),
			)
		}
	}

	return campaign, nil
}

// UpdateStage renames or retypes a stage.
func (s *campaignService) UpdateStage(ctx context.Context, campaignID, stageID, name string, stageType StageType, expectedVersion int64) (*Campaign, error) {
	return s.mutateSettings(ctx, campaignID, expectedVersion, func(settings *Settings) error {
		return settings.UpdateStage(stageID, name, stageType)
	})
}

// --- Card layout ---

// UpdateCardLayout replaces the card layout.
func (s *campaignService) UpdateCardLayout(ctx context.Context, campaignID string, order []string, primary string, expectedVersion int64) (*Campaign, error) {
	return s.mutateSettings(ctx, campaignID, expectedVersion, func(settings *Settings) error {
		return settings.UpdateCardLayout(order, primary)
	})
}

// --- Stats ---

// RecomputeStats re-aggregates lead counters into the stats document.
// Appointment and won counts follow stage TYPE, so retyping a stage moves
// its leads between buckets on the next recompute.
func (s *campaignService) RecomputeStats(ctx context.Context, campaignID string) (*Stats, error) {
	if s.stats == nil {
		return nil, apperror.NewInternal(fmt.Errorf("stats source not wired"))
	}

	campaign, err := s.repo.FindByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	appointmentIDs := campaign.Settings.StageIDsOfType(StageAppointment)
	wonIDs := campaign.Settings.StageIDsOfType(StageWon)

	leads, appointments, sales, revenue, err := s.stats.AggregateStats(ctx, campaignID, appointmentIDs, wonIDs)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("aggregating stats: %w", err))
	}

	stats := Stats{
		Leads:        leads,
		Appointments: appointments,
		Sales:        sales,
		Revenue:      revenue,
		Spend:        campaign.Stats.Spend,
	}
	if stats.Spend > 0 {
		stats.ROAS = stats.Revenue / stats.Spend
	}

	if err := s.repo.UpdateStats(ctx, campaignID, stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
