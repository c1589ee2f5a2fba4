// Package campaigns manages marketing campaigns and their settings aggregate:
// the field schema, pipeline stages, card layout, visibility rules, and
// integration configuration that drive the lead dashboard.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package campaigns

import (
	"context"
	"time"

	"github.com/leadts/leadts/internal/fields"
)

// --- Status ---

// Status is a campaign's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// IsValid returns true if this is a recognized campaign status.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusPaused || s == StatusCompleted
}

// --- Stage types ---

// StageType is a pipeline stage's semantic classification. Automation and
// stats key off the type, never the stage's name or position, so renaming
// and reordering stages can never break workflows.
type StageType string

const (
	StageStandard    StageType = "standard"
	StageAppointment StageType = "appointment"
	StageWon         StageType = "won"
	StageLost        StageType = "lost"
)

// IsValid returns true if this is a recognized stage type.
func (t StageType) IsValid() bool {
	switch t {
	case StageStandard, StageAppointment, StageWon, StageLost:
		return true
	}
	return false
}

// DefaultColor returns the color token assigned to new stages of this type
// when the caller does not override it.
func (t StageType) DefaultColor() string {
	switch t {
	case StageWon:
		return "green"
	case StageLost:
		return "rose"
	case StageAppointment:
		return "purple"
	default:
		return "neutral"
	}
}

// --- Automation event names ---

// Event names key the per-channel enable flags and templates inside
// IntegrationSettings. The automation plugin evaluates these on lead
// creation and stage changes.
const (
	EventNewLead            = "new_lead"
	EventWonDeal            = "won_deal"
	EventAppointmentBooked  = "appointment_booked"
	EventLeadLost           = "lead_lost"
	EventNewLeadAlert       = "new_lead_alert"
	EventAppointmentConfirm = "appointment_confirmation_customer"
	EventLeadOnCreate       = "lead_on_create"
	EventPurchaseOnWon      = "purchase_on_won"
)

// --- Domain Models ---

// Campaign is the top-level unit of work an agency runs for a client. All
// lead-dashboard configuration hangs off its Settings aggregate.
type Campaign struct {
	ID         string     `json:"id"`
	ClientID   string     `json:"client_id"`
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	Budget     float64    `json:"budget"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	IsTemplate bool       `json:"is_template"`
	Stats      Stats      `json:"stats"`
	Settings   Settings   `json:"settings"`

	// SettingsVersion is the optimistic concurrency token for settings
	// writes. Incremented on every successful settings replace; a caller
	// holding a stale version gets a stale_settings_write error.
	SettingsVersion int64 `json:"settings_version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats are pre-aggregated campaign counters. Recomputed from the lead table
// on demand, never derived live in read paths.
type Stats struct {
	Leads        int     `json:"leads"`
	Appointments int     `json:"appointments"`
	Sales        int     `json:"sales"`
	Revenue      float64 `json:"revenue"`
	Spend        float64 `json:"spend"`
	ROAS         float64 `json:"roas"`
}

// CustomFieldDefinition is a user-created lead field scoped to one campaign.
// The key is derived from the name at creation time and immutable afterwards.
type CustomFieldDefinition struct {
	Key        string            `json:"key"`
	Name       string            `json:"name"`
	Type       fields.FieldType  `json:"type"`
	Required   bool              `json:"required"`
	IsActive   bool              `json:"is_active"`
	InView     bool              `json:"in_view"`
	Visibility fields.Visibility `json:"visibility"`
	Aliases    []string          `json:"aliases"`
	Options    []string          `json:"options,omitempty"`
}

// PipelineStage is one column of the campaign's kanban pipeline. Order is
// 0-based and dense: after every mutation the stages sorted by order form
// the contiguous sequence 0..N-1.
type PipelineStage struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color"`
	Order int       `json:"order"`
	Type  StageType `json:"type"`
}

// SlackEventConfig is the per-event Slack configuration.
type SlackEventConfig struct {
	Enabled  bool   `json:"enabled"`
	Template string `json:"template"`
}

// SlackSettings configure the Slack integration. WebhookURL and Channel are
// connection secrets and cleared on duplication; the event flags and
// templates are workflow logic and survive it.
type SlackSettings struct {
	Enabled    bool                        `json:"enabled"`
	WebhookURL string                      `json:"webhook_url"`
	Channel    string                      `json:"channel"`
	Events     map[string]SlackEventConfig `json:"events"`
}

// EmailSettings configure the email notification integration.
type EmailSettings struct {
	Enabled    bool            `json:"enabled"`
	Recipients []string        `json:"recipients"`
	Events     map[string]bool `json:"events"`
}

// MetaSettings configure the Meta Conversions API integration.
type MetaSettings struct {
	Enabled     bool            `json:"enabled"`
	PixelID     string          `json:"pixel_id"`
	AccessToken string          `json:"access_token"`
	TestCode    string          `json:"test_code"`
	Events      map[string]bool `json:"events"`
}

// IntegrationSettings groups the outbound channel configurations.
type IntegrationSettings struct {
	Slack SlackSettings `json:"slack"`
	Email EmailSettings `json:"email"`
	Meta  MetaSettings  `json:"meta"`
}

// ClientViewConfig controls what the client portal shows for this campaign.
type ClientViewConfig struct {
	ShowPipeline bool `json:"show_pipeline"`
	ShowStats    bool `json:"show_stats"`
	ShowNotes    bool `json:"show_notes"`
}

// Settings is the campaign configuration aggregate. It is always replaced
// wholesale: callers read the current value, mutate a copy, and write it back
// with the version they read. Field-level patching is never done.
type Settings struct {
	ActiveSystemFields []string                `json:"active_system_fields"`
	PublicSystemFields []string                `json:"public_system_fields"`
	CustomFields       []CustomFieldDefinition `json:"custom_fields"`
	PipelineStages     []PipelineStage         `json:"pipeline_stages"`
	CardFieldOrder     []string                `json:"card_field_order"`
	CardPrimaryField   string                  `json:"card_primary_field"`
	DiscoveredFields   []string                `json:"discovered_fields"`
	Integrations       IntegrationSettings     `json:"integrations"`
	ClientView         ClientViewConfig        `json:"client_view"`
}

// --- Cross-Plugin Interfaces ---

// LeadMigrator moves leads between stages when a stage is deleted. Avoids
// importing the leads plugin's types directly. Implemented by the leads
// service and wired in app setup.
type LeadMigrator interface {
	MoveLeadsToStage(ctx context.Context, campaignID, fromStageID, toStageID string) error
}

// StatsSource aggregates lead counters for stats recomputation. Implemented
// by the leads repository.
type StatsSource interface {
	AggregateStats(ctx context.Context, campaignID string, appointmentStageIDs, wonStageIDs []string) (leads, appointments, sales int, revenue float64, err error)
}

// --- Request DTOs (bound from HTTP requests) ---

// CreateCampaignRequest holds the data for creating a campaign.
type CreateCampaignRequest struct {
	ClientID   string  `json:"client_id"`
	Name       string  `json:"name"`
	Budget     float64 `json:"budget"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	TemplateID string  `json:"template_id"`
}

// UpdateCampaignRequest holds the mutable top-level campaign attributes.
type UpdateCampaignRequest struct {
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Budget    float64 `json:"budget"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	Spend     float64 `json:"spend"`
}

// DuplicateCampaignRequest holds the data for duplicating a campaign.
type DuplicateCampaignRequest struct {
	Name       string `json:"name"`
	AsTemplate bool   `json:"as_template"`
}

// ReplaceSettingsRequest carries a full settings document plus the version
// the caller read it at.
type ReplaceSettingsRequest struct {
	Settings        Settings `json:"settings"`
	SettingsVersion int64    `json:"settings_version"`
}

// AddCustomFieldRequest holds the data for adding a custom field.
type AddCustomFieldRequest struct {
	Key             string   `json:"key"`
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	Required        bool     `json:"required"`
	Visibility      string   `json:"visibility"`
	Options         []string `json:"options"`
	SettingsVersion int64    `json:"settings_version"`
}

// ToggleFieldRequest identifies a field to toggle.
type ToggleFieldRequest struct {
	Key             string `json:"key"`
	SettingsVersion int64  `json:"settings_version"`
}

// SetVisibilityRequest sets a field's client-portal visibility.
type SetVisibilityRequest struct {
	Key             string `json:"key"`
	Public          bool   `json:"public"`
	SettingsVersion int64  `json:"settings_version"`
}

// ApplyPresetRequest names a platform preset to apply.
type ApplyPresetRequest struct {
	Preset          string `json:"preset"`
	SettingsVersion int64  `json:"settings_version"`
}

// UpdateAliasesRequest replaces a field's alias list.
type UpdateAliasesRequest struct {
	Key             string   `json:"key"`
	Aliases         []string `json:"aliases"`
	SettingsVersion int64    `json:"settings_version"`
}

// AddStageRequest holds the data for adding a pipeline stage.
type AddStageRequest struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	Color           string `json:"color"`
	SettingsVersion int64  `json:"settings_version"`
}

// MoveStageRequest moves a stage one position up or down.
type MoveStageRequest struct {
	Index           int    `json:"index"`
	Direction       string `json:"direction"`
	SettingsVersion int64  `json:"settings_version"`
}

// ReorderStagesRequest applies a full permutation of stage ids.
type ReorderStagesRequest struct {
	StageIDs        []string `json:"stage_ids"`
	SettingsVersion int64    `json:"settings_version"`
}

// UpdateStageRequest renames or retypes a stage.
type UpdateStageRequest struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	SettingsVersion int64  `json:"settings_version"`
}

// UpdateCardLayoutRequest replaces the card layout.
type UpdateCardLayoutRequest struct {
	CardFieldOrder   []string `json:"card_field_order"`
	CardPrimaryField string   `json:"card_primary_field"`
	SettingsVersion  int64    `json:"settings_version"`
}

// ListOptions holds pagination parameters for list queries.
type ListOptions struct {
	Page    int
	PerPage int
}

// DefaultListOptions returns sensible defaults for pagination.
func DefaultListOptions() ListOptions {
	return ListOptions{Page: 1, PerPage: 24}
}

// Offset returns the SQL OFFSET value for the current page.
func (o ListOptions) Offset() int {
	if o.Page < 1 {
		o.Page = 1
	}
	return (o.Page - 1) * o.PerPage
}
