// Package leads manages the leads flowing through a campaign's pipeline.
// A lead's field values live in a schemaless data bag validated against the
// campaign's field schema on every write; pipeline position is a stage id
// from the campaign settings. Stage transitions fire the automation engine
// before the write call returns.
package leads

import (
	"context"
	"time"

	"github.com/leadts/leadts/internal/plugins/campaigns"
)

// Lead is one captured lead. Data maps field keys to values; the campaign's
// schema decides which keys exist and how values are typed. Values for
// deleted custom fields stay in the bag but become unreachable through forms.
type Lead struct {
	ID         string         `json:"id"`
	CampaignID string         `json:"campaign_id"`
	StageID    string         `json:"stage_id"`
	Data       map[string]any `json:"data"`
	Notes      string         `json:"notes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Revenue returns the lead's revenue value as a float, 0 when absent or
// not numeric.
func (l *Lead) Revenue() float64 {
	switch v := l.Data["revenue"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// --- Cross-Plugin Interfaces ---

// CampaignSource loads the campaign whose schema governs a lead write.
// Satisfied by campaigns.CampaignService; declared here so tests and future
// callers only need this one method.
type CampaignSource interface {
	GetByID(ctx context.Context, id string) (*campaigns.Campaign, error)
}

// AutomationNotifier receives lead lifecycle events. Implemented by the
// automation engine and wired in app setup; nil means no automations run.
// Both calls are synchronous: delivery outcomes are recorded before the
// originating request returns.
type AutomationNotifier interface {
	LeadCreated(ctx context.Context, campaign *campaigns.Campaign, lead *Lead)
	StageChanged(ctx context.Context, campaign *campaigns.Campaign, lead *Lead, fromStageID string)
}

// --- Request DTOs (bound from HTTP requests) ---

// CreateLeadRequest holds the data for creating a lead.
type CreateLeadRequest struct {
	StageID string         `json:"stage_id"`
	Data    map[string]any `json:"data"`
	Notes   string         `json:"notes"`
}

// UpdateLeadRequest holds the mutable lead attributes. Data keys present in
// the map are written; keys absent are left alone.
type UpdateLeadRequest struct {
	Data  map[string]any `json:"data"`
	Notes *string        `json:"notes"`
}

// MoveLeadRequest moves a lead to another pipeline stage.
type MoveLeadRequest struct {
	StageID string `json:"stage_id"`
}

// ListOptions holds pagination and filtering for lead queries.
type ListOptions struct {
	Page    int
	PerPage int
	StageID string
}

// DefaultListOptions returns sensible defaults for pagination.
func DefaultListOptions() ListOptions {
	return ListOptions{Page: 1, PerPage: 50}
}

// Offset returns the SQL OFFSET value for the current page.
func (o ListOptions) Offset() int {
	if o.Page < 1 {
		o.Page = 1
	}
	return (o.Page - 1) * o.PerPage
}
