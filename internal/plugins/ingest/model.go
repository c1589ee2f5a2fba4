// Package ingest receives leads from external ad platforms and form tools
// over a webhook API. Callers authenticate with campaign-scoped API keys;
// incoming payload keys are recorded on the campaign schema and mapped
// through field aliases before the lead is created.
package ingest

import (
	"context"
	"time"

	"github.com/leadts/leadts/internal/plugins/campaigns"
	"github.com/leadts/leadts/internal/plugins/leads"
)

// IngestKey is a registered webhook credential, scoped to one campaign.
type IngestKey struct {
	ID         int        `json:"id"`
	KeyHash    string     `json:"-"` // Never exposed in JSON.
	KeyPrefix  string     `json:"key_prefix"`
	Name       string     `json:"name"`
	CampaignID string     `json:"campaign_id"`
	CreatedBy  string     `json:"created_by"`
	RateLimit  int        `json:"rate_limit"` // Requests per minute.
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CreateIngestKeyRequest holds the data for registering a webhook key.
type CreateIngestKeyRequest struct {
	Name      string `json:"name"`
	RateLimit int    `json:"rate_limit"`
}

// CreateIngestKeyResult carries the plaintext key, shown exactly once at
// creation and never stored.
type CreateIngestKeyResult struct {
	Key    *IngestKey `json:"key"`
	RawKey string     `json:"raw_key"`
}

// --- Cross-Plugin Interfaces ---

// SchemaRecorder merges observed payload keys into the campaign schema and
// serves the campaign for mapping. Satisfied by campaigns.CampaignService.
type SchemaRecorder interface {
	GetByID(ctx context.Context, id string) (*campaigns.Campaign, error)
	RecordDiscoveredKeys(ctx context.Context, campaignID string, keys []string) error
}

// LeadCreator creates the mapped lead. Satisfied by leads.LeadService.
type LeadCreator interface {
	Create(ctx context.Context, campaignID string, input leads.CreateLeadInput) (*leads.Lead, error)
}
