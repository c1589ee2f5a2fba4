package ingest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/leadts/leadts/internal/apperror"
	"github.com/leadts/leadts/internal/fields"
	"github.com/leadts/leadts/internal/plugins/campaigns"
	"github.com/leadts/leadts/internal/plugins/leads"
)

const (
	// keyBytes is the number of random bytes in a generated webhook key.
	keyBytes = 32

	// keyPrefixLen covers the "lts_" marker plus the first hex characters,
	// enough to identify a key without exposing it.
	keyPrefixLen = 12

	// defaultRateLimit is the per-key requests-per-minute cap.
	defaultRateLimit = 60

	maxRateLimit = 1000
)

// IngestResult reports what happened to one webhook payload.
type IngestResult struct {
	Lead        *leads.Lead `json:"lead"`
	DroppedKeys []string    `json:"dropped_keys,omitempty"`
}

// IngestService handles webhook key management and lead ingestion.
type IngestService interface {
	CreateKey(ctx context.Context, campaignID, createdBy string, req CreateIngestKeyRequest) (*CreateIngestKeyResult, error)
	ListKeys(ctx context.Context, campaignID string) ([]IngestKey, error)
	SetKeyActive(ctx context.Context, id int, active bool) error
	RevokeKey(ctx context.Context, id int) error

	// AuthenticateKey validates a raw key (prefix lookup + bcrypt verify).
	AuthenticateKey(ctx context.Context, rawKey string) (*IngestKey, error)

	// Ingest records the payload's keys on the campaign schema, maps them
	// through field aliases, and creates the lead. Keys that map to nothing
	// are dropped, never rejected, so platform payload changes cannot break
	// a live webhook.
	Ingest(ctx context.Context, key *IngestKey, payload map[string]any) (*IngestResult, error)
}

// ingestService implements IngestService.
type ingestService struct {
	repo         IngestKeyRepository
	schema       SchemaRecorder
	leads        LeadCreator
	defaultLimit int
}

// NewIngestService creates a new ingest service. defaultLimit is the
// requests-per-minute assigned to keys created without one; zero or
// negative falls back to the built-in default.
func NewIngestService(repo IngestKeyRepository, schema SchemaRecorder, leadCreator LeadCreator, defaultLimit int) IngestService {
	if defaultLimit <= 0 {
		defaultLimit = defaultRateLimit
	}
	return &ingestService{
		repo:         repo,
		schema:       schema,
		leads:        leadCreator,
		defaultLimit: defaultLimit,
	}
}

// --- Key Management ---

// CreateKey generates a new webhook key with bcrypt-hashed storage. The
// plaintext is returned once and never persisted.
func (s *ingestService) CreateKey(ctx context.Context, campaignID, createdBy string, req CreateIngestKeyRequest) (*CreateIngestKeyResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.NewBadRequest("key name is required")
	}
	if campaignID == "" {
		return nil, apperror.NewBadRequest("campaign ID is required")
	}
	rateLimit := req.RateLimit
	if rateLimit <= 0 {
		rateLimit = s.defaultLimit
	}
	if rateLimit > maxRateLimit {
		return nil, apperror.NewBadRequest("rate limit cannot exceed 1000 requests per minute")
	}

	raw := make([]byte, keyBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("generating key: %w", err))
	}
	rawKey := "lts_" + hex.EncodeToString(raw)
	prefix := rawKey[:keyPrefixLen]

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing key: %w", err))
	}

	key := &IngestKey{
		KeyHash:    string(hash),
		KeyPrefix:  prefix,
		Name:       name,
		CampaignID: campaignID,
		CreatedBy:  createdBy,
		RateLimit:  rateLimit,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating ingest key: %w", err))
	}

	slog.Info("ingest key created",
		slog.String("prefix", prefix),
		slog.String("campaign_id", campaignID),
		slog.String("created_by", createdBy),
	)
	return &CreateIngestKeyResult{Key: key, RawKey: rawKey}, nil
}

// ListKeys returns a campaign's webhook keys.
func (s *ingestService) ListKeys(ctx context.Context, campaignID string) ([]IngestKey, error) {
	return s.repo.ListByCampaign(ctx, campaignID)
}

// SetKeyActive enables or disables a key without deleting it.
func (s *ingestService) SetKeyActive(ctx context.Context, id int, active bool) error {
	if err := s.repo.UpdateActive(ctx, id, active); err != nil {
		return err
	}
	slog.Info("ingest key toggled", slog.Int("id", id), slog.Bool("active", active))
	return nil
}

// RevokeKey permanently deletes a key.
func (s *ingestService) RevokeKey(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("ingest key revoked", slog.Int("id", id))
	return nil
}

// AuthenticateKey validates a raw key and returns the key record.
func (s *ingestService) AuthenticateKey(ctx context.Context, rawKey string) (*IngestKey, error) {
	if len(rawKey) < keyPrefixLen {
		return nil, apperror.NewUnauthorized("invalid api key")
	}

	key, err := s.repo.FindByPrefix(ctx, rawKey[:keyPrefixLen])
	if err != nil {
		return nil, apperror.NewUnauthorized("invalid api key")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)); err != nil {
		return nil, apperror.NewUnauthorized("invalid api key")
	}
	if !key.IsActive {
		return nil, apperror.NewForbidden("api key is deactivated")
	}
	return key, nil
}

// --- Ingestion ---

// Ingest processes one webhook payload into a lead.
func (s *ingestService) Ingest(ctx context.Context, key *IngestKey, payload map[string]any) (*IngestResult, error) {
	if len(payload) == 0 {
		return nil, apperror.NewBadRequest("empty payload")
	}

	// Record every observed key first so admins can later alias them, even
	// when this particular payload maps to nothing.
	discovered := make([]string, 0, len(payload))
	for raw := range payload {
		if derived := fields.DeriveKey(raw); derived != "" {
			discovered = append(discovered, derived)
		}
	}
	sort.Strings(discovered)
	if err := s.schema.RecordDiscoveredKeys(ctx, key.CampaignID, discovered); err != nil {
		slog.Warn("recording discovered keys",
			slog.String("campaign_id", key.CampaignID),
			slog.Any("error", err),
		)
	}

	campaign, err := s.schema.GetByID(ctx, key.CampaignID)
	if err != nil {
		return nil, err
	}

	data, notes, dropped := mapPayload(&campaign.Settings, payload)
	if len(data) == 0 {
		return nil, apperror.NewValidation("no payload key maps to a campaign field")
	}

	lead, err := s.leads.Create(ctx, key.CampaignID, leads.CreateLeadInput{
		Data:  data,
		Notes: notes,
	})
	if err != nil {
		return nil, err
	}

	go func() {
		if err := s.repo.UpdateLastUsed(context.Background(), key.ID); err != nil {
			slog.Warn("stamping ingest key", slog.Any("error", err))
		}
	}()

	slog.Info("lead ingested",
		slog.String("lead_id", lead.ID),
		slog.String("campaign_id", key.CampaignID),
		slog.Int("mapped_keys", len(data)),
		slog.Int("dropped_keys", len(dropped)),
	)
	return &IngestResult{Lead: lead, DroppedKeys: dropped}, nil
}

// mapPayload maps raw payload keys onto campaign field keys. Resolution
// order per key: derived key match, then alias match against the raw or
// derived form. A "notes" key becomes the lead's notes.
func mapPayload(settings *campaigns.Settings, payload map[string]any) (map[string]any, string, []string) {
	data := make(map[string]any, len(payload))
	var notes string
	var dropped []string

	for raw, value := range payload {
		derived := fields.DeriveKey(raw)
		if derived == "notes" {
			notes, _ = value.(string)
			continue
		}

		target := derived
		if settings.ResolveField(target) == nil {
			target = aliasTarget(settings, raw, derived)
		}
		if target == "" {
			dropped = append(dropped, derived)
			continue
		}
		// First writer wins when two raw keys map to the same field.
		if _, exists := data[target]; !exists {
			data[target] = value
		}
	}
	sort.Strings(dropped)
	return data, notes, dropped
}

// aliasTarget finds the field whose alias list carries the raw or derived
// key. Returns "" when nothing matches.
func aliasTarget(settings *campaigns.Settings, raw, derived string) string {
	matches := func(aliases []string) bool {
		for _, alias := range aliases {
			if alias == raw || alias == derived {
				return true
			}
		}
		return false
	}

	for _, d := range fields.System() {
		if matches(d.Aliases) {
			return d.Key
		}
	}
	for i := range settings.CustomFields {
		if matches(settings.CustomFields[i].Aliases) {
			return settings.CustomFields[i].Key
		}
	}
	return ""
}
