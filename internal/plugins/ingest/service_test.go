package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leadts/leadts/internal/apperror"
	"github.com/leadts/leadts/internal/fields"
	"github.com/leadts/leadts/internal/plugins/campaigns"
	"github.com/leadts/leadts/internal/plugins/leads"
)

// mockKeyRepo stores keys in memory.
type mockKeyRepo struct {
	keys       map[int]*IngestKey
	nextID     int
	lastUsedID int
}

func newMockKeyRepo() *mockKeyRepo {
	return &mockKeyRepo{keys: map[int]*IngestKey{}, nextID: 1}
}

func (m *mockKeyRepo) Create(ctx context.Context, key *IngestKey) error {
	key.ID = m.nextID
	m.nextID++
	m.keys[key.ID] = key
	return nil
}

func (m *mockKeyRepo) FindByID(ctx context.Context, id int) (*IngestKey, error) {
	if k, ok := m.keys[id]; ok {
		return k, nil
	}
	return nil, apperror.NewNotFound("ingest key not found")
}

func (m *mockKeyRepo) FindByPrefix(ctx context.Context, prefix string) (*IngestKey, error) {
	for _, k := range m.keys {
		if k.KeyPrefix == prefix {
			return k, nil
		}
	}
	return nil, apperror.NewNotFound("ingest key not found")
}

func (m *mockKeyRepo) ListByCampaign(ctx context.Context, campaignID string) ([]IngestKey, error) {
	var out []IngestKey
	for _, k := range m.keys {
		if k.CampaignID == campaignID {
			out = append(out, *k)
		}
	}
	return out, nil
}

func (m *mockKeyRepo) UpdateActive(ctx context.Context, id int, active bool) error {
	k, ok := m.keys[id]
	if !ok {
		return apperror.NewNotFound("ingest key not found")
	}
	k.IsActive = active
	return nil
}

func (m *mockKeyRepo) UpdateLastUsed(ctx context.Context, id int) error {
	m.lastUsedID = id
	return nil
}

func (m *mockKeyRepo) Delete(ctx context.Context, id int) error {
	if _, ok := m.keys[id]; !ok {
		return apperror.NewNotFound("ingest key not found")
	}
	delete(m.keys, id)
	return nil
}

// mockSchema serves one campaign and records discovered keys.
type mockSchema struct {
	campaign   *campaigns.Campaign
	discovered []string
}

func (m *mockSchema) GetByID(ctx context.Context, id string) (*campaigns.Campaign, error) {
	if m.campaign == nil || m.campaign.ID != id {
		return nil, apperror.NewNotFound("campaign not found")
	}
	return m.campaign, nil
}

func (m *mockSchema) RecordDiscoveredKeys(ctx context.Context, campaignID string, keys []string) error {
	m.discovered = append(m.discovered, keys...)
	return nil
}

// mockLeadCreator captures the input it was called with.
type mockLeadCreator struct {
	input leads.CreateLeadInput
	err   error
}

func (m *mockLeadCreator) Create(ctx context.Context, campaignID string, input leads.CreateLeadInput) (*leads.Lead, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.input = input
	return &leads.Lead{ID: "lead-1", CampaignID: campaignID, Data: input.Data, Notes: input.Notes, CreatedAt: time.Now()}, nil
}

func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

func testCampaign() *campaigns.Campaign {
	return &campaigns.Campaign{
		ID:   "camp-1",
		Name: "Spring Promo",
		Settings: campaigns.Settings{
			ActiveSystemFields: []string{"full_name", "email", "tel"},
			CustomFields: []campaigns.CustomFieldDefinition{
				{
					Key:      "budget",
					Name:     "Budget",
					Type:     fields.TypeNumber,
					IsActive: true,
					Aliases:  []string{"monthly_budget", "spend"},
				},
			},
		},
	}
}

func testRig() (IngestService, *mockKeyRepo, *mockSchema, *mockLeadCreator) {
	repo := newMockKeyRepo()
	schema := &mockSchema{campaign: testCampaign()}
	creator := &mockLeadCreator{}
	return NewIngestService(repo, schema, creator, 0), repo, schema, creator
}

func TestCreateKey_ReturnsPlaintextOnce(t *testing.T) {
	svc, repo, _, _ := testRig()

	result, err := svc.CreateKey(context.Background(), "camp-1", "user-1", CreateIngestKeyRequest{Name: "Meta Ads"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(result.RawKey, "lts_") {
		t.Errorf("raw key must carry the lts_ marker: %q", result.RawKey)
	}
	if result.Key.KeyPrefix != result.RawKey[:keyPrefixLen] {
		t.Errorf("stored prefix %q does not match raw key", result.Key.KeyPrefix)
	}
	if result.Key.RateLimit != defaultRateLimit {
		t.Errorf("expected default rate limit, got %d", result.Key.RateLimit)
	}
	stored := repo.keys[result.Key.ID]
	if stored.KeyHash == result.RawKey || strings.Contains(stored.KeyHash, result.RawKey) {
		t.Error("plaintext key must not be stored")
	}
}

func TestCreateKey_Validation(t *testing.T) {
	svc, _, _, _ := testRig()

	if _, err := svc.CreateKey(context.Background(), "camp-1", "user-1", CreateIngestKeyRequest{Name: "   "}); err == nil {
		t.Error("expected error for blank name")
	}
	_, err := svc.CreateKey(context.Background(), "camp-1", "user-1", CreateIngestKeyRequest{Name: "Hot", RateLimit: 5000})
	assertAppError(t, err, 400)
}

func TestAuthenticateKey(t *testing.T) {
	svc, _, _, _ := testRig()

	result, err := svc.CreateKey(context.Background(), "camp-1", "user-1", CreateIngestKeyRequest{Name: "Meta Ads"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	key, err := svc.AuthenticateKey(context.Background(), result.RawKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.ID != result.Key.ID {
		t.Errorf("authenticated wrong key: %d", key.ID)
	}
}

func TestAuthenticateKey_WrongKey(t *testing.T) {
	svc, _, _, _ := testRig()

	result, err := svc.CreateKey(context.Background(), "camp-1", "user-1", CreateIngestKeyRequest{Name: "Meta Ads"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same prefix, different tail. The bcrypt check must still fail.
	forged := result.RawKey[:keyPrefixLen] + strings.Repeat("0", len(result.RawKey)-keyPrefixLen)
	_, err = svc.AuthenticateKey(context.Background(), forged)
	assertAppError(t, err, 401)

	_, err = svc.AuthenticateKey(context.Background(), "short")
	assertAppError(t, err, 401)
}

func TestAuthenticateKey_Inactive(t *testing.T) {
	svc, _, _, _ := testRig()

	result, err := svc.CreateKey(context.Background(), "camp-1", "user-1", CreateIngestKeyRequest{Name: "Meta Ads"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.SetKeyActive(context.Background(), result.Key.ID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.AuthenticateKey(context.Background(), result.RawKey)
	assertAppError(t, err, 403)
}

func ingestKey() *IngestKey {
	return &IngestKey{ID: 7, CampaignID: "camp-1", Name: "Meta Ads", RateLimit: 60, IsActive: true}
}

func TestIngest_MapsDirectKeys(t *testing.T) {
	svc, _, _, creator := testRig()

	result, err := svc.Ingest(context.Background(), ingestKey(), map[string]any{
		"full_name": "Maria Weber",
		"email":     "maria@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creator.input.Data["full_name"] != "Maria Weber" {
		t.Errorf("full_name not mapped: %v", creator.input.Data)
	}
	if len(result.DroppedKeys) != 0 {
		t.Errorf("nothing should be dropped: %v", result.DroppedKeys)
	}
}

func TestIngest_NormalizesRawNames(t *testing.T) {
	svc, _, _, creator := testRig()

	// Platform payloads arrive with display names, not keys.
	_, err := svc.Ingest(context.Background(), ingestKey(), map[string]any{
		"Full Name": "Maria Weber",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creator.input.Data["full_name"] != "Maria Weber" {
		t.Errorf("display name not normalized onto full_name: %v", creator.input.Data)
	}
}

func TestIngest_MapsAliases(t *testing.T) {
	svc, _, _, creator := testRig()

	_, err := svc.Ingest(context.Background(), ingestKey(), map[string]any{
		"phone_number":   "+49 151 1234567", // System alias of tel.
		"monthly_budget": 2500,              // Custom alias of budget.
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creator.input.Data["tel"] != "+49 151 1234567" {
		t.Errorf("phone_number alias not mapped to tel: %v", creator.input.Data)
	}
	if creator.input.Data["budget"] != 2500 {
		t.Errorf("monthly_budget alias not mapped to budget: %v", creator.input.Data)
	}
}

func TestIngest_DropsUnknownKeysButRecordsThem(t *testing.T) {
	svc, _, schema, creator := testRig()

	result, err := svc.Ingest(context.Background(), ingestKey(), map[string]any{
		"email":       "maria@example.com",
		"ad_set_name": "Lookalike 2%",
		"fbclid":      "IwAR0abc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := creator.input.Data["ad_set_name"]; ok {
		t.Error("unknown key must not reach the lead")
	}
	if len(result.DroppedKeys) != 2 {
		t.Errorf("expected 2 dropped keys, got %v", result.DroppedKeys)
	}

	// Unknown keys still land in the campaign's discovered list so an
	// admin can alias them later.
	joined := strings.Join(schema.discovered, ",")
	for _, want := range []string{"ad_set_name", "fbclid", "email"} {
		if !strings.Contains(joined, want) {
			t.Errorf("discovered keys missing %q: %v", want, schema.discovered)
		}
	}
}

func TestIngest_NotesExtracted(t *testing.T) {
	svc, _, _, creator := testRig()

	_, err := svc.Ingest(context.Background(), ingestKey(), map[string]any{
		"email": "maria@example.com",
		"notes": "Asked for a callback on Monday",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creator.input.Notes != "Asked for a callback on Monday" {
		t.Errorf("notes not extracted: %q", creator.input.Notes)
	}
	if _, ok := creator.input.Data["notes"]; ok {
		t.Error("notes must not remain in the field data")
	}
}

func TestIngest_NothingMapped(t *testing.T) {
	svc, _, _, _ := testRig()

	_, err := svc.Ingest(context.Background(), ingestKey(), map[string]any{
		"fbclid": "IwAR0abc",
	})
	assertAppError(t, err, 422)
}

func TestIngest_EmptyPayload(t *testing.T) {
	svc, _, _, _ := testRig()

	_, err := svc.Ingest(context.Background(), ingestKey(), map[string]any{})
	assertAppError(t, err, 400)
}
