package campaigns

import (
	"context"
	"testing"
	"time"

	"github.com/leadts/leadts/internal/apperror"
	"github.com/leadts/leadts/internal/fields"
)

// --- Mock Repository ---

// mockCampaignRepo implements CampaignRepository for testing.
type mockCampaignRepo struct {
	createFn          func(ctx context.Context, campaign *Campaign) error
	findByIDFn        func(ctx context.Context, id string) (*Campaign, error)
	listFn            func(ctx context.Context, opts ListOptions) ([]Campaign, int, error)
	listByClientFn    func(ctx context.Context, clientID string, opts ListOptions) ([]Campaign, int, error)
	listTemplatesFn   func(ctx context.Context) ([]Campaign, error)
	updateFn          func(ctx context.Context, campaign *Campaign) error
	deleteFn          func(ctx context.Context, id string) error
	countAllFn        func(ctx context.Context) (int, error)
	replaceSettingsFn func(ctx context.Context, campaignID string, settings Settings, expectedVersion int64) error
	updateStatsFn     func(ctx context.Context, campaignID string, stats Stats) error
}

func (m *mockCampaignRepo) Create(ctx context.Context, campaign *Campaign) error {
	if m.createFn != nil {
		return m.createFn(ctx, campaign)
	}
	return nil
}

func (m *mockCampaignRepo) FindByID(ctx context.Context, id string) (*Campaign, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("campaign not found")
}

func (m *mockCampaignRepo) List(ctx context.Context, opts ListOptions) ([]Campaign, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, opts)
	}
	return nil, 0, nil
}

func (m *mockCampaignRepo) ListByClient(ctx context.Context, clientID string, opts ListOptions) ([]Campaign, int, error) {
	if m.listByClientFn != nil {
		return m.listByClientFn(ctx, clientID, opts)
	}
	return nil, 0, nil
}

func (m *mockCampaignRepo) ListTemplates(ctx context.Context) ([]Campaign, error) {
	if m.listTemplatesFn != nil {
		return m.listTemplatesFn(ctx)
	}
	return nil, nil
}

func (m *mockCampaignRepo) Update(ctx context.Context, campaign *Campaign) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, campaign)
	}
	return nil
}

func (m *mockCampaignRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockCampaignRepo) CountAll(ctx context.Context) (int, error) {
	if m.countAllFn != nil {
		return m.countAllFn(ctx)
	}
	return 0, nil
}

func (m *mockCampaignRepo) ReplaceSettings(ctx context.Context, campaignID string, settings Settings, expectedVersion int64) error {
	if m.replaceSettingsFn != nil {
		return m.replaceSettingsFn(ctx, campaignID, settings, expectedVersion)
	}
	return nil
}

func (m *mockCampaignRepo) UpdateStats(ctx context.Context, campaignID string, stats Stats) error {
	if m.updateStatsFn != nil {
		return m.updateStatsFn(ctx, campaignID, stats)
	}
	return nil
}

// --- Mock Lead Collaborators ---

type mockMigrator struct {
	moveFn func(ctx context.Context, campaignID, fromStageID, toStageID string) error
	calls  []string
}

func (m *mockMigrator) MoveLeadsToStage(ctx context.Context, campaignID, fromStageID, toStageID string) error {
	m.calls = append(m.calls, fromStageID+"->"+toStageID)
	if m.moveFn != nil {
		return m.moveFn(ctx, campaignID, fromStageID, toStageID)
	}
	return nil
}

type mockStatsSource struct {
	aggregateFn func(ctx context.Context, campaignID string, appointmentStageIDs, wonStageIDs []string) (int, int, int, float64, error)
}

func (m *mockStatsSource) AggregateStats(ctx context.Context, campaignID string, appointmentStageIDs, wonStageIDs []string) (int, int, int, float64, error) {
	if m.aggregateFn != nil {
		return m.aggregateFn(ctx, campaignID, appointmentStageIDs, wonStageIDs)
	}
	return 0, 0, 0, 0, nil
}

// --- Test Helpers ---

// testCampaign builds a stored campaign with default settings.
func testCampaign(id string) *Campaign {
	now := time.Now().UTC()
	return &Campaign{
		ID:              id,
		ClientID:        "client-1",
		Name:            "Spring Push",
		Status:          StatusActive,
		Budget:          5000,
		StartDate:       now,
		Settings:        DefaultSettings(),
		SettingsVersion: 3,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// newTestServiceWith returns a campaignService over the mock repo.
func newTestServiceWith(repo *mockCampaignRepo) *campaignService {
	return &campaignService{repo: repo}
}

// --- Create Tests ---

func TestCreate_Defaults(t *testing.T) {
	repo := &mockCampaignRepo{
		createFn: func(ctx context.Context, campaign *Campaign) error {
			if campaign.Status != StatusActive {
				t.Errorf("expected active status, got %s", campaign.Status)
			}
			if campaign.SettingsVersion != 0 {
				t.Errorf("expected version 0, got %d", campaign.SettingsVersion)
			}
			if len(campaign.Settings.PipelineStages) != 5 {
				t.Errorf("expected 5 default stages, got %d", len(campaign.Settings.PipelineStages))
			}
			if campaign.Settings.CardPrimaryField != "full_name" {
				t.Errorf("expected full_name primary, got %s", campaign.Settings.CardPrimaryField)
			}
			return nil
		},
	}

	svc := newTestServiceWith(repo)
	campaign, err := svc.Create(context.Background(), CreateCampaignInput{
		ClientID: "client-1",
		Name:     "Spring Push",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if campaign.ID == "" {
		t.Error("expected generated campaign id")
	}
	if campaign.Stats != (Stats{}) {
		t.Error("new campaign must start with zero stats")
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestServiceWith(&mockCampaignRepo{})

	_, err := svc.Create(context.Background(), CreateCampaignInput{ClientID: "client-1"})
	assertAppError(t, err, 400)

	_, err = svc.Create(context.Background(), CreateCampaignInput{Name: "No Client"})
	assertAppError(t, err, 400)
}

func TestCreate_FromTemplate(t *testing.T) {
	template := testCampaign("tpl-1")
	template.IsTemplate = true
	template.Settings.Integrations.Slack.WebhookURL = "https://hooks.slack.com/services/secret"
	template.Settings.Integrations.Slack.Events[EventNewLead] = SlackEventConfig{Enabled: true, Template: "Tpl: {full_name}"}

	repo := &mockCampaignRepo{
		findByIDFn: func(ctx context.Context, id string) (*Campaign, error) {
			if id == "tpl-1" {
				return template, nil
			}
			return nil, apperror.NewNotFound("campaign not found")
		},
		createFn: func(ctx context.Context, campaign *Campaign) error {
			if campaign.Settings.Integrations.Slack.WebhookURL != "" {
				t.Error("template secrets must not leak into the new campaign")
			}
			ev := campaign.Settings.Integrations.Slack.Events[EventNewLead]
			if !ev.Enabled || ev.Template != "Tpl: {full_name}" {
				t.Error("template workflow config must carry over")
			}
			return nil
		},
	}

	svc := newTestServiceWith(repo)
	_, err := svc.Create(context.Background(), CreateCampaignInput{
		ClientID:   "client-2",
		Name:       "From Template",
		TemplateID: "tpl-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreate_TemplateIDMustBeTemplate(t *testing.T) {
	repo := &mockCampaignRepo{
		findByIDFn: func(ctx context.Context, id string) (*Campaign, error) {
			return testCampaign(id), nil // Not a template.
		},
	}

	svc := newTestServiceWith(repo)
	_, err := svc.Create(context.Background(), CreateCampaignInput{
		ClientID:   "client-1",
		Name:       "Bad",
		TemplateID: "camp-1",
	})
	assertAppError(t, err, 400)
}

// --- Duplicate Tests ---

func TestDuplicate(t *testing.T) {
	source := testCampaign("camp-1")
	source.Settings.Integrations.Slack.WebhookURL = "https://hooks.slack.com/services/secret"
	source.Settings.Integrations.Email.Recipients = []string{"sales@agency.example"}
	source.Settings.Integrations.Meta.AccessToken = "EAAB-token"
	source.Settings.Integrations.Meta.Events[EventLeadOnCreate] = true
	source.Stats = Stats{Leads: 42, Revenue: 90000}

	var created *Campaign
	repo := &mockCampaignRepo{
		findByIDFn: func(ctx context.Context, id string) (*Campaign, error) {
			return source, nil
		},
		createFn: func(ctx context.Context, campaign *Campaign) error {
			created = campaign
			return nil
		},
	}

	svc := newTestServiceWith(repo)
	dup, err := svc.Duplicate(context.Background(), "camp-1", "", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dup.ID == source.ID {
		t.Error("duplicate must get a fresh id")
	}
	if dup.Name != "Spring Push (Copy)" {
		t.Errorf("expected default copy name, got %s", dup.Name)
	}
	if dup.Status != StatusPaused {
		t.Errorf("duplicate must start paused, got %s", dup.Status)
	}
	if !dup.IsTemplate {
		t.Error("as_template flag not honored")
	}
	if dup.Stats != (Stats{}) {
		t.Error("duplicate must start with zero stats")
	}
	if created.Settings.Integrations.Slack.WebhookURL != "" ||
		len(created.Settings.Integrations.Email.Recipients) != 0 ||
		created.Settings.Integrations.Meta.AccessToken != "" {
		t.Error("connection secrets must be cleared on duplication")
	}
	if !created.Settings.Integrations.Meta.Events[EventLeadOnCreate] {
		t.Error("event flags must survive duplication")
	}

	// Source untouched.
	if source.Settings.Integrations.Slack.WebhookURL == "" {
		t.Error("duplication mutated the source settings")
	}
}

// --- Settings CAS Tests ---

func TestMutateSettings_StaleVersion(t *testing.T) {
	repo := &mockCampaignRepo{
		findByIDFn: func(ctx context.Context, id string) (*Campaign, error) {
			return testCampaign(id), nil
		},
		replaceSettingsFn: func(ctx context.Context, campaignID string, settings Settings, expectedVersion int64) error {
			return apperror.NewStaleSettingsWrite()
		},
	}

	svc := newTestServiceWith(repo)
	_, err := svc.AddStage(context.Background(), "camp-1", "Follow-up", StageStandard, "", 2)
	assertAppError(t, err, 409)
}

func TestMutateSettings_VersionIncrement(t *testing.T) {
	repo := &mockCampaignRepo{
		findByIDFn: func(ctx context.Context, id string) (*Campaign, error) {
			return testCampaign(id), nil
		},
		replaceSettingsFn: func(ctx context.Context, campaignID string, settings Settings, expectedVersion int64) error {
			if expectedVersion != 3 {
				t.Errorf("expected CAS guard 3, got %d", expectedVersion)
			}
			return nil
		},
	}

	svc := newTestServiceWith(repo)
	campaign, err := svc.AddStage(context.Background(), "camp-1", "Follow-up", StageStandard, "", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if campaign.SettingsVersion != 4 {
		t.Errorf("expected returned version 4, got %d", campaign.SettingsVersion)
	}
	if len(campaign.Settings.PipelineStages) != 6 {
		t.Errorf("expected 6 stages, got %d", len(campaign.Settings.PipelineStages))
	}
}

func TestMutateSettings_FailedOperationWritesNothing(t *testing.T) {
	writes := 0
	repo := &mockCampaignRepo{
		findByIDFn: func(ctx context.Context, id string) (*Campaign, error) {
			return testCampaign(id), nil
		},
		replaceSettingsFn: func(ctx context.Context, campaignID string, settings Settings, expectedVersion int64) error {
			writes++
			return nil
		},
	}

	svc := newTestServiceWith(repo)
	_, err := svc.AddCustomField(context.Background(), "camp-1",
		CustomFieldDefinition{Name: "Email", Type: fields.TypeText}, 3)
	assertAppError(t, err, 409)
	if writes != 0 {
		t.Error("a rejected mutation must never hit the repository")
	}
}

func TestApplyPreset_UnknownName(t *testing.T) {
	svc := newTestServiceWith(&mockCampaignRepo{})
	_, err := svc.ApplyPreset(context.Background(), "camp-1", "tiktok_ads", 0)
	assertAppError(t, err, 400)
}

func TestReplaceSettings_ValidatesFirst(t *testing.T) {
	writes := 0
	repo := &mockCampaignRepo{
		replaceSettingsFn: func(ctx context.Context, campaignID string, settings Settings, expectedVersion int64) error {
			writes++
			return nil
		},
	}

	svc := newTestServiceWith(repo)
	broken := DefaultSettings()
	broken.PipelineStages = nil

	_, err := svc.ReplaceSettings(context.Background(), "camp-1", broken, 0)
	assertAppError(t, err, 422)
	if writes != 0 {
		t.Error("invalid document must never reach the repository")
	}
}

func TestRecordDiscoveredKeys_RetriesStaleWrites(t *testing.T) {
	attempts := 0
	repo := &mockCampaignRepo{
		findByIDFn: func(ctx context.Context, id string) (*Campaign, error) {
			c := testCampaign(id)
			c.SettingsVersion = int64(3 + attempts)
			return c, nil
		},
		replaceSettingsFn: func(ctx context.Context, campaignID string, settings Settings, expectedVersion int64) error {
			attempts++
			if attempts < 3 {
				return apperror.NewStaleSettingsWrite()
			}
			return nil
		},
	}

	svc := newTestServiceWith(repo)
	if err := svc.RecordDiscoveredKeys(context.Background(), "camp-1", []string{"utm_source"}); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

// --- DeleteStage Tests ---

func TestDeleteStage_MigratesLeads(t *testing.T) {
	stored := testCampaign("camp-1")
	victim := stored.Settings.PipelineStages[0] // "New", the current default.
	expectedFallback := stored.Settings.PipelineStages[1].ID

	repo := &mockCampaignRepo{
		findByIDFn: func(ctx context.Context, id string) (*Campaign, error) {
			return stored, nil
		},
	}
	migrator := &mockMigrator{}

	svc := newTestServiceWith(repo)
	svc.migrator = migrator

	campaign, err := svc.DeleteStage(context.Background(), "camp-1", victim.ID, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(migrator.calls) != 1 {
		t.Fatalf("expected one migration call, got %d", len(migrator.calls))
	}
	if migrator.calls[0] != victim.ID+"->"+expectedFallback {
		t.Errorf("leads migrated to the wrong stage: %s", migrator.calls[0])
	}
	if campaign.Settings.DefaultStage().ID != expectedFallback {
		t.Error("the next-lowest stage must become the default")
	}
}

func TestDeleteStage_NoMigrationOnFailure(t *testing.T) {
	repo := &mockCampaignRepo{
		findByIDFn: func(ctx context.Context, id string) (*Campaign, error) {
			return testCampaign(id), nil
		},
	}
	migrator := &mockMigrator{}

	svc := newTestServiceWith(repo)
	svc.migrator = migrator

	_, err := svc.DeleteStage(context.Background(), "camp-1", "ghost-stage", 3)
	assertAppError(t, err, 422)
	if len(migrator.calls) != 0 {
		t.Error("a failed delete must never migrate leads")
	}
}

// --- RecomputeStats Tests ---

func TestRecomputeStats(t *testing.T) {
	stored := testCampaign("camp-1")
	stored.Stats.Spend = 2000

	var written Stats
	repo := &mockCampaignRepo{
		findByIDFn: func(ctx context.Context, id string) (*Campaign, error) {
			return stored, nil
		},
		updateStatsFn: func(ctx context.Context, campaignID string, stats Stats) error {
			written = stats
			return nil
		},
	}

	svc := newTestServiceWith(repo)
	svc.stats = &mockStatsSource{
		aggregateFn: func(ctx context.Context, campaignID string, appointmentStageIDs, wonStageIDs []string) (int, int, int, float64, error) {
			if len(appointmentStageIDs) != 1 || len(wonStageIDs) != 1 {
				t.Errorf("expected 1 appointment and 1 won stage id, got %d/%d",
					len(appointmentStageIDs), len(wonStageIDs))
			}
			return 40, 12, 5, 10000, nil
		},
	}

	stats, err := svc.RecomputeStats(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Leads != 40 || stats.Appointments != 12 || stats.Sales != 5 {
		t.Errorf("wrong counters: %+v", stats)
	}
	if stats.Spend != 2000 {
		t.Error("recompute must keep the manually entered spend")
	}
	if stats.ROAS != 5 {
		t.Errorf("expected ROAS 5 (10000/2000), got %f", stats.ROAS)
	}
	if written != *stats {
		t.Error("computed stats must be persisted")
	}
}

func TestRecomputeStats_ZeroSpendNoROAS(t *testing.T) {
	repo := &mockCampaignRepo{
		findByIDFn: func(ctx context.Context, id string) (*Campaign, error) {
			return testCampaign(id), nil
		},
	}

	svc := newTestServiceWith(repo)
	svc.stats = &mockStatsSource{
		aggregateFn: func(ctx context.Context, campaignID string, a, w []string) (int, int, int, float64, error) {
			return 10, 2, 1, 5000, nil
		},
	}

	stats, err := svc.RecomputeStats(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.ROAS != 0 {
		t.Errorf("ROAS must stay 0 when spend is 0, got %f", stats.ROAS)
	}
}
