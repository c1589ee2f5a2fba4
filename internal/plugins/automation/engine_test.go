package automation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leadts/leadts/internal/plugins/campaigns"
	"github.com/leadts/leadts/internal/plugins/leads"
)

// --- Mock Delivery Repository ---

type mockDeliveryRepo struct {
	claimFn func(ctx context.Context, d *Delivery) (bool, error)
	claimed []Delivery
	failed  []string
	skipped []string
}

func (m *mockDeliveryRepo) Claim(ctx context.Context, d *Delivery) (bool, error) {
	if m.claimFn != nil {
		return m.claimFn(ctx, d)
	}
	m.claimed = append(m.claimed, *d)
	return true, nil
}

func (m *mockDeliveryRepo) MarkFailed(ctx context.Context, d *Delivery, detail string) error {
	m.failed = append(m.failed, d.EventType+"/"+string(d.Channel))
	return nil
}

func (m *mockDeliveryRepo) RecordSkipped(ctx context.Context, d *Delivery, detail string) error {
	m.skipped = append(m.skipped, d.EventType+"/"+string(d.Channel))
	return nil
}

func (m *mockDeliveryRepo) ListByLead(ctx context.Context, leadID string) ([]Delivery, error) {
	return nil, nil
}

// --- Mock Senders ---

type mockSlack struct {
	err   error
	texts []string
}

func (m *mockSlack) Send(ctx context.Context, webhookURL, channel, text string) error {
	if m.err != nil {
		return m.err
	}
	m.texts = append(m.texts, text)
	return nil
}

type mockMail struct {
	err        error
	recipients [][]string
	subjects   []string
}

func (m *mockMail) Send(ctx context.Context, recipients []string, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.recipients = append(m.recipients, recipients)
	m.subjects = append(m.subjects, subject)
	return nil
}

type mockMeta struct {
	err    error
	events []ConversionEvent
}

func (m *mockMeta) SendEvent(ctx context.Context, event ConversionEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

// --- Test Fixtures ---

// wiredCampaign returns a campaign with every channel fully configured and
// every workflow event enabled.
func wiredCampaign() *campaigns.Campaign {
	settings := campaigns.DefaultSettings()
	settings.Integrations.Slack = campaigns.SlackSettings{
		Enabled:    true,
		WebhookURL: "https://hooks.slack.example/T000/B000/x",
		Channel:    "#leads",
		Events: map[string]campaigns.SlackEventConfig{
			campaigns.EventNewLead:           {Enabled: true},
			campaigns.EventWonDeal:           {Enabled: true},
			campaigns.EventAppointmentBooked: {Enabled: true},
			campaigns.EventLeadLost:          {Enabled: true},
		},
	}
	settings.Integrations.Email = campaigns.EmailSettings{
		Enabled:    true,
		Recipients: []string{"team@agency.example"},
		Events: map[string]bool{
			campaigns.EventNewLeadAlert:       true,
			campaigns.EventAppointmentConfirm: true,
		},
	}
	settings.Integrations.Meta = campaigns.MetaSettings{
		Enabled:     true,
		PixelID:     "987654",
		AccessToken: "token-abc",
		Events: map[string]bool{
			campaigns.EventLeadOnCreate:  true,
			campaigns.EventPurchaseOnWon: true,
		},
	}
	return &campaigns.Campaign{
		ID:       "camp-1",
		Name:     "Spring Push",
		Settings: settings,
	}
}

// stageOfType finds the first pipeline stage of the given type.
func stageOfType(t *testing.T, campaign *campaigns.Campaign, st campaigns.StageType) *campaigns.PipelineStage {
	t.Helper()
	for i := range campaign.Settings.PipelineStages {
		if campaign.Settings.PipelineStages[i].Type == st {
			return &campaign.Settings.PipelineStages[i]
		}
	}
	t.Fatalf("campaign has no stage of type %s", st)
	return nil
}

func testLead(campaign *campaigns.Campaign, stageID string) *leads.Lead {
	return &leads.Lead{
		ID:         "lead-1",
		CampaignID: campaign.ID,
		StageID:    stageID,
		Data: map[string]any{
			"full_name": "Jane Prospect",
			"email":     "jane@example.com",
			"revenue":   float64(1500),
		},
	}
}

type testRig struct {
	engine *Engine
	repo   *mockDeliveryRepo
	slack  *mockSlack
	mail   *mockMail
	meta   *mockMeta
}

func newTestRig() *testRig {
	rig := &testRig{
		repo:  &mockDeliveryRepo{},
		slack: &mockSlack{},
		mail:  &mockMail{},
		meta:  &mockMeta{},
	}
	rig.engine = NewEngine(rig.repo, rig.slack, rig.mail, rig.meta)
	return rig
}

func channelsClaimed(repo *mockDeliveryRepo) []string {
	out := make([]string, len(repo.claimed))
	for i, d := range repo.claimed {
		out[i] = d.EventType + "/" + string(d.Channel)
	}
	return out
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// --- Lead Created ---

func TestLeadCreated_AllChannels(t *testing.T) {
	rig := newTestRig()
	campaign := wiredCampaign()
	lead := testLead(campaign, campaign.Settings.DefaultStage().ID)

	rig.engine.LeadCreated(context.Background(), campaign, lead)

	got := channelsClaimed(rig.repo)
	for _, want := range []string{"new_lead/slack", "new_lead_alert/email", "lead_on_create/meta"} {
		if !contains(got, want) {
			t.Errorf("expected delivery %s, got %v", want, got)
		}
	}
	if len(rig.slack.texts) != 1 {
		t.Fatalf("expected 1 slack message, got %d", len(rig.slack.texts))
	}
	if rig.slack.texts[0] != "New lead: Jane Prospect" {
		t.Errorf("unexpected slack text: %q", rig.slack.texts[0])
	}
	if len(rig.mail.recipients) != 1 || rig.mail.recipients[0][0] != "team@agency.example" {
		t.Errorf("alert email must go to the configured recipients: %v", rig.mail.recipients)
	}
	if len(rig.meta.events) != 1 || rig.meta.events[0].EventName != "Lead" {
		t.Errorf("expected one Lead conversion event, got %v", rig.meta.events)
	}
}

func TestLeadCreated_DisabledIntegrationsFireNothing(t *testing.T) {
	rig := newTestRig()
	campaign := wiredCampaign()
	campaign.Settings.Integrations.Slack.Enabled = false
	campaign.Settings.Integrations.Email.Enabled = false
	campaign.Settings.Integrations.Meta.Enabled = false
	lead := testLead(campaign, campaign.Settings.DefaultStage().ID)

	rig.engine.LeadCreated(context.Background(), campaign, lead)

	if len(rig.repo.claimed)+len(rig.repo.skipped) != 0 {
		t.Errorf("disabled integrations must not record deliveries: claimed %v skipped %v",
			channelsClaimed(rig.repo), rig.repo.skipped)
	}
}

func TestLeadCreated_EventFlagGates(t *testing.T) {
	rig := newTestRig()
	campaign := wiredCampaign()
	campaign.Settings.Integrations.Slack.Events[campaigns.EventNewLead] = campaigns.SlackEventConfig{Enabled: false}
	lead := testLead(campaign, campaign.Settings.DefaultStage().ID)

	rig.engine.LeadCreated(context.Background(), campaign, lead)

	if len(rig.slack.texts) != 0 {
		t.Error("a disabled event flag must suppress the slack send")
	}
	if len(rig.mail.subjects) != 1 {
		t.Error("other channels must still fire")
	}
}

func TestLeadCreated_MissingWebhookSkips(t *testing.T) {
	rig := newTestRig()
	campaign := wiredCampaign()
	campaign.Settings.Integrations.Slack.WebhookURL = ""
	lead := testLead(campaign, campaign.Settings.DefaultStage().ID)

	rig.engine.LeadCreated(context.Background(), campaign, lead)

	if !contains(rig.repo.skipped, "new_lead/slack") {
		t.Errorf("expected a skipped slack delivery, got %v", rig.repo.skipped)
	}
	if len(rig.slack.texts) != 0 {
		t.Error("nothing must be sent without a webhook")
	}
}

// --- Stage Changed ---

func TestStageChanged_WonFiresSlackAndPurchase(t *testing.T) {
	rig := newTestRig()
	campaign := wiredCampaign()
	won := stageOfType(t, campaign, campaigns.StageWon)
	lead := testLead(campaign, won.ID)

	rig.engine.StageChanged(context.Background(), campaign, lead, campaign.Settings.DefaultStage().ID)

	got := channelsClaimed(rig.repo)
	if !contains(got, "won_deal/slack") || !contains(got, "purchase_on_won/meta") {
		t.Fatalf("expected won_deal slack and purchase meta deliveries, got %v", got)
	}
	event := rig.meta.events[0]
	if event.EventName != "Purchase" {
		t.Errorf("expected Purchase event, got %s", event.EventName)
	}
	if event.Value != 1500 {
		t.Errorf("purchase value must carry the lead revenue, got %v", event.Value)
	}
}

func TestStageChanged_WonToWonIsSilent(t *testing.T) {
	rig := newTestRig()
	campaign := wiredCampaign()
	won := stageOfType(t, campaign, campaigns.StageWon)

	// A second won stage so the lead can move between two of them.
	second := campaigns.PipelineStage{
		ID: "stage-won-2", Name: "Closed", Type: campaigns.StageWon,
		Color: "green", Order: len(campaign.Settings.PipelineStages),
	}
	campaign.Settings.PipelineStages = append(campaign.Settings.PipelineStages, second)

	lead := testLead(campaign, second.ID)
	rig.engine.StageChanged(context.Background(), campaign, lead, won.ID)

	if len(rig.repo.claimed)+len(rig.repo.skipped) != 0 {
		t.Errorf("moving between won stages must fire nothing, got %v", channelsClaimed(rig.repo))
	}
}

func TestStageChanged_Appointment(t *testing.T) {
	rig := newTestRig()
	campaign := wiredCampaign()
	appt := stageOfType(t, campaign, campaigns.StageAppointment)
	lead := testLead(campaign, appt.ID)

	rig.engine.StageChanged(context.Background(), campaign, lead, campaign.Settings.DefaultStage().ID)

	got := channelsClaimed(rig.repo)
	if !contains(got, "appointment_booked/slack") || !contains(got, "appointment_confirmation_customer/email") {
		t.Fatalf("expected appointment slack and confirmation email, got %v", got)
	}
	if rig.mail.recipients[0][0] != "jane@example.com" {
		t.Errorf("the confirmation must go to the lead's own address, got %v", rig.mail.recipients[0])
	}
}

func TestStageChanged_AppointmentWithoutLeadEmailSkips(t *testing.T) {
	rig := newTestRig()
	campaign := wiredCampaign()
	appt := stageOfType(t, campaign, campaigns.StageAppointment)
	lead := testLead(campaign, appt.ID)
	delete(lead.Data, "email")

	rig.engine.StageChanged(context.Background(), campaign, lead, campaign.Settings.DefaultStage().ID)

	if !contains(rig.repo.skipped, "appointment_confirmation_customer/email") {
		t.Errorf("expected skipped confirmation email, got %v", rig.repo.skipped)
	}
	if len(rig.mail.subjects) != 0 {
		t.Error("no email must go out without a lead address")
	}
}

func TestStageChanged_Lost(t *testing.T) {
	rig := newTestRig()
	campaign := wiredCampaign()
	lost := stageOfType(t, campaign, campaigns.StageLost)
	lead := testLead(campaign, lost.ID)

	rig.engine.StageChanged(context.Background(), campaign, lead, campaign.Settings.DefaultStage().ID)

	got := channelsClaimed(rig.repo)
	if len(got) != 1 || got[0] != "lead_lost/slack" {
		t.Errorf("a lost transition fires only the slack notification, got %v", got)
	}
}

func TestStageChanged_StandardStageIsSilent(t *testing.T) {
	rig := newTestRig()
	campaign := wiredCampaign()
	standard := stageOfType(t, campaign, campaigns.StageStandard)
	lead := testLead(campaign, standard.ID)

	rig.engine.StageChanged(context.Background(), campaign, lead, "some-old-stage")

	if len(rig.repo.claimed)+len(rig.repo.skipped) != 0 {
		t.Errorf("standard stages have no workflow, got %v", channelsClaimed(rig.repo))
	}
}

// --- Failure Isolation ---

func TestChannelFailureIsIsolated(t *testing.T) {
	rig := newTestRig()
	rig.slack.err = errors.New("connection refused")
	campaign := wiredCampaign()
	lead := testLead(campaign, campaign.Settings.DefaultStage().ID)

	rig.engine.LeadCreated(context.Background(), campaign, lead)

	if !contains(rig.repo.failed, "new_lead/slack") {
		t.Errorf("slack delivery must be marked failed, got %v", rig.repo.failed)
	}
	if len(rig.mail.subjects) != 1 {
		t.Error("email must still be sent when slack fails")
	}
	if len(rig.meta.events) != 1 {
		t.Error("meta must still be sent when slack fails")
	}
}

// --- Idempotency ---

func TestAlreadyClaimedDeliveryIsNotResent(t *testing.T) {
	rig := newTestRig()
	rig.repo.claimFn = func(ctx context.Context, d *Delivery) (bool, error) {
		return false, nil
	}
	campaign := wiredCampaign()
	lead := testLead(campaign, campaign.Settings.DefaultStage().ID)

	rig.engine.LeadCreated(context.Background(), campaign, lead)

	if len(rig.slack.texts)+len(rig.mail.subjects)+len(rig.meta.events) != 0 {
		t.Error("a claimed delivery must never be sent twice")
	}
}

// --- Templates ---

func TestRenderTemplate(t *testing.T) {
	data := map[string]any{
		"full_name": "Jane Prospect",
		"budget":    float64(2500),
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"simple substitution", "Hello {full_name}", "Hello Jane Prospect"},
		{"numeric value", "Budget: {budget}", "Budget: 2500"},
		{"unmatched placeholder stays verbatim", "City: {city}", "City: {city}"},
		{"repeated placeholder", "{full_name} and {full_name}", "Jane Prospect and Jane Prospect"},
		{"no placeholders", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderTemplate(tt.template, data); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNewLeadAlertEmailCarriesPhone(t *testing.T) {
	campaign := wiredCampaign()
	lead := testLead(campaign, campaign.Settings.DefaultStage().ID)
	lead.Data["tel"] = "+49 170 1234567"

	subject, body := emailContent(campaigns.EventNewLeadAlert, campaign, lead)

	if subject != "New lead for Spring Push" {
		t.Errorf("unexpected subject: %q", subject)
	}
	if !strings.Contains(body, "Phone: +49 170 1234567") {
		t.Errorf("the alert body must carry the lead's phone number, got %q", body)
	}
	if strings.Contains(body, "{") {
		t.Errorf("no placeholder may survive rendering, got %q", body)
	}
}

func TestCustomTemplateWins(t *testing.T) {
	rig := newTestRig()
	campaign := wiredCampaign()
	campaign.Settings.Integrations.Slack.Events[campaigns.EventNewLead] = campaigns.SlackEventConfig{
		Enabled:  true,
		Template: "Fresh lead {full_name} ({email})",
	}
	lead := testLead(campaign, campaign.Settings.DefaultStage().ID)

	rig.engine.LeadCreated(context.Background(), campaign, lead)

	if rig.slack.texts[0] != "Fresh lead Jane Prospect (jane@example.com)" {
		t.Errorf("unexpected rendered text: %q", rig.slack.texts[0])
	}
}
