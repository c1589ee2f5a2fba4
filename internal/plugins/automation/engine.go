package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leadts/leadts/internal/plugins/campaigns"
	"github.com/leadts/leadts/internal/plugins/leads"
)

// metaCurrency is the currency reported with Purchase conversion values.
const metaCurrency = "EUR"

// Engine evaluates workflow rules and dispatches notifications. It
// implements leads.AutomationNotifier.
//
// Channels are isolated from each other: a Slack outage never blocks the
// email or Meta sends for the same event, and no channel failure ever
// propagates back to the lead write that triggered it.
type Engine struct {
	deliveries DeliveryRepository
	slack      SlackSender
	mail       MailSender
	meta       MetaSender
}

// NewEngine creates the automation engine. Any sender may be nil, in which
// case its channel records skipped deliveries.
func NewEngine(deliveries DeliveryRepository, slack SlackSender, mail MailSender, meta MetaSender) *Engine {
	return &Engine{
		deliveries: deliveries,
		slack:      slack,
		mail:       mail,
		meta:       meta,
	}
}

// LeadCreated runs the lead-creation workflow.
func (e *Engine) LeadCreated(ctx context.Context, campaign *campaigns.Campaign, lead *leads.Lead) {
	e.sendSlack(ctx, campaign, lead, campaigns.EventNewLead)
	e.sendEmail(ctx, campaign, lead, campaigns.EventNewLeadAlert)
	e.sendMeta(ctx, campaign, lead, campaigns.EventLeadOnCreate, "Lead", 0)
}

// StageChanged runs the stage-transition workflow. Rules fire on the type of
// the stage the lead LANDED on; the won rule additionally requires that the
// lead was not already on a won stage, so shuffling between two won stages
// cannot double-count a purchase.
func (e *Engine) StageChanged(ctx context.Context, campaign *campaigns.Campaign, lead *leads.Lead, fromStageID string) {
	toStage := campaign.Settings.StageByID(lead.StageID)
	if toStage == nil {
		return
	}

	switch toStage.Type {
	case campaigns.StageWon:
		if stageType(&campaign.Settings, fromStageID) == campaigns.StageWon {
			return
		}
		e.sendSlack(ctx, campaign, lead, campaigns.EventWonDeal)
		e.sendMeta(ctx, campaign, lead, campaigns.EventPurchaseOnWon, "Purchase", lead.Revenue())

	case campaigns.StageAppointment:
		e.sendSlack(ctx, campaign, lead, campaigns.EventAppointmentBooked)
		e.sendEmail(ctx, campaign, lead, campaigns.EventAppointmentConfirm)

	case campaigns.StageLost:
		e.sendSlack(ctx, campaign, lead, campaigns.EventLeadLost)
	}
}

// --- Slack channel ---

func (e *Engine) sendSlack(ctx context.Context, campaign *campaigns.Campaign, lead *leads.Lead, eventType string) {
	cfg := campaign.Settings.Integrations.Slack
	if !cfg.Enabled {
		return
	}
	event, ok := cfg.Events[eventType]
	if !ok || !event.Enabled {
		return
	}

	delivery := e.newDelivery(campaign, lead, eventType, ChannelSlack)
	if cfg.WebhookURL == "" || e.slack == nil {
		e.skip(ctx, delivery, "slack webhook not configured")
		return
	}

	claimed, err := e.deliveries.Claim(ctx, delivery)
	if err != nil {
		e.logFailure(delivery, err)
		return
	}
	if !claimed {
		return
	}

	template := event.Template
	if template == "" {
		template = defaultTemplates[eventType]
	}
	text := RenderTemplate(template, lead.Data)

	if err := e.slack.Send(ctx, cfg.WebhookURL, cfg.Channel, text); err != nil {
		e.fail(ctx, delivery, err)
	}
}

// --- Email channel ---

func (e *Engine) sendEmail(ctx context.Context, campaign *campaigns.Campaign, lead *leads.Lead, eventType string) {
	cfg := campaign.Settings.Integrations.Email
	if !cfg.Enabled || !cfg.Events[eventType] {
		return
	}

	delivery := e.newDelivery(campaign, lead, eventType, ChannelEmail)

	recipients := cfg.Recipients
	if eventType == campaigns.EventAppointmentConfirm {
		// The confirmation goes to the lead, not the agency.
		recipients = nil
		if addr, _ := lead.Data["email"].(string); addr != "" {
			recipients = []string{addr}
		}
	}
	if len(recipients) == 0 || e.mail == nil {
		e.skip(ctx, delivery, "no email recipients configured")
		return
	}

	claimed, err := e.deliveries.Claim(ctx, delivery)
	if err != nil {
		e.logFailure(delivery, err)
		return
	}
	if !claimed {
		return
	}

	subject, body := emailContent(eventType, campaign, lead)
	if err := e.mail.Send(ctx, recipients, subject, body); err != nil {
		e.fail(ctx, delivery, err)
	}
}

// emailContent builds the notification subject and body for an event.
func emailContent(eventType string, campaign *campaigns.Campaign, lead *leads.Lead) (string, string) {
	switch eventType {
	case campaigns.EventAppointmentConfirm:
		return "Your appointment is confirmed",
			RenderTemplate("Hi {full_name},\n\nyour appointment has been booked. We will be in touch shortly.", lead.Data)
	default:
		return fmt.Sprintf("New lead for %s", campaign.Name),
			RenderTemplate("A new lead arrived:\n\nName: {full_name}\nEmail: {email}\nPhone: {tel}", lead.Data)
	}
}

// --- Meta channel ---

func (e *Engine) sendMeta(ctx context.Context, campaign *campaigns.Campaign, lead *leads.Lead, eventType, metaEventName string, value float64) {
	cfg := campaign.Settings.Integrations.Meta
	if !cfg.Enabled || !cfg.Events[eventType] {
		return
	}

	delivery := e.newDelivery(campaign, lead, eventType, ChannelMeta)
	if cfg.PixelID == "" || cfg.AccessToken == "" || e.meta == nil {
		e.skip(ctx, delivery, "meta pixel not configured")
		return
	}

	claimed, err := e.deliveries.Claim(ctx, delivery)
	if err != nil {
		e.logFailure(delivery, err)
		return
	}
	if !claimed {
		return
	}

	event := ConversionEvent{
		PixelID:     cfg.PixelID,
		AccessToken: cfg.AccessToken,
		TestCode:    cfg.TestCode,
		EventName:   metaEventName,
		EventID:     lead.ID + ":" + eventType,
		Value:       value,
		Currency:    metaCurrency,
	}
	if err := e.meta.SendEvent(ctx, event); err != nil {
		e.fail(ctx, delivery, err)
	}
}

// --- Delivery bookkeeping ---

func (e *Engine) newDelivery(campaign *campaigns.Campaign, lead *leads.Lead, eventType string, channel Channel) *Delivery {
	return &Delivery{
		ID:         uuid.NewString(),
		LeadID:     lead.ID,
		CampaignID: campaign.ID,
		EventType:  eventType,
		StageID:    lead.StageID,
		Channel:    channel,
		CreatedAt:  time.Now().UTC(),
	}
}

func (e *Engine) skip(ctx context.Context, d *Delivery, detail string) {
	if err := e.deliveries.RecordSkipped(ctx, d, detail); err != nil {
		e.logFailure(d, err)
	}
}

func (e *Engine) fail(ctx context.Context, d *Delivery, sendErr error) {
	slog.Error("automation delivery failed",
		slog.String("lead_id", d.LeadID),
		slog.String("event_type", d.EventType),
		slog.String("channel", string(d.Channel)),
		slog.Any("error", sendErr),
	)
	if err := e.deliveries.MarkFailed(ctx, d, sendErr.Error()); err != nil {
		e.logFailure(d, err)
	}
}

func (e *Engine) logFailure(d *Delivery, err error) {
	slog.Error("automation delivery bookkeeping failed",
		slog.String("lead_id", d.LeadID),
		slog.String("event_type", d.EventType),
		slog.String("channel", string(d.Channel)),
		slog.Any("error", err),
	)
}
