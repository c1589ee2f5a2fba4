// Package automation evaluates campaign workflows when leads are created or
// change pipeline stage, and fans the resulting notifications out to the
// configured channels. Rules key off the stage TYPE, never the stage name or
// position, so pipeline edits cannot silently break workflows.
//
// Every delivery attempt leaves a row in automation_deliveries. The unique
// key over (lead, event, stage, channel) makes retried events idempotent.
package automation

import (
	"context"
	"time"

	"github.com/leadts/leadts/internal/plugins/campaigns"
)

// Channel identifies an outbound notification channel.
type Channel string

const (
	ChannelSlack Channel = "slack"
	ChannelEmail Channel = "email"
	ChannelMeta  Channel = "meta"
)

// Delivery status values.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Delivery is one recorded notification attempt.
type Delivery struct {
	ID         string    `json:"id"`
	LeadID     string    `json:"lead_id"`
	CampaignID string    `json:"campaign_id"`
	EventType  string    `json:"event_type"`
	StageID    string    `json:"stage_id"`
	Channel    Channel   `json:"channel"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// --- Outbound ports ---
//
// The engine never talks to the network itself. Each channel plugin
// implements its port and is wired in app setup.

// SlackSender posts one message to a Slack incoming webhook.
type SlackSender interface {
	Send(ctx context.Context, webhookURL, channel, text string) error
}

// MailSender sends one plain-text notification email.
type MailSender interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// ConversionEvent is one server-side event for the Meta Conversions API.
type ConversionEvent struct {
	PixelID     string
	AccessToken string
	TestCode    string
	EventName   string
	EventID     string
	Value       float64
	Currency    string
}

// MetaSender pushes one conversion event to the Meta Conversions API.
type MetaSender interface {
	SendEvent(ctx context.Context, event ConversionEvent) error
}

// stageType looks up a stage's type in the campaign settings. Unknown ids
// (e.g. a since-deleted stage) report as standard so transition rules treat
// them as a plain previous stage.
func stageType(settings *campaigns.Settings, stageID string) campaigns.StageType {
	if stage := settings.StageByID(stageID); stage != nil {
		return stage.Type
	}
	return campaigns.StageStandard
}
