// Package slack posts workflow notifications to Slack incoming webhooks.
// The webhook URL is per-campaign configuration; this client only knows how
// to deliver one message to one webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultTimeout bounds one webhook delivery.
const defaultTimeout = 10 * time.Second

// Client delivers messages to Slack incoming webhooks.
type Client struct {
	http *http.Client
}

// NewClient creates a Slack webhook client.
func NewClient() *Client {
	return &Client{
		http: &http.Client{Timeout: defaultTimeout},
	}
}

// message is the incoming-webhook payload. Channel is optional; webhooks
// carry a default channel that an empty value falls back to.
type message struct {
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
}

// Send posts one message to the given webhook.
func (c *Client) Send(ctx context.Context, webhookURL, channel, text string) error {
	payload, err := json.Marshal(message{Text: text, Channel: channel})
	if err != nil {
		return fmt.Errorf("encoding slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
