// Package meta pushes server-side conversion events to the Meta Conversions
// API so ad delivery can optimize on real pipeline outcomes instead of form
// submissions alone.
package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/leadts/leadts/internal/plugins/automation"
)

const (
	// graphBaseURL is the Graph API endpoint root.
	graphBaseURL = "https://graph.facebook.com"

	// graphVersion pins the Conversions API version.
	graphVersion = "v21.0"

	defaultTimeout = 10 * time.Second
)

// Client delivers conversion events to the Meta Conversions API.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a Conversions API client.
func NewClient() *Client {
	return &Client{
		http:    &http.Client{Timeout: defaultTimeout},
		baseURL: graphBaseURL,
	}
}

// serverEvent is one event in the Conversions API request body.
type serverEvent struct {
	EventName    string      `json:"event_name"`
	EventTime    int64       `json:"event_time"`
	EventID      string      `json:"event_id,omitempty"`
	ActionSource string      `json:"action_source"`
	CustomData   *customData `json:"custom_data,omitempty"`
}

type customData struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

type eventRequest struct {
	Data          []serverEvent `json:"data"`
	TestEventCode string        `json:"test_event_code,omitempty"`
}

// SendEvent pushes one conversion event to the pixel's events endpoint.
func (c *Client) SendEvent(ctx context.Context, event automation.ConversionEvent) error {
	se := serverEvent{
		EventName:    event.EventName,
		EventTime:    time.Now().UTC().Unix(),
		EventID:      event.EventID,
		ActionSource: "system_generated",
	}
	if event.Value > 0 {
		se.CustomData = &customData{Value: event.Value, Currency: event.Currency}
	}

	payload, err := json.Marshal(eventRequest{
		Data:          []serverEvent{se},
		TestEventCode: event.TestCode,
	})
	if err != nil {
		return fmt.Errorf("encoding conversion event: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/events?access_token=%s",
		c.baseURL, graphVersion, url.PathEscape(event.PixelID), url.QueryEscape(event.AccessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building conversions request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting conversion event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("conversions api returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
