package meta

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leadts/leadts/internal/plugins/automation"
)

func testEvent() automation.ConversionEvent {
	return automation.ConversionEvent{
		PixelID:     "987654",
		AccessToken: "token-abc",
		TestCode:    "TEST123",
		EventName:   "Purchase",
		EventID:     "lead-1:purchase_on_won",
		Value:       1500,
		Currency:    "EUR",
	}
}

func TestSendEvent(t *testing.T) {
	var path, query string
	var body eventRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		query = r.URL.RawQuery
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient()
	client.baseURL = server.URL

	if err := client.SendEvent(context.Background(), testEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasSuffix(path, "/987654/events") {
		t.Errorf("unexpected path: %s", path)
	}
	if !strings.Contains(query, "access_token=token-abc") {
		t.Errorf("access token missing from query: %s", query)
	}
	if len(body.Data) != 1 {
		t.Fatalf("expected 1 event, got %d", len(body.Data))
	}
	event := body.Data[0]
	if event.EventName != "Purchase" {
		t.Errorf("unexpected event name: %s", event.EventName)
	}
	if event.CustomData == nil || event.CustomData.Value != 1500 || event.CustomData.Currency != "EUR" {
		t.Errorf("unexpected custom data: %+v", event.CustomData)
	}
	if body.TestEventCode != "TEST123" {
		t.Errorf("test event code missing: %q", body.TestEventCode)
	}
}

func TestSendEvent_ZeroValueOmitsCustomData(t *testing.T) {
	var body eventRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient()
	client.baseURL = server.URL

	event := testEvent()
	event.EventName = "Lead"
	event.Value = 0

	if err := client.SendEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.Data[0].CustomData != nil {
		t.Error("zero-value events must not carry custom data")
	}
}

func TestSendEvent_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid OAuth access token"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient()
	client.baseURL = server.URL

	if err := client.SendEvent(context.Background(), testEvent()); err == nil {
		t.Error("an api error response must return an error")
	}
}
