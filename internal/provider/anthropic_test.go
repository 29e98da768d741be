package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/modelbridge/claude-bridge/internal/config"
	"github.com/modelbridge/claude-bridge/internal/models"
)

func anthropicConfig(baseURL string) *config.Config {
	return &config.Config{
		Provider:         config.ProviderAnthropic,
		AnthropicBaseURL: baseURL,
		RequestTimeout:   5 * time.Second,
	}
}

func TestAnthropicCompletePassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-ant-test" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("anthropic-version = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["model"] != "claude-3-haiku" {
			t.Errorf("model rewritten: %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "msg_abc",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-haiku",
			"content": [{"type": "text", "text": "Hello"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 4, "output_tokens": 1}
		}`)
	}))
	defer srv.Close()

	backend := NewAnthropic(anthropicConfig(srv.URL))
	resp, err := backend.Complete(context.Background(), simpleRequest(), "sk-ant-test")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.ID != "msg_abc" || resp.Content[0].Text != "Hello" {
		t.Fatalf("response = %#v", resp)
	}
}

func TestAnthropicStreamForwardsEventsVerbatim(t *testing.T) {
	lines := []string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"id":"msg_1","content":[]}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`,
		``,
		`data: {"type":"message_stop"}`,
		``,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] != true {
			t.Error("stream flag not forced on forwarded body")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
	}))
	defer srv.Close()

	backend := NewAnthropic(anthropicConfig(srv.URL))
	stream, err := backend.StreamComplete(context.Background(), simpleRequest(), "sk-ant-test")
	if err != nil {
		t.Fatalf("StreamComplete: %v", err)
	}
	events := drainStream(t, stream)

	want := []string{models.EventMessageStart, models.EventContentBlockDelta, models.EventMessageStop}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, name := range want {
		if events[i].EventType() != name {
			t.Fatalf("event %d = %s, want %s", i, events[i].EventType(), name)
		}
	}

	// Payloads pass through byte-for-byte.
	raw, err := json.Marshal(events[1])
	if err != nil {
		t.Fatalf("marshal raw event: %v", err)
	}
	if gjson.GetBytes(raw, "delta.text").String() != "hi" {
		t.Fatalf("payload altered: %s", raw)
	}
}

func TestAnthropicStreamBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "bad key"}}`)
	}))
	defer srv.Close()

	backend := NewAnthropic(anthropicConfig(srv.URL))
	stream, err := backend.StreamComplete(context.Background(), simpleRequest(), "sk-bad")
	if err != nil {
		t.Fatalf("StreamComplete: %v", err)
	}
	events := drainStream(t, stream)
	if len(events) != 1 || events[0].EventType() != models.EventError {
		t.Fatalf("want one error event, got %v", events)
	}
}
