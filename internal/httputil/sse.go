// Package httputil holds the small HTTP helpers shared by the gateway:
// SSE framing and credential extraction.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/modelbridge/claude-bridge/internal/models"
)

// SetSSEHeaders sets the standard headers for a Server-Sent Events response.
func SetSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "*")
}

// WriteEvent frames one event as "event: <type>\ndata: <json>\n\n" and
// flushes it so the client sees it before the next backend chunk is read.
func WriteEvent(w io.Writer, event models.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.EventType(), err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType(), data); err != nil {
		return err
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// ExtractAPIKey pulls the client credential from the request headers.
// Priority: x-api-key (Claude style), then Authorization: Bearer.
func ExtractAPIKey(h http.Header) string {
	if key := strings.TrimSpace(h.Get("x-api-key")); key != "" {
		return key
	}
	auth := h.Get("Authorization")
	if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}
