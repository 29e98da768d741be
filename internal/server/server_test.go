package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modelbridge/claude-bridge/internal/config"
	"github.com/modelbridge/claude-bridge/internal/metrics"
	"github.com/modelbridge/claude-bridge/internal/models"
	"github.com/modelbridge/claude-bridge/internal/provider"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubBackend records the credential it was handed and serves canned
// responses.
type stubBackend struct {
	lastKey     string
	completeErr error
	events      []models.StreamEvent
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Complete(_ context.Context, req *models.MessagesRequest, apiKey string) (*models.MessagesResponse, error) {
	b.lastKey = apiKey
	if b.completeErr != nil {
		return nil, b.completeErr
	}
	stop := models.StopEndTurn
	return &models.MessagesResponse{
		ID:         "msg_stub",
		Type:       "message",
		Role:       models.RoleAssistant,
		Model:      req.Model,
		Content:    []models.ContentBlock{models.TextBlock("ok")},
		StopReason: &stop,
		Usage:      models.Usage{InputTokens: 1, OutputTokens: 1},
	}, nil
}

func (b *stubBackend) StreamComplete(_ context.Context, _ *models.MessagesRequest, apiKey string) (provider.EventStream, error) {
	b.lastKey = apiKey
	return &sliceStream{events: b.events}, nil
}

type sliceStream struct {
	events []models.StreamEvent
	pos    int
}

func (s *sliceStream) Recv() (models.StreamEvent, error) {
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	event := s.events[s.pos]
	s.pos++
	return event, nil
}

func (s *sliceStream) Close() error { return nil }

func newTestServer(cfg *config.Config, backend *stubBackend) *Server {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, backend, metrics.New(), log)
}

func fixedKeyConfig() *config.Config {
	return &config.Config{
		Provider:       config.ProviderOpenAI,
		OpenAIAPIKey:   "sk-server",
		BigModel:       "gpt-4o",
		MiddleModel:    "gpt-4o",
		SmallModel:     "gpt-4o-mini",
		MaxTokensLimit: 4096,
		MinTokensLimit: 100,
		RequestTimeout: 5 * time.Second,
	}
}

func messagesBody() string {
	return `{"model":"claude-3-haiku","max_tokens":32,"messages":[{"role":"user","content":"Hi"}]}`
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Set(k, v)
		}
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateMessageNonStreaming(t *testing.T) {
	backend := &stubBackend{}
	srv := newTestServer(fixedKeyConfig(), backend)

	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/messages", messagesBody(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp models.MessagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ID != "msg_stub" || resp.Role != models.RoleAssistant {
		t.Fatalf("response = %#v", resp)
	}
	if backend.lastKey != "sk-server" {
		t.Fatalf("fixed-key mode must use the server key, got %q", backend.lastKey)
	}
}

func TestCreateMessageInvalidJSON(t *testing.T) {
	srv := newTestServer(fixedKeyConfig(), &stubBackend{})
	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/messages", "{bad", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Type  string `json:"type"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if body.Type != "error" || body.Error.Type != "invalid_request_error" {
		t.Fatalf("error body = %s", rec.Body.String())
	}
}

func TestCreateMessageValidation(t *testing.T) {
	srv := newTestServer(fixedKeyConfig(), &stubBackend{})
	cases := []string{
		`{"max_tokens":10,"messages":[{"role":"user","content":"x"}]}`,        // no model
		`{"model":"m","max_tokens":10,"messages":[]}`,                         // no messages
		`{"model":"m","max_tokens":0,"messages":[{"role":"user","content":"x"}]}`, // bad max_tokens
	}
	for _, body := range cases {
		rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/messages", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d", body, rec.Code)
		}
	}
}

func TestAuthKeyGate(t *testing.T) {
	cfg := fixedKeyConfig()
	cfg.AuthKey = "proxy-secret"
	backend := &stubBackend{}
	srv := newTestServer(cfg, backend)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/v1/messages", messagesBody(), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: status = %d", rec.Code)
	}

	h := http.Header{}
	h.Set("x-api-key", "wrong")
	rec = doJSON(t, router, http.MethodPost, "/v1/messages", messagesBody(), h)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d", rec.Code)
	}

	h.Set("x-api-key", "proxy-secret")
	rec = doJSON(t, router, http.MethodPost, "/v1/messages", messagesBody(), h)
	if rec.Code != http.StatusOK {
		t.Fatalf("correct key: status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestAuthKeyBearerAccepted(t *testing.T) {
	cfg := fixedKeyConfig()
	cfg.AuthKey = "proxy-secret"
	srv := newTestServer(cfg, &stubBackend{})

	h := http.Header{}
	h.Set("Authorization", "Bearer proxy-secret")
	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/messages", messagesBody(), h)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPassthroughUsesClientKey(t *testing.T) {
	cfg := fixedKeyConfig()
	cfg.OpenAIAPIKey = ""
	backend := &stubBackend{}
	srv := newTestServer(cfg, backend)

	h := http.Header{}
	h.Set("x-api-key", "sk-client")
	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/messages", messagesBody(), h)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if backend.lastKey != "sk-client" {
		t.Fatalf("passthrough must forward the client key, got %q", backend.lastKey)
	}
}

func TestPassthroughWithoutKeyFails(t *testing.T) {
	cfg := fixedKeyConfig()
	cfg.OpenAIAPIKey = ""
	srv := newTestServer(cfg, &stubBackend{})

	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/messages", messagesBody(), nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "api_error") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestCreateMessageStreaming(t *testing.T) {
	stop := models.StopEndTurn
	backend := &stubBackend{events: []models.StreamEvent{
		models.NewMessageStart("msg_1", "claude-3-haiku"),
		models.NewPing(),
		models.NewContentBlockStart(0, models.TextBlock("")),
		models.NewTextDelta(0, "ok"),
		models.NewContentBlockStop(0),
		models.NewMessageDelta(&stop, models.Usage{InputTokens: 1, OutputTokens: 1}),
		models.NewMessageStop(),
	}}
	srv := newTestServer(fixedKeyConfig(), backend)

	body := `{"model":"claude-3-haiku","max_tokens":32,"stream":true,"messages":[{"role":"user","content":"Hi"}]}`
	rec := doJSON(t, srv.Router(), http.MethodPost, "/v1/messages", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	out := rec.Body.String()
	for _, name := range []string{
		"event: message_start", "event: ping", "event: content_block_start",
		"event: content_block_delta", "event: content_block_stop",
		"event: message_delta", "event: message_stop",
	} {
		if !strings.Contains(out, name+"\n") {
			t.Errorf("missing %q in SSE output", name)
		}
	}
	if !strings.Contains(out, `"text":"ok"`) {
		t.Errorf("text delta payload missing: %s", out)
	}
}

func TestCountTokens(t *testing.T) {
	srv := newTestServer(fixedKeyConfig(), &stubBackend{})
	router := srv.Router()

	// 8 chars of text -> 2 tokens.
	body := `{"model":"claude-3-haiku","messages":[{"role":"user","content":"12345678"}]}`
	rec := doJSON(t, router, http.MethodPost, "/v1/messages/count_tokens", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp models.TokenCountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.InputTokens != 2 {
		t.Fatalf("input_tokens = %d, want 2", resp.InputTokens)
	}

	// Tiny input still reports at least one token.
	body = `{"model":"claude-3-haiku","messages":[{"role":"user","content":"a"}]}`
	rec = doJSON(t, router, http.MethodPost, "/v1/messages/count_tokens", body, nil)
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.InputTokens != 1 {
		t.Fatalf("minimum estimate = %d, want 1", resp.InputTokens)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(fixedKeyConfig(), &stubBackend{})
	rec := doJSON(t, srv.Router(), http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "healthy" || body["api_key_configured"] != true {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestTestConnection(t *testing.T) {
	backend := &stubBackend{}
	srv := newTestServer(fixedKeyConfig(), backend)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/test-connection", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Passthrough mode has no server key to test with.
	cfg := fixedKeyConfig()
	cfg.OpenAIAPIKey = ""
	srv = newTestServer(cfg, backend)
	rec = doJSON(t, srv.Router(), http.MethodGet, "/test-connection", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("passthrough status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(fixedKeyConfig(), &stubBackend{})
	router := srv.Router()

	doJSON(t, router, http.MethodPost, "/v1/messages", messagesBody(), nil)

	rec := doJSON(t, router, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bridge_http_requests_total") {
		t.Fatalf("metrics output missing request counter:\n%s", rec.Body.String())
	}
}

func TestRootIntrospection(t *testing.T) {
	srv := newTestServer(fixedKeyConfig(), &stubBackend{})
	rec := doJSON(t, srv.Router(), http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "running" {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
