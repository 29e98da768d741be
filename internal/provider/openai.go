package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/modelbridge/claude-bridge/internal/config"
	"github.com/modelbridge/claude-bridge/internal/conversion"
	"github.com/modelbridge/claude-bridge/internal/models"
)

const userAgent = "claude-bridge/0.1.0"

// doneSentinel terminates an OpenAI SSE stream.
const doneSentinel = "[DONE]"

// scanBufferSize bounds a single SSE line; one chunk is one line.
const scanBufferSize = 1024 * 1024

// OpenAI is the translating backend: Claude in, chat-completions out.
//
// Non-streaming calls go through the go-openai client. Streaming bypasses it
// and reads the SSE body line by line so malformed chunks can be skipped
// instead of killing the stream.
type OpenAI struct {
	baseURL    string
	settings   conversion.Settings
	httpClient *http.Client
}

func NewOpenAI(cfg *config.Config) *OpenAI {
	return &OpenAI{
		baseURL: strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		settings: conversion.Settings{
			BigModel:    cfg.BigModel,
			MiddleModel: cfg.MiddleModel,
			SmallModel:  cfg.SmallModel,
			MaxTokens:   cfg.MaxTokensLimit,
			MinTokens:   cfg.MinTokensLimit,
		},
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (p *OpenAI) Name() string { return config.ProviderOpenAI }

// client builds a per-request go-openai client around the shared transport,
// so passthrough credentials don't leak between requests.
func (p *OpenAI) client(apiKey string) *openai.Client {
	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = p.baseURL
	clientConfig.HTTPClient = p.httpClient
	return openai.NewClientWithConfig(clientConfig)
}

func (p *OpenAI) Complete(ctx context.Context, req *models.MessagesRequest, apiKey string) (*models.MessagesResponse, error) {
	backendReq := conversion.Request(req, p.settings)
	backendReq.Stream = false
	backendReq.StreamOptions = nil

	resp, err := p.client(apiKey).CreateChatCompletion(ctx, *backendReq)
	if err != nil {
		return nil, &BackendError{StatusCode: statusOf(err), Message: Classify(err)}
	}
	return conversion.Response(&resp, req, p.settings)
}

// StreamComplete issues the streaming backend call. Failures — before or
// during the stream — surface as a single terminal error event on the
// returned stream, never as an error return, so the SSE response stays
// well-formed under every failure mode.
func (p *OpenAI) StreamComplete(ctx context.Context, req *models.MessagesRequest, apiKey string) (EventStream, error) {
	backendReq := conversion.Request(req, p.settings)
	backendReq.Stream = true
	backendReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	body, err := json.Marshal(backendReq)
	if err != nil {
		return newErrorStream(Classify(err)), nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return newErrorStream(Classify(err)), nil
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return newErrorStream(Classify(err)), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readErrorBody(resp.Body)
		resp.Body.Close()
		return newErrorStream(classifyStatus(resp.StatusCode, detail)), nil
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)
	return &openaiStream{
		body:     resp.Body,
		scanner:  scanner,
		reframer: conversion.NewReframer(req.Model),
	}, nil
}

// openaiStream re-frames the backend SSE body chunk by chunk. It never reads
// past the chunk whose events are currently being delivered.
type openaiStream struct {
	body     io.ReadCloser
	scanner  *bufio.Scanner
	reframer *conversion.Reframer

	pending  []models.StreamEvent
	finished bool
}

func (s *openaiStream) Recv() (models.StreamEvent, error) {
	if len(s.pending) > 0 {
		event := s.pending[0]
		s.pending = s.pending[1:]
		return event, nil
	}
	if s.finished {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		data, ok := strings.CutPrefix(s.scanner.Text(), "data:")
		if !ok {
			continue // event names, comments, keep-alive blanks
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == doneSentinel {
			// End-of-stream sentinel. If a finish reason was seen the closing
			// events were already emitted; if not, the stream ends here
			// without synthesized closes.
			s.finished = true
			return nil, io.EOF
		}

		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // malformed chunks are skipped, not fatal
		}

		events := s.reframer.Feed(&chunk)
		if s.reframer.Done() {
			s.finished = true
		}
		if len(events) == 0 {
			if s.finished {
				return nil, io.EOF
			}
			continue
		}
		s.pending = events[1:]
		return events[0], nil
	}

	s.finished = true
	if err := s.scanner.Err(); err != nil && !s.reframer.Done() {
		return models.NewAPIError(Classify(err)), nil
	}
	return nil, io.EOF
}

func (s *openaiStream) Close() error { return s.body.Close() }

// readErrorBody extracts a short error detail from a non-2xx response body.
func readErrorBody(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return string(raw)
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
