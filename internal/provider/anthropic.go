package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/modelbridge/claude-bridge/internal/config"
	"github.com/modelbridge/claude-bridge/internal/models"
)

const anthropicVersion = "2023-06-01"

// Anthropic is the passthrough backend: the inbound request already speaks
// the backend's protocol, so bodies are forwarded byte-for-byte with only
// header injection and the stream flag adjusted.
type Anthropic struct {
	baseURL    string
	httpClient *http.Client
}

func NewAnthropic(cfg *config.Config) *Anthropic {
	return &Anthropic{
		baseURL:    strings.TrimRight(cfg.AnthropicBaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (p *Anthropic) Name() string { return config.ProviderAnthropic }

func (p *Anthropic) headers(req *http.Request, apiKey string) {
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
}

func (p *Anthropic) Complete(ctx context.Context, req *models.MessagesRequest, apiKey string) (*models.MessagesResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &BackendError{Message: Classify(err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &BackendError{Message: Classify(err)}
	}
	p.headers(httpReq, apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &BackendError{Message: Classify(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readErrorBody(resp.Body)
		return nil, &BackendError{
			StatusCode: resp.StatusCode,
			Message:    classifyStatus(resp.StatusCode, detail),
		}
	}

	var out models.MessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &BackendError{Message: Classify(err)}
	}
	return &out, nil
}

func (p *Anthropic) StreamComplete(ctx context.Context, req *models.MessagesRequest, apiKey string) (EventStream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return newErrorStream(Classify(err)), nil
	}
	// The inbound body may have stream unset; the backend call always streams.
	if body, err = sjson.SetBytes(body, "stream", true); err != nil {
		return newErrorStream(Classify(err)), nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return newErrorStream(Classify(err)), nil
	}
	p.headers(httpReq, apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

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
	return &anthropicStream{body: resp.Body, scanner: scanner}, nil
}

// anthropicStream forwards the backend's own event stream without
// re-framing. Each data line is wrapped as a RawEvent named after the
// event's type field.
type anthropicStream struct {
	body     io.ReadCloser
	scanner  *bufio.Scanner
	finished bool
}

func (s *anthropicStream) Recv() (models.StreamEvent, error) {
	if s.finished {
		return nil, io.EOF
	}
	for s.scanner.Scan() {
		data, ok := strings.CutPrefix(s.scanner.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || !gjson.ValidBytes([]byte(data)) {
			continue
		}
		name := gjson.GetBytes([]byte(data), "type").String()
		if name == "" {
			continue
		}
		if name == models.EventMessageStop || name == models.EventError {
			// Terminal either way; stop reading after delivering it.
			s.finished = true
		}
		return models.RawEvent{Name: name, Data: json.RawMessage(data)}, nil
	}

	s.finished = true
	if err := s.scanner.Err(); err != nil {
		return models.NewAPIError(Classify(err)), nil
	}
	return nil, io.EOF
}

func (s *anthropicStream) Close() error { return s.body.Close() }
