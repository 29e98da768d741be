// Package provider implements the backends the gateway can forward to. A
// backend is selected once at configuration time; per-request state is
// limited to the credential and the in-flight stream.
package provider

import (
	"context"
	"fmt"
	"io"

	"github.com/modelbridge/claude-bridge/internal/config"
	"github.com/modelbridge/claude-bridge/internal/models"
)

// EventStream is a pull-based stream of Claude events. Recv returns io.EOF
// when the stream is over; backend failures surface as a single terminal
// error event, never as partial block events. Close releases the backend
// connection and is safe to call at any point, including mid-stream.
type EventStream interface {
	Recv() (models.StreamEvent, error)
	Close() error
}

// Provider is a completion backend. Implementations translate (or pass
// through) the request, issue the backend call and translate the result.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *models.MessagesRequest, apiKey string) (*models.MessagesResponse, error)
	StreamComplete(ctx context.Context, req *models.MessagesRequest, apiKey string) (EventStream, error)
}

// New selects the backend for the configured provider kind.
func New(cfg *config.Config) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case config.ProviderAnthropic:
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

// errorStream delivers exactly one terminal error event, then io.EOF.
type errorStream struct {
	event    models.StreamEvent
	consumed bool
}

func newErrorStream(message string) *errorStream {
	return &errorStream{event: models.NewAPIError(message)}
}

func (s *errorStream) Recv() (models.StreamEvent, error) {
	if s.consumed {
		return nil, io.EOF
	}
	s.consumed = true
	return s.event, nil
}

func (s *errorStream) Close() error { return nil }
