package models

import "encoding/json"

// Stream event type names, also used as SSE event names.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
	EventError             = "error"
)

// Delta types inside content_block_delta events.
const (
	DeltaText      = "text_delta"
	DeltaInputJSON = "input_json_delta"
)

// StreamEvent is one event of a Claude SSE response. The concrete type
// carries the payload; EventType is the SSE event name.
type StreamEvent interface {
	EventType() string
}

// MessageStartMessage is the skeleton message announced by message_start.
type MessageStartMessage struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   *string        `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

type MessageStartEvent struct {
	Type    string              `json:"type"`
	Message MessageStartMessage `json:"message"`
}

func (MessageStartEvent) EventType() string { return EventMessageStart }

// NewMessageStart builds the opening event for a stream: empty content,
// zero usage, echoing the client's model and a fresh message id.
func NewMessageStart(messageID, model string) MessageStartEvent {
	return MessageStartEvent{
		Type: EventMessageStart,
		Message: MessageStartMessage{
			ID:      messageID,
			Type:    "message",
			Role:    RoleAssistant,
			Model:   model,
			Content: []ContentBlock{},
		},
	}
}

type ContentBlockStartEvent struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

func (ContentBlockStartEvent) EventType() string { return EventContentBlockStart }

func NewContentBlockStart(index int, block ContentBlock) ContentBlockStartEvent {
	return ContentBlockStartEvent{Type: EventContentBlockStart, Index: index, ContentBlock: block}
}

// BlockDelta is the delta payload of a content_block_delta event.
type BlockDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type ContentBlockDeltaEvent struct {
	Type  string     `json:"type"`
	Index int        `json:"index"`
	Delta BlockDelta `json:"delta"`
}

func (ContentBlockDeltaEvent) EventType() string { return EventContentBlockDelta }

func NewTextDelta(index int, text string) ContentBlockDeltaEvent {
	return ContentBlockDeltaEvent{
		Type:  EventContentBlockDelta,
		Index: index,
		Delta: BlockDelta{Type: DeltaText, Text: text},
	}
}

func NewInputJSONDelta(index int, partial string) ContentBlockDeltaEvent {
	return ContentBlockDeltaEvent{
		Type:  EventContentBlockDelta,
		Index: index,
		Delta: BlockDelta{Type: DeltaInputJSON, PartialJSON: partial},
	}
}

type ContentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

func (ContentBlockStopEvent) EventType() string { return EventContentBlockStop }

func NewContentBlockStop(index int) ContentBlockStopEvent {
	return ContentBlockStopEvent{Type: EventContentBlockStop, Index: index}
}

// MessageDeltaBody carries the final stop reason.
type MessageDeltaBody struct {
	StopReason   *string `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

type MessageDeltaEvent struct {
	Type  string           `json:"type"`
	Delta MessageDeltaBody `json:"delta"`
	Usage Usage            `json:"usage"`
}

func (MessageDeltaEvent) EventType() string { return EventMessageDelta }

func NewMessageDelta(stopReason *string, usage Usage) MessageDeltaEvent {
	return MessageDeltaEvent{
		Type:  EventMessageDelta,
		Delta: MessageDeltaBody{StopReason: stopReason},
		Usage: usage,
	}
}

type MessageStopEvent struct {
	Type string `json:"type"`
}

func (MessageStopEvent) EventType() string { return EventMessageStop }

func NewMessageStop() MessageStopEvent {
	return MessageStopEvent{Type: EventMessageStop}
}

type PingEvent struct {
	Type string `json:"type"`
}

func (PingEvent) EventType() string { return EventPing }

func NewPing() PingEvent {
	return PingEvent{Type: EventPing}
}

// ErrorDetail is the payload of a terminal error event.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ErrorEvent struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

func (ErrorEvent) EventType() string { return EventError }

// NewAPIError builds the terminal api_error event emitted when the backend
// call fails. A stream that produced this event must not produce anything
// after it.
func NewAPIError(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Error: ErrorDetail{Type: "api_error", Message: message}}
}

// RawEvent is a pre-encoded event forwarded byte-for-byte, used by the
// Anthropic passthrough stream where no re-framing happens.
type RawEvent struct {
	Name string
	Data json.RawMessage
}

func (e RawEvent) EventType() string { return e.Name }

func (e RawEvent) MarshalJSON() ([]byte, error) { return e.Data, nil }
