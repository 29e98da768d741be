// Package models defines the Claude Messages API wire types: requests,
// responses, content blocks and streaming events.
//
// Message content arrives in two shapes on the wire — a plain string or a
// sequence of typed blocks — and blocks themselves are loosely typed JSON
// objects. All of that ambiguity is normalized here, in one decode step, so
// the rest of the codebase only ever sees the tagged ContentBlock union.
package models

import (
	"encoding/json"
	"fmt"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Content block types.
const (
	ContentText       = "text"
	ContentImage      = "image"
	ContentToolUse    = "tool_use"
	ContentToolResult = "tool_result"
)

// Stop reasons.
const (
	StopEndTurn      = "end_turn"
	StopMaxTokens    = "max_tokens"
	StopToolUse      = "tool_use"
	StopStopSequence = "stop_sequence"
)

// ImageSource is the source of an image block. Only base64 sources are
// supported by the translator; other source types are dropped.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// ContentBlock is a tagged union over the Claude content block variants.
// Type selects the active variant; the remaining fields are variant-specific.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result. Content is either a string or a list of nested blocks;
	// it is flattened to text at the translation boundary.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   any    `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// ToolUseBlock builds a tool_use content block.
func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	if input == nil {
		input = map[string]any{}
	}
	return ContentBlock{Type: ContentToolUse, ID: id, Name: name, Input: input}
}

// MarshalJSON emits the variant-specific wire shape. Text blocks always
// carry the text key and tool_use blocks always carry input, even when
// empty; the streaming protocol requires those keys to be present.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case ContentText:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{b.Type, b.Text})
	case ContentToolUse:
		input := b.Input
		if input == nil {
			input = map[string]any{}
		}
		return json.Marshal(struct {
			Type  string         `json:"type"`
			ID    string         `json:"id"`
			Name  string         `json:"name"`
			Input map[string]any `json:"input"`
		}{b.Type, b.ID, b.Name, input})
	}
	type plain ContentBlock
	return json.Marshal(plain(b))
}

// MessageContent is message content as it appears on the wire: either a
// plain string or an ordered block sequence. Exactly one shape is active.
type MessageContent struct {
	Text   string
	Blocks []ContentBlock
	IsText bool
}

// TextContent wraps a plain string as message content.
func TextContent(text string) MessageContent {
	return MessageContent{Text: text, IsText: true}
}

// BlockContent wraps a block sequence as message content.
func BlockContent(blocks ...ContentBlock) MessageContent {
	return MessageContent{Blocks: blocks}
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*c = MessageContent{Text: text, IsText: true}
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("content must be a string or a block array: %w", err)
	}
	*c = MessageContent{Blocks: blocks}
	return nil
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.IsText {
		return json.Marshal(c.Text)
	}
	if c.Blocks == nil {
		return json.Marshal([]ContentBlock{})
	}
	return json.Marshal(c.Blocks)
}

// Message is one conversation turn. Immutable once decoded.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// ToolDef declares a tool the model may invoke.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ToolChoice directs how the model should pick tools.
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// MessagesRequest is the inbound Claude Messages API request body.
type MessagesRequest struct {
	Model         string          `json:"model"`
	MaxTokens     int             `json:"max_tokens"`
	Messages      []Message       `json:"messages"`
	System        *MessageContent `json:"system,omitempty"`
	Temperature   *float32        `json:"temperature,omitempty"`
	TopP          *float32        `json:"top_p,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Tools         []ToolDef       `json:"tools,omitempty"`
	ToolChoice    *ToolChoice     `json:"tool_choice,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
}

// Validate checks the structural invariants the translators rely on.
func (r *MessagesRequest) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("model is required")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be greater than zero")
	}
	return nil
}

// Usage carries token accounting for one request/response cycle.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// MessagesResponse is the outbound Claude Messages API response body.
type MessagesResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   *string        `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// TokenCountRequest is the body of POST /v1/messages/count_tokens.
type TokenCountRequest struct {
	Model    string          `json:"model"`
	System   *MessageContent `json:"system,omitempty"`
	Messages []Message       `json:"messages"`
	Tools    []ToolDef       `json:"tools,omitempty"`
}

// TokenCountResponse is the count_tokens reply. The count is a character
// heuristic, not real tokenization.
type TokenCountResponse struct {
	InputTokens int `json:"input_tokens"`
}
