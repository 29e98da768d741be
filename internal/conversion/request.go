// Package conversion implements the protocol translation engine between the
// Claude Messages API and the OpenAI chat-completions API: request and
// response translation plus the streaming re-framer.
package conversion

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/modelbridge/claude-bridge/internal/modelmap"
	"github.com/modelbridge/claude-bridge/internal/models"
)

// Settings are the translation parameters fixed at process start: the
// configured model tiers and the max_tokens clamp.
type Settings struct {
	BigModel    string
	MiddleModel string
	SmallModel  string
	MaxTokens   int
	MinTokens   int
}

// defaultInputSchema stands in for tools declared without a schema.
func defaultInputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// Request translates a Claude request into an OpenAI chat-completions
// request. Total over structurally valid input: malformed optional fields
// degrade, they never fail the translation.
func Request(req *models.MessagesRequest, s Settings) *openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)

	if text := flattenSystem(req.System); text != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    models.RoleSystem,
			Content: text,
		})
	}

	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg)...)
	}

	out := &openai.ChatCompletionRequest{
		Model:     modelmap.ResolveTiered(req.Model, s.BigModel, s.MiddleModel, s.SmallModel),
		MaxTokens: clamp(req.MaxTokens, s.MinTokens, s.MaxTokens),
		Messages:  messages,
		Stream:    req.Stream,
		Stop:      req.StopSequences,
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		out.TopP = *req.TopP
	}
	if tools := convertTools(req.Tools); len(tools) > 0 {
		out.Tools = tools
		out.ToolChoice = convertToolChoice(req.ToolChoice)
	}
	if req.Stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return out
}

// flattenSystem reduces the system prompt to one string: plain text as-is,
// block sequences by concatenating the text blocks.
func flattenSystem(system *models.MessageContent) string {
	if system == nil {
		return ""
	}
	if system.IsText {
		return strings.TrimSpace(system.Text)
	}
	var parts []string
	for _, block := range system.Blocks {
		if block.Type == models.ContentText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// convertMessage maps one Claude message to its OpenAI counterparts. Most
// messages map 1:1; a message carrying tool results expands into one
// role:"tool" message per result, replacing the original.
func convertMessage(msg models.Message) []openai.ChatCompletionMessage {
	if msg.Content.IsText {
		return []openai.ChatCompletionMessage{{Role: msg.Role, Content: msg.Content.Text}}
	}

	var hasToolUse, hasToolResult bool
	for _, block := range msg.Content.Blocks {
		switch block.Type {
		case models.ContentToolUse:
			hasToolUse = true
		case models.ContentToolResult:
			hasToolResult = true
		}
	}

	switch {
	case hasToolResult:
		return convertToolResults(msg.Content.Blocks)
	case hasToolUse:
		return []openai.ChatCompletionMessage{convertToolUseTurn(msg.Content.Blocks)}
	default:
		return []openai.ChatCompletionMessage{convertParts(msg.Role, msg.Content.Blocks)}
	}
}

// convertToolResults expands tool_result blocks into separate role:"tool"
// messages, preserving block order. Non-result blocks in the same message
// are dropped: the tool messages fully replace the original.
func convertToolResults(blocks []models.ContentBlock) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	for _, block := range blocks {
		if block.Type != models.ContentToolResult {
			continue
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:       models.RoleTool,
			Content:    flattenToolResult(block.Content),
			ToolCallID: block.ToolUseID,
		})
	}
	return out
}

// flattenToolResult reduces a tool result body to plain text. Result content
// is a string, a block list, or an arbitrary JSON value.
func flattenToolResult(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		var parts []string
		for _, item := range v {
			switch it := item.(type) {
			case string:
				parts = append(parts, it)
			case map[string]any:
				if text, ok := it["text"].(string); ok {
					parts = append(parts, text)
					continue
				}
				if raw, err := json.Marshal(it); err == nil {
					parts = append(parts, string(raw))
				}
			default:
				parts = append(parts, fmt.Sprintf("%v", item))
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		if text, ok := v["text"].(string); ok {
			return text
		}
		if raw, err := json.Marshal(v); err == nil {
			return string(raw)
		}
		return ""
	default:
		if raw, err := json.Marshal(v); err == nil {
			return string(raw)
		}
		return ""
	}
}

// convertToolUseTurn builds the assistant tool_calls message for a block
// sequence containing tool_use blocks. The first non-empty text block, if
// any, becomes the string content.
func convertToolUseTurn(blocks []models.ContentBlock) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{Role: models.RoleAssistant}
	for _, block := range blocks {
		switch block.Type {
		case models.ContentText:
			if out.Content == "" && block.Text != "" {
				out.Content = block.Text
			}
		case models.ContentToolUse:
			args, err := json.Marshal(block.Input)
			if err != nil {
				slog.Warn("skipping tool_use block with unserializable input", "tool", block.Name)
				continue
			}
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   block.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      block.Name,
					Arguments: string(args),
				},
			})
		}
	}
	return out
}

// convertParts maps mixed text/image blocks to OpenAI content parts.
// Unsupported block kinds are dropped. A single text part collapses to plain
// string content; an empty result becomes an empty string, never null.
func convertParts(role string, blocks []models.ContentBlock) openai.ChatCompletionMessage {
	var parts []openai.ChatMessagePart
	for _, block := range blocks {
		switch block.Type {
		case models.ContentText:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: block.Text,
			})
		case models.ContentImage:
			if block.Source == nil || block.Source.Type != "base64" {
				continue
			}
			mediaType := block.Source.MediaType
			if mediaType == "" {
				mediaType = "image/jpeg"
			}
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:" + mediaType + ";base64," + block.Source.Data,
				},
			})
		}
	}

	if len(parts) == 0 {
		return openai.ChatCompletionMessage{Role: role, Content: ""}
	}
	if len(parts) == 1 && parts[0].Type == openai.ChatMessagePartTypeText {
		return openai.ChatCompletionMessage{Role: role, Content: parts[0].Text}
	}
	return openai.ChatCompletionMessage{Role: role, MultiContent: parts}
}

// convertTools maps tool definitions, skipping unnamed entries and stripping
// the $schema key JSON-schema generators like to add.
func convertTools(tools []models.ToolDef) []openai.Tool {
	var out []openai.Tool
	for _, tool := range tools {
		if tool.Name == "" {
			slog.Warn("skipping tool definition without a name")
			continue
		}
		schema := tool.InputSchema
		if schema == nil {
			schema = defaultInputSchema()
		} else if _, ok := schema["$schema"]; ok {
			clean := make(map[string]any, len(schema))
			for k, v := range schema {
				if k != "$schema" {
					clean[k] = v
				}
			}
			schema = clean
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		})
	}
	return out
}

// convertToolChoice maps the Claude tool_choice directive; anything
// unrecognized falls back to "auto".
func convertToolChoice(choice *models.ToolChoice) any {
	if choice == nil {
		return "auto"
	}
	switch choice.Type {
	case "auto":
		return "auto"
	case "none":
		return "none"
	case "tool":
		if choice.Name != "" {
			return openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: choice.Name},
			}
		}
	}
	return "auto"
}

func clamp(v, min, max int) int {
	if min > 0 && v < min {
		return min
	}
	if max > 0 && v > max {
		return max
	}
	return v
}
