package conversion

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/modelbridge/claude-bridge/internal/models"
)

// ErrMalformedResponse reports a backend response that lacks the required
// choices structure. Fatal for the request; surfaced, not recovered.
var ErrMalformedResponse = errors.New("backend response has no choices")

// Placeholder identifiers for the no-request reverse-inference path. Opaque
// legacy values; clients should not attach meaning to them.
const (
	legacySmallModel = "claude-3-5-haiku-20241022"
	legacyBigModel   = "claude-3-5-sonnet-20241022"
)

// Response translates an OpenAI chat-completions response back into a Claude
// response. originalRequest may be nil; the model identifier is then inferred
// from the backend response.
func Response(resp *openai.ChatCompletionResponse, originalRequest *models.MessagesRequest, s Settings) (*models.MessagesResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w (id=%s)", ErrMalformedResponse, resp.ID)
	}
	choice := resp.Choices[0]

	var content []models.ContentBlock
	if choice.Message.Content != "" {
		content = append(content, models.TextBlock(choice.Message.Content))
	}
	for _, call := range choice.Message.ToolCalls {
		if call.Type != openai.ToolTypeFunction {
			continue
		}
		input := map[string]any{}
		// Unparseable arguments degrade to an empty input object.
		_ = json.Unmarshal([]byte(call.Function.Arguments), &input)
		if input == nil {
			input = map[string]any{}
		}
		content = append(content, models.ToolUseBlock(call.ID, call.Function.Name, input))
	}
	if len(content) == 0 {
		content = append(content, models.TextBlock(""))
	}

	model := inferModel(resp.Model, s)
	if originalRequest != nil {
		model = originalRequest.Model
	}

	return &models.MessagesResponse{
		ID:         resp.ID,
		Type:       "message",
		Role:       models.RoleAssistant,
		Model:      model,
		Content:    content,
		StopReason: ConvertFinishReason(string(choice.FinishReason)),
		Usage: models.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// ConvertFinishReason maps an OpenAI finish reason onto the Claude stop
// reason set. Total: unknown values map to end_turn, the empty reason stays
// nil.
func ConvertFinishReason(reason string) *string {
	if reason == "" {
		return nil
	}
	mapped := models.StopEndTurn
	switch reason {
	case "stop":
		mapped = models.StopEndTurn
	case "length":
		mapped = models.StopMaxTokens
	case "function_call", "tool_calls":
		mapped = models.StopToolUse
	case "content_filter":
		mapped = models.StopStopSequence
	}
	return &mapped
}

// inferModel reverse-matches a backend model name against the configured
// tiers when no original request is available. Returns a fixed legacy
// identifier per tier; treat it as an opaque placeholder.
func inferModel(backendModel string, s Settings) string {
	if backendModel != "" && (backendModel == s.BigModel || backendModel == s.MiddleModel) {
		return legacyBigModel
	}
	return legacySmallModel
}
