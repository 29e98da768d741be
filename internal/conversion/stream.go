package conversion

import (
	"strings"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/modelbridge/claude-bridge/internal/models"
)

// Reframer converts a sequence of OpenAI streaming chunks into the Claude
// streaming event sequence. It is fed one parsed chunk at a time and returns
// the events to emit for that chunk, so memory stays bounded by the current
// chunk plus the per-tool-call accumulators regardless of response length.
//
// Block index scheme: index 0 is reserved for text if any text arrives;
// tool-call blocks take the following indices in order of first appearance.
//
// A Reframer belongs to exactly one stream and is not safe for concurrent
// use; it never needs to be, each stream is owned by a single request task.
type Reframer struct {
	model     string
	messageID string

	started   bool
	textOpen  bool
	toolCalls map[int]*toolCallState
	toolSeen  int
	openOrder []int

	usage      models.Usage
	stopReason *string
	done       bool
}

// toolCallState accumulates one tool call across chunks, keyed by the
// backend-assigned index.
type toolCallState struct {
	id      string
	name    string
	args    strings.Builder
	started bool
	index   int // claude block index, valid once started
}

// NewReframer creates the per-stream state machine. The model is echoed in
// message_start; the message id is freshly generated.
func NewReframer(model string) *Reframer {
	return &Reframer{
		model:     model,
		messageID: "msg_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		toolCalls: map[int]*toolCallState{},
	}
}

// MessageID returns the generated message identifier.
func (r *Reframer) MessageID() string { return r.messageID }

// Done reports whether a finish reason has been observed and the stream is
// terminated. No further chunks should be fed or read once true.
func (r *Reframer) Done() bool { return r.done }

// Usage returns the token accounting accumulated so far.
func (r *Reframer) Usage() models.Usage { return r.usage }

// Feed consumes one backend chunk and returns the Claude events it produces,
// in emission order. Feeding after termination returns nil.
func (r *Reframer) Feed(chunk *openai.ChatCompletionStreamResponse) []models.StreamEvent {
	if r.done {
		return nil
	}

	var events []models.StreamEvent
	if !r.started {
		r.started = true
		events = append(events, models.NewMessageStart(r.messageID, r.model), models.NewPing())
	}

	// Latest non-null usage wins; values are totals, not increments.
	if chunk.Usage != nil {
		r.usage.InputTokens = chunk.Usage.PromptTokens
		r.usage.OutputTokens = chunk.Usage.CompletionTokens
	}

	if len(chunk.Choices) == 0 {
		return events
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		if !r.textOpen {
			r.textOpen = true
			r.openOrder = append(r.openOrder, 0)
			events = append(events, models.NewContentBlockStart(0, models.TextBlock("")))
		}
		events = append(events, models.NewTextDelta(0, choice.Delta.Content))
	}

	for _, call := range choice.Delta.ToolCalls {
		events = append(events, r.feedToolCall(call)...)
	}

	if choice.FinishReason != "" {
		events = append(events, r.finish(string(choice.FinishReason))...)
	}
	return events
}

// feedToolCall folds one tool-call fragment into its accumulator and returns
// any start/delta events it triggers. Argument fragments are forwarded raw;
// only client-side concatenation is expected to yield valid JSON.
func (r *Reframer) feedToolCall(call openai.ToolCall) []models.StreamEvent {
	backendIndex := 0
	if call.Index != nil {
		backendIndex = *call.Index
	}
	state, ok := r.toolCalls[backendIndex]
	if !ok {
		state = &toolCallState{}
		r.toolCalls[backendIndex] = state
	}
	if call.ID != "" {
		state.id = call.ID
	}
	if call.Function.Name != "" {
		state.name = call.Function.Name
	}
	if call.Function.Arguments != "" {
		state.args.WriteString(call.Function.Arguments)
	}

	var events []models.StreamEvent
	if !state.started && state.name != "" {
		state.started = true
		base := 0
		if r.textOpen {
			base = 1
		}
		state.index = base + r.toolSeen
		r.toolSeen++
		r.openOrder = append(r.openOrder, state.index)
		events = append(events, models.NewContentBlockStart(
			state.index,
			models.ToolUseBlock(state.id, state.name, map[string]any{}),
		))
		// Flush arguments that arrived before the block could open.
		if buffered := state.args.String(); buffered != "" {
			events = append(events, models.NewInputJSONDelta(state.index, buffered))
		}
		return events
	}
	if state.started && call.Function.Arguments != "" {
		events = append(events, models.NewInputJSONDelta(state.index, call.Function.Arguments))
	}
	return events
}

// finish closes every open block in the order it was opened, then emits the
// message_delta/message_stop pair and terminates the stream.
func (r *Reframer) finish(reason string) []models.StreamEvent {
	r.done = true
	r.stopReason = ConvertFinishReason(reason)

	var events []models.StreamEvent
	for _, index := range r.openOrder {
		events = append(events, models.NewContentBlockStop(index))
	}
	events = append(events,
		models.NewMessageDelta(r.stopReason, r.usage),
		models.NewMessageStop(),
	)
	return events
}
