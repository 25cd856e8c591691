// Package anthropic re-emits an OpenAI-shaped chunk stream as an Anthropic
// Messages SSE event sequence.
package anthropic

import (
	"fmt"
	"iter"
	"time"

	"github.com/relaywave/agentbridge/internal/apischema"
)

// Event is one named SSE event. Data marshals to the event's `data:` line.
type Event struct {
	Name string
	Data any
}

// stopReasonMapping translates an OpenAI finish_reason into the Anthropic
// stop_reason vocabulary. Anything absent from the table defaults to
// end_turn.
var stopReasonMapping = map[string]string{
	"stop":           "end_turn",
	"length":         "max_tokens",
	"tool_calls":     "tool_use",
	"content_filter": "stop_sequence",
}

// Translate consumes the chunk stream produced by an openai.Translator and
// re-emits it as the Anthropic message_start / content_block_* /
// message_delta / message_stop event sequence. content_index never
// decreases: opening a tool_use block closes an open text block and moves
// to the next index, and a tool_use block that follows another moves to the
// next index as well. A text block that follows a tool_use block opens at
// that tool block's index.
func Translate(chunks iter.Seq2[apischema.ChatCompletionChunk, error], model string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		messageID := fmt.Sprintf("msg_%d", time.Now().UnixMilli())
		if !yield(Event{Name: "message_start", Data: apischema.AnthropicMessageStartEvent{
			Type: "message_start",
			Message: apischema.AnthropicMessage{
				ID:      messageID,
				Type:    "message",
				Role:    "assistant",
				Content: []apischema.AnthropicContentBlock{},
				Model:   model,
				Usage:   apischema.AnthropicUsage{},
			},
		}}, nil) {
			return
		}

		index := 0
		textOpen := false
		toolOpen := false

		for c, err := range chunks {
			if err != nil {
				yield(Event{Name: "error", Data: apischema.AnthropicErrorEvent{
					Type:  "error",
					Error: apischema.AnthropicErrorDetail{Type: "api_error", Message: err.Error()},
				}}, nil)
				return
			}
			if len(c.Choices) == 0 {
				continue
			}
			choice := c.Choices[0]
			delta := choice.Delta

			if delta.Content != "" {
				if !textOpen {
					if !yield(Event{Name: "content_block_start", Data: apischema.AnthropicContentBlockStartEvent{
						Type:         "content_block_start",
						Index:        index,
						ContentBlock: apischema.AnthropicContentBlock{Type: "text", Text: ""},
					}}, nil) {
						return
					}
					textOpen = true
				}
				if !yield(Event{Name: "content_block_delta", Data: apischema.AnthropicContentBlockDeltaEvent{
					Type:  "content_block_delta",
					Index: index,
					Delta: apischema.AnthropicContentBlockDelta{Type: "text_delta", Text: delta.Content},
				}}, nil) {
					return
				}
			}

			for _, tc := range delta.ToolCalls {
				if tc.ID != "" && tc.Function.Name != "" {
					if textOpen {
						if !yield(Event{Name: "content_block_stop", Data: apischema.AnthropicContentBlockStopEvent{
							Type: "content_block_stop", Index: index,
						}}, nil) {
							return
						}
						index++
						textOpen = false
					} else if toolOpen {
						index++
					}
					if !yield(Event{Name: "content_block_start", Data: apischema.AnthropicContentBlockStartEvent{
						Type:  "content_block_start",
						Index: index,
						ContentBlock: apischema.AnthropicContentBlock{
							Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: map[string]any{},
						},
					}}, nil) {
						return
					}
					toolOpen = true
				}
				if tc.Function.Arguments != "" {
					if !yield(Event{Name: "content_block_delta", Data: apischema.AnthropicContentBlockDeltaEvent{
						Type:  "content_block_delta",
						Index: index,
						Delta: apischema.AnthropicContentBlockDelta{Type: "input_json_delta", PartialJSON: tc.Function.Arguments},
					}}, nil) {
						return
					}
				}
			}

			if choice.FinishReason != nil {
				var usage apischema.AnthropicUsage
				if c.Usage != nil {
					usage = apischema.AnthropicUsage{
						InputTokens:  c.Usage.PromptTokens,
						OutputTokens: c.Usage.CompletionTokens,
					}
				}
				if textOpen || toolOpen {
					if !yield(Event{Name: "content_block_stop", Data: apischema.AnthropicContentBlockStopEvent{
						Type: "content_block_stop", Index: index,
					}}, nil) {
						return
					}
				}
				stopReason, ok := stopReasonMapping[*choice.FinishReason]
				if !ok {
					stopReason = "end_turn"
				}
				if !yield(Event{Name: "message_delta", Data: apischema.AnthropicMessageDeltaEvent{
					Type:  "message_delta",
					Delta: apischema.AnthropicMessageDelta{StopReason: stopReason},
					Usage: usage,
				}}, nil) {
					return
				}
				yield(Event{Name: "message_stop", Data: apischema.AnthropicMessageStopEvent{Type: "message_stop"}}, nil)
				return
			}
		}
	}
}
