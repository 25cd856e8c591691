// Package openai translates a lazy sequence of upstream events into OpenAI
// chat-completion chunks.
package openai

import (
	"iter"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/relaywave/agentbridge/internal/apischema"
	"github.com/relaywave/agentbridge/internal/events"
	"github.com/relaywave/agentbridge/internal/tokencount"
	"github.com/relaywave/agentbridge/internal/wireproto"
)

var internalErrorToolPattern = regexp.MustCompile(`tool_call:\{[^}]*?(\w+):\{\}`)

// Translator emits the chunk stream for one completion_id. Its fields never
// change after construction; per-call mutable state (accumulated output
// text, whether any tool call was emitted) lives on the stack of Translate.
type Translator struct {
	codec               wireproto.Codec
	completionID        string
	created             int64
	model               string
	fallbackInputTokens int
}

func New(codec wireproto.Codec, completionID string, created int64, model string, fallbackInputTokens int) *Translator {
	return &Translator{
		codec:               codec,
		completionID:        completionID,
		created:             created,
		model:               model,
		fallbackInputTokens: fallbackInputTokens,
	}
}

// Translate consumes upstream events and emits OpenAI chat-completion
// chunks. emitRole controls whether the opening `delta.role=assistant`
// chunk is sent first; the recovery driver sets this false on retries so
// the role isn't re-emitted mid-stream. The sequence ends either after a
// clean `finished` chunk or with a *RecoverableError for the recovery
// driver to catch; the caller emits `data: [DONE]` once the sequence is
// fully drained without a non-recoverable error.
func (t *Translator) Translate(evs iter.Seq2[events.Event, error], emitRole bool) iter.Seq2[apischema.ChatCompletionChunk, error] {
	return func(yield func(apischema.ChatCompletionChunk, error) bool) {
		var outputText strings.Builder
		toolCallsEmitted := false

		if emitRole {
			if !yield(t.chunk(apischema.ChunkDelta{Role: "assistant"}, nil, nil), nil) {
				return
			}
		}

		for ev, err := range evs {
			if err != nil {
				yield(apischema.ChatCompletionChunk{}, err)
				return
			}

			if ev.ClientActions != nil {
				for _, action := range ev.ClientActions.Actions {
					for _, c := range t.handleAction(action, &outputText, &toolCallsEmitted) {
						if !yield(c, nil) {
							return
						}
					}
				}
			}

			if ev.Finished != nil {
				chunk, recErr := t.handleFinished(ev.Finished, &outputText, toolCallsEmitted)
				if recErr != nil {
					yield(apischema.ChatCompletionChunk{}, recErr)
					return
				}
				yield(chunk, nil)
				return
			}
		}
	}
}

func (t *Translator) chunk(delta apischema.ChunkDelta, finishReason *string, usage *apischema.Usage) apischema.ChatCompletionChunk {
	return apischema.ChatCompletionChunk{
		ID:      t.completionID,
		Object:  "chat.completion.chunk",
		Created: t.created,
		Model:   t.model,
		Choices: []apischema.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finishReason}},
		Usage:   usage,
	}
}

func (t *Translator) handleAction(a events.Action, outputText *strings.Builder, toolCallsEmitted *bool) []apischema.ChatCompletionChunk {
	var out []apischema.ChatCompletionChunk

	if a.AppendToMessageContent != nil && a.AppendToMessageContent.Text != "" {
		outputText.WriteString(a.AppendToMessageContent.Text)
		out = append(out, t.chunk(apischema.ChunkDelta{Content: a.AppendToMessageContent.Text}, nil, nil))
	}

	if a.AddMessagesToTask != nil {
		for _, m := range a.AddMessagesToTask.Messages {
			out = append(out, t.handleTaskMessage(m, outputText, toolCallsEmitted)...)
		}
	}

	if a.CreateTask != nil {
		for _, m := range a.CreateTask.Messages {
			if m.AgentOutput != nil && m.AgentOutput.Text != "" {
				outputText.WriteString(m.AgentOutput.Text)
				out = append(out, t.chunk(apischema.ChunkDelta{Content: m.AgentOutput.Text}, nil, nil))
			}
		}
	}

	if a.UpdateTaskMessage != nil && a.UpdateTaskMessage.Text != "" {
		outputText.WriteString(a.UpdateTaskMessage.Text)
		out = append(out, t.chunk(apischema.ChunkDelta{Content: a.UpdateTaskMessage.Text}, nil, nil))
	}

	if a.UpdateTaskSummary != nil && a.UpdateTaskSummary.Summary != "" {
		outputText.WriteString(a.UpdateTaskSummary.Summary)
		out = append(out, t.chunk(apischema.ChunkDelta{Content: a.UpdateTaskSummary.Summary}, nil, nil))
	}

	if a.UpdateTaskDescription != nil {
		notice := contextResetNotice(a.UpdateTaskDescription.Description)
		outputText.WriteString(notice)
		out = append(out, t.chunk(apischema.ChunkDelta{Content: notice}, nil, nil))
	}

	return out
}

// handleTaskMessage mirrors the original's message-dispatch order: a
// tool_call_result is checked first (and, if it isn't task-list data, emits
// nothing further), then a named tool_call, then plain agent_output text.
func (t *Translator) handleTaskMessage(m events.Message, outputText *strings.Builder, toolCallsEmitted *bool) []apischema.ChatCompletionChunk {
	if m.ToolCallResult != nil {
		container, ok := detectTaskList(t.codec, m.ToolCallResult.SerializedResult)
		if !ok {
			return nil
		}
		return []apischema.ChatCompletionChunk{t.chunk(apischema.ChunkDelta{
			ToolCalls: []apischema.ToolCallDelta{{
				Index:    0,
				ID:       m.ToolCallResult.ToolCallID,
				Type:     "function",
				Function: apischema.FunctionCallDelta{Name: "TodoWrite", Arguments: buildTodoArgs(container)},
			}},
		}, nil, nil)}
	}

	if m.ToolCall != nil && m.ToolCall.Name != "" {
		*toolCallsEmitted = true
		argsBytes, err := t.codec.Encode(m.ToolCall.Args, wireproto.MessageTypeRequest)
		if err != nil {
			argsBytes = []byte("{}")
		}
		id := m.ToolCall.ToolCallID
		if id == "" {
			id = uuid.NewString()
		}
		return []apischema.ChatCompletionChunk{t.chunk(apischema.ChunkDelta{
			ToolCalls: []apischema.ToolCallDelta{{
				Index:    0,
				ID:       id,
				Type:     "function",
				Function: apischema.FunctionCallDelta{Name: m.ToolCall.Name, Arguments: string(argsBytes)},
			}},
		}, nil, nil)}
	}

	if m.AgentOutput != nil && m.AgentOutput.Text != "" {
		outputText.WriteString(m.AgentOutput.Text)
		return []apischema.ChatCompletionChunk{t.chunk(apischema.ChunkDelta{Content: m.AgentOutput.Text}, nil, nil)}
	}

	return nil
}

func (t *Translator) handleFinished(f *events.Finished, outputText *strings.Builder, toolCallsEmitted bool) (apischema.ChatCompletionChunk, error) {
	if f.InternalError != nil {
		toolName := ""
		if m := internalErrorToolPattern.FindStringSubmatch(f.InternalError.Message); m != nil {
			toolName = m[1]
		}
		return apischema.ChatCompletionChunk{}, &RecoverableError{
			Kind:     RecoverableInternalTool,
			ToolName: toolName,
			Message:  f.InternalError.Message,
		}
	}

	if f.LLMUnavailable {
		return apischema.ChatCompletionChunk{}, &RecoverableError{Kind: RecoverableLLMUnavailable}
	}

	completionTokens := tokencount.CountText(outputText.String())

	promptTokens := t.fallbackInputTokens
	if f.HasContextWindowInfo && f.ContextWindowInfo > 0 && f.ContextWindowInfo <= 1 {
		promptTokens = tokencount.PromptTokensFromRatio(t.model, f.ContextWindowInfo)
	} else if promptTokens <= 0 {
		promptTokens = 1000
	}

	finishReason := "stop"
	if toolCallsEmitted {
		finishReason = "tool_calls"
	}

	return t.chunk(apischema.ChunkDelta{}, &finishReason, &apischema.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}), nil
}
