// Package recovery wraps internal/translate/openai with bounded self-healing:
// it catches the translator's recoverable errors, mutates the packet with a
// recovery hint, and retries the upstream exchange once.
package recovery

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/relaywave/agentbridge/internal/apischema"
	"github.com/relaywave/agentbridge/internal/events"
	"github.com/relaywave/agentbridge/internal/tokencount"
	"github.com/relaywave/agentbridge/internal/translate/openai"
	"github.com/relaywave/agentbridge/internal/wireproto"
)

// Streamer is the narrow upstream-exchange seam Driver depends on;
// *streamer.Streamer satisfies it.
type Streamer interface {
	Stream(ctx context.Context, packet wireproto.Value) iter.Seq2[events.Event, error]
}

const (
	internalToolMarker  = "[system auto-recovery]"
	llmUnavailableMarkA = "continue task"
	llmUnavailableMarkB = "[auto-recovery]"
)

// Driver runs one public-API request end to end against the upstream
// streamer, retrying a recoverable failure at most once.
type Driver struct {
	Streamer            Streamer
	Codec               wireproto.Codec
	CompletionID        string
	Created             int64
	Model               string
	FallbackInputTokens int
}

// Stream runs packet through the upstream exchange and translator, retrying
// once on a recoverable error. Chunks are emitted in order; the opening
// `role` chunk is only emitted on the first attempt.
func (d *Driver) Stream(ctx context.Context, packet wireproto.Value) iter.Seq2[apischema.ChatCompletionChunk, error] {
	return func(yield func(apischema.ChatCompletionChunk, error) bool) {
		d.stream(ctx, packet, 0, nil, yield)
	}
}

func (d *Driver) stream(ctx context.Context, packet wireproto.Value, retryCount int, restrictedTools []string, yield func(apischema.ChatCompletionChunk, error) bool) bool {
	evs := d.Streamer.Stream(ctx, packet)
	tr := openai.New(d.Codec, d.CompletionID, d.Created, d.Model, d.FallbackInputTokens)

	var streamErr error
	for c, err := range tr.Translate(evs, retryCount == 0) {
		if err != nil {
			streamErr = err
			break
		}
		if !yield(c, nil) {
			return false
		}
	}
	if streamErr == nil {
		return true
	}

	var recErr *openai.RecoverableError
	if !errors.As(streamErr, &recErr) {
		return yield(apischema.ChatCompletionChunk{}, streamErr)
	}

	switch recErr.Kind {
	case openai.RecoverableInternalTool:
		if retryCount >= 1 {
			return d.giveUpInternalTool(recErr.ToolName, yield)
		}
		restrictedTools = append(restrictedTools, recErr.ToolName)
		next := appendRecoveryHint(packet, internalToolHint(recErr.ToolName), internalToolMarker)
		if !d.emitNotice(internalToolRecoveringNotice, yield) {
			return false
		}
		return d.stream(ctx, next, retryCount+1, restrictedTools, yield)

	case openai.RecoverableLLMUnavailable:
		if retryCount >= 1 {
			return d.giveUpLLMUnavailable(yield)
		}
		next := appendRecoveryHint(packet, llmUnavailableHint, llmUnavailableMarkA, llmUnavailableMarkB)
		if !d.emitNotice(llmUnavailableRecoveringNotice, yield) {
			return false
		}
		return d.stream(ctx, next, retryCount+1, restrictedTools, yield)

	default:
		return yield(apischema.ChatCompletionChunk{}, streamErr)
	}
}

const (
	internalToolRecoveringNotice   = "\n\n🔄 **Auto-recovering...**\n\nA tool-restriction conflict was detected; retrying the task.\n"
	llmUnavailableRecoveringNotice = "\n\n🔄 **LLM service temporarily unavailable, auto-retrying...**\n\n"
	llmUnavailableHint             = "\n\n[auto-recovery] Continue the previous task."
)

func internalToolHint(toolName string) string {
	if toolName == "" {
		return "\n\n[system auto-recovery] Please continue the task using the available MCP tools."
	}
	return "\n\n[system auto-recovery] Please continue the task but do not use the " + toolName +
		" tool. Available tools: Read, Write, Edit, Bash, Glob, Grep, and other MCP tools."
}

func (d *Driver) emitNotice(text string, yield func(apischema.ChatCompletionChunk, error) bool) bool {
	return yield(apischema.ChatCompletionChunk{
		ID: d.CompletionID, Object: "chat.completion.chunk", Created: d.Created, Model: d.Model,
		Choices: []apischema.ChunkChoice{{Index: 0, Delta: apischema.ChunkDelta{Content: text}}},
	}, nil)
}

func (d *Driver) giveUpInternalTool(toolName string, yield func(apischema.ChatCompletionChunk, error) bool) bool {
	text := "\n\n⚠️ **Internal service error (could not auto-recover)**\n\n" +
		"The model repeatedly tried to call the restricted tool `" + toolName + "`.\n\n" +
		"**Suggested fixes:**\n" +
		"• 🔄 Rephrase your request\n" +
		"• 💡 Narrow its scope\n" +
		"• 📝 Call out which actions to avoid\n"
	return d.giveUp(text, yield)
}

func (d *Driver) giveUpLLMUnavailable(yield func(apischema.ChatCompletionChunk, error) bool) bool {
	text := "\n\n⚠️ **LLM service temporarily unavailable**\n\nPlease retry shortly.\n"
	return d.giveUp(text, yield)
}

func (d *Driver) giveUp(text string, yield func(apischema.ChatCompletionChunk, error) bool) bool {
	if !d.emitNotice(text, yield) {
		return false
	}
	finish := "stop"
	completion := tokencount.CountText(text)
	done := apischema.ChatCompletionChunk{
		ID: d.CompletionID, Object: "chat.completion.chunk", Created: d.Created, Model: d.Model,
		Choices: []apischema.ChunkChoice{{Index: 0, FinishReason: &finish}},
		Usage: &apischema.Usage{
			CompletionTokens: completion,
			TotalTokens:      completion,
		},
	}
	return yield(done, nil)
}

// appendRecoveryHint deep-copies packet and appends hint to the last
// user_query.query, unless one of markers is already present (idempotent
// across retries).
func appendRecoveryHint(packet wireproto.Value, hint string, markers ...string) wireproto.Value {
	next := deepCopy(packet)

	input, ok := next.Get("input")
	if !ok {
		return next
	}
	userInputs, ok := input.Get("user_inputs", "userInputs")
	if !ok {
		return next
	}
	inputsVal, ok := userInputs.Get("inputs")
	if !ok || inputsVal.Kind != wireproto.KindList || len(inputsVal.List) == 0 {
		return next
	}
	last := inputsVal.List[len(inputsVal.List)-1]
	userQuery, ok := last.Get("user_query", "userQuery")
	if !ok || userQuery.Kind != wireproto.KindMap {
		return next
	}

	current := userQuery.GetString("query")
	for _, m := range markers {
		if strings.Contains(current, m) {
			return next
		}
	}
	userQuery.Set("query", wireproto.Text(current+hint))
	return next
}

// deepCopy clones a Value tree so mutating the copy never touches the
// caller's packet (Value.Map/List are reference types).
func deepCopy(v wireproto.Value) wireproto.Value {
	switch v.Kind {
	case wireproto.KindMap:
		m := make(map[string]wireproto.Value, len(v.Map))
		for k, val := range v.Map {
			m[k] = deepCopy(val)
		}
		return wireproto.Map(m)
	case wireproto.KindList:
		l := make([]wireproto.Value, len(v.List))
		for i, val := range v.List {
			l[i] = deepCopy(val)
		}
		return wireproto.Value{Kind: wireproto.KindList, List: l}
	default:
		return v
	}
}
