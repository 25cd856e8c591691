package openai

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/relaywave/agentbridge/internal/apischema"
	"github.com/relaywave/agentbridge/internal/events"
	"github.com/relaywave/agentbridge/internal/wireproto"
)

func seqFrom(evs []events.Event) iter.Seq2[events.Event, error] {
	return func(yield func(events.Event, error) bool) {
		for _, ev := range evs {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func collect(t *testing.T, tr *Translator, evs []events.Event, emitRole bool) ([]apischema.ChatCompletionChunk, error) {
	t.Helper()
	var out []apischema.ChatCompletionChunk
	for c, err := range tr.Translate(seqFrom(evs), emitRole) {
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}

func TestTranslateRoleThenContentThenUsage(t *testing.T) {
	tr := New(wireproto.NewJSONCodec(), "cmpl-1", 0, "claude-3-sonnet", 100)

	evs := []events.Event{
		{ClientActions: &events.ClientActions{Actions: []events.Action{{
			AppendToMessageContent: &events.AppendToMessageContent{Text: "hello"},
		}}}},
		{Finished: &events.Finished{}},
	}

	chunks, err := collect(t, tr, evs, true)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3 (role, content, done): %+v", len(chunks), chunks)
	}
	if chunks[0].Choices[0].Delta.Role != "assistant" {
		t.Fatalf("first chunk role = %q, want assistant", chunks[0].Choices[0].Delta.Role)
	}
	if chunks[1].Choices[0].Delta.Content != "hello" {
		t.Fatalf("second chunk content = %q, want hello", chunks[1].Choices[0].Delta.Content)
	}
	last := chunks[2]
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "stop" {
		t.Fatalf("finish reason = %+v, want stop", last.Choices[0].FinishReason)
	}
	if last.Usage == nil || last.Usage.CompletionTokens < 1 {
		t.Fatalf("usage = %+v, want non-nil with completion_tokens >= 1", last.Usage)
	}
}

func TestTranslateSkipsRoleChunkOnRetry(t *testing.T) {
	tr := New(wireproto.NewJSONCodec(), "cmpl-1", 0, "claude-3-sonnet", 100)
	evs := []events.Event{{Finished: &events.Finished{}}}

	chunks, err := collect(t, tr, evs, false)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 (no role chunk)", len(chunks))
	}
}

func TestTranslateToolCall(t *testing.T) {
	tr := New(wireproto.NewJSONCodec(), "cmpl-1", 0, "gpt-4", 100)
	evs := []events.Event{
		{ClientActions: &events.ClientActions{Actions: []events.Action{{
			AddMessagesToTask: &events.AddMessagesToTask{Messages: []events.Message{{
				ToolCall: &events.ToolCall{
					ToolCallID: "tc-1",
					Name:       "Bash",
					Args:       wireproto.Map(map[string]wireproto.Value{"command": wireproto.Text("ls")}),
				},
			}}},
		}}}},
		{Finished: &events.Finished{}},
	}

	chunks, err := collect(t, tr, evs, true)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	toolChunk := chunks[1]
	tc := toolChunk.Choices[0].Delta.ToolCalls
	if len(tc) != 1 || tc[0].ID != "tc-1" || tc[0].Function.Name != "Bash" {
		t.Fatalf("tool call delta = %+v, want id=tc-1 name=Bash", tc)
	}
	var args map[string]string
	if err := json.Unmarshal([]byte(tc[0].Function.Arguments), &args); err != nil {
		t.Fatalf("arguments not valid JSON: %v", err)
	}
	if args["command"] != "ls" {
		t.Fatalf("args = %+v, want command=ls", args)
	}

	done := chunks[len(chunks)-1]
	if done.Choices[0].FinishReason == nil || *done.Choices[0].FinishReason != "tool_calls" {
		t.Fatalf("finish_reason = %+v, want tool_calls", done.Choices[0].FinishReason)
	}
}

func TestTranslateEmbeddedTaskList(t *testing.T) {
	codec := wireproto.NewJSONCodec()
	container := wireproto.Map(map[string]wireproto.Value{
		"1": wireproto.List(wireproto.Map(map[string]wireproto.Value{
			"1": wireproto.Bool(true),
			"2": wireproto.Text("write the code"),
		})),
		"2": wireproto.List(wireproto.Map(map[string]wireproto.Value{
			"1": wireproto.Bool(true),
			"2": wireproto.Text("set up the repo"),
		})),
	})
	taskData := wireproto.Map(map[string]wireproto.Value{
		"11": wireproto.Map(map[string]wireproto.Value{"1": container}),
	})
	raw, err := codec.Encode(taskData, "")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	serialized := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(raw)

	tr := New(codec, "cmpl-1", 0, "gpt-4", 100)
	evs := []events.Event{
		{ClientActions: &events.ClientActions{Actions: []events.Action{{
			AddMessagesToTask: &events.AddMessagesToTask{Messages: []events.Message{{
				ToolCallResult: &events.ToolCallResult{ToolCallID: "tc-9", SerializedResult: serialized},
			}}},
		}}}},
		{Finished: &events.Finished{}},
	}

	chunks, err := collect(t, tr, evs, true)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	todoChunk := chunks[1]
	tc := todoChunk.Choices[0].Delta.ToolCalls
	if len(tc) != 1 || tc[0].Function.Name != "TodoWrite" || tc[0].ID != "tc-9" {
		t.Fatalf("todo chunk = %+v, want TodoWrite/tc-9", tc)
	}
	if !strings.Contains(tc[0].Function.Arguments, "write the code") || !strings.Contains(tc[0].Function.Arguments, "set up the repo") {
		t.Fatalf("todo args = %s, want both task descriptions", tc[0].Function.Arguments)
	}
}

func TestTranslateInternalErrorIsRecoverable(t *testing.T) {
	tr := New(wireproto.NewJSONCodec(), "cmpl-1", 0, "gpt-4", 100)
	evs := []events.Event{
		{Finished: &events.Finished{InternalError: &events.InternalError{Message: "tool_call:{read_files:{}}"}}},
	}

	_, err := collect(t, tr, evs, true)
	var recErr *RecoverableError
	if err == nil {
		t.Fatal("expected a recoverable error")
	}
	if !errors.As(err, &recErr) {
		t.Fatalf("error = %v, want *RecoverableError", err)
	}
	if recErr.Kind != RecoverableInternalTool || recErr.ToolName != "read_files" {
		t.Fatalf("RecoverableError = %+v, want INTERNAL_TOOL/read_files", recErr)
	}
}

func TestTranslateLLMUnavailableIsRecoverable(t *testing.T) {
	tr := New(wireproto.NewJSONCodec(), "cmpl-1", 0, "gpt-4", 100)
	evs := []events.Event{{Finished: &events.Finished{LLMUnavailable: true}}}

	_, err := collect(t, tr, evs, true)
	var recErr *RecoverableError
	if !errors.As(err, &recErr) || recErr.Kind != RecoverableLLMUnavailable {
		t.Fatalf("error = %v, want RecoverableError{Kind: LLM_UNAVAILABLE}", err)
	}
}

func TestTranslatePromptTokensFromContextWindowRatio(t *testing.T) {
	tr := New(wireproto.NewJSONCodec(), "cmpl-1", 0, "claude-3-sonnet", 9999)
	evs := []events.Event{{Finished: &events.Finished{ContextWindowInfo: 0.5, HasContextWindowInfo: true}}}

	chunks, err := collect(t, tr, evs, true)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	usage := chunks[len(chunks)-1].Usage
	if usage == nil || usage.PromptTokens != 100000 {
		t.Fatalf("usage = %+v, want prompt_tokens=100000 (0.5 * 200000)", usage)
	}
}

func TestContextResetNoticeIncludesPendingTasks(t *testing.T) {
	notice := contextResetNotice("blah\n\nPending Tasks:\n- finish the thing\n\nmore text")
	if !strings.Contains(notice, "finish the thing") {
		t.Fatalf("notice = %q, want it to include the pending task", notice)
	}
}
