package proxy

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/relaywave/agentbridge/internal/apischema"
	"github.com/relaywave/agentbridge/internal/events"
	"github.com/relaywave/agentbridge/internal/wireproto"
)

// fakeUpstream satisfies recovery.Streamer and yields a fixed event sequence,
// ignoring the packet it is given.
type fakeUpstream struct {
	events []events.Event
}

func (f *fakeUpstream) Stream(ctx context.Context, packet wireproto.Value) iter.Seq2[events.Event, error] {
	return func(yield func(events.Event, error) bool) {
		for _, ev := range f.events {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func textReplyUpstream() *fakeUpstream {
	return &fakeUpstream{events: []events.Event{
		{ClientActions: &events.ClientActions{Actions: []events.Action{{
			AppendToMessageContent: &events.AppendToMessageContent{Text: "hello there"},
		}}}},
		{Finished: &events.Finished{}},
	}}
}

func newChatHandler(u *fakeUpstream) *ChatCompletionsHandler {
	return &ChatCompletionsHandler{Streamer: u, Codec: wireproto.NewJSONCodec(), DefaultModel: "claude-sonnet-4-5"}
}

func TestChatCompletionsNonStreaming(t *testing.T) {
	h := newChatHandler(textReplyUpstream())

	body := `{"model":"claude-sonnet-4-5","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	var resp apischema.ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("got %d choices, want 1", len(resp.Choices))
	}
	if resp.Choices[0].Message.Content != "hello there" {
		t.Fatalf("content = %q, want %q", resp.Choices[0].Message.Content, "hello there")
	}
	if resp.Choices[0].FinishReason == nil || *resp.Choices[0].FinishReason != "stop" {
		t.Fatalf("finish_reason = %+v, want stop", resp.Choices[0].FinishReason)
	}
}

func TestChatCompletionsStreaming(t *testing.T) {
	h := newChatHandler(textReplyUpstream())

	body := `{"model":"claude-sonnet-4-5","stream":true,"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	out := rec.Body.String()
	if !strings.Contains(out, "hello there") {
		t.Fatalf("stream body missing delta content: %s", out)
	}
	if !strings.Contains(out, "[DONE]") {
		t.Fatalf("stream body missing termination marker: %s", out)
	}
}

func TestChatCompletionsRejectsEmptyMessages(t *testing.T) {
	h := newChatHandler(textReplyUpstream())

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"x","messages":[]}`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChatCompletionsDefaultsModel(t *testing.T) {
	h := newChatHandler(textReplyUpstream())

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	var resp apischema.ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Model != "claude-sonnet-4-5" {
		t.Fatalf("model = %q, want default", resp.Model)
	}
}

func TestMergeToolCallDelta(t *testing.T) {
	var calls []apischema.ToolCallRequest
	calls = mergeToolCallDelta(calls, apischema.ToolCallDelta{Index: 0, ID: "call_1", Function: apischema.FunctionCallDelta{Name: "read_file"}})
	calls = mergeToolCallDelta(calls, apischema.ToolCallDelta{Index: 0, Function: apischema.FunctionCallDelta{Arguments: `{"path":`}})
	calls = mergeToolCallDelta(calls, apischema.ToolCallDelta{Index: 0, Function: apischema.FunctionCallDelta{Arguments: `"a.go"}`}})

	if len(calls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Function.Name != "read_file" {
		t.Fatalf("tool call = %+v", calls[0])
	}
	if calls[0].Function.Arguments != `{"path":"a.go"}` {
		t.Fatalf("arguments = %q", calls[0].Function.Arguments)
	}
}
