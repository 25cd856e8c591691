package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/relaywave/agentbridge/internal/apischema"
	"github.com/relaywave/agentbridge/internal/wireproto"
)

func newMessagesHandler(u *fakeUpstream) *MessagesHandler {
	return &MessagesHandler{Streamer: u, Codec: wireproto.NewJSONCodec(), DefaultModel: "claude-sonnet-4-5"}
}

func TestMessagesNonStreaming(t *testing.T) {
	h := newMessagesHandler(textReplyUpstream())

	body := `{"model":"claude-sonnet-4-5","max_tokens":100,"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	var resp apischema.MessagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Type != "message" || resp.Role != "assistant" {
		t.Fatalf("resp = %+v", resp)
	}
	if len(resp.Content) != 1 || resp.Content[0].Text != "hello there" {
		t.Fatalf("content = %+v, want one text block with %q", resp.Content, "hello there")
	}
}

func TestMessagesStreaming(t *testing.T) {
	h := newMessagesHandler(textReplyUpstream())

	body := `{"model":"claude-sonnet-4-5","max_tokens":100,"stream":true,"messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	out := rec.Body.String()
	if !strings.Contains(out, "event: message_start") {
		t.Fatalf("stream missing message_start event: %s", out)
	}
	if !strings.Contains(out, "event: message_stop") {
		t.Fatalf("stream missing message_stop event: %s", out)
	}
	if !strings.Contains(out, "hello there") {
		t.Fatalf("stream missing delta text: %s", out)
	}
}

func TestMessagesRejectsEmptyMessages(t *testing.T) {
	h := newMessagesHandler(textReplyUpstream())

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model":"x","messages":[]}`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMergePartialJSON(t *testing.T) {
	merged := mergePartialJSON(nil, `{"path":"a.go"}`)
	if merged["path"] != "a.go" {
		t.Fatalf("merged = %+v", merged)
	}

	// A malformed fragment leaves the existing accumulator untouched.
	merged = mergePartialJSON(merged, `not json`)
	if merged["path"] != "a.go" {
		t.Fatalf("merged after bad fragment = %+v", merged)
	}

	merged = mergePartialJSON(merged, "")
	if merged["path"] != "a.go" {
		t.Fatalf("merged after empty fragment = %+v", merged)
	}
}
