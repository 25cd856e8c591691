package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/relaywave/agentbridge/internal/apischema"
	"github.com/relaywave/agentbridge/internal/assembler"
	"github.com/relaywave/agentbridge/internal/history"
	"github.com/relaywave/agentbridge/internal/recovery"
	anthropictranslate "github.com/relaywave/agentbridge/internal/translate/anthropic"
	"github.com/relaywave/agentbridge/internal/wireproto"
)

// MessagesHandler serves POST /v1/messages: the Anthropic Messages protocol,
// built on the same assembler/recovery pipeline as ChatCompletionsHandler but
// re-translated into Anthropic's SSE event shape.
type MessagesHandler struct {
	Streamer     recovery.Streamer
	Codec        wireproto.Codec
	DefaultModel string
}

var _ http.Handler = (*MessagesHandler)(nil)

func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req apischema.MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.ErrorContext(ctx, "failed to decode request", "error", err)
		writeJSONError(ctx, w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		writeJSONError(ctx, w, "messages must not be empty", http.StatusBadRequest)
		return
	}

	model := req.Model
	if model == "" {
		model = h.DefaultModel
	}

	var systemPrompts []string
	if req.System != "" {
		systemPrompts = append(systemPrompts, req.System)
	}

	hist := history.Normalize(anthropicHistory(req.Messages))
	packet := assembler.Build(assembler.Request{
		Model:         model,
		History:       hist,
		SystemPrompts: systemPrompts,
		Tools:         anthropicTools(h.Codec, req.Tools),
	})

	driver := &recovery.Driver{
		Streamer:            h.Streamer,
		Codec:               h.Codec,
		CompletionID:        "chatcmpl-" + uuid.NewString(),
		Created:             time.Now().Unix(),
		Model:               model,
		FallbackInputTokens: fallbackInputTokens(hist, systemPrompts),
	}

	if req.Stream {
		h.streamResponse(ctx, w, packet, driver, model)
	} else {
		h.writeResponse(ctx, w, packet, driver, model)
	}
}

// streamResponse re-translates the OpenAI-shaped chunk stream into named
// Anthropic SSE events.
func (h *MessagesHandler) streamResponse(ctx context.Context, w http.ResponseWriter, packet wireproto.Value, driver *recovery.Driver, model string) {
	if ctx.Err() != nil {
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		slog.ErrorContext(ctx, "SSE not supported", "error", err)
		writeJSONError(ctx, w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	for ev, err := range anthropictranslate.Translate(driver.Stream(ctx, packet), model) {
		if ctx.Err() != nil {
			slog.DebugContext(ctx, "client disconnected during stream")
			return
		}
		if err != nil {
			slog.ErrorContext(ctx, "stream error", "error", err)
			return
		}
		if err := sse.WriteEvent(ev.Name, ev.Data); err != nil {
			slog.ErrorContext(ctx, "failed to write event", "error", err)
			return
		}
	}
}

// writeResponse collects the Anthropic event stream into a single
// non-streaming Messages response.
func (h *MessagesHandler) writeResponse(ctx context.Context, w http.ResponseWriter, packet wireproto.Value, driver *recovery.Driver, model string) {
	if ctx.Err() != nil {
		return
	}

	resp := apischema.MessagesResponse{
		ID:    driver.CompletionID,
		Type:  "message",
		Role:  "assistant",
		Model: model,
	}

	var textOpen bool
	var toolOpen bool

	for ev, err := range anthropictranslate.Translate(driver.Stream(ctx, packet), model) {
		if err != nil {
			slog.ErrorContext(ctx, "request failed", "error", err)
			writeJSONError(ctx, w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		switch data := ev.Data.(type) {
		case apischema.AnthropicContentBlockStartEvent:
			resp.Content = append(resp.Content, data.ContentBlock)
			textOpen = data.ContentBlock.Type == "text"
			toolOpen = data.ContentBlock.Type == "tool_use"
		case apischema.AnthropicContentBlockDeltaEvent:
			if len(resp.Content) == 0 {
				continue
			}
			last := &resp.Content[len(resp.Content)-1]
			if textOpen {
				last.Text += data.Delta.Text
			} else if toolOpen {
				last.Input = mergePartialJSON(last.Input, data.Delta.PartialJSON)
			}
		case apischema.AnthropicMessageDeltaEvent:
			resp.StopReason = data.Delta.StopReason
			resp.StopSequence = data.Delta.StopSequence
			resp.Usage = data.Usage
		}
	}

	writeJSON(ctx, w, resp, http.StatusOK)
}

// mergePartialJSON accumulates streamed input_json_delta fragments. The
// translator emits one fragment per tool call (the upstream never streams
// partial tool arguments token-by-token), so a plain decode suffices.
func mergePartialJSON(existing map[string]any, fragment string) map[string]any {
	if fragment == "" {
		return existing
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(fragment), &parsed); err != nil {
		return existing
	}
	if existing == nil {
		return parsed
	}
	for k, v := range parsed {
		existing[k] = v
	}
	return existing
}
