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
	"github.com/relaywave/agentbridge/internal/tokencount"
	"github.com/relaywave/agentbridge/internal/wireproto"
)

// ChatCompletionsHandler serves POST /v1/chat/completions: the OpenAI chat
// completions protocol, layered over the upstream exchange via
// internal/assembler and internal/recovery.
type ChatCompletionsHandler struct {
	Streamer     recovery.Streamer
	Codec        wireproto.Codec
	DefaultModel string
}

var _ http.Handler = (*ChatCompletionsHandler)(nil)

func (h *ChatCompletionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req apischema.CreateChatCompletionRequest
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

	rawHist, systemPrompts := openAIHistory(req.Messages)
	hist := history.Normalize(rawHist)
	packet := assembler.Build(assembler.Request{
		Model:         model,
		History:       hist,
		SystemPrompts: systemPrompts,
		Tools:         openAITools(h.Codec, req.Tools),
	})

	driver := &recovery.Driver{
		Streamer:            h.Streamer,
		Codec:               h.Codec,
		CompletionID:        "chatcmpl-" + uuid.NewString(),
		Created:             time.Now().Unix(),
		Model:               model,
		FallbackInputTokens: fallbackInputTokens(hist, systemPrompts),
	}

	streaming := req.Stream != nil && *req.Stream
	if streaming {
		h.streamResponse(ctx, w, packet, driver)
	} else {
		h.writeResponse(ctx, w, packet, driver)
	}
}

// streamResponse streams chat completion chunks using SSE.
func (h *ChatCompletionsHandler) streamResponse(ctx context.Context, w http.ResponseWriter, packet wireproto.Value, driver *recovery.Driver) {
	if ctx.Err() != nil {
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		slog.ErrorContext(ctx, "SSE not supported", "error", err)
		writeJSONError(ctx, w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	for chunk, err := range driver.Stream(ctx, packet) {
		if ctx.Err() != nil {
			slog.DebugContext(ctx, "client disconnected during stream")
			return
		}
		if err != nil {
			slog.ErrorContext(ctx, "stream error", "error", err)
			if writeErr := sse.WriteData(apischema.ChatCompletionChunk{Error: &apischema.ChunkError{Message: err.Error()}}); writeErr != nil {
				slog.ErrorContext(ctx, "failed to write error", "error", writeErr)
			}
			return
		}
		if err := sse.WriteData(chunk); err != nil {
			slog.ErrorContext(ctx, "failed to write chunk", "error", err)
			return
		}
	}

	if err := sse.WriteRaw("[DONE]"); err != nil {
		slog.ErrorContext(ctx, "failed to write stream termination marker", "error", err)
	}
}

// writeResponse collects the chunk stream into a single non-streaming
// response, accumulating text content, tool calls, and usage the way a
// real OpenAI-compatible backend would.
func (h *ChatCompletionsHandler) writeResponse(ctx context.Context, w http.ResponseWriter, packet wireproto.Value, driver *recovery.Driver) {
	if ctx.Err() != nil {
		return
	}

	var content string
	var toolCalls []apischema.ToolCallRequest
	finishReason := "stop"
	var usage *apischema.Usage

	for chunk, err := range driver.Stream(ctx, packet) {
		if err != nil {
			slog.ErrorContext(ctx, "request failed", "error", err)
			writeJSONError(ctx, w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		content += choice.Delta.Content
		for _, tc := range choice.Delta.ToolCalls {
			toolCalls = mergeToolCallDelta(toolCalls, tc)
		}
		if choice.FinishReason != nil {
			finishReason = *choice.FinishReason
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}

	response := apischema.ChatCompletionResponse{
		ID:      driver.CompletionID,
		Object:  "chat.completion",
		Created: driver.Created,
		Model:   driver.Model,
		Choices: []apischema.ChatCompletionChoice{{
			Index: 0,
			Message: apischema.ChatCompletionMessage{
				Role:      "assistant",
				Content:   content,
				ToolCalls: toolCalls,
			},
			FinishReason: &finishReason,
		}},
		Usage: usage,
	}
	writeJSON(ctx, w, response, http.StatusOK)
}

// mergeToolCallDelta accumulates a streamed tool-call delta into the
// in-progress non-streaming tool-calls list, matching chunks by index.
func mergeToolCallDelta(toolCalls []apischema.ToolCallRequest, delta apischema.ToolCallDelta) []apischema.ToolCallRequest {
	for delta.Index >= len(toolCalls) {
		toolCalls = append(toolCalls, apischema.ToolCallRequest{Type: "function"})
	}
	tc := &toolCalls[delta.Index]
	if delta.ID != "" {
		tc.ID = delta.ID
	}
	if delta.Function.Name != "" {
		tc.Function.Name += delta.Function.Name
	}
	tc.Function.Arguments += delta.Function.Arguments
	return toolCalls
}

func fallbackInputTokens(hist []history.ChatMessage, systemPrompts []string) int {
	messages := make([]tokencount.Message, 0, len(hist)+len(systemPrompts))
	for _, s := range systemPrompts {
		messages = append(messages, tokencount.Message{Role: "system", Content: s})
	}
	for _, m := range hist {
		messages = append(messages, tokencount.Message{Role: string(m.Role), Content: m.ContentText()})
	}
	return tokencount.CountMessages(messages)
}
