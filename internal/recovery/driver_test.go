package recovery

import (
	"context"
	"iter"
	"strings"
	"testing"

	"github.com/relaywave/agentbridge/internal/apischema"
	"github.com/relaywave/agentbridge/internal/events"
	"github.com/relaywave/agentbridge/internal/wireproto"
)

type fakeStreamer struct {
	calls   [][]events.Event
	index   int
	packets []wireproto.Value
}

func (f *fakeStreamer) Stream(ctx context.Context, packet wireproto.Value) iter.Seq2[events.Event, error] {
	f.packets = append(f.packets, packet)
	evs := f.calls[f.index]
	f.index++
	return func(yield func(events.Event, error) bool) {
		for _, ev := range evs {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func samplePacket() wireproto.Value {
	return wireproto.Map(map[string]wireproto.Value{
		"input": wireproto.Map(map[string]wireproto.Value{
			"user_inputs": wireproto.Map(map[string]wireproto.Value{
				"inputs": wireproto.List(wireproto.Map(map[string]wireproto.Value{
					"user_query": wireproto.Map(map[string]wireproto.Value{
						"query": wireproto.Text("do the thing"),
					}),
				})),
			}),
		}),
	})
}

func collectChunks(d *Driver, packet wireproto.Value) []apischema.ChatCompletionChunk {
	var out []apischema.ChatCompletionChunk
	for c := range d.Stream(context.Background(), packet) {
		out = append(out, c)
	}
	return out
}

func TestDriverCleanFinishNoRetry(t *testing.T) {
	fs := &fakeStreamer{calls: [][]events.Event{
		{
			{ClientActions: &events.ClientActions{Actions: []events.Action{{
				AppendToMessageContent: &events.AppendToMessageContent{Text: "hi"},
			}}}},
			{Finished: &events.Finished{}},
		},
	}}
	d := &Driver{Streamer: fs, Codec: wireproto.NewJSONCodec(), CompletionID: "c1", Model: "gpt-4", FallbackInputTokens: 100}

	chunks := collectChunks(d, samplePacket())
	if fs.index != 1 {
		t.Fatalf("streamer called %d times, want 1 (no retry)", fs.index)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
}

func TestDriverRecoversFromInternalToolThenSucceeds(t *testing.T) {
	fs := &fakeStreamer{calls: [][]events.Event{
		{{Finished: &events.Finished{InternalError: &events.InternalError{Message: "tool_call:{read_files:{}}"}}}},
		{{Finished: &events.Finished{}}},
	}}
	d := &Driver{Streamer: fs, Codec: wireproto.NewJSONCodec(), CompletionID: "c1", Model: "gpt-4", FallbackInputTokens: 100}

	chunks := collectChunks(d, samplePacket())
	if fs.index != 2 {
		t.Fatalf("streamer called %d times, want 2 (one retry)", fs.index)
	}

	var sawNotice, sawTerminal bool
	for _, c := range chunks {
		if strings.Contains(c.Choices[0].Delta.Content, "Auto-recovering") {
			sawNotice = true
		}
		if c.Choices[0].FinishReason != nil {
			sawTerminal = true
		}
	}
	if !sawNotice {
		t.Fatalf("expected an auto-recovering notice chunk, got %+v", chunks)
	}
	if !sawTerminal {
		t.Fatalf("expected a terminal chunk after the retry succeeded, got %+v", chunks)
	}

	retryPacket := fs.packets[1]
	query := retryPacket.Map["input"].Map["user_inputs"].Map["inputs"].List[0].Map["user_query"].Map["query"].Text
	if !strings.Contains(query, "do not use the read_files tool") {
		t.Fatalf("retry query = %q, want it to mention the blocked tool", query)
	}

	original := fs.packets[0]
	origQuery := original.Map["input"].Map["user_inputs"].Map["inputs"].List[0].Map["user_query"].Map["query"].Text
	if origQuery != "do the thing" {
		t.Fatalf("original packet was mutated: query = %q", origQuery)
	}
}

func TestDriverGivesUpAfterSecondInternalToolError(t *testing.T) {
	fs := &fakeStreamer{calls: [][]events.Event{
		{{Finished: &events.Finished{InternalError: &events.InternalError{Message: "tool_call:{read_files:{}}"}}}},
		{{Finished: &events.Finished{InternalError: &events.InternalError{Message: "tool_call:{read_files:{}}"}}}},
	}}
	d := &Driver{Streamer: fs, Codec: wireproto.NewJSONCodec(), CompletionID: "c1", Model: "gpt-4", FallbackInputTokens: 100}

	chunks := collectChunks(d, samplePacket())
	if fs.index != 2 {
		t.Fatalf("streamer called %d times, want 2 (one retry, then give up)", fs.index)
	}
	last := chunks[len(chunks)-1]
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "stop" {
		t.Fatalf("final chunk finish_reason = %+v, want stop", last.Choices[0].FinishReason)
	}
	found := false
	for _, c := range chunks {
		if strings.Contains(c.Choices[0].Delta.Content, "could not auto-recover") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a give-up notice mentioning the blocked tool, got %+v", chunks)
	}
}

func TestDriverRecoversFromLLMUnavailable(t *testing.T) {
	fs := &fakeStreamer{calls: [][]events.Event{
		{{Finished: &events.Finished{LLMUnavailable: true}}},
		{{Finished: &events.Finished{}}},
	}}
	d := &Driver{Streamer: fs, Codec: wireproto.NewJSONCodec(), CompletionID: "c1", Model: "gpt-4", FallbackInputTokens: 100}

	chunks := collectChunks(d, samplePacket())
	if fs.index != 2 {
		t.Fatalf("streamer called %d times, want 2", fs.index)
	}
	retryPacket := fs.packets[1]
	query := retryPacket.Map["input"].Map["user_inputs"].Map["inputs"].List[0].Map["user_query"].Map["query"].Text
	if !strings.Contains(query, "Continue the previous task") {
		t.Fatalf("retry query = %q, want the llm_unavailable recovery hint", query)
	}
	_ = chunks
}

func TestAppendRecoveryHintIdempotent(t *testing.T) {
	packet := samplePacket()
	once := appendRecoveryHint(packet, internalToolHint("Bash"), internalToolMarker)
	twice := appendRecoveryHint(once, internalToolHint("Bash"), internalToolMarker)

	q1 := once.Map["input"].Map["user_inputs"].Map["inputs"].List[0].Map["user_query"].Map["query"].Text
	q2 := twice.Map["input"].Map["user_inputs"].Map["inputs"].List[0].Map["user_query"].Map["query"].Text
	if q1 != q2 {
		t.Fatalf("appendRecoveryHint not idempotent: once=%q twice=%q", q1, q2)
	}
}
