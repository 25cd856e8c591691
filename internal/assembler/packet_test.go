package assembler

import (
	"testing"

	"github.com/relaywave/agentbridge/internal/history"
)

func TestBuildAlwaysHasAtLeastOneInput(t *testing.T) {
	packet := Build(Request{Model: "claude-4.1-opus", History: nil})
	inputs := packet.Map["input"].Map["user_inputs"].Map["inputs"].List
	if len(inputs) == 0 {
		t.Fatal("expected at least one input (invariant I3), got none")
	}
}

func TestBuildUserQueryHasRestrictionBlock(t *testing.T) {
	hist := []history.ChatMessage{{Role: history.RoleUser, Text: "hello"}}
	packet := Build(Request{Model: "claude-4.1-opus", History: hist})
	inputs := packet.Map["input"].Map["user_inputs"].Map["inputs"].List
	if len(inputs) != 1 {
		t.Fatalf("expected one input, got %d", len(inputs))
	}
	uq := inputs[0].Map["user_query"]
	if uq.IsZero() {
		t.Fatal("expected a user_query input")
	}
	query := uq.Map["query"].Text
	if query == "" {
		t.Fatal("expected non-empty query text")
	}
	sysPrompt := uq.Map["referenced_attachments"].Map["SYSTEM_PROMPT"].Map["plain_text"].Text
	if sysPrompt == "" {
		t.Fatal("expected the tool-restriction block in the system prompt attachment")
	}
}

func TestBuildEmptyQueryReplacedWithSpace(t *testing.T) {
	hist := []history.ChatMessage{{Role: history.RoleUser, Text: ""}}
	packet := Build(Request{Model: "claude-4.1-opus", History: hist})
	query := packet.Map["input"].Map["user_inputs"].Map["inputs"].List[0].Map["user_query"].Map["query"].Text
	if query == "" {
		t.Fatal("expected empty query to be replaced with a non-empty placeholder (B1)")
	}
}

func TestBuildFinalToolResultAttached(t *testing.T) {
	hist := []history.ChatMessage{
		{Role: history.RoleAssistant, ToolCalls: []history.ToolCall{{ID: "t1", Name: "Bash"}}},
		{Role: history.RoleTool, ToolCallID: "t1", Text: "output"},
	}
	packet := Build(Request{Model: "claude-4.1-opus", History: hist})
	inputs := packet.Map["input"].Map["user_inputs"].Map["inputs"].List
	if len(inputs) != 1 {
		t.Fatalf("expected one input, got %d", len(inputs))
	}
	tr := inputs[0].Map["tool_call_result"]
	if tr.IsZero() || tr.Map["tool_call_id"].Text != "t1" {
		t.Fatalf("expected final input to be tool_call_result for t1, got %+v", inputs[0])
	}
}

func TestBuildMessagesPrefixedWithPreambleAndAck(t *testing.T) {
	hist := []history.ChatMessage{{Role: history.RoleUser, Text: "hi"}}
	packet := Build(Request{Model: "claude-4.1-opus", History: hist})
	messages := packet.Map["task_context"].Map["tasks"].List[0].Map["messages"].List
	if len(messages) < 2 {
		t.Fatalf("expected at least 2 prefix messages, got %d", len(messages))
	}
	if messages[0].Map["tool_call"].IsZero() {
		t.Fatal("expected first message to be the server tool_call preamble")
	}
	if messages[1].Map["agent_output"].IsZero() {
		t.Fatal("expected second message to be the tool-restriction acknowledgement")
	}
}

func TestChunkTextShortUnchanged(t *testing.T) {
	chunks := chunkText("short text")
	if len(chunks) != 1 || chunks[0] != "short text" {
		t.Fatalf("chunkText() = %v, want single unmodified chunk", chunks)
	}
}

func TestChunkTextLongSplits(t *testing.T) {
	long := make([]byte, 2500)
	for i := range long {
		long[i] = 'a'
	}
	chunks := chunkText(string(long))
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for %d chars, got %d", len(long), len(chunks))
	}
}
