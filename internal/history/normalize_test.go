package history

import "testing"

func toolIDs(calls []ToolCall) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.ID
	}
	return out
}

// TestAdjacencyRepair covers an assistant message with two tool-calls that
// is interrupted by a user message before either tool-result arrives, with
// one tool-result left empty.
func TestAdjacencyRepair(t *testing.T) {
	input := []ChatMessage{
		{Role: RoleUser, Text: "q"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "t1", Name: "a"}, {ID: "t2", Name: "b"}}},
		{Role: RoleUser, Text: "interrupt"},
		{Role: RoleTool, ToolCallID: "t1", Text: "r1"},
		{Role: RoleTool, ToolCallID: "t2", Text: ""},
	}

	got := Normalize(input)

	if len(got) != 4 {
		t.Fatalf("Normalize() produced %d messages, want 4: %+v", len(got), got)
	}
	if got[0].Role != RoleAssistant || len(got[0].ToolCalls) != 2 {
		t.Fatalf("message 0 = %+v, want assistant with 2 tool calls", got[0])
	}
	if got[1].Role != RoleTool || got[1].ToolCallID != "t1" || got[1].Text != "r1" {
		t.Fatalf("message 1 = %+v, want tool t1 -> r1", got[1])
	}
	if got[2].Role != RoleTool || got[2].ToolCallID != "t2" || got[2].Text != "No content" {
		t.Fatalf("message 2 = %+v, want tool t2 -> \"No content\"", got[2])
	}
	if got[3].Role != RoleUser || got[3].Text != "interrupt" {
		t.Fatalf("message 3 = %+v, want user \"interrupt\"", got[3])
	}
}

// TestOrphanToolResultDropped covers invariant I1: a tool-result with no
// matching prior assistant tool-call is dropped.
func TestOrphanToolResultDropped(t *testing.T) {
	input := []ChatMessage{
		{Role: RoleUser, Text: "hi"},
		{Role: RoleTool, ToolCallID: "ghost", Text: "unexpected"},
	}
	got := Normalize(input)
	for _, m := range got {
		if m.Role == RoleTool {
			t.Fatalf("expected orphan tool-result to be dropped, got %+v", got)
		}
	}
}

func TestEmptyToolResultBecomesNoContent(t *testing.T) {
	input := []ChatMessage{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "t1", Name: "a"}}},
		{Role: RoleTool, ToolCallID: "t1", Text: "   "},
	}
	got := Normalize(input)
	var sawResult bool
	for _, m := range got {
		if m.Role == RoleTool && m.ToolCallID == "t1" {
			sawResult = true
			if m.Text != "No content" {
				t.Fatalf("tool result text = %q, want %q", m.Text, "No content")
			}
		}
	}
	if !sawResult {
		t.Fatal("expected tool result t1 to survive normalization")
	}
}

func TestUnmatchedToolCallRemoved(t *testing.T) {
	input := []ChatMessage{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "t1", Name: "a"}, {ID: "t2", Name: "b"}}},
		{Role: RoleTool, ToolCallID: "t1", Text: "ok"},
		{Role: RoleUser, Text: "next"},
	}
	got := Normalize(input)

	var assistantMsg *ChatMessage
	for i := range got {
		if got[i].Role == RoleAssistant {
			assistantMsg = &got[i]
		}
	}
	if assistantMsg == nil {
		t.Fatal("expected the assistant message to survive")
	}
	ids := toolIDs(assistantMsg.ToolCalls)
	if len(ids) != 1 || ids[0] != "t1" {
		t.Fatalf("assistant tool calls = %v, want [t1] (t2 unmatched, should be dropped)", ids)
	}
}

// TestNormalizeIdempotent is law L3: normalize(normalize(H)) == normalize(H).
func TestNormalizeIdempotent(t *testing.T) {
	input := []ChatMessage{
		{Role: RoleUser, Text: "q"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "t1", Name: "a"}, {ID: "t2", Name: "b"}}},
		{Role: RoleUser, Text: "interrupt"},
		{Role: RoleTool, ToolCallID: "t1", Text: "r1"},
		{Role: RoleTool, ToolCallID: "t2", Text: ""},
	}

	once := Normalize(input)
	twice := Normalize(once)

	if len(once) != len(twice) {
		t.Fatalf("len(normalize(H)) = %d, len(normalize(normalize(H))) = %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Role != twice[i].Role || once[i].ContentText() != twice[i].ContentText() ||
			once[i].ToolCallID != twice[i].ToolCallID || len(once[i].ToolCalls) != len(twice[i].ToolCalls) {
			t.Fatalf("message %d differs between one and two normalize passes: %+v vs %+v", i, once[i], twice[i])
		}
	}
}
