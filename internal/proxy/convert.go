package proxy

import (
	"encoding/json"

	"github.com/relaywave/agentbridge/internal/apischema"
	"github.com/relaywave/agentbridge/internal/assembler"
	"github.com/relaywave/agentbridge/internal/history"
	"github.com/relaywave/agentbridge/internal/wireproto"
)

// openAIHistory converts inbound OpenAI chat messages into history.ChatMessage,
// separating system messages out (the assembler carries those as
// SystemPrompts rather than in-band history).
func openAIHistory(messages []apischema.ChatMessage) (hist []history.ChatMessage, systemPrompts []string) {
	for _, m := range messages {
		role := history.Role(m.Role)
		if role == history.RoleSystem {
			if text := m.Text; text != "" {
				systemPrompts = append(systemPrompts, text)
			}
			continue
		}

		hm := history.ChatMessage{Role: role, ToolCallID: m.ToolCallID}
		if len(m.Segments) > 0 {
			hm.Segments = make([]history.Segment, len(m.Segments))
			for i, seg := range m.Segments {
				hm.Segments[i] = history.Segment{Type: seg.Type, Text: seg.Text, Raw: seg}
			}
		} else {
			hm.Text = m.Text
		}
		for _, tc := range m.ToolCalls {
			hm.ToolCalls = append(hm.ToolCalls, history.ToolCall{
				ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments,
			})
		}
		hist = append(hist, hm)
	}
	return hist, systemPrompts
}

// openAITools converts inbound OpenAI tool definitions into assembler.ToolDef.
func openAITools(codec wireproto.Codec, tools []apischema.ToolDef) []assembler.ToolDef {
	var out []assembler.ToolDef
	for _, t := range tools {
		if t.Type != "" && t.Type != "function" {
			continue
		}
		out = append(out, assembler.ToolDef{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: decodeSchema(codec, t.Function.Parameters),
		})
	}
	return out
}

// anthropicHistory converts inbound Anthropic messages into history.ChatMessage.
// The Anthropic Messages API carries its system prompt in a dedicated
// top-level field rather than as a message, so callers pass it separately.
func anthropicHistory(messages []apischema.AnthropicInboundMessage) []history.ChatMessage {
	var hist []history.ChatMessage
	for _, m := range messages {
		role := history.Role(m.Role)
		hm := history.ChatMessage{Role: role}
		flush := func() {
			if !hm.IsContentEmpty() || len(hm.ToolCalls) > 0 {
				hist = append(hist, hm)
			}
			hm = history.ChatMessage{Role: role}
		}

		if len(m.Segments) > 0 {
			for _, block := range m.Segments {
				switch block.Type {
				case "text":
					hm.Segments = append(hm.Segments, history.Segment{Type: "text", Text: block.Text})
				case "tool_use":
					hm.ToolCalls = append(hm.ToolCalls, history.ToolCall{
						ID:        block.ID,
						Name:      block.Name,
						Arguments: mustMarshalInput(block.Input),
					})
				case "tool_result":
					// A tool_result block splits the inbound message in two: flush
					// whatever text/tool_use content preceded it (preserving original
					// order), emit the result as its own message, then keep
					// accumulating into a fresh one for what follows.
					flush()
					hist = append(hist, history.ChatMessage{Role: history.RoleTool, ToolCallID: block.ToolUseID, Text: block.Content})
				default:
					hm.Segments = append(hm.Segments, history.Segment{Type: block.Type, Raw: block})
				}
			}
		} else {
			hm.Text = m.Text
		}
		flush()
	}
	return hist
}

// anthropicTools converts inbound Anthropic tool definitions into assembler.ToolDef.
func anthropicTools(codec wireproto.Codec, tools []apischema.AnthropicInboundTool) []assembler.ToolDef {
	var out []assembler.ToolDef
	for _, t := range tools {
		out = append(out, assembler.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: decodeSchema(codec, t.InputSchema),
		})
	}
	return out
}

func decodeSchema(codec wireproto.Codec, raw []byte) wireproto.Value {
	if len(raw) == 0 {
		return wireproto.NewMap()
	}
	v, err := codec.Decode(raw, wireproto.MessageTypeRequest)
	if err != nil {
		return wireproto.NewMap()
	}
	return v
}

func mustMarshalInput(input map[string]any) string {
	if len(input) == 0 {
		return "{}"
	}
	b, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(b)
}
