// Package assembler builds the upstream request tree from normalized
// history, a system prompt, and caller-supplied tool definitions.
package assembler

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/relaywave/agentbridge/internal/history"
	"github.com/relaywave/agentbridge/internal/wireproto"
)

// serverPreamblePayload is the fixed opaque payload carried by the
// server-tool-call preamble message every request is prefixed with.
const serverPreamblePayload = "IgIQAQ=="

// ToolDef is one caller-supplied MCP tool definition.
type ToolDef struct {
	Name        string
	Description string
	// InputSchema is passed through as internal/proxy decoded it; neither
	// the decoding layer nor the assembler sanitizes it.
	InputSchema wireproto.Value
}

// Request is the input to Build.
type Request struct {
	Model          string
	History        []history.ChatMessage // already normalized
	SystemPrompts  []string
	Tools          []ToolDef
	ConversationID string // optional, for multi-turn continuity
}

// Build constructs the UpstreamRequestPacket tree for Request.
func Build(req Request) wireproto.Value {
	taskID := uuid.NewString()

	packet := packetTemplate()
	packet.Map["settings"].Map["model_config"].Set("base", wireproto.Text(req.Model))

	messages, finalInput := buildMessages(req.History, taskID)
	packet.Set("task_context", wireproto.Map(map[string]wireproto.Value{
		"active_task_id": wireproto.Text(taskID),
		"tasks": wireproto.List(wireproto.Map(map[string]wireproto.Value{
			"id":       wireproto.Text(taskID),
			"messages": wireproto.List(messages...),
		})),
	}))

	systemPromptText := strings.Join(req.SystemPrompts, "\n")
	input := wireproto.Map(map[string]wireproto.Value{
		"context": wireproto.NewMap(),
		"user_inputs": wireproto.Map(map[string]wireproto.Value{
			"inputs": wireproto.List(buildFinalInput(finalInput, systemPromptText)),
		}),
	})
	packet.Set("input", input)

	if len(req.Tools) > 0 {
		var tools []wireproto.Value
		for _, t := range req.Tools {
			schema := t.InputSchema
			if schema.IsZero() {
				schema = wireproto.NewMap()
			}
			tools = append(tools, wireproto.Map(map[string]wireproto.Value{
				"name":         wireproto.Text(t.Name),
				"description":  wireproto.Text(t.Description),
				"input_schema": schema,
			}))
		}
		packet.Set("mcp_context", wireproto.Map(map[string]wireproto.Value{
			"tools": wireproto.List(tools...),
		}))
	}

	if req.ConversationID != "" {
		meta := packet.Map["metadata"]
		meta.Set("conversation_id", wireproto.Text(req.ConversationID))
		packet.Set("metadata", meta)
	}

	return packet
}

// packetTemplate returns the ambient default settings every request carries,
// matching the upstream's expected shape for fields this proxy does not
// otherwise vary.
func packetTemplate() wireproto.Value {
	return wireproto.Map(map[string]wireproto.Value{
		"task_context": wireproto.Map(map[string]wireproto.Value{
			"active_task_id": wireproto.Text(""),
		}),
		"input": wireproto.Map(map[string]wireproto.Value{
			"context":     wireproto.NewMap(),
			"user_inputs": wireproto.Map(map[string]wireproto.Value{"inputs": wireproto.List()}),
		}),
		"settings": wireproto.Map(map[string]wireproto.Value{
			"model_config": wireproto.Map(map[string]wireproto.Value{
				"base":     wireproto.Text(""),
				"planning": wireproto.Text("auto"),
				"coding":   wireproto.Text("auto"),
			}),
			"rules_enabled":                              wireproto.Bool(false),
			"web_context_retrieval_enabled":               wireproto.Bool(false),
			"supports_parallel_tool_calls":                wireproto.Bool(false),
			"planning_enabled":                            wireproto.Bool(false),
			"supports_create_files":                       wireproto.Bool(false),
			"should_preserve_file_content_in_history":     wireproto.Bool(false),
			"supports_todos_ui":                           wireproto.Bool(false),
			"supported_tools":                             wireproto.List(wireproto.Int(9)),
		}),
		"metadata": wireproto.Map(map[string]wireproto.Value{
			"logging": wireproto.Map(map[string]wireproto.Value{
				"is_autodetected_user_query": wireproto.Bool(true),
				"entrypoint":                 wireproto.Text("USER_INITIATED"),
			}),
		}),
	})
}

// buildMessages translates every history message except the final input into
// upstream message kinds, prefixed by the server preamble and the
// tool-restriction acknowledgement. It returns the built
// messages plus the final-input message set aside for buildFinalInput.
func buildMessages(hist []history.ChatMessage, taskID string) (messages []wireproto.Value, finalInput history.ChatMessage) {
	messages = append(messages, wireproto.Map(map[string]wireproto.Value{
		"id":      wireproto.Text(uuid.NewString()),
		"task_id": wireproto.Text(taskID),
		"tool_call": wireproto.Map(map[string]wireproto.Value{
			"tool_call_id": wireproto.Text(uuid.NewString()),
			"server": wireproto.Map(map[string]wireproto.Value{
				"payload": wireproto.Text(serverPreamblePayload),
			}),
		}),
	}))

	messages = append(messages, wireproto.Map(map[string]wireproto.Value{
		"id":      wireproto.Text(uuid.NewString()),
		"task_id": wireproto.Text(taskID),
		"agent_output": wireproto.Map(map[string]wireproto.Value{
			"text": wireproto.Text(toolRestrictionsAck()),
		}),
	}))

	finalIdx := finalInputIndex(hist)

	for i, m := range hist {
		if i == finalIdx {
			finalInput = m
			continue
		}
		messages = append(messages, buildHistoryMessage(m, taskID)...)
	}
	return messages, finalInput
}

// finalInputIndex locates the last user message or last tool message, which
// is withheld from task_context.messages and attached separately.
func finalInputIndex(hist []history.ChatMessage) int {
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i].Role == history.RoleUser {
			return i
		}
		if hist[i].Role == history.RoleTool && hist[i].ToolCallID != "" {
			return i
		}
	}
	return -1
}

func buildHistoryMessage(m history.ChatMessage, taskID string) []wireproto.Value {
	switch m.Role {
	case history.RoleUser:
		return []wireproto.Value{wireproto.Map(map[string]wireproto.Value{
			"id":      wireproto.Text(uuid.NewString()),
			"task_id": wireproto.Text(taskID),
			"user_query": wireproto.Map(map[string]wireproto.Value{
				"query": wireproto.Text(m.ContentText()),
			}),
		})}

	case history.RoleAssistant:
		var out []wireproto.Value
		if text := m.ContentText(); text != "" {
			out = append(out, wireproto.Map(map[string]wireproto.Value{
				"id":      wireproto.Text(uuid.NewString()),
				"task_id": wireproto.Text(taskID),
				"agent_output": wireproto.Map(map[string]wireproto.Value{
					"text": wireproto.Text(text),
				}),
			}))
		}
		for _, tc := range m.ToolCalls {
			id := tc.ID
			if id == "" {
				id = uuid.NewString()
			}
			out = append(out, wireproto.Map(map[string]wireproto.Value{
				"id":      wireproto.Text(uuid.NewString()),
				"task_id": wireproto.Text(taskID),
				"tool_call": wireproto.Map(map[string]wireproto.Value{
					"tool_call_id": wireproto.Text(id),
					"call_mcp_tool": wireproto.Map(map[string]wireproto.Value{
						"name": wireproto.Text(tc.Name),
						"args": parseArgs(tc.Arguments),
					}),
				}),
			}))
		}
		return out

	case history.RoleTool:
		if m.ToolCallID == "" {
			return nil
		}
		return []wireproto.Value{wireproto.Map(map[string]wireproto.Value{
			"id":      wireproto.Text(uuid.NewString()),
			"task_id": wireproto.Text(taskID),
			"tool_call_result": wireproto.Map(map[string]wireproto.Value{
				"tool_call_id": wireproto.Text(m.ToolCallID),
				"call_mcp_tool": wireproto.Map(map[string]wireproto.Value{
					"success": wireproto.Map(map[string]wireproto.Value{
						"results": wireproto.List(segmentsToWarpResults(m.ContentText())...),
					}),
				}),
			}),
		})}

	default:
		return nil
	}
}

// parseArgs parses a tool-call's arguments JSON string into a Value tree,
// falling back to an empty map on parse failure.
func parseArgs(raw string) wireproto.Value {
	if raw == "" {
		return wireproto.NewMap()
	}
	var plain map[string]any
	if err := json.Unmarshal([]byte(raw), &plain); err != nil {
		return wireproto.NewMap()
	}
	codec := wireproto.NewJSONCodec()
	encoded, err := json.Marshal(plain)
	if err != nil {
		return wireproto.NewMap()
	}
	v, err := codec.Decode(encoded, "")
	if err != nil {
		return wireproto.NewMap()
	}
	return v
}

// buildFinalInput attaches the final input: a user_query with the inline
// restriction warning and system-prompt attachment, or a tool_call_result,
// or (fallback) a continuation request.
func buildFinalInput(m history.ChatMessage, systemPromptText string) wireproto.Value {
	switch {
	case m.Role == history.RoleUser:
		text := m.ContentText()
		if strings.TrimSpace(text) == "" {
			text = " "
		}
		text = toolRestrictionsInline() + text
		return finalUserQuery(text, systemPromptText)

	case m.Role == history.RoleTool && m.ToolCallID != "":
		results := segmentsToWarpResults(m.ContentText())
		if len(results) == 0 {
			results = []wireproto.Value{wireproto.Map(map[string]wireproto.Value{
				"text": wireproto.Map(map[string]wireproto.Value{"text": wireproto.Text(" ")}),
			})}
		}
		return wireproto.Map(map[string]wireproto.Value{
			"tool_call_result": wireproto.Map(map[string]wireproto.Value{
				"tool_call_id": wireproto.Text(m.ToolCallID),
				"call_mcp_tool": wireproto.Map(map[string]wireproto.Value{
					"success": wireproto.Map(map[string]wireproto.Value{
						"results": wireproto.List(results...),
					}),
				}),
			}),
		})

	case m.Role == history.RoleAssistant && len(m.ToolCalls) == 0:
		return finalUserQuery("please continue", systemPromptText)

	default:
		// No usable final input (e.g. an assistant message with unmatched
		// tool-calls slipped through normalization); ask the model to
		// continue rather than send an empty input list (invariant I3).
		return finalUserQuery("please continue", systemPromptText)
	}
}

func finalUserQuery(queryText, systemPromptText string) wireproto.Value {
	referenced := toolRestrictionsBlock()
	if systemPromptText != "" {
		referenced += systemPromptText
	}
	return wireproto.Map(map[string]wireproto.Value{
		"user_query": wireproto.Map(map[string]wireproto.Value{
			"query": wireproto.Text(queryText),
			"referenced_attachments": wireproto.Map(map[string]wireproto.Value{
				"SYSTEM_PROMPT": wireproto.Map(map[string]wireproto.Value{
					"plain_text": wireproto.Text(referenced),
				}),
			}),
		}),
	})
}
