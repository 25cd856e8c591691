package tokencount

import "github.com/relaywave/agentbridge/internal/wireproto"

// EstimateRequestTokens walks an assembled upstream request packet and
// estimates its token cost for the fallback path (used when the upstream
// hasn't yet reported a context_window_info ratio). It sums the character
// count of every text-bearing field it knows about and converts with the
// same 4-characters-per-token heuristic as CountText, rather than re-running
// CountText per field (the upstream original sums raw character counts
// across the whole tree before a single division).
func EstimateRequestTokens(packet wireproto.Value) int {
	chars := 0

	if input, ok := packet.Get("input"); ok {
		if userInputs, ok := input.Get("user_inputs", "userInputs"); ok {
			for _, item := range userInputs.GetList("inputs") {
				chars += len(item.GetString("text"))
				for _, attachment := range item.GetList("attachments") {
					chars += len(attachment.GetString("text"))
				}
				if uq, ok := item.Get("user_query", "userQuery"); ok {
					chars += len(uq.GetString("query"))
					if refs, ok := uq.Get("referenced_attachments", "referencedAttachments"); ok && refs.Kind == wireproto.KindMap {
						for _, ref := range refs.Map {
							chars += len(ref.GetString("plain_text", "plainText"))
							chars += len(ref.GetString("text"))
						}
					}
				}
			}
		}
	}

	if taskContext, ok := packet.Get("task_context", "taskContext"); ok {
		var messages []wireproto.Value
		if ms := taskContext.GetList("messages"); ms != nil {
			messages = ms
		} else {
			for _, task := range taskContext.GetList("tasks") {
				messages = append(messages, task.GetList("messages")...)
			}
		}
		for _, m := range messages {
			if ao, ok := m.Get("agent_output", "agentOutput"); ok {
				chars += len(ao.GetString("text"))
			}
			if ui, ok := m.Get("user_input", "userInput"); ok {
				chars += len(ui.GetString("text"))
			}
		}
	}

	if mcpContext, ok := packet.Get("mcp_context", "mcpContext"); ok {
		for _, tool := range mcpContext.GetList("tools") {
			chars += textChars(tool)
		}
	}

	if chars < 4 {
		return 1
	}
	return chars / 4
}

// textChars sums the length of every text leaf under v, a rough stand-in
// for json.dumps(v) length when estimating tool-definition size.
func textChars(v wireproto.Value) int {
	switch v.Kind {
	case wireproto.KindText:
		return len(v.Text)
	case wireproto.KindList:
		total := 0
		for _, e := range v.List {
			total += textChars(e)
		}
		return total
	case wireproto.KindMap:
		total := 0
		for _, e := range v.Map {
			total += textChars(e)
		}
		return total
	default:
		return 0
	}
}
