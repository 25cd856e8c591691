package history

// Normalize repairs tool-call/tool-result adjacency in history, producing a
// sequence where every assistant tool-call is immediately followed, before
// the next assistant message, by a tool-result with the same id. Normalize
// never errors; structurally impossible inputs are left as close to intact
// as the two passes can manage.
func Normalize(in []ChatMessage) []ChatMessage {
	if len(in) == 0 {
		return nil
	}
	return cleanIncomplete(expandAndReorder(in))
}

// expandAndReorder is Pass A: split multi-segment user messages and
// multi-tool-call assistant messages into one-item-per-message, then move
// each tool-call's matching tool-results to sit directly after it — unless
// the final input in the history is itself one of those tool-results, in
// which case that assistant message and its tool-results are deferred to
// the very end so the sequence still terminates on the tool-result.
func expandAndReorder(in []ChatMessage) []ChatMessage {
	expanded := expand(in)

	lastInputToolID, lastInputIsTool := findFinalToolInput(expanded)

	toolResultsByID := map[string]ChatMessage{}
	assistantToolIDs := map[string]bool{}
	for _, m := range expanded {
		if m.Role == RoleTool && m.ToolCallID != "" {
			if _, exists := toolResultsByID[m.ToolCallID]; !exists {
				toolResultsByID[m.ToolCallID] = m
			}
		}
		if m.Role == RoleAssistant {
			for _, tc := range m.ToolCalls {
				if tc.ID != "" {
					assistantToolIDs[tc.ID] = true
				}
			}
		}
	}

	var result []ChatMessage
	var trailingAssistant *ChatMessage

	for _, m := range expanded {
		switch {
		case m.Role == RoleTool:
			if m.ToolCallID == "" || !assistantToolIDs[m.ToolCallID] {
				result = append(result, m)
				delete(toolResultsByID, m.ToolCallID)
			}
			continue

		case m.Role == RoleAssistant && len(m.ToolCalls) > 0:
			ids := toolCallIDs(m.ToolCalls)

			if lastInputIsTool && lastInputToolID != "" && containsString(ids, lastInputToolID) {
				if trailingAssistant == nil {
					mCopy := m
					trailingAssistant = &mCopy
				}
				continue
			}

			result = append(result, m)
			for _, id := range ids {
				if tr, ok := toolResultsByID[id]; ok {
					result = append(result, tr)
					delete(toolResultsByID, id)
				}
			}
			continue

		default:
			result = append(result, m)
		}
	}

	if lastInputIsTool && lastInputToolID != "" && trailingAssistant != nil {
		result = append(result, *trailingAssistant)
		if tr, ok := toolResultsByID[lastInputToolID]; ok {
			result = append(result, tr)
			delete(toolResultsByID, lastInputToolID)
		}
	}

	return result
}

// expand splits multi-segment user messages into one-segment-per-message,
// and multi-tool-call assistant messages into one-tool-call-per-message
// (leading with the assistant's text, if any).
func expand(in []ChatMessage) []ChatMessage {
	var out []ChatMessage
	for _, m := range in {
		switch {
		case m.Role == RoleUser && len(m.Segments) > 1:
			for _, seg := range m.Segments {
				if seg.Type == "text" {
					out = append(out, ChatMessage{Role: RoleUser, Text: seg.Text})
				} else {
					out = append(out, ChatMessage{Role: RoleUser, Segments: []Segment{seg}})
				}
			}

		case m.Role == RoleAssistant && len(m.ToolCalls) > 1:
			if text := m.ContentText(); text != "" {
				out = append(out, ChatMessage{Role: RoleAssistant, Text: text})
			}
			for _, tc := range m.ToolCalls {
				out = append(out, ChatMessage{Role: RoleAssistant, ToolCalls: []ToolCall{tc}})
			}

		default:
			out = append(out, m)
		}
	}
	return out
}

// findFinalToolInput scans backwards for the final input message (the last
// user message or the last tool message), reporting whether it is a tool
// message and, if so, its tool_call_id. This anchors the request assembler's
// final-input attachment.
func findFinalToolInput(expanded []ChatMessage) (toolID string, isTool bool) {
	for i := len(expanded) - 1; i >= 0; i-- {
		m := expanded[i]
		if m.Role == RoleTool && m.ToolCallID != "" {
			return m.ToolCallID, true
		}
		if m.Role == RoleUser {
			return "", false
		}
	}
	return "", false
}

func toolCallIDs(calls []ToolCall) []string {
	ids := make([]string, 0, len(calls))
	for _, tc := range calls {
		if tc.ID != "" {
			ids = append(ids, tc.ID)
		}
	}
	return ids
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// cleanIncomplete is Pass B: every assistant tool-call must be matched, in
// the messages before the next assistant message, by a tool-result with the
// same id. Empty tool-results are rewritten to "No content" rather than
// dropped; tool-calls with no matching result are removed (and the whole
// assistant message removed if that empties it and it has no text); orphan
// tool-results (no preceding matching tool-call) are dropped.
func cleanIncomplete(in []ChatMessage) []ChatMessage {
	if len(in) == 0 {
		return in
	}

	var out []ChatMessage
	i := 0
	for i < len(in) {
		cur := in[i]

		if cur.Role == RoleAssistant && len(cur.ToolCalls) > 0 {
			expected := map[string]bool{}
			for _, tc := range cur.ToolCalls {
				if tc.ID != "" {
					expected[tc.ID] = true
				}
			}

			out = append(out, cur)
			assistantIdx := len(out) - 1
			i++

			var toolResults []ChatMessage
			found := map[string]bool{}
			var interrupted []ChatMessage

			for i < len(in) {
				next := in[i]
				switch {
				case next.Role == RoleTool && next.ToolCallID != "":
					if expected[next.ToolCallID] && next.IsContentEmpty() {
						toolResults = append(toolResults, ChatMessage{Role: RoleTool, ToolCallID: next.ToolCallID, Text: "No content"})
						found[next.ToolCallID] = true
					} else {
						toolResults = append(toolResults, next)
						if expected[next.ToolCallID] {
							found[next.ToolCallID] = true
						}
					}
					i++
				case next.Role == RoleUser || next.Role == RoleSystem:
					interrupted = append(interrupted, next)
					i++
				case next.Role == RoleAssistant:
					goto doneCollecting
				default:
					goto doneCollecting
				}
			}
		doneCollecting:

			var missing []string
			for id := range expected {
				if !found[id] {
					missing = append(missing, id)
				}
			}

			if len(missing) > 0 {
				missingSet := map[string]bool{}
				for _, id := range missing {
					missingSet[id] = true
				}

				var validCalls []ToolCall
				for _, tc := range cur.ToolCalls {
					if tc.ID != "" && !missingSet[tc.ID] {
						validCalls = append(validCalls, tc)
					}
				}

				switch {
				case len(validCalls) > 0:
					out[assistantIdx] = cur.withToolCalls(validCalls)
				case !cur.IsContentEmpty():
					out[assistantIdx] = cur.withToolCalls(nil)
				default:
					out = append(out[:assistantIdx], out[assistantIdx+1:]...)
				}

				filtered := toolResults[:0:0]
				for _, tr := range toolResults {
					if found[tr.ToolCallID] {
						filtered = append(filtered, tr)
					}
				}
				toolResults = filtered
			}

			out = append(out, toolResults...)
			out = append(out, interrupted...)
			continue
		}

		if cur.Role == RoleTool {
			hasMatchingToolUse := messageHasMatchingToolUse(out, cur.ToolCallID)
			if cur.IsContentEmpty() {
				if hasMatchingToolUse {
					out = append(out, ChatMessage{Role: RoleTool, ToolCallID: cur.ToolCallID, Text: "No content"})
				}
			} else if hasMatchingToolUse {
				out = append(out, cur)
			}
			i++
			continue
		}

		out = append(out, cur)
		i++
	}

	return out
}

// messageHasMatchingToolUse scans backwards from the end of out for an
// assistant tool-call matching toolCallID, stopping at the nearest
// assistant message with no tool-calls.
func messageHasMatchingToolUse(out []ChatMessage, toolCallID string) bool {
	for i := len(out) - 1; i >= 0; i-- {
		m := out[i]
		if m.Role == RoleAssistant && len(m.ToolCalls) > 0 {
			for _, tc := range m.ToolCalls {
				if tc.ID == toolCallID {
					return true
				}
			}
			continue
		}
		if m.Role == RoleAssistant {
			return false
		}
	}
	return false
}
