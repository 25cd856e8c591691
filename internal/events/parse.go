package events

import "github.com/relaywave/agentbridge/internal/wireproto"

// Parse decodes a wireproto.Value frame into an Event. It never errors:
// an unrecognized frame shape yields a zero-value Event, which callers skip.
func Parse(v wireproto.Value) Event {
	var ev Event

	if initVal, ok := v.Get("init"); ok {
		ev.Init = &Init{
			ConversationID: initVal.GetString("conversation_id", "conversationId"),
			TaskID:         initVal.GetString("task_id", "taskId"),
		}
	}

	if caVal, ok := v.Get("client_actions", "clientActions"); ok {
		actions := caVal.GetList("actions")
		ca := &ClientActions{}
		for _, a := range actions {
			ca.Actions = append(ca.Actions, parseAction(a))
		}
		ev.ClientActions = ca
	}

	if finVal, ok := v.Get("finished"); ok {
		ev.Finished = parseFinished(finVal)
	}

	return ev
}

func parseAction(v wireproto.Value) Action {
	var a Action

	if m, ok := v.Get("append_to_message_content", "appendToMessageContent"); ok {
		text := ""
		if msg, ok := m.Get("message"); ok {
			if ao, ok := msg.Get("agent_output", "agentOutput"); ok {
				text = ao.GetString("text")
			}
		}
		a.AppendToMessageContent = &AppendToMessageContent{Text: text}
	}

	if m, ok := v.Get("add_messages_to_task", "addMessagesToTask"); ok {
		a.AddMessagesToTask = &AddMessagesToTask{Messages: parseMessages(m.GetList("messages"))}
	}

	if m, ok := v.Get("create_task", "createTask"); ok {
		task, _ := m.Get("task")
		a.CreateTask = &CreateTask{Messages: parseMessages(task.GetList("messages"))}
	}

	if m, ok := v.Get("update_task_message", "updateTaskMessage"); ok {
		text := ""
		if msg, ok := m.Get("message"); ok {
			if ao, ok := msg.Get("agent_output", "agentOutput"); ok {
				text = ao.GetString("text")
			}
		}
		a.UpdateTaskMessage = &UpdateTaskMessage{Text: text}
	}

	if m, ok := v.Get("update_task_summary", "updateTaskSummary"); ok {
		a.UpdateTaskSummary = &UpdateTaskSummary{Summary: m.GetString("summary")}
	}

	if m, ok := v.Get("update_task_description", "updateTaskDescription"); ok {
		a.UpdateTaskDescription = &UpdateTaskDescription{Description: m.GetString("description")}
	}

	return a
}

func parseMessages(vs []wireproto.Value) []Message {
	out := make([]Message, 0, len(vs))
	for _, v := range vs {
		out = append(out, parseMessage(v))
	}
	return out
}

func parseMessage(v wireproto.Value) Message {
	var m Message

	if ao, ok := v.Get("agent_output", "agentOutput"); ok {
		m.AgentOutput = &AgentOutput{Text: ao.GetString("text")}
	}

	if tc, ok := v.Get("tool_call", "toolCall"); ok {
		id := tc.GetString("tool_call_id", "toolCallId")
		name := ""
		args := wireproto.NewMap()
		if call, ok := tc.Get("call_mcp_tool", "callMcpTool"); ok {
			name = call.GetString("name")
			if a, ok := call.Get("args"); ok {
				args = a
			}
		}
		m.ToolCall = &ToolCall{ToolCallID: id, Name: name, Args: args}
	}

	if tr, ok := v.Get("tool_call_result", "toolCallResult"); ok {
		id := tr.GetString("tool_call_id", "toolCallId")
		serialized := ""
		if server, ok := tr.Get("server"); ok {
			serialized = server.GetString("serialized_result", "serializedResult")
		}
		m.ToolCallResult = &ToolCallResult{ToolCallID: id, SerializedResult: serialized}
	}

	return m
}

func parseFinished(v wireproto.Value) *Finished {
	f := &Finished{}

	if cost, ok := v.Get("request_cost", "requestCost"); ok {
		f.RequestCost = asFloat(cost)
	}

	if cwi, ok := v.Get("context_window_info", "contextWindowInfo"); ok {
		f.ContextWindowInfo = asFloat(cwi)
		f.HasContextWindowInfo = true
	}

	if ie, ok := v.Get("internal_error", "internalError"); ok {
		f.InternalError = &InternalError{Message: ie.GetString("message")}
	}

	if _, ok := v.Get("llm_unavailable", "llmUnavailable"); ok {
		f.LLMUnavailable = true
	}

	return f
}

func asFloat(v wireproto.Value) float64 {
	switch v.Kind {
	case wireproto.KindInt:
		return float64(v.Int)
	case wireproto.KindFloat:
		return v.Float
	default:
		return 0
	}
}
