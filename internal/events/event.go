// Package events models one decoded upstream frame and parses it out of a
// wireproto.Value tree. Upstream frames mix
// snake_case and camelCase keys for the same logical field, so every lookup
// goes through wireproto.Value.Get with both spellings.
package events

import "github.com/relaywave/agentbridge/internal/wireproto"

// Event is one decoded upstream frame. At most one of Init, ClientActions,
// Finished is populated.
type Event struct {
	Init          *Init
	ClientActions *ClientActions
	Finished      *Finished
}

type Init struct {
	ConversationID string
	TaskID         string
}

type ClientActions struct {
	Actions []Action
}

// Action is one client action. At most one field is populated.
type Action struct {
	AppendToMessageContent *AppendToMessageContent
	AddMessagesToTask      *AddMessagesToTask
	CreateTask             *CreateTask
	UpdateTaskMessage      *UpdateTaskMessage
	UpdateTaskSummary      *UpdateTaskSummary
	UpdateTaskDescription  *UpdateTaskDescription
}

// AppendToMessageContent carries a streaming text delta on an existing
// assistant message.
type AppendToMessageContent struct {
	Text string
}

// AddMessagesToTask carries one or more full new messages.
type AddMessagesToTask struct {
	Messages []Message
}

type CreateTask struct {
	Messages []Message
}

type UpdateTaskMessage struct {
	Text string
}

type UpdateTaskSummary struct {
	Summary string
}

// UpdateTaskDescription signals a context reset; Description is parsed by
// the OpenAI translator for any Pending Tasks / Next Step sections.
type UpdateTaskDescription struct {
	Description string
}

// Message is one upstream message as carried inside add_messages_to_task or
// create_task. At most one of AgentOutput, ToolCall, ToolCallResult is set.
type Message struct {
	AgentOutput    *AgentOutput
	ToolCall       *ToolCall
	ToolCallResult *ToolCallResult
}

type AgentOutput struct {
	Text string
}

type ToolCall struct {
	ToolCallID string
	Name       string
	Args       wireproto.Value
}

// ToolCallResult carries a tool result. SerializedResult is the upstream's
// url-safe-base64-encoded opaque blob, present for results that sometimes
// carry embedded task-list data.
type ToolCallResult struct {
	ToolCallID       string
	SerializedResult string
}

// Finished terminates a stream. At most one of InternalError, LLMUnavailable
// is set (both are recoverable conditions the caller can retry).
type Finished struct {
	RequestCost       float64
	ContextWindowInfo float64
	HasContextWindowInfo bool
	InternalError     *InternalError
	LLMUnavailable    bool
}

type InternalError struct {
	Message string
}
