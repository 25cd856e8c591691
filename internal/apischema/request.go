package apischema

import (
	"encoding/json"
	"fmt"
)

// ContentPart is one element of a multi-part OpenAI message content array.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// FunctionCallRequest is the function half of an inbound tool_calls entry.
type FunctionCallRequest struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCallRequest is one inbound tool_calls entry on an assistant message.
type ToolCallRequest struct {
	ID       string              `json:"id"`
	Type     string              `json:"type"`
	Function FunctionCallRequest `json:"function"`
}

// ChatMessage is one inbound OpenAI chat message. Content arrives as either a
// plain string or a list of ContentPart objects; UnmarshalJSON normalizes
// both into Text/Segments so callers never branch on the wire shape.
type ChatMessage struct {
	Role       string            `json:"role"`
	Text       string            `json:"-"`
	Segments   []ContentPart     `json:"-"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Name       string            `json:"name,omitempty"`
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var aux struct {
		Role       string            `json:"role"`
		Content    json.RawMessage   `json:"content"`
		ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
		ToolCallID string            `json:"tool_call_id,omitempty"`
		Name       string            `json:"name,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.Role = aux.Role
	m.ToolCalls = aux.ToolCalls
	m.ToolCallID = aux.ToolCallID
	m.Name = aux.Name

	if len(aux.Content) == 0 {
		return nil
	}
	var text string
	if err := json.Unmarshal(aux.Content, &text); err == nil {
		m.Text = text
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(aux.Content, &parts); err == nil {
		m.Segments = parts
		return nil
	}
	return fmt.Errorf("apischema: message content is neither a string nor a content-part array")
}

// ToolFunctionDef describes one caller-supplied function tool.
type ToolFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolDef is one inbound tools[] entry; only type:"function" is supported.
type ToolDef struct {
	Type     string          `json:"type"`
	Function ToolFunctionDef `json:"function"`
}

// CreateChatCompletionRequest is the body of POST /v1/chat/completions.
type CreateChatCompletionRequest struct {
	Model      string          `json:"model,omitempty"`
	Messages   []ChatMessage   `json:"messages" validate:"required,min=1"`
	Stream     *bool           `json:"stream,omitempty"`
	Tools      []ToolDef       `json:"tools,omitempty"`
	ToolChoice json.RawMessage `json:"tool_choice,omitempty"`
}

// ChatCompletionMessage is the non-streaming response's message body.
type ChatCompletionMessage struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`
}

// ChatCompletionChoice is one non-streaming response choice.
type ChatCompletionChoice struct {
	Index        int                   `json:"index"`
	Message      ChatCompletionMessage `json:"message"`
	FinishReason *string               `json:"finish_reason"`
}

// ChatCompletionResponse is the body of a non-streaming
// POST /v1/chat/completions response.
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   *Usage                 `json:"usage,omitempty"`
}

// AnthropicInboundMessage is one inbound Anthropic Messages-API message.
// Content arrives as either a plain string or a list of content blocks.
type AnthropicInboundMessage struct {
	Role     string                   `json:"role"`
	Text     string                   `json:"-"`
	Segments []AnthropicContentBlock `json:"-"`
}

func (m *AnthropicInboundMessage) UnmarshalJSON(data []byte) error {
	var aux struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.Role = aux.Role
	if len(aux.Content) == 0 {
		return nil
	}
	var text string
	if err := json.Unmarshal(aux.Content, &text); err == nil {
		m.Text = text
		return nil
	}
	var blocks []AnthropicContentBlock
	if err := json.Unmarshal(aux.Content, &blocks); err == nil {
		m.Segments = blocks
		return nil
	}
	return fmt.Errorf("apischema: message content is neither a string nor a content-block array")
}

// AnthropicInboundTool is one inbound Anthropic tools[] entry.
type AnthropicInboundTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// MessagesRequest is the body of POST /v1/messages.
type MessagesRequest struct {
	Model     string                    `json:"model,omitempty"`
	Messages  []AnthropicInboundMessage `json:"messages" validate:"required,min=1"`
	System    string                    `json:"system,omitempty"`
	MaxTokens int                       `json:"max_tokens,omitempty"`
	Stream    bool                      `json:"stream,omitempty"`
	Tools     []AnthropicInboundTool    `json:"tools,omitempty"`
}

// MessagesResponse is the body of a non-streaming POST /v1/messages response.
type MessagesResponse struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	Role         string                  `json:"role"`
	Content      []AnthropicContentBlock `json:"content"`
	Model        string                  `json:"model"`
	StopReason   string                  `json:"stop_reason"`
	StopSequence *string                 `json:"stop_sequence"`
	Usage        AnthropicUsage          `json:"usage"`
}
