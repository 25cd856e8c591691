package apischema

// AnthropicUsage mirrors the usage block Anthropic's Messages API reports on
// message_start (zeroed) and message_delta (final).
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AnthropicContentBlock is either a text block or a tool_use block, matching
// whichever subset of fields the block type uses.
type AnthropicContentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// ToolUseID and Content are populated only on inbound tool_result blocks;
	// Content is modeled as plain text, covering the common case of a single
	// text result rather than the full nested content-block-array form.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// AnthropicMessage is the "message" payload of a message_start event.
type AnthropicMessage struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	Role         string                  `json:"role"`
	Content      []AnthropicContentBlock `json:"content"`
	Model        string                  `json:"model"`
	StopReason   *string                 `json:"stop_reason"`
	StopSequence *string                 `json:"stop_sequence"`
	Usage        AnthropicUsage          `json:"usage"`
}

type AnthropicMessageStartEvent struct {
	Type    string           `json:"type"`
	Message AnthropicMessage `json:"message"`
}

type AnthropicContentBlockStartEvent struct {
	Type         string                `json:"type"`
	Index        int                   `json:"index"`
	ContentBlock AnthropicContentBlock `json:"content_block"`
}

// AnthropicContentBlockDelta is either a text_delta or an input_json_delta.
type AnthropicContentBlockDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type AnthropicContentBlockDeltaEvent struct {
	Type  string                     `json:"type"`
	Index int                        `json:"index"`
	Delta AnthropicContentBlockDelta `json:"delta"`
}

type AnthropicContentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type AnthropicMessageDelta struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

type AnthropicMessageDeltaEvent struct {
	Type  string                `json:"type"`
	Delta AnthropicMessageDelta `json:"delta"`
	Usage AnthropicUsage        `json:"usage"`
}

type AnthropicMessageStopEvent struct {
	Type string `json:"type"`
}

type AnthropicErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type AnthropicErrorEvent struct {
	Type  string               `json:"type"`
	Error AnthropicErrorDetail `json:"error"`
}
