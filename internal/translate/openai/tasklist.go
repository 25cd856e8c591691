package openai

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/relaywave/agentbridge/internal/wireproto"
)

// detectTaskList decodes a tool_call_result's serialized_result (URL-safe
// base64) through the codec's tagged decoder and reports whether it carries
// task-list data: a "11" or "9" key containing {"1": task_container}.
// Anything else — including plain UTF-8 text results — is not task data.
func detectTaskList(codec wireproto.Codec, serializedResult string) (wireproto.Value, bool) {
	if serializedResult == "" {
		return wireproto.Value{}, false
	}

	padded := serializedResult
	if pad := len(padded) % 4; pad != 0 {
		padded += strings.Repeat("=", 4-pad)
	}
	raw, err := base64.URLEncoding.DecodeString(padded)
	if err != nil {
		return wireproto.Value{}, false
	}

	decoded, err := codec.DecodeTagged(raw)
	if err != nil {
		return wireproto.Value{}, false
	}

	for _, key := range []string{"11", "9"} {
		nested, ok := decoded.Get(key)
		if !ok {
			continue
		}
		if container, ok := nested.Get("1"); ok {
			return container, true
		}
	}
	return wireproto.Value{}, false
}

type todo struct {
	Content    string `json:"content"`
	Status     string `json:"status"`
	ActiveForm string `json:"activeForm"`
}

// buildTodoArgs converts a decoded task_container into TodoWrite tool-call
// arguments: pending tasks live under key "1", completed under "2", each
// entry's description under "2" of the task record itself.
func buildTodoArgs(container wireproto.Value) string {
	var todos []todo

	for _, task := range container.GetList("1") {
		if _, ok := task.Get("1"); !ok {
			continue
		}
		content := task.GetString("2")
		todos = append(todos, todo{Content: content, Status: "pending", ActiveForm: "Working on " + content})
	}

	for _, task := range container.GetList("2") {
		if _, ok := task.Get("1"); !ok {
			continue
		}
		content := task.GetString("2")
		todos = append(todos, todo{Content: content, Status: "completed", ActiveForm: "Completed " + content})
	}

	b, err := json.Marshal(struct {
		Todos []todo `json:"todos"`
	}{Todos: todos})
	if err != nil {
		return `{"todos":[]}`
	}
	return string(b)
}
