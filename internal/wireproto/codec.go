package wireproto

import (
	"encoding/json"
	"fmt"
)

// Message type names the core passes to Codec. These name upstream protobuf
// message types in the real deployment; the codec treats them opaquely.
const (
	MessageTypeRequest = "warp.multi_agent.v1.Request"
	MessageTypeEvent   = "warp.multi_agent.v1.ResponseEvent"
)

// Codec encodes a Value tree to upstream binary and decodes upstream binary
// back to a Value tree, scoped by a message type name. Real deployments speak
// the proprietary upstream binary protocol here; that protocol is explicitly
// out of scope, so Codec is the seam a binary implementation sits behind.
type Codec interface {
	Encode(v Value, messageType string) ([]byte, error)
	Decode(b []byte, messageType string) (Value, error)

	// DecodeTagged decodes an opaque embedded blob (no known message type)
	// into a best-effort tagged tree, for the tool-result payloads that
	// sometimes carry task-list data (see internal/translate/openai).
	DecodeTagged(b []byte) (Value, error)
}

// JSONCodec is the default Codec: it serializes the tagged tree as JSON. It
// does not claim bit-compatibility with the undisclosed upstream binary
// format; it preserves every operation's contract (encode/decode round-trip,
// tagged decode of embedded blobs) behind the same interface a binary codec
// would implement.
type JSONCodec struct{}

func NewJSONCodec() *JSONCodec { return &JSONCodec{} }

var _ Codec = (*JSONCodec)(nil)

func (JSONCodec) Encode(v Value, _ string) ([]byte, error) {
	return json.Marshal(toPlain(v))
}

func (JSONCodec) Decode(b []byte, _ string) (Value, error) {
	var plain any
	if err := json.Unmarshal(b, &plain); err != nil {
		return Value{}, fmt.Errorf("wireproto: decode: %w", err)
	}
	return fromPlain(plain), nil
}

func (c JSONCodec) DecodeTagged(b []byte) (Value, error) {
	return c.Decode(b, "")
}

func toPlain(v Value) any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindText:
		return v.Text
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindBool:
		return v.Bool
	case KindBytes:
		return v.Bytes
	case KindList:
		out := make([]any, len(v.List))
		for i, e := range v.List {
			out[i] = toPlain(e)
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for k, e := range v.Map {
			out[k] = toPlain(e)
		}
		return out
	default:
		return nil
	}
}

func fromPlain(p any) Value {
	switch t := p.(type) {
	case nil:
		return Null()
	case string:
		return Text(t)
	case bool:
		return Bool(t)
	case float64:
		if t == float64(int64(t)) {
			return Int(int64(t))
		}
		return Float(t)
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = fromPlain(e)
		}
		return List(out...)
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = fromPlain(e)
		}
		return Map(out)
	default:
		return Null()
	}
}
