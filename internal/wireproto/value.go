// Package wireproto defines the tagged value tree exchanged with the upstream
// codec adapter, and a default JSON-backed Codec implementation.
//
// The real upstream wire format is a proprietary binary protocol and is
// explicitly out of scope; Codec is the seam a binary implementation would
// sit behind. Value gives the rest of the proxy one representation for that
// tree instead of ad-hoc map[string]any assertions scattered through the
// assembler and translators.
package wireproto

import "fmt"

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindInt
	KindFloat
	KindBool
	KindBytes
	KindList
	KindMap
)

// Value is a tagged tree node: text, integer, float, bool, bytes, list, or
// map. Only one of the typed fields is meaningful for a given Kind.
type Value struct {
	Kind  Kind
	Text  string
	Int   int64
	Float float64
	Bool  bool
	Bytes []byte
	List  []Value
	Map   map[string]Value
}

func Null() Value                { return Value{Kind: KindNull} }
func Text(s string) Value        { return Value{Kind: KindText, Text: s} }
func Int(i int64) Value          { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value      { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func Bytes(b []byte) Value       { return Value{Kind: KindBytes, Bytes: b} }
func List(vs ...Value) Value     { return Value{Kind: KindList, List: vs} }
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{Kind: KindMap, Map: m}
}

// NewMap returns an empty, ready-to-populate map Value.
func NewMap() Value { return Map(nil) }

// Set assigns a key on a map Value in place; panics if v is not a map.
func (v Value) Set(key string, val Value) Value {
	if v.Kind != KindMap {
		panic("wireproto: Set on non-map Value")
	}
	v.Map[key] = val
	return v
}

// Append appends to a list Value, returning the updated Value.
func (v Value) Append(val Value) Value {
	if v.Kind != KindList {
		panic("wireproto: Append on non-list Value")
	}
	v.List = append(v.List, val)
	return v
}

// Get performs first-match key lookup across the given aliases (upstream
// frames mix snake_case and camelCase for the same logical field).
func (v Value) Get(keys ...string) (Value, bool) {
	if v.Kind != KindMap {
		return Value{}, false
	}
	for _, k := range keys {
		if val, ok := v.Map[k]; ok {
			return val, true
		}
	}
	return Value{}, false
}

// GetString is Get followed by a string coercion; returns "" if absent or
// not text.
func (v Value) GetString(keys ...string) string {
	val, ok := v.Get(keys...)
	if !ok || val.Kind != KindText {
		return ""
	}
	return val.Text
}

// GetList is Get followed by a list coercion; returns nil if absent or not a
// list.
func (v Value) GetList(keys ...string) []Value {
	val, ok := v.Get(keys...)
	if !ok || val.Kind != KindList {
		return nil
	}
	return val.List
}

// IsZero reports whether v has Kind KindNull, as the uninitialized Value
// does; the payload fields are not inspected.
func (v Value) IsZero() bool {
	return v.Kind == KindNull
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindText:
		return v.Text
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.Bytes))
	case KindList:
		return fmt.Sprintf("list(%d)", len(v.List))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.Map))
	default:
		return "unknown"
	}
}
