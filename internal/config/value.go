package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// Value is a resolved configuration value: a string, number, bool or a
// decoded JSON object/array. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	obj  any
}

// String wraps s.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number wraps n.
func Number(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// Bool wraps b.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Null is the absent value.
func Null() Value {
	return Value{}
}

// Object wraps a decoded JSON object or array.
func Object(obj any) Value {
	return Value{kind: KindObject, obj: obj}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// AsString returns the string variant.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the number variant.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsBool returns the bool variant.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsObject returns the decoded JSON object or array.
func (v Value) AsObject() (any, bool) {
	return v.obj, v.kind == KindObject
}

// Interface returns the plain Go representation (string, float64, bool,
// map[string]any, []any or nil).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindObject:
		return v.obj
	default:
		return nil
	}
}

// String renders the value the way it would appear in a raw source.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindObject:
		data, err := json.Marshal(v.obj)
		if err != nil {
			return fmt.Sprintf("%v", v.obj)
		}
		return string(data)
	default:
		return ""
	}
}

// Equal compares two values structurally.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindObject:
		a, errA := json.Marshal(v.obj)
		b, errB := json.Marshal(other.obj)
		return errA == nil && errB == nil && bytes.Equal(a, b)
	default:
		return v.Interface() == other.Interface()
	}
}

// Decode copies the value into target through its JSON form.
func (v Value) Decode(target any) error {
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return fmt.Errorf("encode config value: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode config value: %w", err)
	}
	return nil
}

// Lookup walks nested object fields.
func (v Value) Lookup(path ...string) (Value, bool) {
	current := v.Interface()
	for _, segment := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return Null(), false
		}
		current, ok = m[segment]
		if !ok {
			return Null(), false
		}
	}
	return FromAny(current), true
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

var numericPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// Parse converts a raw source string into a Value: JSON-looking text that
// decodes becomes an Object, true/false a Bool, integer or decimal text a
// Number, anything else a String.
func Parse(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if looksLikeJSON(trimmed) {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return Object(decoded)
		}
	}
	switch trimmed {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if numericPattern.MatchString(trimmed) {
		if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return Number(n)
		}
	}
	return String(raw)
}

func looksLikeJSON(s string) bool {
	return (strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) ||
		(strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"))
}

// FromAny wraps an already-typed value, as produced by JSON or YAML
// decoding. Strings are kept verbatim.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(n)
	case map[string]any:
		return Object(normalize(t))
	case []any:
		return Object(normalize(t))
	default:
		return Object(normalize(t))
	}
}

// normalize rewrites YAML-decoded numbers so object contents match what
// encoding/json would have produced.
func normalize(x any) any {
	switch t := x.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = normalize(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = normalize(v)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return t
	}
}
