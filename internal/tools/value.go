// Package tools executes assistant-initiated tool calls against the current
// inspection result. Arguments arrive from the relay as loosely-typed JSON;
// this package converts them into a small closed set of tagged value variants
// so each tool can validate its argument shape while staying tolerant of
// unknown keys the remote side may add.
package tools

import (
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the variant held by a [Value].
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindMap
	KindList
)

// String returns the kind's name for error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is one tagged argument variant. The zero value is null.
type Value struct {
	kind Kind
	str  string
	num  float64 // ints stored here too; KindInt guarantees an integral value
	b    bool
	m    Map
	l    []Value
}

// Map is a string-keyed collection of values, the shape of every tool's
// top-level argument object.
type Map map[string]Value

// String wraps a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int wraps an integer value.
func Int(i int64) Value { return Value{kind: KindInt, num: float64(i)} }

// Float wraps a floating-point value.
func Float(f float64) Value { return Value{kind: KindFloat, num: f} }

// Bool wraps a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// FromAny converts a decoded JSON value into a tagged [Value]. Whole-number
// floats become KindInt because JSON has no integer type of its own.
// Unrecognised Go types become null.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{}
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return Int(int64(t))
		}
		return Float(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case map[string]any:
		return Value{kind: KindMap, m: FromArgs(t)}
	case []any:
		list := make([]Value, len(t))
		for i, el := range t {
			list[i] = FromAny(el)
		}
		return Value{kind: KindList, l: list}
	default:
		return Value{}
	}
}

// FromArgs converts a decoded JSON object into a [Map].
func FromArgs(args map[string]any) Map {
	m := make(Map, len(args))
	for k, v := range args {
		m[k] = FromAny(v)
	}
	return m
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// AsString returns the string value. Numeric and boolean values are
// formatted, which keeps tools usable when the remote side sends "3"
// where 3 was expected and vice versa.
func (v Value) AsString() (string, bool) {
	switch v.kind {
	case KindString:
		return v.str, true
	case KindInt:
		return strconv.FormatInt(int64(v.num), 10), true
	case KindFloat:
		return strconv.FormatFloat(v.num, 'g', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.b), true
	default:
		return "", false
	}
}

// AsInt returns the integer value. Floats are accepted only when integral.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return int64(v.num), true
	case KindFloat:
		if v.num == math.Trunc(v.num) {
			return int64(v.num), true
		}
		return 0, false
	case KindString:
		i, err := strconv.ParseInt(v.str, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// AsFloat returns the numeric value.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt, KindFloat:
		return v.num, true
	case KindString:
		f, err := strconv.ParseFloat(v.str, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// AsBool returns the boolean value.
func (v Value) AsBool() (bool, bool) {
	switch v.kind {
	case KindBool:
		return v.b, true
	case KindString:
		b, err := strconv.ParseBool(v.str)
		return b, err == nil
	default:
		return false, false
	}
}

// AsMap returns the nested object value.
func (v Value) AsMap() (Map, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// AsList returns the list value.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.l, true
}

// Interface converts the value back to the plain Go shape used for JSON
// encoding.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return int64(v.num)
	case KindFloat:
		return v.num
	case KindBool:
		return v.b
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, el := range v.m {
			out[k] = el.Interface()
		}
		return out
	case KindList:
		out := make([]any, len(v.l))
		for i, el := range v.l {
			out[i] = el.Interface()
		}
		return out
	default:
		return nil
	}
}

// ── Map accessors ───────────────────────────────────────────────────────────

// String returns the named string argument.
func (m Map) String(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	return v.AsString()
}

// Int returns the named integer argument.
func (m Map) Int(key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

// Bool returns the named boolean argument. Missing keys report ok=false so
// callers can distinguish "absent" from "explicitly false".
func (m Map) Bool(key string) (bool, bool) {
	v, ok := m[key]
	if !ok {
		return false, false
	}
	return v.AsBool()
}

// Map returns the named nested object argument.
func (m Map) Map(key string) (Map, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	return v.AsMap()
}

// List returns the named list argument.
func (m Map) List(key string) ([]Value, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	return v.AsList()
}
