package tools

import (
	"reflect"
	"testing"
)

func TestFromAny(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want Kind
	}{
		{"string", "hello", KindString},
		{"bool", true, KindBool},
		{"whole float becomes int", float64(3), KindInt},
		{"fractional float", 3.5, KindFloat},
		{"nil", nil, KindNull},
		{"object", map[string]any{"a": "b"}, KindMap},
		{"list", []any{"x", float64(1)}, KindList},
		{"unsupported type", struct{}{}, KindNull},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FromAny(tc.in).Kind(); got != tc.want {
				t.Errorf("FromAny(%v).Kind() = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestValue_Coercions(t *testing.T) {
	if got, ok := Int(3).AsString(); !ok || got != "3" {
		t.Errorf("Int(3).AsString() = %q, %v", got, ok)
	}
	if got, ok := String("42").AsInt(); !ok || got != 42 {
		t.Errorf("String(42).AsInt() = %d, %v", got, ok)
	}
	if _, ok := Float(2.5).AsInt(); ok {
		t.Error("fractional float should not coerce to int")
	}
	if got, ok := Float(2).AsInt(); !ok || got != 2 {
		t.Errorf("Float(2).AsInt() = %d, %v", got, ok)
	}
	if got, ok := String("true").AsBool(); !ok || !got {
		t.Errorf("String(true).AsBool() = %v, %v", got, ok)
	}
	if _, ok := Bool(true).AsMap(); ok {
		t.Error("bool should not coerce to map")
	}
}

func TestMap_Accessors(t *testing.T) {
	m := FromArgs(map[string]any{
		"confirmed": true,
		"index":     float64(2),
		"note":      "tighten",
		"nested":    map[string]any{"k": "v"},
		"items":     []any{"a", "b"},
	})

	if got, ok := m.Bool("confirmed"); !ok || !got {
		t.Errorf("Bool(confirmed) = %v, %v", got, ok)
	}
	if got, ok := m.Int("index"); !ok || got != 2 {
		t.Errorf("Int(index) = %d, %v", got, ok)
	}
	if got, ok := m.String("note"); !ok || got != "tighten" {
		t.Errorf("String(note) = %q, %v", got, ok)
	}
	if nested, ok := m.Map("nested"); !ok || len(nested) != 1 {
		t.Errorf("Map(nested) = %v, %v", nested, ok)
	}
	if items, ok := m.List("items"); !ok || len(items) != 2 {
		t.Errorf("List(items) = %v, %v", items, ok)
	}

	// Absent key reports ok=false, not a zero value masquerading as data.
	if _, ok := m.Bool("missing"); ok {
		t.Error("Bool(missing) ok = true, want false")
	}
}

func TestValue_InterfaceRoundTrip(t *testing.T) {
	in := map[string]any{
		"name":  "gasket",
		"qty":   int64(2),
		"loose": false,
		"tags":  []any{"seal", "urgent"},
	}
	got := FromAny(in).Interface()
	if !reflect.DeepEqual(got, in) {
		t.Errorf("round trip = %#v, want %#v", got, in)
	}
}
