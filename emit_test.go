package fbstream

import (
	"strings"
	"testing"
)

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0", "0"},
		{"42", "42"},
		{"-7", "-7"},
		{"2.5", "2"},
		{"-3.9", "-3"},
		{"1e3", "1000"},
		{"1.25e2", "125"},
		{"0.0", "0"},
	}
	for _, tt := range tests {
		if got := string(normalizeNumber([]byte(tt.in))); got != tt.want {
			t.Errorf("normalizeNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// collectFragments parses one document and returns the serialized text of
// every matched fragment, ignoring conversion results.
func collectFragments(t *testing.T, rootPath, input string) []string {
	t.Helper()
	var fragments []string
	p := newTestParser[msgRecord, msgRecord](t, msgIDL,
		WithFragmentObserver(func(text string, _ bool) {
			fragments = append(fragments, text)
		}))
	p.ParseStream(strings.NewReader(input), StreamConfig[msgRecord, msgRecord]{
		RootPath: ParsePath(rootPath),
	})
	return fragments
}

func TestFragmentSerialization(t *testing.T) {
	tests := []struct {
		name  string
		root  string
		input string
		want  string
	}{
		{"flat object", "", `{"a": 1, "b": "x"}`, `{"a":1,"b":"x"}`},
		{"nested object", "", `{"a": {"b": {"c": null}}}`, `{"a":{"b":{"c":null}}}`},
		{"array of scalars", "", `{"xs": [1, 2.5, true]}`, `{"xs":[1,2,true]}`},
		{"array of objects", "", `{"xs": [{"a": 1}, {}]}`, `{"xs":[{"a":1},{}]}`},
		{"empty object", "", `{}`, `{}`},
		{"empty array", "", `{"xs": []}`, `{"xs":[]}`},
		{"nested empty object", "", `{"a": {}}`, `{"a":{}}`},
		{"string escapes kept", "", `{"s": "a\"b\ncé"}`, `{"s":"a\"b\ncé"}`},
		{"anchored object", "a", `{"z": 0, "a": {"x": 1}}`, `{"x":1}`},
		{"anchored array", "a", `{"a": [1, 2]}`, `[1,2]`},
		{"anchored scalar", "a", `{"a": 5}`, `5`},
		{"anchored string", "a", `{"a": "hi"}`, `"hi"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collectFragments(t, tt.root, tt.input)
			if len(got) != 1 {
				t.Fatalf("got %d fragments (%q), want 1", len(got), got)
			}
			if got[0] != tt.want {
				t.Errorf("fragment = %q, want %q", got[0], tt.want)
			}
		})
	}
}

// Each wildcard sibling match must finalize with its own isolated buffer.
func TestFragmentIsolationAcrossMatches(t *testing.T) {
	got := collectFragments(t, "items.*",
		`{"items": {"a": {"value": 1}, "b": {"value": 2}, "c": {"value": 3}}}`)
	want := []string{`{"value":1}`, `{"value":2}`, `{"value":3}`}
	if len(got) != len(want) {
		t.Fatalf("got %d fragments, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fragment %d = %q, want %q", i, got[i], want[i])
		}
	}
}
