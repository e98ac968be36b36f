package schema

import (
	"errors"
	"strings"
	"testing"
)

const weatherIDL = `
// Weather report messages.
namespace Weather;

table Wind {
  speed:float;
  direction:short;
}

table Report {
  location:string (required);
  temperature:double = 21.5;
  humidity:ubyte = 40;
  wind:Wind;
  alerts:[string];
  readings:[int];
}

root_type Report;
`

func mustParse(t *testing.T, src string) *Schema {
	t.Helper()
	s, err := ParseText([]byte(src))
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}
	return s
}

func TestParseText(t *testing.T) {
	s := mustParse(t, weatherIDL)

	if len(s.Objects) != 2 {
		t.Fatalf("got %d objects, want 2", len(s.Objects))
	}
	// Objects are sorted by qualified name.
	if s.Objects[0].Name != "Weather.Report" || s.Objects[1].Name != "Weather.Wind" {
		t.Errorf("object order %q, %q", s.Objects[0].Name, s.Objects[1].Name)
	}
	if s.Root == nil || s.Root.Name != "Weather.Report" {
		t.Fatalf("root = %v", s.Root)
	}

	report := s.Object("Report")
	if report == nil {
		t.Fatal("bare name lookup failed")
	}
	loc := report.Field("location")
	if loc == nil || loc.Type.Base != String || !loc.Required || loc.ID != 0 {
		t.Errorf("location = %+v", loc)
	}
	temp := report.Field("temperature")
	if temp == nil || temp.Type.Base != Double || temp.DefaultReal != 21.5 || temp.ID != 1 {
		t.Errorf("temperature = %+v", temp)
	}
	hum := report.Field("humidity")
	if hum == nil || hum.Type.Base != UByte || hum.DefaultInt != 40 {
		t.Errorf("humidity = %+v", hum)
	}
	wind := report.Field("wind")
	if wind == nil || wind.Type.Base != Obj || s.ObjectAt(wind.Type.Index) != s.Object("Wind") {
		t.Errorf("wind = %+v", wind)
	}
	alerts := report.Field("alerts")
	if alerts == nil || alerts.Type.Base != Vector || alerts.Type.Element != String {
		t.Errorf("alerts = %+v", alerts)
	}
	readings := report.Field("readings")
	if readings == nil || readings.Type.Base != Vector || readings.Type.Element != Int {
		t.Errorf("readings = %+v", readings)
	}
}

func TestParseTextKeyAttribute(t *testing.T) {
	s := mustParse(t, `
table Entry {
  id:ushort (key);
  val:string;
}
table Map { entries:[Entry]; }
root_type Map;
`)
	entry := s.Object("Entry")
	if key := entry.KeyField(); key == nil || key.Name != "id" {
		t.Fatalf("key field = %v", key)
	}
}

func TestRootDefaultsToLastTable(t *testing.T) {
	s := mustParse(t, `
table A { x:int; }
table B { a:A; }
`)
	if s.Root == nil || s.Root.Name != "B" {
		t.Fatalf("root = %v, want B", s.Root)
	}
}

func TestParseTextTrailingNul(t *testing.T) {
	src := append([]byte("table T { x:int; }\nroot_type T;\n"), 0)
	if _, err := ParseText(src); err != nil {
		t.Fatalf("ParseText with trailing NUL: %v", err)
	}
}

func TestParseTextErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"duplicate field", `table T { x:int; x:int; }`, "duplicate"},
		{"unknown type", `table T { x:wibble; } root_type T;`, "wibble"},
		{"unknown table ref", `table T { x:Missing; } root_type T;`, "Missing"},
		{"nested vector", `table T { x:[[int]]; }`, "vector"},
		{"missing semicolon", `table T { x:int }`, "expected"},
		{"enum unsupported", `enum E : byte { A } table T { x:int; }`, "enum"},
		{"union unsupported", `union U { } table T { x:int; }`, "union"},
		{"struct unsupported", `struct S { x:int; } table T { x:int; }`, "struct"},
		{"bad default", `table T { x:int = "no"; }`, "default"},
		{"bool default on int", `table T { x:int = true; }`, "default"},
		{"unknown root", `table T { x:int; } root_type Nope;`, "Nope"},
		{"no tables", `namespace N;`, "table"},
		{"unterminated comment", `/* table T {`, "comment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseText([]byte(tt.src))
			if err == nil {
				t.Fatal("expected error")
			}
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("error type %T", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
