package fbstream

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ESP32-Reference/flatbuffers-streaming-json/schema"
)

const msgIDL = `
table Msg { value:int; }
root_type Msg;
`

type msgRecord struct {
	Value int64 `json:"value"`
}

func newTestParser[M, E any](t *testing.T, idl string, opts ...Option) *Parser[M, E] {
	t.Helper()
	s, err := schema.ParseText([]byte(idl))
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}
	p := NewParser[M, E](append([]byte(idl), 0), s.Binary(), opts...)
	if !p.Ready() {
		t.Fatalf("parser not ready: %v", p.Err())
	}
	return p
}

func TestParseStreamWholeDocument(t *testing.T) {
	p := newTestParser[msgRecord, msgRecord](t, msgIDL)
	var got []msgRecord
	ok := p.ParseStream(strings.NewReader(`{"value": 42}`), StreamConfig[msgRecord, msgRecord]{
		OnMessage: func(m msgRecord) bool { got = append(got, m); return true },
	})
	if !ok {
		t.Fatalf("ParseStream = false, stream err %v", p.StreamErr())
	}
	if len(got) != 1 || got[0].Value != 42 {
		t.Errorf("messages = %+v, want one with value 42", got)
	}
}

func TestParseStreamShapeMismatch(t *testing.T) {
	p := newTestParser[msgRecord, msgRecord](t, msgIDL)
	called := false
	ok := p.ParseStream(strings.NewReader(`{"value": "oops"}`), StreamConfig[msgRecord, msgRecord]{
		OnMessage: func(msgRecord) bool { called = true; return true },
	})
	if ok {
		t.Error("ParseStream = true for mismatched shape")
	}
	if called {
		t.Error("callback invoked for failed conversion")
	}
	var se *schema.ShapeError
	if !errors.As(p.StreamErr(), &se) {
		t.Errorf("StreamErr = %v, want a ShapeError", p.StreamErr())
	}
}

func TestParseStreamWildcardSiblings(t *testing.T) {
	p := newTestParser[msgRecord, msgRecord](t, msgIDL)
	var got []int64
	ok := p.ParseStream(
		strings.NewReader(`{"items": {"a": {"value": 1}, "b": {"value": 2}}}`),
		StreamConfig[msgRecord, msgRecord]{
			RootPath:  ParsePath("items.*"),
			OnMessage: func(m msgRecord) bool { got = append(got, m.Value); return true },
		})
	if !ok {
		t.Fatalf("ParseStream = false, stream err %v", p.StreamErr())
	}
	if !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Errorf("values = %v, want [1 2]", got)
	}
}

func TestParseStreamTruncatedInput(t *testing.T) {
	p := newTestParser[msgRecord, msgRecord](t, msgIDL)
	called := false
	ok := p.ParseStream(strings.NewReader(`{"value":`), StreamConfig[msgRecord, msgRecord]{
		OnMessage: func(msgRecord) bool { called = true; return true },
	})
	if ok {
		t.Error("ParseStream = true for truncated input")
	}
	if called {
		t.Error("callback invoked for truncated input")
	}
}

const keyedIDL = `
table Inner { x:int; }
table Entry { id:string (key); val:Inner; }
table Map { entries:[Entry]; }
root_type Map;
`

type keyedRecord struct {
	Entries []struct {
		ID  string `json:"id"`
		Val struct {
			X int64 `json:"x"`
		} `json:"val"`
	} `json:"entries"`
}

func TestParseStreamKeyedMapRewrite(t *testing.T) {
	var fragments []string
	observer := WithFragmentObserver(func(text string, _ bool) {
		fragments = append(fragments, text)
	})
	p := newTestParser[keyedRecord, keyedRecord](t, keyedIDL, observer)
	var got []keyedRecord
	ok := p.ParseStream(
		strings.NewReader(`{"entries": {"b": {"x": 2}, "a": {"x": 1}}}`),
		StreamConfig[keyedRecord, keyedRecord]{
			OnMessage: func(m keyedRecord) bool { got = append(got, m); return true },
		})
	if !ok {
		t.Fatalf("ParseStream = false, stream err %v", p.StreamErr())
	}

	// The map object is rewritten into record-array form, in arrival order.
	want := `{"entries":[{"id":"b","val":{"x":2}},{"id":"a","val":{"x":1}}]}`
	if len(fragments) != 1 || fragments[0] != want {
		t.Errorf("fragments = %q, want [%q]", fragments, want)
	}

	// The compiled keyed vector comes back sorted by id.
	if len(got) != 1 || len(got[0].Entries) != 2 {
		t.Fatalf("messages = %+v", got)
	}
	es := got[0].Entries
	if es[0].ID != "a" || es[0].Val.X != 1 || es[1].ID != "b" || es[1].Val.X != 2 {
		t.Errorf("entries = %+v, want sorted a=1, b=2", es)
	}
}

const twoTableIDL = `
table Err { code:int; }
table Msg { value:int; }
root_type Msg;
`

type errRecord struct {
	Code int64 `json:"code"`
}

func TestParseStreamErrorPath(t *testing.T) {
	p := newTestParser[msgRecord, errRecord](t, twoTableIDL,
		WithMessageTable("Msg"), WithErrorTable("Err"))
	var msgs []int64
	var errs []int64
	ok := p.ParseStream(
		strings.NewReader(`{"data": {"value": 7}, "error": {"code": 9}}`),
		StreamConfig[msgRecord, errRecord]{
			RootPath:  ParsePath("data"),
			OnMessage: func(m msgRecord) bool { msgs = append(msgs, m.Value); return true },
			ErrorPath: ParsePath("error"),
			OnError:   func(e errRecord) bool { errs = append(errs, e.Code); return true },
		})
	if !ok {
		t.Fatalf("ParseStream = false, stream err %v", p.StreamErr())
	}
	if !reflect.DeepEqual(msgs, []int64{7}) {
		t.Errorf("messages = %v, want [7]", msgs)
	}
	if !reflect.DeepEqual(errs, []int64{9}) {
		t.Errorf("errors = %v, want [9]", errs)
	}
}

func TestParseStreamNilCallbackStillConverts(t *testing.T) {
	p := newTestParser[msgRecord, msgRecord](t, msgIDL)
	if !p.ParseStream(strings.NewReader(`{"value": 1}`), StreamConfig[msgRecord, msgRecord]{}) {
		t.Errorf("ParseStream = false without callback: %v", p.StreamErr())
	}
	if p.ParseStream(strings.NewReader(`{"value": "bad"}`), StreamConfig[msgRecord, msgRecord]{}) {
		t.Error("ParseStream = true for bad shape without callback")
	}
}

func TestParseStreamCallbackRejection(t *testing.T) {
	p := newTestParser[msgRecord, msgRecord](t, msgIDL)
	ok := p.ParseStream(strings.NewReader(`{"value": 1}`), StreamConfig[msgRecord, msgRecord]{
		OnMessage: func(msgRecord) bool { return false },
	})
	if ok {
		t.Error("ParseStream = true after callback rejection")
	}
	if !errors.Is(p.StreamErr(), ErrRecordRejected) {
		t.Errorf("StreamErr = %v, want ErrRecordRejected", p.StreamErr())
	}
}

func TestParserNotReady(t *testing.T) {
	s := mustTestSchema(t, msgIDL)
	tests := []struct {
		name string
		text []byte
		bin  []byte
		want string
	}{
		{"empty text buffer", nil, s.Binary(), "empty"},
		{"text missing terminator", []byte(msgIDL), s.Binary(), "NUL"},
		{"empty binary buffer", append([]byte(msgIDL), 0), nil, "empty"},
		{"binary garbage", append([]byte(msgIDL), 0), append([]byte("not a schema"), 0), "schema"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser[msgRecord, msgRecord](tt.text, tt.bin)
			if p.Ready() {
				t.Fatal("parser ready with bad schema input")
			}
			if p.Err() == nil || !strings.Contains(p.Err().Error(), tt.want) {
				t.Errorf("Err = %v, want mention of %q", p.Err(), tt.want)
			}
			ok := p.ParseStream(strings.NewReader(`{"value": 1}`), StreamConfig[msgRecord, msgRecord]{
				OnMessage: func(msgRecord) bool { t.Error("callback invoked"); return true },
			})
			if ok {
				t.Error("ParseStream = true on a parser that is not ready")
			}
			if !errors.Is(p.StreamErr(), ErrSchemaNotReady) {
				t.Errorf("StreamErr = %v, want ErrSchemaNotReady", p.StreamErr())
			}
		})
	}
}

func mustTestSchema(t *testing.T, idl string) *schema.Schema {
	t.Helper()
	s, err := schema.ParseText([]byte(idl))
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}
	return s
}

func TestParseStreamReuse(t *testing.T) {
	p := newTestParser[msgRecord, msgRecord](t, msgIDL)
	run := func(input string) (bool, []int64) {
		var got []int64
		ok := p.ParseStream(strings.NewReader(input), StreamConfig[msgRecord, msgRecord]{
			OnMessage: func(m msgRecord) bool { got = append(got, m.Value); return true },
		})
		return ok, got
	}

	if ok, got := run(`{"value": 1}`); !ok || !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("first parse: ok=%v got=%v", ok, got)
	}
	// A failing stream must not leak state into the next one.
	if ok, _ := run(`{"value": "bad"}`); ok {
		t.Fatal("second parse succeeded on bad shape")
	}
	if ok, got := run(`{"value": 3}`); !ok || !reflect.DeepEqual(got, []int64{3}) {
		t.Fatalf("third parse: ok=%v got=%v, stream err %v", ok, got, p.StreamErr())
	}
	if p.StreamErr() != nil {
		t.Errorf("StreamErr not reset: %v", p.StreamErr())
	}
}

func TestParseStreamMultipleDocuments(t *testing.T) {
	p := newTestParser[msgRecord, msgRecord](t, msgIDL)
	var got []int64
	ok := p.ParseStream(strings.NewReader("{\"value\": 1}\n{\"value\": 2}\n"),
		StreamConfig[msgRecord, msgRecord]{
			OnMessage: func(m msgRecord) bool { got = append(got, m.Value); return true },
		})
	if !ok {
		t.Fatalf("ParseStream = false, stream err %v", p.StreamErr())
	}
	if !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Errorf("values = %v, want [1 2]", got)
	}
}
