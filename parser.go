package fbstream

import (
	"io"
	"log"

	"github.com/ESP32-Reference/flatbuffers-streaming-json/jsontext"
	"github.com/ESP32-Reference/flatbuffers-streaming-json/schema"
	"github.com/ESP32-Reference/flatbuffers-streaming-json/token"
)

// StreamConfig configures one ParseStream invocation.  RootPath selects the
// positions whose fragments become M records via OnMessage; ErrorPath (when
// non-empty) selects E records via OnError.  An empty RootPath matches the
// whole document.  A nil callback discards the decoded record, but the
// conversion must still succeed for ParseStream to return true.
type StreamConfig[M, E any] struct {
	RootPath  Path
	OnMessage func(M) bool
	ErrorPath Path
	OnError   func(E) bool
}

// An Option adjusts Parser construction.
type Option func(*parserOptions)

type parserOptions struct {
	messageTable string
	errorTable   string
	onFragment   func(text string, targetsError bool)
}

// WithMessageTable selects the schema table message fragments are compiled
// against.  The default is the schema's root table.
func WithMessageTable(name string) Option {
	return func(o *parserOptions) { o.messageTable = name }
}

// WithErrorTable selects the schema table error fragments are compiled
// against.  The default is the schema's root table.
func WithErrorTable(name string) Option {
	return func(o *parserOptions) { o.errorTable = name }
}

// WithFragmentObserver registers a function that sees the serialized text of
// every matched fragment just before conversion.  Useful for debugging and
// for tracing what a stream actually matched.
func WithFragmentObserver(fn func(text string, targetsError bool)) Option {
	return func(o *parserOptions) { o.onFragment = fn }
}

// A Parser converts matching fragments of a JSON stream into records of type
// M (messages) and E (errors).  It is built once per schema and reused
// across any number of streams; it is not safe for concurrent use.
//
// Construction failures do not return an error: they leave the Parser
// permanently not ready, with the diagnostic retained by Err, and every
// subsequent conversion fails with ErrSchemaNotReady.  This mirrors clients
// that must outlive a bad schema push rather than crash on it.
type Parser[M, E any] struct {
	schema   *schema.Schema
	msgTable *schema.Object
	errTable *schema.Object
	compiler *schema.Compiler
	ready    bool
	err      error

	onFragment func(text string, targetsError bool)

	// Per-stream scratch, reset by clear at the start of every ParseStream.
	cfg          StreamConfig[M, E]
	curPath      []string
	emitting     bool
	targetsError bool
	cursor       *schema.Object
	frag         fragment
	objects      []objectFrame
	fields       []fieldFrame
	streamErr    error
}

// objectFrame is the serializer state of one open JSON object.
type objectFrame struct {
	scope int
}

// fieldFrame is the state saved around one object field's value.
type fieldFrame struct {
	savedCursor *schema.Object
	closeRecord bool
}

// NewParser builds a Parser from a text schema definition and a binary
// reflection schema.  Both buffers must be non-empty and NUL-terminated.
// The binary schema is authoritative for reflection, compilation and
// verification; the text schema must parse to the same definitions and is
// validated here.
func NewParser[M, E any](textSchema, binarySchema []byte, opts ...Option) *Parser[M, E] {
	var o parserOptions
	for _, opt := range opts {
		opt(&o)
	}
	p := &Parser[M, E]{onFragment: o.onFragment}
	if p.err = p.load(textSchema, binarySchema, o); p.err != nil {
		log.Printf("fbstream: schema not loaded: %v", p.err)
		return p
	}
	p.ready = true
	log.Printf("fbstream: ready, message table %s, error table %s",
		p.msgTable.Name, p.errTable.Name)
	return p
}

func (p *Parser[M, E]) load(textSchema, binarySchema []byte, o parserOptions) error {
	if err := checkSchemaBuffer("text", textSchema); err != nil {
		return err
	}
	if err := checkSchemaBuffer("binary", binarySchema); err != nil {
		return err
	}
	if _, err := schema.ParseText(textSchema); err != nil {
		return err
	}
	s, err := schema.ParseBinary(binarySchema)
	if err != nil {
		return err
	}
	if s.Root == nil {
		return &schema.SchemaError{Msg: "schema has no root table"}
	}
	p.schema = s
	p.msgTable, p.errTable = s.Root, s.Root
	if o.messageTable != "" {
		if p.msgTable = s.Object(o.messageTable); p.msgTable == nil {
			return &schema.SchemaError{Msg: "unknown message table " + o.messageTable}
		}
	}
	if o.errorTable != "" {
		if p.errTable = s.Object(o.errorTable); p.errTable == nil {
			return &schema.SchemaError{Msg: "unknown error table " + o.errorTable}
		}
	}
	p.compiler = schema.NewCompiler(s)
	return nil
}

func checkSchemaBuffer(kind string, buf []byte) error {
	if len(buf) == 0 {
		return &schema.SchemaError{Msg: kind + " schema buffer is empty"}
	}
	if buf[len(buf)-1] != 0 {
		return &schema.SchemaError{Msg: kind + " schema buffer is not NUL terminated"}
	}
	return nil
}

// Ready reports whether the schema loaded at construction.
func (p *Parser[M, E]) Ready() bool { return p.ready }

// Err returns the construction diagnostic of a Parser that is not ready.
func (p *Parser[M, E]) Err() error { return p.err }

// StreamErr returns the first per-fragment conversion failure of the most
// recent ParseStream, or nil.
func (p *Parser[M, E]) StreamErr() error { return p.streamErr }

// ParseStream consumes one JSON stream, dispatching every fragment that
// matches cfg.  It returns true only if the input was well-formed JSON and
// every matched fragment converted and dispatched successfully.  A false
// result means at least one failure occurred; fragments matched before the
// failure have still been delivered.
func (p *Parser[M, E]) ParseStream(r io.Reader, cfg StreamConfig[M, E]) bool {
	p.clear()
	p.cfg = cfg
	p.recompute()
	if err := jsontext.NewParser(r, p).Parse(); err != nil {
		log.Printf("fbstream: %v", err)
		return false
	}
	return p.streamErr == nil
}

// clear resets all per-stream scratch state.  It is idempotent: parsing two
// unrelated streams with one Parser behaves like using two fresh instances.
func (p *Parser[M, E]) clear() {
	p.cfg = StreamConfig[M, E]{}
	p.curPath = p.curPath[:0]
	p.objects = p.objects[:0]
	p.fields = p.fields[:0]
	p.frag.Reset()
	p.emitting = false
	p.targetsError = false
	p.streamErr = nil
	p.cursor = nil
	if p.schema != nil {
		p.cursor = p.schema.Root
	}
}

// recompute rederives the match state from the current path.  An empty
// ErrorPath never matches, so a stream with no error surface cannot route
// everything to the error table.
func (p *Parser[M, E]) recompute() {
	p.targetsError = len(p.cfg.ErrorPath) > 0 && p.cfg.ErrorPath.matches(p.curPath)
	p.emitting = p.targetsError || p.cfg.RootPath.matches(p.curPath)
}

func (p *Parser[M, E]) owner() *objectFrame {
	return &p.objects[len(p.objects)-1]
}

// Visitor protocol.  State restoration happens on the End* events, so a
// cancellation mid-construct cannot leave a frame behind for the next
// stream: clear drops all frames anyway.

func (p *Parser[M, E]) StartObject() error {
	p.objects = append(p.objects, objectFrame{scope: scopeNone})
	return nil
}

func (p *Parser[M, E]) BeginField(key *token.Scalar) error {
	frame := fieldFrame{savedCursor: p.cursor}
	next, keyed := keyedAdvance(p.schema, p.cursor, key.ToString())
	// A field inside an already matched subtree gets its prefix here.  The
	// anchor field itself does not: the fragment is the bare value.
	if p.emitting {
		owner := p.owner()
		if keyed {
			if owner.scope == scopeNone {
				owner.scope = scopeArray
				p.frag.byte('[')
			} else {
				p.frag.byte(',')
			}
			p.frag.literal(`{"id":`)
			p.frag.key(key)
			p.frag.literal(`,"val":`)
			frame.closeRecord = true
		} else {
			if owner.scope == scopeNone {
				owner.scope = scopeObject
				p.frag.byte('{')
			} else {
				p.frag.byte(',')
			}
			p.frag.key(key)
			p.frag.byte(':')
		}
	}
	p.cursor = next
	p.fields = append(p.fields, frame)
	p.curPath = append(p.curPath, key.ToString())
	p.recompute()
	return nil
}

func (p *Parser[M, E]) EndField() error {
	frame := p.fields[len(p.fields)-1]
	p.fields = p.fields[:len(p.fields)-1]
	if frame.closeRecord && p.emitting {
		p.frag.byte('}')
	}
	p.cursor = frame.savedCursor
	wasEmitting, wasError := p.emitting, p.targetsError
	p.curPath = p.curPath[:len(p.curPath)-1]
	p.recompute()
	// Leaving the anchor field ends the match.
	if wasEmitting && !p.emitting {
		p.finalize(wasError)
	}
	return nil
}

func (p *Parser[M, E]) EndObject() error {
	frame := p.owner()
	if p.emitting {
		switch frame.scope {
		case scopeNone:
			p.frag.literal("{}")
		case scopeObject:
			p.frag.byte('}')
		case scopeArray:
			p.frag.byte(']')
		}
	}
	p.objects = p.objects[:len(p.objects)-1]
	// A whole-document match has no anchor field; it ends with the
	// document's root object.
	if len(p.objects) == 0 && p.emitting {
		p.finalize(p.targetsError)
	}
	return nil
}

func (p *Parser[M, E]) StartArray() error {
	if p.emitting {
		p.frag.byte('[')
	}
	return nil
}

func (p *Parser[M, E]) ArrayItem(i int) error {
	if p.emitting && i > 0 {
		p.frag.byte(',')
	}
	return nil
}

func (p *Parser[M, E]) EndArray() error {
	if p.emitting {
		p.frag.byte(']')
	}
	return nil
}

func (p *Parser[M, E]) Scalar(s *token.Scalar) error {
	if p.emitting {
		p.frag.scalar(s)
	}
	return nil
}
