package fbstream

import (
	"log"

	"github.com/goccy/go-json"

	"github.com/ESP32-Reference/flatbuffers-streaming-json/schema"
)

// finalize converts the buffered fragment and dispatches the result.  A
// failure is recorded and the stream continues; the fragment buffer is
// cleared either way so the next match starts clean.
func (p *Parser[M, E]) finalize(targetsError bool) {
	if p.onFragment != nil {
		p.onFragment(p.frag.String(), targetsError)
	}
	err := p.convert(targetsError)
	p.frag.Reset()
	if err != nil {
		if p.streamErr == nil {
			p.streamErr = err
		}
		log.Printf("fbstream: fragment dropped: %v", err)
	}
}

// convert runs the pipeline on the buffered fragment: compile the JSON
// against the selected table, verify the resulting buffer, decode it and
// invoke the callback.  Verification failing after a successful compile
// points at a compiler defect, not at the input.
func (p *Parser[M, E]) convert(targetsError bool) error {
	if !p.ready {
		return ErrSchemaNotReady
	}
	table := p.msgTable
	if targetsError {
		table = p.errTable
	}
	buf, err := p.compiler.CompileAs(p.frag.Bytes(), table)
	if err != nil {
		return err
	}
	if err := schema.Verify(buf, table, p.schema); err != nil {
		return err
	}
	rec := schema.Decode(buf, table, p.schema)
	if targetsError {
		if p.cfg.OnError == nil {
			return nil
		}
		var e E
		if err := unpack(rec, &e); err != nil {
			return err
		}
		if !p.cfg.OnError(e) {
			return ErrRecordRejected
		}
		return nil
	}
	if p.cfg.OnMessage == nil {
		return nil
	}
	var m M
	if err := unpack(rec, &m); err != nil {
		return err
	}
	if !p.cfg.OnMessage(m) {
		return ErrRecordRejected
	}
	return nil
}

// unpack moves a decoded record into the caller's type through its JSON
// form, so M and E can be anything from map[string]any to a tagged struct.
func unpack(rec schema.Record, dst any) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
