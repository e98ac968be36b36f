package schema

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
)

// A VerifyError reports a malformed flatbuffer.
type VerifyError struct {
	Offset int
	Msg    string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("buffer verification failed at offset %d: %s", e.Offset, e.Msg)
}

const (
	maxVerifyDepth  = 64
	maxVerifyTables = 1 << 20
)

// Verify checks that buf holds a structurally sound flatbuffer whose root is
// a table of the given definition.  Every reachable table, string and vector
// is bounds checked, so a buffer that passes can be read with Decode without
// further checks.  A trailing NUL byte after the buffer content is harmless.
func Verify(buf []byte, root *Object, s *Schema) error {
	if root == nil {
		return &VerifyError{Msg: "no root table definition"}
	}
	v := &verifier{buf: buf, schema: s}
	if len(buf) < 4 {
		return v.errf(0, "buffer shorter than root offset")
	}
	rootPos := uint64(flatbuffers.GetUOffsetT(buf))
	if rootPos < 4 || rootPos+4 > uint64(len(buf)) {
		return v.errf(0, "root offset %d out of bounds", rootPos)
	}
	return v.table(rootPos, root)
}

type verifier struct {
	buf    []byte
	schema *Schema
	depth  int
	tables int
}

func (v *verifier) errf(off uint64, format string, args ...any) error {
	return &VerifyError{Offset: int(off), Msg: fmt.Sprintf(format, args...)}
}

func (v *verifier) in(off, n uint64) bool {
	return off+n <= uint64(len(v.buf)) && off+n >= off
}

func (v *verifier) table(pos uint64, def *Object) error {
	if v.depth++; v.depth > maxVerifyDepth {
		return v.errf(pos, "nesting deeper than %d tables", maxVerifyDepth)
	}
	defer func() { v.depth-- }()
	if v.tables++; v.tables > maxVerifyTables {
		return v.errf(pos, "more than %d tables", maxVerifyTables)
	}

	if !v.in(pos, 4) {
		return v.errf(pos, "table position out of bounds")
	}
	soff := int64(flatbuffers.GetInt32(v.buf[pos:]))
	vt := int64(pos) - soff
	if vt < 0 || !v.in(uint64(vt), 4) {
		return v.errf(pos, "vtable offset out of bounds")
	}
	vtLen := uint64(flatbuffers.GetUint16(v.buf[vt:]))
	if vtLen < 4 || vtLen%2 != 0 || !v.in(uint64(vt), vtLen) {
		return v.errf(uint64(vt), "bad vtable length %d", vtLen)
	}
	tableLen := uint64(flatbuffers.GetUint16(v.buf[uint64(vt)+2:]))
	if tableLen < 4 || !v.in(pos, tableLen) {
		return v.errf(pos, "bad table length %d", tableLen)
	}

	for _, f := range def.Fields {
		slot := uint64(4 + 2*f.ID)
		var fieldOff uint64
		if slot+2 <= vtLen {
			fieldOff = uint64(flatbuffers.GetUint16(v.buf[uint64(vt)+slot:]))
		}
		if fieldOff == 0 {
			if f.Required {
				return v.errf(pos, "table %q missing required field %q", def.Name, f.Name)
			}
			continue
		}
		size := uint64(f.Type.Base.InlineSize())
		if fieldOff+size > tableLen {
			return v.errf(pos, "field %q extends past table end", f.Name)
		}
		if err := v.field(pos+fieldOff, f); err != nil {
			return err
		}
	}
	return nil
}

// field verifies the out-of-line data a field at the given absolute position
// refers to.  Inline scalars have already been bounds checked by the caller.
func (v *verifier) field(at uint64, f *Field) error {
	switch f.Type.Base {
	case String:
		return v.str(v.indirect(at))
	case Obj:
		def := v.schema.ObjectAt(f.Type.Index)
		if def == nil {
			return v.errf(at, "field %q refers to unknown table index %d", f.Name, f.Type.Index)
		}
		return v.table(v.indirect(at), def)
	case Vector:
		return v.vector(v.indirect(at), f)
	default:
		if f.Type.Base.IsScalar() {
			return nil
		}
		return v.errf(at, "field %q has unsupported type %s", f.Name, f.Type.Base)
	}
}

func (v *verifier) indirect(at uint64) uint64 {
	return at + uint64(flatbuffers.GetUOffsetT(v.buf[at:]))
}

func (v *verifier) str(pos uint64) error {
	if !v.in(pos, 4) {
		return v.errf(pos, "string out of bounds")
	}
	n := uint64(flatbuffers.GetUint32(v.buf[pos:]))
	if !v.in(pos+4, n+1) {
		return v.errf(pos, "string of length %d out of bounds", n)
	}
	if v.buf[pos+4+n] != 0 {
		return v.errf(pos, "string is not NUL terminated")
	}
	return nil
}

func (v *verifier) vector(pos uint64, f *Field) error {
	if !v.in(pos, 4) {
		return v.errf(pos, "vector out of bounds")
	}
	n := uint64(flatbuffers.GetUint32(v.buf[pos:]))
	elems := pos + 4
	switch {
	case f.Type.Element.IsScalar():
		size := uint64(f.Type.Element.InlineSize())
		if !v.in(elems, n*size) {
			return v.errf(pos, "vector of %d elements out of bounds", n)
		}
	case f.Type.Element == String:
		if !v.in(elems, n*4) {
			return v.errf(pos, "vector of %d strings out of bounds", n)
		}
		for i := uint64(0); i < n; i++ {
			if err := v.str(v.indirect(elems + i*4)); err != nil {
				return err
			}
		}
	case f.Type.Element == Obj:
		def := v.schema.ObjectAt(f.Type.Index)
		if def == nil {
			return v.errf(pos, "vector field %q refers to unknown table index %d", f.Name, f.Type.Index)
		}
		if !v.in(elems, n*4) {
			return v.errf(pos, "vector of %d tables out of bounds", n)
		}
		for i := uint64(0); i < n; i++ {
			if err := v.table(v.indirect(elems+i*4), def); err != nil {
				return err
			}
		}
	default:
		return v.errf(pos, "vector field %q has unsupported element type %s", f.Name, f.Type.Element)
	}
	return nil
}
