package fbstream

import (
	"bytes"
	"math"
	"strconv"

	"github.com/ESP32-Reference/flatbuffers-streaming-json/token"
)

// Emission scope of one open JSON object, decided lazily by its first
// emitted field: a plain field opens "{", a keyed field opens "[" for the
// rewritten record array.  An object that closes still at scopeNone emitted
// nothing and serializes as "{}".
const (
	scopeNone = iota
	scopeObject
	scopeArray
)

// A fragment accumulates the serialized text of the subtree currently being
// matched.  Scalars are appended in their literal form; numbers are
// normalized to truncated integer text, so schema fields carrying fractional
// values lose their fraction.  That narrowing is deliberate and relied on by
// integer-typed schemas fed from sources that emit "42.0".
type fragment struct {
	buf bytes.Buffer
}

func (f *fragment) Len() int       { return f.buf.Len() }
func (f *fragment) Bytes() []byte  { return f.buf.Bytes() }
func (f *fragment) String() string { return f.buf.String() }
func (f *fragment) Reset()         { f.buf.Reset() }

func (f *fragment) byte(b byte) {
	f.buf.WriteByte(b)
}

func (f *fragment) literal(s string) {
	f.buf.WriteString(s)
}

// scalar appends a scalar token in JSON literal form.
func (f *fragment) scalar(s *token.Scalar) {
	if s.Type() == token.Number {
		f.buf.Write(normalizeNumber(s.Bytes))
		return
	}
	f.buf.Write(s.Bytes)
}

// key appends a field key in its literal (quoted) form.
func (f *fragment) key(k *token.Scalar) {
	f.buf.Write(k.Bytes)
}

// normalizeNumber returns the literal unchanged for integers and the
// truncated integer text for fractional or exponent forms.
func normalizeNumber(lit []byte) []byte {
	if bytes.IndexAny(lit, ".eE") < 0 {
		return lit
	}
	x, err := strconv.ParseFloat(string(lit), 64)
	if err != nil {
		return lit
	}
	return strconv.AppendInt(nil, int64(math.Trunc(x)), 10)
}
