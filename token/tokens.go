package token

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// A Scalar represents a JSON scalar value as it was read from the input,
// i.e.
//   - strings
//   - numbers
//   - booleans (two values)
//   - null (a single value)
//
// The type is encoded in the TypeAndFlags field, while the Bytes field
// contains the literal representation of the value as found in the input.
// Object keys are scalars too, with the key flag set.
type Scalar struct {

	// Literal representation of the value, e.g.
	// - the string "foo" is represented as []byte("\"foo\"")
	// - the number 123.5 is represented as []byte("123.5")
	// - the boolean true is represented as []byte("true")
	Bytes []byte

	// Type of the value plus flags
	TypeAndFlags uint8
}

func NewScalar(tp ScalarType, bytes []byte) *Scalar {
	return &Scalar{
		Bytes:        bytes,
		TypeAndFlags: uint8(tp),
	}
}

func NewKey(tp ScalarType, bytes []byte) *Scalar {
	return &Scalar{
		Bytes:        bytes,
		TypeAndFlags: uint8(tp) | KeyMask,
	}
}

func (s *Scalar) Type() ScalarType {
	return (ScalarType(s.TypeAndFlags & TypeMask))
}

func (s *Scalar) IsKey() bool {
	return KeyMask&s.TypeAndFlags != 0
}

func (s *Scalar) IsAlnum() bool {
	return AlnumMask&s.TypeAndFlags != 0
}

func (s *Scalar) IsUnescaped() bool {
	return UnescapedMask&s.TypeAndFlags != 0
}

func (s *Scalar) String() string {
	return fmt.Sprintf("Scalar(%s)", s.Bytes)
}

// EqualsString is a convenience method to check if a Scalar represents the
// passed string.
func (s *Scalar) EqualsString(str string) bool {
	if s.Type() != String {
		return false
	}
	return s.ToString() == str
}

// ToString returns the decoded string value.  It panics if the scalar is not
// a string.
func (s *Scalar) ToString() string {
	if s.IsUnescaped() {
		return string(s.Bytes[1 : len(s.Bytes)-1])
	}
	return parseJsonLiteralBytes(s.Bytes).(string)
}

// ToGo returns the value as the matching Go type (string, float64, bool or
// nil).
func (s *Scalar) ToGo() any {
	if s.IsUnescaped() && s.Type() == String {
		return string(s.Bytes[1 : len(s.Bytes)-1])
	}
	return parseJsonLiteralBytes(s.Bytes)
}

func parseJsonLiteralBytes(b []byte) any {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		panic(err)
	}
	return tok
}

// ScalarType encodes the four possible JSON scalar types.
type ScalarType uint8

const (
	Null               = 0x0 // the type of JSON null
	Boolean            = 0x1 // a JSON boolean
	Number             = 0x2 // a JSON number
	String  ScalarType = 0x3 // a JSON string
)

const (
	TypeMask      = 0b00011
	KeyMask       = 0b00100
	AlnumMask     = 0b01000
	UnescapedMask = 0b10000
)

var (
	trueBytes  = []byte("true")
	falseBytes = []byte("false")
	nullBytes  = []byte("null")
)

var (
	TrueScalar  = NewScalar(Boolean, trueBytes)
	FalseScalar = NewScalar(Boolean, falseBytes)
	NullScalar  = NewScalar(Null, nullBytes)
)

func StringScalar(s string) *Scalar {
	var b bytes.Buffer
	encoder := json.NewEncoder(&b)
	if err := encoder.Encode(s); err != nil {
		panic(err)
	}
	var encodedBytes = b.Bytes()
	// Remove the new line at the end
	return NewScalar(String, encodedBytes[:len(encodedBytes)-1])
}

func Float64Scalar(x float64) *Scalar {
	return NewScalar(Number, []byte(strconv.FormatFloat(x, 'g', -1, 64)))
}

func Int64Scalar(n int64) *Scalar {
	return NewScalar(Number, []byte(strconv.FormatInt(n, 10)))
}

func BoolScalar(b bool) *Scalar {
	if b {
		return TrueScalar
	}
	return FalseScalar
}

func ToScalar(value any) (*Scalar, error) {
	if value == nil {
		return NullScalar, nil
	}
	switch x := value.(type) {
	case string:
		return StringScalar(x), nil
	case float64:
		return Float64Scalar(x), nil
	case int64:
		return Int64Scalar(x), nil
	case int:
		return Int64Scalar(int64(x)), nil
	case bool:
		return BoolScalar(x), nil
	default:
		return nil, errors.New("not a scalar value")
	}
}
