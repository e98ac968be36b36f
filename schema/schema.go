// Package schema implements the binary table format used to encode matched
// JSON fragments: a schema model with reflection metadata, a text schema
// (IDL) parser, a binary reflection schema reader/writer, a JSON-to-buffer
// compiler, a buffer verifier and a reflective buffer decoder.
//
// The buffer layout is the flatbuffers wire format and is produced and read
// with the flatbuffers runtime, so buffers built here can be consumed by any
// flatbuffers implementation given the same schema.
package schema

import "strings"

// BaseType enumerates the wire types a field can have.  The values follow
// the flatbuffers reflection numbering so binary schemas stay compatible.
type BaseType byte

const (
	None BaseType = iota
	UType
	Bool
	Byte
	UByte
	Short
	UShort
	Int
	UInt
	Long
	ULong
	Float
	Double
	String
	Vector
	Obj
	Union
)

var baseTypeNames = map[BaseType]string{
	None:   "none",
	UType:  "utype",
	Bool:   "bool",
	Byte:   "byte",
	UByte:  "ubyte",
	Short:  "short",
	UShort: "ushort",
	Int:    "int",
	UInt:   "uint",
	Long:   "long",
	ULong:  "ulong",
	Float:  "float",
	Double: "double",
	String: "string",
	Vector: "vector",
	Obj:    "table",
	Union:  "union",
}

func (t BaseType) String() string {
	if name, ok := baseTypeNames[t]; ok {
		return name
	}
	return "invalid"
}

// IsScalar reports whether values of the type are stored inline in a table.
func (t BaseType) IsScalar() bool {
	return t >= Bool && t <= Double
}

// IsInteger reports whether the type is an integer type (including bool).
func (t BaseType) IsInteger() bool {
	return t >= Bool && t <= ULong
}

// IsFloat reports whether the type is a floating point type.
func (t BaseType) IsFloat() bool {
	return t == Float || t == Double
}

// InlineSize returns the number of bytes a value of the type occupies inside
// a table or a vector.  Strings, vectors and tables are referred to by a
// 4-byte offset.
func (t BaseType) InlineSize() int {
	switch t {
	case Bool, Byte, UByte:
		return 1
	case Short, UShort:
		return 2
	case Int, UInt, Float, String, Vector, Obj:
		return 4
	case Long, ULong, Double:
		return 8
	}
	return 0
}

// A Type describes the declared type of a field.  For vectors, Element is
// the element type.  Index is the index into Schema.Objects of the table
// definition referred to by an Obj base type or element type, -1 otherwise.
type Type struct {
	Base    BaseType
	Element BaseType
	Index   int32
}

// A Field is one field of a table definition.  ID is the field's vtable
// slot, assigned in declaration order.
type Field struct {
	Name        string
	Type        Type
	ID          uint16
	DefaultInt  int64
	DefaultReal float64
	Required    bool
	Key         bool
}

// VTableOffset returns the field's offset inside a vtable.
func (f *Field) VTableOffset() uint16 {
	return 4 + 2*f.ID
}

// An Object is a table definition: an ordered set of named, typed fields.
type Object struct {
	// Fully qualified name, e.g. "Messages.ChatMessage".
	Name string

	// Fields in declaration order.
	Fields []*Field

	byName map[string]*Field
}

// Field looks up a field by name, returning nil if there is no such field.
func (o *Object) Field(name string) *Field {
	if o == nil {
		return nil
	}
	return o.byName[name]
}

// KeyField returns the field the table's records are keyed on, or nil.
func (o *Object) KeyField() *Field {
	if o == nil {
		return nil
	}
	for _, f := range o.Fields {
		if f.Key {
			return f
		}
	}
	return nil
}

// NumSlots returns the number of vtable slots a table of this definition
// needs.  Field ids may have gaps when a schema carries deprecated fields.
func (o *Object) NumSlots() int {
	n := 0
	for _, f := range o.Fields {
		if int(f.ID)+1 > n {
			n = int(f.ID) + 1
		}
	}
	return n
}

func (o *Object) index() {
	o.byName = make(map[string]*Field, len(o.Fields))
	for _, f := range o.Fields {
		o.byName[f.Name] = f
	}
}

// A Schema is a set of table definitions plus a distinguished root table.
// Objects are sorted by fully qualified name; Type.Index values refer to
// positions in that order.
type Schema struct {
	Objects []*Object
	Root    *Object

	byName map[string]*Object
}

// Object looks up a table definition by name.  The name may be fully
// qualified or a bare table name, in which case the first definition whose
// last component matches is returned.  Returns nil if not found.
func (s *Schema) Object(name string) *Object {
	if s == nil || name == "" {
		return nil
	}
	if o, ok := s.byName[name]; ok {
		return o
	}
	suffix := "." + name
	for _, o := range s.Objects {
		if strings.HasSuffix(o.Name, suffix) {
			return o
		}
	}
	return nil
}

// ObjectAt returns the table definition at the given index, or nil if the
// index is out of range.
func (s *Schema) ObjectAt(index int32) *Object {
	if s == nil || index < 0 || int(index) >= len(s.Objects) {
		return nil
	}
	return s.Objects[index]
}

func (s *Schema) index() {
	s.byName = make(map[string]*Object, len(s.Objects))
	for _, o := range s.Objects {
		s.byName[o.Name] = o
		o.index()
	}
}
