package schema

import (
	"fmt"
	"sort"

	flatbuffers "github.com/google/flatbuffers/go"
)

// Vtable slots of the reflection tables, mirroring reflection.fbs.
const (
	schemaSlotObjects   = 0
	schemaSlotEnums     = 1
	schemaSlotRootTable = 4

	objectSlotName   = 0
	objectSlotFields = 1

	fieldSlotName        = 0
	fieldSlotType        = 1
	fieldSlotID          = 2
	fieldSlotOffset      = 3
	fieldSlotDefaultInt  = 4
	fieldSlotDefaultReal = 5
	fieldSlotRequired    = 7
	fieldSlotKey         = 8

	typeSlotBaseType = 0
	typeSlotElement  = 1
	typeSlotIndex    = 2
)

// Binary serializes the schema as a binary reflection buffer in the
// flatbuffers reflection format (the layout of a .bfbs file), with a
// trailing NUL byte appended per the loading contract.  The result can be
// read back with ParseBinary.
func (s *Schema) Binary() []byte {
	b := flatbuffers.NewBuilder(1024)

	objOffsets := make([]flatbuffers.UOffsetT, len(s.Objects))
	var rootOffset flatbuffers.UOffsetT
	for i, o := range s.Objects {
		objOffsets[i] = writeObject(b, o)
		if o == s.Root {
			rootOffset = objOffsets[i]
		}
	}

	b.StartVector(4, len(objOffsets), 4)
	for i := len(objOffsets) - 1; i >= 0; i-- {
		b.PrependUOffsetT(objOffsets[i])
	}
	objectsVec := b.EndVector(len(objOffsets))

	b.StartVector(4, 0, 4)
	enumsVec := b.EndVector(0)

	b.StartObject(schemaSlotRootTable + 1)
	b.PrependUOffsetTSlot(schemaSlotObjects, objectsVec, 0)
	b.PrependUOffsetTSlot(schemaSlotEnums, enumsVec, 0)
	b.PrependUOffsetTSlot(schemaSlotRootTable, rootOffset, 0)
	b.Finish(b.EndObject())

	finished := b.FinishedBytes()
	out := make([]byte, len(finished)+1)
	copy(out, finished)
	return out
}

func writeObject(b *flatbuffers.Builder, o *Object) flatbuffers.UOffsetT {
	// Field vectors are sorted by name in reflection buffers so they can be
	// binary searched.
	sorted := make([]*Field, len(o.Fields))
	copy(sorted, o.Fields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	fieldOffsets := make([]flatbuffers.UOffsetT, len(sorted))
	for i, f := range sorted {
		fieldOffsets[i] = writeField(b, f)
	}
	b.StartVector(4, len(fieldOffsets), 4)
	for i := len(fieldOffsets) - 1; i >= 0; i-- {
		b.PrependUOffsetT(fieldOffsets[i])
	}
	fieldsVec := b.EndVector(len(fieldOffsets))
	name := b.CreateString(o.Name)

	b.StartObject(objectSlotFields + 1)
	b.PrependUOffsetTSlot(objectSlotName, name, 0)
	b.PrependUOffsetTSlot(objectSlotFields, fieldsVec, 0)
	return b.EndObject()
}

func writeField(b *flatbuffers.Builder, f *Field) flatbuffers.UOffsetT {
	name := b.CreateString(f.Name)
	typeOffset := writeType(b, f.Type)

	b.StartObject(fieldSlotKey + 1)
	b.PrependUOffsetTSlot(fieldSlotName, name, 0)
	b.PrependUOffsetTSlot(fieldSlotType, typeOffset, 0)
	b.PrependUint16Slot(fieldSlotID, f.ID, 0)
	b.PrependUint16Slot(fieldSlotOffset, f.VTableOffset(), 0)
	b.PrependInt64Slot(fieldSlotDefaultInt, f.DefaultInt, 0)
	b.PrependFloat64Slot(fieldSlotDefaultReal, f.DefaultReal, 0)
	b.PrependBoolSlot(fieldSlotRequired, f.Required, false)
	b.PrependBoolSlot(fieldSlotKey, f.Key, false)
	return b.EndObject()
}

func writeType(b *flatbuffers.Builder, t Type) flatbuffers.UOffsetT {
	b.StartObject(typeSlotIndex + 1)
	b.PrependInt8Slot(typeSlotBaseType, int8(t.Base), 0)
	b.PrependInt8Slot(typeSlotElement, int8(t.Element), 0)
	b.PrependInt32Slot(typeSlotIndex, t.Index, -1)
	return b.EndObject()
}

// ParseBinary reads a binary reflection buffer (as produced by Binary or by
// flatc, possibly NUL-terminated) into a Schema.  The buffer is verified
// against the reflection schema before being trusted.
func ParseBinary(buf []byte) (*Schema, error) {
	if len(buf) < 8 {
		return nil, &SchemaError{Msg: "binary schema buffer too short"}
	}
	if err := Verify(buf, reflectionMeta.Root, reflectionMeta); err != nil {
		return nil, &SchemaError{Msg: fmt.Sprintf("invalid binary schema: %v", err)}
	}

	root := &flatbuffers.Table{Bytes: buf, Pos: flatbuffers.GetUOffsetT(buf)}
	objStart, objLen, ok := tableVector(root, schemaSlotObjects)
	if !ok {
		return nil, &SchemaError{Msg: "binary schema has no objects"}
	}
	s := &Schema{Objects: make([]*Object, objLen)}
	for i := 0; i < objLen; i++ {
		pos := root.Indirect(objStart + flatbuffers.UOffsetT(i)*4)
		obj, err := readObject(&flatbuffers.Table{Bytes: buf, Pos: pos})
		if err != nil {
			return nil, err
		}
		s.Objects[i] = obj
	}
	s.index()
	if rootTab := subTable(root, schemaSlotRootTable); rootTab != nil {
		s.Root = s.Object(tableString(rootTab, objectSlotName))
	}
	return s, nil
}

func readObject(t *flatbuffers.Table) (*Object, error) {
	obj := &Object{Name: tableString(t, objectSlotName)}
	if obj.Name == "" {
		return nil, &SchemaError{Msg: "object with no name in binary schema"}
	}
	fieldStart, fieldLen, ok := tableVector(t, objectSlotFields)
	if !ok || fieldLen == 0 {
		obj.index()
		return obj, nil
	}
	obj.Fields = make([]*Field, 0, fieldLen)
	for i := 0; i < fieldLen; i++ {
		pos := t.Indirect(fieldStart + flatbuffers.UOffsetT(i)*4)
		f, err := readField(&flatbuffers.Table{Bytes: t.Bytes, Pos: pos})
		if err != nil {
			return nil, &SchemaError{Msg: fmt.Sprintf("table %q: %v", obj.Name, err)}
		}
		obj.Fields = append(obj.Fields, f)
	}
	// The vector is sorted by name; restore declaration order.
	sort.Slice(obj.Fields, func(i, j int) bool { return obj.Fields[i].ID < obj.Fields[j].ID })
	obj.index()
	return obj, nil
}

func readField(t *flatbuffers.Table) (*Field, error) {
	f := &Field{Name: tableString(t, fieldSlotName)}
	if f.Name == "" {
		return nil, fmt.Errorf("field with no name")
	}
	typeTab := subTable(t, fieldSlotType)
	if typeTab == nil {
		return nil, fmt.Errorf("field %q has no type", f.Name)
	}
	f.Type = Type{
		Base:    BaseType(tableInt8(typeTab, typeSlotBaseType, 0)),
		Element: BaseType(tableInt8(typeTab, typeSlotElement, 0)),
		Index:   tableInt32(typeTab, typeSlotIndex, -1),
	}
	f.ID = tableUint16(t, fieldSlotID, 0)
	f.DefaultInt = tableInt64(t, fieldSlotDefaultInt, 0)
	f.DefaultReal = tableFloat64(t, fieldSlotDefaultReal, 0)
	f.Required = tableBool(t, fieldSlotRequired, false)
	f.Key = tableBool(t, fieldSlotKey, false)
	return f, nil
}

// Slot accessors in the style of flatbuffers generated code.

func slotOffset(t *flatbuffers.Table, slot uint16) flatbuffers.UOffsetT {
	return flatbuffers.UOffsetT(t.Offset(flatbuffers.VOffsetT(4 + 2*slot)))
}

func tableString(t *flatbuffers.Table, slot uint16) string {
	if o := slotOffset(t, slot); o != 0 {
		return string(t.ByteVector(o + t.Pos))
	}
	return ""
}

func subTable(t *flatbuffers.Table, slot uint16) *flatbuffers.Table {
	if o := slotOffset(t, slot); o != 0 {
		return &flatbuffers.Table{Bytes: t.Bytes, Pos: t.Indirect(o + t.Pos)}
	}
	return nil
}

func tableVector(t *flatbuffers.Table, slot uint16) (flatbuffers.UOffsetT, int, bool) {
	if o := slotOffset(t, slot); o != 0 {
		return t.Vector(o), t.VectorLen(o), true
	}
	return 0, 0, false
}

func tableInt8(t *flatbuffers.Table, slot uint16, d int8) int8 {
	if o := slotOffset(t, slot); o != 0 {
		return t.GetInt8(o + t.Pos)
	}
	return d
}

func tableUint16(t *flatbuffers.Table, slot uint16, d uint16) uint16 {
	if o := slotOffset(t, slot); o != 0 {
		return t.GetUint16(o + t.Pos)
	}
	return d
}

func tableInt32(t *flatbuffers.Table, slot uint16, d int32) int32 {
	if o := slotOffset(t, slot); o != 0 {
		return t.GetInt32(o + t.Pos)
	}
	return d
}

func tableInt64(t *flatbuffers.Table, slot uint16, d int64) int64 {
	if o := slotOffset(t, slot); o != 0 {
		return t.GetInt64(o + t.Pos)
	}
	return d
}

func tableFloat64(t *flatbuffers.Table, slot uint16, d float64) float64 {
	if o := slotOffset(t, slot); o != 0 {
		return t.GetFloat64(o + t.Pos)
	}
	return d
}

func tableBool(t *flatbuffers.Table, slot uint16, d bool) bool {
	if o := slotOffset(t, slot); o != 0 {
		return t.GetBool(o + t.Pos)
	}
	return d
}

// reflectionMeta describes the reflection format itself, so binary schema
// buffers can be verified before being read.  Attribute and documentation
// fields are omitted; unknown slots are ignored by the verifier.
var reflectionMeta = buildReflectionMeta()

func buildReflectionMeta() *Schema {
	// Objects sorted by name: Enum, Field, Object, Schema, Type.
	const (
		idxEnum = iota
		idxField
		idxObject
		idxSchema
		idxType
	)
	enum := &Object{Name: "reflection.Enum"}
	field := &Object{
		Name: "reflection.Field",
		Fields: []*Field{
			{Name: "name", Type: Type{Base: String, Index: -1}, ID: 0, Required: true},
			{Name: "type", Type: Type{Base: Obj, Index: idxType}, ID: 1, Required: true},
			{Name: "id", Type: Type{Base: UShort, Index: -1}, ID: 2},
			{Name: "offset", Type: Type{Base: UShort, Index: -1}, ID: 3},
			{Name: "default_integer", Type: Type{Base: Long, Index: -1}, ID: 4},
			{Name: "default_real", Type: Type{Base: Double, Index: -1}, ID: 5},
			{Name: "deprecated", Type: Type{Base: Bool, Index: -1}, ID: 6},
			{Name: "required", Type: Type{Base: Bool, Index: -1}, ID: 7},
			{Name: "key", Type: Type{Base: Bool, Index: -1}, ID: 8},
		},
	}
	object := &Object{
		Name: "reflection.Object",
		Fields: []*Field{
			{Name: "name", Type: Type{Base: String, Index: -1}, ID: 0, Required: true},
			{Name: "fields", Type: Type{Base: Vector, Element: Obj, Index: idxField}, ID: 1},
			{Name: "is_struct", Type: Type{Base: Bool, Index: -1}, ID: 2},
			{Name: "minalign", Type: Type{Base: Int, Index: -1}, ID: 3},
			{Name: "bytesize", Type: Type{Base: Int, Index: -1}, ID: 4},
		},
	}
	schemaObj := &Object{
		Name: "reflection.Schema",
		Fields: []*Field{
			{Name: "objects", Type: Type{Base: Vector, Element: Obj, Index: idxObject}, ID: 0},
			{Name: "enums", Type: Type{Base: Vector, Element: Obj, Index: idxEnum}, ID: 1},
			{Name: "file_ident", Type: Type{Base: String, Index: -1}, ID: 2},
			{Name: "file_ext", Type: Type{Base: String, Index: -1}, ID: 3},
			{Name: "root_table", Type: Type{Base: Obj, Index: idxObject}, ID: 4},
		},
	}
	typeObj := &Object{
		Name: "reflection.Type",
		Fields: []*Field{
			{Name: "base_type", Type: Type{Base: Byte, Index: -1}, ID: 0},
			{Name: "element", Type: Type{Base: Byte, Index: -1}, ID: 1},
			{Name: "index", Type: Type{Base: Int, Index: -1}, ID: 2},
			{Name: "fixed_length", Type: Type{Base: UShort, Index: -1}, ID: 3},
		},
	}
	s := &Schema{
		Objects: []*Object{enum, field, object, schemaObj, typeObj},
		Root:    schemaObj,
	}
	s.index()
	return s
}
