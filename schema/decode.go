package schema

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

// A Record is a decoded flatbuffer table.  Scalar fields decode to int64,
// uint64, float64 or bool, strings to string, vectors to []any and nested
// tables to Record.
type Record map[string]any

// Decode reads a flatbuffer into a Record.  Scalar fields that are absent
// from the buffer take their schema default; absent strings, tables and
// vectors are omitted.  The buffer must have passed Verify for the same
// definition.
func Decode(buf []byte, root *Object, s *Schema) Record {
	t := &flatbuffers.Table{Bytes: buf, Pos: flatbuffers.GetUOffsetT(buf)}
	return decodeTable(t, root, s)
}

func decodeTable(t *flatbuffers.Table, def *Object, s *Schema) Record {
	rec := make(Record, len(def.Fields))
	for _, f := range def.Fields {
		o := slotOffset(t, f.ID)
		switch f.Type.Base {
		case String:
			if o != 0 {
				rec[f.Name] = string(t.ByteVector(o + t.Pos))
			}
		case Obj:
			if o != 0 {
				child := &flatbuffers.Table{Bytes: t.Bytes, Pos: t.Indirect(o + t.Pos)}
				rec[f.Name] = decodeTable(child, s.ObjectAt(f.Type.Index), s)
			}
		case Vector:
			if o != 0 {
				rec[f.Name] = decodeVector(t, o, f, s)
			}
		default:
			rec[f.Name] = decodeScalar(t, o, f.Type.Base, f)
		}
	}
	return rec
}

func decodeScalar(t *flatbuffers.Table, o flatbuffers.UOffsetT, bt BaseType, f *Field) any {
	if o == 0 {
		switch {
		case bt == Bool:
			return f.DefaultInt != 0
		case bt.IsFloat():
			return f.DefaultReal
		case bt == UByte || bt == UShort || bt == UInt || bt == ULong:
			return uint64(f.DefaultInt)
		default:
			return f.DefaultInt
		}
	}
	at := o + t.Pos
	switch bt {
	case Bool:
		return t.GetBool(at)
	case Byte:
		return int64(t.GetInt8(at))
	case UByte:
		return uint64(t.GetUint8(at))
	case Short:
		return int64(t.GetInt16(at))
	case UShort:
		return uint64(t.GetUint16(at))
	case Int:
		return int64(t.GetInt32(at))
	case UInt:
		return uint64(t.GetUint32(at))
	case Long:
		return t.GetInt64(at)
	case ULong:
		return t.GetUint64(at)
	case Float:
		return float64(t.GetFloat32(at))
	case Double:
		return t.GetFloat64(at)
	}
	return nil
}

func decodeVector(t *flatbuffers.Table, o flatbuffers.UOffsetT, f *Field, s *Schema) []any {
	n := t.VectorLen(o)
	start := t.Vector(o)
	out := make([]any, n)
	elem := f.Type.Element
	size := flatbuffers.UOffsetT(elem.InlineSize())
	for i := 0; i < n; i++ {
		at := start + flatbuffers.UOffsetT(i)*size
		switch elem {
		case String:
			out[i] = string(t.ByteVector(at))
		case Obj:
			child := &flatbuffers.Table{Bytes: t.Bytes, Pos: t.Indirect(at)}
			out[i] = decodeTable(child, s.ObjectAt(f.Type.Index), s)
		case Bool:
			out[i] = t.GetBool(at)
		case Byte:
			out[i] = int64(t.GetInt8(at))
		case UByte:
			out[i] = uint64(t.GetUint8(at))
		case Short:
			out[i] = int64(t.GetInt16(at))
		case UShort:
			out[i] = uint64(t.GetUint16(at))
		case Int:
			out[i] = int64(t.GetInt32(at))
		case UInt:
			out[i] = uint64(t.GetUint32(at))
		case Long:
			out[i] = t.GetInt64(at)
		case ULong:
			out[i] = t.GetUint64(at)
		case Float:
			out[i] = float64(t.GetFloat32(at))
		case Double:
			out[i] = t.GetFloat64(at)
		}
	}
	return out
}
