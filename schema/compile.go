package schema

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
	flatbuffers "github.com/google/flatbuffers/go"
)

// A ShapeError reports a JSON document that does not fit the schema.
type ShapeError struct {
	Path string
	Msg  string
}

func (e *ShapeError) Error() string {
	if e.Path == "" {
		return "json does not match schema: " + e.Msg
	}
	return fmt.Sprintf("json does not match schema at %s: %s", e.Path, e.Msg)
}

// A Compiler builds flatbuffers from JSON documents according to a schema.
// The zero value is not usable; call NewCompiler.  A Compiler reuses its
// builder across calls and is not safe for concurrent use.
type Compiler struct {
	schema *Schema
	b      *flatbuffers.Builder
}

func NewCompiler(s *Schema) *Compiler {
	return &Compiler{schema: s, b: flatbuffers.NewBuilder(1024)}
}

// Compile builds a flatbuffer for the schema's root table from a JSON
// document.  Fields not declared in the schema are skipped, and a JSON null
// is treated the same as an absent field.
func (c *Compiler) Compile(src []byte) ([]byte, error) {
	return c.CompileAs(src, c.schema.Root)
}

// CompileAs is Compile with an explicit root table definition.
func (c *Compiler) CompileAs(src []byte, root *Object) ([]byte, error) {
	if root == nil {
		return nil, &ShapeError{Msg: "no root table definition"}
	}
	dec := json.NewDecoder(bytes.NewReader(src))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &ShapeError{Msg: "invalid json: " + err.Error()}
	}
	c.b.Reset()
	off, err := c.writeTable(doc, root, "")
	if err != nil {
		return nil, err
	}
	c.b.Finish(off)
	finished := c.b.FinishedBytes()
	out := make([]byte, len(finished))
	copy(out, finished)
	return out, nil
}

func childPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func (c *Compiler) writeTable(val any, def *Object, path string) (flatbuffers.UOffsetT, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return 0, &ShapeError{Path: path, Msg: fmt.Sprintf("expected object for table %q", def.Name)}
	}

	// Out-of-line data is built before the table itself.
	type slot struct {
		f      *Field
		off    flatbuffers.UOffsetT
		scalar any
	}
	slots := make([]slot, 0, len(def.Fields))
	for _, f := range def.Fields {
		v, present := m[f.Name]
		if !present || v == nil {
			if f.Required {
				return 0, &ShapeError{Path: path, Msg: fmt.Sprintf("missing required field %q", f.Name)}
			}
			continue
		}
		p := childPath(path, f.Name)
		switch f.Type.Base {
		case String:
			s, ok := v.(string)
			if !ok {
				return 0, &ShapeError{Path: p, Msg: "expected string"}
			}
			slots = append(slots, slot{f: f, off: c.b.CreateString(s)})
		case Obj:
			child := c.schema.ObjectAt(f.Type.Index)
			if child == nil {
				return 0, &ShapeError{Path: p, Msg: "unresolved table type"}
			}
			off, err := c.writeTable(v, child, p)
			if err != nil {
				return 0, err
			}
			slots = append(slots, slot{f: f, off: off})
		case Vector:
			off, err := c.writeVector(v, f, p)
			if err != nil {
				return 0, err
			}
			slots = append(slots, slot{f: f, off: off})
		default:
			slots = append(slots, slot{f: f, scalar: v})
		}
	}

	c.b.StartObject(def.NumSlots())
	for _, s := range slots {
		if s.scalar == nil {
			c.b.PrependUOffsetTSlot(int(s.f.ID), s.off, 0)
			continue
		}
		if err := c.scalarSlot(s.f, s.scalar, childPath(path, s.f.Name)); err != nil {
			return 0, err
		}
	}
	return c.b.EndObject(), nil
}

func (c *Compiler) scalarSlot(f *Field, v any, path string) error {
	id := int(f.ID)
	if f.Type.Base == Bool {
		b, ok := v.(bool)
		if !ok {
			return &ShapeError{Path: path, Msg: "expected boolean"}
		}
		c.b.PrependBoolSlot(id, b, f.DefaultInt != 0)
		return nil
	}
	num, ok := v.(json.Number)
	if !ok {
		return &ShapeError{Path: path, Msg: "expected number"}
	}
	if f.Type.Base.IsFloat() {
		x, err := strconv.ParseFloat(string(num), 64)
		if err != nil {
			return &ShapeError{Path: path, Msg: "invalid number " + string(num)}
		}
		if f.Type.Base == Float {
			c.b.PrependFloat32Slot(id, float32(x), float32(f.DefaultReal))
		} else {
			c.b.PrependFloat64Slot(id, x, f.DefaultReal)
		}
		return nil
	}
	if f.Type.Base == ULong {
		u, err := strconv.ParseUint(string(num), 10, 64)
		if err != nil {
			return &ShapeError{Path: path, Msg: "value " + string(num) + " out of range for ulong"}
		}
		c.b.PrependUint64Slot(id, u, uint64(f.DefaultInt))
		return nil
	}
	i, err := strconv.ParseInt(string(num), 10, 64)
	if err != nil {
		return &ShapeError{Path: path, Msg: "expected integer, got " + string(num)}
	}
	lo, hi := intRange(f.Type.Base)
	if i < lo || (hi >= 0 && i > hi) {
		return &ShapeError{Path: path, Msg: fmt.Sprintf("value %d out of range for %s", i, f.Type.Base)}
	}
	d := f.DefaultInt
	switch f.Type.Base {
	case Byte:
		c.b.PrependInt8Slot(id, int8(i), int8(d))
	case UByte:
		c.b.PrependUint8Slot(id, uint8(i), uint8(d))
	case Short:
		c.b.PrependInt16Slot(id, int16(i), int16(d))
	case UShort:
		c.b.PrependUint16Slot(id, uint16(i), uint16(d))
	case Int:
		c.b.PrependInt32Slot(id, int32(i), int32(d))
	case UInt:
		c.b.PrependUint32Slot(id, uint32(i), uint32(d))
	case Long:
		c.b.PrependInt64Slot(id, i, d)
	default:
		return &ShapeError{Path: path, Msg: "unsupported scalar type " + f.Type.Base.String()}
	}
	return nil
}

func intRange(t BaseType) (lo, hi int64) {
	switch t {
	case Byte:
		return -1 << 7, 1<<7 - 1
	case UByte:
		return 0, 1<<8 - 1
	case Short:
		return -1 << 15, 1<<15 - 1
	case UShort:
		return 0, 1<<16 - 1
	case Int:
		return -1 << 31, 1<<31 - 1
	case UInt:
		return 0, 1<<32 - 1
	case Long:
		return -1 << 63, -1 // -1 marks "no upper check", the full int64 range
	}
	return 0, 0
}

func (c *Compiler) writeVector(v any, f *Field, path string) (flatbuffers.UOffsetT, error) {
	items, ok := v.([]any)
	if !ok {
		return 0, &ShapeError{Path: path, Msg: "expected array"}
	}
	elem := f.Type.Element
	switch {
	case elem == String:
		offs := make([]flatbuffers.UOffsetT, len(items))
		for i, it := range items {
			s, ok := it.(string)
			if !ok {
				return 0, &ShapeError{Path: fmt.Sprintf("%s[%d]", path, i), Msg: "expected string"}
			}
			offs[i] = c.b.CreateString(s)
		}
		return c.offsetVector(offs), nil

	case elem == Obj:
		child := c.schema.ObjectAt(f.Type.Index)
		if child == nil {
			return 0, &ShapeError{Path: path, Msg: "unresolved table type"}
		}
		if key := child.KeyField(); key != nil {
			sorted, err := sortByKey(items, key, path)
			if err != nil {
				return 0, err
			}
			items = sorted
		}
		offs := make([]flatbuffers.UOffsetT, len(items))
		for i, it := range items {
			off, err := c.writeTable(it, child, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return 0, err
			}
			offs[i] = off
		}
		return c.offsetVector(offs), nil

	case elem.IsScalar():
		return c.scalarVector(items, f, path)
	}
	return 0, &ShapeError{Path: path, Msg: "unsupported vector element type " + elem.String()}
}

func (c *Compiler) offsetVector(offs []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	c.b.StartVector(4, len(offs), 4)
	for i := len(offs) - 1; i >= 0; i-- {
		c.b.PrependUOffsetT(offs[i])
	}
	return c.b.EndVector(len(offs))
}

func (c *Compiler) scalarVector(items []any, f *Field, path string) (flatbuffers.UOffsetT, error) {
	elem := f.Type.Element
	size := elem.InlineSize()
	c.b.StartVector(size, len(items), size)
	for i := len(items) - 1; i >= 0; i-- {
		p := fmt.Sprintf("%s[%d]", path, i)
		if elem == Bool {
			b, ok := items[i].(bool)
			if !ok {
				return 0, &ShapeError{Path: p, Msg: "expected boolean"}
			}
			c.b.PrependBool(b)
			continue
		}
		num, ok := items[i].(json.Number)
		if !ok {
			return 0, &ShapeError{Path: p, Msg: "expected number"}
		}
		if elem.IsFloat() {
			x, err := strconv.ParseFloat(string(num), 64)
			if err != nil {
				return 0, &ShapeError{Path: p, Msg: "invalid number " + string(num)}
			}
			if elem == Float {
				c.b.PrependFloat32(float32(x))
			} else {
				c.b.PrependFloat64(x)
			}
			continue
		}
		if elem == ULong {
			u, err := strconv.ParseUint(string(num), 10, 64)
			if err != nil {
				return 0, &ShapeError{Path: p, Msg: "value " + string(num) + " out of range for ulong"}
			}
			c.b.PrependUint64(u)
			continue
		}
		x, err := strconv.ParseInt(string(num), 10, 64)
		if err != nil {
			return 0, &ShapeError{Path: p, Msg: "expected integer, got " + string(num)}
		}
		lo, hi := intRange(elem)
		if x < lo || (hi >= 0 && x > hi) {
			return 0, &ShapeError{Path: p, Msg: fmt.Sprintf("value %d out of range for %s", x, elem)}
		}
		switch elem {
		case Byte:
			c.b.PrependInt8(int8(x))
		case UByte:
			c.b.PrependUint8(uint8(x))
		case Short:
			c.b.PrependInt16(int16(x))
		case UShort:
			c.b.PrependUint16(uint16(x))
		case Int:
			c.b.PrependInt32(int32(x))
		case UInt:
			c.b.PrependUint32(uint32(x))
		case Long:
			c.b.PrependInt64(x)
		}
	}
	return c.b.EndVector(len(items)), nil
}

// sortByKey orders the records of a keyed vector by their key field, the
// order flatbuffer readers expect for binary search.
func sortByKey(items []any, key *Field, path string) ([]any, error) {
	type keyed struct {
		item any
		num  int64
		str  string
	}
	ks := make([]keyed, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, &ShapeError{Path: fmt.Sprintf("%s[%d]", path, i), Msg: "expected object"}
		}
		kv, present := m[key.Name]
		if !present || kv == nil {
			return nil, &ShapeError{Path: fmt.Sprintf("%s[%d]", path, i), Msg: fmt.Sprintf("missing key field %q", key.Name)}
		}
		ks[i] = keyed{item: it}
		switch v := kv.(type) {
		case string:
			ks[i].str = v
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, &ShapeError{Path: fmt.Sprintf("%s[%d]", path, i), Msg: "key must be an integer or string"}
			}
			ks[i].num = n
		default:
			return nil, &ShapeError{Path: fmt.Sprintf("%s[%d]", path, i), Msg: "key must be an integer or string"}
		}
	}
	if key.Type.Base == String {
		sort.SliceStable(ks, func(i, j int) bool { return ks[i].str < ks[j].str })
	} else {
		sort.SliceStable(ks, func(i, j int) bool { return ks[i].num < ks[j].num })
	}
	out := make([]any, len(ks))
	for i := range ks {
		out[i] = ks[i].item
	}
	return out, nil
}
