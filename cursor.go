package fbstream

import "github.com/ESP32-Reference/flatbuffers-streaming-json/schema"

// keyedAdvance moves the reflection cursor through an object field about to
// be parsed.  The returned bool reports a keyed position: the cursor's table
// declares an "id" field and a table-typed "val" field, meaning the owning
// JSON object is a string-keyed map standing in for a keyed vector of "val"
// records, and the field's key is data rather than structure.
//
// At an ordinary position the cursor follows the field named by the key when
// that field is a table or a vector of tables; anywhere else the cursor goes
// nil and the subtree below parses without reflection data, which only
// disables the keyed-map rewrite.
func keyedAdvance(s *schema.Schema, cur *schema.Object, key string) (*schema.Object, bool) {
	if cur == nil {
		return nil, false
	}
	if val := cur.Field("val"); val != nil && val.Type.Base == schema.Obj && cur.Field("id") != nil {
		return s.ObjectAt(val.Type.Index), true
	}
	f := cur.Field(key)
	if f == nil {
		return nil, false
	}
	switch {
	case f.Type.Base == schema.Obj:
		return s.ObjectAt(f.Type.Index), false
	case f.Type.Base == schema.Vector && f.Type.Element == schema.Obj:
		return s.ObjectAt(f.Type.Index), false
	}
	return nil, false
}
