package schema

import (
	"fmt"
	"sort"
	"strconv"
)

// A SchemaError reports a malformed schema definition, either in text or
// binary form.
type SchemaError struct {
	Line int
	Msg  string
}

func (e *SchemaError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("schema error at line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("schema error: %s", e.Msg)
}

var scalarTypeNames = map[string]BaseType{
	"bool":    Bool,
	"byte":    Byte,
	"int8":    Byte,
	"ubyte":   UByte,
	"uint8":   UByte,
	"short":   Short,
	"int16":   Short,
	"ushort":  UShort,
	"uint16":  UShort,
	"int":     Int,
	"int32":   Int,
	"uint":    UInt,
	"uint32":  UInt,
	"long":    Long,
	"int64":   Long,
	"ulong":   ULong,
	"uint64":  ULong,
	"float":   Float,
	"float32": Float,
	"double":  Double,
	"float64": Double,
}

// ParseText parses a text schema definition (a subset of the flatbuffers
// IDL: namespace, table and root_type declarations) into a Schema.  Enums,
// structs, unions, services and includes are not supported.
func ParseText(src []byte) (*Schema, error) {
	toks, err := lexIDL(src)
	if err != nil {
		return nil, err
	}
	p := &idlParser{toks: toks}
	return p.parseSchema()
}

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type idlToken struct {
	kind tokKind
	val  string
	line int
}

func lexIDL(src []byte) ([]idlToken, error) {
	var toks []idlToken
	line := 1
	i := 0
	for i < len(src) {
		b := src[i]
		switch {
		case b == '\n':
			line++
			i++
		case b == ' ' || b == '\t' || b == '\r':
			i++
		case b == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case b == '/' && i+1 < len(src) && src[i+1] == '*':
			i += 2
			for i+1 < len(src) && !(src[i] == '*' && src[i+1] == '/') {
				if src[i] == '\n' {
					line++
				}
				i++
			}
			if i+1 >= len(src) {
				return nil, &SchemaError{Line: line, Msg: "unterminated comment"}
			}
			i += 2
		case b == '"':
			start := i + 1
			i++
			for i < len(src) && src[i] != '"' {
				if src[i] == '\n' {
					return nil, &SchemaError{Line: line, Msg: "unterminated string"}
				}
				i++
			}
			if i >= len(src) {
				return nil, &SchemaError{Line: line, Msg: "unterminated string"}
			}
			toks = append(toks, idlToken{kind: tokString, val: string(src[start:i]), line: line})
			i++
		case isIdentStart(b):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			toks = append(toks, idlToken{kind: tokIdent, val: string(src[start:i]), line: line})
		case b == '-' || b >= '0' && b <= '9':
			start := i
			i++
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.' || src[i] == 'e' || src[i] == 'E' || src[i] == '+' || src[i] == '-') {
				i++
			}
			toks = append(toks, idlToken{kind: tokNumber, val: string(src[start:i]), line: line})
		case b == 0:
			// Stray NUL terminator, e.g. from a buffer kept NUL-terminated
			// by the caller.
			i++
		default:
			switch b {
			case '{', '}', ':', ';', '[', ']', '(', ')', ',', '=', '.':
				toks = append(toks, idlToken{kind: tokPunct, val: string(b), line: line})
				i++
			default:
				return nil, &SchemaError{Line: line, Msg: fmt.Sprintf("unexpected character %q", b)}
			}
		}
	}
	toks = append(toks, idlToken{kind: tokEOF, line: line})
	return toks, nil
}

func isIdentStart(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_'
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || b >= '0' && b <= '9'
}

// astTable carries a table declaration before type references are resolved.
type astTable struct {
	obj       *Object
	namespace string
	// Unresolved table reference per field index, "" when the field's type
	// is already complete.
	refs []string
	line int
}

type idlParser struct {
	toks      []idlToken
	i         int
	namespace string
	tables    []*astTable
	rootName  string
	rootNS    string
	rootLine  int
}

func (p *idlParser) peek() idlToken { return p.toks[p.i] }

func (p *idlParser) next() idlToken {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *idlParser) expectPunct(val string) error {
	t := p.next()
	if t.kind != tokPunct || t.val != val {
		return &SchemaError{Line: t.line, Msg: fmt.Sprintf("expected %q, got %q", val, t.val)}
	}
	return nil
}

func (p *idlParser) expectIdent() (idlToken, error) {
	t := p.next()
	if t.kind != tokIdent {
		return t, &SchemaError{Line: t.line, Msg: fmt.Sprintf("expected identifier, got %q", t.val)}
	}
	return t, nil
}

// qualifiedIdent parses ident ('.' ident)* and returns the dotted name.
func (p *idlParser) qualifiedIdent() (string, int, error) {
	t, err := p.expectIdent()
	if err != nil {
		return "", t.line, err
	}
	name := t.val
	for p.peek().kind == tokPunct && p.peek().val == "." {
		p.next()
		t, err = p.expectIdent()
		if err != nil {
			return "", t.line, err
		}
		name += "." + t.val
	}
	return name, t.line, nil
}

func (p *idlParser) parseSchema() (*Schema, error) {
	for {
		t := p.next()
		if t.kind == tokEOF {
			break
		}
		if t.kind != tokIdent {
			return nil, &SchemaError{Line: t.line, Msg: fmt.Sprintf("expected declaration, got %q", t.val)}
		}
		switch t.val {
		case "namespace":
			name, _, err := p.qualifiedIdent()
			if err != nil {
				return nil, err
			}
			p.namespace = name
			if err := p.expectPunct(";"); err != nil {
				return nil, err
			}
		case "table":
			if err := p.parseTable(); err != nil {
				return nil, err
			}
		case "root_type":
			name, line, err := p.qualifiedIdent()
			if err != nil {
				return nil, err
			}
			p.rootName = name
			p.rootNS = p.namespace
			p.rootLine = line
			if err := p.expectPunct(";"); err != nil {
				return nil, err
			}
		case "attribute":
			// Attribute declarations are accepted and ignored.
			p.next()
			if err := p.expectPunct(";"); err != nil {
				return nil, err
			}
		case "file_identifier", "file_extension":
			p.next()
			if err := p.expectPunct(";"); err != nil {
				return nil, err
			}
		case "enum", "struct", "union", "rpc_service", "include":
			return nil, &SchemaError{Line: t.line, Msg: fmt.Sprintf("%s declarations are not supported", t.val)}
		default:
			return nil, &SchemaError{Line: t.line, Msg: fmt.Sprintf("unexpected declaration %q", t.val)}
		}
	}
	return p.resolve()
}

func (p *idlParser) parseTable() error {
	nameTok, err := p.expectIdent()
	if err != nil {
		return err
	}
	name := nameTok.val
	if p.namespace != "" {
		name = p.namespace + "." + name
	}
	tbl := &astTable{
		obj:       &Object{Name: name},
		namespace: p.namespace,
		line:      nameTok.line,
	}
	if err := p.expectPunct("{"); err != nil {
		return err
	}
	for {
		if p.peek().kind == tokPunct && p.peek().val == "}" {
			p.next()
			break
		}
		if err := p.parseField(tbl); err != nil {
			return err
		}
	}
	p.tables = append(p.tables, tbl)
	return nil
}

func (p *idlParser) parseField(tbl *astTable) error {
	nameTok, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectPunct(":"); err != nil {
		return err
	}
	fieldType, ref, err := p.parseType()
	if err != nil {
		return err
	}
	field := &Field{
		Name: nameTok.val,
		Type: fieldType,
		ID:   uint16(len(tbl.obj.Fields)),
	}
	if tbl.obj.Field(field.Name) != nil {
		return &SchemaError{Line: nameTok.line, Msg: fmt.Sprintf("duplicate field %q", field.Name)}
	}
	if p.peek().kind == tokPunct && p.peek().val == "=" {
		p.next()
		if err := p.parseDefault(field); err != nil {
			return err
		}
	}
	if p.peek().kind == tokPunct && p.peek().val == "(" {
		if err := p.parseAttributes(field); err != nil {
			return err
		}
	}
	if err := p.expectPunct(";"); err != nil {
		return err
	}
	tbl.obj.Fields = append(tbl.obj.Fields, field)
	tbl.obj.index()
	tbl.refs = append(tbl.refs, ref)
	return nil
}

// parseType returns the parsed type and, for table references, the
// unresolved type name.
func (p *idlParser) parseType() (Type, string, error) {
	t := p.peek()
	if t.kind == tokPunct && t.val == "[" {
		p.next()
		elem, ref, err := p.parseType()
		if err != nil {
			return Type{}, "", err
		}
		if elem.Base == Vector {
			return Type{}, "", &SchemaError{Line: t.line, Msg: "nested vector types are not supported"}
		}
		if err := p.expectPunct("]"); err != nil {
			return Type{}, "", err
		}
		return Type{Base: Vector, Element: elem.Base, Index: elem.Index}, ref, nil
	}
	name, _, err := p.qualifiedIdent()
	if err != nil {
		return Type{}, "", err
	}
	if base, ok := scalarTypeNames[name]; ok {
		return Type{Base: base, Index: -1}, "", nil
	}
	if name == "string" {
		return Type{Base: String, Index: -1}, "", nil
	}
	// A table reference, resolved once all declarations are known.
	return Type{Base: Obj, Index: -1}, name, nil
}

func (p *idlParser) parseDefault(field *Field) error {
	t := p.next()
	switch {
	case t.kind == tokIdent && (t.val == "true" || t.val == "false"):
		if field.Type.Base != Bool {
			return &SchemaError{Line: t.line, Msg: fmt.Sprintf("boolean default for %s field %q", field.Type.Base, field.Name)}
		}
		if t.val == "true" {
			field.DefaultInt = 1
		}
		return nil
	case t.kind == tokNumber:
		if field.Type.Base.IsFloat() {
			x, err := strconv.ParseFloat(t.val, 64)
			if err != nil {
				return &SchemaError{Line: t.line, Msg: fmt.Sprintf("invalid default %q", t.val)}
			}
			field.DefaultReal = x
			return nil
		}
		if field.Type.Base.IsInteger() {
			n, err := strconv.ParseInt(t.val, 10, 64)
			if err != nil {
				return &SchemaError{Line: t.line, Msg: fmt.Sprintf("invalid default %q", t.val)}
			}
			field.DefaultInt = n
			return nil
		}
		return &SchemaError{Line: t.line, Msg: fmt.Sprintf("default value for non-scalar field %q", field.Name)}
	default:
		return &SchemaError{Line: t.line, Msg: fmt.Sprintf("invalid default %q", t.val)}
	}
}

func (p *idlParser) parseAttributes(field *Field) error {
	if err := p.expectPunct("("); err != nil {
		return err
	}
	for {
		t, err := p.expectIdent()
		if err != nil {
			return err
		}
		switch t.val {
		case "key":
			field.Key = true
		case "required":
			field.Required = true
		default:
			// Unknown attributes are ignored, like custom attributes in
			// flatbuffers schemas.
		}
		if p.peek().kind == tokPunct && p.peek().val == ":" {
			// Attribute with a value, e.g. (id: 3).  The value is skipped.
			p.next()
			p.next()
		}
		sep := p.next()
		if sep.kind == tokPunct && sep.val == ")" {
			return nil
		}
		if !(sep.kind == tokPunct && sep.val == ",") {
			return &SchemaError{Line: sep.line, Msg: fmt.Sprintf("expected ',' or ')', got %q", sep.val)}
		}
	}
}

// resolve sorts table definitions by name, assigns indices and patches up
// table references.
func (p *idlParser) resolve() (*Schema, error) {
	if len(p.tables) == 0 {
		return nil, &SchemaError{Msg: "no table declarations"}
	}
	lastDeclared := p.tables[len(p.tables)-1].obj
	sort.Slice(p.tables, func(i, j int) bool {
		return p.tables[i].obj.Name < p.tables[j].obj.Name
	})
	s := &Schema{Objects: make([]*Object, len(p.tables))}
	indexOf := make(map[string]int32, len(p.tables))
	for i, tbl := range p.tables {
		if _, dup := indexOf[tbl.obj.Name]; dup {
			return nil, &SchemaError{Line: tbl.line, Msg: fmt.Sprintf("duplicate table %q", tbl.obj.Name)}
		}
		s.Objects[i] = tbl.obj
		indexOf[tbl.obj.Name] = int32(i)
	}
	lookup := func(name, namespace string) (int32, bool) {
		if idx, ok := indexOf[name]; ok {
			return idx, true
		}
		if namespace != "" {
			if idx, ok := indexOf[namespace+"."+name]; ok {
				return idx, true
			}
		}
		return -1, false
	}
	for _, tbl := range p.tables {
		for i, ref := range tbl.refs {
			if ref == "" {
				continue
			}
			idx, ok := lookup(ref, tbl.namespace)
			if !ok {
				return nil, &SchemaError{Line: tbl.line, Msg: fmt.Sprintf("unknown type %q", ref)}
			}
			tbl.obj.Fields[i].Type.Index = idx
		}
	}
	s.index()
	if p.rootName != "" {
		idx, ok := lookup(p.rootName, p.rootNS)
		if !ok {
			return nil, &SchemaError{Line: p.rootLine, Msg: fmt.Sprintf("unknown root_type %q", p.rootName)}
		}
		s.Root = s.Objects[idx]
	} else {
		// Without an explicit root_type the last declared table is the
		// root, as in the flatbuffers IDL.
		s.Root = lastDeclared
	}
	return s, nil
}
