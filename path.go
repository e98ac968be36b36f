package fbstream

import "strings"

// A Segment is one step of a target path: either a literal object key or a
// wildcard matching any single key at that position.
type Segment struct {
	key      string
	wildcard bool
}

// Key returns a segment matching exactly the given object key.
func Key(k string) Segment {
	return Segment{key: k}
}

// Wildcard returns a segment matching any single object key.  It does not
// span multiple levels.
func Wildcard() Segment {
	return Segment{wildcard: true}
}

func (s Segment) String() string {
	if s.wildcard {
		return "*"
	}
	return s.key
}

// A Path addresses a position in a JSON document as a sequence of object
// keys.  An empty Path addresses the whole document.
type Path []Segment

// ParsePath parses dot-separated path syntax, e.g. "items.*.payload".  A "*"
// component is a wildcard.  The empty string is the empty path.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ".")
	p := make(Path, len(parts))
	for i, part := range parts {
		if part == "*" {
			p[i] = Wildcard()
		} else {
			p[i] = Key(part)
		}
	}
	return p
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// matches reports whether cur lies at or below the position p addresses: p
// is empty, or cur is at least as long as p and every segment of p equals or
// wildcards the corresponding key of cur.  Keys of cur beyond p's length are
// unconstrained, so a match at some depth holds for all deeper positions.
func (p Path) matches(cur []string) bool {
	if len(cur) < len(p) {
		return false
	}
	for i, seg := range p {
		if !seg.wildcard && seg.key != cur[i] {
			return false
		}
	}
	return true
}
