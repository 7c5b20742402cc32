// internal/types/path.go
package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

/*
 * Structural paths.
 *
 * A Path locates a deep mutation inside a guarded container. Segments are
 * record keys, sequence indices, or a trailing sequence operation name
 * ("push()"). Paths render as "a.items[0].push()" and marshal to JSON as
 * that string. Keys that are empty or contain any of . [ ] ( ) " render in
 * quoted bracket form, as in a["x.y"], so every path renders unambiguously.
 *
 * Dependencies: None (standard library only)
 */

// PathSegment represents one component of a structural path.
type PathSegment struct {
	Key     string // record key (mutually exclusive with Index/Method)
	Index   int    // sequence index (mutually exclusive with Key/Method)
	IsIndex bool   // disambiguates Index=0 from unset
	Method  string // sequence operation name, always the last segment
}

// String renders a single segment without separators.
func (s PathSegment) String() string {
	switch {
	case s.Method != "":
		return s.Method + "()"
	case s.IsIndex:
		return "[" + strconv.Itoa(s.Index) + "]"
	case quotedKey(s.Key):
		return "[" + strconv.Quote(s.Key) + "]"
	default:
		return s.Key
	}
}

// bracketed reports whether the segment renders in brackets and so takes
// no leading dot.
func (s PathSegment) bracketed() bool {
	return s.IsIndex || (s.Method == "" && quotedKey(s.Key))
}

func quotedKey(key string) bool {
	return key == "" || strings.ContainsAny(key, `.[]()"`)
}

// Path is an ordered route from the guarded root to an edited location.
type Path []PathSegment

// Key returns p extended by a record key.
// Always allocates so sibling paths never share a backing array.
func (p Path) Key(key string) Path {
	return p.with(PathSegment{Key: key})
}

// Index returns p extended by a sequence index.
func (p Path) Index(i int) Path {
	return p.with(PathSegment{Index: i, IsIndex: true})
}

// Method returns p extended by a sequence operation name.
func (p Path) Method(name string) Path {
	return p.with(PathSegment{Method: name})
}

func (p Path) with(seg PathSegment) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// String renders the dotted/indexed form, e.g. "a.items[0].push()".
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if i > 0 && !seg.bracketed() {
			b.WriteByte('.')
		}
		b.WriteString(seg.String())
	}
	return b.String()
}

// Equal reports whether both paths have identical segments.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler using the rendered form.
func (p Path) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}
