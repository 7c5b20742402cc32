// internal/intercept/path.go
package intercept

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/solatis/mutguard/internal/types"
)

/*
 * Path parsing and path-addressed edits.
 *
 * Go has no transparent property interception, so hosts (the CLI replay
 * runner, the gRPC registry) address nested locations with path strings:
 *
 *   "a.b"          record field b of record field a
 *   "items[0].x"   field x of element 0 of sequence field items
 *   "[2]"          element 2 of a root sequence
 *
 * Key functions:
 *   - ParsePath: string -> types.Path (depth bounded by MaxPathDepth)
 *   - ParseRecordedPath: also accepts the trailing "op()" of history paths
 *   - Resolve: walks plain data, no interception
 *   - Lookup: walks wrappers, returns wrapped containers
 *   - SetPath/DeletePath/Invoke: one mutation attempt at the addressed location
 *
 * Method segments ("push()") are produced by the layer for history entries
 * and are rejected by ParsePath.
 */

// ParsePath parses the dotted/indexed form. The empty string is the root.
// Keys rendered in quoted bracket form (a["x.y"]) are accepted anywhere a
// key may appear.
func ParsePath(s string) (types.Path, error) {
	var path types.Path
	for i := 0; i < len(s); {
		switch s[i] {
		case '.':
			if i == 0 || i+1 == len(s) || s[i+1] == '.' {
				return nil, fmt.Errorf("%w: empty segment in %q", types.ErrInvalidPath, s)
			}
			i++
		case '[':
			seg, n, err := parseBracket(s[i:])
			if err != nil {
				return nil, fmt.Errorf("%w: bad index in %q", types.ErrInvalidPath, s)
			}
			if seg.IsIndex {
				path = path.Index(seg.Index)
			} else {
				path = path.Key(seg.Key)
			}
			i += n
		default:
			if i > 0 && s[i-1] != '.' {
				return nil, fmt.Errorf("%w: missing separator in %q", types.ErrInvalidPath, s)
			}
			end := len(s)
			if j := strings.IndexAny(s[i:], ".["); j >= 0 {
				end = i + j
			}
			key := s[i:end]
			if strings.ContainsAny(key, `]()"`) {
				return nil, fmt.Errorf("%w: bad segment %q", types.ErrInvalidPath, key)
			}
			path = path.Key(key)
			i = end
		}
		if len(path) > types.MaxPathDepth {
			return nil, types.ErrPathTooDeep
		}
	}
	return path, nil
}

// parseBracket reads an index [n] or a quoted key ["k"] at the start of s and
// returns the segment and the number of bytes consumed.
func parseBracket(s string) (types.PathSegment, int, error) {
	if len(s) > 1 && s[1] == '"' {
		quoted, err := strconv.QuotedPrefix(s[1:])
		if err != nil {
			return types.PathSegment{}, 0, err
		}
		end := 1 + len(quoted)
		if end >= len(s) || s[end] != ']' {
			return types.PathSegment{}, 0, types.ErrInvalidPath
		}
		key, err := strconv.Unquote(quoted)
		if err != nil {
			return types.PathSegment{}, 0, err
		}
		return types.PathSegment{Key: key}, end + 1, nil
	}

	end := strings.IndexByte(s, ']')
	if end < 0 {
		return types.PathSegment{}, 0, types.ErrInvalidPath
	}
	idx, err := strconv.Atoi(s[1:end])
	if err != nil || idx < 0 {
		return types.PathSegment{}, 0, types.ErrInvalidPath
	}
	return types.PathSegment{Index: idx, IsIndex: true}, end + 1, nil
}

// ParseRecordedPath parses a path as rendered in history entries, where a
// trailing sequence operation ("items.push()") is allowed.
func ParseRecordedPath(s string) (types.Path, error) {
	if !strings.HasSuffix(s, "()") {
		return ParsePath(s)
	}
	base, method := "", strings.TrimSuffix(s, "()")
	if i := strings.LastIndexByte(method, '.'); i >= 0 {
		base, method = method[:i], method[i+1:]
	}
	if method == "" || strings.ContainsAny(method, "[]().") {
		return nil, fmt.Errorf("%w: bad method segment in %q", types.ErrInvalidPath, s)
	}
	path, err := ParsePath(base)
	if err != nil {
		return nil, err
	}
	return path.Method(method), nil
}

// Resolve walks plain data following path. Returns ErrFieldNotFound when a
// segment does not match the data shape.
func Resolve(path types.Path, data any) (any, error) {
	if len(path) > types.MaxPathDepth {
		return nil, types.ErrPathTooDeep
	}

	current := unwrapValue(data)
	for _, seg := range path {
		switch v := current.(type) {
		case map[string]any:
			if seg.IsIndex || seg.Method != "" {
				return nil, types.ErrFieldNotFound
			}
			val, ok := v[seg.Key]
			if !ok {
				return nil, types.ErrFieldNotFound
			}
			current = val
		case []any:
			if !seg.IsIndex || seg.Index < 0 || seg.Index >= len(v) {
				return nil, types.ErrFieldNotFound
			}
			current = v[seg.Index]
		default:
			// nil or scalar at an intermediate position
			return nil, types.ErrFieldNotFound
		}
	}
	return current, nil
}

// Lookup walks wrappers from root following path. Container results are
// returned wrapped so further edits stay intercepted.
func Lookup(root Node, path types.Path) (any, error) {
	if len(path) > types.MaxPathDepth {
		return nil, types.ErrPathTooDeep
	}

	var current any = root
	for _, seg := range path {
		switch n := current.(type) {
		case *Record:
			if seg.IsIndex || seg.Method != "" {
				return nil, types.ErrFieldNotFound
			}
			v, ok := n.Get(seg.Key)
			if !ok {
				return nil, types.ErrFieldNotFound
			}
			current = v
		case *Sequence:
			if !seg.IsIndex {
				return nil, types.ErrFieldNotFound
			}
			v, err := n.At(seg.Index)
			if err != nil {
				return nil, types.ErrFieldNotFound
			}
			current = v
		default:
			return nil, types.ErrFieldNotFound
		}
	}
	return current, nil
}

// SetPath assigns the location addressed by path as one property attempt.
// The empty path is rejected: whole-value writes go through the guard.
func SetPath(root Node, path types.Path, v any) error {
	parent, last, err := parentOf(root, path)
	if err != nil {
		return err
	}
	switch n := parent.(type) {
	case *Record:
		if last.IsIndex {
			return types.ErrFieldNotFound
		}
		return n.Set(last.Key, v)
	case *Sequence:
		if !last.IsIndex {
			return types.ErrFieldNotFound
		}
		return n.SetAt(last.Index, v)
	default:
		return types.ErrNotContainer
	}
}

// DeletePath deletes a record field, or clears a sequence element, as one
// delete attempt.
func DeletePath(root Node, path types.Path) error {
	parent, last, err := parentOf(root, path)
	if err != nil {
		return err
	}
	switch n := parent.(type) {
	case *Record:
		if last.IsIndex {
			return types.ErrFieldNotFound
		}
		return n.Delete(last.Key)
	case *Sequence:
		if !last.IsIndex {
			return types.ErrFieldNotFound
		}
		return n.DeleteAt(last.Index)
	default:
		return types.ErrNotContainer
	}
}

// Invoke runs a named sequence operation on the sequence at path. Arguments
// follow the operation's Go signature; numeric arguments may be any Go
// number type (JSON decoding yields float64).
func Invoke(root Node, path types.Path, method string, args []any) (any, error) {
	target, err := Lookup(root, path)
	if err != nil {
		return nil, err
	}
	seq, ok := target.(*Sequence)
	if !ok {
		return nil, types.ErrNotContainer
	}

	switch method {
	case MethodPush:
		return seq.Push(args...)
	case MethodPop:
		return seq.Pop()
	case MethodShift:
		return seq.Shift()
	case MethodUnshift:
		return seq.Unshift(args...)
	case MethodSplice:
		start, deleteCount := 0, seq.Len()
		if len(args) > 0 {
			if start, err = toInt(args[0]); err != nil {
				return nil, err
			}
		}
		if len(args) > 1 {
			if deleteCount, err = toInt(args[1]); err != nil {
				return nil, err
			}
		}
		var items []any
		if len(args) > 2 {
			items = args[2:]
		}
		return seq.Splice(start, deleteCount, items...)
	case MethodSort:
		return nil, seq.Sort(nil)
	case MethodReverse:
		return nil, seq.Reverse()
	case MethodFill:
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: fill needs a value", types.ErrInvalidPath)
		}
		start, end := 0, seq.Len()
		if len(args) > 1 {
			if start, err = toInt(args[1]); err != nil {
				return nil, err
			}
		}
		if len(args) > 2 {
			if end, err = toInt(args[2]); err != nil {
				return nil, err
			}
		}
		return nil, seq.Fill(args[0], start, end)
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownMethod, method)
	}
}

func parentOf(root Node, path types.Path) (any, types.PathSegment, error) {
	if len(path) == 0 {
		return nil, types.PathSegment{}, fmt.Errorf("%w: empty path", types.ErrInvalidPath)
	}
	last := path[len(path)-1]
	if last.Method != "" {
		return nil, types.PathSegment{}, fmt.Errorf("%w: method segment %q", types.ErrInvalidPath, last)
	}
	parent, err := Lookup(root, path[:len(path)-1])
	if err != nil {
		return nil, types.PathSegment{}, err
	}
	return parent, last, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		// Out-of-range floats saturate so Infinity means "to the end".
		switch {
		case math.IsNaN(n):
			return 0, nil
		case n >= math.MaxInt:
			return math.MaxInt, nil
		case n <= math.MinInt:
			return math.MinInt, nil
		}
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("%w: expected integer argument, got %T", types.ErrInvalidPath, v)
	}
}
