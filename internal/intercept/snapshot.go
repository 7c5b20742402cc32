package intercept

// Snapshot returns a structural copy of v for history entries and error
// payloads. Records and sequences are copied recursively; leaves are shared.
// Cycles are preserved: a container reached twice maps to the same copy.
// Wrappers are unwrapped first.
func Snapshot(v any) any {
	v = unwrapValue(v)
	switch v.(type) {
	case map[string]any, []any:
		return clone(v, make(map[cloneKey]any))
	default:
		return v
	}
}

// cloneKey tells apart sub-slices sharing a backing array. n is -1 for maps.
type cloneKey struct {
	id uintptr
	n  int
}

func clone(v any, seen map[cloneKey]any) any {
	switch c := v.(type) {
	case map[string]any:
		if c == nil {
			return c
		}
		id := cloneKey{id: identity(c), n: -1}
		if done, ok := seen[id]; ok {
			return done
		}
		out := make(map[string]any, len(c))
		seen[id] = out
		for k, el := range c {
			out[k] = clone(el, seen)
		}
		return out

	case []any:
		if c == nil {
			return c
		}
		out := make([]any, len(c))
		if len(c) > 0 {
			id := cloneKey{id: identity(c), n: len(c)}
			if done, ok := seen[id]; ok {
				return done
			}
			seen[id] = out
		}
		for i, el := range c {
			out[i] = clone(el, seen)
		}
		return out
	}
	return v
}
