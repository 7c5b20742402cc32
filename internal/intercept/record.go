package intercept

import (
	"github.com/solatis/mutguard/internal/types"
)

// Record intercepts edits to a map[string]any.
type Record struct {
	layer *Layer
	path  types.Path
	raw   map[string]any
}

// Path returns the location of the record inside the guarded value.
func (r *Record) Path() types.Path { return r.path }

// Unwrap returns the underlying map. Writes made directly to it bypass
// interception.
func (r *Record) Unwrap() any { return r.raw }

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.raw) }

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.raw[key]
	return ok
}

// Keys returns the field names in sorted order.
func (r *Record) Keys() []string {
	return sortedKeys(r.raw)
}

// Get returns the field value. Container fields come back wrapped.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.raw[key]
	if !ok {
		return nil, false
	}
	return r.layer.view(v, r.path.Key(key), recordSlot{r: r, field: key}), true
}

// Set writes a field as one property mutation attempt.
func (r *Record) Set(key string, v any) error {
	v = unwrapValue(v)
	path := r.path.Key(key)
	s := recordSlot{r: r, field: key}

	return r.layer.admit(Edit{
		Path:     path,
		Kind:     types.EditProperty,
		Value:    v,
		Previous: r.raw[key],
	}, func() {
		r.layer.release(s.key())
		r.raw[key] = v
		r.layer.Adopt(v, path, s)
	})
}

// Delete removes a field as one delete mutation attempt. Deleting an absent
// field still counts.
func (r *Record) Delete(key string) error {
	s := recordSlot{r: r, field: key}

	return r.layer.admit(Edit{
		Path:     r.path.Key(key),
		Kind:     types.EditDelete,
		Previous: r.raw[key],
	}, func() {
		r.layer.release(s.key())
		delete(r.raw, key)
	})
}
