// Package intercept makes in-place edits to guarded containers observable.
//
// Containers are map[string]any (records) and []any (sequences). The layer
// never replaces them in the value tree: wrappers live in a side table so the
// guarded value stays plain data. Records are keyed by map identity.
// Sequences are keyed by the slot that holds them (owning wrapper plus key)
// because slice headers have no stable identity once an append reallocates.
//
// Every edit made through a wrapper is turned into an Edit and routed through
// the Admitter, which decides whether the edit is applied.
package intercept

import (
	"reflect"
	"sort"

	"github.com/solatis/mutguard/internal/types"
	"go.uber.org/zap"
)

// Edit describes one attempted structural change.
type Edit struct {
	Path     types.Path
	Kind     types.EditKind
	Value    any // new field value, nil for delete, argument list for sequence operations
	Previous any // value at Path before the edit
}

// Admitter decides whether an edit goes ahead.
// apply performs the edit and must be called at most once, only when the
// edit is admitted or tolerated.
type Admitter interface {
	Admit(e Edit, apply func()) error
}

// Node is a wrapped container.
type Node interface {
	Path() types.Path
	Unwrap() any
	Len() int
}

// Slot is a location holding a container: a record field, a sequence
// element, or the guarded root.
type Slot interface {
	load() any
	store(v any)
	key() slotKey
}

type slotKey struct {
	owner Node
	name  string
}

// Layer owns the wrapper identity table for one guarded value.
// Not safe for concurrent use.
type Layer struct {
	admitter  Admitter
	logger    *zap.Logger
	records   map[uintptr]*Record
	sequences map[slotKey]*Sequence
}

// NewLayer creates a layer routing edits to admitter.
// A nil admitter applies every edit unconditionally.
func NewLayer(admitter Admitter, logger *zap.Logger) *Layer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Layer{
		admitter:  admitter,
		logger:    logger,
		records:   make(map[uintptr]*Record),
		sequences: make(map[slotKey]*Sequence),
	}
}

// RootSlot builds the slot for a guarded root value.
func RootSlot(load func() any, store func(v any)) Slot {
	return rootSlot{loadFn: load, storeFn: store}
}

// Adopt wraps v and every container reachable from it, returning the wrapper
// for v or nil when v is not wrappable. Existing wrappers are reused.
// Nested containers are wrapped before their parent is installed; a container
// met again while it is still being wrapped (a cycle) is left unwrapped at
// that occurrence.
func (l *Layer) Adopt(v any, path types.Path, s Slot) Node {
	return l.wrap(v, path, s, make(map[uintptr]struct{}))
}

// Clear drops the identity bookkeeping. Wrappers handed out earlier keep
// working; later lookups build fresh wrappers.
func (l *Layer) Clear() {
	l.records = make(map[uintptr]*Record)
	l.sequences = make(map[slotKey]*Sequence)
}

// Release detaches the sequence wrapper registered for s, if any.
func (l *Layer) Release(s Slot) {
	l.release(s.key())
}

// Size reports how many wrappers the identity table currently holds.
func (l *Layer) Size() int {
	return len(l.records) + len(l.sequences)
}

func (l *Layer) wrap(v any, path types.Path, s Slot, inProgress map[uintptr]struct{}) Node {
	if !Wrappable(v) {
		return nil
	}

	switch c := v.(type) {
	case map[string]any:
		id := identity(c)
		if r, ok := l.records[id]; ok {
			return r
		}
		if _, busy := inProgress[id]; busy {
			l.logger.Debug("cyclic reference left unwrapped", zap.Stringer("path", path))
			return nil
		}
		inProgress[id] = struct{}{}

		r := &Record{layer: l, path: path, raw: c}
		for _, k := range sortedKeys(c) {
			l.wrap(c[k], path.Key(k), recordSlot{r: r, field: k}, inProgress)
		}
		l.records[id] = r
		return r

	case []any:
		if s == nil {
			return nil
		}
		if len(c) > 0 {
			id := identity(c)
			if _, busy := inProgress[id]; busy {
				l.logger.Debug("cyclic reference left unwrapped", zap.Stringer("path", path))
				return nil
			}
			inProgress[id] = struct{}{}
		}

		key := s.key()
		q, ok := l.sequences[key]
		if !ok || q.detached {
			q = &Sequence{layer: l, path: path, slot: s}
		}
		for i, el := range c {
			l.wrap(el, path.Index(i), seqSlot{s: q, i: i}, inProgress)
		}
		l.sequences[key] = q
		return q
	}
	return nil
}

// view returns the wrapper for a container child, or v itself for leaves.
func (l *Layer) view(v any, path types.Path, s Slot) any {
	if n := l.Adopt(v, path, s); n != nil {
		return n
	}
	return v
}

func (l *Layer) admit(e Edit, apply func()) error {
	if l.admitter == nil {
		apply()
		return nil
	}
	return l.admitter.Admit(e, apply)
}

func (l *Layer) release(key slotKey) {
	if q, ok := l.sequences[key]; ok {
		q.detached = true
		delete(l.sequences, key)
	}
}

// releaseChildren detaches every sequence wrapper bound to an element slot
// of owner. Used after operations that move elements between indices.
func (l *Layer) releaseChildren(owner Node) {
	for key, q := range l.sequences {
		if key.owner == owner {
			q.detached = true
			delete(l.sequences, key)
		}
	}
}

// identity returns the address backing a map or slice.
func identity(v any) uintptr {
	return reflect.ValueOf(v).Pointer()
}

// unwrapValue stores plain data in the tree even when a caller passes a wrapper.
func unwrapValue(v any) any {
	if n, ok := v.(Node); ok {
		return n.Unwrap()
	}
	return v
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type rootSlot struct {
	loadFn  func() any
	storeFn func(v any)
}

func (s rootSlot) load() any    { return s.loadFn() }
func (s rootSlot) store(v any)  { s.storeFn(v) }
func (s rootSlot) key() slotKey { return slotKey{} }

type recordSlot struct {
	r     *Record
	field string
}

func (s recordSlot) load() any    { return s.r.raw[s.field] }
func (s recordSlot) store(v any)  { s.r.raw[s.field] = v }
func (s recordSlot) key() slotKey { return slotKey{owner: s.r, name: s.field} }

type seqSlot struct {
	s *Sequence
	i int
}

func (s seqSlot) load() any {
	items, err := s.s.items()
	if err != nil || s.i >= len(items) {
		return nil
	}
	return items[s.i]
}

func (s seqSlot) store(v any) {
	items, err := s.s.items()
	if err != nil || s.i >= len(items) {
		return
	}
	items[s.i] = v
}

func (s seqSlot) key() slotKey {
	return slotKey{owner: s.s, name: indexName(s.i)}
}
