package intercept

import (
	"sort"
	"strconv"

	"github.com/solatis/mutguard/internal/types"
)

/*
 * Sequence interception.
 *
 * A Sequence is bound to the slot holding its []any, not to a slice header:
 * operations that grow the slice store the new header back into the slot, so
 * the guarded value always sees the current contents.
 *
 * Each call to a mutating operation (push, pop, shift, unshift, splice, sort,
 * reverse, fill) is exactly one mutation attempt regardless of how many
 * elements it touches. The attempt carries the argument list as its value
 * and "<path>.<op>()" as its path. Index assignment and index deletion are
 * ordinary property/delete attempts.
 *
 * Operations that move elements detach the wrappers of nested sequences;
 * callers re-fetch them with At.
 */

// Mutating sequence operation names, as they appear in paths.
const (
	MethodPush    = "push"
	MethodPop     = "pop"
	MethodShift   = "shift"
	MethodUnshift = "unshift"
	MethodSplice  = "splice"
	MethodSort    = "sort"
	MethodReverse = "reverse"
	MethodFill    = "fill"
)

// Sequence intercepts edits to a []any.
type Sequence struct {
	layer    *Layer
	path     types.Path
	slot     Slot
	detached bool
}

// Path returns the location of the sequence inside the guarded value.
func (s *Sequence) Path() types.Path { return s.path }

// Unwrap returns the current slice, or nil when detached.
func (s *Sequence) Unwrap() any {
	items, err := s.items()
	if err != nil {
		return nil
	}
	return items
}

// Len returns the number of elements, 0 when detached.
func (s *Sequence) Len() int {
	items, _ := s.items()
	return len(items)
}

// Detached reports whether the slot no longer belongs to this wrapper.
func (s *Sequence) Detached() bool {
	_, err := s.items()
	return err != nil
}

// At returns element i. Container elements come back wrapped.
func (s *Sequence) At(i int) (any, error) {
	items, err := s.items()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(items) {
		return nil, types.ErrIndexOutOfRange
	}
	return s.layer.view(items[i], s.path.Index(i), seqSlot{s: s, i: i}), nil
}

// SetAt assigns element i as one property mutation attempt.
// i == Len() appends.
func (s *Sequence) SetAt(i int, v any) error {
	items, err := s.items()
	if err != nil {
		return err
	}
	if i < 0 || i > len(items) {
		return types.ErrIndexOutOfRange
	}
	v = unwrapValue(v)
	var prev any
	if i < len(items) {
		prev = items[i]
	}
	path := s.path.Index(i)
	slot := seqSlot{s: s, i: i}

	return s.layer.admit(Edit{
		Path:     path,
		Kind:     types.EditProperty,
		Value:    v,
		Previous: prev,
	}, func() {
		s.layer.release(slot.key())
		cur, _ := s.items()
		if i < len(cur) {
			cur[i] = v
		} else {
			s.slot.store(append(cur, v))
		}
		s.layer.Adopt(v, path, slot)
	})
}

// DeleteAt clears element i to nil as one delete mutation attempt. The
// length is unchanged.
func (s *Sequence) DeleteAt(i int) error {
	items, err := s.items()
	if err != nil {
		return err
	}
	if i < 0 || i >= len(items) {
		return types.ErrIndexOutOfRange
	}
	slot := seqSlot{s: s, i: i}

	return s.layer.admit(Edit{
		Path:     s.path.Index(i),
		Kind:     types.EditDelete,
		Previous: items[i],
	}, func() {
		s.layer.release(slot.key())
		slot.store(nil)
	})
}

// Push appends values and returns the new length.
func (s *Sequence) Push(values ...any) (int, error) {
	values = unwrapAll(values)
	n := s.Len()
	err := s.invoke(MethodPush, values, func(items []any) []any {
		items = append(items, values...)
		n = len(items)
		return items
	})
	return n, err
}

// Pop removes and returns the last element.
func (s *Sequence) Pop() (any, error) {
	var out any
	err := s.invoke(MethodPop, []any{}, func(items []any) []any {
		if len(items) == 0 {
			return items
		}
		out = items[len(items)-1]
		return items[:len(items)-1]
	})
	return out, err
}

// Shift removes and returns the first element.
func (s *Sequence) Shift() (any, error) {
	var out any
	err := s.invoke(MethodShift, []any{}, func(items []any) []any {
		if len(items) == 0 {
			return items
		}
		out = items[0]
		return append([]any{}, items[1:]...)
	})
	return out, err
}

// Unshift prepends values and returns the new length.
func (s *Sequence) Unshift(values ...any) (int, error) {
	values = unwrapAll(values)
	n := s.Len()
	err := s.invoke(MethodUnshift, values, func(items []any) []any {
		out := make([]any, 0, len(values)+len(items))
		out = append(out, values...)
		out = append(out, items...)
		n = len(out)
		return out
	})
	return n, err
}

// Splice removes deleteCount elements at start, inserts items there, and
// returns the removed elements. A negative start counts from the end; start
// and deleteCount are clamped to the sequence bounds.
func (s *Sequence) Splice(start, deleteCount int, items ...any) ([]any, error) {
	items = unwrapAll(items)
	args := append([]any{start, deleteCount}, items...)
	var removed []any
	err := s.invoke(MethodSplice, args, func(cur []any) []any {
		from := relIndex(start, len(cur))
		count := deleteCount
		if count < 0 {
			count = 0
		}
		if count > len(cur)-from {
			count = len(cur) - from
		}
		removed = append([]any{}, cur[from:from+count]...)

		out := make([]any, 0, len(cur)-count+len(items))
		out = append(out, cur[:from]...)
		out = append(out, items...)
		out = append(out, cur[from+count:]...)
		return out
	})
	return removed, err
}

// Sort orders the elements in place with a stable sort. A nil less compares
// the elements' rendered forms; self-enclosing elements render with
// CyclePlaceholder.
func (s *Sequence) Sort(less func(a, b any) bool) error {
	if less == nil {
		less = func(a, b any) bool { return Render(a) < Render(b) }
	}
	return s.invoke(MethodSort, []any{}, func(items []any) []any {
		sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
		return items
	})
}

// Reverse reverses the elements in place.
func (s *Sequence) Reverse() error {
	return s.invoke(MethodReverse, []any{}, func(items []any) []any {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
		return items
	})
}

// Fill sets elements [start, end) to v. Negative bounds count from the end;
// bounds are clamped to the sequence.
func (s *Sequence) Fill(v any, start, end int) error {
	v = unwrapValue(v)
	return s.invoke(MethodFill, []any{v, start, end}, func(items []any) []any {
		from, to := relIndex(start, len(items)), relIndex(end, len(items))
		for i := from; i < to; i++ {
			items[i] = v
		}
		return items
	})
}

// invoke routes one sequence operation through the admitter. op receives the
// current slice and returns the slice to store.
func (s *Sequence) invoke(method string, args []any, op func(items []any) []any) error {
	items, err := s.items()
	if err != nil {
		return err
	}

	return s.layer.admit(Edit{
		Path:     s.path.Method(method),
		Kind:     types.EditArrayMethod,
		Value:    args,
		Previous: items,
	}, func() {
		cur, err := s.items()
		if err != nil {
			return
		}
		s.slot.store(op(cur))
		s.layer.releaseChildren(s)
		s.adoptElements()
	})
}

// adoptElements wraps container elements that are not wrapped yet.
func (s *Sequence) adoptElements() {
	items, err := s.items()
	if err != nil {
		return
	}
	inProgress := make(map[uintptr]struct{})
	if len(items) > 0 {
		inProgress[identity(items)] = struct{}{}
	}
	for i, el := range items {
		s.layer.wrap(el, s.path.Index(i), seqSlot{s: s, i: i}, inProgress)
	}
}

func (s *Sequence) items() ([]any, error) {
	if s.detached {
		return nil, types.ErrDetached
	}
	items, ok := s.slot.load().([]any)
	if !ok {
		return nil, types.ErrDetached
	}
	return items, nil
}

// relIndex resolves a possibly negative index against length n, clamped to [0, n].
func relIndex(i, n int) int {
	if i < 0 {
		i += n
		if i < 0 {
			return 0
		}
		return i
	}
	if i > n {
		return n
	}
	return i
}

func unwrapAll(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = unwrapValue(v)
	}
	return out
}

func indexName(i int) string {
	return strconv.Itoa(i)
}
