package intercept

import (
	"errors"
	"testing"

	"github.com/solatis/mutguard/internal/types"
)

// recordingAdmitter records every edit and applies it unless deny is set.
type recordingAdmitter struct {
	edits []Edit
	deny  error
}

func (a *recordingAdmitter) Admit(e Edit, apply func()) error {
	a.edits = append(a.edits, e)
	if a.deny != nil {
		return a.deny
	}
	apply()
	return nil
}

func newRootLayer(t *testing.T, value any) (*Layer, *recordingAdmitter, Node, *any) {
	t.Helper()
	admitter := &recordingAdmitter{}
	layer := NewLayer(admitter, nil)
	holder := new(any)
	*holder = value
	root := layer.Adopt(value, nil, RootSlot(
		func() any { return *holder },
		func(v any) { *holder = v },
	))
	return layer, admitter, root, holder
}

func TestWrappable(t *testing.T) {
	var nilMap map[string]any
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{"record", map[string]any{"a": 1}, true},
		{"empty record", map[string]any{}, true},
		{"nil record", nilMap, false},
		{"sequence", []any{1, 2}, true},
		{"nil sequence", []any(nil), true},
		{"string", "s", false},
		{"number", 3.5, false},
		{"nil", nil, false},
		{"bytes", []byte("x"), false},
		{"error", errors.New("boom"), false},
		{"channel", make(chan int), false},
		{"typed map", map[string]int{"a": 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Wrappable(tt.value); got != tt.want {
				t.Errorf("Wrappable(%T) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestAdopt_WrapsNestedContainers(t *testing.T) {
	inner := map[string]any{"b": 1}
	value := map[string]any{"a": inner, "list": []any{map[string]any{"c": 2}}}
	layer, _, root, _ := newRootLayer(t, value)

	rec, ok := root.(*Record)
	if !ok {
		t.Fatalf("root = %T, want *Record", root)
	}
	// root, a, list, list[0]
	if layer.Size() != 4 {
		t.Errorf("Size() = %d, want 4", layer.Size())
	}

	a1, _ := rec.Get("a")
	a2, _ := rec.Get("a")
	if a1 != a2 {
		t.Error("Get returned different wrappers for the same container")
	}
	if a1.(*Record).Path().String() != "a" {
		t.Errorf("nested path = %q, want %q", a1.(*Record).Path(), "a")
	}
}

func TestAdopt_ReusesWrapperForSharedContainer(t *testing.T) {
	shared := map[string]any{"n": 1}
	value := map[string]any{"left": shared, "right": shared}
	_, _, root, _ := newRootLayer(t, value)

	rec := root.(*Record)
	left, _ := rec.Get("left")
	right, _ := rec.Get("right")
	if left != right {
		t.Error("two references to one map produced two wrappers")
	}
}

func TestAdopt_CycleTerminates(t *testing.T) {
	value := map[string]any{"name": "root"}
	value["self"] = value
	list := []any{1}
	list = append(list, nil)
	list[1] = list
	value["list"] = list

	layer, admitter, root, _ := newRootLayer(t, value)
	if root == nil {
		t.Fatal("Adopt returned nil for cyclic record")
	}

	self, ok := root.(*Record).Get("self")
	if !ok {
		t.Fatal("self field missing")
	}
	if err := self.(*Record).Set("name", "changed"); err != nil {
		t.Fatalf("Set through back-edge: %v", err)
	}
	if value["name"] != "changed" {
		t.Errorf("name = %v, want changed", value["name"])
	}
	if len(admitter.edits) != 1 {
		t.Errorf("edits = %d, want 1", len(admitter.edits))
	}
	if layer.Size() == 0 {
		t.Error("identity table empty after adopt")
	}
}

func TestRecord_SetRoutesEdit(t *testing.T) {
	value := map[string]any{"x": 1}
	_, admitter, root, _ := newRootLayer(t, value)

	if err := root.(*Record).Set("x", 2); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if value["x"] != 2 {
		t.Errorf("x = %v, want 2", value["x"])
	}
	if len(admitter.edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(admitter.edits))
	}
	e := admitter.edits[0]
	if e.Path.String() != "x" || e.Kind != types.EditProperty || e.Value != 2 || e.Previous != 1 {
		t.Errorf("edit = %+v", e)
	}
}

func TestRecord_SetWrapsNewContainer(t *testing.T) {
	value := map[string]any{}
	_, admitter, root, _ := newRootLayer(t, value)
	rec := root.(*Record)

	if err := rec.Set("child", map[string]any{"k": 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	child, _ := rec.Get("child")
	if err := child.(*Record).Set("k", 2); err != nil {
		t.Fatalf("nested Set: %v", err)
	}
	if len(admitter.edits) != 2 {
		t.Fatalf("edits = %d, want 2", len(admitter.edits))
	}
	if got := admitter.edits[1].Path.String(); got != "child.k" {
		t.Errorf("nested path = %q, want child.k", got)
	}
}

func TestRecord_Delete(t *testing.T) {
	value := map[string]any{"x": 1}
	_, admitter, root, _ := newRootLayer(t, value)

	if err := root.(*Record).Delete("x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := value["x"]; ok {
		t.Error("x still present")
	}
	e := admitter.edits[0]
	if e.Kind != types.EditDelete || e.Value != nil || e.Previous != 1 || e.Path.String() != "x" {
		t.Errorf("edit = %+v", e)
	}
}

func TestRecord_DeniedEditLeavesValue(t *testing.T) {
	value := map[string]any{"x": 1}
	_, admitter, root, _ := newRootLayer(t, value)
	admitter.deny = types.ErrMutationLimitExceeded

	err := root.(*Record).Set("x", 2)
	if !errors.Is(err, types.ErrMutationLimitExceeded) {
		t.Fatalf("Set error = %v, want ErrMutationLimitExceeded", err)
	}
	if value["x"] != 1 {
		t.Errorf("x = %v, want 1", value["x"])
	}
}

func TestLayer_ClearKeepsWrappersUsable(t *testing.T) {
	value := map[string]any{"a": map[string]any{"b": 1}}
	layer, admitter, root, _ := newRootLayer(t, value)
	a, _ := root.(*Record).Get("a")

	layer.Clear()
	if layer.Size() != 0 {
		t.Fatalf("Size() after Clear = %d, want 0", layer.Size())
	}
	if err := a.(*Record).Set("b", 3); err != nil {
		t.Fatalf("Set after Clear: %v", err)
	}
	if len(admitter.edits) != 1 {
		t.Errorf("edits = %d, want 1", len(admitter.edits))
	}
}

func TestNilAdmitterAppliesEdits(t *testing.T) {
	value := map[string]any{}
	layer := NewLayer(nil, nil)
	root := layer.Adopt(value, nil, nil).(*Record)

	if err := root.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if value["k"] != "v" {
		t.Errorf("k = %v, want v", value["k"])
	}
}
