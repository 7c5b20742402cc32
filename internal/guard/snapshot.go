package guard

import (
	"encoding/json"
	"fmt"

	"github.com/solatis/mutguard/internal/intercept"
	"github.com/solatis/mutguard/internal/types"
	"google.golang.org/protobuf/types/known/structpb"
)

// Snapshot is a plain view of a guard for display and debugging.
// Taking one never fails and is not gated by strict-mode reads.
type Snapshot struct {
	ID             types.GuardID          `json:"id"`
	Value          any                    `json:"value"`
	MutationCount  int                    `json:"mutationCount"`
	MaxMutations   int                    `json:"maxMutations"`
	Remaining      int                    `json:"remaining"`
	ViolationCount int                    `json:"violationCount"`
	Frozen         bool                   `json:"isFrozen"`
	Depleted       bool                   `json:"isDepleted"`
	Violated       bool                   `json:"isViolated"`
	History        []types.MutationRecord `json:"history,omitempty"`
}

// Snapshot returns the current state with the value structurally copied.
func (g *Guard[T]) Snapshot() Snapshot {
	return Snapshot{
		ID:             g.id,
		Value:          intercept.Snapshot(any(g.current)),
		MutationCount:  g.mutationCount,
		MaxMutations:   g.maxMutations,
		Remaining:      g.Remaining(),
		ViolationCount: g.violationCount,
		Frozen:         g.frozen,
		Depleted:       g.IsDepleted(),
		Violated:       g.violated,
		History:        g.historyCopy(),
	}
}

// MarshalJSON implements json.Marshaler via Snapshot.
func (g *Guard[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Snapshot())
}

// String renders the current value for display. Cyclic values print their
// back-references as intercept.CyclePlaceholder.
func (g *Guard[T]) String() string {
	return intercept.Render(any(g.current))
}

// ToProto converts the snapshot to a protobuf Struct by way of its JSON
// form. Fails for values JSON cannot represent, including cyclic ones.
func (s Snapshot) ToProto() (*structpb.Struct, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return structpb.NewStruct(m)
}
