// Package types provides the data model shared across mutguard components.
//
// Zero-dependency design: types.go, path.go and errors.go use only the
// standard library so the engine packages can import them freely. ID
// utilities in ids.go import uuid but are isolated in their own file.
//
// Values are JSON-shaped: containers are map[string]any and []any, every
// other dynamic type is a leaf.
package types

import "time"

// MutationKind classifies a history entry.
type MutationKind string

const (
	KindInitial      MutationKind = "initial"
	KindMutation     MutationKind = "mutation"
	KindViolation    MutationKind = "violation"
	KindReset        MutationKind = "reset"
	KindDeepMutation MutationKind = "deep-mutation"
)

// EditKind classifies a structural edit reached below the top-level value.
// Empty for whole-value reassignment.
type EditKind string

const (
	EditNone        EditKind = ""
	EditProperty    EditKind = "property"
	EditDelete      EditKind = "delete"
	EditArrayMethod EditKind = "array-method"
)

// MutationRecord is one immutable history entry.
// Container values are structural snapshots taken when the entry was written.
type MutationRecord struct {
	Seq                 int          `json:"seq"`
	Kind                MutationKind `json:"type"`
	Value               any          `json:"value"`
	PreviousValue       any          `json:"previousValue,omitempty"` // nil for initial and reset
	Timestamp           time.Time    `json:"timestamp"`
	MutationCountAtTime int          `json:"mutationCount"`
	Path                Path         `json:"path,omitempty"`
	EditKind            EditKind     `json:"mutationType,omitempty"`
}

// IsDeep reports whether the record describes a nested structural edit.
func (r MutationRecord) IsDeep() bool {
	return len(r.Path) > 0
}

// ViolationAttempt describes one write rejected because the limit was
// already exhausted. Passed to limit-exceeded callbacks; never stored.
type ViolationAttempt struct {
	AttemptNumber  int       `json:"attemptNumber"`
	AttemptedValue any       `json:"attemptedValue"`
	CurrentValue   any       `json:"currentValue"`
	MutationCount  int       `json:"mutationCount"`
	MaxMutations   int       `json:"maxMutations"`
	ViolationCount int       `json:"violationCount"`
	TotalAttempts  int       `json:"totalAttempts"`
	Timestamp      time.Time `json:"timestamp"`
	Path           Path      `json:"path,omitempty"`
	EditKind       EditKind  `json:"mutationType,omitempty"`
}

// Engine limits.
const (
	// DefaultMaxMutations is the ceiling used when a caller does not pick one.
	DefaultMaxMutations = 1

	// MaxPathDepth bounds path parsing and lookup.
	// 16 levels covers realistic nesting without unbounded recursion on
	// caller-supplied paths.
	MaxPathDepth = 16
)
