package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for mutguard operations.
var (
	// ErrMutationLimitExceeded is matched by every *MutationLimitExceededError.
	ErrMutationLimitExceeded = errors.New("mutation limit exceeded")

	// ErrResetNotAllowed indicates Reset was called without AllowReset.
	ErrResetNotAllowed = errors.New("reset is not allowed for this value (allowReset is false)")

	// ErrHistoryDisabled indicates History was read on a guard with history disabled.
	ErrHistoryDisabled = errors.New("history tracking is disabled (trackHistory is false)")

	// ErrNegativeLimit indicates a negative maxMutations at construction.
	ErrNegativeLimit = errors.New("maxMutations must be non-negative")

	// ErrFieldNotFound indicates a path could not be resolved.
	ErrFieldNotFound = errors.New("field not found")

	// ErrPathTooDeep indicates a path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("path exceeds maximum depth")

	// ErrInvalidPath indicates a path string could not be parsed.
	ErrInvalidPath = errors.New("invalid path")

	// ErrIndexOutOfRange indicates a sequence index outside [0, len].
	ErrIndexOutOfRange = errors.New("sequence index out of range")

	// ErrNotContainer indicates a structural operation on a leaf value.
	ErrNotContainer = errors.New("value is not a record or sequence")

	// ErrDetached indicates a sequence wrapper whose slot no longer holds it.
	ErrDetached = errors.New("sequence is no longer attached to the guarded value")

	// ErrUnknownMethod indicates an unsupported sequence operation name.
	ErrUnknownMethod = errors.New("unknown sequence method")
)

// ErrorContext is the payload carried by MutationLimitExceededError.
type ErrorContext struct {
	MaxMutations     int              `json:"maxMutations"`
	CurrentMutations int              `json:"currentMutations"`
	AttemptedValue   any              `json:"attemptedValue,omitempty"`
	CurrentValue     any              `json:"currentValue,omitempty"`
	Frozen           bool             `json:"frozen"`
	History          []MutationRecord `json:"history,omitempty"`
	Path             Path             `json:"path,omitempty"`
	EditKind         EditKind         `json:"mutationType,omitempty"`
}

// MutationLimitExceededError is the single structured error kind for
// rejected writes and strict reads after a violation.
type MutationLimitExceededError struct {
	Message string
	Context ErrorContext
}

// Error implements error.
func (e *MutationLimitExceededError) Error() string {
	if len(e.Context.Path) > 0 {
		return fmt.Sprintf("%s (path %s)", e.Message, e.Context.Path)
	}
	return e.Message
}

// Is lets errors.Is match ErrMutationLimitExceeded.
func (e *MutationLimitExceededError) Is(target error) bool {
	return target == ErrMutationLimitExceeded
}

// AsLimitError extracts a *MutationLimitExceededError from err's chain.
func AsLimitError(err error) (*MutationLimitExceededError, bool) {
	var le *MutationLimitExceededError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
