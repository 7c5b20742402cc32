package guard

import (
	"github.com/solatis/mutguard/internal/types"
	"go.uber.org/zap"
)

// Options configures a Guard. Fixed at construction.
//
// The zero value is the default configuration: strict, history-tracking,
// auto-freezing, deep-tracking, with reset disabled.
type Options struct {
	// DisableStrictMode makes limit-exceeded writes apply and count as
	// violations instead of failing, stops gating reads after a violation,
	// and forces DisableAutoFreeze on.
	DisableStrictMode bool

	// DisableHistory makes History unavailable. Records still reach Sink.
	DisableHistory bool

	// AllowReset enables Reset.
	AllowReset bool

	// DisableAutoFreeze leaves the value unfrozen when the last allowed
	// mutation lands.
	DisableAutoFreeze bool

	// DisableDeepTracking turns off structural interception of nested
	// records and sequences.
	DisableDeepTracking bool

	// ErrorMessage replaces the text of rejection errors when non-empty.
	ErrorMessage string

	OnMutate        func(MutateEvent)
	OnViolation     func(*types.MutationLimitExceededError)
	OnLastMutation  func(LastMutationEvent)
	OnLimitExceeded func(types.ViolationAttempt)

	// Logger receives admission decisions. Nil disables logging.
	Logger *zap.Logger

	// Sink receives every history record as it is written, whether or not
	// DisableHistory is set.
	Sink HistorySink
}

// DefaultOptions returns the zero Options.
func DefaultOptions() Options {
	return Options{}
}

// MutateEvent is passed to OnMutate after an admitted write.
type MutateEvent struct {
	NewValue      any
	OldValue      any
	MutationCount int
	Remaining     int
	Path          types.Path     // empty for whole-value writes
	EditKind      types.EditKind // empty for whole-value writes
}

// LastMutationEvent is passed to OnLastMutation when the count first
// reaches the limit.
type LastMutationEvent struct {
	Value    any
	History  []types.MutationRecord // nil when DisableHistory
	Path     types.Path
	EditKind types.EditKind
}
