// Package guard implements the mutation-accounting engine for one guarded
// value.
package guard

import (
	"fmt"

	"github.com/solatis/mutguard/internal/intercept"
	"github.com/solatis/mutguard/internal/types"
	"go.uber.org/zap"
)

/*
 * Guard owns the mutation count, violation count, freeze state and history
 * of one value. Every write, whole-value or structural, passes through
 * admit, so shallow and deep mutations share one counter and one history.
 *
 * Admission order:
 *   1. frozen: blocked in both modes, OnViolation at most once
 *   2. limit exhausted: OnLimitExceeded always; strict rejects, non-strict
 *      applies and logs a violation
 *   3. admitted: apply, count, log, OnMutate
 *   4. count reached the limit: OnLastMutation, then auto-freeze
 *
 * Key functions:
 *   - New: construct, log the initial record, wrap containers
 *   - Get/Set: whole-value read and write
 *   - Node/Lookup/SetPath/DeletePath/Invoke: structural access
 *   - Freeze/Reset: control operations
 *
 * Not safe for concurrent use; callers serialize access to one Guard.
 */

const (
	msgFrozen         = "cannot mutate frozen value"
	msgLimitFormat    = "mutation limit of %d exceeded"
	msgReadAfterError = "cannot read after violation in strict mode"
)

// Guard is a value that may be mutated at most MaxMutations times.
type Guard[T any] struct {
	id      types.GuardID
	opts    Options
	logger  *zap.Logger
	current T

	maxMutations   int
	mutationCount  int
	violationCount int

	frozen            bool
	violated          bool
	violationNotified bool

	history []types.MutationRecord
	seq     int

	layer *intercept.Layer
	slot  intercept.Slot
	root  intercept.Node
}

// New creates a guard holding initial. maxMutations must be non-negative.
func New[T any](initial T, maxMutations int, opts Options) (*Guard[T], error) {
	if maxMutations < 0 {
		return nil, fmt.Errorf("%w: got %d", types.ErrNegativeLimit, maxMutations)
	}
	if opts.DisableStrictMode {
		opts.DisableAutoFreeze = true
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Guard[T]{
		id:           types.NewGuardID(),
		opts:         opts,
		current:      initial,
		maxMutations: maxMutations,
	}
	g.logger = logger.With(zap.String("guard_id", string(g.id)))

	if !opts.DisableDeepTracking {
		g.layer = intercept.NewLayer(admitter[T]{g: g}, g.logger.Named("intercept"))
		g.slot = intercept.RootSlot(g.loadRoot, g.storeRoot)
		g.adopt()
	}

	g.record(types.KindInitial, intercept.Snapshot(any(initial)), nil, nil, types.EditNone)
	g.logger.Debug("guard created",
		zap.Int("max_mutations", maxMutations),
		zap.Bool("strict", !opts.DisableStrictMode),
		zap.Bool("deep", !opts.DisableDeepTracking))
	return g, nil
}

// ID returns the guard identifier used in logs and persisted history.
func (g *Guard[T]) ID() types.GuardID { return g.id }

// Get returns the current value. In strict mode it fails once any
// violation has been recorded.
func (g *Guard[T]) Get() (T, error) {
	if err := g.checkRead(); err != nil {
		var zero T
		return zero, err
	}
	return g.current, nil
}

// Set replaces the whole value as one mutation attempt.
func (g *Guard[T]) Set(v T) error {
	return g.admit(attempt{value: any(v), previous: any(g.current)}, func() {
		if g.layer != nil {
			g.layer.Release(g.slot)
		}
		g.current = v
		if g.layer != nil {
			g.adopt()
		}
	})
}

// Node returns the wrapper for the current value. Edits made through it are
// counted like Set. Fails when deep tracking is off or the value is a leaf.
func (g *Guard[T]) Node() (intercept.Node, error) {
	if err := g.checkRead(); err != nil {
		return nil, err
	}
	if g.layer == nil {
		return nil, fmt.Errorf("%w: deep mutation tracking is disabled", types.ErrNotContainer)
	}
	if g.root == nil {
		g.adopt()
	}
	if g.root == nil {
		return nil, types.ErrNotContainer
	}
	return g.root, nil
}

// Lookup returns the value at path. Containers come back wrapped.
func (g *Guard[T]) Lookup(path types.Path) (any, error) {
	root, err := g.Node()
	if err != nil {
		return nil, err
	}
	return intercept.Lookup(root, path)
}

// SetPath assigns the nested location at path as one mutation attempt.
func (g *Guard[T]) SetPath(path types.Path, v any) error {
	root, err := g.Node()
	if err != nil {
		return err
	}
	return intercept.SetPath(root, path, v)
}

// DeletePath deletes the nested location at path as one mutation attempt.
func (g *Guard[T]) DeletePath(path types.Path) error {
	root, err := g.Node()
	if err != nil {
		return err
	}
	return intercept.DeletePath(root, path)
}

// Invoke runs a named sequence operation on the sequence at path.
func (g *Guard[T]) Invoke(path types.Path, method string, args []any) (any, error) {
	root, err := g.Node()
	if err != nil {
		return nil, err
	}
	return intercept.Invoke(root, path, method, args)
}

// Freeze blocks all further writes. Idempotent.
func (g *Guard[T]) Freeze() {
	if !g.frozen {
		g.logger.Debug("frozen manually", zap.Int("mutation_count", g.mutationCount))
	}
	g.frozen = true
}

// Reset zeroes the counts and clears freeze and violation state. The stored
// value is kept.
func (g *Guard[T]) Reset() error {
	if !g.opts.AllowReset {
		return types.ErrResetNotAllowed
	}
	g.mutationCount = 0
	g.violationCount = 0
	g.frozen = false
	g.violated = false
	g.violationNotified = false

	g.record(types.KindReset, intercept.Snapshot(any(g.current)), nil, nil, types.EditNone)
	if g.layer != nil {
		g.layer.Clear()
		g.adopt()
	}
	g.logger.Debug("reset")
	return nil
}

// Remaining returns how many mutations are still allowed.
func (g *Guard[T]) Remaining() int {
	return max(0, g.maxMutations-g.mutationCount)
}

func (g *Guard[T]) MutationCount() int  { return g.mutationCount }
func (g *Guard[T]) ViolationCount() int { return g.violationCount }
func (g *Guard[T]) MaxMutations() int   { return g.maxMutations }

// IsDepleted reports whether no mutations remain.
func (g *Guard[T]) IsDepleted() bool { return g.mutationCount >= g.maxMutations }

func (g *Guard[T]) IsFrozen() bool   { return g.frozen }
func (g *Guard[T]) IsViolated() bool { return g.violated }

// attempt is one write as seen by admission. previous is the live value and
// is snapshotted before apply runs.
type attempt struct {
	value    any
	previous any
	path     types.Path
	edit     types.EditKind
}

func (g *Guard[T]) admit(a attempt, apply func()) error {
	// 1. frozen
	if g.frozen {
		g.violated = true
		err := g.limitError(g.message(msgFrozen), a, true)
		g.notifyViolation(err)
		g.logger.Warn("write to frozen value blocked",
			zap.Stringer("path", a.path),
			zap.Bool("strict", g.strict()))
		if g.strict() {
			return err
		}
		return nil
	}

	// 2. limit exhausted but not frozen
	if g.mutationCount >= g.maxMutations {
		g.violated = true
		g.violationCount++
		value, previous := intercept.Snapshot(a.value), intercept.Snapshot(a.previous)
		if g.opts.OnLimitExceeded != nil {
			g.opts.OnLimitExceeded(types.ViolationAttempt{
				AttemptNumber:  g.violationCount,
				AttemptedValue: value,
				CurrentValue:   intercept.Snapshot(any(g.current)),
				MutationCount:  g.mutationCount,
				MaxMutations:   g.maxMutations,
				ViolationCount: g.violationCount,
				TotalAttempts:  g.mutationCount + g.violationCount,
				Timestamp:      timeNow(),
				Path:           a.path,
				EditKind:       a.edit,
			})
		}
		g.logger.Warn("mutation limit exceeded",
			zap.Int("violation_count", g.violationCount),
			zap.Int("max_mutations", g.maxMutations),
			zap.Stringer("path", a.path),
			zap.Bool("strict", g.strict()))

		if g.strict() {
			err := g.limitError(g.message(fmt.Sprintf(msgLimitFormat, g.maxMutations)), a, false)
			g.notifyViolation(err)
			return err
		}
		apply()
		g.record(types.KindViolation, value, previous, a.path, a.edit)
		return nil
	}

	// 3. admitted
	previous := intercept.Snapshot(a.previous)
	apply()
	g.mutationCount++
	value := intercept.Snapshot(a.value)
	kind := types.KindMutation
	if len(a.path) > 0 {
		kind = types.KindDeepMutation
	}
	g.record(kind, value, previous, a.path, a.edit)
	g.logger.Debug("mutation admitted",
		zap.String("kind", string(kind)),
		zap.Stringer("path", a.path),
		zap.Int("mutation_count", g.mutationCount),
		zap.Int("remaining", g.Remaining()))

	if g.opts.OnMutate != nil {
		g.opts.OnMutate(MutateEvent{
			NewValue:      value,
			OldValue:      previous,
			MutationCount: g.mutationCount,
			Remaining:     g.Remaining(),
			Path:          a.path,
			EditKind:      a.edit,
		})
	}

	// 4. last allowed mutation
	if g.mutationCount == g.maxMutations {
		if g.opts.OnLastMutation != nil {
			g.opts.OnLastMutation(LastMutationEvent{
				Value:    value,
				History:  g.historyCopy(),
				Path:     a.path,
				EditKind: a.edit,
			})
		}
		if !g.opts.DisableAutoFreeze {
			g.frozen = true
			g.logger.Debug("auto-frozen at limit", zap.Int("max_mutations", g.maxMutations))
		}
	}
	return nil
}

func (g *Guard[T]) strict() bool { return !g.opts.DisableStrictMode }

func (g *Guard[T]) checkRead() error {
	if g.strict() && g.violated {
		return &types.MutationLimitExceededError{
			Message: msgReadAfterError,
			Context: types.ErrorContext{
				MaxMutations:     g.maxMutations,
				CurrentMutations: g.mutationCount,
				Frozen:           g.frozen,
			},
		}
	}
	return nil
}

func (g *Guard[T]) limitError(msg string, a attempt, frozen bool) *types.MutationLimitExceededError {
	ctx := types.ErrorContext{
		MaxMutations:     g.maxMutations,
		CurrentMutations: g.mutationCount,
		AttemptedValue:   intercept.Snapshot(a.value),
		CurrentValue:     intercept.Snapshot(any(g.current)),
		Frozen:           frozen,
		Path:             a.path,
		EditKind:         a.edit,
	}
	if !frozen {
		ctx.History = g.historyCopy()
	}
	return &types.MutationLimitExceededError{Message: msg, Context: ctx}
}

// notifyViolation fires OnViolation at most once until the next Reset.
func (g *Guard[T]) notifyViolation(err *types.MutationLimitExceededError) {
	if g.violationNotified {
		return
	}
	g.violationNotified = true
	if g.opts.OnViolation != nil {
		g.opts.OnViolation(err)
	}
}

func (g *Guard[T]) message(def string) string {
	if g.opts.ErrorMessage != "" {
		return g.opts.ErrorMessage
	}
	return def
}

func (g *Guard[T]) adopt() {
	g.root = g.layer.Adopt(any(g.current), nil, g.slot)
}

func (g *Guard[T]) loadRoot() any { return any(g.current) }

func (g *Guard[T]) storeRoot(v any) {
	if t, ok := v.(T); ok {
		g.current = t
	}
}

// admitter routes structural edits from the interception layer into admit.
type admitter[T any] struct {
	g *Guard[T]
}

func (a admitter[T]) Admit(e intercept.Edit, apply func()) error {
	return a.g.admit(attempt{
		value:    e.Value,
		previous: e.Previous,
		path:     e.Path,
		edit:     e.Kind,
	}, apply)
}
