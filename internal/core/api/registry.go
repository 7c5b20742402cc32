// Package api hosts named guards behind the gRPC guard service.
package api

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/solatis/mutguard/internal/core/auth"
	"github.com/solatis/mutguard/internal/core/config"
	"github.com/solatis/mutguard/internal/guard"
	"github.com/solatis/mutguard/internal/intercept"
	"github.com/solatis/mutguard/internal/types"
	"go.uber.org/zap"
)

var (
	ErrGuardExists   = errors.New("guard already exists")
	ErrGuardNotFound = errors.New("guard not found")
	ErrInvalidName   = errors.New("invalid guard name")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// SinkFactory returns the history sink for a newly created guard, or nil.
type SinkFactory func(name string) guard.HistorySink

// Overrides replaces individual configured guard defaults. Nil fields keep
// the configured value.
type Overrides struct {
	MaxMutations       *int
	StrictMode         *bool
	TrackHistory       *bool
	AllowReset         *bool
	AutoFreeze         *bool
	TrackDeepMutations *bool
	ErrorMessage       *string
}

// Registry holds named guards. Each guard is accessed under its own mutex;
// the registry lock only covers the name table.
type Registry struct {
	cfg    *config.Config
	logger *zap.Logger
	sinks  SinkFactory

	mu     sync.RWMutex
	guards map[string]*entry
}

type entry struct {
	mu sync.Mutex
	g  *guard.Guard[any]

	// log carries the key ID of the caller holding mu; guard callbacks
	// write through it.
	log *zap.Logger
}

// NewRegistry creates an empty registry. sinks may be nil.
func NewRegistry(cfg *config.Config, logger *zap.Logger, sinks SinkFactory) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:    cfg,
		logger: logger,
		sinks:  sinks,
		guards: make(map[string]*entry),
	}, nil
}

// Create registers a new guard under name holding initial.
func (r *Registry) Create(ctx context.Context, name string, initial any, ov Overrides) (guard.Snapshot, error) {
	if !namePattern.MatchString(name) {
		return guard.Snapshot{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.guards[name]; exists {
		return guard.Snapshot{}, fmt.Errorf("%w: %s", ErrGuardExists, name)
	}

	limit := r.cfg.Guard.MaxMutations
	if ov.MaxMutations != nil {
		limit = *ov.MaxMutations
	}
	e := &entry{log: r.caller(ctx).With(zap.String("guard", name))}
	g, err := guard.New[any](initial, limit, r.options(name, ov, e))
	if err != nil {
		return guard.Snapshot{}, err
	}
	e.g = g
	r.guards[name] = e

	r.caller(ctx).Info("guard created",
		zap.String("guard", name),
		zap.String("guard_id", string(g.ID())),
		zap.Int("max_mutations", limit))
	return g.Snapshot(), nil
}

// Get returns a copy of the current value. Strict guards refuse after a
// violation.
func (r *Registry) Get(ctx context.Context, name string) (any, error) {
	var out any
	err := r.with(ctx, name, func(g *guard.Guard[any]) error {
		v, err := g.Get()
		if err != nil {
			return err
		}
		out = intercept.Snapshot(v)
		return nil
	})
	return out, err
}

// Lookup returns a copy of the value at path.
func (r *Registry) Lookup(ctx context.Context, name string, path types.Path) (any, error) {
	var out any
	err := r.with(ctx, name, func(g *guard.Guard[any]) error {
		v, err := g.Lookup(path)
		if err != nil {
			return err
		}
		out = intercept.Snapshot(v)
		return nil
	})
	return out, err
}

// Set replaces the whole value.
func (r *Registry) Set(ctx context.Context, name string, v any) (guard.Snapshot, error) {
	return r.write(ctx, name, func(g *guard.Guard[any]) error {
		return g.Set(v)
	})
}

// SetPath assigns the nested location at path.
func (r *Registry) SetPath(ctx context.Context, name string, path types.Path, v any) (guard.Snapshot, error) {
	return r.write(ctx, name, func(g *guard.Guard[any]) error {
		return g.SetPath(path, v)
	})
}

// DeletePath removes the nested location at path.
func (r *Registry) DeletePath(ctx context.Context, name string, path types.Path) (guard.Snapshot, error) {
	return r.write(ctx, name, func(g *guard.Guard[any]) error {
		return g.DeletePath(path)
	})
}

// Invoke runs a sequence operation at path and returns a copy of its result.
func (r *Registry) Invoke(ctx context.Context, name string, path types.Path, method string, args []any) (any, guard.Snapshot, error) {
	var result any
	snap, err := r.write(ctx, name, func(g *guard.Guard[any]) error {
		res, err := g.Invoke(path, method, args)
		result = intercept.Snapshot(res)
		return err
	})
	return result, snap, err
}

// Freeze blocks further writes to the guard.
func (r *Registry) Freeze(ctx context.Context, name string) (guard.Snapshot, error) {
	return r.write(ctx, name, func(g *guard.Guard[any]) error {
		g.Freeze()
		return nil
	})
}

// Reset clears counts and freeze state when the guard allows it.
func (r *Registry) Reset(ctx context.Context, name string) (guard.Snapshot, error) {
	return r.write(ctx, name, func(g *guard.Guard[any]) error {
		return g.Reset()
	})
}

// Snapshot returns the guard's current state.
func (r *Registry) Snapshot(ctx context.Context, name string) (guard.Snapshot, error) {
	var snap guard.Snapshot
	err := r.with(ctx, name, func(g *guard.Guard[any]) error {
		snap = g.Snapshot()
		return nil
	})
	return snap, err
}

// History returns the guard's in-memory history.
func (r *Registry) History(ctx context.Context, name string) ([]types.MutationRecord, error) {
	var records []types.MutationRecord
	err := r.with(ctx, name, func(g *guard.Guard[any]) error {
		var err error
		records, err = g.History()
		return err
	})
	return records, err
}

// Remove drops a guard from the registry.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.guards[name]; !ok {
		return fmt.Errorf("%w: %s", ErrGuardNotFound, name)
	}
	delete(r.guards, name)
	r.caller(ctx).Info("guard removed", zap.String("guard", name))
	return nil
}

// Names returns registered guard names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.guards))
	for name := range r.guards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// write runs fn and returns the resulting snapshot, also on failure, so
// callers can report counts after a rejected write.
func (r *Registry) write(ctx context.Context, name string, fn func(g *guard.Guard[any]) error) (guard.Snapshot, error) {
	var snap guard.Snapshot
	err := r.with(ctx, name, func(g *guard.Guard[any]) error {
		err := fn(g)
		snap = g.Snapshot()
		if err != nil {
			r.caller(ctx).Debug("write failed", zap.String("guard", name), zap.Error(err))
		}
		return err
	})
	return snap, err
}

func (r *Registry) with(ctx context.Context, name string, fn func(g *guard.Guard[any]) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.RLock()
	e, ok := r.guards[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrGuardNotFound, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = r.caller(ctx).With(zap.String("guard", name))
	return fn(e.g)
}

// options merges configured defaults, overrides and logging callbacks.
// Callbacks log through e.log so each line names the writing caller.
func (r *Registry) options(name string, ov Overrides, e *entry) guard.Options {
	opts := r.cfg.GuardOptions(r.logger.With(zap.String("guard", name)))

	setNegated(&opts.DisableStrictMode, ov.StrictMode)
	setNegated(&opts.DisableHistory, ov.TrackHistory)
	setBool(&opts.AllowReset, ov.AllowReset)
	setNegated(&opts.DisableAutoFreeze, ov.AutoFreeze)
	setNegated(&opts.DisableDeepTracking, ov.TrackDeepMutations)
	if ov.ErrorMessage != nil {
		opts.ErrorMessage = *ov.ErrorMessage
	}

	opts.OnViolation = func(err *types.MutationLimitExceededError) {
		e.log.Warn("guard violation",
			zap.String("message", err.Message),
			zap.Bool("frozen", err.Context.Frozen),
			zap.Int("mutation_count", err.Context.CurrentMutations))
	}
	opts.OnLimitExceeded = func(a types.ViolationAttempt) {
		e.log.Info("mutation limit exceeded",
			zap.Int("violation_count", a.ViolationCount),
			zap.Int("total_attempts", a.TotalAttempts),
			zap.Stringer("path", a.Path))
	}
	opts.OnLastMutation = func(ev guard.LastMutationEvent) {
		e.log.Info("last mutation admitted", zap.Stringer("path", ev.Path))
	}
	if r.sinks != nil {
		opts.Sink = r.sinks(name)
	}
	return opts
}

func (r *Registry) caller(ctx context.Context) *zap.Logger {
	if keyID := auth.KeyIDFromContext(ctx); keyID != "" {
		return r.logger.With(zap.String("key_id", keyID))
	}
	return r.logger
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setNegated(dst *bool, src *bool) {
	if src != nil {
		*dst = !*src
	}
}
