package api

import (
	"context"
	"sync"
	"testing"

	"github.com/solatis/mutguard/internal/core/auth"
	"github.com/solatis/mutguard/internal/core/config"
	"github.com/solatis/mutguard/internal/guard"
	"github.com/solatis/mutguard/internal/intercept"
	"github.com/solatis/mutguard/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newRegistry(t *testing.T) (*Registry, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	r, err := NewRegistry(config.DefaultConfig(), zap.New(core), nil)
	require.NoError(t, err)
	return r, logs
}

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func TestRegistry_CreateAndGet(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	snap, err := r.Create(ctx, "settings", map[string]any{"theme": "dark"}, Overrides{MaxMutations: intPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, snap.MaxMutations)
	assert.Equal(t, 2, snap.Remaining)
	require.Len(t, snap.History, 1)

	v, err := r.Get(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"theme": "dark"}, v)

	// Returned values are copies.
	v.(map[string]any)["theme"] = "light"
	again, err := r.Get(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, "dark", again.(map[string]any)["theme"])
}

func TestRegistry_CreateErrors(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "a", 1, Overrides{})
	require.NoError(t, err)

	_, err = r.Create(ctx, "a", 1, Overrides{})
	assert.ErrorIs(t, err, ErrGuardExists)

	_, err = r.Create(ctx, "bad name", 1, Overrides{})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = r.Create(ctx, "neg", 1, Overrides{MaxMutations: intPtr(-1)})
	assert.ErrorIs(t, err, types.ErrNegativeLimit)
	assert.Equal(t, []string{"a"}, r.Names())
}

func TestRegistry_DefaultLimitAutoFreezes(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "once", "a", Overrides{})
	require.NoError(t, err)

	snap, err := r.Set(ctx, "once", "b")
	require.NoError(t, err)
	assert.True(t, snap.Frozen)
	assert.True(t, snap.Depleted)

	snap, err = r.Set(ctx, "once", "c")
	assert.ErrorIs(t, err, types.ErrMutationLimitExceeded)
	assert.Equal(t, "b", snap.Value)
	assert.True(t, snap.Violated)

	_, err = r.Get(ctx, "once")
	assert.ErrorIs(t, err, types.ErrMutationLimitExceeded)
}

func TestRegistry_StructuralWrites(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "doc", map[string]any{"items": []any{3.0, 1.0}}, Overrides{MaxMutations: intPtr(5)})
	require.NoError(t, err)

	items := types.Path{}.Key("items")

	result, snap, err := r.Invoke(ctx, "doc", items, intercept.MethodPush, []any{2.0})
	require.NoError(t, err)
	assert.Equal(t, 3, result)
	assert.Equal(t, 1, snap.MutationCount)

	_, _, err = r.Invoke(ctx, "doc", items, intercept.MethodSort, nil)
	require.NoError(t, err)

	_, err = r.SetPath(ctx, "doc", types.Path{}.Key("title"), "hello")
	require.NoError(t, err)

	snap, err = r.DeletePath(ctx, "doc", types.Path{}.Key("title"))
	require.NoError(t, err)
	assert.Equal(t, 4, snap.MutationCount)
	assert.Equal(t, map[string]any{"items": []any{1.0, 2.0, 3.0}}, snap.Value)

	v, err := r.Lookup(ctx, "doc", items.Index(0))
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	records, err := r.History(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "items.push()", records[1].Path.String())
	assert.Equal(t, types.KindDeepMutation, records[4].Kind)
	assert.Equal(t, types.EditDelete, records[4].EditKind)
}

func TestRegistry_FreezeAndReset(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "locked", 0.0, Overrides{MaxMutations: intPtr(3)})
	require.NoError(t, err)
	_, err = r.Freeze(ctx, "locked")
	require.NoError(t, err)
	_, err = r.Reset(ctx, "locked")
	assert.ErrorIs(t, err, types.ErrResetNotAllowed)

	_, err = r.Create(ctx, "resettable", 0.0, Overrides{MaxMutations: intPtr(1), AllowReset: boolPtr(true)})
	require.NoError(t, err)
	_, err = r.Set(ctx, "resettable", 1.0)
	require.NoError(t, err)

	snap, err := r.Reset(ctx, "resettable")
	require.NoError(t, err)
	assert.False(t, snap.Frozen)
	assert.Equal(t, 0, snap.MutationCount)
	assert.Equal(t, 1.0, snap.Value)
}

func TestRegistry_OverridesApplied(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	msg := "read-only setting"
	_, err := r.Create(ctx, "lenient", 1.0, Overrides{
		MaxMutations: intPtr(0),
		StrictMode:   boolPtr(false),
		TrackHistory: boolPtr(false),
		ErrorMessage: &msg,
	})
	require.NoError(t, err)

	snap, err := r.Set(ctx, "lenient", 2.0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, snap.Value)
	assert.Equal(t, 1, snap.ViolationCount)

	_, err = r.History(ctx, "lenient")
	assert.ErrorIs(t, err, types.ErrHistoryDisabled)
}

func TestRegistry_NotFound(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrGuardNotFound)
	_, err = r.Snapshot(ctx, "missing")
	assert.ErrorIs(t, err, ErrGuardNotFound)
	assert.ErrorIs(t, r.Remove(ctx, "missing"), ErrGuardNotFound)
}

func TestRegistry_CanceledContext(t *testing.T) {
	r, _ := newRegistry(t)
	_, err := r.Create(context.Background(), "x", 1.0, Overrides{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Set(ctx, "x", 2.0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_LogsViolationsWithCaller(t *testing.T) {
	r, logs := newRegistry(t)
	ctx := auth.WithKeyID(context.Background(), "0123abcd")

	_, err := r.Create(ctx, "once", 1.0, Overrides{})
	require.NoError(t, err)
	_, err = r.Set(ctx, "once", 2.0)
	require.NoError(t, err)
	_, err = r.Set(ctx, "once", 3.0)
	require.Error(t, err)

	created := logs.FilterMessage("guard created").All()
	require.Len(t, created, 1)
	assert.Equal(t, "0123abcd", created[0].ContextMap()["key_id"])

	assert.Equal(t, 1, logs.FilterMessage("last mutation admitted").Len())
	assert.Equal(t, 1, logs.FilterMessage("guard violation").Len())
}

func TestRegistry_CallbacksLogWritingCaller(t *testing.T) {
	r, logs := newRegistry(t)
	owner := auth.WithKeyID(context.Background(), "owner0001")
	writer := auth.WithKeyID(context.Background(), "writer002")

	_, err := r.Create(owner, "shared", 1.0, Overrides{MaxMutations: intPtr(1), StrictMode: boolPtr(false)})
	require.NoError(t, err)
	_, err = r.Set(writer, "shared", 2.0)
	require.NoError(t, err)
	_, err = r.Set(context.Background(), "shared", 3.0)
	require.NoError(t, err)

	last := logs.FilterMessage("last mutation admitted").All()
	require.Len(t, last, 1)
	assert.Equal(t, "writer002", last[0].ContextMap()["key_id"])
	assert.Equal(t, "shared", last[0].ContextMap()["guard"])

	exceeded := logs.FilterMessage("mutation limit exceeded").All()
	require.NotEmpty(t, exceeded)
	for _, entry := range exceeded {
		_, hasKey := entry.ContextMap()["key_id"]
		assert.False(t, hasKey, "anonymous write logged a key ID")
	}
}

func TestRegistry_SinkFactory(t *testing.T) {
	sinks := map[string]*countingSink{}
	r, err := NewRegistry(config.DefaultConfig(), nil, func(name string) guard.HistorySink {
		s := &countingSink{}
		sinks[name] = s
		return s
	})
	require.NoError(t, err)

	_, err = r.Create(context.Background(), "audited", 1.0, Overrides{MaxMutations: intPtr(2)})
	require.NoError(t, err)
	_, err = r.Set(context.Background(), "audited", 2.0)
	require.NoError(t, err)

	require.Contains(t, sinks, "audited")
	assert.Equal(t, 2, sinks["audited"].n)
}

func TestRegistry_ConcurrentWritesCountExactly(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()
	const limit = 50

	_, err := r.Create(ctx, "counter", []any{}, Overrides{
		MaxMutations: intPtr(limit),
		StrictMode:   boolPtr(false),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 2*limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = r.Invoke(ctx, "counter", nil, intercept.MethodPush, []any{1.0})
		}()
	}
	wg.Wait()

	snap, err := r.Snapshot(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, limit, snap.MutationCount)
	assert.Equal(t, limit, snap.ViolationCount)
	assert.Len(t, snap.Value, 2*limit)
}

type countingSink struct{ n int }

func (s *countingSink) Append(types.GuardID, types.MutationRecord) error {
	s.n++
	return nil
}
