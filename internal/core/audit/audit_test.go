package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/solatis/mutguard/internal/core/db"
	"github.com/solatis/mutguard/internal/guard"
	"github.com/solatis/mutguard/internal/intercept"
	"github.com/solatis/mutguard/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = db.MigrateUp(ctx, conn)
	require.NoError(t, err)

	store, err := NewStore(conn)
	require.NoError(t, err)
	return store
}

func TestSink_PersistsGuardHistory(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	opts := guard.DefaultOptions()
	opts.DisableStrictMode = true
	opts.Sink = NewSink(ctx, store, "settings")
	g, err := guard.New[any](map[string]any{"items": []any{1.0}}, 1, opts)
	require.NoError(t, err)

	_, err = g.Invoke(types.Path{}.Key("items"), intercept.MethodPush, []any{2.0})
	require.NoError(t, err)
	require.NoError(t, g.Set(map[string]any{"replaced": true}))

	records, err := store.List(ctx, g.ID())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, types.KindInitial, records[0].Kind)
	assert.Nil(t, records[0].PreviousValue)
	assert.Equal(t, map[string]any{"items": []any{1.0}}, records[0].Value)

	assert.Equal(t, types.KindDeepMutation, records[1].Kind)
	assert.Equal(t, "items.push()", records[1].Path.String())
	assert.Equal(t, types.EditArrayMethod, records[1].EditKind)
	assert.Equal(t, []any{2.0}, records[1].Value)
	assert.Equal(t, []any{1.0}, records[1].PreviousValue)
	assert.Equal(t, 1, records[1].MutationCountAtTime)

	assert.Equal(t, types.KindViolation, records[2].Kind)
	assert.False(t, records[2].Timestamp.IsZero())

	inMemory, err := g.History()
	require.NoError(t, err)
	for i := range records {
		assert.Equal(t, inMemory[i].Seq, records[i].Seq)
		assert.True(t, inMemory[i].Timestamp.Equal(records[i].Timestamp))
	}
}

func TestStore_Guards(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	for _, name := range []string{"a", "b"} {
		opts := guard.DefaultOptions()
		opts.Sink = NewSink(ctx, store, name)
		g, err := guard.New(0, 2, opts)
		require.NoError(t, err)
		require.NoError(t, g.Set(1))
	}

	summaries, err := store.Guards(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	for _, s := range summaries {
		assert.Equal(t, 2, s.Records)
		assert.NotEmpty(t, s.LastRecordedAt)
	}
}

func TestStore_AppendRejectsUnencodableValue(t *testing.T) {
	store := newStore(t)
	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	err := store.Append(context.Background(), types.NewGuardID(), "x", types.MutationRecord{
		Seq:   1,
		Kind:  types.KindInitial,
		Value: cyclic,
	})
	assert.ErrorContains(t, err, "encoding value")
}

func TestStore_ListUnknownGuard(t *testing.T) {
	records, err := newStore(t).List(context.Background(), types.NewGuardID())
	require.NoError(t, err)
	assert.Empty(t, records)
}
