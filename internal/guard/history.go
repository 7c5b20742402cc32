package guard

import (
	"time"

	"github.com/solatis/mutguard/internal/types"
	"go.uber.org/zap"
)

// timeNow is replaced in tests that need deterministic timestamps.
var timeNow = func() time.Time { return time.Now().UTC() }

// HistorySink receives history records outside the guard, for example to
// persist them. Append must not call back into the guard.
type HistorySink interface {
	Append(id types.GuardID, rec types.MutationRecord) error
}

// History returns a copy of the history log.
func (g *Guard[T]) History() ([]types.MutationRecord, error) {
	if g.opts.DisableHistory {
		return nil, types.ErrHistoryDisabled
	}
	return g.historyCopy(), nil
}

func (g *Guard[T]) historyCopy() []types.MutationRecord {
	if g.opts.DisableHistory {
		return nil
	}
	out := make([]types.MutationRecord, len(g.history))
	copy(out, g.history)
	return out
}

// record writes one history entry. value and previous must already be
// snapshots.
func (g *Guard[T]) record(kind types.MutationKind, value, previous any, path types.Path, edit types.EditKind) {
	g.seq++
	rec := types.MutationRecord{
		Seq:                 g.seq,
		Kind:                kind,
		Value:               value,
		PreviousValue:       previous,
		Timestamp:           timeNow(),
		MutationCountAtTime: g.mutationCount,
		Path:                path,
		EditKind:            edit,
	}

	if !g.opts.DisableHistory {
		g.history = append(g.history, rec)
	}
	if g.opts.Sink != nil {
		if err := g.opts.Sink.Append(g.id, rec); err != nil {
			g.logger.Warn("history sink append failed",
				zap.Int("seq", rec.Seq),
				zap.String("kind", string(rec.Kind)),
				zap.Error(err))
		}
	}
}
