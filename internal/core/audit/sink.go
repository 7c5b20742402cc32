package audit

import (
	"context"
	"time"

	"github.com/solatis/mutguard/internal/types"
)

// DefaultAppendTimeout bounds one history insert issued from a guard write.
const DefaultAppendTimeout = 5 * time.Second

// Sink adapts a Store to guard.HistorySink for one named guard.
type Sink struct {
	ctx     context.Context
	store   *Store
	name    string
	timeout time.Duration
}

// NewSink creates a sink writing under name. ctx bounds the sink's lifetime;
// each append gets its own timeout derived from it.
func NewSink(ctx context.Context, store *Store, name string) *Sink {
	return &Sink{ctx: ctx, store: store, name: name, timeout: DefaultAppendTimeout}
}

// Append implements guard.HistorySink.
func (s *Sink) Append(id types.GuardID, rec types.MutationRecord) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	return s.store.Append(ctx, id, s.name, rec)
}
