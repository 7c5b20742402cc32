// Package audit persists guard history records to the SQL history store.
//
// The engine keeps history in memory only; a Sink attached to a guard
// forwards each record to a Store as it is written.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/solatis/mutguard/internal/core/db"
	"github.com/solatis/mutguard/internal/intercept"
	"github.com/solatis/mutguard/internal/types"
)

// Entry is one persisted history row.
type Entry struct {
	GuardID       string         `db:"guard_id"`
	GuardName     string         `db:"guard_name"`
	Seq           int            `db:"seq"`
	Kind          string         `db:"kind"`
	ValueJSON     string         `db:"value_json"`
	PreviousJSON  sql.NullString `db:"previous_json"`
	Path          string         `db:"path"`
	EditKind      string         `db:"edit_kind"`
	MutationCount int            `db:"mutation_count"`
	RecordedAt    string         `db:"recorded_at"`
}

// GuardSummary aggregates the persisted rows of one guard.
type GuardSummary struct {
	GuardID        string `db:"guard_id"`
	GuardName      string `db:"guard_name"`
	Records        int    `db:"records"`
	LastRecordedAt string `db:"last_recorded_at"`
}

// Store reads and writes history rows through named queries.
type Store struct {
	q *db.Queries
}

// NewStore loads the named queries for conn. The schema must already be
// migrated.
func NewStore(conn *sqlx.DB) (*Store, error) {
	q, err := db.LoadQueries(conn)
	if err != nil {
		return nil, err
	}
	return &Store{q: q}, nil
}

// Append persists one record for guard id under name.
func (s *Store) Append(ctx context.Context, id types.GuardID, name string, rec types.MutationRecord) error {
	value, err := json.Marshal(rec.Value)
	if err != nil {
		return fmt.Errorf("encoding value of record %d: %w", rec.Seq, err)
	}
	var previous sql.NullString
	if rec.PreviousValue != nil {
		raw, err := json.Marshal(rec.PreviousValue)
		if err != nil {
			return fmt.Errorf("encoding previous value of record %d: %w", rec.Seq, err)
		}
		previous = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = s.q.Exec(ctx, "insert-record",
		string(id), name, rec.Seq, string(rec.Kind), string(value), previous,
		rec.Path.String(), string(rec.EditKind), rec.MutationCountAtTime,
		rec.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting record %d for guard %s: %w", rec.Seq, id, err)
	}
	return nil
}

// List returns the records of guard id in sequence order.
func (s *Store) List(ctx context.Context, id types.GuardID) ([]types.MutationRecord, error) {
	var entries []Entry
	if err := s.q.Select(ctx, "list-records", &entries, string(id)); err != nil {
		return nil, fmt.Errorf("listing records for guard %s: %w", id, err)
	}

	out := make([]types.MutationRecord, 0, len(entries))
	for _, e := range entries {
		rec, err := e.Record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Guards summarizes every guard with persisted history.
func (s *Store) Guards(ctx context.Context) ([]GuardSummary, error) {
	var out []GuardSummary
	if err := s.q.Select(ctx, "list-guards", &out); err != nil {
		return nil, fmt.Errorf("listing guards: %w", err)
	}
	return out, nil
}

// Record decodes the row back into a history record. JSON numbers come
// back as float64.
func (e Entry) Record() (types.MutationRecord, error) {
	rec := types.MutationRecord{
		Seq:                 e.Seq,
		Kind:                types.MutationKind(e.Kind),
		EditKind:            types.EditKind(e.EditKind),
		MutationCountAtTime: e.MutationCount,
	}
	if err := json.Unmarshal([]byte(e.ValueJSON), &rec.Value); err != nil {
		return rec, fmt.Errorf("decoding value of record %d: %w", e.Seq, err)
	}
	if e.PreviousJSON.Valid {
		if err := json.Unmarshal([]byte(e.PreviousJSON.String), &rec.PreviousValue); err != nil {
			return rec, fmt.Errorf("decoding previous value of record %d: %w", e.Seq, err)
		}
	}
	if e.Path != "" {
		path, err := intercept.ParseRecordedPath(e.Path)
		if err != nil {
			return rec, fmt.Errorf("decoding path of record %d: %w", e.Seq, err)
		}
		rec.Path = path
	}
	ts, err := time.Parse(time.RFC3339Nano, e.RecordedAt)
	if err != nil {
		return rec, fmt.Errorf("decoding timestamp of record %d: %w", e.Seq, err)
	}
	rec.Timestamp = ts
	return rec, nil
}
