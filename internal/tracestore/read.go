package tracestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/rxstore/internal/engine"
	"github.com/roach88/rxstore/internal/ir"
)

// ReadRun retrieves a run by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	var run Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, engine_version, key_version
		FROM runs
		WHERE id = ?
	`, id).Scan(&run.ID, &run.Scenario, &run.EngineVersion, &run.KeyVersion)
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns every run, ordered by id. UUIDv7 ids sort in creation
// order.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scenario, engine_version, key_version
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Scenario, &run.EngineVersion, &run.KeyVersion); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadEvents returns all events of a run in seq order.
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]engine.TraceEvent, error) {
	return s.queryEvents(ctx, `
		SELECT seq, pass_id, kind, key, consumer, depth
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
}

// ReadPass returns the events of one propagation pass in seq order.
func (s *Store) ReadPass(ctx context.Context, runID, passID string) ([]engine.TraceEvent, error) {
	return s.queryEvents(ctx, `
		SELECT seq, pass_id, kind, key, consumer, depth
		FROM events
		WHERE run_id = ? AND pass_id = ?
		ORDER BY seq ASC
	`, runID, passID)
}

// ReadKeyHistory returns the events of a run that touch key, either as the
// subject or as the consumer of an edge event.
func (s *Store) ReadKeyHistory(ctx context.Context, runID string, key ir.Key) ([]engine.TraceEvent, error) {
	k := keyText(key)
	return s.queryEvents(ctx, `
		SELECT seq, pass_id, kind, key, consumer, depth
		FROM events
		WHERE run_id = ? AND (key = ? OR consumer = ?)
		ORDER BY seq ASC
	`, runID, k, k)
}

// CountByKind returns how many events of each kind a run recorded.
func (s *Store) CountByKind(ctx context.Context, runID string) (map[engine.EventKind]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM events
		WHERE run_id = ?
		GROUP BY kind
		ORDER BY kind ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[engine.EventKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[engine.EventKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// MaxSeq returns the highest seq stored for a run, or 0 if it has none.
func (s *Store) MaxSeq(ctx context.Context, runID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM events WHERE run_id = ?
	`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]engine.TraceEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []engine.TraceEvent{}
	for rows.Next() {
		var r eventRow
		if err := rows.Scan(&r.seq, &r.passID, &r.kind, &r.key, &r.consumer, &r.depth); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := rowToEvent(r)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
