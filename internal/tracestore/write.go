package tracestore

import (
	"context"
	"fmt"

	"github.com/roach88/rxstore/internal/engine"
)

// Run describes one recorded scenario run.
type Run struct {
	ID            string `json:"id"`
	Scenario      string `json:"scenario"`
	EngineVersion string `json:"engine_version"`
	KeyVersion    string `json:"key_version"`
}

// WriteRun inserts a run record. Duplicate ids are ignored.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, scenario, engine_version, key_version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Scenario, run.EngineVersion, run.KeyVersion)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteEvents appends events to a run in one transaction.
// Events whose (run, seq) is already stored are skipped.
//
// Note: the run must exist (foreign key constraint).
func (s *Store) WriteEvents(ctx context.Context, runID string, events []engine.TraceEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, seq, pass_id, kind, key, consumer, depth)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		row := eventToRow(ev)
		if _, err := stmt.ExecContext(ctx,
			runID, row.seq, row.passID, row.kind, row.key, row.consumer, row.depth,
		); err != nil {
			return fmt.Errorf("write events: seq %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}
