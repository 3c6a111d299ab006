package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/genmerge/internal/ir"
)

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (ir.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, target, tie_break, before_hash, after_hash, requests, engine_version, ir_version
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// ListRuns returns every run in the order it was first written.
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) ListRuns(ctx context.Context) ([]ir.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target, tie_break, before_hash, after_hash, requests, engine_version, ir_version
		FROM runs
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadChanges returns the change log of a run ordered by seq.
// Returns an empty slice (not nil) if the run has no changes.
func (s *Store) ReadChanges(ctx context.Context, runID string) ([]ir.ChangeRecord, error) {
	return s.QueryChanges(ctx, runID, ChangeFilter{})
}

// ReadSnapshot returns the model document and hash stored for a run phase.
// Returns sql.ErrNoRows if the phase was never written.
func (s *Store) ReadSnapshot(ctx context.Context, runID, phase string) (ir.ElementDoc, string, error) {
	var text, hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT doc, hash FROM snapshots WHERE run_id = ? AND phase = ?
	`, runID, phase).Scan(&text, &hash)
	if err != nil {
		return ir.ElementDoc{}, "", err
	}
	doc, err := unmarshalDoc(text)
	if err != nil {
		return ir.ElementDoc{}, "", err
	}
	return doc, hash, nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (ir.RunRecord, error) {
	var r ir.RunRecord
	err := row.Scan(&r.ID, &r.Target, &r.TieBreak, &r.BeforeHash, &r.AfterHash, &r.Requests, &r.EngineVersion, &r.IRVersion)
	if err == sql.ErrNoRows {
		return ir.RunRecord{}, err
	}
	if err != nil {
		return ir.RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}
