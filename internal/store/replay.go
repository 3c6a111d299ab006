package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/genmerge/internal/ir"
)

// Snapshot phases, matching the values the engine records.
const (
	phaseBefore = "before"
	phaseAfter  = "after"
)

// RunLog is everything recorded for one run, as needed to replay it.
type RunLog struct {
	Run        ir.RunRecord
	Before     ir.ElementDoc
	BeforeHash string
	After      ir.ElementDoc
	AfterHash  string
	Changes    []ir.ChangeRecord
	IsComplete bool // True if the run finished and its after snapshot was written
}

// LoadRunLog reads a run with both snapshots and its change log.
// Returns sql.ErrNoRows if the run does not exist.
func (s *Store) LoadRunLog(ctx context.Context, runID string) (RunLog, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunLog{}, err
	}
	log := RunLog{Run: run}

	log.Before, log.BeforeHash, err = s.ReadSnapshot(ctx, runID, phaseBefore)
	if err != nil {
		return log, fmt.Errorf("load run %s: before snapshot: %w", runID, err)
	}

	after, afterHash, err := s.ReadSnapshot(ctx, runID, phaseAfter)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return log, fmt.Errorf("load run %s: after snapshot: %w", runID, err)
	default:
		log.After, log.AfterHash = after, afterHash
		log.IsComplete = true
	}

	log.Changes, err = s.ReadChanges(ctx, runID)
	if err != nil {
		return log, fmt.Errorf("load run %s: %w", runID, err)
	}
	return log, nil
}

// FindIncompleteRuns returns the ids of runs that began but never wrote an
// after snapshot, in the order they were started. Such runs either failed
// fatally or were interrupted.
func (s *Store) FindIncompleteRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id
		FROM runs r
		LEFT JOIN snapshots a ON a.run_id = r.id AND a.phase = 'after'
		WHERE a.run_id IS NULL
		ORDER BY r.rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query incomplete runs: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incomplete runs: %w", err)
	}
	return ids, nil
}
