package store

import (
	"context"
	"fmt"

	"github.com/roach88/genmerge/internal/ir"
)

// WriteRun inserts or updates a run record.
//
// The engine writes a run twice: when it begins, with the before hash, and
// when it finishes, with the after hash and request count. The second write
// replaces the mutable columns; target and versions never change.
func (s *Store) WriteRun(ctx context.Context, run ir.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, target, tie_break, before_hash, after_hash, requests, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			before_hash = excluded.before_hash,
			after_hash  = excluded.after_hash,
			requests    = excluded.requests
	`,
		run.ID,
		run.Target,
		run.TieBreak,
		run.BeforeHash,
		run.AfterHash,
		run.Requests,
		run.EngineVersion,
		run.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteSnapshot stores the canonical model document for one phase of a run.
// Uses ON CONFLICT DO NOTHING: a phase is written once per run.
//
// Note: The run must exist (foreign key constraint).
func (s *Store) WriteSnapshot(ctx context.Context, runID, phase string, doc ir.ElementDoc) error {
	text, hash, err := marshalDoc(doc)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (run_id, phase, hash, doc)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, runID, phase, hash, text)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// WriteChange appends the outcome of one request.
// Uses ON CONFLICT DO NOTHING for idempotency - rewriting the same seq or
// request id is silently ignored.
//
// Note: The run must exist (foreign key constraint).
func (s *Store) WriteChange(ctx context.Context, change ir.ChangeRecord) error {
	reqJSON, err := marshalRequest(change.Request)
	if err != nil {
		return fmt.Errorf("write change: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO changes (run_id, seq, request_id, status, idx, request)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		change.RunID,
		change.Seq,
		change.RequestID,
		string(change.Status),
		change.Index,
		reqJSON,
	)
	if err != nil {
		return fmt.Errorf("write change: %w", err)
	}
	return nil
}
