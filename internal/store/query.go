package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/genmerge/internal/ir"
)

// ChangeFilter selects recorded changes. Zero fields match everything; set
// fields are combined with AND.
type ChangeFilter struct {
	Status    ir.ChangeStatus
	Feature   string
	Generator string
	Removals  *bool // nil: both insertions and removals
}

// predicate is one "expr = ?" term of a WHERE clause.
type predicate struct {
	expr  string
	value any
}

// predicates lists the filter terms in a fixed order so the same filter
// always compiles to the same statement.
func (f ChangeFilter) predicates() []predicate {
	var preds []predicate
	if f.Status != "" {
		preds = append(preds, predicate{"status", string(f.Status)})
	}
	// Request fields live in the canonical request document.
	if f.Feature != "" {
		preds = append(preds, predicate{"json_extract(request, '$.feature')", f.Feature})
	}
	if f.Generator != "" {
		preds = append(preds, predicate{"json_extract(request, '$.generator')", f.Generator})
	}
	if f.Removals != nil {
		// "remove" is omitted from the document when false.
		preds = append(preds, predicate{"coalesce(json_extract(request, '$.remove'), 0)", boolParam(*f.Removals)})
	}
	return preds
}

func boolParam(b bool) int {
	if b {
		return 1
	}
	return 0
}

// compileChangeQuery builds the SELECT for runID and f. Values are always
// bound as parameters, never interpolated.
func compileChangeQuery(runID string, f ChangeFilter) (string, []any) {
	where := []string{"run_id = ?"}
	params := []any{runID}
	for _, p := range f.predicates() {
		where = append(where, p.expr+" = ?")
		params = append(params, p.value)
	}

	query := "SELECT run_id, seq, request_id, status, idx, request FROM changes WHERE " +
		strings.Join(where, " AND ") +
		" ORDER BY seq ASC"
	return query, params
}

// QueryChanges returns the changes of a run matching f, ordered by seq.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) QueryChanges(ctx context.Context, runID string, f ChangeFilter) ([]ir.ChangeRecord, error) {
	query, params := compileChangeQuery(runID, f)
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	changes := []ir.ChangeRecord{}
	for rows.Next() {
		var (
			c       ir.ChangeRecord
			status  string
			reqJSON string
		)
		if err := rows.Scan(&c.RunID, &c.Seq, &c.RequestID, &status, &c.Index, &reqJSON); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		c.Status = ir.ChangeStatus(status)
		if c.Request, err = unmarshalRequest(reqJSON); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return changes, nil
}
