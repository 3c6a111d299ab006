package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/genmerge/internal/ir"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run record with minimal required fields.
func createTestRun(id string) ir.RunRecord {
	return ir.RunRecord{
		ID:            id,
		Target:        "components:m1",
		TieBreak:      "after",
		BeforeHash:    "before-hash",
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
}

// createTestChange creates an accepted change adding a variable.
func createTestChange(runID string, seq int64, name string) ir.ChangeRecord {
	return ir.ChangeRecord{
		RunID:     runID,
		Seq:       seq,
		RequestID: runID + "-req-" + name,
		Status:    ir.StatusAccepted,
		Index:     seq - 1,
		Request: ir.RequestDoc{
			Parent:  "components:m1",
			Feature: "variables",
			Value:   ir.ValueDoc{Element: &ir.ElementDoc{Kind: "variable", Name: name}},
		},
	}
}
