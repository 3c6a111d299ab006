package store

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/roach88/genmerge/internal/engine"
	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/model"
)

func newRecordingEngine(s *Store, ids ...string) *engine.Engine {
	return engine.New(
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(ids...)),
		engine.WithRecorder(s),
	)
}

func smallProject() (*model.Element, *model.Element) {
	project := model.NewProject("p")
	m := model.New(model.KindMachine, "m")
	m.MustAppend(model.FeatureVariables, model.New(model.KindVariable, "x"))
	project.MustAppend(model.FeatureComponents, m)
	return project, m
}

func TestLoadRunLog_RecordedRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	project, m := smallProject()

	run, err := newRecordingEngine(s, "run-1").BeginRun(ctx, project, m)
	if err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	reqs := []engine.Request{
		engine.MustRequest(m, model.FeatureVariables, model.NewVariable("y"), engine.WithGenerator("vars")),
		engine.MustRequest(m, model.FeatureInvariants, model.NewInvariant("inv1", "y ∈ ℕ"), engine.WithPriority(2)),
		engine.MustRequest(m, model.FeatureVariables, model.NewVariable("y"), engine.WithGenerator("vars")),
	}
	for _, req := range reqs {
		if _, err := run.Apply(ctx, req); err != nil {
			t.Fatalf("Apply() failed: %v", err)
		}
	}
	record, err := run.Finish(ctx)
	if err != nil {
		t.Fatalf("Finish() failed: %v", err)
	}

	log, err := s.LoadRunLog(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadRunLog() failed: %v", err)
	}
	if log.Run != record {
		t.Errorf("Run = %+v, want %+v", log.Run, record)
	}
	if !log.IsComplete {
		t.Error("IsComplete = false, want true")
	}
	if log.BeforeHash != record.BeforeHash {
		t.Errorf("BeforeHash = %q, want %q", log.BeforeHash, record.BeforeHash)
	}
	if log.AfterHash != record.AfterHash {
		t.Errorf("AfterHash = %q, want %q", log.AfterHash, record.AfterHash)
	}
	if len(log.Changes) != 3 {
		t.Fatalf("len(Changes) = %d, want 3", len(log.Changes))
	}
	wantStatus := []ir.ChangeStatus{ir.StatusAccepted, ir.StatusAccepted, ir.StatusSuppressed}
	for i, c := range log.Changes {
		if c.Status != wantStatus[i] {
			t.Errorf("Changes[%d].Status = %q, want %q", i, c.Status, wantStatus[i])
		}
	}
}

func TestLoadRunLog_ReplayReproducesAfterHash(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	project, m := smallProject()

	run, err := newRecordingEngine(s, "run-1").BeginRun(ctx, project, m)
	if err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	for _, req := range []engine.Request{
		engine.MustRequest(m, model.FeatureInvariants, model.NewInvariant("inv1", "x ∈ ℕ")),
		engine.MustRequest(m, model.FeatureInvariants, model.NewInvariant("inv0", "x ≥ 0"), engine.WithPriority(5)),
		engine.MustRequest(m, model.FeatureVariables, model.NewVariable("z")),
	} {
		if _, err := run.Apply(ctx, req); err != nil {
			t.Fatalf("Apply() failed: %v", err)
		}
	}
	if _, err := run.Finish(ctx); err != nil {
		t.Fatalf("Finish() failed: %v", err)
	}

	log, err := s.LoadRunLog(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadRunLog() failed: %v", err)
	}

	replayProject, err := model.FromDoc(log.Before)
	if err != nil {
		t.Fatalf("FromDoc() failed: %v", err)
	}
	target, err := model.Resolve(replayProject, log.Run.Target)
	if err != nil {
		t.Fatalf("Resolve(target) failed: %v", err)
	}

	replay, err := engine.New(
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithRunIDGenerator(engine.NewFixedGenerator("replay-1")),
	).BeginRun(ctx, replayProject, target)
	if err != nil {
		t.Fatalf("replay BeginRun() failed: %v", err)
	}
	for _, c := range log.Changes {
		req, err := engine.ResolveRequest(replayProject, c.Request)
		if err != nil {
			t.Fatalf("ResolveRequest(seq %d) failed: %v", c.Seq, err)
		}
		if _, err := replay.Apply(ctx, req); err != nil {
			t.Fatalf("replay Apply() failed: %v", err)
		}
	}
	replayed, err := replay.Finish(ctx)
	if err != nil {
		t.Fatalf("replay Finish() failed: %v", err)
	}
	if replayed.AfterHash != log.AfterHash {
		t.Errorf("replayed hash = %q, want %q", replayed.AfterHash, log.AfterHash)
	}
}

func TestFindIncompleteRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	e := newRecordingEngine(s, "run-1", "run-2")

	project, m := smallProject()
	finished, err := e.BeginRun(ctx, project, m)
	if err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	if _, err := finished.Finish(ctx); err != nil {
		t.Fatalf("Finish() failed: %v", err)
	}

	project2, m2 := smallProject()
	if _, err := e.BeginRun(ctx, project2, m2); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}

	ids, err := s.FindIncompleteRuns(ctx)
	if err != nil {
		t.Fatalf("FindIncompleteRuns() failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "run-2" {
		t.Errorf("FindIncompleteRuns() = %v, want [run-2]", ids)
	}

	log, err := s.LoadRunLog(ctx, "run-2")
	if err != nil {
		t.Fatalf("LoadRunLog() failed: %v", err)
	}
	if log.IsComplete {
		t.Error("IsComplete = true for an unfinished run")
	}
	if log.AfterHash != "" {
		t.Errorf("AfterHash = %q, want empty", log.AfterHash)
	}
}

func TestLoadRunLog_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.LoadRunLog(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("LoadRunLog() error = %v, want sql.ErrNoRows", err)
	}
}
