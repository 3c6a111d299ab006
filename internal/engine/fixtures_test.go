package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/model"
)

// fixture is a small project:
//
//	c0            axioms: axm1 "S ≠ ∅"
//	c1 extends c0
//	m0 sees c0    invariants: inv0 "x ∈ ℕ"; events: evt0 [grd1 "x > 0"]
//	              extensions: c
//	m1 refines m0, sees c1
//	              extensions: a -> c, b
//	              events: evt1 extends evt0
type fixture struct {
	project    *model.Element
	c0, c1     *model.Element
	m0, m1     *model.Element
	evt0, evt1 *model.Element
}

func newFixture() fixture {
	f := fixture{project: model.NewProject("p")}

	f.c0 = model.New(model.KindContext, "c0")
	f.c0.MustAppend(model.FeatureAxioms, model.NewAxiom("axm1", "S ≠ ∅"))
	f.c1 = model.New(model.KindContext, "c1")
	f.c1.AddRef(model.RelExtends, f.c0)

	f.m0 = model.New(model.KindMachine, "m0")
	f.m0.AddRef(model.RelSees, f.c0)
	f.m0.MustAppend(model.FeatureInvariants, model.NewInvariant("inv0", "x ∈ ℕ"))
	f.evt0 = model.New(model.KindEvent, "evt0")
	f.evt0.MustAppend(model.FeatureGuards, model.NewGuard("grd1", "x > 0"))
	f.m0.MustAppend(model.FeatureEvents, f.evt0)

	f.m1 = model.New(model.KindMachine, "m1")
	f.m1.AddRef(model.RelRefines, f.m0)
	f.m1.AddRef(model.RelSees, f.c1)
	extC := model.New(model.KindExtension, "c")
	extA := model.New(model.KindExtension, "a")
	extA.AddRef(model.RelReferences, extC)
	extB := model.New(model.KindExtension, "b")
	f.m1.MustAppend(model.FeatureExtensions, extA, extB)
	f.evt1 = model.New(model.KindEvent, "evt1")
	f.evt1.SetExtended(true)
	f.evt1.AddRef(model.RelRefines, f.evt0)
	f.m1.MustAppend(model.FeatureEvents, f.evt1)

	f.m0.MustAppend(model.FeatureExtensions, extC)

	f.project.MustAppend(model.FeatureComponents, f.c0, f.c1, f.m0, f.m1)
	return f
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(opts ...EngineOption) *Engine {
	base := []EngineOption{
		WithLogger(quietLogger()),
		WithRunIDGenerator(NewFixedGenerator("run-1", "run-2", "run-3", "run-4")),
	}
	return New(append(base, opts...)...)
}

func beginRun(t *testing.T, e *Engine, f fixture) *Run {
	t.Helper()
	r, err := e.BeginRun(context.Background(), f.project, f.m1)
	require.NoError(t, err)
	return r
}

// memoryRecorder is an in-memory Recorder.
type memoryRecorder struct {
	mu        sync.Mutex
	runs      []ir.RunRecord
	snapshots map[string]ir.ElementDoc
	changes   []ir.ChangeRecord
}

func newMemoryRecorder() *memoryRecorder {
	return &memoryRecorder{snapshots: make(map[string]ir.ElementDoc)}
}

func (m *memoryRecorder) WriteRun(_ context.Context, run ir.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryRecorder) WriteSnapshot(_ context.Context, runID, phase string, doc ir.ElementDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[runID+"/"+phase] = doc
	return nil
}

func (m *memoryRecorder) WriteChange(_ context.Context, change ir.ChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, change)
	return nil
}

func valueNames(values []model.Value) []string {
	var out []string
	for _, v := range values {
		switch val := v.(type) {
		case *model.Element:
			out = append(out, val.Name())
		case model.Text:
			out = append(out, string(val))
		}
	}
	return out
}
