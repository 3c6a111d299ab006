package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/model"
)

func TestBeginRunResetsStorage(t *testing.T) {
	f := newFixture()
	init := model.New(model.KindEvent, InitialisationEvent)
	f.m1.MustAppend(model.FeatureEvents, init)

	r := beginRun(t, newTestEngine(), f)

	assert.Equal(t, "run-1", r.ID())
	assert.Same(t, f.m1, r.TranslationTarget())
	assert.Same(t, init, r.InitialisationEvent())
	assert.Equal(t, []string{"a", "c", "b"}, r.Order().IDs())

	r.Storage().Stash("seen", 3)
	v, ok := r.Storage().Fetch("seen")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestBeginRunRejectsForeignTarget(t *testing.T) {
	f := newFixture()
	other := model.New(model.KindMachine, "elsewhere")

	_, err := newTestEngine().BeginRun(context.Background(), f.project, other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not part of project")
}

func TestInitialisationEventNeedsMachine(t *testing.T) {
	f := newFixture()
	r, err := newTestEngine().BeginRun(context.Background(), f.project, f.c1)
	require.NoError(t, err)
	assert.Nil(t, r.InitialisationEvent())
}

func TestApplyAcceptsAndTags(t *testing.T) {
	f := newFixture()
	r := beginRun(t, newTestEngine(), f)

	v := model.NewVariable("y")
	out, err := r.Apply(context.Background(), MustRequest(f.m1, model.FeatureVariables, v,
		WithGenerator("vars::b"), WithPriority(2), WithSource(f.evt0)))
	require.NoError(t, err)

	assert.Equal(t, ir.StatusAccepted, out.Status)
	assert.Equal(t, 0, out.Index)
	assert.Equal(t, int64(1), out.Seq)
	assert.True(t, v.WasGeneratedBy("vars::b"))
	assert.True(t, v.ReadOnly())
	assert.Equal(t, int64(2), v.Priority())
	assert.Equal(t, "components:m0/events:evt0", v.SourceElement())
	assert.Same(t, f.m1, v.Parent())

	assert.Same(t, v, FindGenerated(r.Accepted(), f.m1, model.FeatureVariables, "y"))
	assert.Nil(t, FindGenerated(r.Accepted(), f.m0, model.FeatureVariables, "y"))
}

func TestApplySuppressesDuplicate(t *testing.T) {
	f := newFixture()
	r := beginRun(t, newTestEngine(), f)
	ctx := context.Background()

	_, err := r.Apply(ctx, MustRequest(f.m1, model.FeatureVariables, model.NewVariable("y")))
	require.NoError(t, err)
	out, err := r.Apply(ctx, MustRequest(f.m1, model.FeatureVariables, model.NewVariable("y")))
	require.NoError(t, err)

	assert.Equal(t, ir.StatusSuppressed, out.Status)
	assert.Equal(t, -1, out.Index)
	assert.Equal(t, 1, f.m1.Len(model.FeatureVariables))
	assert.Len(t, r.Accepted(), 1)
}

func TestApplyRejectedInsertKeepsProvenance(t *testing.T) {
	f := newFixture()
	r := beginRun(t, newTestEngine(), f)
	ctx := context.Background()

	v := model.NewVariable("v")
	_, err := r.Apply(ctx, MustRequest(f.m1, model.FeatureVariables, v,
		WithGenerator("g::a"), WithPriority(5)))
	require.NoError(t, err)

	// The same element proposed under another machine cannot be contained twice.
	_, err = r.Apply(ctx, MustRequest(f.m0, model.FeatureVariables, v,
		WithGenerator("g::b"), WithPriority(-4), WithSource(f.evt0)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already contained")

	assert.Same(t, f.m1, v.Parent())
	assert.Equal(t, 0, f.m0.Len(model.FeatureVariables))
	assert.Equal(t, "g::a", v.GeneratedBy())
	assert.Equal(t, int64(5), v.Priority())
	assert.Empty(t, v.SourceElement())
}

func TestFailedRequestLeavesNoSeqGap(t *testing.T) {
	f := newFixture()
	rec := newMemoryRecorder()
	r := beginRun(t, newTestEngine(WithRecorder(rec)), f)
	ctx := context.Background()

	v := model.NewVariable("v")
	out, err := r.Apply(ctx, MustRequest(f.m1, model.FeatureVariables, v))
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Seq)

	_, err = r.Apply(ctx, MustRequest(f.m0, model.FeatureVariables, v))
	require.Error(t, err)

	out, err = r.Apply(ctx, MustRequest(f.m1, model.FeatureVariables, model.NewVariable("w")))
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Seq)

	var seqs []int64
	for _, c := range r.Changes() {
		seqs = append(seqs, c.Seq)
	}
	assert.Equal(t, []int64{1, 2}, seqs)

	record, err := r.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), record.Requests)
}

func TestEngineScopeRules(t *testing.T) {
	tests := []struct {
		name   string
		engine *Engine
		want   bool
	}{
		{"default rules follow sees", newTestEngine(), false},
		{"refines only", newTestEngine(WithScopeRules(ScopeRule{
			Component: model.KindMachine,
			Feature:   model.FeatureInvariants,
			Relations: []model.Relation{model.RelRefines},
		})), true},
		{"no rules", newTestEngine(WithScopeRules()), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			r := beginRun(t, tt.engine, f)

			// m0 sees c0, whose axiom carries the same predicate.
			ok, err := r.ShouldAccept(MustRequest(f.m0, model.FeatureInvariants, model.NewInvariant("n", "S ≠ ∅")))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestApplyBefore(t *testing.T) {
	f := newFixture()
	r := beginRun(t, newTestEngine(), f)
	ctx := context.Background()

	x := model.NewVariable("x")
	f.m1.MustAppend(model.FeatureVariables, model.NewVariable("w"), x)

	out, err := r.Apply(ctx, MustRequest(f.m1, model.FeatureVariables, model.NewVariable("v"),
		WithPriority(100), WithBefore(x)))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Index)
	assert.Equal(t, []string{"w", "v", "x"}, valueNames(f.m1.Values(model.FeatureVariables)))

	// A before sibling that is not in the list falls back to the computed position.
	out, err = r.Apply(ctx, MustRequest(f.m1, model.FeatureVariables, model.NewVariable("u"),
		WithPriority(-1), WithBefore(model.NewVariable("ghost"))))
	require.NoError(t, err)
	assert.Equal(t, 3, out.Index)
}

func TestApplyRemoval(t *testing.T) {
	f := newFixture()
	r := beginRun(t, newTestEngine(), f)
	ctx := context.Background()

	rm, err := NewRemoval(f.m0, model.FeatureInvariants, model.NewInvariant("other", "x∈ℕ"))
	require.NoError(t, err)
	out, err := r.Apply(ctx, rm)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusRemoved, out.Status)
	assert.Equal(t, 0, out.Index)
	assert.Zero(t, f.m0.Len(model.FeatureInvariants))

	out, err = r.Apply(ctx, rm)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusNotFound, out.Status)
}

func TestApplyNilParentUsesProject(t *testing.T) {
	f := newFixture()
	r := beginRun(t, newTestEngine(), f)

	m2 := model.NewMachine("m2")
	out, err := r.Apply(context.Background(), MustRequest(nil, model.FeatureComponents, m2, WithPriority(-1)))
	require.NoError(t, err)

	assert.Equal(t, ir.StatusAccepted, out.Status)
	assert.Equal(t, 4, out.Index)
	assert.Same(t, f.project, m2.Parent())
}

func TestPriorityOrderingScenario(t *testing.T) {
	f := newFixture()
	r := beginRun(t, newTestEngine(), f)
	ctx := context.Background()

	for _, p := range []int64{5, 0, -3} {
		_, err := r.Apply(ctx, MustRequest(f.m1, model.FeatureVariables, model.NewVariable(fmt.Sprintf("v%d", p)), WithPriority(p)))
		require.NoError(t, err)
	}

	out, err := r.Apply(ctx, MustRequest(f.m1, model.FeatureVariables, model.NewVariable("plus3"), WithPriority(3)))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Index)

	out, err = r.Apply(ctx, MustRequest(f.m1, model.FeatureVariables, model.NewVariable("minus5"), WithPriority(-5)))
	require.NoError(t, err)
	assert.Equal(t, 4, out.Index)

	assert.Equal(t, []string{"v5", "plus3", "v0", "v-3", "minus5"}, valueNames(f.m1.Values(model.FeatureVariables)))
}

func TestTieBreakBeforeEqual(t *testing.T) {
	f := newFixture()
	r := beginRun(t, newTestEngine(WithTieBreak(TieBeforeEqual)), f)
	ctx := context.Background()

	for _, name := range []string{"first", "second"} {
		_, err := r.Apply(ctx, MustRequest(f.m1, model.FeatureVariables, model.NewVariable(name), WithGenerator("g::a")))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"second", "first"}, valueNames(f.m1.Values(model.FeatureVariables)))
}

// generatedRequests builds requests with distinct ranks so that their final
// order is fully determined by rank.
func generatedRequests(f fixture) []Request {
	return []Request{
		MustRequest(f.m1, model.FeatureInvariants, model.NewInvariant("ia", "a > 0"), WithGenerator("inv::a")),
		MustRequest(f.m1, model.FeatureInvariants, model.NewInvariant("ib", "b > 0"), WithGenerator("inv::b")),
		MustRequest(f.m1, model.FeatureInvariants, model.NewInvariant("ic", "c > 0"), WithGenerator("inv::c")),
		MustRequest(f.m1, model.FeatureInvariants, model.NewInvariant("top", "t > 0"), WithGenerator("inv::b"), WithPriority(3)),
		MustRequest(f.m1, model.FeatureInvariants, model.NewInvariant("dup", "x ∈ ℕ"), WithGenerator("inv::a")),
		MustRequest(f.evt1, model.FeatureGuards, model.NewGuard("g2", "x > 0"), WithGenerator("grd::a")),
		MustRequest(f.evt1, model.FeatureGuards, model.NewGuard("g3", "y > 0"), WithGenerator("grd::c"), WithPriority(-1)),
		MustRequest(f.evt1, model.FeatureActions, model.NewAction("act", "y ≔ 1"), WithGenerator("act::a")),
	}
}

func permute(n int, fn func([]int)) {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	var rec func(k int)
	rec = func(k int) {
		if k == n {
			fn(append([]int(nil), idx...))
			return
		}
		for i := k; i < n; i++ {
			idx[k], idx[i] = idx[i], idx[k]
			rec(k + 1)
			idx[k], idx[i] = idx[i], idx[k]
		}
	}
	rec(0)
}

func TestDeterminismOverPermutations(t *testing.T) {
	ctx := context.Background()
	var want string

	count := 0
	permute(5, func(perm []int) {
		f := newFixture()
		reqs := generatedRequests(f)
		// Permute the first five and keep the rest in place.
		ordered := make([]Request, 0, len(reqs))
		for _, i := range perm {
			ordered = append(ordered, reqs[i])
		}
		ordered = append(ordered, reqs[5:]...)

		r, err := New(WithLogger(quietLogger())).BeginRun(ctx, f.project, f.m1)
		require.NoError(t, err)
		for _, req := range ordered {
			require.True(t, r.Enqueue(req))
		}
		_, err = r.Drain(ctx)
		require.NoError(t, err)
		rec, err := r.Finish(ctx)
		require.NoError(t, err)

		if want == "" {
			want = rec.AfterHash
			assert.Equal(t, []string{"top", "ia", "ic", "ib"}, valueNames(f.m1.Values(model.FeatureInvariants)))
		}
		assert.Equal(t, want, rec.AfterHash, "permutation %v", perm)
		count++
	})
	assert.Equal(t, 120, count)
}

func TestIdempotentReapplication(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	e := newTestEngine()

	r1 := beginRun(t, e, f)
	for _, req := range generatedRequests(f) {
		r1.Enqueue(req)
	}
	_, err := r1.Drain(ctx)
	require.NoError(t, err)
	first, err := r1.Finish(ctx)
	require.NoError(t, err)

	r2 := beginRun(t, e, f)
	for _, req := range generatedRequests(f) {
		r2.Enqueue(req)
	}
	outcomes, err := r2.Drain(ctx)
	require.NoError(t, err)
	second, err := r2.Finish(ctx)
	require.NoError(t, err)

	for _, o := range outcomes {
		assert.Equal(t, ir.StatusSuppressed, o.Status)
	}
	assert.Equal(t, first.AfterHash, second.AfterHash)
	assert.Equal(t, first.AfterHash, second.BeforeHash)
}

func TestDrainIsFIFO(t *testing.T) {
	f := newFixture()
	r := beginRun(t, newTestEngine(), f)

	for i := 0; i < 5; i++ {
		r.Enqueue(MustRequest(f.m1, model.FeatureVariables, model.NewVariable(fmt.Sprintf("v%d", i))))
	}
	assert.Equal(t, 5, r.Pending())

	outcomes, err := r.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 5)
	for i, o := range outcomes {
		assert.Equal(t, int64(i+1), o.Seq)
		assert.Equal(t, i, o.Index)
	}
	assert.Zero(t, r.Pending())
}

func TestConcurrentEnqueue(t *testing.T) {
	f := newFixture()
	r := beginRun(t, newTestEngine(), f)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				r.Enqueue(MustRequest(f.m1, model.FeatureVariables, model.NewVariable(fmt.Sprintf("g%d-%d", g, i)), WithPriority(int64(g))))
			}
		}(g)
	}
	wg.Wait()

	outcomes, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Len(t, outcomes, 200)

	// Whatever the arrival order, priorities end up descending.
	prev := int64(1 << 62)
	for _, v := range f.m1.Values(model.FeatureVariables) {
		p := v.(*model.Element).Priority()
		assert.LessOrEqual(t, p, prev)
		prev = p
	}
}

func TestDrainHonoursContext(t *testing.T) {
	f := newFixture()
	r := beginRun(t, newTestEngine(), f)
	r.Enqueue(MustRequest(f.m1, model.FeatureVariables, model.NewVariable("x")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Drain(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, r.Pending())
}

func TestQuota(t *testing.T) {
	f := newFixture()
	r := beginRun(t, newTestEngine(WithMaxRequests(2)), f)
	for i := 0; i < 3; i++ {
		r.Enqueue(MustRequest(f.m1, model.FeatureVariables, model.NewVariable(fmt.Sprintf("v%d", i))))
	}

	outcomes, err := r.Drain(context.Background())
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
	assert.Len(t, outcomes, 2)
}

func TestCyclicModelIsFatal(t *testing.T) {
	f := newFixture()
	f.m0.AddRef(model.RelRefines, f.m1)
	r := beginRun(t, newTestEngine(), f)
	ctx := context.Background()

	_, err := r.Apply(ctx, MustRequest(f.m1, model.FeatureInvariants, model.NewInvariant("n", "q")))
	require.Error(t, err)
	assert.True(t, IsCyclicModelError(err))

	// Even a request that never reaches the scope check now fails.
	_, err = r.Apply(ctx, MustRequest(f.m1, model.FeatureVariables, model.NewVariable("z")))
	assert.True(t, IsCyclicModelError(err))

	_, err = r.Finish(ctx)
	assert.True(t, IsCyclicModelError(err))
}

func TestFinishResolvesForwardReferences(t *testing.T) {
	f := newFixture()
	r := beginRun(t, newTestEngine(), f)
	ctx := context.Background()

	act := model.NewAction("act", "z ≔ 0")
	act.AddPendingRef(model.RelReferences, model.VariableProxy(f.m1, "z"))
	r.Enqueue(MustRequest(f.evt1, model.FeatureActions, act))
	r.Enqueue(MustRequest(f.m1, model.FeatureVariables, model.NewVariable("z")))
	_, err := r.Drain(ctx)
	require.NoError(t, err)

	_, err = r.Finish(ctx)
	require.NoError(t, err)
	require.Len(t, act.Refs(model.RelReferences), 1)
	assert.Equal(t, "z", act.Refs(model.RelReferences)[0].Name())

	assert.False(t, r.Enqueue(MustRequest(f.m1, model.FeatureVariables, model.NewVariable("late"))))
}

func TestFinishReportsUnresolved(t *testing.T) {
	f := newFixture()
	r := beginRun(t, newTestEngine(), f)
	ctx := context.Background()

	act := model.NewAction("act", "w ≔ 0")
	act.AddPendingRef(model.RelReferences, model.VariableProxy(f.m1, "w"))
	_, err := r.Apply(ctx, MustRequest(f.evt1, model.FeatureActions, act))
	require.NoError(t, err)

	_, err = r.Finish(ctx)
	require.Error(t, err)
	assert.True(t, IsUnresolvedReferenceError(err))
	assert.Contains(t, err.Error(), "variable:w")
}

func TestRecorderReceivesRunLog(t *testing.T) {
	f := newFixture()
	rec := newMemoryRecorder()
	r := beginRun(t, newTestEngine(WithRecorder(rec)), f)
	ctx := context.Background()

	r.Enqueue(MustRequest(f.m1, model.FeatureVariables, model.NewVariable("x")))
	r.Enqueue(MustRequest(f.m1, model.FeatureVariables, model.NewVariable("x")))
	_, err := r.Drain(ctx)
	require.NoError(t, err)
	final, err := r.Finish(ctx)
	require.NoError(t, err)

	require.Len(t, rec.runs, 2)
	assert.Empty(t, rec.runs[0].AfterHash)
	assert.Equal(t, final, rec.runs[1])
	assert.Equal(t, int64(2), final.Requests)
	assert.Equal(t, ir.EngineVersion, final.EngineVersion)

	require.Len(t, rec.changes, 2)
	assert.Equal(t, ir.StatusAccepted, rec.changes[0].Status)
	assert.Equal(t, ir.StatusSuppressed, rec.changes[1].Status)
	assert.NotEqual(t, rec.changes[0].RequestID, rec.changes[1].RequestID)
	assert.Equal(t, rec.changes, r.Changes())

	assert.Equal(t, final.BeforeHash, ir.MustSnapshotHash(rec.snapshots["run-1/before"]))
	assert.Equal(t, final.AfterHash, ir.MustSnapshotHash(rec.snapshots["run-1/after"]))
}
