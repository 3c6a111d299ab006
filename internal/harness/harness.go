package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/genmerge/internal/compiler"
	"github.com/roach88/genmerge/internal/engine"
	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/model"
	"github.com/roach88/genmerge/internal/store"
	"github.com/roach88/genmerge/internal/testutil"
)

// maxPermutationSteps bounds the permutations check: n! runs.
const maxPermutationSteps = 6

// Harness is the test execution engine.
// It runs scenarios with deterministic run ids and discarded logs.
type Harness struct {
	store  *store.Store
	runIDs *testutil.SequenceRunIDs
	tie    engine.TieBreak
	quota  int
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Compile the CUE model and collect requests (CUE first, then steps)
//  2. Validate model and requests; invalid input is an error, not a failure
//  3. Merge the requests in one recorded run
//  4. Check step expectations and assertions against the stored log
//  5. Run the idempotence and permutation checks when requested
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	v, err := loadModel(scenario)
	if err != nil {
		return nil, err
	}
	root, docs, err := compileScenario(v, scenario)
	if err != nil {
		return nil, err
	}
	if errs := compiler.Validate(root, docs); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("scenario %s is invalid:\n  %s", scenario.Name, strings.Join(msgs, "\n  "))
	}

	tie, err := engine.ParseTieBreak(scenario.TieBreak)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		runIDs: testutil.NewSequenceRunIDs(scenario.Name),
		tie:    tie,
		quota:  scenario.MaxRequests,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	record, err := h.merge(ctx, root, scenario.Target, docs, true)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	changes, err := st.ReadChanges(ctx, record.ID)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.RunID = record.ID
	result.Trace = traceFromChanges(changes)
	result.AfterHash = record.AfterHash
	result.Tree = RenderTree(root)

	h.checkExpectations(result, len(docs)-len(scenario.Steps), scenario.Steps)

	actx := &AssertionContext{
		Ctx:     ctx,
		Store:   st,
		RunID:   record.ID,
		Project: root,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	if scenario.Idempotent {
		h.checkIdempotent(ctx, result, root, scenario.Target, docs)
	}
	if scenario.Permutations {
		h.checkPermutations(ctx, result, v, scenario, docs)
	}

	return result, nil
}

// loadModel compiles the inline model or unifies the model files.
func loadModel(s *Scenario) (cue.Value, error) {
	cctx := cuecontext.New()
	if s.Model != "" {
		v := cctx.CompileString(s.Model, cue.Filename(s.Name+".cue"))
		if err := v.Err(); err != nil {
			return cue.Value{}, fmt.Errorf("scenario %s: model: %w", s.Name, err)
		}
		return v, nil
	}

	var v cue.Value
	for i, path := range s.Models {
		data, err := os.ReadFile(path)
		if err != nil {
			return cue.Value{}, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		fv := cctx.CompileBytes(data, cue.Filename(path))
		if i == 0 {
			v = fv
		} else {
			v = v.Unify(fv)
		}
		if err := v.Err(); err != nil {
			return cue.Value{}, fmt.Errorf("scenario %s: %s: %w", s.Name, path, err)
		}
	}
	return v, nil
}

// compileScenario builds the model tree and the full request list.
func compileScenario(v cue.Value, s *Scenario) (*model.Element, []ir.RequestDoc, error) {
	root, err := compiler.CompileModel(v)
	if err != nil {
		return nil, nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	docs, err := compiler.CompileRequests(v)
	if err != nil {
		return nil, nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	for _, step := range s.Steps {
		docs = append(docs, step.Doc())
	}
	return root, docs, nil
}

// merge applies docs to the tree at root in one run. Each request is
// resolved only after the previous one is applied, so later requests may
// address elements added by earlier ones.
func (h *Harness) merge(ctx context.Context, root *model.Element, targetPath string, docs []ir.RequestDoc, record bool) (ir.RunRecord, error) {
	target, err := model.Resolve(root, targetPath)
	if err != nil {
		return ir.RunRecord{}, fmt.Errorf("target: %w", err)
	}

	opts := []engine.EngineOption{
		engine.WithLogger(h.logger),
		engine.WithRunIDGenerator(h.runIDs),
		engine.WithTieBreak(h.tie),
	}
	if h.quota > 0 {
		opts = append(opts, engine.WithMaxRequests(h.quota))
	}
	if record {
		opts = append(opts, engine.WithRecorder(h.store))
	}

	run, err := engine.New(opts...).BeginRun(ctx, root, target)
	if err != nil {
		return ir.RunRecord{}, err
	}
	for i, doc := range docs {
		req, err := engine.ResolveRequest(root, doc)
		if err != nil {
			return ir.RunRecord{}, fmt.Errorf("request %d: %w", i+1, err)
		}
		run.Enqueue(req)
		if _, err := run.Drain(ctx); err != nil {
			return ir.RunRecord{}, fmt.Errorf("request %d: %w", i+1, err)
		}
	}
	return run.Finish(ctx)
}

// checkExpectations compares each step's expect against the trace. offset
// is the number of requests declared in the CUE model, which run first.
func (h *Harness) checkExpectations(result *Result, offset int, steps []Step) {
	for i, step := range steps {
		if step.Expect == "" {
			continue
		}
		pos := offset + i
		if pos >= len(result.Trace) {
			result.AddError(fmt.Sprintf("steps[%d]: no change recorded", i))
			continue
		}
		if got := result.Trace[pos].Status; got != step.Expect {
			result.AddError(fmt.Sprintf("steps[%d]: expected %s, got %s (%s)", i, step.Expect, got, result.Trace[pos]))
		}
	}
}

// checkIdempotent merges the same requests into the already merged tree.
// No insertion may be accepted and the snapshot hash must not change.
func (h *Harness) checkIdempotent(ctx context.Context, result *Result, root *model.Element, target string, docs []ir.RequestDoc) {
	record, err := h.merge(ctx, root, target, docs, false)
	if err != nil {
		result.AddError(fmt.Sprintf("idempotent: second merge failed: %v", err))
		return
	}
	if record.AfterHash != result.AfterHash {
		result.AddError(fmt.Sprintf("idempotent: second merge changed the model\n%s", RenderTree(root)))
	}
}

// checkPermutations merges every order of the requests into a fresh copy of
// the model and compares snapshot hashes with the recorded run.
func (h *Harness) checkPermutations(ctx context.Context, result *Result, v cue.Value, s *Scenario, docs []ir.RequestDoc) {
	if len(docs) > maxPermutationSteps {
		result.AddError(fmt.Sprintf("permutations: %d requests exceed the limit of %d", len(docs), maxPermutationSteps))
		return
	}

	order := make([]int, len(docs))
	for i := range order {
		order[i] = i
	}

	permute(order, func(perm []int) bool {
		root, err := compiler.CompileModel(v)
		if err != nil {
			result.AddError(fmt.Sprintf("permutations: %v", err))
			return false
		}
		shuffled := make([]ir.RequestDoc, len(perm))
		for i, p := range perm {
			shuffled[i] = docs[p]
		}
		record, err := h.merge(ctx, root, s.Target, shuffled, false)
		if err != nil {
			result.AddError(fmt.Sprintf("permutations: order %v: %v", oneBased(perm), err))
			return false
		}
		if record.AfterHash != result.AfterHash {
			result.AddError(fmt.Sprintf("permutations: order %v yields a different model\n%s", oneBased(perm), RenderTree(root)))
			return false
		}
		return true
	})
}

// permute calls fn for every permutation of a (Heap's algorithm) until fn
// returns false. The first call sees a unchanged.
func permute(a []int, fn func([]int) bool) {
	c := make([]int, len(a))
	if !fn(a) {
		return
	}
	for i := 0; i < len(a); {
		if c[i] < i {
			if i%2 == 0 {
				a[0], a[i] = a[i], a[0]
			} else {
				a[c[i]], a[i] = a[i], a[c[i]]
			}
			if !fn(a) {
				return
			}
			c[i]++
			i = 0
		} else {
			c[i] = 0
			i++
		}
	}
}

func oneBased(perm []int) []int {
	out := make([]int, len(perm))
	for i, p := range perm {
		out[i] = p + 1
	}
	return out
}
