package engine

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/model"
)

// Recorder persists the log of a run. Implemented by *store.Store.
// Every method is called from the goroutine driving the run.
type Recorder interface {
	WriteRun(ctx context.Context, run ir.RunRecord) error
	WriteSnapshot(ctx context.Context, runID, phase string, doc ir.ElementDoc) error
	WriteChange(ctx context.Context, change ir.ChangeRecord) error
}

// Snapshot phases passed to Recorder.WriteSnapshot.
const (
	PhaseBefore = "before"
	PhaseAfter  = "after"
)

// Engine holds the configuration shared by runs. It has no mutable state of
// its own; each BeginRun returns an independent Run.
type Engine struct {
	logger      *slog.Logger
	scopeRules  []ScopeRule
	tie         TieBreak
	maxRequests int
	runIDs      RunIDGenerator
	recorder    Recorder
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithScopeRules replaces the global-constraint rules used by the duplicate
// filter. Default: DefaultScopeRules().
func WithScopeRules(rules ...ScopeRule) EngineOption {
	return func(e *Engine) {
		e.scopeRules = append([]ScopeRule(nil), rules...)
	}
}

// WithTieBreak sets the placement of a new element among equally ranked
// siblings. Default: TieAfterEqual.
func WithTieBreak(t TieBreak) EngineOption {
	return func(e *Engine) { e.tie = t }
}

// WithMaxRequests sets the per-run request quota.
//
// Default: 10000 (DefaultMaxRequests). Zero or negative disables the quota.
func WithMaxRequests(n int) EngineOption {
	return func(e *Engine) { e.maxRequests = n }
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) { e.runIDs = g }
}

// WithRecorder persists runs, snapshots and changes through r.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// New creates an Engine.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		logger:      slog.Default(),
		scopeRules:  DefaultScopeRules(),
		tie:         TieAfterEqual,
		maxRequests: DefaultMaxRequests,
		runIDs:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TieBreak returns the configured tie break.
func (e *Engine) TieBreak() TieBreak { return e.tie }

// BeginRun starts a run that merges into project.
//
// target is the component being generated; the extension index is built over
// it and it is stored under TranslationTargetKey. A nil target means the whole
// project. target must belong to project's tree.
func (e *Engine) BeginRun(ctx context.Context, project, target *model.Element) (*Run, error) {
	if project == nil {
		return nil, errors.New("begin run: nil project")
	}
	if target == nil {
		target = project
	}
	if target.Root() != project.Root() {
		return nil, errors.Newf("begin run: target %q is not part of project %q", target.Name(), project.Name())
	}

	r := &Run{
		id:      e.runIDs.Generate(),
		engine:  e,
		project: project,
		target:  target,
		order:   BuildIndex(target),
		storage: NewRunStorage(),
		clock:   NewClock(),
		quota:   NewQuotaEnforcer(e.maxRequests),
		queue:   newRequestQueue(),
	}
	r.storage.Reset(target)

	before := model.ToDoc(project)
	hash, err := ir.SnapshotHash(before)
	if err != nil {
		return nil, errors.Wrap(err, "begin run")
	}
	r.record = ir.RunRecord{
		ID:            r.id,
		Target:        model.PathOf(target),
		TieBreak:      e.tie.String(),
		BeforeHash:    hash,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}

	if e.recorder != nil {
		if err := e.recorder.WriteRun(ctx, r.record); err != nil {
			return nil, errors.Wrapf(err, "record run %s", r.id)
		}
		if err := e.recorder.WriteSnapshot(ctx, r.id, PhaseBefore, before); err != nil {
			return nil, errors.Wrapf(err, "record snapshot of run %s", r.id)
		}
	}

	e.logger.Info("run started",
		"run", r.id,
		"target", r.record.Target,
		"extensions", r.order.Len(),
		"tie_break", r.record.TieBreak,
	)
	return r, nil
}
