package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/model"
)

// InitialisationEvent is the name of a machine's initialisation event.
const InitialisationEvent = "INITIALISATION"

// Outcome is the result of applying one request.
type Outcome struct {
	Seq     int64
	Status  ir.ChangeStatus
	Index   int
	Request Request
}

// Run is one merge pass over a target model.
//
// Thread-safety model:
//   - Enqueue: safe from any goroutine
//   - Apply, Drain, Finish: one goroutine at a time; they mutate the tree
//
// A CYCLIC_MODEL error is fatal: every later Apply returns it again.
type Run struct {
	id      string
	engine  *Engine
	project *model.Element
	target  *model.Element
	order   ExtensionOrder
	storage Storage
	clock   *Clock
	quota   *QuotaEnforcer
	queue   *requestQueue

	record   ir.RunRecord
	changes  []ir.ChangeRecord
	accepted []Request
	fatal    error
	finished bool
}

func (r *Run) ID() string { return r.id }
func (r *Run) Project() *model.Element { return r.project }
func (r *Run) Target() *model.Element { return r.target }
func (r *Run) Order() ExtensionOrder { return r.order }
func (r *Run) Storage() Storage { return r.storage }
func (r *Run) Changes() []ir.ChangeRecord { return append([]ir.ChangeRecord(nil), r.changes...) }

// Accepted returns the accepted insertion requests in application order.
func (r *Run) Accepted() []Request { return append([]Request(nil), r.accepted...) }

// TranslationTarget returns the component stored under TranslationTargetKey.
func (r *Run) TranslationTarget() *model.Element {
	v, ok := r.storage.Fetch(TranslationTargetKey)
	if !ok {
		return nil
	}
	e, _ := v.(*model.Element)
	return e
}

// InitialisationEvent returns the INITIALISATION event of the target
// machine, or nil when the target is not a machine or has none.
func (r *Run) InitialisationEvent() *model.Element {
	t := r.TranslationTarget()
	if t == nil || t.Kind() != model.KindMachine {
		return nil
	}
	return model.FindKind(t.Values(model.FeatureEvents), model.KindEvent, InitialisationEvent)
}

// Enqueue submits a request for the next Drain. Returns false once the run
// is finished. Safe from any goroutine.
func (r *Run) Enqueue(req Request) bool {
	return r.queue.Enqueue(req)
}

// Pending returns the number of queued requests.
func (r *Run) Pending() int {
	return r.queue.Len()
}

// Drain applies queued requests in FIFO order until the queue is empty, the
// context is cancelled or a request fails. Outcomes of the requests applied
// before a failure are returned along with the error.
func (r *Run) Drain(ctx context.Context) ([]Outcome, error) {
	var outcomes []Outcome
	for {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		req, ok := r.queue.TryDequeue()
		if !ok {
			return outcomes, nil
		}
		out, err := r.Apply(ctx, req)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, out)
	}
}

// Apply filters, places and inserts (or removes) a single request.
func (r *Run) Apply(ctx context.Context, req Request) (Outcome, error) {
	if r.fatal != nil {
		return Outcome{}, r.fatal
	}
	if r.finished {
		return Outcome{}, &RuntimeError{Code: ErrCodeRunClosed, Message: "run already finished", RunID: r.id}
	}
	if err := r.quota.Check(r.id); err != nil {
		r.engine.logger.Error("request quota exceeded",
			"run", r.id,
			"requests", r.quota.Current(),
			"limit", r.quota.MaxRequests(),
		)
		return Outcome{}, err
	}

	// The seq is claimed only once the change is recorded, so a failed
	// request leaves no gap in the log.
	seq := r.clock.Current() + 1
	doc := req.Doc()

	parent := req.parent
	if parent == nil {
		parent = r.project
	}

	var out Outcome
	if req.remove {
		out = r.remove(parent, req)
	} else {
		ok, err := shouldAccept(req, r.engine.scopeRules)
		if err != nil {
			if IsCyclicModelError(err) {
				r.fatal = err
			}
			return Outcome{}, errors.Wrapf(err, "run %s: request %d", r.id, seq)
		}
		if ok {
			out, err = r.insert(parent, req)
			if err != nil {
				return Outcome{}, errors.Wrapf(err, "run %s: request %d", r.id, seq)
			}
		} else {
			out = Outcome{Status: ir.StatusSuppressed, Index: -1, Request: req}
		}
	}
	out.Seq = seq

	r.engine.logger.Debug("request applied",
		"run", r.id,
		"seq", seq,
		"status", out.Status,
		"parent", doc.Parent,
		"feature", doc.Feature,
		"index", out.Index,
		"generator", doc.Generator,
	)

	reqID, err := ir.RequestID(r.id, seq, doc)
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "run %s: request %d", r.id, seq)
	}
	change := ir.ChangeRecord{
		RunID:     r.id,
		Seq:       seq,
		RequestID: reqID,
		Status:    out.Status,
		Index:     int64(out.Index),
		Request:   doc,
	}
	r.clock.Next()
	r.changes = append(r.changes, change)

	if rec := r.engine.recorder; rec != nil {
		if err := rec.WriteChange(ctx, change); err != nil {
			return out, errors.Wrapf(err, "record change %d of run %s", seq, r.id)
		}
	}
	return out, nil
}

func (r *Run) insert(parent *model.Element, req Request) (Outcome, error) {
	// Tags feed Position, so they are written before placement; a value the
	// parent cannot take is rejected first so its tags stay untouched.
	if err := parent.CanInsert(req.feature, req.value); err != nil {
		return Outcome{}, err
	}
	if e, ok := req.value.(*model.Element); ok {
		if req.generatorID != "" {
			e.SetGeneratedBy(req.generatorID)
		}
		if req.priority != 0 {
			e.SetPriority(req.priority)
		}
		if req.source != "" {
			e.SetSourceElement(req.source)
		}
	}

	siblings := parent.Values(req.feature)
	idx := -1
	if req.before != nil {
		idx = parent.IndexOf(req.feature, req.before)
	}
	if idx < 0 {
		idx = Position(siblings, req.value, r.order, r.engine.tie)
	}

	if err := parent.InsertAt(req.feature, idx, req.value); err != nil {
		return Outcome{}, err
	}
	r.accepted = append(r.accepted, req)
	return Outcome{Status: ir.StatusAccepted, Index: idx, Request: req}, nil
}

// remove deletes the first value of the list matching the request value.
func (r *Run) remove(parent *model.Element, req Request) Outcome {
	for i, v := range parent.Values(req.feature) {
		if v == req.value || Matches(v, req.value) {
			// The index comes from the same list, so RemoveAt cannot fail.
			_, _ = parent.RemoveAt(req.feature, i)
			return Outcome{Status: ir.StatusRemoved, Index: i, Request: req}
		}
	}
	return Outcome{Status: ir.StatusNotFound, Index: -1, Request: req}
}

// Snapshot serializes the current project tree.
func (r *Run) Snapshot() ir.ElementDoc {
	return model.ToDoc(r.project)
}

// Finish closes the run: the queue stops accepting requests, forward
// references are resolved, and the final snapshot is hashed and recorded.
// Unresolved references are an UNRESOLVED_REFERENCE error; the tree is
// left as is so the caller can inspect it.
func (r *Run) Finish(ctx context.Context) (ir.RunRecord, error) {
	r.queue.Close()
	if r.fatal != nil {
		return r.record, r.fatal
	}
	if r.finished {
		return r.record, nil
	}

	if unresolved := model.ResolvePending(r.project); len(unresolved) > 0 {
		names := make([]string, 0, len(unresolved))
		for _, u := range unresolved {
			names = append(names, fmt.Sprintf("%s %s %s:%s", label(u.Owner), u.Relation, u.Proxy.Kind, u.Proxy.Name))
		}
		return r.record, &RuntimeError{
			Code:    ErrCodeUnresolvedReference,
			Message: fmt.Sprintf("%d forward reference(s) not found: %s", len(unresolved), strings.Join(names, "; ")),
			RunID:   r.id,
		}
	}

	after := r.Snapshot()
	hash, err := ir.SnapshotHash(after)
	if err != nil {
		return r.record, errors.Wrapf(err, "finish run %s", r.id)
	}
	r.record.AfterHash = hash
	r.record.Requests = r.clock.Current()

	if rec := r.engine.recorder; rec != nil {
		if err := rec.WriteSnapshot(ctx, r.id, PhaseAfter, after); err != nil {
			return r.record, errors.Wrapf(err, "record snapshot of run %s", r.id)
		}
		if err := rec.WriteRun(ctx, r.record); err != nil {
			return r.record, errors.Wrapf(err, "record run %s", r.id)
		}
	}

	r.finished = true
	r.engine.logger.Info("run finished",
		"run", r.id,
		"requests", r.record.Requests,
		"accepted", len(r.accepted),
		"after_hash", hash,
	)
	return r.record, nil
}
