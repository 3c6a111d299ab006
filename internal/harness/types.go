package harness

import (
	"fmt"

	"github.com/roach88/genmerge/internal/ir"
)

// TraceEvent is one entry of a run's change log, flattened for assertions
// and reports.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Status    string `json:"status"`
	Index     int64  `json:"index"`
	Parent    string `json:"parent,omitempty"`
	Feature   string `json:"feature"`
	Value     string `json:"value"`
	Remove    bool   `json:"remove,omitempty"`
	Generator string `json:"generator,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all step expectations, assertions and whole-run checks hold.
	Pass bool `json:"pass"`

	// RunID is the id of the recorded run.
	RunID string `json:"run_id"`

	// Trace is the change log of the run in seq order, read back from the store.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Tree is the rendered model after the run, as compared by golden files.
	Tree string `json:"tree"`

	// AfterHash is the snapshot hash of the model after the run.
	AfterHash string `json:"after_hash"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// traceFromChanges converts stored change records to trace events.
func traceFromChanges(changes []ir.ChangeRecord) []TraceEvent {
	trace := make([]TraceEvent, 0, len(changes))
	for _, c := range changes {
		trace = append(trace, TraceEvent{
			Seq:       c.Seq,
			Status:    string(c.Status),
			Index:     c.Index,
			Parent:    c.Request.Parent,
			Feature:   c.Request.Feature,
			Value:     ValueLabel(c.Request.Value),
			Remove:    c.Request.Remove,
			Generator: c.Request.Generator,
		})
	}
	return trace
}

// ValueLabel names a value the way assertions refer to it: an element by
// its name (or kind when unnamed), a text value by its text.
func ValueLabel(v ir.ValueDoc) string {
	switch {
	case v.Text != nil:
		return *v.Text
	case v.Element != nil && v.Element.Name != "":
		return v.Element.Name
	case v.Element != nil:
		return v.Element.Kind
	}
	return ""
}

func (e TraceEvent) String() string {
	op, prep := "add", "to"
	if e.Remove {
		op, prep = "remove", "from"
	}
	return fmt.Sprintf("#%d %s %s %s %s.%s: %s (index %d)", e.Seq, op, e.Value, prep, e.Parent, e.Feature, e.Status, e.Index)
}
