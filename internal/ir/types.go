package ir

// ElementDoc is the serialized form of a model element and its subtree.
//
// Containment is a list of features, each with an ordered value list, so the
// document preserves insertion order exactly. Non-containment references are
// stored as element paths and resolved after the whole tree is rebuilt.
type ElementDoc struct {
	Kind      string       `json:"kind"`
	Name      string       `json:"name,omitempty"`
	Predicate *string      `json:"predicate,omitempty"`
	Action    *string      `json:"action,omitempty"`
	Attrs     Attrs        `json:"attrs,omitempty"`
	Features  []FeatureDoc `json:"features,omitempty"`
	Refs      []RefDoc     `json:"refs,omitempty"`
}

// FeatureDoc is one containment feature and its ordered values.
type FeatureDoc struct {
	Name   string     `json:"name"`
	Values []ValueDoc `json:"values,omitempty"`
}

// ValueDoc is either an element or a text value. Exactly one field is set.
type ValueDoc struct {
	Element *ElementDoc `json:"element,omitempty"`
	Text    *string     `json:"text,omitempty"`
}

// RefDoc is a non-containment relation and its targets as element paths.
type RefDoc struct {
	Relation string   `json:"relation"`
	Targets  []string `json:"targets,omitempty"`
}

// RequestDoc is the serialized form of a generation request.
//
// Parent and Before are element paths into the target model. An empty Parent
// addresses the project root.
type RequestDoc struct {
	Parent    string   `json:"parent,omitempty"`
	Feature   string   `json:"feature"`
	Value     ValueDoc `json:"value"`
	Remove    bool     `json:"remove,omitempty"`
	Priority  int64    `json:"priority,omitempty"`
	Before    string   `json:"before,omitempty"`
	Source    string   `json:"source,omitempty"`
	Generator string   `json:"generator,omitempty"`
}

// ChangeStatus is the outcome of applying one request.
type ChangeStatus string

const (
	StatusAccepted   ChangeStatus = "accepted"
	StatusSuppressed ChangeStatus = "suppressed"
	StatusRemoved    ChangeStatus = "removed"
	StatusNotFound   ChangeStatus = "not_found"
)

// ChangeRecord is the log entry written for every applied request.
// Index is the insertion or removal index, -1 when nothing changed.
type ChangeRecord struct {
	RunID     string       `json:"run_id"`
	Seq       int64        `json:"seq"`
	RequestID string       `json:"request_id"`
	Status    ChangeStatus `json:"status"`
	Index     int64        `json:"index"`
	Request   RequestDoc   `json:"request"`
}

// RunRecord describes one engine run.
type RunRecord struct {
	ID            string `json:"id"`
	Target        string `json:"target"`
	TieBreak      string `json:"tie_break"`
	BeforeHash    string `json:"before_hash,omitempty"`
	AfterHash     string `json:"after_hash,omitempty"`
	Requests      int64  `json:"requests"`
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
}

// Text returns a ValueDoc holding s.
func Text(s string) ValueDoc {
	return ValueDoc{Text: &s}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
