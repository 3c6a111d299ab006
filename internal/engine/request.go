package engine

import (
	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/model"
)

// Request is a proposal to add a value to, or remove it from, a containment
// list of the target model. Requests are immutable after construction.
type Request struct {
	parent      *model.Element
	feature     model.Feature
	value       model.Value
	remove      bool
	priority    int64
	before      model.Value
	source      string
	generatorID string
}

// RequestOption configures a Request.
type RequestOption func(*Request)

// WithPriority sets the placement priority. Higher priorities are placed
// earlier; the default is 0.
func WithPriority(p int64) RequestOption {
	return func(r *Request) { r.priority = p }
}

// WithBefore places the value directly before the given sibling, bypassing
// the computed position.
func WithBefore(sibling model.Value) RequestOption {
	return func(r *Request) { r.before = sibling }
}

// WithSource records the source element the value was derived from.
func WithSource(src *model.Element) RequestOption {
	return func(r *Request) {
		if src != nil {
			r.source = model.PathOf(src)
		}
	}
}

// WithSourceRef records an already formatted source reference.
func WithSourceRef(ref string) RequestOption {
	return func(r *Request) { r.source = ref }
}

// WithGenerator records the id of the generator rule proposing the value.
func WithGenerator(id string) RequestOption {
	return func(r *Request) { r.generatorID = id }
}

// NewRequest creates an insertion request.
//
// A nil parent addresses the run's project root and is only valid for the
// components feature.
func NewRequest(parent *model.Element, feature model.Feature, value model.Value, opts ...RequestOption) (Request, error) {
	return newRequest(parent, feature, value, false, opts)
}

// NewRemoval creates a removal request. Removals may not carry a before
// sibling.
func NewRemoval(parent *model.Element, feature model.Feature, value model.Value, opts ...RequestOption) (Request, error) {
	return newRequest(parent, feature, value, true, opts)
}

// MustRequest is like NewRequest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRequest(parent *model.Element, feature model.Feature, value model.Value, opts ...RequestOption) Request {
	r, err := NewRequest(parent, feature, value, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

func newRequest(parent *model.Element, feature model.Feature, value model.Value, remove bool, opts []RequestOption) (Request, error) {
	r := Request{parent: parent, feature: feature, value: value, remove: remove}
	for _, opt := range opts {
		opt(&r)
	}

	switch {
	case feature == "":
		return Request{}, NewMalformedRequestError("request has no feature")
	case isNilValue(value):
		return Request{}, NewMalformedRequestError("request for %s has no value", feature)
	case remove && r.before != nil:
		return Request{}, NewMalformedRequestError("removal from %s cannot specify a before sibling", feature)
	case parent == nil && feature != model.FeatureComponents:
		return Request{}, NewMalformedRequestError("request without parent must target %s, got %s", model.FeatureComponents, feature)
	}
	return r, nil
}

func isNilValue(v model.Value) bool {
	if v == nil {
		return true
	}
	e, ok := v.(*model.Element)
	return ok && e == nil
}

func (r Request) Parent() *model.Element { return r.parent }
func (r Request) Feature() model.Feature { return r.feature }
func (r Request) Value() model.Value { return r.value }
func (r Request) IsRemoval() bool { return r.remove }
func (r Request) Priority() int64 { return r.priority }
func (r Request) Before() model.Value { return r.before }
func (r Request) Source() string { return r.source }
func (r Request) GeneratorID() string { return r.generatorID }

// Doc serializes the request. Parent and before become element paths.
func (r Request) Doc() ir.RequestDoc {
	doc := ir.RequestDoc{
		Feature:   string(r.feature),
		Value:     model.ValueToDoc(r.value),
		Remove:    r.remove,
		Priority:  r.priority,
		Source:    r.source,
		Generator: r.generatorID,
	}
	if r.parent != nil {
		doc.Parent = model.PathOf(r.parent)
	}
	if e, ok := r.before.(*model.Element); ok && e != nil {
		doc.Before = model.PathOf(e)
	}
	return doc
}

// ResolveRequest rebuilds a request against the tree rooted at project.
func ResolveRequest(project *model.Element, doc ir.RequestDoc) (Request, error) {
	var parent *model.Element
	if doc.Parent != "" {
		p, err := model.Resolve(project, doc.Parent)
		if err != nil {
			return Request{}, &RuntimeError{
				Code:    ErrCodeMissingParent,
				Message: err.Error(),
				Path:    doc.Parent,
			}
		}
		parent = p
	}

	value, err := model.ValueFromDoc(doc.Value, project)
	if err != nil {
		return Request{}, NewMalformedRequestError("value for %s: %v", doc.Feature, err)
	}

	opts := []RequestOption{
		WithPriority(doc.Priority),
		WithSourceRef(doc.Source),
		WithGenerator(doc.Generator),
	}
	if doc.Before != "" {
		b, err := model.Resolve(project, doc.Before)
		if err != nil {
			return Request{}, NewMalformedRequestError("before sibling: %v", err)
		}
		opts = append(opts, WithBefore(b))
	}

	if doc.Remove {
		return NewRemoval(parent, model.Feature(doc.Feature), value, opts...)
	}
	return NewRequest(parent, model.Feature(doc.Feature), value, opts...)
}
