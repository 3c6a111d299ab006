package model

import "github.com/roach88/genmerge/internal/ir"

// Option configures an element built by one of the factory functions.
type Option func(*Element)

// WithComment sets the comment attribute.
func WithComment(c string) Option {
	return func(e *Element) {
		if c != "" {
			e.SetComment(c)
		}
	}
}

// AsTheorem marks a predicate element as a theorem.
func AsTheorem() Option {
	return func(e *Element) { e.SetAttr(AttrTheorem, ir.AttrBool(true)) }
}

// AsExtended marks an event as extending the event it refines.
func AsExtended() Option {
	return func(e *Element) { e.SetExtended(true) }
}

// WithConvergence sets an event's convergence (ordinary, convergent, anticipated).
func WithConvergence(c string) Option {
	return func(e *Element) { e.SetConvergence(c) }
}

// Refining adds refines references.
func Refining(targets ...*Element) Option {
	return func(e *Element) {
		for _, t := range targets {
			e.AddRef(RelRefines, t)
		}
	}
}

// Seeing adds sees references.
func Seeing(targets ...*Element) Option {
	return func(e *Element) {
		for _, t := range targets {
			e.AddRef(RelSees, t)
		}
	}
}

// Extending adds extends references.
func Extending(targets ...*Element) Option {
	return func(e *Element) {
		for _, t := range targets {
			e.AddRef(RelExtends, t)
		}
	}
}

// Referencing adds references to other extensions.
func Referencing(targets ...*Element) Option {
	return func(e *Element) {
		for _, t := range targets {
			e.AddRef(RelReferences, t)
		}
	}
}

func generated(kind Kind, name string, opts []Option) *Element {
	e := New(kind, name)
	e.SetLocalGenerated(true)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewProject creates an empty project root. Projects are containers, not
// generated content, so they carry no provenance.
func NewProject(name string) *Element {
	return New(KindProject, name)
}

func NewMachine(name string, opts ...Option) *Element {
	return generated(KindMachine, name, opts)
}

func NewContext(name string, opts ...Option) *Element {
	return generated(KindContext, name, opts)
}

func NewEvent(name string, opts ...Option) *Element {
	return generated(KindEvent, name, opts)
}

func NewVariable(name string, opts ...Option) *Element {
	return generated(KindVariable, name, opts)
}

func NewParameter(name string, opts ...Option) *Element {
	return generated(KindParameter, name, opts)
}

func NewCarrierSet(name string, opts ...Option) *Element {
	return generated(KindCarrierSet, name, opts)
}

func NewConstant(name string, opts ...Option) *Element {
	return generated(KindConstant, name, opts)
}

// NewExtension creates an extension element. The id is stored as its name.
func NewExtension(id string, opts ...Option) *Element {
	return generated(KindExtension, id, opts)
}

func NewInvariant(name, predicate string, opts ...Option) *Element {
	e := generated(KindInvariant, name, opts)
	e.SetPredicate(predicate)
	return e
}

func NewAxiom(name, predicate string, opts ...Option) *Element {
	e := generated(KindAxiom, name, opts)
	e.SetPredicate(predicate)
	return e
}

func NewGuard(name, predicate string, opts ...Option) *Element {
	e := generated(KindGuard, name, opts)
	e.SetPredicate(predicate)
	return e
}

func NewWitness(name, predicate string, opts ...Option) *Element {
	e := generated(KindWitness, name, opts)
	e.SetPredicate(predicate)
	return e
}

func NewAction(name, action string, opts ...Option) *Element {
	e := generated(KindAction, name, opts)
	e.SetAction(action)
	return e
}
