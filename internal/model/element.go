package model

import (
	"github.com/cockroachdb/errors"

	"github.com/roach88/genmerge/internal/ir"
)

// Value is an entry of a containment list: an *Element or a Text.
type Value interface {
	isValue()
}

// Text is a plain string value held in a containment list.
type Text string

func (Text) isValue() {}
func (*Element) isValue() {}

// Element is a node of a model tree.
//
// Containment lists are ordered and keyed by Feature. The order features were
// first populated is kept so that serialization is stable. Non-containment
// references (refines, sees, extends, references) are ordered per relation.
//
// Element is not safe for concurrent mutation; a tree is owned by one run.
type Element struct {
	kind      Kind
	name      string
	predicate *string
	action    *string
	attrs     ir.Attrs

	parent  *Element
	feature Feature

	features []Feature
	children map[Feature][]Value

	relations []Relation
	refs      map[Relation][]*Element

	pending []pendingRef
}

type pendingRef struct {
	rel   Relation
	proxy Proxy
}

// New creates a detached element.
func New(kind Kind, name string) *Element {
	return &Element{
		kind:     kind,
		name:     name,
		attrs:    ir.Attrs{},
		children: make(map[Feature][]Value),
		refs:     make(map[Relation][]*Element),
	}
}

func (e *Element) Kind() Kind { return e.kind }
func (e *Element) Name() string { return e.name }

// SetName renames the element.
func (e *Element) SetName(name string) { e.name = name }

// Predicate returns the predicate text and whether one is set.
func (e *Element) Predicate() (string, bool) {
	if e.predicate == nil {
		return "", false
	}
	return *e.predicate, true
}

// SetPredicate sets the predicate text.
func (e *Element) SetPredicate(p string) { e.predicate = &p }

// Action returns the action text and whether one is set.
func (e *Element) Action() (string, bool) {
	if e.action == nil {
		return "", false
	}
	return *e.action, true
}

// SetAction sets the action text.
func (e *Element) SetAction(a string) { e.action = &a }

// Parent returns the containing element, nil for a root or detached element.
func (e *Element) Parent() *Element { return e.parent }

// ContainingFeature returns the feature of the parent that holds e.
func (e *Element) ContainingFeature() Feature { return e.feature }

// Root walks up the containment chain.
func (e *Element) Root() *Element {
	cur := e
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Containing returns the nearest proper ancestor of the given kind, or nil.
func (e *Element) Containing(kind Kind) *Element {
	for cur := e.parent; cur != nil; cur = cur.parent {
		if cur.kind == kind {
			return cur
		}
	}
	return nil
}

// Features returns the populated features in first-use order.
func (e *Element) Features() []Feature {
	out := make([]Feature, len(e.features))
	copy(out, e.features)
	return out
}

// Values returns a copy of the containment list for f.
func (e *Element) Values(f Feature) []Value {
	list := e.children[f]
	out := make([]Value, len(list))
	copy(out, list)
	return out
}

// Len returns the length of the containment list for f.
func (e *Element) Len(f Feature) int {
	return len(e.children[f])
}

// CanInsert reports why v could not be inserted into the list for f, or nil
// if InsertAt would succeed. It does not modify e or v.
func (e *Element) CanInsert(f Feature, v Value) error {
	if v == nil {
		return errors.Newf("insert into %s: nil value", f)
	}
	child, isElement := v.(*Element)
	if !isElement {
		return nil
	}
	if child == nil {
		return errors.Newf("insert into %s: nil element", f)
	}
	if child.parent != nil {
		return errors.Newf("insert into %s: element %q is already contained in %s", f, child.name, child.feature)
	}
	for cur := e; cur != nil; cur = cur.parent {
		if cur == child {
			return errors.Newf("insert into %s: element %q would contain itself", f, child.name)
		}
	}
	return nil
}

// InsertAt inserts v into the list for f at idx. idx is clamped to the list
// bounds. An element that already has a parent cannot be inserted.
func (e *Element) InsertAt(f Feature, idx int, v Value) error {
	if err := e.CanInsert(f, v); err != nil {
		return err
	}
	child, isElement := v.(*Element)

	list, seen := e.children[f]
	if !seen {
		e.features = append(e.features, f)
	}
	if idx < 0 {
		idx = 0
	}
	if idx > len(list) {
		idx = len(list)
	}

	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = v
	e.children[f] = list

	if isElement {
		child.parent = e
		child.feature = f
	}
	return nil
}

// Append adds v at the end of the list for f.
func (e *Element) Append(f Feature, v Value) error {
	return e.InsertAt(f, e.Len(f), v)
}

// MustAppend is like Append but panics on error. Used by builders and tests.
func (e *Element) MustAppend(f Feature, vs ...Value) *Element {
	for _, v := range vs {
		if err := e.Append(f, v); err != nil {
			panic(err)
		}
	}
	return e
}

// RemoveAt removes and returns the value at idx of the list for f.
func (e *Element) RemoveAt(f Feature, idx int) (Value, error) {
	list := e.children[f]
	if idx < 0 || idx >= len(list) {
		return nil, errors.Newf("remove from %s: index %d out of range [0,%d)", f, idx, len(list))
	}
	v := list[idx]
	e.children[f] = append(list[:idx], list[idx+1:]...)
	if child, ok := v.(*Element); ok {
		child.parent = nil
		child.feature = ""
	}
	return v, nil
}

// IndexOf returns the position of v in the list for f, -1 if absent.
// Elements compare by identity, text by value.
func (e *Element) IndexOf(f Feature, v Value) int {
	for i, cur := range e.children[f] {
		if cur == v {
			return i
		}
	}
	return -1
}

// AddRef appends target to the reference list rel.
func (e *Element) AddRef(rel Relation, target *Element) {
	if _, ok := e.refs[rel]; !ok {
		e.relations = append(e.relations, rel)
	}
	e.refs[rel] = append(e.refs[rel], target)
}

// Refs returns the targets of relation rel in insertion order.
func (e *Element) Refs(rel Relation) []*Element {
	list := e.refs[rel]
	out := make([]*Element, len(list))
	copy(out, list)
	return out
}

// Relations returns the populated relations in first-use order.
func (e *Element) Relations() []Relation {
	out := make([]Relation, len(e.relations))
	copy(out, e.relations)
	return out
}

// Attr returns the raw attribute value for key.
func (e *Element) Attr(key string) (ir.AttrValue, bool) {
	v, ok := e.attrs[key]
	return v, ok
}

// SetAttr sets an attribute.
func (e *Element) SetAttr(key string, v ir.AttrValue) {
	e.attrs[key] = v
}

// Attrs returns a copy of the attribute map.
func (e *Element) Attrs() ir.Attrs {
	return e.attrs.Clone()
}

// AllContained returns every element below e in pre-order.
// Features are visited in first-use order and lists front to back.
func (e *Element) AllContained() []*Element {
	var out []*Element
	var walk func(*Element)
	walk = func(cur *Element) {
		for _, f := range cur.features {
			for _, v := range cur.children[f] {
				if child, ok := v.(*Element); ok {
					out = append(out, child)
					walk(child)
				}
			}
		}
	}
	walk(e)
	return out
}
