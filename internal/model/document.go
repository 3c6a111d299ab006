package model

import (
	"github.com/cockroachdb/errors"

	"github.com/roach88/genmerge/internal/ir"
)

// ToDoc serializes e and its subtree. Empty containment lists are omitted so
// that a list emptied by removals encodes the same as one never populated.
func ToDoc(e *Element) ir.ElementDoc {
	doc := ir.ElementDoc{
		Kind:      string(e.kind),
		Name:      e.name,
		Predicate: copyString(e.predicate),
		Action:    copyString(e.action),
	}
	if len(e.attrs) > 0 {
		doc.Attrs = e.attrs.Clone()
	}

	for _, f := range e.features {
		list := e.children[f]
		if len(list) == 0 {
			continue
		}
		fd := ir.FeatureDoc{Name: string(f), Values: make([]ir.ValueDoc, 0, len(list))}
		for _, v := range list {
			fd.Values = append(fd.Values, ValueToDoc(v))
		}
		doc.Features = append(doc.Features, fd)
	}

	for _, rel := range e.relations {
		rd := ir.RefDoc{Relation: string(rel)}
		for _, t := range e.refs[rel] {
			rd.Targets = append(rd.Targets, PathOf(t))
		}
		doc.Refs = append(doc.Refs, rd)
	}
	return doc
}

// ValueToDoc serializes a single containment value.
func ValueToDoc(v Value) ir.ValueDoc {
	switch val := v.(type) {
	case *Element:
		d := ToDoc(val)
		return ir.ValueDoc{Element: &d}
	case Text:
		return ir.Text(string(val))
	}
	return ir.ValueDoc{}
}

type deferredRef struct {
	owner *Element
	rel   Relation
	path  string
}

// FromDoc rebuilds a tree from its document. Reference paths are resolved
// against the rebuilt root once the whole tree exists.
func FromDoc(doc ir.ElementDoc) (*Element, error) {
	var refs []deferredRef
	root, err := fromDoc(doc, &refs)
	if err != nil {
		return nil, err
	}
	for _, r := range refs {
		target, err := Resolve(root, r.path)
		if err != nil {
			return nil, errors.Wrapf(err, "%s reference of %q", r.rel, r.owner.name)
		}
		r.owner.AddRef(r.rel, target)
	}
	return root, nil
}

// ValueFromDoc rebuilds a detached value. References inside an element value
// are resolved against target, which is normally the tree the value will be
// merged into.
func ValueFromDoc(doc ir.ValueDoc, target *Element) (Value, error) {
	switch {
	case doc.Element != nil && doc.Text != nil:
		return nil, errors.New("value has both element and text")
	case doc.Text != nil:
		return Text(*doc.Text), nil
	case doc.Element != nil:
		var refs []deferredRef
		e, err := fromDoc(*doc.Element, &refs)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			t, err := Resolve(target, r.path)
			if err != nil {
				return nil, errors.Wrapf(err, "%s reference of %q", r.rel, r.owner.name)
			}
			r.owner.AddRef(r.rel, t)
		}
		return e, nil
	}
	return nil, errors.New("value has neither element nor text")
}

func fromDoc(doc ir.ElementDoc, refs *[]deferredRef) (*Element, error) {
	if doc.Kind == "" {
		return nil, errors.Newf("element %q has no kind", doc.Name)
	}
	e := New(Kind(doc.Kind), doc.Name)
	e.predicate = copyString(doc.Predicate)
	e.action = copyString(doc.Action)
	for k, v := range doc.Attrs {
		e.attrs[k] = v
	}

	for _, fd := range doc.Features {
		for i, vd := range fd.Values {
			var v Value
			switch {
			case vd.Element != nil && vd.Text != nil:
				return nil, errors.Newf("%s[%d] of %q has both element and text", fd.Name, i, doc.Name)
			case vd.Text != nil:
				v = Text(*vd.Text)
			case vd.Element != nil:
				child, err := fromDoc(*vd.Element, refs)
				if err != nil {
					return nil, err
				}
				v = child
			default:
				return nil, errors.Newf("%s[%d] of %q is empty", fd.Name, i, doc.Name)
			}
			if err := e.Append(Feature(fd.Name), v); err != nil {
				return nil, err
			}
		}
	}

	for _, rd := range doc.Refs {
		for _, p := range rd.Targets {
			*refs = append(*refs, deferredRef{owner: e, rel: Relation(rd.Relation), path: p})
		}
	}
	return e, nil
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
