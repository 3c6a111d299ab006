package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/genmerge/internal/ir"
)

// CompileRequests reads the request list of a CUE document:
//
//	request: [
//		{parent: "components:m1", feature: "invariants", priority: 2,
//		 value: {kind: "invariant", name: "inv2", predicate: "x ≤ 10"}},
//		{parent: "components:m1", feature: "variables", value: {kind: "variable", name: "y"}},
//		{parent: "components:m1/events:evt", feature: "guards", remove: true,
//		 value: {kind: "guard", name: "grd1", predicate: "x > 0"}},
//	]
//
// Parent and before are element paths into the target model. A missing
// request field yields an empty list.
func CompileRequests(v cue.Value) ([]ir.RequestDoc, error) {
	rv := v.LookupPath(cue.ParsePath("request"))
	if !rv.Exists() {
		return nil, nil
	}
	iter, err := rv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var docs []ir.RequestDoc
	for i := 0; iter.Next(); i++ {
		doc, err := compileRequest(i, iter.Value())
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func compileRequest(i int, v cue.Value) (ir.RequestDoc, error) {
	field := fmt.Sprintf("request[%d]", i)
	var doc ir.RequestDoc

	err := eachField(v, func(label string, fv cue.Value) error {
		var err error
		switch label {
		case "parent":
			doc.Parent, err = fv.String()
		case "feature":
			doc.Feature, err = fv.String()
		case "remove":
			doc.Remove, err = fv.Bool()
		case "priority":
			doc.Priority, err = fv.Int64()
		case "before":
			doc.Before, err = fv.String()
		case "source":
			doc.Source, err = fv.String()
		case "generator":
			doc.Generator, err = fv.String()
		case "value":
			doc.Value, err = compileValue(field+".value", fv)
			return err
		default:
			return &CompileError{
				Field:   field + "." + label,
				Message: "unknown request field",
				Pos:     fv.Pos(),
			}
		}
		if err != nil {
			return formatCUEError(err)
		}
		return nil
	})
	if err != nil {
		return ir.RequestDoc{}, err
	}

	if doc.Feature == "" {
		return ir.RequestDoc{}, &CompileError{Field: field + ".feature", Message: "feature is required", Pos: v.Pos()}
	}
	if doc.Value.Element == nil && doc.Value.Text == nil {
		return ir.RequestDoc{}, &CompileError{Field: field + ".value", Message: "value is required", Pos: v.Pos()}
	}
	return doc, nil
}

// compileValue reads {text: "..."} or an element struct with kind, name,
// predicate, action and flags. Nested features are given under features:
//
//	{kind: "event", name: "e", features: {guards: [{kind: "guard", name: "g", predicate: "x > 0"}]}}
func compileValue(field string, v cue.Value) (ir.ValueDoc, error) {
	if tv := v.LookupPath(cue.ParsePath("text")); tv.Exists() {
		s, err := tv.String()
		if err != nil {
			return ir.ValueDoc{}, formatCUEError(err)
		}
		return ir.Text(s), nil
	}
	e, err := compileElement(field, v)
	if err != nil {
		return ir.ValueDoc{}, err
	}
	return ir.ValueDoc{Element: e}, nil
}

func compileElement(field string, v cue.Value) (*ir.ElementDoc, error) {
	doc := &ir.ElementDoc{}
	attrs := ir.Attrs{}

	err := eachField(v, func(label string, fv cue.Value) error {
		var err error
		switch label {
		case "kind":
			doc.Kind, err = fv.String()
		case "name":
			doc.Name, err = fv.String()
		case "predicate":
			var s string
			s, err = fv.String()
			doc.Predicate = ir.StringPtr(s)
		case "action":
			var s string
			s, err = fv.String()
			doc.Action = ir.StringPtr(s)
		case "theorem", "extended":
			var b bool
			if b, err = fv.Bool(); err == nil {
				attrs[label] = ir.AttrBool(b)
			}
		case "comment", "convergence":
			var s string
			if s, err = fv.String(); err == nil {
				attrs[label] = ir.AttrString(s)
			}
		case "features":
			return eachField(fv, func(feature string, lv cue.Value) error {
				fd, err := compileFeature(field+"."+feature, feature, lv)
				if err != nil {
					return err
				}
				doc.Features = append(doc.Features, fd)
				return nil
			})
		case "refs":
			return eachField(fv, func(rel string, lv cue.Value) error {
				targets, err := stringOrList(lv)
				if err != nil {
					return err
				}
				doc.Refs = append(doc.Refs, ir.RefDoc{Relation: rel, Targets: targets})
				return nil
			})
		default:
			return &CompileError{
				Field:   field + "." + label,
				Message: "unknown value field",
				Pos:     fv.Pos(),
			}
		}
		if err != nil {
			return formatCUEError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if doc.Kind == "" {
		return nil, &CompileError{Field: field + ".kind", Message: "value needs a kind or a text field", Pos: v.Pos()}
	}
	if len(attrs) > 0 {
		doc.Attrs = attrs
	}
	return doc, nil
}

func compileFeature(field, name string, v cue.Value) (ir.FeatureDoc, error) {
	iter, err := v.List()
	if err != nil {
		return ir.FeatureDoc{}, formatCUEError(err)
	}
	fd := ir.FeatureDoc{Name: name}
	for i := 0; iter.Next(); i++ {
		vd, err := compileValue(fmt.Sprintf("%s[%d]", field, i), iter.Value())
		if err != nil {
			return ir.FeatureDoc{}, err
		}
		fd.Values = append(fd.Values, vd)
	}
	return fd, nil
}
