package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/model"
)

// CompileModel builds a target model tree from a CUE document.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The document has an optional project name and two maps of components:
//
//	project: "traffic"
//	context: c0: {
//		sets: ["COLOUR"]
//		axioms: axm1: "COLOUR ≠ ∅"
//	}
//	machine: m1: {
//		refines: "m0"
//		sees: ["c0"]
//		variables: ["light"]
//		invariants: inv1: {predicate: "light ∈ COLOUR", theorem: false}
//		events: evt: {extended: true, refines: "evt", guards: grd1: "light = red"}
//		extensions: [{id: "a", references: ["b"]}]
//	}
//
// Contexts are added to the project before machines; within each map and
// list, declaration order is kept. Names in refines, sees and extends are
// resolved once every component exists.
func CompileModel(v cue.Value) (*model.Element, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	name := "project"
	if pv := v.LookupPath(cue.ParsePath("project")); pv.Exists() {
		s, err := pv.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		name = s
	}

	b := &modelBuilder{project: model.NewProject(name)}

	for _, section := range []struct {
		label string
		kind  model.Kind
	}{
		{"context", model.KindContext},
		{"machine", model.KindMachine},
	} {
		sv := v.LookupPath(cue.ParsePath(section.label))
		if !sv.Exists() {
			continue
		}
		err := eachField(sv, func(label string, cv cue.Value) error {
			c, err := b.component(section.kind, label, cv)
			if err != nil {
				return err
			}
			return b.project.Append(model.FeatureComponents, c)
		})
		if err != nil {
			return nil, err
		}
	}

	if err := b.link(); err != nil {
		return nil, err
	}
	return b.project, nil
}

// modelBuilder collects name references while the tree is built and binds
// them in link.
type modelBuilder struct {
	project *model.Element
	links   []nameLink
}

type relationField struct {
	rel  model.Relation
	kind model.Kind
}

type childField struct {
	feature model.Feature
	kind    model.Kind
}

type nameLink struct {
	owner *model.Element
	rel   model.Relation
	kind  model.Kind
	name  string
	pos   token.Pos
	// scope resolves the name for event refinement, which is relative to
	// the refined machine.
	scope func() (*model.Element, error)
}

func (b *modelBuilder) component(kind model.Kind, name string, v cue.Value) (*model.Element, error) {
	c := model.New(kind, name)
	if err := readCommon(c, v); err != nil {
		return nil, err
	}

	var (
		relations map[string]relationField
		lists     map[string]childField
		labelled  map[string]childField
	)

	switch kind {
	case model.KindMachine:
		relations = map[string]relationField{
			"refines": {model.RelRefines, model.KindMachine},
			"sees":    {model.RelSees, model.KindContext},
		}
		lists = map[string]childField{
			"variables": {model.FeatureVariables, model.KindVariable},
		}
		labelled = map[string]childField{
			"invariants": {model.FeatureInvariants, model.KindInvariant},
		}
	case model.KindContext:
		relations = map[string]relationField{
			"extends": {model.RelExtends, model.KindContext},
		}
		lists = map[string]childField{
			"sets":      {model.FeatureSets, model.KindCarrierSet},
			"constants": {model.FeatureConstants, model.KindConstant},
		}
		labelled = map[string]childField{
			"axioms": {model.FeatureAxioms, model.KindAxiom},
		}
	}

	// Walk the fields in declaration order so features appear in the order
	// the author wrote them.
	err := eachField(v, func(label string, fv cue.Value) error {
		if r, ok := relations[label]; ok {
			names, err := stringOrList(fv)
			if err != nil {
				return err
			}
			for _, n := range names {
				b.links = append(b.links, nameLink{owner: c, rel: r.rel, kind: r.kind, name: n, pos: fv.Pos()})
			}
			return nil
		}
		if l, ok := lists[label]; ok {
			names, err := stringOrList(fv)
			if err != nil {
				return err
			}
			for _, n := range names {
				if err := c.Append(l.feature, model.New(l.kind, n)); err != nil {
					return err
				}
			}
			return nil
		}
		if l, ok := labelled[label]; ok {
			return eachField(fv, func(entry string, ev cue.Value) error {
				e, err := labelledElement(l.kind, entry, ev)
				if err != nil {
					return err
				}
				return c.Append(l.feature, e)
			})
		}
		switch label {
		case "extensions":
			return b.extensions(c, fv)
		case "events":
			if kind != model.KindMachine {
				break
			}
			return eachField(fv, func(entry string, ev cue.Value) error {
				e, err := b.event(c, entry, ev)
				if err != nil {
					return err
				}
				return c.Append(model.FeatureEvents, e)
			})
		case "comment", "generated_by", "priority":
			return nil
		}
		return &CompileError{
			Field:   fmt.Sprintf("%s.%s.%s", kind, name, label),
			Message: fmt.Sprintf("unknown field for %s", kind),
			Pos:     fv.Pos(),
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (b *modelBuilder) event(machine *model.Element, name string, v cue.Value) (*model.Element, error) {
	e := model.New(model.KindEvent, name)
	if err := readCommon(e, v); err != nil {
		return nil, err
	}

	labelled := map[string]childField{
		"guards":    {model.FeatureGuards, model.KindGuard},
		"witnesses": {model.FeatureWitnesses, model.KindWitness},
		"actions":   {model.FeatureActions, model.KindAction},
	}

	err := eachField(v, func(label string, fv cue.Value) error {
		if l, ok := labelled[label]; ok {
			return eachField(fv, func(entry string, ev cue.Value) error {
				child, err := labelledElement(l.kind, entry, ev)
				if err != nil {
					return err
				}
				return e.Append(l.feature, child)
			})
		}
		switch label {
		case "extended":
			x, err := fv.Bool()
			if err != nil {
				return formatCUEError(err)
			}
			e.SetExtended(x)
		case "convergence":
			s, err := fv.String()
			if err != nil {
				return formatCUEError(err)
			}
			e.SetConvergence(s)
		case "parameters":
			names, err := stringOrList(fv)
			if err != nil {
				return err
			}
			for _, n := range names {
				if err := e.Append(model.FeatureParameters, model.New(model.KindParameter, n)); err != nil {
					return err
				}
			}
		case "refines":
			names, err := stringOrList(fv)
			if err != nil {
				return err
			}
			for _, n := range names {
				b.links = append(b.links, nameLink{
					owner: e, rel: model.RelRefines, kind: model.KindEvent, name: n, pos: fv.Pos(),
					scope: func() (*model.Element, error) {
						abstract := machine.Refs(model.RelRefines)
						if len(abstract) == 0 {
							return nil, &CompileError{
								Field:   fmt.Sprintf("machine.%s.events.%s.refines", machine.Name(), name),
								Message: "event refines an abstract event but its machine refines nothing",
								Pos:     fv.Pos(),
							}
						}
						return abstract[0], nil
					},
				})
			}
		case "comment", "generated_by", "priority":
		default:
			return &CompileError{
				Field:   fmt.Sprintf("machine.%s.events.%s.%s", machine.Name(), name, label),
				Message: "unknown field for event",
				Pos:     fv.Pos(),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (b *modelBuilder) extensions(c *model.Element, v cue.Value) error {
	iter, err := v.List()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		ev := iter.Value()
		idVal := ev.LookupPath(cue.ParsePath("id"))
		if !idVal.Exists() {
			return &CompileError{
				Field:   fmt.Sprintf("%s.%s.extensions", c.Kind(), c.Name()),
				Message: "extension id is required",
				Pos:     ev.Pos(),
			}
		}
		id, err := idVal.String()
		if err != nil {
			return formatCUEError(err)
		}
		ext := model.New(model.KindExtension, id)
		if rv := ev.LookupPath(cue.ParsePath("references")); rv.Exists() {
			names, err := stringOrList(rv)
			if err != nil {
				return err
			}
			for _, n := range names {
				b.links = append(b.links, nameLink{owner: ext, rel: model.RelReferences, kind: model.KindExtension, name: n, pos: rv.Pos()})
			}
		}
		if err := c.Append(model.FeatureExtensions, ext); err != nil {
			return err
		}
	}
	return nil
}

// link binds every collected name. Components and extensions are looked up
// across the whole project; abstract events inside the refined machine.
func (b *modelBuilder) link() error {
	all := b.project.AllContained()
	// Component links first: event scopes depend on machine refinement.
	links := make([]nameLink, 0, len(b.links))
	for _, l := range b.links {
		if l.scope == nil {
			links = append(links, l)
		}
	}
	for _, l := range b.links {
		if l.scope != nil {
			links = append(links, l)
		}
	}
	for _, l := range links {
		var target *model.Element
		if l.scope != nil {
			scope, err := l.scope()
			if err != nil {
				return err
			}
			target = model.FindKind(scope.Values(model.FeatureEvents), l.kind, l.name)
		} else {
			for _, e := range all {
				if e.Kind() == l.kind && e.Name() == l.name {
					target = e
					break
				}
			}
		}
		if target == nil {
			return &CompileError{
				Field:   fmt.Sprintf("%s.%s.%s", l.owner.Kind(), l.owner.Name(), l.rel),
				Message: fmt.Sprintf("unknown %s %q", l.kind, l.name),
				Pos:     l.pos,
			}
		}
		l.owner.AddRef(l.rel, target)
	}
	return nil
}

// labelledElement compiles a predicate or action entry. The entry is either
// the bare text or a struct with the text and optional flags.
func labelledElement(kind model.Kind, name string, v cue.Value) (*model.Element, error) {
	e := model.New(kind, name)
	textField := "predicate"
	if kind == model.KindAction {
		textField = "action"
	}
	setText := func(s string) {
		if kind == model.KindAction {
			e.SetAction(s)
		} else {
			e.SetPredicate(s)
		}
	}

	if s, err := v.String(); err == nil {
		setText(s)
		return e, nil
	}

	tv := v.LookupPath(cue.ParsePath(textField))
	if !tv.Exists() {
		return nil, &CompileError{
			Field:   fmt.Sprintf("%s.%s", kind, name),
			Message: fmt.Sprintf("%s must be a string or have a %s field", kind, textField),
			Pos:     v.Pos(),
		}
	}
	s, err := tv.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	setText(s)

	if err := readCommon(e, v); err != nil {
		return nil, err
	}
	return e, nil
}

// readCommon reads the optional flags shared by components, events and
// labelled entries.
func readCommon(e *model.Element, v cue.Value) error {
	if cv := v.LookupPath(cue.ParsePath("comment")); cv.Exists() {
		s, err := cv.String()
		if err != nil {
			return formatCUEError(err)
		}
		e.SetComment(s)
	}
	if tv := v.LookupPath(cue.ParsePath("theorem")); tv.Exists() {
		x, err := tv.Bool()
		if err != nil {
			return formatCUEError(err)
		}
		if x {
			e.SetAttr(model.AttrTheorem, ir.AttrBool(true))
		}
	}
	if gv := v.LookupPath(cue.ParsePath("generated_by")); gv.Exists() {
		s, err := gv.String()
		if err != nil {
			return formatCUEError(err)
		}
		e.SetGeneratedBy(s)
	}
	if pv := v.LookupPath(cue.ParsePath("priority")); pv.Exists() {
		p, err := pv.Int64()
		if err != nil {
			return formatCUEError(err)
		}
		e.SetPriority(p)
	}
	return nil
}

// eachField calls fn for every regular field of a struct, in order.
func eachField(v cue.Value, fn func(label string, fv cue.Value) error) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		label := strings.Trim(iter.Selector().String(), `"`)
		if err := fn(label, iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// stringOrList accepts "a" or ["a", "b"].
func stringOrList(v cue.Value) ([]string, error) {
	if s, err := v.String(); err == nil {
		return []string{s}, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError is a compile failure with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
