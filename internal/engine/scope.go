package engine

import "github.com/roach88/genmerge/internal/model"

// ScopeRule designates a global-constraint feature of a component kind and
// the relations through which constraints of other components are in scope.
//
// A request that adds to Feature of a Component-kind parent is suppressed if
// an equivalent predicate exists in that list of the parent or of any
// component reachable through Relations, transitively.
type ScopeRule struct {
	Component model.Kind
	Feature   model.Feature
	Relations []model.Relation
}

// DefaultScopeRules returns the rules for machines (invariants, in scope
// through refines and sees) and contexts (axioms, through extends).
func DefaultScopeRules() []ScopeRule {
	return []ScopeRule{
		{
			Component: model.KindMachine,
			Feature:   model.FeatureInvariants,
			Relations: []model.Relation{model.RelRefines, model.RelSees},
		},
		{
			Component: model.KindContext,
			Feature:   model.FeatureAxioms,
			Relations: []model.Relation{model.RelExtends},
		},
	}
}

func ruleFor(rules []ScopeRule, kind model.Kind) (ScopeRule, bool) {
	for _, r := range rules {
		if r.Component == kind {
			return r, true
		}
	}
	return ScopeRule{}, false
}

// constraintInScope reports whether a predicate equivalent to candidate's is
// already in scope of component.
func constraintInScope(component, candidate *model.Element, rules []ScopeRule) (bool, error) {
	w := newScopeWalk()
	return w.visit(component, candidate, rules)
}

func (w *scopeWalk) visit(c, candidate *model.Element, rules []ScopeRule) (bool, error) {
	w.push(c)
	defer w.pop()

	rule, ok := ruleFor(rules, c.Kind())
	if !ok {
		return false, nil
	}
	for _, v := range c.Values(rule.Feature) {
		if e, ok := v.(*model.Element); ok && samePredicate(e, candidate) {
			return true, nil
		}
	}

	for _, rel := range rule.Relations {
		for _, next := range c.Refs(rel) {
			// A component naming itself is not a cycle worth failing on.
			if next == nil || next == c {
				continue
			}
			if w.onStack(next) {
				return false, w.cycle(next, rel)
			}
			if w.done[next] {
				continue
			}
			found, err := w.visit(next, candidate, rules)
			if err != nil || found {
				return found, err
			}
		}
	}
	w.done[c] = true
	return false, nil
}
