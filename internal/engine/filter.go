package engine

import "github.com/roach88/genmerge/internal/model"

// ShouldAccept decides whether req adds something new to the target.
//
// Removals and requests without a parent are always accepted. For a global
// constraint feature (see ScopeRule) the transitive scope check decides.
// Otherwise a value matching one already in the parent list is rejected, and
// for events so is a value inherited through event extension.
//
// A cyclic inheritance graph is reported as a CYCLIC_MODEL error.
func (r *Run) ShouldAccept(req Request) (bool, error) {
	return shouldAccept(req, r.engine.scopeRules)
}

func shouldAccept(req Request, rules []ScopeRule) (bool, error) {
	if req.remove || req.parent == nil {
		return true, nil
	}
	parent := req.parent

	if rule, ok := ruleFor(rules, parent.Kind()); ok && rule.Feature == req.feature {
		if candidate, ok := req.value.(*model.Element); ok {
			found, err := constraintInScope(parent, candidate, rules)
			return !found, err
		}
	}

	if containsMatch(parent.Values(req.feature), req.value) {
		return false, nil
	}

	if parent.Kind() == model.KindEvent {
		inherited, err := ExtendedValues(parent, req.feature)
		if err != nil {
			return false, err
		}
		if containsMatch(inherited, req.value) {
			return false, nil
		}
	}
	return true, nil
}

// ExtendedValues returns the values of feature that event inherits through
// extension: while an event is extended, the first event it refines
// contributes its list. The most abstract ancestor's values come first.
func ExtendedValues(event *model.Element, feature model.Feature) ([]model.Value, error) {
	w := newScopeWalk()
	w.push(event)

	var chain []*model.Element
	for cur := event; cur.Extended(); {
		refined := cur.Refs(model.RelRefines)
		if len(refined) == 0 || refined[0] == nil {
			break
		}
		next := refined[0]
		if w.onStack(next) {
			return nil, w.cycle(next, model.RelRefines)
		}
		w.push(next)
		chain = append(chain, next)
		cur = next
	}

	var values []model.Value
	for i := len(chain) - 1; i >= 0; i-- {
		values = append(values, chain[i].Values(feature)...)
	}
	return values, nil
}
