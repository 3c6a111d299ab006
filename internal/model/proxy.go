package model

// Proxy is a reference to an element that may not exist yet. It names the
// container, the feature and the kind and name of the expected element.
type Proxy struct {
	Container *Element
	Feature   Feature
	Kind      Kind
	Name      string
}

// VariableProxy refers to a variable that will later be added to machine.
func VariableProxy(machine *Element, name string) Proxy {
	return Proxy{Container: machine, Feature: FeatureVariables, Kind: KindVariable, Name: name}
}

// EventProxy refers to an event that will later be added to machine.
func EventProxy(machine *Element, name string) Proxy {
	return Proxy{Container: machine, Feature: FeatureEvents, Kind: KindEvent, Name: name}
}

// AddPendingRef records a reference that is resolved by ResolvePending.
func (e *Element) AddPendingRef(rel Relation, p Proxy) {
	e.pending = append(e.pending, pendingRef{rel: rel, proxy: p})
}

// PendingRefs returns the number of unresolved references on e.
func (e *Element) PendingRefs() int {
	return len(e.pending)
}

// Unresolved describes a proxy that could not be resolved.
type Unresolved struct {
	Owner    *Element
	Relation Relation
	Proxy    Proxy
}

// ResolvePending resolves every pending reference on root and the elements
// below it. Resolved references become ordinary references in the order they
// were added. Proxies that do not resolve stay pending and are returned.
func ResolvePending(root *Element) []Unresolved {
	var unresolved []Unresolved
	for _, e := range append([]*Element{root}, root.AllContained()...) {
		if len(e.pending) == 0 {
			continue
		}
		var keep []pendingRef
		for _, pr := range e.pending {
			p := pr.proxy
			var target *Element
			if p.Container != nil {
				target = FindKind(p.Container.children[p.Feature], p.Kind, p.Name)
			}
			if target == nil {
				keep = append(keep, pr)
				unresolved = append(unresolved, Unresolved{Owner: e, Relation: pr.rel, Proxy: p})
				continue
			}
			e.AddRef(pr.rel, target)
		}
		e.pending = keep
	}
	return unresolved
}
