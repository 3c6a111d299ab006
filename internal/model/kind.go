package model

// Kind tags the concrete type of an element.
type Kind string

const (
	KindProject    Kind = "project"
	KindMachine    Kind = "machine"
	KindContext    Kind = "context"
	KindEvent      Kind = "event"
	KindVariable   Kind = "variable"
	KindInvariant  Kind = "invariant"
	KindGuard      Kind = "guard"
	KindAction     Kind = "action"
	KindParameter  Kind = "parameter"
	KindWitness    Kind = "witness"
	KindAxiom      Kind = "axiom"
	KindCarrierSet Kind = "carrier_set"
	KindConstant   Kind = "constant"
	KindExtension  Kind = "extension"
)

// Capability is how two values of the same kind are compared.
type Capability int

const (
	// CapNone values never match anything.
	CapNone Capability = iota

	// CapPredicate compares predicate text, ignoring whitespace.
	CapPredicate

	// CapAction compares action text, ignoring whitespace.
	CapAction

	// CapNamed compares non-empty names.
	CapNamed

	// CapText compares plain strings.
	CapText
)

var kindCapabilities = map[Kind]Capability{
	KindProject:    CapNamed,
	KindMachine:    CapNamed,
	KindContext:    CapNamed,
	KindEvent:      CapNamed,
	KindVariable:   CapNamed,
	KindParameter:  CapNamed,
	KindCarrierSet: CapNamed,
	KindConstant:   CapNamed,
	KindExtension:  CapNamed,
	KindInvariant:  CapPredicate,
	KindAxiom:      CapPredicate,
	KindGuard:      CapPredicate,
	KindWitness:    CapPredicate,
	KindAction:     CapAction,
}

// Capability returns the comparison capability of k. Unknown kinds get CapNone.
func (k Kind) Capability() Capability {
	return kindCapabilities[k]
}

// Known reports whether k is one of the declared kinds.
func (k Kind) Known() bool {
	_, ok := kindCapabilities[k]
	return ok
}

// Feature names a containment list of an element.
type Feature string

const (
	FeatureComponents Feature = "components"
	FeatureVariables  Feature = "variables"
	FeatureInvariants Feature = "invariants"
	FeatureEvents     Feature = "events"
	FeatureExtensions Feature = "extensions"
	FeatureSets       Feature = "sets"
	FeatureConstants  Feature = "constants"
	FeatureAxioms     Feature = "axioms"
	FeatureParameters Feature = "parameters"
	FeatureGuards     Feature = "guards"
	FeatureWitnesses  Feature = "witnesses"
	FeatureActions    Feature = "actions"
)

// Relation names a non-containment reference list.
type Relation string

const (
	RelRefines    Relation = "refines"
	RelSees       Relation = "sees"
	RelExtends    Relation = "extends"
	RelReferences Relation = "references"
)

// containment lists, per parent kind, the features it owns and the element
// kinds each feature accepts.
var containment = map[Kind]map[Feature][]Kind{
	KindProject: {
		FeatureComponents: {KindMachine, KindContext},
	},
	KindMachine: {
		FeatureVariables:  {KindVariable},
		FeatureInvariants: {KindInvariant},
		FeatureEvents:     {KindEvent},
		FeatureExtensions: {KindExtension},
	},
	KindContext: {
		FeatureSets:       {KindCarrierSet},
		FeatureConstants:  {KindConstant},
		FeatureAxioms:     {KindAxiom},
		FeatureExtensions: {KindExtension},
	},
	KindEvent: {
		FeatureParameters: {KindParameter},
		FeatureGuards:     {KindGuard},
		FeatureWitnesses:  {KindWitness},
		FeatureActions:    {KindAction},
	},
}

// Contains reports whether a parent of kind parent declares feature f.
func Contains(parent Kind, f Feature) bool {
	_, ok := containment[parent][f]
	return ok
}

// Accepts reports whether feature f of a parent of kind parent holds child
// elements of kind child.
func Accepts(parent Kind, f Feature, child Kind) bool {
	for _, k := range containment[parent][f] {
		if k == child {
			return true
		}
	}
	return false
}
