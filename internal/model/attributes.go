package model

import "github.com/roach88/genmerge/internal/ir"

// Attribute keys written on elements.
const (
	AttrGeneratedBy       = "generated_by"
	AttrLocalGenerated    = "local_generated"
	AttrPlacementPriority = "placement_priority"
	AttrSourceElement     = "source_element"
	AttrComment           = "comment"
	AttrTheorem           = "theorem"
	AttrExtended          = "extended"
	AttrConvergence       = "convergence"
)

// SetGeneratedBy records the generator that produced e and marks it as
// locally generated.
func (e *Element) SetGeneratedBy(generatorID string) {
	e.attrs[AttrLocalGenerated] = ir.AttrBool(true)
	e.attrs[AttrGeneratedBy] = ir.AttrString(generatorID)
}

// GeneratedBy returns the recorded generator id, "" if none.
func (e *Element) GeneratedBy() string {
	return e.stringAttr(AttrGeneratedBy)
}

// WasGeneratedBy reports whether e carries exactly this generator id.
func (e *Element) WasGeneratedBy(generatorID string) bool {
	v, ok := e.attrs[AttrGeneratedBy].(ir.AttrString)
	return ok && string(v) == generatorID
}

// IsGenerated reports whether any generator id is recorded.
func (e *Element) IsGenerated() bool {
	return e.GeneratedBy() != ""
}

// ReadOnly reports whether e was produced by generation rather than authored.
func (e *Element) ReadOnly() bool {
	return e.boolAttr(AttrLocalGenerated)
}

// SetLocalGenerated sets the local generation flag without a generator id.
func (e *Element) SetLocalGenerated(v bool) {
	e.attrs[AttrLocalGenerated] = ir.AttrBool(v)
}

// SetSourceElement records a reference to the source element e was derived from.
func (e *Element) SetSourceElement(ref string) {
	e.attrs[AttrSourceElement] = ir.AttrString(ref)
}

// SourceElement returns the recorded source reference, "" if none.
func (e *Element) SourceElement() string {
	return e.stringAttr(AttrSourceElement)
}

// SetPriority records the placement priority.
func (e *Element) SetPriority(p int64) {
	e.attrs[AttrPlacementPriority] = ir.AttrInt(p)
}

// Priority returns the placement priority. A missing or non-integer
// attribute reads as 0.
func (e *Element) Priority() int64 {
	v, ok := e.attrs[AttrPlacementPriority].(ir.AttrInt)
	if !ok {
		return 0
	}
	return int64(v)
}

func (e *Element) Comment() string { return e.stringAttr(AttrComment) }
func (e *Element) SetComment(c string) { e.attrs[AttrComment] = ir.AttrString(c) }
func (e *Element) Theorem() bool { return e.boolAttr(AttrTheorem) }
func (e *Element) Extended() bool { return e.boolAttr(AttrExtended) }
func (e *Element) SetExtended(v bool) { e.attrs[AttrExtended] = ir.AttrBool(v) }
func (e *Element) Convergence() string { return e.stringAttr(AttrConvergence) }
func (e *Element) SetConvergence(c string) { e.attrs[AttrConvergence] = ir.AttrString(c) }

func (e *Element) stringAttr(key string) string {
	v, ok := e.attrs[key].(ir.AttrString)
	if !ok {
		return ""
	}
	return string(v)
}

func (e *Element) boolAttr(key string) bool {
	v, ok := e.attrs[key].(ir.AttrBool)
	return ok && bool(v)
}
