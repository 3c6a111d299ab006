package engine

import "github.com/roach88/genmerge/internal/model"

// ExtensionOrder maps extension ids to their order of first mention in the
// target model.
type ExtensionOrder struct {
	ids []string
	pos map[string]int
}

// BuildIndex walks root in containment pre-order. Each extension id gets the
// next index the first time it is met, and the extensions it references are
// indexed right after it unless they already have an index. Extensions with
// an empty id are skipped.
func BuildIndex(root *model.Element) ExtensionOrder {
	o := ExtensionOrder{pos: make(map[string]int)}
	if root == nil {
		return o
	}

	candidates := root.AllContained()
	if root.Kind() == model.KindExtension {
		candidates = append([]*model.Element{root}, candidates...)
	}
	for _, e := range candidates {
		if e.Kind() != model.KindExtension || e.Name() == "" {
			continue
		}
		if !o.add(e.Name()) {
			continue
		}
		for _, rel := range e.Relations() {
			for _, ref := range e.Refs(rel) {
				if ref.Kind() == model.KindExtension && ref.Name() != "" {
					o.add(ref.Name())
				}
			}
		}
	}
	return o
}

func (o *ExtensionOrder) add(id string) bool {
	if _, ok := o.pos[id]; ok {
		return false
	}
	o.pos[id] = len(o.ids)
	o.ids = append(o.ids, id)
	return true
}

// PositionOf returns the index of the extension named by generatorID.
// Qualified ids ("basic::ext") are looked up by their qualifier. Unknown or
// empty ids sort after every known extension.
func (o ExtensionOrder) PositionOf(generatorID string) int {
	if generatorID == "" {
		return len(o.ids)
	}
	if p, ok := o.pos[ExtensionIDOf(generatorID)]; ok {
		return p
	}
	return len(o.ids)
}

// IDs returns the indexed extension ids in order.
func (o ExtensionOrder) IDs() []string {
	out := make([]string, len(o.ids))
	copy(out, o.ids)
	return out
}

// Len returns the number of indexed extensions.
func (o ExtensionOrder) Len() int { return len(o.ids) }
