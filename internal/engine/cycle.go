package engine

import "github.com/roach88/genmerge/internal/model"

// scopeWalk is the bookkeeping of a depth-first walk over inheritance
// relations. Components on the current path are on the stack; components
// whose subtree has been fully explored are done. Reaching a component on
// the stack again is a cycle; reaching a done one is just a shared ancestor.
type scopeWalk struct {
	stack []*model.Element
	index map[*model.Element]int
	done  map[*model.Element]bool
}

func newScopeWalk() *scopeWalk {
	return &scopeWalk{
		index: make(map[*model.Element]int),
		done:  make(map[*model.Element]bool),
	}
}

func (w *scopeWalk) push(e *model.Element) {
	w.index[e] = len(w.stack)
	w.stack = append(w.stack, e)
}

func (w *scopeWalk) pop() {
	last := w.stack[len(w.stack)-1]
	delete(w.index, last)
	w.stack = w.stack[:len(w.stack)-1]
}

func (w *scopeWalk) onStack(e *model.Element) bool {
	_, ok := w.index[e]
	return ok
}

// cycle builds the CYCLIC_MODEL error for the back edge to e.
func (w *scopeWalk) cycle(e *model.Element, rel model.Relation) error {
	loop := make([]string, 0, len(w.stack)-w.index[e]+1)
	for _, s := range w.stack[w.index[e]:] {
		loop = append(loop, label(s))
	}
	loop = append(loop, label(e))
	return NewCyclicModelError(string(rel), loop)
}

func label(e *model.Element) string {
	if p := model.PathOf(e); p != "" {
		return p
	}
	return string(e.Kind()) + ":" + e.Name()
}
