package engine

import (
	"github.com/cockroachdb/errors"

	"github.com/roach88/genmerge/internal/model"
)

// TieBreak decides where a new element goes relative to siblings of equal
// rank.
type TieBreak int

const (
	// TieAfterEqual places the new element after existing equals.
	TieAfterEqual TieBreak = iota

	// TieBeforeEqual places the new element before existing equals.
	TieBeforeEqual
)

func (t TieBreak) String() string {
	if t == TieBeforeEqual {
		return "before"
	}
	return "after"
}

// ParseTieBreak parses "after" or "before".
func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "", "after":
		return TieAfterEqual, nil
	case "before":
		return TieBeforeEqual, nil
	}
	return TieAfterEqual, errors.Newf("unknown tie break %q (want after or before)", s)
}

type rank struct {
	priority  int64
	extension int
}

func rankOf(e *model.Element, order ExtensionOrder) rank {
	return rank{priority: e.Priority(), extension: order.PositionOf(e.GeneratedBy())}
}

// sortsBefore reports whether an existing sibling of rank s precedes a new
// element of rank c. Priority descends; within a priority the extension index
// ascends.
func sortsBefore(s, c rank, tie TieBreak) bool {
	if s.priority != c.priority {
		return s.priority > c.priority
	}
	if s.extension != c.extension {
		return s.extension < c.extension
	}
	return tie == TieAfterEqual
}

// Position computes the insertion index of candidate among siblings.
//
// The index is one past the last element sibling that sorts before the
// candidate. Text siblings never sort before but still occupy their slots.
// A candidate that is not an element goes to the end.
func Position(siblings []model.Value, candidate model.Value, order ExtensionOrder, tie TieBreak) int {
	ce, ok := candidate.(*model.Element)
	if !ok || ce == nil {
		return len(siblings)
	}
	c := rankOf(ce, order)

	pos := 0
	for i, v := range siblings {
		se, ok := v.(*model.Element)
		if !ok || se == nil {
			continue
		}
		if sortsBefore(rankOf(se, order), c, tie) {
			pos = i + 1
		}
	}
	return pos
}
