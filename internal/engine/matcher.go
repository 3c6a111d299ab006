package engine

import (
	"strings"
	"unicode"

	"github.com/roach88/genmerge/internal/model"
)

// Matches reports whether a and b are the same value in model terms.
//
// Values must be of the same concrete kind. Predicate elements compare their
// predicates and action elements their actions, ignoring all whitespace.
// Other elements compare non-empty names and text compares exactly.
// Anything else never matches.
func Matches(a, b model.Value) bool {
	switch av := a.(type) {
	case model.Text:
		bv, ok := b.(model.Text)
		return ok && av == bv

	case *model.Element:
		bv, ok := b.(*model.Element)
		if !ok || av == nil || bv == nil || av.Kind() != bv.Kind() {
			return false
		}
		switch av.Kind().Capability() {
		case model.CapPredicate:
			return samePredicate(av, bv)
		case model.CapAction:
			as, aok := av.Action()
			bs, bok := bv.Action()
			return equivalent(as, aok, bs, bok)
		case model.CapNamed:
			return av.Name() != "" && av.Name() == bv.Name()
		}
	}
	return false
}

func samePredicate(a, b *model.Element) bool {
	as, aok := a.Predicate()
	bs, bok := b.Predicate()
	return equivalent(as, aok, bs, bok)
}

// equivalent compares two optional strings with whitespace removed.
// An absent string matches only another absent string.
func equivalent(a string, aok bool, b string, bok bool) bool {
	if !aok || !bok {
		return aok == bok
	}
	return stripSpace(a) == stripSpace(b)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func containsMatch(values []model.Value, v model.Value) bool {
	for _, cur := range values {
		if Matches(cur, v) {
			return true
		}
	}
	return false
}
