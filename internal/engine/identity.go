package engine

import (
	"strings"

	"github.com/roach88/genmerge/internal/model"
)

// idSeparator joins the basic generator id and its qualifier.
const idSeparator = "::"

// TranslationID builds the generator id of a rule applied to src.
// Extensions qualify with their extension id, other elements with their path.
func TranslationID(basic string, src *model.Element) string {
	if src == nil {
		return basic
	}
	if src.Kind() == model.KindExtension {
		return basic + idSeparator + src.Name()
	}
	return basic + idSeparator + model.PathOf(src)
}

// ExtensionIDOf returns the part of a generator id after the last "::",
// or the whole id when it has no qualifier.
func ExtensionIDOf(generatorID string) string {
	if i := strings.LastIndex(generatorID, idSeparator); i >= 0 {
		return generatorID[i+len(idSeparator):]
	}
	return generatorID
}

// FindGenerated returns the element value of the first accepted request that
// targeted parent's feature and whose value is named name.
func FindGenerated(accepted []Request, parent *model.Element, feature model.Feature, name string) *model.Element {
	for _, r := range accepted {
		if r.parent != parent || r.feature != feature {
			continue
		}
		if e, ok := r.value.(*model.Element); ok && e.Name() == name {
			return e
		}
	}
	return nil
}
