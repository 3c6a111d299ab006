package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/model"
)

// Validation error codes (E200-E299)
const (
	// Model errors (E201-E209)
	ErrUnknownKind       = "E201" // element kind not declared
	ErrFeatureNotAllowed = "E202" // parent kind has no such feature
	ErrChildKindMismatch = "E203" // feature does not hold this kind
	ErrDuplicateName     = "E204" // two named siblings share a name
	ErrEmptyExtensionID  = "E205" // extension without id
	ErrMissingPredicate  = "E206" // predicate or action text missing

	// Request errors (E210-E219)
	ErrRemovalWithBefore = "E210" // removal carries a before sibling
	ErrUnresolvedParent  = "E211" // parent path does not resolve
	ErrUnresolvedBefore  = "E212" // before path does not resolve
	ErrRequestFeature    = "E213" // parent kind has no such feature
	ErrRootFeature       = "E214" // project root only takes components
	ErrBadValue          = "E215" // value is empty, doubled or unreadable
	ErrUnknownValueKind  = "E216" // value element kind not declared
)

// ValidationError represents a model or request validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled model and the requests that will be merged into
// it. Returns all errors found (does not fail-fast).
//
// Requests may address elements added by earlier requests in the list; such
// parents are tracked by path and accepted without resolving.
func Validate(root *model.Element, docs []ir.RequestDoc) []ValidationError {
	var errs []ValidationError
	if root != nil {
		errs = append(errs, validateModel(root)...)
	}

	pending := make(map[string]model.Kind)
	for i, doc := range docs {
		errs = append(errs, validateRequest(root, i, doc, pending)...)
	}
	return errs
}

func validateModel(root *model.Element) []ValidationError {
	var errs []ValidationError
	for _, e := range append([]*model.Element{root}, root.AllContained()...) {
		path := model.PathOf(e)
		if path == "" {
			path = "project"
		}

		// E201: unknown kind
		if !e.Kind().Known() {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("unknown element kind %q", e.Kind()),
				Code:    ErrUnknownKind,
			})
			continue
		}

		errs = append(errs, validateText(path, e)...)

		// E205: extensions are addressed by id
		if e.Kind() == model.KindExtension && strings.TrimSpace(e.Name()) == "" {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: "extension id is required",
				Code:    ErrEmptyExtensionID,
			})
		}

		for _, f := range e.Features() {
			fieldPath := path + "." + string(f)

			// E202: feature not declared for the parent kind
			if !model.Contains(e.Kind(), f) {
				errs = append(errs, ValidationError{
					Field:   fieldPath,
					Message: fmt.Sprintf("%s has no %s feature", e.Kind(), f),
					Code:    ErrFeatureNotAllowed,
				})
				continue
			}

			seen := make(map[string]bool)
			for j, v := range e.Values(f) {
				child, ok := v.(*model.Element)
				if !ok {
					continue
				}
				// E203: child kind mismatch
				if child.Kind().Known() && !model.Accepts(e.Kind(), f, child.Kind()) {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("%s[%d]", fieldPath, j),
						Message: fmt.Sprintf("%s of %s cannot hold a %s", f, e.Kind(), child.Kind()),
						Code:    ErrChildKindMismatch,
					})
				}
				// E204: duplicate name among named siblings
				if child.Kind().Capability() == model.CapNamed && child.Name() != "" {
					if seen[child.Name()] {
						errs = append(errs, ValidationError{
							Field:   fmt.Sprintf("%s[%d]", fieldPath, j),
							Message: fmt.Sprintf("duplicate %s name: %q", child.Kind(), child.Name()),
							Code:    ErrDuplicateName,
						})
					}
					seen[child.Name()] = true
				}
			}
		}
	}
	return errs
}

// validateText reports E206 for predicate and action kinds with no text.
func validateText(field string, e *model.Element) []ValidationError {
	switch e.Kind().Capability() {
	case model.CapPredicate:
		if p, ok := e.Predicate(); !ok || strings.TrimSpace(p) == "" {
			return []ValidationError{{
				Field:   field,
				Message: fmt.Sprintf("%s %q has no predicate", e.Kind(), e.Name()),
				Code:    ErrMissingPredicate,
			}}
		}
	case model.CapAction:
		if a, ok := e.Action(); !ok || strings.TrimSpace(a) == "" {
			return []ValidationError{{
				Field:   field,
				Message: fmt.Sprintf("action %q has no assignment", e.Name()),
				Code:    ErrMissingPredicate,
			}}
		}
	}
	return nil
}

func validateRequest(root *model.Element, i int, doc ir.RequestDoc, pending map[string]model.Kind) []ValidationError {
	var errs []ValidationError
	field := fmt.Sprintf("request[%d]", i)
	feature := model.Feature(doc.Feature)

	// E210: removals never carry a before sibling
	if doc.Remove && doc.Before != "" {
		errs = append(errs, ValidationError{
			Field:   field + ".before",
			Message: "removal requests cannot name a before sibling",
			Code:    ErrRemovalWithBefore,
		})
	}

	parentKind, known := requestParentKind(root, doc.Parent, pending)
	switch {
	case doc.Parent == "" && feature != model.FeatureComponents:
		// E214: the project root only takes components
		errs = append(errs, ValidationError{
			Field:   field + ".feature",
			Message: fmt.Sprintf("request without parent must target components, got %q", doc.Feature),
			Code:    ErrRootFeature,
		})
		known = false
	case !known:
		// E211: parent path does not resolve
		errs = append(errs, ValidationError{
			Field:   field + ".parent",
			Message: fmt.Sprintf("parent %q not found in model", doc.Parent),
			Code:    ErrUnresolvedParent,
		})
	case !model.Contains(parentKind, feature):
		// E213: feature not declared for the parent kind
		errs = append(errs, ValidationError{
			Field:   field + ".feature",
			Message: fmt.Sprintf("%s has no %s feature", parentKind, doc.Feature),
			Code:    ErrRequestFeature,
		})
		known = false
	}

	// E212: before sibling must already exist
	if doc.Before != "" && root != nil {
		if _, err := model.Resolve(root, doc.Before); err != nil {
			if _, ok := pending[doc.Before]; !ok {
				errs = append(errs, ValidationError{
					Field:   field + ".before",
					Message: fmt.Sprintf("before sibling %q not found in model", doc.Before),
					Code:    ErrUnresolvedBefore,
				})
			}
		}
	}

	switch {
	case doc.Value.Element != nil && doc.Value.Text != nil:
		errs = append(errs, ValidationError{
			Field:   field + ".value",
			Message: "value has both element and text",
			Code:    ErrBadValue,
		})
	case doc.Value.Element == nil && doc.Value.Text == nil:
		errs = append(errs, ValidationError{
			Field:   field + ".value",
			Message: "value has neither element nor text",
			Code:    ErrBadValue,
		})
	case doc.Value.Element != nil:
		errs = append(errs, validateValue(root, field, parentKind, feature, known, doc, pending)...)
	}
	return errs
}

func validateValue(root *model.Element, field string, parentKind model.Kind, feature model.Feature, known bool, doc ir.RequestDoc, pending map[string]model.Kind) []ValidationError {
	kind := model.Kind(doc.Value.Element.Kind)

	// E216: unknown value kind
	if !kind.Known() {
		return []ValidationError{{
			Field:   field + ".value.kind",
			Message: fmt.Sprintf("unknown element kind %q", kind),
			Code:    ErrUnknownValueKind,
		}}
	}

	var errs []ValidationError
	// E203: the feature must hold this kind
	if known && !model.Accepts(parentKind, feature, kind) {
		errs = append(errs, ValidationError{
			Field:   field + ".value.kind",
			Message: fmt.Sprintf("%s of %s cannot hold a %s", feature, parentKind, kind),
			Code:    ErrChildKindMismatch,
		})
	}

	if root != nil {
		// E215: the value must rebuild against the model
		v, err := model.ValueFromDoc(doc.Value, root)
		if err != nil {
			return append(errs, ValidationError{
				Field:   field + ".value",
				Message: err.Error(),
				Code:    ErrBadValue,
			})
		}
		if e, ok := v.(*model.Element); ok && !doc.Remove {
			errs = append(errs, validateText(field+".value", e)...)
		}
	}

	if !doc.Remove && doc.Value.Element.Name != "" {
		recordPending(doc.Parent, feature, doc.Value.Element, pending)
	}
	return errs
}

// recordPending registers the paths a request will add, including the
// named elements nested inside its value.
func recordPending(parent string, feature model.Feature, e *ir.ElementDoc, pending map[string]model.Kind) {
	path := string(feature) + ":" + e.Name
	if parent != "" {
		path = parent + "/" + path
	}
	pending[path] = model.Kind(e.Kind)
	for _, fd := range e.Features {
		for _, vd := range fd.Values {
			if vd.Element != nil && vd.Element.Name != "" {
				recordPending(path, model.Feature(fd.Name), vd.Element, pending)
			}
		}
	}
}

func requestParentKind(root *model.Element, parent string, pending map[string]model.Kind) (model.Kind, bool) {
	if k, ok := pending[parent]; ok {
		return k, true
	}
	if root == nil {
		return "", false
	}
	e, err := model.Resolve(root, parent)
	if err != nil {
		return "", false
	}
	return e.Kind(), true
}
