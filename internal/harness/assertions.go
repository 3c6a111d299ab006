package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/model"
	"github.com/roach88/genmerge/internal/store"
)

// AssertionError is returned when an assertion fails.
// It carries the trace so a failure can be read without re-running.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}

	return buf.String()
}

// AssertionContext is what assertions inspect besides the trace.
type AssertionContext struct {
	Ctx     context.Context
	Store   *store.Store
	RunID   string
	Project *model.Element
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertOrder:
			err = assertOrder(actx.Project, a, result.Trace)
		case AssertContains:
			err = assertPresence(actx.Project, a, true, result.Trace)
		case AssertAbsent:
			err = assertPresence(actx.Project, a, false, result.Trace)
		case AssertAccepted:
			err = assertStatus(actx, a, ir.StatusAccepted, result.Trace)
		case AssertSuppressed:
			err = assertStatus(actx, a, ir.StatusSuppressed, result.Trace)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

// assertOrder checks that Parent.Feature holds exactly Names, in order.
func assertOrder(root *model.Element, a Assertion, trace []TraceEvent) error {
	values, err := featureValues(root, a)
	if err != nil {
		return err
	}
	got := valueNames(values)
	if slices.Equal(got, a.Names) {
		return nil
	}
	return &AssertionError{
		Type:     AssertOrder,
		Expected: fmt.Sprintf("%s.%s = %v", displayPath(a.Parent), a.Feature, a.Names),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    trace,
	}
}

// assertPresence checks that Parent.Feature does (or does not) hold a
// value called Name.
func assertPresence(root *model.Element, a Assertion, want bool, trace []TraceEvent) error {
	values, err := featureValues(root, a)
	if err != nil {
		return err
	}
	found := false
	for _, name := range valueNames(values) {
		if name == a.Name {
			found = true
			break
		}
	}
	if found == want {
		return nil
	}

	expected, actual := "present", "absent"
	if !want {
		expected, actual = actual, expected
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s %s in %s.%s", a.Name, expected, displayPath(a.Parent), a.Feature),
		Actual:   actual,
		Trace:    trace,
	}
}

// assertStatus reads the recorded status of request Step from the store.
func assertStatus(actx *AssertionContext, a Assertion, want ir.ChangeStatus, trace []TraceEvent) error {
	var status string
	err := actx.Store.DB().QueryRowContext(actx.Ctx,
		"SELECT status FROM changes WHERE run_id = ? AND seq = ?",
		actx.RunID, a.Step,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("request %d %s", a.Step, want),
			Actual:   "no such request",
			Trace:    trace,
		}
	}
	if err != nil {
		return fmt.Errorf("read change %d: %w", a.Step, err)
	}
	if ir.ChangeStatus(status) != want {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("request %d %s", a.Step, want),
			Actual:   status,
			Trace:    trace,
		}
	}
	return nil
}

func featureValues(root *model.Element, a Assertion) ([]model.Value, error) {
	parent, err := model.Resolve(root, a.Parent)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.Type, err)
	}
	return parent.Values(model.Feature(a.Feature)), nil
}

// valueNames labels each value: text as is, elements by name, falling
// back to predicate, action and kind.
func valueNames(values []model.Value) []string {
	names := make([]string, 0, len(values))
	for _, v := range values {
		names = append(names, valueName(v))
	}
	return names
}

func valueName(v model.Value) string {
	switch v := v.(type) {
	case model.Text:
		return string(v)
	case *model.Element:
		if v.Name() != "" {
			return v.Name()
		}
		if p, ok := v.Predicate(); ok {
			return p
		}
		if act, ok := v.Action(); ok {
			return act
		}
		return string(v.Kind())
	}
	return ""
}

func displayPath(p string) string {
	if p == "" {
		return "<project>"
	}
	return p
}
