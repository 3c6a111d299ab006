package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/genmerge/internal/ir"
	"github.com/roach88/genmerge/internal/model"
)

// RenderTree prints the model below root, one element per line. Children
// are grouped under their feature; empty features are left out.
//
//	project traffic
//	  components:
//	    machine m0 {generated_by="ext1" local_generated=true}
//	      invariants:
//	        invariant inv1: light ∈ COLOUR
func RenderTree(root *model.Element) string {
	var buf strings.Builder
	doc := model.ToDoc(root)
	renderElement(&buf, &doc, 0)
	return buf.String()
}

func renderElement(buf *strings.Builder, e *ir.ElementDoc, depth int) {
	indent := strings.Repeat("  ", depth)
	buf.WriteString(indent)
	buf.WriteString(e.Kind)
	if e.Name != "" {
		buf.WriteString(" " + e.Name)
	}
	switch {
	case e.Predicate != nil:
		buf.WriteString(": " + *e.Predicate)
	case e.Action != nil:
		buf.WriteString(": " + *e.Action)
	}
	if len(e.Attrs) > 0 {
		parts := make([]string, 0, len(e.Attrs))
		for _, k := range e.Attrs.SortedKeys() {
			parts = append(parts, k+"="+attrString(e.Attrs[k]))
		}
		buf.WriteString(" {" + strings.Join(parts, " ") + "}")
	}
	for _, r := range e.Refs {
		fmt.Fprintf(buf, " [%s %s]", r.Relation, strings.Join(r.Targets, ", "))
	}
	buf.WriteString("\n")

	for _, f := range e.Features {
		buf.WriteString(indent + "  " + f.Name + ":\n")
		for _, v := range f.Values {
			if v.Element != nil {
				renderElement(buf, v.Element, depth+2)
			} else if v.Text != nil {
				fmt.Fprintf(buf, "%s    %q\n", indent, *v.Text)
			}
		}
	}
}

func attrString(v ir.AttrValue) string {
	switch v := v.(type) {
	case ir.AttrString:
		return fmt.Sprintf("%q", string(v))
	case ir.AttrInt:
		return fmt.Sprintf("%d", int64(v))
	case ir.AttrBool:
		return fmt.Sprintf("%t", bool(v))
	}
	return "?"
}

// RenderGolden is the golden file content: the trace followed by the tree.
func RenderGolden(result *Result) []byte {
	var buf strings.Builder
	buf.WriteString("trace:\n")
	for _, event := range result.Trace {
		buf.WriteString("  " + event.String() + "\n")
	}
	buf.WriteString("\ntree:\n")
	buf.WriteString(result.Tree)
	return []byte(buf.String())
}

// RunWithGolden executes a scenario and compares trace and tree against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if the scenario cannot be executed. A mismatch fails t.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, RenderGolden(result))

	return nil
}
