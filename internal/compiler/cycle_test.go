package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/genmerge/internal/model"
)

// TestAnalyzeInheritance_Empty tests that a nil or empty model produces no warnings.
func TestAnalyzeInheritance_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeInheritance(nil))
	assert.Empty(t, AnalyzeInheritance(model.NewProject("p")))
}

// TestAnalyzeInheritance_DAG tests that a refinement chain with a shared
// context produces no warnings.
func TestAnalyzeInheritance_DAG(t *testing.T) {
	root, err := CompileModel(compileCUE(t, trafficModel))
	require.NoError(t, err)
	assert.Empty(t, AnalyzeInheritance(root))
}

// TestAnalyzeInheritance_Diamond tests that two paths to one context are not a cycle.
func TestAnalyzeInheritance_Diamond(t *testing.T) {
	root := model.NewProject("p")
	c0 := model.New(model.KindContext, "c0")
	c1 := model.New(model.KindContext, "c1")
	c2 := model.New(model.KindContext, "c2")
	c3 := model.New(model.KindContext, "c3")
	c1.AddRef(model.RelExtends, c0)
	c2.AddRef(model.RelExtends, c0)
	c3.AddRef(model.RelExtends, c1)
	c3.AddRef(model.RelExtends, c2)
	root.MustAppend(model.FeatureComponents, c0, c1, c2, c3)

	assert.Empty(t, AnalyzeInheritance(root))
}

// TestAnalyzeInheritance_SelfLoop tests a machine refining itself.
func TestAnalyzeInheritance_SelfLoop(t *testing.T) {
	root := model.NewProject("p")
	m := model.New(model.KindMachine, "m")
	m.AddRef(model.RelRefines, m)
	root.MustAppend(model.FeatureComponents, m)

	warnings := AnalyzeInheritance(root)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"components:m", "components:m"}, warnings[0].Path)
	assert.Equal(t, "refines", warnings[0].Relation)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "refines itself")
}

// TestAnalyzeInheritance_ContextLoop tests a three-context extends loop.
func TestAnalyzeInheritance_ContextLoop(t *testing.T) {
	root, err := CompileModel(compileCUE(t, `
context: c0: extends: "c2"
context: c1: extends: "c0"
context: c2: extends: "c1"
`))
	require.NoError(t, err)

	warnings := AnalyzeInheritance(root)
	require.Len(t, warnings, 1)
	assert.Equal(t, "extends", warnings[0].Relation)
	assert.Equal(t, []string{"components:c0", "components:c2", "components:c1", "components:c0"}, warnings[0].Path)
	assert.Equal(t, "extends cycle: components:c0 -> components:c2 -> components:c1 -> components:c0", warnings[0].Message)
}

// TestAnalyzeInheritance_EventLoop tests extended events refining each other.
func TestAnalyzeInheritance_EventLoop(t *testing.T) {
	root := model.NewProject("p")
	m := model.New(model.KindMachine, "m")
	e1 := model.New(model.KindEvent, "e1")
	e2 := model.New(model.KindEvent, "e2")
	e1.AddRef(model.RelRefines, e2)
	e2.AddRef(model.RelRefines, e1)
	m.MustAppend(model.FeatureEvents, e1, e2)
	root.MustAppend(model.FeatureComponents, m)

	warnings := AnalyzeInheritance(root)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"components:m/events:e1", "components:m/events:e2", "components:m/events:e1"}, warnings[0].Path)
}

// TestAnalyzeInheritance_Deterministic tests that repeated analysis yields
// the same warnings in the same order.
func TestAnalyzeInheritance_Deterministic(t *testing.T) {
	root := model.NewProject("p")
	var machines []*model.Element
	for _, n := range []string{"m0", "m1", "m2", "m3"} {
		machines = append(machines, model.New(model.KindMachine, n))
	}
	machines[0].AddRef(model.RelRefines, machines[1])
	machines[1].AddRef(model.RelRefines, machines[0])
	machines[2].AddRef(model.RelSees, machines[3])
	machines[3].AddRef(model.RelSees, machines[2])
	for _, m := range machines {
		root.MustAppend(model.FeatureComponents, m)
	}

	first := AnalyzeInheritance(root)
	require.Len(t, first, 2)
	assert.Equal(t, "refines", first[0].Relation)
	assert.Equal(t, "sees", first[1].Relation)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, AnalyzeInheritance(root))
	}
}
