package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/genmerge/internal/model"
)

// CycleWarning reports a loop in the inheritance graph of a model.
//
// The engine stops a run when a walk meets such a loop, so a model that
// produces warnings here will fail at merge time for requests that reach it.
type CycleWarning struct {
	Path     []string `json:"path"`     // Element paths: ["components:m0", "components:m1", "components:m0"]
	Relation string   `json:"relation"` // relation the loop runs through
	Message  string   `json:"message"`
	Level    string   `json:"level"`
}

// inheritanceRelations are the edges a merge walks through: machine
// refinement and seeing, context extension, and event refinement.
var inheritanceRelations = []model.Relation{model.RelRefines, model.RelSees, model.RelExtends}

// AnalyzeInheritance finds loops in refines, sees and extends references.
//
// The algorithm:
//  1. Build an element-path graph from the components and events of root
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle warning
//
// Nodes are visited in containment order so the result is stable across
// runs. An acyclic model returns an empty list.
func AnalyzeInheritance(root *model.Element) []CycleWarning {
	warnings := []CycleWarning{}
	if root == nil {
		return warnings
	}

	for _, rel := range inheritanceRelations {
		graph := buildInheritanceGraph(root, rel)
		for _, scc := range tarjanSCC(graph) {
			if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
				warnings = append(warnings, cycleSCCToWarning(scc, graph, rel))
			}
		}
	}
	return warnings
}

// dependencyGraph holds nodes in insertion order; edges point from an
// element to the elements it inherits from.
type dependencyGraph struct {
	nodes []string
	edges map[string][]string
	order map[string]int
}

func newDependencyGraph() *dependencyGraph {
	return &dependencyGraph{edges: map[string][]string{}, order: map[string]int{}}
}

func (g *dependencyGraph) addNode(n string) {
	if _, ok := g.order[n]; ok {
		return
	}
	g.order[n] = len(g.nodes)
	g.nodes = append(g.nodes, n)
}

func (g *dependencyGraph) addEdge(from, to string) {
	g.addNode(from)
	g.addNode(to)
	g.edges[from] = append(g.edges[from], to)
}

// buildInheritanceGraph collects rel edges from every component and event.
// A node is labelled with its element path.
func buildInheritanceGraph(root *model.Element, rel model.Relation) *dependencyGraph {
	g := newDependencyGraph()
	for _, e := range root.AllContained() {
		switch e.Kind() {
		case model.KindMachine, model.KindContext, model.KindEvent:
		default:
			continue
		}
		from := model.PathOf(e)
		g.addNode(from)
		for _, t := range e.Refs(rel) {
			g.addEdge(from, model.PathOf(t))
		}
	}
	return g
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, g *dependencyGraph) bool {
	for _, neighbor := range g.edges[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(g *dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

func cycleSCCToWarning(scc []string, g *dependencyGraph, rel model.Relation) CycleWarning {
	if len(scc) == 1 {
		n := scc[0]
		return CycleWarning{
			Path:     []string{n, n},
			Relation: string(rel),
			Message:  fmt.Sprintf("%s %s itself", n, rel),
			Level:    "warning",
		}
	}

	path := reconstructCyclePath(scc, g)
	return CycleWarning{
		Path:     path,
		Relation: string(rel),
		Message:  fmt.Sprintf("%s cycle: %s", rel, strings.Join(path, " -> ")),
		Level:    "warning",
	}
}

// reconstructCyclePath walks the SCC from its earliest declared member,
// following edges to other members until it returns to the start.
func reconstructCyclePath(scc []string, g *dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	members := make(map[string]bool, len(scc))
	start := scc[0]
	for _, n := range scc {
		members[n] = true
		if g.order[n] < g.order[start] {
			start = n
		}
	}

	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range g.edges[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			break
		}

		path = append(path, next)

		if next == start {
			break
		}

		current = next
	}

	return path
}
