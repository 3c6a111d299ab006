// Package harness runs merge scenarios as executable contract tests.
//
// A scenario names a target model, a list of generation requests and the
// expected shape of the model after they are merged. The harness compiles
// the model, drives a real engine run against an in-memory store, and
// checks the recorded change log and the final tree.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: refined_invariants
//	description: "Invariants inherited through refinement are not copied"
//	model: |
//	  machine: m0: invariants: inv1: "x ∈ ℕ"
//	  machine: m1: refines: "m0"
//	target: components:m1
//	steps:
//	  - parent: components:m1
//	    feature: invariants
//	    value: {kind: invariant, name: inv1, predicate: "x ∈ ℕ"}
//	    expect: suppressed
//	assertions:
//	  - type: absent
//	    parent: components:m1
//	    feature: invariants
//	    name: inv1
//	idempotent: true
//	permutations: true
//
// The model is CUE, either inline (model) or in files (models). A request
// list in the CUE document runs before the YAML steps.
//
// # Assertion Types
//
//   - order: the named values of a feature appear exactly in this order
//   - contains: a feature holds a value with this name
//   - absent: a feature holds no value with this name
//   - accepted: request number N (1-based) was accepted
//   - suppressed: request number N was suppressed as a duplicate
//
// # Whole-run Checks
//
//   - idempotent: merging the same requests again changes nothing
//   - permutations: every order of the requests yields the same tree
//
// # Deterministic Testing
//
// Run ids come from testutil.SequenceRunIDs seeded with the scenario name,
// logs are discarded, and every scenario gets a fresh in-memory database,
// so the rendered tree is byte-identical across runs and can be compared
// against a golden file.
package harness
