// Package model is the in-memory target model tree that generation requests
// are merged into.
//
// A tree is a project whose components are machines and contexts. Machines
// hold variables, invariants, events and extensions; contexts hold carrier
// sets, constants, axioms and extensions; events hold parameters, guards,
// witnesses and actions. Non-containment relations (refines, sees, extends,
// references) link components, events and extensions to each other.
//
// The package knows nothing about merging. It provides ordered containment
// lists, provenance attributes, factories used by generator rules, element
// paths, forward-reference proxies and conversion to and from ir documents.
package model
