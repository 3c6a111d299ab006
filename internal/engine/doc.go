// Package engine merges generation requests into a target model tree.
//
// Generator rules propose elements through Requests. A Run evaluates them one
// at a time, in FIFO order:
//
//  1. the duplicate filter decides whether an equivalent value is already
//     present, either directly in the parent list or transitively through the
//     model's refines, sees and extends relations;
//  2. survivors are tagged with their provenance and placed by the position
//     calculator, which orders siblings by priority and then by the order in
//     which their generating extensions appear in the target;
//  3. the value is inserted and the next request is taken.
//
// Rules may enqueue from several goroutines, but evaluation never overlaps.
// Placement depends only on the target tree and the request attributes, so
// the same set of requests produces the same tree in any arrival order.
//
// A Run owns its storage and extension index. Nothing in this package is
// global.
package engine
