// Package ir holds the serialized forms exchanged between the engine, the
// store, the compiler and the CLI: element documents, request documents,
// change records and run records.
//
// ir imports nothing internal. Everything that crosses a process or storage
// boundary is expressed here and hashed through MarshalCanonical.
//
// Constraints kept by every type in this package:
//   - no floats; numbers are int64
//   - JSON tags use snake_case and optional fields are omitempty, so the
//     canonical encoding never sees null
//   - ordering information lives in the document (lists), never in map order
package ir
