// Package engine implements the write pipeline of a collection.
//
// Every insert, save and remove runs the same strict sequence:
//
//  1. series pre hooks, one at a time in registration order
//  2. parallel pre hooks, launched together and joined
//  3. schema validation (insert and save only)
//  4. persistence through the storage adapter
//  5. commit to the document's reactive state
//  6. series post hooks, then parallel post hooks
//
// Any failure in steps 1-4 aborts the attempt with no durable or reactive
// effect: hooks work on a private copy of the record and the reactive state
// is only touched in step 5. A post hook failure is returned to the caller
// but the write stays committed.
//
// The pipeline never retries. Conflicts reported by the adapter are
// surfaced as-is.
package engine
