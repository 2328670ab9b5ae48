// Package ir provides the value model shared by every other package: the
// sealed Value union that document records are made of, canonical JSON
// serialization and content-addressed revision hashes.
//
// ir imports nothing internal, so storage, validation, reactive state and
// the write pipeline can all agree on one record representation.
//
// Key constraints:
//   - A record is an Object; missing fields are absent keys, never nil values
//   - Records are deep cloned at every ownership boundary (see Clone)
//   - Revision hashes are computed only from canonical JSON
package ir
