// Package collection is the public face of a document collection: hook
// registration, insert, primary-key reads and document handles whose save
// and remove run through the write pipeline.
//
// A Collection keeps at most one *Document per primary key, so every reader
// of a document observes the same reactive state.
package collection
