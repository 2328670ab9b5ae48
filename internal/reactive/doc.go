// Package reactive holds the committed, observable projection of documents.
//
// A State is mutated only by Commit and MarkDeleted, which the write
// pipeline calls after persistence succeeded. Readers and subscribers
// therefore only ever see durably persisted values.
//
// Subscriptions deliver the latest value: each channel has a buffer of one
// and a newer value replaces an unread older one, so a slow observer never
// blocks a commit.
package reactive
