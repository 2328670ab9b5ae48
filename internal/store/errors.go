package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by reads when no document row exists for an id.
var ErrNotFound = errors.New("document not found")

// ConflictReason categorizes a write conflict.
type ConflictReason string

const (
	// ConflictExists means an insert targeted an id that already holds a live document.
	ConflictExists ConflictReason = "EXISTS"

	// ConflictRevision means the stored revision differs from the expected one.
	ConflictRevision ConflictReason = "REVISION_MISMATCH"

	// ConflictMissing means an update or removal targeted an id with no document.
	ConflictMissing ConflictReason = "MISSING"

	// ConflictDeleted means an update or removal targeted a removed document.
	ConflictDeleted ConflictReason = "DELETED"
)

// ConflictError reports an optimistic concurrency failure. The write had no effect.
type ConflictError struct {
	Collection  string
	ID          string
	Reason      ConflictReason
	ExpectedRev string
	ActualRev   string
}

func (e *ConflictError) Error() string {
	if e.Reason == ConflictRevision {
		return fmt.Sprintf("conflict %s: %s/%s expected rev %s, found %s",
			e.Reason, e.Collection, e.ID, e.ExpectedRev, e.ActualRev)
	}
	return fmt.Sprintf("conflict %s: %s/%s", e.Reason, e.Collection, e.ID)
}

// IsConflictError reports whether err is or wraps a *ConflictError.
func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
