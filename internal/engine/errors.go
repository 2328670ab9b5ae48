package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/rxdoc/internal/hooks"
	"github.com/roach88/rxdoc/internal/ir"
	"github.com/roach88/rxdoc/internal/schema"
	"github.com/roach88/rxdoc/internal/store"
)

// ErrPrimaryKeyChanged is reported (inside a ValidationError) when a save
// would change the document's primary key.
var ErrPrimaryKeyChanged = errors.New("primary key cannot change")

// HookError is returned by a failing or panicking hook.
type HookError struct {
	Operation hooks.Operation
	Phase     hooks.Phase
	Mode      hooks.Mode

	// Index is the hook's position in its series or parallel list.
	Index int

	// Panicked is set when the hook panicked instead of returning an error.
	Panicked bool

	Err error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s-%s %s hook #%d: %v", e.Phase, e.Operation, e.Mode, e.Index, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// WriteError is the error every failed pipeline run returns.
//
// Code tells which step failed. For every code except ErrCodePostHook the
// attempt left no durable or reactive trace.
type WriteError struct {
	// Code identifies the failing step.
	Code WriteErrorCode

	Operation  hooks.Operation
	Collection string

	// DocID is the primary key of the target, when known.
	DocID string

	// Document is the committed document. Set only for ErrCodePostHook.
	Document *ir.StoredDocument

	Err error
}

// WriteErrorCode categorizes write failures.
type WriteErrorCode string

const (
	// ErrCodePreHook indicates a pre hook failed and the attempt was aborted.
	ErrCodePreHook WriteErrorCode = "PRE_HOOK_FAILED"

	// ErrCodeValidation indicates the record did not satisfy the schema.
	ErrCodeValidation WriteErrorCode = "VALIDATION_FAILED"

	// ErrCodeConflict indicates the adapter reported a revision conflict.
	ErrCodeConflict WriteErrorCode = "CONFLICT"

	// ErrCodePersist indicates the adapter failed for any other reason.
	ErrCodePersist WriteErrorCode = "PERSIST_FAILED"

	// ErrCodePostHook indicates a post hook failed after the write committed.
	ErrCodePostHook WriteErrorCode = "POST_HOOK_FAILED"
)

func (e *WriteError) Error() string {
	if e.DocID != "" {
		return fmt.Sprintf("%s %s/%s: %s: %v", e.Operation, e.Collection, e.DocID, e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Operation, e.Collection, e.Code, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Committed reports whether the write persisted despite the error.
func (e *WriteError) Committed() bool {
	return e.Code == ErrCodePostHook
}

func hasCode(err error, code WriteErrorCode) bool {
	var we *WriteError
	if errors.As(err, &we) {
		return we.Code == code
	}
	return false
}

// IsHookError returns true if a pre or post hook caused err.
// Uses errors.As to handle wrapped errors.
func IsHookError(err error) bool {
	var he *HookError
	return errors.As(err, &he)
}

// IsValidationError returns true if err reports a schema violation.
func IsValidationError(err error) bool {
	return hasCode(err, ErrCodeValidation) || schema.IsValidationError(err)
}

// IsConflictError returns true if the adapter reported a conflict.
func IsConflictError(err error) bool {
	return hasCode(err, ErrCodeConflict) || store.IsConflictError(err)
}

// IsPersistError returns true if persistence failed, conflicts included.
func IsPersistError(err error) bool {
	return hasCode(err, ErrCodePersist) || IsConflictError(err)
}

// IsPostCommitError returns true if err came from a post hook after the
// write committed.
func IsPostCommitError(err error) bool {
	return hasCode(err, ErrCodePostHook)
}

// IsCommitted reports whether the operation that returned err persisted.
// A nil error means committed.
func IsCommitted(err error) bool {
	return err == nil || IsPostCommitError(err)
}
