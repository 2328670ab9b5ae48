package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/rxdoc/internal/collection"
	"github.com/roach88/rxdoc/internal/engine"
	"github.com/roach88/rxdoc/internal/ir"
	"github.com/roach88/rxdoc/internal/schema"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The write or read was rejected (hook, validation, conflict, not found)
	ExitCommandError = 2 // Command error (bad arguments, config, storage)
)

// Error codes reported in CLI responses.
const (
	ErrCodeGeneric    = "E001"
	ErrCodeArgs       = "E002"
	ErrCodeConfig     = "E003"
	ErrCodeNotFound   = "E004"
	ErrCodeHook       = "E010"
	ErrCodeValidation = "E011"
	ErrCodeConflict   = "E012"
	ErrCodePersist    = "E013"
	ErrCodePostCommit = "E014"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Verbose output; keeps JSON on Writer parseable
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// Fail reports err and returns the matching ExitError.
func (f *OutputFormatter) Fail(err error) error {
	code, exit, details := classify(err)
	_ = f.Error(code, err.Error(), details)
	return WrapExitError(exit, code, err)
}

// classify maps an operation error to a CLI error code, exit code and details.
func classify(err error) (string, int, any) {
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		return ErrCodeValidation, ExitFailure, ve.Errors
	}

	var we *engine.WriteError
	if errors.As(err, &we) {
		switch we.Code {
		case engine.ErrCodePreHook:
			return ErrCodeHook, ExitFailure, nil
		case engine.ErrCodeValidation:
			return ErrCodeValidation, ExitFailure, nil
		case engine.ErrCodeConflict:
			return ErrCodeConflict, ExitFailure, nil
		case engine.ErrCodePersist:
			return ErrCodePersist, ExitCommandError, nil
		case engine.ErrCodePostHook:
			if we.Document == nil {
				return ErrCodePostCommit, ExitFailure, nil
			}
			return ErrCodePostCommit, ExitFailure, newDocumentView(*we.Document)
		}
	}

	var ee *ExitError
	if errors.As(err, &ee) {
		return ErrCodeGeneric, ee.Code, nil
	}
	if errors.Is(err, collection.ErrDocumentRemoved) {
		return ErrCodeNotFound, ExitFailure, nil
	}
	return ErrCodeGeneric, ExitCommandError, nil
}

// DocumentView is how documents are printed.
type DocumentView struct {
	ID      string    `json:"id"`
	Rev     string    `json:"rev"`
	Seq     int64     `json:"seq,omitempty"`
	Deleted bool      `json:"deleted,omitempty"`
	Data    ir.Object `json:"data"`
}

func newDocumentView(doc ir.StoredDocument) DocumentView {
	return DocumentView{ID: doc.ID, Rev: doc.Rev, Seq: doc.Seq, Deleted: doc.Deleted, Data: doc.Data}
}

func viewOf(doc *collection.Document) DocumentView {
	return DocumentView{ID: doc.ID(), Rev: doc.Revision(), Deleted: doc.Deleted(), Data: doc.State().Data()}
}

// String renders the text form: id, revision and canonical data.
func (v DocumentView) String() string {
	data, err := ir.MarshalCanonical(v.Data)
	if err != nil {
		data = []byte(err.Error())
	}
	if v.Deleted {
		return fmt.Sprintf("%s rev=%s deleted %s", v.ID, v.Rev, data)
	}
	return fmt.Sprintf("%s rev=%s %s", v.ID, v.Rev, data)
}

// Documents outputs a list of documents, one per line in text format.
func (f *OutputFormatter) Documents(views []DocumentView) error {
	if f.Format == "json" {
		return f.Success(views)
	}
	if len(views) == 0 {
		fmt.Fprintln(f.Writer, "(no documents)")
		return nil
	}
	for _, v := range views {
		fmt.Fprintln(f.Writer, v)
	}
	return nil
}
