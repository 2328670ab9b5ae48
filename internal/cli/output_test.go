package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxdoc/internal/collection"
	"github.com/roach88/rxdoc/internal/engine"
	"github.com/roach88/rxdoc/internal/ir"
	"github.com/roach88/rxdoc/internal/schema"
)

func mustCanonical(t *testing.T, a assignment) string {
	t.Helper()
	data, err := ir.MarshalCanonical(a.value)
	require.NoError(t, err)
	return string(data)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "inner", errors.New("cause")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "inner: cause", WrapExitError(ExitFailure, "inner", errors.New("cause")).Error())
}

func TestClassify(t *testing.T) {
	committed := &ir.StoredDocument{ID: "p1", Rev: "1-abc", Data: ir.Object{"passportId": ir.String("p1")}}

	tests := []struct {
		name     string
		err      error
		wantCode string
		wantExit int
	}{
		{"schema", &schema.ValidationError{SchemaID: "s"}, ErrCodeValidation, ExitFailure},
		{"pre hook", &engine.WriteError{Code: engine.ErrCodePreHook, Err: errors.New("no")}, ErrCodeHook, ExitFailure},
		{"primary key", &engine.WriteError{Code: engine.ErrCodeValidation, Err: engine.ErrPrimaryKeyChanged}, ErrCodeValidation, ExitFailure},
		{"conflict", &engine.WriteError{Code: engine.ErrCodeConflict, Err: errors.New("rev")}, ErrCodeConflict, ExitFailure},
		{"persist", &engine.WriteError{Code: engine.ErrCodePersist, Err: errors.New("disk")}, ErrCodePersist, ExitCommandError},
		{"post hook", &engine.WriteError{Code: engine.ErrCodePostHook, Document: committed, Err: errors.New("late")}, ErrCodePostCommit, ExitFailure},
		{"removed", fmt.Errorf("set: %w", collection.ErrDocumentRemoved), ErrCodeNotFound, ExitFailure},
		{"other", errors.New("boom"), ErrCodeGeneric, ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, exit, _ := classify(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantExit, exit)
		})
	}
}

func TestFailPostHookCarriesDocument(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}
	err := f.Fail(&engine.WriteError{
		Code:     engine.ErrCodePostHook,
		Document: &ir.StoredDocument{ID: "p1", Rev: "1-abc", Data: ir.Object{"passportId": ir.String("p1")}},
		Err:      errors.New("audit down"),
	})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Error struct {
			Code    string       `json:"code"`
			Details DocumentView `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, ErrCodePostCommit, resp.Error.Code)
	assert.Equal(t, "1-abc", resp.Error.Details.Rev)
	assert.Equal(t, ir.Object{"passportId": ir.String("p1")}, resp.Error.Details.Data)
}

func TestOutputFormatterText(t *testing.T) {
	var out, errOut bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &out, ErrWriter: &errOut, Verbose: true}

	require.NoError(t, f.Error("E001", "broken", "why"))
	f.VerboseLog("step %d", 1)
	assert.Equal(t, "Error [E001]: broken\nDetails: why\n", out.String())
	assert.Equal(t, "step 1\n", errOut.String())
}

func TestDocumentViewString(t *testing.T) {
	v := DocumentView{ID: "p1", Rev: "2-ff", Data: ir.Object{"b": ir.Int(1), "a": ir.String("x")}}
	assert.Equal(t, `p1 rev=2-ff {"a":"x","b":1}`, v.String())

	v.Deleted = true
	assert.Equal(t, `p1 rev=2-ff deleted {"a":"x","b":1}`, v.String())
}
