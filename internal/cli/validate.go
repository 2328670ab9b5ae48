package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rxdoc/internal/ir"
	"github.com/roach88/rxdoc/internal/schema"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <json>",
		Short: "Check a record against the collection schema without writing it",
		Long: `Validate a JSON object against the configured CUE schema.

No hooks run and nothing is written. Exits 1 when the record is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args[0])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// ValidateResult is the success payload of the validate command.
type ValidateResult struct {
	Valid  bool     `json:"valid"`
	Schema string   `json:"schema"`
	Fields []string `json:"fields"`
}

func (r ValidateResult) String() string {
	return fmt.Sprintf("✓ Valid against schema %s", r.Schema)
}

func runValidate(cmd *cobra.Command, opts *RootOptions, raw string) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load config", err)
	}
	sch, err := schema.CompileFile(cfg.Collection.SchemaID, cfg.Collection.Schema)
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "compile schema", err)
	}
	f.VerboseLog("compiled schema %s (primary key %s)", sch.ID, sch.PrimaryKey)

	record, err := ir.ParseObject([]byte(raw))
	if err != nil {
		_ = f.Error(ErrCodeArgs, fmt.Sprintf("invalid document JSON: %v", err), nil)
		return WrapExitError(ExitCommandError, "parse document", err)
	}

	if err := sch.Validate(record); err != nil {
		var ve *schema.ValidationError
		if errors.As(err, &ve) && f.Format != "json" {
			fmt.Fprintln(f.Writer, "✗ Validation failed")
			for _, fe := range ve.Errors {
				if fe.Path == "" {
					fmt.Fprintf(f.Writer, "  %s\n", fe.Message)
					continue
				}
				fmt.Fprintf(f.Writer, "  %s: %s\n", fe.Path, fe.Message)
			}
			return WrapExitError(ExitFailure, ErrCodeValidation, err)
		}
		return f.Fail(err)
	}

	return f.Success(ValidateResult{Valid: true, Schema: sch.ID, Fields: fieldNames(sch)})
}

func fieldNames(sch *schema.Schema) []string {
	fields := sch.Fields()
	names := make([]string, 0, len(fields))
	for _, fd := range fields {
		names = append(names, fd.Name)
	}
	return names
}
