package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rxdoc/internal/ir"
)

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Insert one document per line of a JSON lines file",
		Long: `Insert every JSON object of a JSON lines file, in order.

Blank lines are skipped. The import stops at the first rejected line;
documents inserted before it stay committed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args[0])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// ImportResult is the success payload of the import command.
type ImportResult struct {
	Inserted []string `json:"inserted"`
}

func (r ImportResult) String() string {
	return fmt.Sprintf("✓ Imported %d documents", len(r.Inserted))
}

func runImport(cmd *cobra.Command, opts *RootOptions, path string) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			_ = f.Error(ErrCodeArgs, err.Error(), nil)
			return WrapExitError(ExitCommandError, "open input", err)
		}
		defer file.Close()
		in = file
	}

	return withSession(opts, f, func(s *Session) error {
		result := ImportResult{Inserted: []string{}}
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			record, err := ir.ParseObject([]byte(text))
			if err != nil {
				_ = f.Error(ErrCodeArgs, fmt.Sprintf("line %d: %v", line, err), result)
				return WrapExitError(ExitCommandError, "parse input", err)
			}
			doc, err := s.Collection.Insert(cmd.Context(), record)
			if err != nil {
				return f.Fail(fmt.Errorf("line %d: %w", line, err))
			}
			result.Inserted = append(result.Inserted, doc.ID())
			f.VerboseLog("line %d: inserted %s", line, doc.ID())
		}
		if err := scanner.Err(); err != nil {
			_ = f.Error(ErrCodeArgs, err.Error(), result)
			return WrapExitError(ExitCommandError, "read input", err)
		}
		return f.Success(result)
	})
}
