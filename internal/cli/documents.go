package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rxdoc/internal/collection"
	"github.com/roach88/rxdoc/internal/hooks"
	"github.com/roach88/rxdoc/internal/ir"
)

// InsertOptions holds flags for the insert command.
type InsertOptions struct {
	*RootOptions
	Defaults []string
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InsertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "insert <json>",
		Short: "Insert a document",
		Long: `Insert a JSON object as a new document.

A missing primary key is generated. Each --default field=value is applied
by a pre-insert hook when the record does not already carry the field.
Values are parsed as JSON and fall back to a plain string.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsert(cmd, opts, args[0])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringArrayVar(&opts.Defaults, "default", nil, "field=value applied when field is missing (repeatable)")

	return cmd
}

func runInsert(cmd *cobra.Command, opts *InsertOptions, raw string) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	record, err := ir.ParseObject([]byte(raw))
	if err != nil {
		_ = f.Error(ErrCodeArgs, fmt.Sprintf("invalid document JSON: %v", err), nil)
		return WrapExitError(ExitCommandError, "parse document", err)
	}
	defaults, err := parseAssignments(opts.Defaults)
	if err != nil {
		_ = f.Error(ErrCodeArgs, err.Error(), nil)
		return WrapExitError(ExitCommandError, "parse defaults", err)
	}

	return withSession(opts.RootOptions, f, func(s *Session) error {
		for _, a := range defaults {
			s.Collection.PreInsert(defaultHook(a.field, a.value), false)
		}

		doc, err := s.Collection.Insert(cmd.Context(), record)
		if err != nil {
			return f.Fail(err)
		}
		f.VerboseLog("inserted %s into %s", doc.ID(), s.Collection.Name())
		return f.Success(viewOf(doc))
	})
}

func defaultHook(field string, v ir.Value) hooks.Hook {
	return func(_ context.Context, subj *hooks.Subject) error {
		if _, ok := subj.Get(field); !ok {
			subj.Set(field, v)
		}
		return nil
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a live document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(opts, f, func(s *Session) error {
				doc, err := findLive(cmd.Context(), f, s, args[0])
				if err != nil {
					return err
				}
				return f.Success(viewOf(doc))
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every live document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(opts, f, func(s *Session) error {
				docs, err := s.Collection.Find(cmd.Context())
				if err != nil {
					return f.Fail(err)
				}
				views := make([]DocumentView, 0, len(docs))
				for _, doc := range docs {
					views = append(views, viewOf(doc))
				}
				return f.Documents(views)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Print every revision of a document, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(opts, f, func(s *Session) error {
				revs, err := s.Store.Collection(s.Collection.Name()).History(cmd.Context(), args[0])
				if err != nil {
					return f.Fail(err)
				}
				if len(revs) == 0 {
					return notFound(f, args[0])
				}
				views := make([]DocumentView, 0, len(revs))
				for _, rev := range revs {
					views = append(views, newDocumentView(rev))
				}
				return f.Documents(views)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// SetOptions holds flags for the set command.
type SetOptions struct {
	*RootOptions
	Unset []string
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set <id> [field=value...]",
		Short: "Change fields of a document and save it",
		Long: `Apply field assignments and --unset removals to a document, then save.

Values are parsed as JSON and fall back to a plain string.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(cmd, opts, args[0], args[1:])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringArrayVar(&opts.Unset, "unset", nil, "field to remove (repeatable)")

	return cmd
}

func runSet(cmd *cobra.Command, opts *SetOptions, id string, raw []string) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	assignments, err := parseAssignments(raw)
	if err == nil && len(assignments) == 0 && len(opts.Unset) == 0 {
		err = fmt.Errorf("nothing to change: give field=value or --unset")
	}
	if err != nil {
		_ = f.Error(ErrCodeArgs, err.Error(), nil)
		return WrapExitError(ExitCommandError, "parse changes", err)
	}

	return withSession(opts.RootOptions, f, func(s *Session) error {
		doc, err := findLive(cmd.Context(), f, s, id)
		if err != nil {
			return err
		}
		for _, a := range assignments {
			if err := doc.Set(a.field, a.value); err != nil {
				return f.Fail(err)
			}
		}
		for _, field := range opts.Unset {
			if err := doc.Unset(field); err != nil {
				return f.Fail(err)
			}
		}
		if err := doc.Save(cmd.Context()); err != nil {
			return f.Fail(err)
		}
		f.VerboseLog("saved %s at %s", doc.ID(), doc.Revision())
		return f.Success(viewOf(doc))
	})
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withSession(opts, f, func(s *Session) error {
				doc, err := findLive(cmd.Context(), f, s, args[0])
				if err != nil {
					return err
				}
				if err := doc.Remove(cmd.Context()); err != nil {
					return f.Fail(err)
				}
				return f.Success(viewOf(doc))
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func findLive(ctx context.Context, f *OutputFormatter, s *Session, id string) (*collection.Document, error) {
	doc, err := s.Collection.FindOne(ctx, id)
	if err != nil {
		return nil, f.Fail(err)
	}
	if doc == nil {
		return nil, notFound(f, id)
	}
	return doc, nil
}

func notFound(f *OutputFormatter, id string) error {
	msg := fmt.Sprintf("document %q not found", id)
	_ = f.Error(ErrCodeNotFound, msg, nil)
	return NewExitError(ExitFailure, msg)
}

type assignment struct {
	field string
	value ir.Value
}

// parseAssignments parses field=value pairs. A value that is not valid
// JSON is taken as a string.
func parseAssignments(raw []string) ([]assignment, error) {
	out := make([]assignment, 0, len(raw))
	for _, r := range raw {
		field, value, ok := strings.Cut(r, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid assignment %q: want field=value", r)
		}
		v, err := ir.ParseJSON([]byte(value))
		if err != nil {
			v = ir.String(value)
		}
		out = append(out, assignment{field: field, value: v})
	}
	return out, nil
}
