package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/termgraph/internal/compiler"
	"github.com/roach88/termgraph/internal/ir"
)

// LoadOutput reports a completed load.
type LoadOutput struct {
	Definitions int             `json:"definitions"`
	Commit      ir.CommitRecord `json:"commit"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "load <definitions-dir>",
		Short: "Load concept definitions into the store and commit them",
		Long: `Compile the CUE concept definitions in a directory, stage them as the
stated logic graphs of their concepts, and commit them in one commit.

Concepts that do not exist yet are created. Existing concepts get a new
version of their stated definition; unchanged definitions still produce
a version. Nothing is staged when any definition is invalid.

Examples:
  termgraph load ./definitions
  termgraph load ./definitions -m "anatomy 2026-10"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(rootOpts, cmd, args[0], comment)
		},
	}

	cmd.Flags().StringVarP(&comment, "message", "m", "load", "commit comment")

	return cmd
}

func runLoad(opts *RootOptions, cmd *cobra.Command, dir, comment string) error {
	ctx := cmd.Context()
	formatter := opts.formatter(cmd)

	loaded, err := LoadDefinitions(dir)
	if err != nil {
		return formatter.Fail(err, nil)
	}
	formatter.VerboseLog("Compiled %d definition(s) from %d file(s)", len(loaded.Definitions), loaded.FileCount)

	svc, err := opts.openStore(ctx, cmd)
	if err != nil {
		return formatter.Fail(err, nil)
	}
	defer svc.Close(ctx)

	ec := svc.Terms().DefaultEditCoordinate()
	edit, err := svc.Define(ctx, ec, loaded.Definitions...)
	if err != nil {
		return formatter.Fail(WrapExitError(ExitFailure, definitionCode(err), "define", err), nil)
	}
	if err := edit.Wait(ctx); err != nil {
		return formatter.Fail(WrapExitError(ExitCommandError, ErrCodeStore, "stage definitions", err), nil)
	}
	rec, err := svc.Commit(ctx, ec, comment)
	if err != nil {
		return formatter.Fail(WrapExitError(ExitCommandError, ErrCodeStore, "commit", err), nil)
	}
	if err := svc.Sync(ctx); err != nil {
		return formatter.Fail(WrapExitError(ExitCommandError, ErrCodeStore, "sync", err), nil)
	}

	out := LoadOutput{Definitions: len(loaded.Definitions), Commit: rec}
	return formatter.Emit(out, func(w io.Writer) {
		if rec.IsEmpty() {
			fmt.Fprintln(w, "✓ Nothing to commit")
			return
		}
		fmt.Fprintf(w, "✓ Loaded %d definition(s)\n", out.Definitions)
		fmt.Fprintf(w, "  commit %d at %d: %d component(s) %s\n", rec.Sequence, rec.Time, len(rec.Nids), rec.ID)
	})
}

// definitionCode returns the code of the first validation problem in err.
func definitionCode(err error) string {
	var v compiler.ValidationError
	if errors.As(err, &v) {
		return v.Code
	}
	return ErrCodeGeneric
}
