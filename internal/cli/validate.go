package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/termgraph/internal/compiler"
	"github.com/roach88/termgraph/internal/identifier"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                       `json:"valid"`
	Definitions int                        `json:"definitions"`
	Errors      []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "validate <definitions-dir>",
		Short: "Check concept definitions without loading them",
		Long: `Compile and check the CUE concept definitions in a directory.

References resolve against the other definitions in the directory and,
unless --offline is given, against the concepts already in the store.
Nothing is written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd, args[0], offline)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "resolve only against well-known terms, not the store")

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command, dir string, offline bool) error {
	formatter := opts.formatter(cmd)

	loaded, err := LoadDefinitions(dir)
	if err != nil {
		return formatter.Fail(err, nil)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)

	known := wellKnownTerm
	if !offline {
		svc, err := opts.openStore(cmd.Context(), cmd)
		if err != nil {
			return formatter.Fail(err, nil)
		}
		defer svc.Close(cmd.Context())
		known = func(name string) bool {
			_, ok := svc.Concept(name)
			return ok
		}
	}

	problems := compiler.Validate(loaded.Definitions, known)
	result := ValidationResult{
		Valid:       len(problems) == 0,
		Definitions: len(loaded.Definitions),
		Errors:      problems,
	}
	if len(problems) > 0 {
		if formatter.Format != "json" {
			fmt.Fprintln(formatter.Writer, "✗ Validation failed")
			fmt.Fprintln(formatter.Writer)
			for _, p := range problems {
				fmt.Fprintf(formatter.Writer, "  %s\n", p)
			}
		}
		exitErr := NewExitError(ExitFailure, problems[0].Code, fmt.Sprintf("validation failed with %d error(s)", len(problems)))
		if formatter.Format == "json" {
			return formatter.Fail(exitErr, result)
		}
		return exitErr
	}

	return formatter.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %d definition(s) valid\n", result.Definitions)
	})
}

func wellKnownTerm(name string) bool {
	switch name {
	case identifier.TermIsA, identifier.TermRoleGroup, identifier.TermConceptStatus,
		identifier.TermConceptAssemblage, identifier.TermStatedAssemblage,
		identifier.TermInferredAssemblage, identifier.TermDevelopmentPath,
		identifier.TermCoreModule, identifier.TermUser, identifier.TermRoot:
		return true
	}
	return false
}
