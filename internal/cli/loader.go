package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/termgraph/internal/compiler"
)

// Error codes shared by all commands. Definition validation codes
// (E101-E109) come from the compiler package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load or compile failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeConfig      = "E006" // Configuration unreadable or invalid
	ErrCodeStore       = "E007" // Store could not be opened, written or synced
	ErrCodeUnknown     = "E008" // Unknown concept name
	ErrCodeBadArgument = "E009" // Invalid flag or argument value
	ErrCodeWriteFailed = "E010" // File write error
	ErrCodeTestFailed  = "E011" // One or more scenarios failed
)

// LoadResult holds the definitions compiled from a directory.
type LoadResult struct {
	Definitions []compiler.Definition
	FileCount   int
}

// LoadDefinitions compiles every definition in the CUE package at dir.
// Compile problems are returned as a single ExitError with ErrCodeLoadFailed
// and the individual errors joined beneath it.
func LoadDefinitions(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("definitions directory not found: %s", dir))
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeNotFound, "error accessing definitions directory", err)
	}
	if !info.IsDir() {
		return nil, NewExitError(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("not a directory: %s", dir))
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeScanError, "error scanning directory", err)
	}
	if len(files) == 0 {
		return nil, NewExitError(ExitCommandError, ErrCodeNoFiles, fmt.Sprintf("no CUE files found in %s", dir))
	}

	defs, errs := compiler.LoadDir(dir)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitFailure, ErrCodeLoadFailed, describeCompileErrors(errs), errors.Join(errs...))
	}
	return &LoadResult{Definitions: defs, FileCount: len(files)}, nil
}

func describeCompileErrors(errs []error) string {
	if len(errs) == 1 {
		return "compile failed"
	}
	return fmt.Sprintf("compile failed with %d errors", len(errs))
}

// FindCUEFiles returns the .cue files directly inside dir. Subdirectories
// are separate CUE packages and are not loaded.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".cue") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
