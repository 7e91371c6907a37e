package commit

import (
	"errors"
	"fmt"

	"github.com/roach88/termgraph/internal/ir"
)

// ErrorCode categorizes coordinator errors.
type ErrorCode string

const (
	// CodeLoadFailed means persisted coordinator state could not be read.
	CodeLoadFailed ErrorCode = "LOAD_FAILED"

	// CodeSyncFailed means coordinator state could not be written durably.
	CodeSyncFailed ErrorCode = "SYNC_FAILED"

	// CodeCheckFailed means a change checker rejected a unit.
	CodeCheckFailed ErrorCode = "CHECK_FAILED"

	// CodeNotUncommitted means a unit was registered with a committed stamp.
	CodeNotUncommitted ErrorCode = "NOT_UNCOMMITTED"

	// CodeWrongAuthor means a unit does not belong to the edit coordinate's author.
	CodeWrongAuthor ErrorCode = "WRONG_AUTHOR"
)

// CoordinatorError reports a failed coordinator operation.
type CoordinatorError struct {
	Code ErrorCode
	Op   string // Operation that failed, e.g. "commit"
	Nid  ir.Nid // Unit involved, NoNid when not unit-specific
	Err  error
}

// Error implements the error interface.
func (e *CoordinatorError) Error() string {
	if e.Nid != ir.NoNid {
		return fmt.Sprintf("%s: %s %d: %v", e.Code, e.Op, e.Nid, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CoordinatorError) Unwrap() error {
	return e.Err
}

// IsCheckFailed returns true if a change checker rejected the unit.
func IsCheckFailed(err error) bool {
	return hasCode(err, CodeCheckFailed)
}

// IsUnrecoverable returns true for lifecycle I/O failures. The caller is
// expected to stop rather than retry.
func IsUnrecoverable(err error) bool {
	return hasCode(err, CodeLoadFailed) || hasCode(err, CodeSyncFailed)
}

func hasCode(err error, code ErrorCode) bool {
	var ce *CoordinatorError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
