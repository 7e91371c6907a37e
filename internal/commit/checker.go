package commit

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/termgraph/internal/chronicle"
)

// Phase says when a checker runs.
type Phase uint8

const (
	// PhaseAddUncommitted runs as a unit is registered.
	PhaseAddUncommitted Phase = iota
	// PhaseCommit runs on every pending unit of the committing author.
	PhaseCommit
)

func (p Phase) String() string {
	switch p {
	case PhaseAddUncommitted:
		return "ADD_UNCOMMITTED"
	case PhaseCommit:
		return "COMMIT"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// Unit is one uncommitted version of one component. Chronology supplies the
// component header and is used as the template when the component is new.
type Unit struct {
	Chronology chronicle.Chronology
	Version    chronicle.Version
}

// Checker validates a unit. A nil error is a pass. Checkers must not depend
// on each other's order.
type Checker interface {
	Check(ctx context.Context, u Unit, phase Phase) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, u Unit, phase Phase) error

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context, u Unit, phase Phase) error {
	return f(ctx, u, phase)
}

// check runs every checker and joins their failures into one
// CoordinatorError.
func (c *Coordinator) check(ctx context.Context, u Unit, phase Phase) error {
	var errs []error
	for _, ch := range c.checkers {
		if err := ch.Check(ctx, u, phase); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	c.metrics.CheckFailed(phase.String())
	c.logger.Warn("change check failed",
		"nid", u.Chronology.Nid,
		"stamp", u.Version.Stamp,
		"phase", phase,
		"failures", len(errs),
	)
	return &CoordinatorError{Code: CodeCheckFailed, Op: "check " + phase.String(), Nid: u.Chronology.Nid, Err: errors.Join(errs...)}
}
