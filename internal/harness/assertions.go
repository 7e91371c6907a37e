package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/termgraph/internal/ir"
	"github.com/roach88/termgraph/internal/snapshot"
	"github.com/roach88/termgraph/internal/termstore"
)

// AssertionContext carries what assertions query.
type AssertionContext struct {
	Service *termstore.Service
	Ctx     context.Context
	Marks   map[string]int64
	Path    ir.Nid
}

// AssertionError is returned when an assertion fails. It carries the step
// log to help explain the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Log      []Event
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Log) > 0 {
		fmt.Fprintf(&buf, "\nSteps:\n")
		for _, ev := range e.Log {
			fmt.Fprintf(&buf, "  %s\n", ev)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Log: result.Log}
	}
	svc := actx.Service

	coord := ir.LatestCoordinate(actx.Path)
	if a.At != "" {
		t, ok := actx.Marks[a.At]
		if !ok {
			return fmt.Errorf("unknown mark %q", a.At)
		}
		coord = ir.CoordinateAt(actx.Path, t)
	}
	premise := ir.PremiseStated
	if a.Premise == "inferred" {
		premise = ir.PremiseInferred
	}
	snap := svc.Snapshot(premise, coord, snapshot.ModeDirect)

	lookup := func(name string) (ir.Nid, error) {
		nid, ok := svc.Concept(name)
		if !ok {
			return ir.NoNid, fail(fmt.Sprintf("concept %q", name), "unknown concept")
		}
		return nid, nil
	}

	switch a.Type {
	case AssertParents, AssertChildren:
		concept, err := lookup(a.Concept)
		if err != nil {
			return err
		}
		nids := snap.Parents(concept)
		if a.Type == AssertChildren {
			nids = snap.Children(concept)
		}
		return compareNames(fail, a.Expect, names(svc, nids))

	case AssertRoots:
		return compareNames(fail, a.Expect, names(svc, snap.Roots()))

	case AssertKindOf:
		concept, err := lookup(a.Concept)
		if err != nil {
			return err
		}
		ancestor, err := lookup(a.Ancestor)
		if err != nil {
			return err
		}
		if got := snap.IsKindOf(concept, ancestor); got != *a.Holds {
			return fail(
				fmt.Sprintf("kind_of(%s, %s) = %t", a.Concept, a.Ancestor, *a.Holds),
				fmt.Sprintf("%t", got),
			)
		}
		return nil

	case AssertActive:
		concept, err := lookup(a.Concept)
		if err != nil {
			return err
		}
		if got := svc.IsConceptActive(concept, coord); got != *a.Holds {
			return fail(fmt.Sprintf("active(%s) = %t", a.Concept, *a.Holds), fmt.Sprintf("%t", got))
		}
		return nil

	case AssertCommits:
		recs, err := svc.Commits(actx.Ctx, 1)
		if err != nil {
			return err
		}
		if len(recs) != *a.Count {
			return fail(fmt.Sprintf("%d commits", *a.Count), fmt.Sprintf("%d commits", len(recs)))
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func names(svc *termstore.Service, nids []ir.Nid) []string {
	out := make([]string, len(nids))
	for i, n := range nids {
		out[i] = svc.Name(n)
	}
	slices.Sort(out)
	return out
}

func compareNames(fail func(expected, actual string) error, expect, got []string) error {
	want := slices.Clone(expect)
	slices.Sort(want)
	if !slices.Equal(want, got) {
		return fail(fmt.Sprintf("[%s]", strings.Join(want, ", ")), fmt.Sprintf("[%s]", strings.Join(got, ", ")))
	}
	return nil
}
