package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Golden renders the parts of a result that must stay stable across runs:
// the step log and the final taxonomy.
func (r *Result) Golden(name string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n\nsteps:\n", name)
	for _, ev := range r.Log {
		fmt.Fprintf(&b, "  %s\n", ev)
	}
	b.WriteString("\ntaxonomy:\n")
	for _, line := range strings.Split(strings.TrimSuffix(r.Tree, "\n"), "\n") {
		if line != "" {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario, fails t for every failed assertion,
// and compares the rendering with testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()
	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	AssertGolden(t, scenario.Name, result)
	return nil
}

// AssertGolden compares an already computed result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, result.Golden(name))
}
