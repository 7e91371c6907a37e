package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/termgraph/internal/compiler"
)

// Scenario is one taxonomy test: fixtures, a sequence of edits, and
// assertions about the resulting taxonomy.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Specs lists CUE definition files committed before the first step.
	// Relative paths are resolved against the scenario file.
	Specs []string `yaml:"specs,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one edit-side action. Exactly one of Define, Retire, Commit and
// Cancel is set, or none when the step only places a mark.
type Step struct {
	// Define stages concept definitions.
	Define []compiler.Definition `yaml:"define,omitempty"`

	// Retire stages the retirement of the named concept.
	Retire string `yaml:"retire,omitempty"`

	// Commit commits the author's pending edits with this comment.
	Commit *string `yaml:"commit,omitempty"`

	// Cancel reverts the author's pending edits.
	Cancel bool `yaml:"cancel,omitempty"`

	// Author names who performs the step. Empty means the default user.
	Author string `yaml:"author,omitempty"`

	// Mark labels the time of the latest commit once the step has run.
	Mark string `yaml:"mark,omitempty"`
}

func (s Step) actions() int {
	n := 0
	if len(s.Define) > 0 {
		n++
	}
	if s.Retire != "" {
		n++
	}
	if s.Commit != nil {
		n++
	}
	if s.Cancel {
		n++
	}
	return n
}

// Assertion checks the taxonomy after the last step.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// Concept is the concept the assertion is about.
	Concept string `yaml:"concept,omitempty"`

	// Ancestor is the candidate subsumer for kind_of.
	Ancestor string `yaml:"ancestor,omitempty"`

	// Expect lists concept names for parents, children and roots. Order
	// does not matter.
	Expect []string `yaml:"expect,omitempty"`

	// Holds is the expected answer of kind_of and active.
	Holds *bool `yaml:"holds,omitempty"`

	// Count is the expected number of commits.
	Count *int `yaml:"count,omitempty"`

	// At positions the query at a mark. Empty means the latest coordinate.
	At string `yaml:"at,omitempty"`

	// Premise is "stated" (default) or "inferred".
	Premise string `yaml:"premise,omitempty"`
}

// Assertion type constants.
const (
	AssertParents  = "parents"
	AssertChildren = "children"
	AssertRoots    = "roots"
	AssertKindOf   = "kind_of"
	AssertActive   = "active"
	AssertCommits  = "commits"
)

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved against the file's directory. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file, resolving
// relative spec paths against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	for i, spec := range scenario.Specs {
		if !filepath.IsAbs(spec) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, spec)
		}
	}
	for _, spec := range scenario.Specs {
		if _, err := os.Stat(spec); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: spec file not found: %s", spec)
		}
	}
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 && len(s.Specs) == 0 {
		return fmt.Errorf("steps or specs are required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	marks := make(map[string]bool)
	for i, step := range s.Steps {
		switch n := step.actions(); {
		case n > 1:
			return fmt.Errorf("steps[%d]: only one of define, retire, commit and cancel may be set", i)
		case n == 0 && step.Mark == "":
			return fmt.Errorf("steps[%d]: step does nothing", i)
		}
		if step.Mark != "" {
			marks[step.Mark] = true
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, marks); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion, marks map[string]bool) error {
	if a.At != "" && !marks[a.At] {
		return fmt.Errorf("assertions[%d]: unknown mark %q", index, a.At)
	}
	switch a.Premise {
	case "", "stated", "inferred":
	default:
		return fmt.Errorf("assertions[%d]: premise must be stated or inferred", index)
	}

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertParents, AssertChildren:
		if a.Concept == "" {
			return fmt.Errorf("assertions[%d]: concept is required for %s", index, a.Type)
		}
	case AssertRoots:
	case AssertKindOf:
		if a.Concept == "" || a.Ancestor == "" {
			return fmt.Errorf("assertions[%d]: concept and ancestor are required for kind_of", index)
		}
		if a.Holds == nil {
			return fmt.Errorf("assertions[%d]: holds is required for kind_of", index)
		}
	case AssertActive:
		if a.Concept == "" || a.Holds == nil {
			return fmt.Errorf("assertions[%d]: concept and holds are required for active", index)
		}
	case AssertCommits:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: a non-negative count is required for commits", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
