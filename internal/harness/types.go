package harness

import "fmt"

// Event records one executed step.
type Event struct {
	Step   int    `json:"step"`
	Kind   string `json:"kind"` // "define", "retire", "commit", "cancel" or "mark"
	Detail string `json:"detail"`
}

func (e Event) String() string {
	return fmt.Sprintf("[%d] %s %s", e.Step, e.Kind, e.Detail)
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Log lists executed steps in order.
	Log []Event `json:"log"`

	// Errors holds assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Tree is the stated taxonomy at the latest coordinate after the last
	// step, rendered one concept per line.
	Tree string `json:"tree"`

	// Marks maps each mark label to the commit time it recorded.
	Marks map[string]int64 `json:"marks,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Log:    []Event{},
		Errors: []string{},
		Marks:  make(map[string]int64),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) record(step int, kind, format string, args ...any) {
	r.Log = append(r.Log, Event{Step: step, Kind: kind, Detail: fmt.Sprintf(format, args...)})
}
