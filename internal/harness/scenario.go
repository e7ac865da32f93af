package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultStart is the ledger time a scenario starts at when it names none.
var DefaultStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Scenario is a scripted sequence of submissions against a fresh ledger,
// followed by assertions over the trace and the final active set.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the RFC 3339 ledger time of the first step.
	Start string `yaml:"start,omitempty"`

	// Templates is a directory of CUE template files to load instead of
	// the built-in catalogue. Relative paths resolve against the scenario
	// file's directory.
	Templates string `yaml:"templates,omitempty"`

	// Steps run in order. Each is a create, an exercise, or a clock move.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one scenario step. Exactly one of Create, Exercise, Advance and
// At is set.
//
// String values of the form "$name" anywhere in Payload or Args are
// replaced with the contract id bound to name.
type Step struct {
	// Create names the template to create a contract of.
	Create string `yaml:"create,omitempty"`

	// Exercise names the choice to exercise on the contract bound to On.
	Exercise string `yaml:"exercise,omitempty"`

	// Advance moves the ledger clock forward by a Go duration ("168h").
	Advance string `yaml:"advance,omitempty"`

	// At sets the ledger clock to an RFC 3339 time.
	At string `yaml:"at,omitempty"`

	// As is the acting party.
	As string `yaml:"as,omitempty"`

	// On is the binding that holds the exercised contract.
	On string `yaml:"on,omitempty"`

	// Payload is the new contract's payload (create).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Args are the choice arguments (exercise).
	Args map[string]any `yaml:"args,omitempty"`

	// Bind names the first produced contract for later steps.
	Bind string `yaml:"bind,omitempty"`

	// Expect checks the outcome. Without it the step must commit.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Step kinds.
const (
	StepCreate   = "create"
	StepExercise = "exercise"
	StepAdvance  = "advance"
	StepAt       = "at"
)

// Kind reports which kind of step s is, or "" when none or several of
// the kind fields are set.
func (s Step) Kind() string {
	var kinds []string
	if s.Create != "" {
		kinds = append(kinds, StepCreate)
	}
	if s.Exercise != "" {
		kinds = append(kinds, StepExercise)
	}
	if s.Advance != "" {
		kinds = append(kinds, StepAdvance)
	}
	if s.At != "" {
		kinds = append(kinds, StepAt)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Expect is the expected outcome of a step.
type Expect struct {
	// Status is "committed" or "rejected". It defaults to "rejected" when
	// Kind or Reason is set and to "committed" otherwise.
	Status string `yaml:"status,omitempty"`

	// Kind is the expected error kind ("InvalidArgument", "NotFound").
	Kind string `yaml:"kind,omitempty"`

	// Reason is the expected error reason ("InsufficientFunds").
	Reason string `yaml:"reason,omitempty"`

	// Result holds expected result fields. Subset match.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace or the final ledger.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is "<Template>.<Choice>" or "<Template>.create"
	// (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are expected step arguments, subset match (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Actions is the expected action order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected number of committed occurrences (trace_count)
	// or of matching active contracts (active_count).
	Count int `yaml:"count,omitempty"`

	// Binding names the contract to inspect (contract).
	Binding string `yaml:"binding,omitempty"`

	// Active is the expected status of the bound contract (contract).
	Active *bool `yaml:"active,omitempty"`

	// Payload holds expected payload fields, subset match (contract).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Template and Party select the active set to count (active_count).
	Template string `yaml:"template,omitempty"`
	Party    string `yaml:"party,omitempty"`

	// Where holds payload fields that must be equal (active_count).
	Where map[string]any `yaml:"where,omitempty"`

	// Filter is a CEL expression over the contract (active_count).
	Filter string `yaml:"filter,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertContract      = "contract"
	AssertActiveCount   = "active_count"
)

// LoadScenario reads and parses a scenario YAML file. A relative
// Templates directory is resolved against the file's directory and must
// exist.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Templates != "" {
		if !filepath.IsAbs(scenario.Templates) {
			scenario.Templates = filepath.Join(filepath.Dir(path), scenario.Templates)
		}
		info, err := os.Stat(scenario.Templates)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: templates: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("invalid scenario: templates: %s is not a directory", scenario.Templates)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Unknown fields are rejected so a
// misspelt key fails loudly instead of being ignored.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: empty scenario")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// StartTime returns the parsed Start, or DefaultStart when empty.
func (s *Scenario) StartTime() (time.Time, error) {
	if s.Start == "" {
		return DefaultStart, nil
	}
	t, err := time.Parse(time.RFC3339, s.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("start: %w", err)
	}
	return t.UTC(), nil
}

// validateScenario checks required fields and normalizes expectations.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := s.StartTime(); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Kind() {
	case "":
		return fmt.Errorf("steps[%d]: exactly one of create, exercise, advance or at is required", index)

	case StepCreate:
		if st.As == "" {
			return fmt.Errorf("steps[%d]: as is required for create", index)
		}
		if st.Payload == nil {
			return fmt.Errorf("steps[%d]: payload is required for create", index)
		}
		if st.On != "" || st.Args != nil {
			return fmt.Errorf("steps[%d]: on and args apply only to exercise", index)
		}

	case StepExercise:
		if st.As == "" {
			return fmt.Errorf("steps[%d]: as is required for exercise", index)
		}
		if st.On == "" {
			return fmt.Errorf("steps[%d]: on is required for exercise", index)
		}
		if st.Payload != nil {
			return fmt.Errorf("steps[%d]: payload applies only to create", index)
		}

	case StepAdvance, StepAt:
		if st.As != "" || st.On != "" || st.Payload != nil || st.Args != nil || st.Bind != "" || st.Expect != nil {
			return fmt.Errorf("steps[%d]: clock steps take no other fields", index)
		}
		if st.Advance != "" {
			d, err := time.ParseDuration(st.Advance)
			if err != nil {
				return fmt.Errorf("steps[%d]: advance: %w", index, err)
			}
			if d <= 0 {
				return fmt.Errorf("steps[%d]: advance must be positive", index)
			}
		}
		if st.At != "" {
			if _, err := time.Parse(time.RFC3339, st.At); err != nil {
				return fmt.Errorf("steps[%d]: at: %w", index, err)
			}
		}
		return nil
	}

	if e := st.Expect; e != nil {
		if e.Status == "" {
			e.Status = StatusCommitted
			if e.Kind != "" || e.Reason != "" {
				e.Status = StatusRejected
			}
		}
		switch e.Status {
		case StatusCommitted:
			if e.Kind != "" || e.Reason != "" {
				return fmt.Errorf("steps[%d].expect: kind and reason apply only to rejected steps", index)
			}
		case StatusRejected:
			if e.Result != nil {
				return fmt.Errorf("steps[%d].expect: result applies only to committed steps", index)
			}
			if st.Bind != "" {
				return fmt.Errorf("steps[%d]: a rejected step cannot bind", index)
			}
		default:
			return fmt.Errorf("steps[%d].expect: unknown status %q", index, e.Status)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertContract:
		if a.Binding == "" {
			return fmt.Errorf("assertions[%d]: binding is required for contract", index)
		}
		if a.Active == nil && len(a.Payload) == 0 {
			return fmt.Errorf("assertions[%d]: active or payload is required for contract", index)
		}
	case AssertActiveCount:
		if a.Template == "" {
			return fmt.Errorf("assertions[%d]: template is required for active_count", index)
		}
		if a.Party == "" {
			return fmt.Errorf("assertions[%d]: party is required for active_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for active_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
