package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/histsess/internal/hda"
	"github.com/roach88/histsess/internal/reltime"
	"github.com/roach88/histsess/internal/store"
)

// Scenario is a scripted session against a seeded in-memory historian.
// Running it produces a deterministic trace that can be compared against a
// golden file and checked with assertions.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description"`

	// Now pins the session wall clock. Relative times resolve against it.
	Now time.Time `yaml:"now"`

	// WeekStart is the first day of the week for W-based times. Defaults to
	// sunday.
	WeekStart string `yaml:"week_start,omitempty"`

	// PageSize is the number of raw values per item in one delivery.
	// Zero keeps the server default.
	PageSize int `yaml:"page_size,omitempty"`

	// SessionID is the fixed session id. Defaults to "test-session-default".
	SessionID string `yaml:"session_id,omitempty"`

	// Fixture is loaded into the store before the first step.
	Fixture store.Fixture `yaml:"fixture"`

	// Steps run in order. Each step waits for its request to complete.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated against the trace and the final store.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one session operation.
type Step struct {
	// Op names the operation, one of the Op* constants.
	Op string `yaml:"op"`

	// Items are item ids. Unknown ids are sent anyway so rejection can be
	// observed.
	Items []string `yaml:"items,omitempty"`

	// Start and End bound the time range, as relative or absolute times.
	Start string `yaml:"start,omitempty"`
	End   string `yaml:"end,omitempty"`

	// Time is the single time of a resolve step.
	Time string `yaml:"time,omitempty"`

	// Times are the timestamps of read_at_time and delete_at_time.
	Times []string `yaml:"times,omitempty"`

	MaxValues  int      `yaml:"max_values,omitempty"`
	Aggregate  string   `yaml:"aggregate,omitempty"`
	Interval   string   `yaml:"interval,omitempty"`
	Attributes []string `yaml:"attributes,omitempty"`

	// Values are written to every item of an edit step.
	Values []StepValue `yaml:"values,omitempty"`

	// Notes are attached to every item of an insert_annotations step.
	Notes []StepNote `yaml:"notes,omitempty"`

	// Root and PageSize drive a browse step.
	Root     string `yaml:"root,omitempty"`
	PageSize int    `yaml:"page_size,omitempty"`
}

// StepValue is one value of an edit step. Quality defaults to Good.
type StepValue struct {
	Time    string  `yaml:"time"`
	Value   float64 `yaml:"value"`
	Quality uint32  `yaml:"quality,omitempty"`
}

// StepNote is one annotation of an insert_annotations step.
type StepNote struct {
	Time string `yaml:"time"`
	Text string `yaml:"text"`
	User string `yaml:"user,omitempty"`
}

// Step operations.
const (
	OpResolve           = "resolve"
	OpBrowse            = "browse"
	OpReadRaw           = "read_raw"
	OpReadProcessed     = "read_processed"
	OpReadAtTime        = "read_at_time"
	OpReadAttributes    = "read_attributes"
	OpReadAnnotations   = "read_annotations"
	OpInsert            = "insert"
	OpReplace           = "replace"
	OpInsertReplace     = "insert_replace"
	OpDelete            = "delete"
	OpDeleteAtTime      = "delete_at_time"
	OpInsertAnnotations = "insert_annotations"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
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

// validateScenario checks that required fields are present and that every
// time expression, aggregate and duration parses.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Now.IsZero() {
		return fmt.Errorf("now is required")
	}
	if _, err := parseWeekday(s.WeekStart); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i := range s.Steps {
		if err := validateStep(&s.Steps[i]); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(st *Step) error {
	checkTimes := func(texts ...string) error {
		for _, t := range texts {
			if t == "" {
				continue
			}
			if _, err := reltime.Parse(t); err != nil {
				return err
			}
		}
		return nil
	}

	needItems := true
	switch st.Op {
	case OpResolve:
		needItems = false
		if st.Time == "" {
			return fmt.Errorf("time is required for %s", st.Op)
		}
		return checkTimes(st.Time)
	case OpBrowse:
		needItems = false
	case OpReadRaw, OpReadAttributes, OpReadAnnotations, OpDelete:
	case OpReadProcessed:
		if _, err := hda.ParseAggregate(st.Aggregate); err != nil {
			return err
		}
		if _, err := time.ParseDuration(st.Interval); err != nil {
			return fmt.Errorf("interval: %w", err)
		}
	case OpReadAtTime, OpDeleteAtTime:
		if len(st.Times) == 0 {
			return fmt.Errorf("times are required for %s", st.Op)
		}
	case OpInsert, OpReplace, OpInsertReplace:
		if len(st.Values) == 0 {
			return fmt.Errorf("values are required for %s", st.Op)
		}
		for _, v := range st.Values {
			if err := checkTimes(v.Time); err != nil {
				return err
			}
		}
	case OpInsertAnnotations:
		if len(st.Notes) == 0 {
			return fmt.Errorf("notes are required for %s", st.Op)
		}
		for _, n := range st.Notes {
			if err := checkTimes(n.Time); err != nil {
				return err
			}
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}

	if needItems && len(st.Items) == 0 {
		return fmt.Errorf("items are required for %s", st.Op)
	}
	for _, name := range st.Attributes {
		if _, ok := hda.ParseAttributeID(name); !ok {
			return fmt.Errorf("unknown attribute %q", name)
		}
	}
	if err := checkTimes(st.Times...); err != nil {
		return err
	}
	return checkTimes(st.Start, st.End)
}

func parseWeekday(name string) (time.Weekday, error) {
	if name == "" {
		return time.Sunday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown week_start %q", name)
}
