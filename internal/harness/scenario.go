package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a sequence of log operations and the assertions that must
// hold on the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Log tunes the log under test.
	Log LogSettings `yaml:"log,omitempty"`

	// Steps run in order on one goroutine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// LogSettings are optional eventlog settings. Zero values keep the harness
// defaults.
type LogSettings struct {
	ReadSize   int `yaml:"read_size,omitempty"`
	BufferSize int `yaml:"buffer_size,omitempty"`
}

// Step is one operation. Exactly one action field is set.
type Step struct {
	// Append appends the YAML value as a JSON payload. A node is kept so
	// that an explicit null payload differs from an absent field.
	Append yaml.Node `yaml:"append,omitempty"`
	// NoWait skips waiting for the appended record to become visible.
	NoWait bool `yaml:"no_wait,omitempty"`

	// AppendRaw writes the line verbatim, bypassing the codec.
	AppendRaw *string `yaml:"append_raw,omitempty"`

	Subscribe   string `yaml:"subscribe,omitempty"`
	From        int64  `yaml:"from,omitempty"`
	Unsubscribe string `yaml:"unsubscribe,omitempty"`

	// Await blocks until the named subscriber has received Count records.
	Await string `yaml:"await,omitempty"`
	// AwaitDrain blocks until the named drain callback has run Count times.
	AwaitDrain string `yaml:"await_drain,omitempty"`
	Count      int    `yaml:"count,omitempty"`

	OnDrain  string `yaml:"on_drain,omitempty"`
	OffDrain string `yaml:"off_drain,omitempty"`

	// Commit stores the next position of Subscriber as the offset of the
	// named consumer group.
	Commit     string `yaml:"commit,omitempty"`
	Subscriber string `yaml:"subscriber,omitempty"`

	Pause  bool `yaml:"pause,omitempty"`
	Resume bool `yaml:"resume,omitempty"`
}

// Action names the operation of the step, or "" if none is set.
func (s Step) Action() string {
	actions := s.actions()
	if len(actions) != 1 {
		return ""
	}
	return actions[0]
}

func (s Step) actions() []string {
	var set []string
	add := func(ok bool, name string) {
		if ok {
			set = append(set, name)
		}
	}
	add(s.Append.Kind != 0, StepAppend)
	add(s.AppendRaw != nil, StepAppendRaw)
	add(s.Subscribe != "", StepSubscribe)
	add(s.Unsubscribe != "", StepUnsubscribe)
	add(s.Await != "", StepAwait)
	add(s.AwaitDrain != "", StepAwaitDrain)
	add(s.OnDrain != "", StepOnDrain)
	add(s.OffDrain != "", StepOffDrain)
	add(s.Commit != "", StepCommit)
	add(s.Pause, StepPause)
	add(s.Resume, StepResume)
	return set
}

// Step actions.
const (
	StepAppend      = "append"
	StepAppendRaw   = "append_raw"
	StepSubscribe   = "subscribe"
	StepUnsubscribe = "unsubscribe"
	StepAwait       = "await"
	StepAwaitDrain  = "await_drain"
	StepOnDrain     = "on_drain"
	StepOffDrain    = "off_drain"
	StepCommit      = "commit"
	StepPause       = "pause"
	StepResume      = "resume"
)

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Key is an event key (trace_contains).
	Key string `yaml:"key,omitempty"`

	// Keys are event keys in expected order (trace_order).
	Keys []string `yaml:"keys,omitempty"`

	// Event, Subscriber and Code filter counted events (trace_count).
	Event      string `yaml:"event,omitempty"`
	Subscriber string `yaml:"subscriber,omitempty"`
	Code       string `yaml:"code,omitempty"`
	Count      int    `yaml:"count,omitempty"`

	// Positions are the exact deliveries of Subscriber (delivered).
	Positions []int64 `yaml:"positions,omitempty"`

	// Position is the expected final cursor position (final_position).
	Position int64 `yaml:"position,omitempty"`

	// Group and Next describe a committed offset (offset).
	Group string `yaml:"group,omitempty"`
	Next  int64  `yaml:"next,omitempty"`
}

// Assertion type constants.
const (
	AssertDelivered     = "delivered"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalPosition = "final_position"
	AssertOffset        = "offset"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Log.ReadSize < 0 || s.Log.BufferSize < 0 {
		return fmt.Errorf("log: sizes must not be negative")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, s Step) error {
	actions := s.actions()
	switch len(actions) {
	case 0:
		return fmt.Errorf("steps[%d]: no action", index)
	case 1:
	default:
		return fmt.Errorf("steps[%d]: exactly one action allowed, got %s", index, strings.Join(actions, ", "))
	}

	switch actions[0] {
	case StepAppendRaw:
		if strings.ContainsRune(*s.AppendRaw, '\n') {
			return fmt.Errorf("steps[%d]: append_raw must be a single line", index)
		}
	case StepSubscribe:
		if s.From < 0 {
			return fmt.Errorf("steps[%d]: from must be non-negative", index)
		}
	case StepAwait, StepAwaitDrain:
		if s.Count <= 0 {
			return fmt.Errorf("steps[%d]: count must be positive for %s", index, actions[0])
		}
	case StepCommit:
		if s.Subscriber == "" {
			return fmt.Errorf("steps[%d]: subscriber is required for commit", index)
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
	case AssertDelivered:
		if a.Subscriber == "" {
			return fmt.Errorf("assertions[%d]: subscriber is required for delivered", index)
		}
	case AssertTraceContains:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Keys) == 0 {
			return fmt.Errorf("assertions[%d]: keys list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalPosition:
		if a.Position < 0 {
			return fmt.Errorf("assertions[%d]: position must be non-negative for final_position", index)
		}
	case AssertOffset:
		if a.Group == "" {
			return fmt.Errorf("assertions[%d]: group is required for offset", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
