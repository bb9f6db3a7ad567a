package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/edgerelay/internal/model"
)

// Scenario defines a scripted relay run.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Relay overrides the scheduler and store settings.
	Relay RelaySettings `yaml:"relay,omitempty"`

	// Setup is stored before the first cycle.
	Setup Setup `yaml:"setup,omitempty"`

	// Flow lists the cycles to run, one step per cycle.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the trace and the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// RelaySettings are the knobs a scenario may turn. Zero values keep the
// harness defaults.
type RelaySettings struct {
	MaxItemsPerPackage int    `yaml:"max_items_per_package,omitempty"`
	MaxItemsCeiling    int    `yaml:"max_items_ceiling,omitempty"`
	DeleteOnOversize   bool   `yaml:"delete_on_oversize,omitempty"`
	Priority           string `yaml:"priority,omitempty"`
}

// Setup describes stored data.
type Setup struct {
	// Items is the number of telemetry items to queue.
	Items int `yaml:"items,omitempty"`

	// Events lists the positions (0-based, among the items of this setup)
	// that are flagged as events.
	Events []int `yaml:"events,omitempty"`

	// Configs maps a category to the number of rows to store.
	Configs map[string]int `yaml:"configs,omitempty"`
}

// FlowStep prepares and runs one cycle.
type FlowStep struct {
	Setup `yaml:",inline"`

	// AuthStatus makes the next authentication fail with this status code.
	AuthStatus int `yaml:"auth_status,omitempty"`

	// Replies are appended to the cloud's script.
	Replies []ReplySpec `yaml:"replies,omitempty"`
}

// ReplySpec is one scripted answer of the cloud.
type ReplySpec struct {
	// Status is the HTTP status code. Ignored when NetworkError is set.
	Status int `yaml:"status,omitempty"`

	MaxAllowedItems  *int   `yaml:"max_allowed_items,omitempty"`
	CurrentItemIndex *int   `yaml:"current_item_index,omitempty"`
	Message          string `yaml:"message,omitempty"`

	// NetworkError fails the request before any response.
	NetworkError string `yaml:"network_error,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Count is used by request_count, pending_items, pending_configs and
	// package_size.
	Count int `yaml:"count,omitempty"`

	// Sizes is used by request_sizes.
	Sizes []int `yaml:"sizes,omitempty"`

	// Status is used by final_status.
	Status string `yaml:"status,omitempty"`

	// Statuses is used by status_sequence.
	Statuses []string `yaml:"statuses,omitempty"`

	// Text is used by error_contains.
	Text string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertRequestCount   = "request_count"
	AssertRequestSizes   = "request_sizes"
	AssertPendingItems   = "pending_items"
	AssertPendingConfigs = "pending_configs"
	AssertPackageSize    = "package_size"
	AssertFinalStatus    = "final_status"
	AssertStatusSequence = "status_sequence"
	AssertErrorContains  = "error_contains"
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

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
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
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Relay.MaxItemsPerPackage < 0 || s.Relay.MaxItemsCeiling < 0 {
		return fmt.Errorf("relay: package sizes must be non-negative")
	}
	if s.Relay.Priority != "" {
		if _, err := model.ParsePriorityMode(s.Relay.Priority); err != nil {
			return fmt.Errorf("relay: %w", err)
		}
	}

	if err := validateSetup("setup", s.Setup); err != nil {
		return err
	}
	for i, step := range s.Flow {
		if err := validateSetup(fmt.Sprintf("flow[%d]", i), step.Setup); err != nil {
			return err
		}
		if step.AuthStatus != 0 && (step.AuthStatus < 400 || step.AuthStatus > 599) {
			return fmt.Errorf("flow[%d]: auth_status must be an error status", i)
		}
		for j, reply := range step.Replies {
			if reply.NetworkError == "" && (reply.Status < 100 || reply.Status > 599) {
				return fmt.Errorf("flow[%d].replies[%d]: status or network_error is required", i, j)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateSetup(where string, s Setup) error {
	if s.Items < 0 {
		return fmt.Errorf("%s: items must be non-negative", where)
	}
	for _, pos := range s.Events {
		if pos < 0 || pos >= s.Items {
			return fmt.Errorf("%s: event position %d outside of %d items", where, pos, s.Items)
		}
	}
	for name, n := range s.Configs {
		if _, err := model.ParseCategory(name); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		if n < 0 {
			return fmt.Errorf("%s: configs.%s must be non-negative", where, name)
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
	case AssertRequestCount, AssertPendingItems, AssertPendingConfigs:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertPackageSize:
		if a.Count < 1 {
			return fmt.Errorf("assertions[%d]: count must be positive for package_size", index)
		}
	case AssertRequestSizes:
		if a.Sizes == nil {
			return fmt.Errorf("assertions[%d]: sizes is required for request_sizes", index)
		}
	case AssertFinalStatus:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for final_status", index)
		}
	case AssertStatusSequence:
		if len(a.Statuses) == 0 {
			return fmt.Errorf("assertions[%d]: statuses list is required for status_sequence", index)
		}
	case AssertErrorContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for error_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
