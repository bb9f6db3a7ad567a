package harness

import "github.com/roach88/edgerelay/internal/model"

// Trace event types.
const (
	EventAuth     = "auth"
	EventSend     = "send"
	EventResponse = "response"
	EventForward  = "forward"
	EventStatus   = "status"
	EventError    = "error"
)

// TraceEvent is one observable step of a run.
type TraceEvent struct {
	Cycle  int          `json:"cycle"`
	Type   string       `json:"type"`
	URL    string       `json:"url,omitempty"`
	Seqs   []int        `json:"seqs,omitempty"`
	Count  int          `json:"count,omitempty"`
	Code   int          `json:"code,omitempty"`
	Status model.Status `json:"status,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// FinalState is the relay state after the last cycle.
type FinalState struct {
	PendingItems   int          `json:"pending_items"`
	PendingConfigs int          `json:"pending_configs"`
	PackageSize    int          `json:"package_size"`
	Status         model.Status `json:"status"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	State FinalState `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Events returns the trace events of type typ.
func (r *Result) Events(typ string) []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
