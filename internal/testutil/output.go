package testutil

import (
	"sync"

	"github.com/roach88/edgerelay/internal/model"
	"github.com/roach88/edgerelay/internal/transport"
)

// OutputRecorder records what a relay emits on its three outputs.
//
// Thread-safety: all methods are safe for concurrent use.
type OutputRecorder struct {
	mu        sync.Mutex
	responses []*transport.Response
	errors    []error
	statuses  []model.Status
}

// Forward records a forwarded response.
func (o *OutputRecorder) Forward(resp *transport.Response) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.responses = append(o.responses, resp)
}

// Error records an error.
func (o *OutputRecorder) Error(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, err)
}

// Status records a status change.
func (o *OutputRecorder) Status(s model.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, s)
}

// Responses returns the forwarded responses.
func (o *OutputRecorder) Responses() []*transport.Response {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*transport.Response(nil), o.responses...)
}

// Errors returns the recorded errors.
func (o *OutputRecorder) Errors() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.errors...)
}

// Statuses returns the status changes in emission order.
func (o *OutputRecorder) Statuses() []model.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.Status(nil), o.statuses...)
}

// LastStatus returns the most recent status, or "" if none was emitted.
func (o *OutputRecorder) LastStatus() model.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.statuses) == 0 {
		return ""
	}
	return o.statuses[len(o.statuses)-1]
}
