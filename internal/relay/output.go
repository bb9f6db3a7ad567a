package relay

import (
	"github.com/roach88/edgerelay/internal/model"
	"github.com/roach88/edgerelay/internal/transport"
)

// Output receives what the relay reports back to the producer side.
// Implementations must be safe for concurrent use.
type Output interface {
	// Forward passes on a response received from the server.
	Forward(resp *transport.Response)
	// Error reports a classified failure.
	Error(err error)
	// Status reports a status change. Repeated statuses are not reported.
	Status(s model.Status)
}

type discardOutput struct{}

func (discardOutput) Forward(*transport.Response) {}
func (discardOutput) Error(error)                 {}
func (discardOutput) Status(model.Status)         {}
