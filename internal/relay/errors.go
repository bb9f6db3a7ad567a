package relay

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/edgerelay/internal/model"
	"github.com/roach88/edgerelay/internal/transport"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrServerError  = errors.New("server error")
	ErrNoConnection = errors.New("no connection")
)

// forceBulkUploadHint is appended to precondition failures reported by the
// server.
const forceBulkUploadHint = `Enable "Force Bulk Upload" for this Equipment to ignore this error.`

// UnexpectedError is a rejected response with a status code that has no
// specific meaning to the relay.
type UnexpectedError struct {
	StatusCode int
	Body       []byte
}

func (e *UnexpectedError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("unexpected error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected error: status %d: %s", e.StatusCode, e.Body)
}

// LocalError is a failure that did not come from the remote side, such as
// a store error.
type LocalError struct {
	Cause error
}

func (e *LocalError) Error() string {
	return e.Cause.Error()
}

func (e *LocalError) Unwrap() error {
	return e.Cause
}

// PreconditionError reports a 412 response. It is emitted on the error
// output but does not abort the cycle.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string {
	if e.Message == "" {
		return forceBulkUploadHint
	}
	return e.Message + "\n" + forceBulkUploadHint
}

// Classification is the status and error reported for a failure.
type Classification struct {
	Status model.Status
	Err    error
}

// Classify maps a failure to the status to show and the error to emit.
// Rejected responses and failed token requests are classified by status
// code, missing connectivity as ErrNoConnection and everything else as a
// LocalError.
func Classify(err error) Classification {
	var (
		transportErr *transport.TransportError
		authErr      *transport.AuthError
		networkErr   *transport.NetworkError
	)
	switch {
	case errors.As(err, &transportErr):
		return classifyStatus(transportErr.StatusCode, transportErr.Body, err)
	case errors.As(err, &authErr) && authErr.StatusCode != 0:
		return classifyStatus(authErr.StatusCode, authErr.Body, err)
	case errors.As(err, &networkErr):
		return Classification{
			Status: model.StatusError,
			Err:    fmt.Errorf("%w: %w", ErrNoConnection, err),
		}
	default:
		return Classification{Status: model.StatusError, Err: &LocalError{Cause: err}}
	}
}

func classifyStatus(code int, body []byte, err error) Classification {
	switch code {
	case http.StatusUnauthorized:
		return Classification{Status: model.StatusNotConnected, Err: fmt.Errorf("%w: %w", ErrUnauthorized, err)}
	case http.StatusNotFound:
		return Classification{Status: model.StatusError, Err: fmt.Errorf("%w: %w", ErrNotFound, err)}
	case http.StatusConflict:
		return Classification{Status: model.StatusError, Err: fmt.Errorf("%w: %w", ErrConflict, err)}
	case http.StatusInternalServerError:
		return Classification{Status: model.StatusError, Err: fmt.Errorf("%w: %w", ErrServerError, err)}
	default:
		return Classification{Status: model.StatusError, Err: &UnexpectedError{StatusCode: code, Body: body}}
	}
}
