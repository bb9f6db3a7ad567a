package transport

import (
	"fmt"
)

// TransportError is a response whose status code the caller does not
// accept. The scheduler raises it; the client itself returns every
// response it receives.
type TransportError struct {
	StatusCode int
	Body       []byte
	Response   *Response
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: unexpected status %d", e.StatusCode)
}

// NewTransportError wraps a rejected response.
func NewTransportError(resp *Response) *TransportError {
	return &TransportError{
		StatusCode: resp.StatusCode,
		Body:       resp.RawBody,
		Response:   resp,
	}
}

// AuthError reports a failed token request. StatusCode is zero when the
// token endpoint answered 2xx with an unusable body.
type AuthError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: authentication failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("transport: authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NetworkError reports that a request got no HTTP response.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("transport: no connection to %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
