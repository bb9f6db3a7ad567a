package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/roach88/edgerelay/internal/transport"
)

// Call is one recorded Send.
type Call struct {
	URL   string
	Items []json.RawMessage
}

// Reply is the scripted outcome of one Send.
type Reply struct {
	Response *transport.Response
	Err      error
}

// FakeClient is a scripted transport.Client.
//
// Send consumes queued replies in order; once the script is exhausted the
// fallback answers. The default fallback accepts every package completely.
//
// Thread-safety: all methods are safe for concurrent use.
type FakeClient struct {
	mu       sync.Mutex
	authErrs []error
	script   []Reply
	fallback func(Call) Reply
	auths    int
	calls    []Call
}

var _ transport.Client = (*FakeClient)(nil)

// NewFakeClient returns a client that accepts everything.
func NewFakeClient() *FakeClient {
	return &FakeClient{fallback: AcceptAll}
}

// SetFallback replaces the reply used once the script is exhausted.
func (f *FakeClient) SetFallback(fn func(Call) Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = fn
}

// QueueAuthError makes the next Authenticate call fail with err.
func (f *FakeClient) QueueAuthError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authErrs = append(f.authErrs, err)
}

// QueueReply appends a scripted reply.
func (f *FakeClient) QueueReply(resp *transport.Response, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, Reply{Response: resp, Err: err})
}

// Authenticate implements transport.Client.
func (f *FakeClient) Authenticate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auths++
	if len(f.authErrs) == 0 {
		return nil
	}
	err := f.authErrs[0]
	f.authErrs = f.authErrs[1:]
	return err
}

// Send implements transport.Client.
func (f *FakeClient) Send(ctx context.Context, url string, items []json.RawMessage) (*transport.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := Call{URL: url, Items: append([]json.RawMessage(nil), items...)}
	f.calls = append(f.calls, call)

	var reply Reply
	if len(f.script) > 0 {
		reply = f.script[0]
		f.script = f.script[1:]
	} else {
		reply = f.fallback(call)
	}
	return reply.Response, reply.Err
}

// Auths returns the number of Authenticate calls.
func (f *FakeClient) Auths() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auths
}

// Calls returns a copy of the recorded Send calls.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// AcceptAll answers 200 with every item processed.
func AcceptAll(call Call) Reply {
	return Reply{Response: NewResponse(http.StatusOK, transport.Result{
		CurrentItemIndex: Int(len(call.Items) - 1),
	})}
}

// NewResponse builds a response whose body is {"result":[...]}.
func NewResponse(status int, results ...transport.Result) *transport.Response {
	body := transport.ResponseBody{Result: results}
	raw, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return &transport.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		RawBody:    raw,
		Body:       body,
	}
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}
