package transport

import (
	"encoding/json"
	"net/http"
)

// Result is one entry of the server's result array.
type Result struct {
	// MaxAllowedItems is the package size the server accepts.
	MaxAllowedItems *int `json:"max_allowed_items,omitempty"`
	// CurrentItemIndex is the 0-based index of the last item the server
	// processed.
	CurrentItemIndex *int `json:"current_item_index,omitempty"`
	// Message is a human readable explanation, mostly set on 412 and 413.
	Message string `json:"message,omitempty"`
}

// ResponseBody is the JSON envelope returned by the monitoring API.
type ResponseBody struct {
	Result []Result `json:"result"`
}

// Response is a received HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	// RawBody is the body as received.
	RawBody []byte
	// Body is RawBody decoded; zero when the body was not the expected JSON.
	Body ResponseBody
}

// First returns result[0], if present.
func (r *Response) First() (Result, bool) {
	if r == nil || len(r.Body.Result) == 0 {
		return Result{}, false
	}
	return r.Body.Result[0], true
}

// MarshalJSON renders the response for the output port.
func (r *Response) MarshalJSON() ([]byte, error) {
	out := struct {
		StatusCode int             `json:"statusCode"`
		Headers    http.Header     `json:"headers,omitempty"`
		Body       json.RawMessage `json:"body,omitempty"`
	}{
		StatusCode: r.StatusCode,
		Headers:    r.Header,
	}
	if json.Valid(r.RawBody) {
		out.Body = r.RawBody
	} else if len(r.RawBody) > 0 {
		quoted, err := json.Marshal(string(r.RawBody))
		if err != nil {
			return nil, err
		}
		out.Body = quoted
	}
	return json.Marshal(out)
}

// packageBody is the request envelope.
type packageBody struct {
	Items []json.RawMessage `json:"items"`
}

// EncodePackage renders items as {"items":[...]}. Item JSON is compacted.
func EncodePackage(items []json.RawMessage) ([]byte, error) {
	if items == nil {
		items = []json.RawMessage{}
	}
	return json.Marshal(packageBody{Items: items})
}
