package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// marshalPayload validates an item payload and returns it as TEXT for
// storage. Payloads are stored verbatim.
func marshalPayload(payload json.RawMessage) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("marshal payload: empty payload")
	}
	if !json.Valid(payload) {
		return "", fmt.Errorf("marshal payload: invalid JSON")
	}
	return string(payload), nil
}

// unmarshalPayload converts stored TEXT back into a payload. Text that no
// longer parses is reported with the corruption signature for malformed
// rows.
func unmarshalPayload(id int64, data string) (json.RawMessage, error) {
	if !json.Valid([]byte(data)) {
		return nil, fmt.Errorf("row %d: %s", id, malformedPayload)
	}
	return json.RawMessage(data), nil
}

// toMillis converts an event time to the stored representation.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// fromMillis converts the stored representation back to a UTC time.
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
