package model

import (
	"encoding/json"
	"time"
)

// Item is one unit of telemetry.
//
// ID is assigned by the store at insert time and is zero for items that
// have not been stored yet. A zero Timestamp is replaced with the insertion
// time. Payload is the opaque JSON object forwarded to the remote endpoint.
type Item struct {
	ID        int64
	Timestamp time.Time
	IsEvent   bool
	Payload   json.RawMessage
}

// ConfigEntry is one pending configuration record of a single category.
type ConfigEntry struct {
	ID       int64
	Category Category
	Payload  json.RawMessage
}
