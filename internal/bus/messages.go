package bus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/edgerelay/internal/model"
	"github.com/roach88/edgerelay/internal/relay"
	"github.com/roach88/edgerelay/internal/store"
)

const (
	keyItems = "items"
	keyFlush = "flush"
)

// Port tags an output line.
type Port string

const (
	PortResponse Port = "response"
	PortError    Port = "error"
	PortStatus   Port = "status"
)

// OutputMsg is one output line.
type OutputMsg struct {
	Port     Port            `json:"port"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
	Status   model.Status    `json:"status,omitempty"`
	Level    model.Level     `json:"level,omitempty"`
}

// itemHeader holds the item fields the relay interprets.
type itemHeader struct {
	Timestamp json.RawMessage `json:"timestamp"`
	IsEvent   bool            `json:"isEvent"`
}

// DecodeMessage parses one input line. Keys are compared after NFKC
// normalisation; keys that are neither reserved nor a known category are
// ignored.
func DecodeMessage(line []byte) (relay.Message, error) {
	var msg relay.Message

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return msg, fmt.Errorf("failed to deserialize message: %w", err)
	}

	groups := make(map[model.Category][]json.RawMessage)
	for rawKey, value := range fields {
		key := norm.NFKC.String(rawKey)
		switch key {
		case keyItems:
			items, err := decodeItems(value)
			if err != nil {
				return msg, err
			}
			msg.Items = append(msg.Items, items...)

		case keyFlush:
			if err := json.Unmarshal(value, &msg.Flush); err != nil {
				return msg, fmt.Errorf("flush: %w", err)
			}

		default:
			category, err := model.ParseCategory(key)
			if err != nil {
				continue
			}
			var snapshot []json.RawMessage
			if err := json.Unmarshal(value, &snapshot); err != nil {
				return msg, fmt.Errorf("%s: expected an array: %w", category, err)
			}
			groups[category] = append(groups[category], snapshot...)
		}
	}

	for _, category := range model.Categories() {
		if items := groups[category]; len(items) > 0 {
			msg.Configs = append(msg.Configs, store.ConfigGroup{Category: category, Items: items})
		}
	}
	return msg, nil
}

func decodeItems(value json.RawMessage) ([]model.Item, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(value, &raws); err != nil {
		return nil, fmt.Errorf("items: expected an array: %w", err)
	}

	items := make([]model.Item, 0, len(raws))
	for i, raw := range raws {
		var header itemHeader
		if err := json.Unmarshal(raw, &header); err != nil {
			return nil, fmt.Errorf("items[%d]: expected an object: %w", i, err)
		}
		ts, err := parseTimestamp(header.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		items = append(items, model.Item{
			Timestamp: ts,
			IsEvent:   header.IsEvent,
			Payload:   raw,
		})
	}
	return items, nil
}

// parseTimestamp accepts an RFC 3339 string or epoch milliseconds. A
// missing or null timestamp yields the zero time.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("timestamp: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp: %w", err)
		}
		return ts.UTC(), nil
	}

	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: not a time: %s", raw)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

// SerializeOutputMsg serializes an OutputMsg to minified JSONL (JSON + newline).
func SerializeOutputMsg(msg OutputMsg) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize OutputMsg: %w", err)
	}
	return append(data, '\n'), nil
}
