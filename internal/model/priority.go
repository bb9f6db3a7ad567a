package model

import "fmt"

// PriorityMode selects the secondary sort key applied to items that share a
// timestamp. The primary key is always the timestamp.
type PriorityMode int

const (
	// PriorityFIFO breaks ties by insertion order.
	PriorityFIFO PriorityMode = iota
	// PriorityEventsFirst returns events before non-events.
	PriorityEventsFirst
	// PriorityEventsLast returns non-events before events.
	PriorityEventsLast
)

var priorityNames = map[PriorityMode]string{
	PriorityFIFO:        "fifo",
	PriorityEventsFirst: "events_first",
	PriorityEventsLast:  "events_last",
}

// String returns the configuration name of the mode.
func (p PriorityMode) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PriorityMode(%d)", int(p))
}

// ParsePriorityMode converts a configuration name into a PriorityMode.
// The empty string selects FIFO.
func ParsePriorityMode(name string) (PriorityMode, error) {
	if name == "" {
		return PriorityFIFO, nil
	}
	for mode, n := range priorityNames {
		if n == name {
			return mode, nil
		}
	}
	return PriorityFIFO, fmt.Errorf("unknown priority mode %q", name)
}
