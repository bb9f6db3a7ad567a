package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/edgerelay/internal/model"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	// Requests and outcomes for context
	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] cycle %d %s\n", i+1, event.Cycle, describe(event))
	}

	return buf.String()
}

// describe renders one trace event on a single line.
func describe(e TraceEvent) string {
	switch e.Type {
	case EventSend:
		if e.Seqs != nil {
			return fmt.Sprintf("send %s %v", e.URL, e.Seqs)
		}
		return fmt.Sprintf("send %s (%d rows)", e.URL, e.Count)
	case EventResponse, EventForward:
		if e.Error != "" {
			return fmt.Sprintf("%s failed: %s", e.Type, e.Error)
		}
		return fmt.Sprintf("%s %d", e.Type, e.Code)
	case EventStatus:
		return fmt.Sprintf("status %q", e.Status)
	default:
		if e.Error != "" {
			return fmt.Sprintf("%s: %s", e.Type, e.Error)
		}
		return e.Type
	}
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: result.Trace}
	}

	switch a.Type {
	case AssertRequestCount:
		if n := len(result.Events(EventSend)); n != a.Count {
			return fail(fmt.Sprintf("%d requests", a.Count), fmt.Sprintf("%d requests", n))
		}

	case AssertRequestSizes:
		sizes := []int{}
		for _, e := range result.Events(EventSend) {
			sizes = append(sizes, e.Count)
		}
		if !slices.Equal(sizes, a.Sizes) {
			return fail(fmt.Sprintf("request sizes %v", a.Sizes), fmt.Sprintf("request sizes %v", sizes))
		}

	case AssertPendingItems:
		if result.State.PendingItems != a.Count {
			return fail(fmt.Sprintf("%d pending items", a.Count), fmt.Sprintf("%d pending items", result.State.PendingItems))
		}

	case AssertPendingConfigs:
		if result.State.PendingConfigs != a.Count {
			return fail(fmt.Sprintf("%d pending configuration rows", a.Count),
				fmt.Sprintf("%d pending configuration rows", result.State.PendingConfigs))
		}

	case AssertPackageSize:
		if result.State.PackageSize != a.Count {
			return fail(fmt.Sprintf("package size %d", a.Count), fmt.Sprintf("package size %d", result.State.PackageSize))
		}

	case AssertFinalStatus:
		if result.State.Status != model.Status(a.Status) {
			return fail(fmt.Sprintf("status %q", a.Status), fmt.Sprintf("status %q", result.State.Status))
		}

	case AssertStatusSequence:
		var statuses []string
		for _, e := range result.Events(EventStatus) {
			statuses = append(statuses, string(e.Status))
		}
		if !slices.Equal(statuses, a.Statuses) {
			return fail(fmt.Sprintf("statuses %q", a.Statuses), fmt.Sprintf("statuses %q", statuses))
		}

	case AssertErrorContains:
		for _, e := range result.Events(EventError) {
			if strings.Contains(e.Error, a.Text) {
				return nil
			}
		}
		return fail(fmt.Sprintf("an error containing %q", a.Text), "no such error reported")

	default:
		return fail("a known assertion type", fmt.Sprintf("%q", a.Type))
	}
	return nil
}
