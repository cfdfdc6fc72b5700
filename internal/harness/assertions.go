package harness

import (
	"fmt"
	"slices"
	"strings"
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

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, event.Key())
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for _, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertDelivered:
			err = assertDelivered(result, assertion)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalPosition:
			err = assertFinalPosition(result, assertion)
		case AssertOffset:
			err = assertOffset(result, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

// assertDelivered checks the exact sequence of positions delivered to one
// subscriber.
func assertDelivered(result *Result, assertion Assertion) error {
	got := result.Delivered(assertion.Subscriber)
	want := assertion.Positions
	if want == nil {
		want = []int64{}
	}
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertDelivered,
			Expected: fmt.Sprintf("%s received %v", assertion.Subscriber, want),
			Actual:   fmt.Sprintf("%s received %v", assertion.Subscriber, got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertTraceContains checks that an event with the key appears in the trace.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Key() == assertion.Key {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %q", assertion.Key),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that keys first appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// Step 1: Find first position of each expected key
	positions := make(map[string]int)
	for i, event := range trace {
		key := event.Key()
		if _, seen := positions[key]; !seen {
			positions[key] = i
		}
	}

	// Step 2: Verify all keys found
	for _, key := range assertion.Keys {
		if _, ok := positions[key]; !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all events present: %v", assertion.Keys),
				Actual:   fmt.Sprintf("missing event: %s", key),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Keys); i++ {
		prev := assertion.Keys[i-1]
		curr := assertion.Keys[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Keys),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount counts events of one type, optionally restricted to a
// subscriber and an error code.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type != assertion.Event {
			continue
		}
		if assertion.Subscriber != "" && event.Subscriber != assertion.Subscriber {
			continue
		}
		if assertion.Code != "" && event.Code != assertion.Code {
			continue
		}
		count++
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s events", assertion.Count, describeFilter(assertion)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func describeFilter(a Assertion) string {
	parts := []string{a.Event}
	if a.Subscriber != "" {
		parts = append(parts, "for "+a.Subscriber)
	}
	if a.Code != "" {
		parts = append(parts, "with "+a.Code)
	}
	return strings.Join(parts, " ")
}

func assertFinalPosition(result *Result, assertion Assertion) error {
	if result.Position != assertion.Position {
		return &AssertionError{
			Type:     AssertFinalPosition,
			Expected: fmt.Sprintf("position %d", assertion.Position),
			Actual:   fmt.Sprintf("position %d", result.Position),
		}
	}
	return nil
}

func assertOffset(result *Result, assertion Assertion) error {
	next, ok := result.Offsets[assertion.Group]
	if !ok {
		return &AssertionError{
			Type:     AssertOffset,
			Expected: fmt.Sprintf("group %s at %d", assertion.Group, assertion.Next),
			Actual:   "no offset committed",
		}
	}
	if next != assertion.Next {
		return &AssertionError{
			Type:     AssertOffset,
			Expected: fmt.Sprintf("group %s at %d", assertion.Group, assertion.Next),
			Actual:   fmt.Sprintf("group %s at %d", assertion.Group, next),
		}
	}
	return nil
}
