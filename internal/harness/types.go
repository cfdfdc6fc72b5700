package harness

import "fmt"

// Trace event types.
const (
	EventAppend      = "append"
	EventAppendRaw   = "append_raw"
	EventVisible     = "visible"
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventDeliver     = "deliver"
	EventOnDrain     = "on_drain"
	EventOffDrain    = "off_drain"
	EventDrain       = "drain"
	EventPause       = "pause"
	EventResume      = "resume"
	EventCommit      = "commit"
)

// TraceEvent is one observable step of a scenario run.
type TraceEvent struct {
	Seq        int64  `json:"seq"`
	Type       string `json:"type"`
	Subscriber string `json:"subscriber,omitempty"`
	Drain      string `json:"drain,omitempty"`
	Group      string `json:"group,omitempty"`
	Position   int64  `json:"position"`
	Checksum   string `json:"checksum,omitempty"`
	Code       string `json:"code,omitempty"`
	Line       string `json:"line,omitempty"`
	Payload    any    `json:"payload,omitempty"`
}

// Key identifies the event in assertions, e.g. "deliver a@3",
// "visible@3" or "drain d".
func (e TraceEvent) Key() string {
	switch e.Type {
	case EventDeliver, EventSubscribe:
		return fmt.Sprintf("%s %s@%d", e.Type, e.Subscriber, e.Position)
	case EventVisible:
		return fmt.Sprintf("%s@%d", e.Type, e.Position)
	case EventUnsubscribe:
		return e.Type + " " + e.Subscriber
	case EventOnDrain, EventOffDrain, EventDrain:
		return e.Type + " " + e.Drain
	case EventCommit:
		return fmt.Sprintf("%s %s@%d", e.Type, e.Group, e.Position)
	default:
		return e.Type
	}
}

// toCanonicalMap keeps only the fields meaningful for the event type.
func (e TraceEvent) toCanonicalMap() map[string]any {
	m := map[string]any{
		"seq":  e.Seq,
		"type": e.Type,
	}
	switch e.Type {
	case EventAppend:
		m["payload"] = e.Payload
	case EventAppendRaw:
		m["line"] = e.Line
	case EventVisible:
		m["position"] = e.Position
		m["checksum"] = e.Checksum
	case EventSubscribe:
		m["subscriber"] = e.Subscriber
		m["from"] = e.Position
	case EventUnsubscribe:
		m["subscriber"] = e.Subscriber
	case EventDeliver:
		m["subscriber"] = e.Subscriber
		m["position"] = e.Position
		if e.Code != "" {
			m["code"] = e.Code
		} else {
			m["payload"] = e.Payload
		}
	case EventOnDrain, EventOffDrain, EventDrain:
		m["drain"] = e.Drain
	case EventCommit:
		m["group"] = e.Group
		m["position"] = e.Position
	}
	return m
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds every event in the order it was observed.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Position is the cursor position after the last step.
	Position int64 `json:"position"`

	// Offsets holds the committed offset of every group.
	Offsets map[string]int64 `json:"offsets,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Offsets: make(map[string]int64),
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Delivered returns the positions delivered to subscriber, in order.
func (r *Result) Delivered(subscriber string) []int64 {
	positions := []int64{}
	for _, e := range r.Trace {
		if e.Type == EventDeliver && e.Subscriber == subscriber {
			positions = append(positions, e.Position)
		}
	}
	return positions
}
