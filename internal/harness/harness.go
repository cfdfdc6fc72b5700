package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/roach88/streamlog/internal/eventlog"
	"github.com/roach88/streamlog/internal/record"
	"github.com/roach88/streamlog/internal/store"
	"github.com/roach88/streamlog/internal/testutil"
)

const (
	// awaitTimeout bounds every await step and every waited append.
	awaitTimeout = 5 * time.Second

	// pollInterval is short so raw writes are picked up quickly.
	pollInterval = 5 * time.Millisecond
)

// harnessEpoch is the commit time of every offset.
var harnessEpoch = time.UnixMilli(1700000000000)

// Identity stamped into every record written by the harness.
var harnessIdentity = record.Identity{Host: "harness", PID: 1}

// Harness executes the steps of one scenario.
type Harness struct {
	log    *eventlog.Log
	store  *store.Store
	logger *slog.Logger
	rec    *recorder

	subs   map[string]*eventlog.Subscription
	drains map[string]*eventlog.DrainSubscription
}

// Run executes a scenario against a fresh log in a private temporary file
// and returns the result with assertions evaluated.
//
// Each scenario gets its own in-memory offsets database. Step errors (a
// timed out await, an unknown subscriber) abort the run and are returned
// as errors; failed assertions are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:", store.WithClock(func() time.Time { return harnessEpoch }))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	codec := record.NewCodec(harnessIdentity,
		record.WithClock(testutil.NewStepClock(1700000000000, 1)),
		record.WithNonceSource(testutil.NewSequentialNonces("")),
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	log, err := eventlog.Open("",
		eventlog.WithCodec(codec),
		eventlog.WithLogger(logger),
		eventlog.WithPollInterval(pollInterval),
		eventlog.WithReadSize(scenario.Log.ReadSize),
		eventlog.WithBufferSize(scenario.Log.BufferSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer log.Close()

	h := &Harness{
		log:    log,
		store:  st,
		logger: logger,
		rec:    newRecorder(),
		subs:   make(map[string]*eventlog.Subscription),
		drains: make(map[string]*eventlog.DrainSubscription),
	}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action(), err)
		}
	}

	result := NewResult()
	result.Position = log.Position()
	if err := log.Close(); err != nil {
		return nil, fmt.Errorf("failed to close log: %w", err)
	}
	result.Trace = h.rec.snapshot()

	offsets, err := st.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list offsets: %w", err)
	}
	for _, o := range offsets {
		result.Offsets[o.Group] = o.Next
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	switch step.Action() {
	case StepAppend:
		return h.append(ctx, step)
	case StepAppendRaw:
		return h.appendRaw(*step.AppendRaw)
	case StepSubscribe:
		return h.subscribe(step.Subscribe, step.From)
	case StepUnsubscribe:
		s, ok := h.subs[step.Unsubscribe]
		if !ok {
			return fmt.Errorf("unknown subscriber %q", step.Unsubscribe)
		}
		h.rec.add(TraceEvent{Type: EventUnsubscribe, Subscriber: step.Unsubscribe})
		h.log.Unsubscribe(s)
		return nil
	case StepAwait:
		return h.await(ctx, fmt.Sprintf("%d deliveries to %s", step.Count, step.Await), func(r *recorder) bool {
			return r.delivered[step.Await] >= step.Count
		})
	case StepAwaitDrain:
		return h.await(ctx, fmt.Sprintf("%d runs of drain %s", step.Count, step.AwaitDrain), func(r *recorder) bool {
			return r.drained[step.AwaitDrain] >= step.Count
		})
	case StepOnDrain:
		return h.onDrain(step.OnDrain)
	case StepOffDrain:
		d, ok := h.drains[step.OffDrain]
		if !ok {
			return fmt.Errorf("unknown drain %q", step.OffDrain)
		}
		h.rec.add(TraceEvent{Type: EventOffDrain, Drain: step.OffDrain})
		h.log.OffDrain(d)
		return nil
	case StepCommit:
		return h.commit(ctx, step.Commit, step.Subscriber)
	case StepPause:
		h.rec.add(TraceEvent{Type: EventPause})
		h.log.Pause()
		return nil
	case StepResume:
		h.rec.add(TraceEvent{Type: EventResume})
		h.log.Resume()
		return nil
	default:
		return fmt.Errorf("step has no single action")
	}
}

func (h *Harness) append(ctx context.Context, step Step) error {
	var payload any
	if err := step.Append.Decode(&payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	h.rec.add(TraceEvent{Type: EventAppend, Payload: payload})

	var opts []eventlog.AppendOption
	if step.NoWait {
		opts = append(opts, eventlog.WithoutVisibility())
	}
	c, err := h.log.Append(payload, opts...)
	if err != nil {
		return err
	}
	if step.NoWait {
		return c.Err()
	}

	ctx, cancel := context.WithTimeout(ctx, awaitTimeout)
	defer cancel()
	pos, err := c.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for visibility: %w", err)
	}
	h.rec.add(TraceEvent{Type: EventVisible, Position: pos, Checksum: c.Meta().Checksum})
	return nil
}

func (h *Harness) appendRaw(line string) error {
	h.rec.add(TraceEvent{Type: EventAppendRaw, Line: line})

	f, err := os.OpenFile(h.log.Path(), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("open log for raw write: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + string(record.Separator)); err != nil {
		return fmt.Errorf("raw write: %w", err)
	}
	return nil
}

func (h *Harness) subscribe(name string, from int64) error {
	if _, ok := h.subs[name]; ok {
		return fmt.Errorf("subscriber %q already exists", name)
	}
	h.rec.add(TraceEvent{Type: EventSubscribe, Subscriber: name, Position: from})

	s, err := h.log.Subscribe(from, func(pos int64, payload any, meta record.Metadata) {
		e := TraceEvent{Type: EventDeliver, Subscriber: name, Position: pos, Payload: payload}
		if meta.Err != nil {
			e.Code = string(record.CodeOf(meta.Err))
		}
		h.rec.add(e)
	})
	if err != nil {
		return err
	}
	h.subs[name] = s
	return nil
}

func (h *Harness) onDrain(name string) error {
	if _, ok := h.drains[name]; ok {
		return fmt.Errorf("drain %q already exists", name)
	}
	h.rec.add(TraceEvent{Type: EventOnDrain, Drain: name})

	d, err := h.log.OnDrain(func(context.Context) error {
		h.rec.add(TraceEvent{Type: EventDrain, Drain: name})
		return nil
	})
	if err != nil {
		return err
	}
	h.drains[name] = d
	return nil
}

func (h *Harness) commit(ctx context.Context, group, subscriber string) error {
	if _, ok := h.subs[subscriber]; !ok {
		return fmt.Errorf("unknown subscriber %q", subscriber)
	}
	next := h.rec.next(subscriber)
	h.rec.add(TraceEvent{Type: EventCommit, Group: group, Position: next})

	if _, err := h.store.Commit(ctx, group, next, "harness"); err != nil {
		return err
	}
	return nil
}

func (h *Harness) await(ctx context.Context, what string, cond func(*recorder) bool) error {
	ctx, cancel := context.WithTimeout(ctx, awaitTimeout)
	defer cancel()
	if err := h.rec.wait(ctx, cond); err != nil {
		return fmt.Errorf("waiting for %s: %w", what, err)
	}
	return nil
}

// recorder collects trace events from the step runner, the poll worker and
// drain goroutines.
type recorder struct {
	mu        sync.Mutex
	trace     []TraceEvent
	delivered map[string]int
	nextPos   map[string]int64
	drained   map[string]int
	changed   chan struct{} // closed and replaced on every event
}

func newRecorder() *recorder {
	return &recorder{
		delivered: make(map[string]int),
		nextPos:   make(map[string]int64),
		drained:   make(map[string]int),
		changed:   make(chan struct{}),
	}
}

func (r *recorder) add(e TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.Seq = int64(len(r.trace))
	r.trace = append(r.trace, e)
	switch e.Type {
	case EventSubscribe:
		r.nextPos[e.Subscriber] = e.Position
	case EventDeliver:
		r.delivered[e.Subscriber]++
		r.nextPos[e.Subscriber] = e.Position + 1
	case EventDrain:
		r.drained[e.Drain]++
	}

	close(r.changed)
	r.changed = make(chan struct{})
}

// wait blocks until cond, evaluated under the lock, holds.
func (r *recorder) wait(ctx context.Context, cond func(*recorder) bool) error {
	for {
		r.mu.Lock()
		ok := cond(r)
		changed := r.changed
		r.mu.Unlock()

		if ok {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *recorder) next(subscriber string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextPos[subscriber]
}

func (r *recorder) snapshot() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEvent{}, r.trace...)
}
