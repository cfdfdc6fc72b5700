// Package harness runs YAML scenarios against an event log and records a
// deterministic trace of what every subscriber and drain callback saw.
//
// # Scenario Format
//
//	name: rewind_replay
//	description: "Late subscribers rewind the cursor"
//	log:
//	  read_size: 16
//	steps:
//	  - append: {char: a}
//	  - append: "no visibility wait"
//	    no_wait: true
//	  - append_raw: "not a record"
//	  - subscribe: a
//	    from: 0
//	  - await: a
//	    count: 3
//	  - on_drain: d
//	  - await_drain: d
//	    count: 1
//	  - commit: indexer
//	    subscriber: a
//	  - pause: true
//	  - resume: true
//	  - unsubscribe: a
//	  - off_drain: d
//	assertions:
//	  - type: delivered
//	    subscriber: a
//	    positions: [0, 1, 2]
//	  - type: trace_contains
//	    key: "deliver a@2"
//	  - type: trace_order
//	    keys: ["deliver a@0", "visible@1"]
//	  - type: trace_count
//	    event: deliver
//	    code: PARSE_ERROR
//	    count: 1
//	  - type: final_position
//	    position: 3
//	  - type: offset
//	    group: indexer
//	    next: 3
//
// # Assertion Types
//
//   - delivered: the exact positions delivered to one subscriber, in order
//   - trace_contains: an event with the given key appears in the trace
//   - trace_order: the first occurrences of the keys appear in order
//   - trace_count: the number of events of a type, optionally filtered by
//     subscriber and error code
//   - final_position: the cursor position once all steps have run
//   - offset: the offset committed for a consumer group
//
// # Deterministic Traces
//
// Records are encoded with a fixed identity, a stepping clock and sequential
// nonces, so checksums are stable. Control steps are traced before they run
// and a waited append is traced again ("visible") once its completion
// resolves; subscribers registered before the append have received the
// record by then.
//
// Drain callbacks run whenever the cursor reaches the end of the file, which
// races with appends made while reading. Scenarios that trace drains make
// their appends between pause and resume.
package harness
