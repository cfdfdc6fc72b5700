// Package eventlog implements a single-writer, multi-subscriber append-only
// event log backed by one file.
//
// Events are appended as checksummed JSON lines (see package record). Any
// number of subscribers tail the file from a position of their choosing and
// receive each record exactly once, in order:
//
//	log, err := eventlog.Open("events.log")
//	if err != nil {
//		return err
//	}
//	defer log.Close()
//
//	log.Subscribe(0, func(pos int64, payload any, meta record.Metadata) {
//		if meta.Err != nil {
//			// corrupt record, payload is nil
//		}
//	})
//
//	c, err := log.Append(map[string]any{"type": "created"})
//	pos, err := c.Wait(ctx)
//
// # Concurrency
//
// Each Log runs one poll worker goroutine. It owns the read handle, the scan
// buffer and the pending queue; every other method only touches the
// subscription registry and counters under the Log's mutex. Handlers and
// drain callbacks run with the mutex released and may call any Log method
// except Close and Completion.Wait.
//
// A subscription starting before the current read position forces a rewind:
// the file is scanned again from the start and every active subscription
// continues from its own position.
//
// # Backpressure
//
// Pause and Resume nest. When the reader has caught up (nothing queued, last
// read empty) the registered drain callbacks run sequentially on their own
// goroutine while reading is paused.
package eventlog
