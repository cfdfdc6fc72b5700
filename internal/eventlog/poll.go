package eventlog

import (
	"errors"
	"io"

	"github.com/roach88/streamlog/internal/record"
)

var separator = []byte{record.Separator}

// run is the poll worker. It makes one pass per wake-up or tick and keeps
// going for as long as a pass asks for another.
func (l *Log) run() {
	defer close(l.workerDone)

	for {
		select {
		case <-l.stop:
			return
		case <-l.wake:
		case <-l.ticker.C:
		}

		for l.pass() {
			select {
			case <-l.stop:
				return
			default:
			}
		}
	}
}

// pass reads once, dispatches what it can and reports whether another pass
// should follow immediately.
func (l *Log) pass() bool {
	l.mu.Lock()
	if l.cleanupPending {
		l.cleanupLocked()
	}
	if l.closed || l.paused > 0 || l.rf == nil {
		l.mu.Unlock()
		return false
	}
	gen := l.gen
	rf := l.rf
	dst := l.buf.Free(l.readSize)[:l.readSize]
	l.mu.Unlock()

	n, err := rf.Read(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		l.mu.Lock()
		stale := gen != l.gen
		l.mu.Unlock()
		if !stale {
			l.logger.Warn("read failed", "path", l.path, "error", err)
		}
		n = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.gen || l.closed {
		return false
	}

	l.lastRead = n
	if n > 0 {
		l.buf.Commit(n)
		records := l.buf.Extract(separator)
		l.queue = append(l.queue, records...)
		l.active = true
		l.logger.Debug("read",
			"bytes", n,
			"records", len(records),
			"queued", len(l.queue),
		)
	}

	for len(l.queue) > 0 && l.paused == 0 && gen == l.gen && !l.closed {
		raw := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]

		pos := l.readPos
		l.dispatchLocked(pos, record.Decode(raw), gen)
		if gen != l.gen {
			return false
		}
		l.readPos++
	}

	if l.closed {
		return false
	}
	if l.drainDueLocked(gen) {
		l.startDrainLocked()
	}

	return n > 0 || (len(l.queue) > 0 && l.paused == 0)
}
