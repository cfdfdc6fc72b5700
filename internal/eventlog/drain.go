package eventlog

import (
	"context"
	"errors"
	"fmt"
)

// DrainFunc is called when the reader has caught up with the file.
//
// Reading stays paused until the function returns. Errors are logged and
// otherwise ignored. ctx is cancelled when the Log is closed.
type DrainFunc func(ctx context.Context) error

// DrainSubscription is a registered DrainFunc.
type DrainSubscription struct {
	fn      DrainFunc
	deleted bool
}

// OnDrain registers fn to run once per drain, after the callbacks registered
// before it.
func (l *Log) OnDrain(fn DrainFunc) (*DrainSubscription, error) {
	if fn == nil {
		return nil, errors.New("on drain: nil callback")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	d := &DrainSubscription{fn: fn}
	l.drains = append(l.drains, d)
	return d, nil
}

// OffDrain removes d. A drain chain already running still calls it.
func (l *Log) OffDrain(d *DrainSubscription) {
	if d == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	d.deleted = true
	l.cleanupPending = true
}

// OffAllDrain removes every drain callback.
func (l *Log) OffAllDrain() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range l.drains {
		d.deleted = true
	}
	l.cleanupPending = true
}

// Pause stops reading and dispatch until a matching Resume. Pauses nest.
// The record being dispatched when Pause is called still reaches every
// subscription anchored at it.
func (l *Log) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paused++
}

// Resume undoes one Pause. Reading restarts when every Pause, including the
// one held by a running drain chain, has been undone.
func (l *Log) Resume() {
	l.mu.Lock()
	if l.paused == 0 {
		l.mu.Unlock()
		l.logger.Warn("resume without matching pause")
		return
	}
	l.paused--
	resumed := l.paused == 0
	l.mu.Unlock()

	if resumed {
		l.schedule()
	}
}

// drainDueLocked reports whether the reader has caught up since the stream
// last went idle.
func (l *Log) drainDueLocked(gen uint64) bool {
	return len(l.queue) == 0 &&
		l.lastRead == 0 &&
		l.paused == 0 &&
		l.active &&
		gen == l.gen &&
		!l.closed
}

// startDrainLocked marks the stream idle, takes a pause hold and runs the
// current drain callbacks on their own goroutine.
func (l *Log) startDrainLocked() {
	l.active = false
	l.cleanupLocked()

	if len(l.drains) == 0 {
		return
	}
	fns := make([]DrainFunc, 0, len(l.drains))
	for _, d := range l.drains {
		if !d.deleted {
			fns = append(fns, d.fn)
		}
	}

	l.paused++
	l.drainWG.Add(1)
	go l.runDrain(fns)
}

func (l *Log) runDrain(fns []DrainFunc) {
	defer l.drainWG.Done()

	l.logger.Debug("drain started", "callbacks", len(fns))
	for i, fn := range fns {
		if err := l.callDrain(fn); err != nil {
			l.logger.Warn("drain callback failed",
				"index", i,
				"error", err,
			)
		}
	}

	l.mu.Lock()
	if l.paused > 0 {
		l.paused--
	}
	resumed := l.paused == 0
	l.mu.Unlock()

	l.logger.Debug("drain finished", "resumed", resumed)
	if resumed {
		l.schedule()
	}
}

func (l *Log) callDrain(fn DrainFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("drain callback panicked: %v", r)
		}
	}()
	return fn(l.ctx)
}
