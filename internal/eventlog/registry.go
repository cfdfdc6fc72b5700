package eventlog

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/streamlog/internal/record"
)

// Handler receives one record.
//
// payload is a fresh decode of the record's payload, owned by this call.
// It is nil when meta.Err is set.
type Handler func(pos int64, payload any, meta record.Metadata)

// Subscription is a registered Handler anchored at a position.
// Internal subscriptions are created by Append and wait for one record,
// matched by content rather than by position.
type Subscription struct {
	pos      int64
	handler  Handler
	deleted  bool
	internal bool

	want       record.Meta
	completion *Completion
}

// Subscribe registers h to receive every record from position from onward.
//
// If from is before the current read position the cursor rewinds, and every
// active subscription continues from its own position against the rescanned
// file.
func (l *Log) Subscribe(from int64, h Handler) (*Subscription, error) {
	if from < 0 {
		return nil, fmt.Errorf("subscribe from %d: %w", from, ErrInvalidPosition)
	}
	if h == nil {
		return nil, errors.New("subscribe: nil handler")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if err := l.ensureReaderLocked(); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	s := &Subscription{pos: from, handler: h}
	l.addLocked(s)
	if from < l.readPos {
		if err := l.rewindLocked(); err != nil {
			s.deleted = true
			l.cleanupPending = true
			return nil, fmt.Errorf("subscribe: %w", err)
		}
	}

	l.logger.Debug("subscription added",
		"index", len(l.subs)-1,
		"from", from,
	)
	l.schedule()
	return s, nil
}

// Unsubscribe removes s. It is safe to call from within any handler,
// including s's own. Removing an internal or already removed subscription
// is a no-op.
func (l *Log) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if s.internal || s.deleted {
		return
	}
	s.deleted = true
	l.cleanupPending = true
	l.schedule()
}

// UnsubscribeAll removes every subscription except those waiting on appends.
func (l *Log) UnsubscribeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.subs {
		if !s.internal {
			s.deleted = true
		}
	}
	l.cleanupPending = true
	l.schedule()
}

func (l *Log) addLocked(s *Subscription) {
	l.subs = append(l.subs, s)
	if !l.tickerOn && !l.closed {
		l.ticker.Reset(l.pollInterval)
		l.tickerOn = true
	}
}

// cleanupLocked compacts both registries. Entries are removed in descending
// index order so the remaining indices stay valid while splicing.
func (l *Log) cleanupLocked() {
	l.cleanupPending = false

	for i := len(l.subs) - 1; i >= 0; i-- {
		if l.subs[i].deleted {
			l.subs = slices.Delete(l.subs, i, i+1)
			l.logger.Debug("subscription removed",
				"index", i,
				"remaining", len(l.subs),
			)
		}
	}
	for i := len(l.drains) - 1; i >= 0; i-- {
		if l.drains[i].deleted {
			l.drains = slices.Delete(l.drains, i, i+1)
		}
	}

	if len(l.subs) == 0 && l.tickerOn {
		l.ticker.Stop()
		l.tickerOn = false
	}
}

// dispatchLocked delivers the record at pos to every subscription anchored
// there. It releases l.mu around each handler call and stops as soon as a
// handler caused a rewind (gen changed).
//
// Only the poll worker calls this, so nothing compacts l.subs while the lock
// is released; new subscriptions may be appended and are visited too.
func (l *Log) dispatchLocked(pos int64, d record.Decoded, gen uint64) {
	for i := 0; i < len(l.subs); i++ {
		s := l.subs[i]
		if s.deleted || s.pos != pos {
			continue
		}
		s.pos++

		if s.internal {
			if d.Err == nil && d.Meta == s.want {
				s.deleted = true
				l.cleanupPending = true
				s.completion.resolve(pos, nil)
				l.logger.Debug("append visible", "position", pos, "checksum", d.Checksum)
			}
			continue
		}

		payload := d.Value()
		meta := d.Metadata

		l.mu.Unlock()
		l.invoke(s.handler, pos, payload, meta)
		l.mu.Lock()

		if gen != l.gen || l.closed {
			return
		}
	}
}

func (l *Log) invoke(h Handler, pos int64, payload any, meta record.Metadata) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("subscription handler panicked",
				"position", pos,
				"panic", r,
			)
		}
	}()
	h(pos, payload, meta)
}
