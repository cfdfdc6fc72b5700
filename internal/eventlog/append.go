package eventlog

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/streamlog/internal/record"
)

// NoPosition is the position of an append that did not wait for visibility,
// or that failed.
const NoPosition int64 = -1

// Completion tracks one append.
//
// It resolves once: with the record's read position when the record has
// been read back, with NoPosition right after the write for appends made
// WithoutVisibility, or with an error.
type Completion struct {
	meta record.Meta

	once sync.Once
	done chan struct{}
	pos  int64
	err  error
}

func newCompletion(meta record.Meta) *Completion {
	return &Completion{
		meta: meta,
		done: make(chan struct{}),
		pos:  NoPosition,
	}
}

func (c *Completion) resolve(pos int64, err error) {
	c.once.Do(func() {
		c.pos = pos
		c.err = err
		close(c.done)
	})
}

// Meta returns the identity of the appended record. It is available as soon
// as Append returns.
func (c *Completion) Meta() record.Meta {
	return c.meta
}

// Done is closed when the completion resolves.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Err returns the failure, or nil while pending or on success.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the completion resolves or ctx is done.
// It must not be called from a Handler or DrainFunc of the same Log.
func (c *Completion) Wait(ctx context.Context) (int64, error) {
	select {
	case <-c.done:
		return c.pos, c.err
	case <-ctx.Done():
		return NoPosition, ctx.Err()
	}
}

// Append writes event as a new record.
//
// The returned error covers failures before anything is written: an event
// with no JSON form, a closed Log, or a file that cannot be opened. A failed
// write is reported through the Completion as a record.ErrWrite error.
//
// Concurrent appends are not serialized beyond the single write call each
// one issues on the shared append-mode handle.
func (l *Log) Append(event any, opts ...AppendOption) (*Completion, error) {
	cfg := appendConfig{visible: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	entry, err := l.codec.Encode(event)
	if err != nil {
		return nil, fmt.Errorf("append: %w", err)
	}
	c := newCompletion(entry.Meta)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	if err := l.ensureWriterLocked(); err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("append: %w", err)
	}

	var sub *Subscription
	if cfg.visible {
		if err := l.ensureReaderLocked(); err != nil {
			l.mu.Unlock()
			return nil, fmt.Errorf("append: %w", err)
		}
		sub = &Subscription{
			pos:        l.readPos,
			internal:   true,
			want:       entry.Meta,
			completion: c,
		}
		l.addLocked(sub)
	}
	wf := l.wf
	reading := l.rf != nil
	l.mu.Unlock()

	line := append(entry.Line, record.Separator)
	_, err = wf.Write(line)
	if err == nil && l.fsync {
		err = wf.Sync()
	}
	if err != nil {
		werr := record.NewWriteError(err)
		if sub != nil {
			l.mu.Lock()
			sub.deleted = true
			l.cleanupPending = true
			l.mu.Unlock()
		}
		c.resolve(NoPosition, werr)
		l.logger.Error("append failed",
			"path", l.path,
			"checksum", entry.Meta.Checksum,
			"error", err,
		)
		return c, nil
	}

	l.logger.Debug("record written", "checksum", entry.Meta.Checksum)

	if !cfg.visible {
		c.resolve(NoPosition, nil)
	}
	if reading {
		l.schedule()
	}
	return c, nil
}
