package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/roach88/streamlog/internal/record"
	"github.com/roach88/streamlog/internal/scan"
	"github.com/roach88/streamlog/internal/tempfile"
)

// Log is an append-only event log backed by one file.
//
// Thread-safety model:
//   - Append, Subscribe, Unsubscribe, OnDrain, Pause, Resume, Position:
//     safe from any goroutine, including from handlers
//   - Close: safe from any goroutine except handlers and drain callbacks
//
// INVARIANTS:
//   - only the poll worker reads from rf and touches the bytes of buf
//   - readPos only moves forward, except on rewind where it resets to 0
//   - gen changes on every rewind; a read started under an older gen is
//     discarded
type Log struct {
	path  string
	temp  bool
	codec *record.Codec

	logger       *slog.Logger
	readSize     int
	bufferSize   int
	pollInterval time.Duration
	fsync        bool

	ticker     *time.Ticker
	wake       chan struct{} // buffered, size 1
	stop       chan struct{}
	workerDone chan struct{}
	drainWG    sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	mu             sync.Mutex
	closed         bool
	wf             *os.File
	rf             *os.File
	gen            uint64
	readPos        int64
	buf            *scan.Buffer
	queue          [][]byte
	lastRead       int
	active         bool
	paused         int
	subs           []*Subscription
	drains         []*DrainSubscription
	cleanupPending bool
	tickerOn       bool
}

// Open creates a Log for the file at path. The file is created on the first
// append if it does not exist.
//
// An empty path provisions a private temporary file, removed by Close or by
// tempfile.Cleanup at process exit.
func Open(path string, opts ...Option) (*Log, error) {
	l := defaultLog()
	for _, opt := range opts {
		opt(l)
	}
	if l.codec == nil {
		l.codec = record.NewCodec(record.CurrentIdentity())
	}

	if path == "" {
		p, err := tempfile.Create("streamlog-")
		if err != nil {
			return nil, fmt.Errorf("open event log: %w", err)
		}
		path = p
		l.temp = true
	}
	l.path = path

	l.buf = scan.NewBuffer(l.bufferSize)
	l.ticker = time.NewTicker(l.pollInterval)
	l.ticker.Stop()
	l.wake = make(chan struct{}, 1)
	l.stop = make(chan struct{})
	l.workerDone = make(chan struct{})
	l.ctx, l.cancel = context.WithCancel(context.Background())

	go l.run()

	l.logger.Info("event log opened", "path", l.path, "temporary", l.temp)
	return l, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Position returns the read position: the number of records the cursor has
// decoded since it last started from the beginning of the file.
func (l *Log) Position() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readPos
}

// Close stops the poll worker, waits for a running drain chain, closes the
// file handles and fails every completion still waiting for visibility with
// ErrClosed. A temporary log file is removed.
//
// Close is idempotent. It must not be called from a Handler or DrainFunc.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.ticker.Stop()
	l.tickerOn = false
	l.mu.Unlock()

	l.cancel()
	close(l.stop)
	<-l.workerDone
	l.drainWG.Wait()

	l.mu.Lock()
	var errs []error
	for _, s := range l.subs {
		if s.internal && !s.deleted {
			s.deleted = true
			s.completion.resolve(NoPosition, ErrClosed)
		}
	}
	l.subs = nil
	l.drains = nil
	l.queue = nil
	if l.rf != nil {
		if err := l.rf.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close read handle: %w", err))
		}
		l.rf = nil
	}
	if l.wf != nil {
		if err := l.wf.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close write handle: %w", err))
		}
		l.wf = nil
	}
	l.mu.Unlock()

	if l.temp {
		if err := tempfile.Remove(l.path); err != nil {
			errs = append(errs, err)
		}
	}

	l.logger.Info("event log closed", "path", l.path)
	return errors.Join(errs...)
}

// schedule wakes the poll worker. Multiple calls before the worker runs
// coalesce into one pass.
func (l *Log) schedule() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
