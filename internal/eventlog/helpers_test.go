package eventlog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/streamlog/internal/record"
)

const (
	waitFor = 5 * time.Second
	tick    = 2 * time.Millisecond
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openTestLog opens a log in a fresh temp dir with a fast fallback poll.
func openTestLog(t *testing.T, opts ...Option) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.log")
	return openTestLogAt(t, path, opts...)
}

func openTestLogAt(t *testing.T, path string, opts ...Option) *Log {
	t.Helper()
	base := []Option{
		WithPollInterval(10 * time.Millisecond),
		WithLogger(discardLogger()),
	}
	l, err := Open(path, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	t.Cleanup(cancel)
	return ctx
}

// appendWait appends event and waits for its position.
func appendWait(t *testing.T, l *Log, event any) int64 {
	t.Helper()
	c, err := l.Append(event)
	require.NoError(t, err)
	pos, err := c.Wait(testContext(t))
	require.NoError(t, err)
	return pos
}

func appendNoWait(t *testing.T, l *Log, event any) {
	t.Helper()
	c, err := l.Append(event, WithoutVisibility())
	require.NoError(t, err)
	<-c.Done()
	require.NoError(t, c.Err())
}

// appendRaw writes data to path the way another process would.
func appendRaw(t *testing.T, path string, data []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Write(data)
	require.NoError(t, err)
}

func encodeLine(t *testing.T, payload any) []byte {
	t.Helper()
	entry, err := record.NewCodec(record.CurrentIdentity()).Encode(payload)
	require.NoError(t, err)
	return append(entry.Line, record.Separator)
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for signal")
	}
}

// actionLog collects strings from handler and drain goroutines.
type actionLog struct {
	mu    sync.Mutex
	items []string
}

func (a *actionLog) add(s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, s)
}

func (a *actionLog) snapshot() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.items...)
}

func (a *actionLog) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

func (a *actionLog) String() string {
	return strings.Join(a.snapshot(), "")
}

// delivery is one handler call.
type delivery struct {
	pos     int64
	payload any
	meta    record.Metadata
}

type deliveries struct {
	mu    sync.Mutex
	items []delivery
}

func (d *deliveries) handler(pos int64, payload any, meta record.Metadata) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items, delivery{pos: pos, payload: payload, meta: meta})
}

func (d *deliveries) snapshot() []delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]delivery(nil), d.items...)
}

func (d *deliveries) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}
