package cli

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/streamlog/internal/record"
	"github.com/roach88/streamlog/internal/testutil"
)

func newTestCodec() *record.Codec {
	return record.NewCodec(
		record.Identity{Host: "test-host", PID: 7},
		record.WithClock(testutil.NewStepClock(1700000000000, 1)),
		record.WithNonceSource(testutil.NewSequentialNonces("")),
	)
}

// encodeLines returns one record line per payload, without separators.
func encodeLines(t *testing.T, payloads ...any) [][]byte {
	t.Helper()
	codec := newTestCodec()
	lines := make([][]byte, 0, len(payloads))
	for _, p := range payloads {
		entry, err := codec.Encode(p)
		require.NoError(t, err)
		lines = append(lines, entry.Line)
	}
	return lines
}

// writeLog writes lines to path, each followed by a separator, and then
// tail verbatim.
func writeLog(t *testing.T, path string, lines [][]byte, tail string) {
	t.Helper()
	var buf bytes.Buffer
	for _, line := range lines {
		buf.Write(line)
		buf.WriteByte(record.Separator)
	}
	buf.WriteString(tail)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// syncBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
