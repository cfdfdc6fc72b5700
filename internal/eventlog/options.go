package eventlog

import (
	"log/slog"
	"time"

	"github.com/roach88/streamlog/internal/record"
	"github.com/roach88/streamlog/internal/scan"
)

const (
	// DefaultReadSize is the size of one read from the log file.
	DefaultReadSize = 8192

	// DefaultPollInterval is the fallback poll period while subscriptions
	// exist. It picks up bytes written by other processes.
	DefaultPollInterval = time.Second
)

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithReadSize sets the number of bytes requested per read.
func WithReadSize(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.readSize = n
		}
	}
}

// WithBufferSize sets the initial scan buffer capacity. The buffer grows
// when a record does not fit.
func WithBufferSize(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.bufferSize = n
		}
	}
}

// WithPollInterval sets the fallback poll period.
func WithPollInterval(d time.Duration) Option {
	return func(l *Log) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// WithFsync makes every append sync the file before it completes.
func WithFsync(enabled bool) Option {
	return func(l *Log) {
		l.fsync = enabled
	}
}

// WithCodec sets the record codec. Default: a codec stamped with
// record.CurrentIdentity().
func WithCodec(codec *record.Codec) Option {
	return func(l *Log) {
		if codec != nil {
			l.codec = codec
		}
	}
}

func defaultLog() *Log {
	return &Log{
		logger:       slog.Default(),
		readSize:     DefaultReadSize,
		bufferSize:   scan.DefaultSize,
		pollInterval: DefaultPollInterval,
	}
}

// AppendOption configures a single Append.
type AppendOption func(*appendConfig)

type appendConfig struct {
	visible bool
}

// WithoutVisibility resolves the completion as soon as the write succeeds,
// with NoPosition, instead of waiting for the record to be read back.
func WithoutVisibility() AppendOption {
	return func(c *appendConfig) {
		c.visible = false
	}
}
