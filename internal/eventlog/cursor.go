package eventlog

import (
	"fmt"
	"os"
)

// ensureWriterLocked opens the write handle, creating the file if needed.
func (l *Log) ensureWriterLocked() error {
	if l.wf != nil {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o666)
	if err != nil {
		return fmt.Errorf("open write handle: %w", err)
	}
	l.wf = f
	l.logger.Debug("opened write handle", "path", l.path)
	return nil
}

// ensureReaderLocked opens the read handle. The write handle is opened first
// so the file exists.
func (l *Log) ensureReaderLocked() error {
	if err := l.ensureWriterLocked(); err != nil {
		return err
	}
	if l.rf != nil {
		return nil
	}
	f, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("open read handle: %w", err)
	}
	l.rf = f
	l.logger.Debug("opened read handle", "path", l.path)
	return nil
}

// rewindLocked restarts scanning from the beginning of the file.
//
// The new handle is opened before the old one is closed. A read in flight on
// the old handle is not interrupted; the generation bump makes the worker
// discard its result.
func (l *Log) rewindLocked() error {
	f, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("rewind: %w", err)
	}
	old := l.rf
	l.rf = f
	l.gen++
	l.readPos = 0
	l.lastRead = 0
	l.buf.Reset()
	clear(l.queue)
	l.queue = l.queue[:0]

	if old != nil {
		if err := old.Close(); err != nil {
			l.logger.Warn("close stale read handle", "error", err)
		}
	}
	l.logger.Debug("read handle restarted", "path", l.path, "generation", l.gen)
	return nil
}
