package eventlog

import "errors"

var (
	// ErrClosed is returned by operations on a closed Log and by completions
	// still waiting when the Log was closed.
	ErrClosed = errors.New("event log closed")

	// ErrInvalidPosition is returned when subscribing from a negative position.
	ErrInvalidPosition = errors.New("invalid position")
)
