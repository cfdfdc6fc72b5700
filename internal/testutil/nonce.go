package testutil

import (
	"fmt"
	"sync"
)

// SequentialNonces hands out predictable 32 hex char nonces.
//
// The n-th call returns the prefix followed by n zero-padded to 32 chars in
// total, so the same scenario always produces byte-identical log files.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialNonces struct {
	mu     sync.Mutex
	prefix string
	n      int64
}

// NewSequentialNonces creates a nonce source. The prefix must be hex and at
// most 16 characters; longer prefixes are truncated.
func NewSequentialNonces(prefix string) *SequentialNonces {
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return &SequentialNonces{prefix: prefix}
}

// Nonce returns the next nonce.
//
// Implements record.NonceSource.
func (s *SequentialNonces) Nonce() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s%0*x", s.prefix, 32-len(s.prefix), s.n), nil
}

// FixedNonce always returns the same nonce.
type FixedNonce string

// Nonce returns the fixed value.
func (f FixedNonce) Nonce() (string, error) {
	return string(f), nil
}

// FailingNonces always fails. Used to exercise encode errors.
type FailingNonces struct {
	Err error
}

// Nonce returns the configured error.
func (f FailingNonces) Nonce() (string, error) {
	return "", f.Err
}
