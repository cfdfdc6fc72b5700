package record

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"
)

// Identity is the provenance stamped into every record written by a process.
// It is never used for ordering.
type Identity struct {
	Host string
	PID  int64
}

var currentIdentity = sync.OnceValue(func() Identity {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return Identity{Host: host, PID: int64(os.Getpid())}
})

// CurrentIdentity returns the host name and pid of this process.
// They are looked up once and cached.
func CurrentIdentity() Identity {
	return currentIdentity()
}

// Clock supplies record timestamps in epoch milliseconds.
// Implemented by the system clock (production) and testutil.StepClock (tests).
type Clock interface {
	NowMillis() int64
}

// NonceSource supplies the per-record nonce: 128 random bits as 32 hex chars.
// Implemented by RandomNonces (production) and testutil.SequentialNonces (tests).
type NonceSource interface {
	Nonce() (string, error)
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// NowMillis returns the current time in epoch milliseconds.
func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// RandomNonces draws nonces from crypto/rand.
//
// Thread-safety: stateless and safe for concurrent use.
type RandomNonces struct{}

// Nonce returns 16 random bytes hex encoded.
func (RandomNonces) Nonce() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
