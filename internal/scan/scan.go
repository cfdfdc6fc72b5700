// Package scan reassembles separator-delimited records from a stream read in
// arbitrary chunks.
package scan

import "bytes"

// Split extracts every complete record from buf[:valid].
//
// One record is returned per separator occurrence, without the separator, as
// a copy that does not alias buf. The bytes after the last separator are
// moved to the start of buf and their count is returned as remainder:
//
//	remainder == valid - sum(len(records)) - len(records)*len(sep)
func Split(buf, sep []byte, valid int) (records [][]byte, remainder int) {
	if len(sep) == 0 {
		panic("scan: empty separator")
	}

	data := buf[:valid]
	start := 0
	for {
		i := bytes.Index(data[start:], sep)
		if i < 0 {
			break
		}
		rec := make([]byte, i)
		copy(rec, data[start:start+i])
		records = append(records, rec)
		start += i + len(sep)
	}

	remainder = valid - start
	if start > 0 && remainder > 0 {
		copy(buf, data[start:])
	}
	return records, remainder
}

// DefaultSize is the initial capacity of a Buffer.
const DefaultSize = 1 << 20

// Buffer is a reusable growable region holding the unconsumed tail of a
// stream. The bytes in [0, Len()) are always data that has been read but not
// yet extracted as a record.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	buf   []byte
	valid int
}

// NewBuffer creates a buffer with the given initial capacity.
// A size of 0 or less uses DefaultSize.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{buf: make([]byte, size)}
}

// Free returns a slice of at least n writable bytes following the valid
// data, growing the buffer first when there is not enough room. The caller
// fills a prefix of it and reports the amount with Commit.
func (b *Buffer) Free(n int) []byte {
	if len(b.buf)-b.valid < n {
		size := max(len(b.buf)*2, b.valid+n)
		grown := make([]byte, size)
		copy(grown, b.buf[:b.valid])
		b.buf = grown
	}
	return b.buf[b.valid:]
}

// Commit marks n more bytes after the valid data as filled.
func (b *Buffer) Commit(n int) {
	if n < 0 || b.valid+n > len(b.buf) {
		panic("scan: commit out of range")
	}
	b.valid += n
}

// Extract removes and returns every complete record, keeping the partial
// trailing bytes at the start of the buffer.
func (b *Buffer) Extract(sep []byte) [][]byte {
	records, remainder := Split(b.buf, sep, b.valid)
	b.valid = remainder
	return records
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return b.valid
}

// Cap returns the current capacity.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Reset discards the unconsumed bytes. The capacity is kept.
func (b *Buffer) Reset() {
	b.valid = 0
}
