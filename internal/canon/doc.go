// Package canon serializes arbitrary JSON-compatible values into one
// canonical text form.
//
// The canonical form is what gets hashed into a record checksum, so it must
// be byte-stable across runs and platforms:
//   - Object keys sorted by UTF-16 code units (RFC 8785 ordering)
//   - Strings and keys kept exactly as given (no Unicode normalization),
//     so payloads round-trip unchanged
//   - No HTML escaping, no insignificant whitespace
//   - Numbers kept as their JSON literal text (no float reformatting)
//
// canon imports nothing internal.
package canon
