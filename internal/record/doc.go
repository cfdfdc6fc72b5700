// Package record implements the on-disk record format of the event log.
//
// A record is one line of UTF-8 JSON terminated by '\n':
//
//	{"c":"<sha256 hex>","e":<payload>,"h":"<host>","n":"<nonce>","p":<pid>,"t":<millis>}
//
// The checksum c is the SHA-256 hex digest of the same line with the "c"
// member removed. The payload is serialized with package canon, so it never
// contains a raw newline.
//
// Decoding never fails outright. A record that is not valid UTF-8, not
// well-formed JSON, or whose checksum does not match is reported through
// Metadata.Err with the payload absent, and the raw text preserved:
//
//	d := record.Decode(line)
//	if d.Err != nil {
//		// record.IsChecksumError(d.Err), record.IsParseError(d.Err), ...
//	}
//	payload := d.Value() // fresh copy on every call
package record
