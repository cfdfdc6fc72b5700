package record

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roach88/streamlog/internal/canon"
)

// Separator terminates every record on disk.
const Separator = '\n'

// Meta is the content identity of a written record.
// It is comparable, which is how the writer recognizes its own records when
// they come back through the read path.
type Meta struct {
	Checksum string `json:"checksum"`
	Host     string `json:"host"`
	Nonce    string `json:"nonce"`
	PID      int64  `json:"pid"`
	Time     int64  `json:"time"`
}

// Metadata accompanies every delivered record.
type Metadata struct {
	Meta

	// Raw is the record line without its separator.
	Raw string `json:"raw"`

	// Err is set when the record failed validation. The payload is absent
	// in that case.
	Err error `json:"-"`
}

// Entry is an encoded record ready to be written.
type Entry struct {
	Meta Meta

	// Line is the serialized record without the trailing separator.
	Line []byte
}

// Decoded is the result of decoding one record line.
type Decoded struct {
	Metadata

	// Payload is the validated payload text. Nil when Err is set.
	Payload json.RawMessage
}

// Value decodes a fresh copy of the payload. Mutating the result never
// affects another caller's copy. Returns nil when the record is invalid.
func (d Decoded) Value() any {
	if d.Err != nil || len(d.Payload) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(d.Payload, &v); err != nil {
		return nil
	}
	return v
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithClock sets the timestamp source.
func WithClock(clock Clock) CodecOption {
	return func(c *Codec) {
		c.clock = clock
	}
}

// WithNonceSource sets the nonce source.
func WithNonceSource(nonces NonceSource) CodecOption {
	return func(c *Codec) {
		c.nonces = nonces
	}
}

// Codec encodes records for one writer identity.
//
// Thread-safety: Encode is safe for concurrent use as long as the configured
// clock and nonce source are.
type Codec struct {
	id     Identity
	clock  Clock
	nonces NonceSource
}

// NewCodec creates a codec stamping records with id.
func NewCodec(id Identity, opts ...CodecOption) *Codec {
	c := &Codec{
		id:     id,
		clock:  SystemClock{},
		nonces: RandomNonces{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Identity returns the host and pid this codec stamps.
func (c *Codec) Identity() Identity {
	return c.id
}

// Encode serializes payload into a record line.
//
// The payload is serialized canonically, so equal payloads always produce the
// same "e" text. Payloads with no JSON form fail with ErrUnserializable before
// anything is written.
func (c *Codec) Encode(payload any) (Entry, error) {
	nonce, err := c.nonces.Nonce()
	if err != nil {
		return Entry{}, fmt.Errorf("encode record: %w", err)
	}
	meta := Meta{
		Host:  c.id.Host,
		Nonce: nonce,
		PID:   c.id.PID,
		Time:  c.clock.NowMillis(),
	}

	body, err := marshalBody(payload, meta)
	if err != nil {
		return Entry{}, err
	}
	meta.Checksum = checksum(body)

	line := make([]byte, 0, len(body)+len(meta.Checksum)+8)
	line = append(line, `{"c":"`...)
	line = append(line, meta.Checksum...)
	line = append(line, `",`...)
	line = append(line, body[1:]...)

	return Entry{Meta: meta, Line: line}, nil
}

// ComputeChecksum recomputes the checksum of a record from its constituent
// fields. meta.Checksum is ignored.
func ComputeChecksum(payload any, meta Meta) (string, error) {
	body, err := marshalBody(payload, meta)
	if err != nil {
		return "", err
	}
	return checksum(body), nil
}

func marshalBody(payload any, meta Meta) ([]byte, error) {
	body, err := canon.MarshalObject(canon.Object{
		"e": payload,
		"h": meta.Host,
		"n": meta.Nonce,
		"p": meta.PID,
		"t": meta.Time,
	})
	if err != nil {
		return nil, fmt.Errorf("encode record: %w: %w", ErrUnserializable, err)
	}
	return body, nil
}

func checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// wireRecord is the structural shape every record must parse into.
type wireRecord struct {
	C string          `json:"c"`
	E json.RawMessage `json:"e"`
	H string          `json:"h"`
	N string          `json:"n"`
	P int64           `json:"p"`
	T int64           `json:"t"`
}

// Decode validates and decodes one record line (without its separator).
//
// Checks run in order: UTF-8, JSON structure, checksum. The first failure is
// reported in Metadata.Err and the payload is left nil. Raw is always set.
// Verification hashes the raw text, so records from any conforming writer
// verify regardless of how that writer ordered the payload's keys.
func Decode(raw []byte) Decoded {
	var d Decoded

	if !utf8.Valid(raw) {
		d.Raw = strings.ToValidUTF8(string(raw), string(utf8.RuneError))
		d.Err = &Error{Code: CodeEncoding, Message: "record is not valid UTF-8"}
		return d
	}
	d.Raw = string(raw)

	var w wireRecord
	if !bytes.HasPrefix(bytes.TrimLeft(raw, " \t\r"), []byte{'{'}) {
		d.Err = &Error{Code: CodeParse, Message: "record is not a JSON object"}
		return d
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		d.Err = &Error{Code: CodeParse, Message: "record is not a well-formed object", Err: err}
		return d
	}
	d.Meta = Meta{Checksum: w.C, Host: w.H, Nonce: w.N, PID: w.P, Time: w.T}

	if got := checksum(stripChecksum(raw)); got != w.C {
		d.Err = &Error{
			Code:    CodeChecksum,
			Message: fmt.Sprintf("recorded %q, computed %q", w.C, got),
		}
		return d
	}

	d.Payload = append(json.RawMessage(nil), w.E...)
	return d
}

var checksumPrefix = []byte(`{"c":"`)

// stripChecksum removes a leading "c" member from raw, turning
// {"c":"<sum>",rest into {rest. Text without that prefix is returned as is
// and will not verify.
func stripChecksum(raw []byte) []byte {
	if !bytes.HasPrefix(raw, checksumPrefix) {
		return raw
	}
	rest := raw[len(checksumPrefix):]
	end := bytes.IndexByte(rest, '"')
	if end <= 0 || end+1 >= len(rest) || rest[end+1] != ',' {
		return raw
	}
	out := make([]byte, 0, len(rest)-end-1)
	out = append(out, '{')
	return append(out, rest[end+2:]...)
}
