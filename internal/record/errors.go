package record

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes record errors.
type ErrorCode string

const (
	// CodeEncoding indicates the raw bytes are not valid UTF-8.
	CodeEncoding ErrorCode = "ENCODING_ERROR"

	// CodeParse indicates the text is not a well-formed record object.
	CodeParse ErrorCode = "PARSE_ERROR"

	// CodeChecksum indicates the record parsed but its checksum does not
	// match its content (corruption, truncation or overwrite).
	CodeChecksum ErrorCode = "CHECKSUM_ERROR"

	// CodeWrite indicates the record could not be written durably.
	CodeWrite ErrorCode = "WRITE_ERROR"
)

// Error is a record-level failure.
//
// Encoding, parse and checksum errors are reported per record and never stop
// reading. Write errors fail only the append that produced them.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a record error with the same code, so the
// sentinels below match any error of their category.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrEncoding = &Error{Code: CodeEncoding}
	ErrParse    = &Error{Code: CodeParse}
	ErrChecksum = &Error{Code: CodeChecksum}
	ErrWrite    = &Error{Code: CodeWrite}
)

// ErrUnserializable is returned by Encode when the payload has no JSON form.
var ErrUnserializable = errors.New("payload is not serializable")

// NewWriteError wraps a failed write.
func NewWriteError(err error) *Error {
	return &Error{Code: CodeWrite, Message: "append record", Err: err}
}

// CodeOf returns the code of the first record error in err's chain, or ""
// if there is none.
func CodeOf(err error) ErrorCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsEncodingError returns true if err is an encoding error.
func IsEncodingError(err error) bool {
	return CodeOf(err) == CodeEncoding
}

// IsParseError returns true if err is a parse error.
func IsParseError(err error) bool {
	return CodeOf(err) == CodeParse
}

// IsChecksumError returns true if err is a checksum mismatch.
func IsChecksumError(err error) bool {
	return CodeOf(err) == CodeChecksum
}

// IsWriteError returns true if err is a write failure.
func IsWriteError(err error) bool {
	return CodeOf(err) == CodeWrite
}
