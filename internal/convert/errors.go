package convert

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Fatal failures returned by Convert wrap exactly one of these
// in a *ConversionError; match them with errors.Is.
var (
	// ErrEmptyFile means the input has no bytes or no header row.
	ErrEmptyFile = errors.New("empty file")

	// ErrInvalidDelimiter means the delimiter selector is not a known value.
	ErrInvalidDelimiter = errors.New("invalid delimiter selected")

	// ErrInvalidEncoding means the encoding selector is not a known value.
	ErrInvalidEncoding = errors.New("invalid encoding selected")

	// ErrEncoding means the detection sample is not valid in the requested encoding.
	ErrEncoding = errors.New("encoding error")

	// ErrRowShape marks rows whose field count differs from the header's.
	// It is never returned from Convert; such rows land in the Errors sheet.
	ErrRowShape = errors.New("column count mismatch")

	// ErrRead means the input stream failed mid-read.
	ErrRead = errors.New("read error")

	// ErrWrite means a sheet append could not complete.
	ErrWrite = errors.New("sheet write failed")

	// ErrSerialization means the workbook could not be emitted.
	ErrSerialization = errors.New("workbook serialization failed")

	// ErrCancelled means the caller's context ended mid-conversion.
	ErrCancelled = errors.New("conversion cancelled")
)

// ConversionError describes a fatal failure in one pipeline stage.
type ConversionError struct {
	Stage string // "sample", "detect", "decode", "write", "finalize"
	Kind  error  // one of the sentinel kinds above
	Err   error  // underlying cause, may be nil
}

func (e *ConversionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause, so errors.Is matches either
// (e.g. ErrWrite and context.Canceled).
func (e *ConversionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(stage string, kind, err error) *ConversionError {
	return &ConversionError{Stage: stage, Kind: kind, Err: err}
}

// IsClientError reports whether err was caused by the input rather than the
// server: bad selectors, empty or undecodable files, unreadable uploads.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyFile) ||
		errors.Is(err, ErrInvalidDelimiter) ||
		errors.Is(err, ErrInvalidEncoding) ||
		errors.Is(err, ErrEncoding) ||
		errors.Is(err, ErrRead)
}

// shapeMessage is the ErrorRecord message for a column count mismatch.
func shapeMessage(expected, got int) string {
	return fmt.Sprintf("%v: expected %d got %d", ErrRowShape, expected, got)
}
