// Package core provides the conversion service behind the HTTP and CLI front ends.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Error codes are grouped by category:
//
// # File Errors (FILE001-FILE099)
//
// Errors caused by the uploaded file or its form fields:
//
//	FILE001 - File too large: File exceeds the maximum upload size
//	          Action: Split the file into smaller parts
//	          Matches: "file too large"
//
//	FILE002 - Invalid delimiter: The delimiter option is not supported
//	          Action: Choose auto, comma, tab, semicolon or pipe
//	          Matches: convert.ErrInvalidDelimiter
//
//	FILE003 - Encoding error: File contains characters invalid in the chosen encoding
//	          Action: Pick the encoding the file was saved with
//	          Matches: convert.ErrEncoding
//
//	FILE004 - No file: No file was selected
//	          Action: Please select a delimited text file to upload
//	          Matches: "no file provided"
//
//	FILE005 - Empty file: The uploaded file is empty
//	          Action: Please upload a file with a header row
//	          Matches: convert.ErrEmptyFile
//
//	FILE006 - Invalid encoding: The encoding option is not supported
//	          Action: Choose utf-8, latin-1 or utf-16
//	          Matches: convert.ErrInvalidEncoding
//
//	FILE007 - Read error: The upload could not be read completely
//	          Action: Check your connection and upload again
//	          Matches: convert.ErrRead
//
// # Conversion Errors (CONV001-CONV099)
//
// Errors raised while building the workbook:
//
//	CONV001 - Timed out: Conversion took too long
//	          Action: Try a smaller file or try again later
//	          Matches: context.DeadlineExceeded
//
//	CONV002 - Cancelled: Conversion was cancelled
//	          Action: Please try again
//	          Matches: convert.ErrCancelled
//
//	CONV003 - Write failed: Rows could not be written to the workbook
//	          Action: Please try again or contact support
//	          Matches: convert.ErrWrite
//
//	CONV004 - Serialization failed: The workbook could not be produced
//	          Action: Please try again or contact support
//	          Matches: convert.ErrSerialization
//
// # Download Errors (DL001-DL099)
//
//	DL001 - Not found: The converted file does not exist or was already downloaded
//	        Action: Convert the file again
//	        Matches: storage.ErrNotFound, storage.ErrInvalidName
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL002 - System busy: Too many conversions in progress
//	         Action: Please wait a moment and try again
//	         Matches: ErrTooManyUploads
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Action: Please wait a moment before trying again
//	          Matches: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches:
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Matching
//
// Sentinel targets are matched with errors.Is; plain patterns are matched
// case-insensitively with strings.Contains. The first match wins, so more
// specific entries come first (a timeout is also a cancellation).
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/csv2xlsx/internal/convert"
	"github.com/JonMunkholm/csv2xlsx/internal/storage"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern maps a sentinel or message fragment to a user message.
// Exactly one of target and pattern is set.
type errorPattern struct {
	target  error
	pattern string
	msg     UserMessage
}

func (p errorPattern) matches(err error, lower string) bool {
	if p.target != nil {
		return errors.Is(err, p.target)
	}
	return strings.Contains(lower, p.pattern)
}

// errorPatterns is ordered: specific entries before general ones.
var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors (FILE001-FILE007)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller parts",
			Code:    "FILE001",
		},
	},
	{
		target: convert.ErrInvalidDelimiter,
		msg: UserMessage{
			Message: "Invalid delimiter selected",
			Action:  "Choose auto, comma, tab, semicolon or pipe",
			Code:    "FILE002",
		},
	},
	{
		target: convert.ErrEncoding,
		msg: UserMessage{
			Message: "File contains characters that are invalid in the selected encoding",
			Action:  "Pick the encoding the file was saved with",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a delimited text file to upload",
			Code:    "FILE004",
		},
	},
	{
		target: convert.ErrEmptyFile,
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a file with a header row",
			Code:    "FILE005",
		},
	},
	{
		target: convert.ErrInvalidEncoding,
		msg: UserMessage{
			Message: "Invalid encoding selected",
			Action:  "Choose utf-8, latin-1 or utf-16",
			Code:    "FILE006",
		},
	},
	{
		target: convert.ErrRead,
		msg: UserMessage{
			Message: "The upload could not be read completely",
			Action:  "Check your connection and upload again",
			Code:    "FILE007",
		},
	},

	// =========================================================================
	// Conversion Errors (CONV001-CONV004)
	// =========================================================================
	{
		target: context.DeadlineExceeded,
		msg: UserMessage{
			Message: "Conversion timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "CONV001",
		},
	},
	{
		target: convert.ErrCancelled,
		msg: UserMessage{
			Message: "Conversion was cancelled",
			Action:  "Please try again",
			Code:    "CONV002",
		},
	},
	{
		target: context.Canceled,
		msg: UserMessage{
			Message: "Conversion was cancelled",
			Action:  "Please try again",
			Code:    "CONV002",
		},
	},
	{
		target: convert.ErrWrite,
		msg: UserMessage{
			Message: "Rows could not be written to the workbook",
			Action:  "Please try again or contact support",
			Code:    "CONV003",
		},
	},
	{
		target: convert.ErrSerialization,
		msg: UserMessage{
			Message: "The workbook could not be produced",
			Action:  "Please try again or contact support",
			Code:    "CONV004",
		},
	},

	// =========================================================================
	// Download Errors (DL001)
	// =========================================================================
	{
		target: storage.ErrNotFound,
		msg: UserMessage{
			Message: "File not found",
			Action:  "The file may have expired or was already downloaded. Convert it again",
			Code:    "DL001",
		},
	},
	{
		target: storage.ErrInvalidName,
		msg: UserMessage{
			Message: "File not found",
			Action:  "The file may have expired or was already downloaded. Convert it again",
			Code:    "DL001",
		},
	},

	// =========================================================================
	// Upload and Rate Limiting (UPL002, RATE001)
	// =========================================================================
	{
		target: ErrTooManyUploads,
		msg: UserMessage{
			Message: "System is busy processing other conversions",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// Support staff should check application logs for the technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first matching entry, or the ERR000 fallback.
//
// Example:
//
//	_, err := svc.Convert(ctx, req)
//	msg := MapError(err)
//	// errors.Is(err, convert.ErrEmptyFile) => msg.Code == "FILE005"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	lower := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if ep.matches(err, lower) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logging, with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
