package core

// error_messages.go maps technical errors to user-facing messages with codes
// for support reference.
//
// # Error Codes Reference
//
// Database errors (saved mapping storage):
//
//	DB001 - Connection refused      "connection refused"
//	DB002 - Connection reset        "connection reset"
//	DB003 - Timeout                 "timeout"
//
// File errors (upload and parse):
//
//	FILE001 - File too large        "file too large"
//	FILE002 - No header row         "file has no columns"
//	FILE003 - No file               "no file provided"
//	FILE004 - Invalid CSV           "parse error"
//
// Mapping errors (saved and imported mappings):
//
//	MAP001 - Invalid mapping file   "invalid mapping file"
//	MAP002 - Mapping not found      "mapping not found"
//	MAP003 - Unknown transformation "unknown transformation"
//	MAP004 - Unknown rule           "unknown validation rule"
//
// Processing errors:
//
//	PROC001 - Unknown export format "unknown export format"
//	PROC002 - Unknown SQL dialect   "unsupported sql dialect"
//	PROC003 - Server busy           "too many concurrent requests"
//	PROC004 - Cancelled             "context canceled"
//	PROC005 - Timed out             "context deadline exceeded"
//
// Rate limiting:
//
//	RATE001 - Rate limited          "rate limit"
//
// Anything else is ERR000; check the logs for the technical error.
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns go before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Database
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB003",
		},
	},

	// Files
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "file has no columns",
		msg: UserMessage{
			Message: "The file has no header row",
			Action:  "Make sure the first line of the file lists the column names",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE003",
		},
	},
	{
		pattern: "parse error",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is delimited text with a header row",
			Code:    "FILE004",
		},
	},

	// Mappings
	{
		pattern: "invalid mapping file",
		msg: UserMessage{
			Message: "Invalid mapping file format",
			Action:  "Use a mapping file exported from this tool",
			Code:    "MAP001",
		},
	},
	{
		pattern: "mapping not found",
		msg: UserMessage{
			Message: "No saved mapping matches these files",
			Action:  "Create a new mapping or import one",
			Code:    "MAP002",
		},
	},
	{
		pattern: "unknown transformation",
		msg: UserMessage{
			Message: "The mapping uses an unknown transformation",
			Action:  "Check the transformation type for each column",
			Code:    "MAP003",
		},
	},
	{
		pattern: "unknown validation rule",
		msg: UserMessage{
			Message: "The mapping uses an unknown validation rule",
			Action:  "Check the rule type for each column",
			Code:    "MAP004",
		},
	},

	// Processing
	{
		pattern: "unknown export format",
		msg: UserMessage{
			Message: "Unsupported export format",
			Action:  "Choose csv, json or sql",
			Code:    "PROC001",
		},
	},
	{
		pattern: "unsupported sql dialect",
		msg: UserMessage{
			Message: "Unsupported SQL dialect",
			Action:  "Choose postgresql, mysql or sqlite",
			Code:    "PROC002",
		},
	},
	{
		pattern: "too many concurrent requests",
		msg: UserMessage{
			Message: "System is busy processing other files",
			Action:  "Please wait a moment and try again",
			Code:    "PROC003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "PROC004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "PROC005",
		},
	},

	// Rate limiting
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
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first pattern match (case-insensitive), or the ERR000
// fallback.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message. Error() returns
// the user message; Unwrap() returns the technical error for logging and
// errors.Is.
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

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
