package core

// # Error Codes Reference
//
// User-facing messages with codes for support reference. Users quote the
// code; support staff look it up here.
//
// File errors (FILE001-FILE099):
//
//	FILE001 - File too large            Split the file into smaller files
//	FILE002 - Not a CSV file            Export the spreadsheet as .csv
//	FILE003 - Unreadable file           Re-export the file and try again
//	FILE004 - No file                   Select a CSV file to import
//	FILE005 - Empty file                Add a header row and project rows
//
// Authentication errors (AUTH001-AUTH099):
//
//	AUTH001 - Not signed in             Sign in and try again
//	AUTH002 - Invalid API key           Check the configured API key
//
// Import errors (IMP001-IMP099):
//
//	IMP001 - Import cancelled           Start a new import when ready
//	IMP002 - System busy                Wait a moment and try again
//	IMP003 - Import not found           The import may have expired
//	IMP004 - Import already running     Wait for your current import to finish
//	IMP005 - Request cancelled          Try again
//	IMP006 - Request timed out          Try a smaller file
//
// Tag errors (TAG001-TAG099):
//
//	TAG001 - Tag already exists         Another tag already uses this name
//	TAG002 - Tag not linked             Add the tag to the project manually
//
// Database errors (DB001-DB099):
//
//	DB001 - Duplicate record            DB002 - Unique constraint
//	DB003 - Missing reference           DB004 - Connection refused
//	DB005 - Connection reset            DB006 - Timeout
//	DB007 - Deadlock
//
// Rate limiting: RATE001. Fallback: ERR000 (check the logs).
//
// Known sentinel and typed errors are matched first with errors.Is/As.
// Anything else falls back to case-insensitive substring patterns, first
// match wins.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// ErrNoFile is returned when a request carries no file.
var ErrNoFile = errors.New("no file provided")

// ErrInvalidAPIKey is returned by the API key middleware.
var ErrInvalidAPIKey = errors.New("invalid api key")

// ErrRateLimited is returned when a client exceeds its request rate.
var ErrRateLimited = errors.New("rate limit exceeded")

var (
	msgFileTooLarge = UserMessage{
		Message: "File exceeds the maximum size limit",
		Action:  "Split the file into smaller files",
		Code:    "FILE001",
	}
	msgNotCSV = UserMessage{
		Message: "Only .csv files can be imported",
		Action:  "Export the spreadsheet as CSV and try again",
		Code:    "FILE002",
	}
	msgUnreadable = UserMessage{
		Message: "The file could not be read",
		Action:  "Re-export the file as UTF-8 CSV and try again",
		Code:    "FILE003",
	}
	msgNoFile = UserMessage{
		Message: "No file was selected",
		Action:  "Please select a CSV file to import",
		Code:    "FILE004",
	}
	msgEmptyFile = UserMessage{
		Message: "The file has no header row",
		Action:  "Add a header row followed by one row per project",
		Code:    "FILE005",
	}
	msgUnauthenticated = UserMessage{
		Message: "You are not signed in",
		Action:  "Sign in and try again",
		Code:    "AUTH001",
	}
	msgInvalidAPIKey = UserMessage{
		Message: "The API key is missing or invalid",
		Action:  "Check the configured API key",
		Code:    "AUTH002",
	}
	msgCancelled = UserMessage{
		Message: "Import was cancelled",
		Action:  "Start a new import when ready",
		Code:    "IMP001",
	}
	msgBusy = UserMessage{
		Message: "Too many imports in progress",
		Action:  "Please wait a moment and try again",
		Code:    "IMP002",
	}
	msgNotFound = UserMessage{
		Message: "Import not found",
		Action:  "The import may have expired. Please start a new import",
		Code:    "IMP003",
	}
	msgInProgress = UserMessage{
		Message: "You already have an import running",
		Action:  "Wait for it to finish before starting another",
		Code:    "IMP004",
	}
	msgSlugConflict = UserMessage{
		Message: "A tag with this name already exists",
		Action:  "Use the existing tag or choose another name",
		Code:    "TAG001",
	}
	msgTagLink = UserMessage{
		Message: "Some tags could not be added to the project",
		Action:  "Add the missing tags to the project manually",
		Code:    "TAG002",
	}
)

// errorTarget maps a sentinel or typed error to a message.
type errorTarget struct {
	match func(error) bool
	msg   UserMessage
}

func isErr(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// Order matters: ErrFileTooLarge may arrive wrapped in an
// UnreadableInputError and must win over the generic unreadable message.
var errorTargets = []errorTarget{
	{isErr(ErrFileTooLarge), msgFileTooLarge},
	{isErr(ErrNotCSV), msgNotCSV},
	{isErr(ErrNoFile), msgNoFile},
	{isErr(ErrUnauthenticated), msgUnauthenticated},
	{isErr(ErrInvalidAPIKey), msgInvalidAPIKey},
	{isErr(ErrTooManyImports), msgBusy},
	{isErr(ErrImportInProgress), msgInProgress},
	{isErr(ErrImportNotFound), msgNotFound},
	{isErr(errImportCancelled), msgCancelled},
	{isErr(ErrSlugConflict), msgSlugConflict},
	{func(err error) bool { var e *EmptyInputError; return errors.As(err, &e) }, msgEmptyFile},
	{func(err error) bool { var e *UnreadableInputError; return errors.As(err, &e) }, msgUnreadable},
	{func(err error) bool { var e *TagLinkError; return errors.As(err, &e) }, msgTagLink},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user
// messages, for errors that reach us without a typed wrapper (driver
// errors, network errors). More specific patterns come first.
var errorPatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Check the file for repeated rows",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your CSV",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your CSV",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "The tag may have been deleted. Please try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "IMP005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try importing a smaller file or check your connection",
			Code:    "IMP006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try importing a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
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

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Typed errors are checked first, then text patterns. If nothing matches,
// the ERR000 fallback is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, t := range errorTargets {
		if t.match(err) {
			return t.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
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
