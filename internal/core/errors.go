package core

import "errors"

// Sentinel errors returned by the engine and the service. Callers match them
// with errors.Is; MapError turns them into user-facing messages.
var (
	// ErrNoColumns is returned when the input has no header row.
	ErrNoColumns = errors.New("file has no columns")

	// ErrFileTooLarge is returned when the input exceeds the configured size.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidMappingFile is returned when a saved mapping file is missing
	// required fields or has the wrong shape.
	ErrInvalidMappingFile = errors.New("invalid mapping file format")

	// ErrMappingNotFound is returned when no saved mapping matches.
	ErrMappingNotFound = errors.New("mapping not found")

	// ErrTooManyRequests is returned when the process limiter times out.
	ErrTooManyRequests = errors.New("too many concurrent requests")

	// ErrUnknownFormat is returned for an export format nobody registered.
	ErrUnknownFormat = errors.New("unknown export format")

	// ErrUnknownTransformation is returned when compiling a transformation
	// with an unrecognized type tag.
	ErrUnknownTransformation = errors.New("unknown transformation type")

	// ErrUnknownRule is returned when compiling a validation rule with an
	// unrecognized type tag.
	ErrUnknownRule = errors.New("unknown validation rule type")
)
