package errors

import (
	stderrors "errors"
	"fmt"
)

// Error types for m2pack operations
var (
	// ErrSourceNotFound is returned when a source directory does not exist
	ErrSourceNotFound = &PackError{Code: "SOURCE_NOT_FOUND", Message: "source directory not found"}

	// ErrSourceFileNotFound is returned when a single archive header file does not exist
	ErrSourceFileNotFound = &PackError{Code: "SOURCE_FILE_NOT_FOUND", Message: "source archive not found"}

	// ErrMissingPairedFile is returned when a header file has no data sibling
	ErrMissingPairedFile = &PackError{Code: "MISSING_PAIRED_FILE", Message: "paired data file not found"}

	// ErrEntryNameEmpty is reported (never returned fatally) for entries without a name
	ErrEntryNameEmpty = &PackError{Code: "ENTRY_NAME_EMPTY", Message: "entry has an empty name"}

	// ErrRootFolderIDMissing is reported when an entry has a root directory but no root folder id
	ErrRootFolderIDMissing = &PackError{Code: "ROOT_FOLDER_ID_MISSING", Message: "root folder id missing for root directory"}

	// ErrCorruptArchive is returned when a header or data stream cannot be decoded
	ErrCorruptArchive = &PackError{Code: "CORRUPT_ARCHIVE", Message: "archive is corrupt"}

	// ErrInvalidMode is returned for an unknown archive mode
	ErrInvalidMode = &PackError{Code: "INVALID_MODE", Message: "invalid archive mode"}

	// ErrDuplicateEntry is returned when two entries share an id
	ErrDuplicateEntry = &PackError{Code: "DUPLICATE_ENTRY", Message: "duplicate entry id"}

	// ErrEntryNotFound is returned when an entry id is not present in an archive
	ErrEntryNotFound = &PackError{Code: "ENTRY_NOT_FOUND", Message: "entry not found"}

	// ErrDigestMismatch is returned when entry content does not match its recorded digest
	ErrDigestMismatch = &PackError{Code: "DIGEST_MISMATCH", Message: "entry digest mismatch"}
)

// PackError represents a structured error in m2pack operations
type PackError struct {
	Code    string         // Error code for programmatic handling
	Message string         // Human-readable error message
	Cause   error          // Underlying error, if any
	Details map[string]any // Additional context
}

// Error implements the error interface
func (e *PackError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	if len(e.Details) > 0 {
		msg += fmt.Sprintf(" (details: %v)", e.Details)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *PackError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a PackError with the same code, so derived
// errors still match their sentinel.
func (e *PackError) Is(target error) bool {
	t, ok := target.(*PackError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause adds a cause to the error
func (e *PackError) WithCause(cause error) *PackError {
	return &PackError{
		Code:    e.Code,
		Message: e.Message,
		Cause:   cause,
		Details: e.Details,
	}
}

// WithDetail adds a detail key-value pair to the error
func (e *PackError) WithDetail(key string, value any) *PackError {
	details := make(map[string]any)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &PackError{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Details: details,
	}
}

// WithMessage overrides the error message
func (e *PackError) WithMessage(message string) *PackError {
	return &PackError{
		Code:    e.Code,
		Message: message,
		Cause:   e.Cause,
		Details: e.Details,
	}
}

// IsPackError checks if an error is, or wraps, a PackError
func IsPackError(err error) bool {
	var packErr *PackError
	return stderrors.As(err, &packErr)
}

// GetErrorCode extracts the error code of the first PackError in err's chain
func GetErrorCode(err error) string {
	var packErr *PackError
	if stderrors.As(err, &packErr) {
		return packErr.Code
	}
	return ""
}
