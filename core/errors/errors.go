// Package errors provides standardized error types and helpers for the kdpii engine.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrInvalidRange indicates a span range outside the document bounds
	ErrInvalidRange = errors.New("invalid range")
	// ErrUnknownLabel indicates a label code not visible to the project
	ErrUnknownLabel = errors.New("unknown label")
	// ErrDuplicateSpan indicates a span with an identical (start, end, label) triple
	ErrDuplicateSpan = errors.New("duplicate span")
	// ErrFormat indicates malformed input to a codec
	ErrFormat = errors.New("format error")
	// ErrMalformedCode indicates a label code rejected at taxonomy load
	ErrMalformedCode = errors.New("malformed label code")
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrLabelInUse indicates a label delete rejected by referential integrity
	ErrLabelInUse = errors.New("label in use")
)

// RangeError represents a span range validation failure with context.
type RangeError struct {
	Start      int    // Requested start offset
	End        int    // Requested end offset
	Length     int    // Document length in runes
	DocumentID string // Document the range was checked against
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid range [%d, %d) for document %s of length %d",
		e.Start, e.End, e.DocumentID, e.Length)
}

func (e *RangeError) Unwrap() error {
	return ErrInvalidRange
}

// LabelError represents a label resolution failure with context.
type LabelError struct {
	Code      string // Label code that failed to resolve
	ProjectID string // Project whose visible set was searched
}

func (e *LabelError) Error() string {
	if e.ProjectID != "" {
		return fmt.Sprintf("unknown label %q for project %s", e.Code, e.ProjectID)
	}
	return fmt.Sprintf("unknown label %q", e.Code)
}

func (e *LabelError) Unwrap() error {
	return ErrUnknownLabel
}

// DuplicateError represents an exact-duplicate span rejection.
type DuplicateError struct {
	Start int    // Start offset of the duplicate
	End   int    // End offset of the duplicate
	Code  string // Label code of the duplicate
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate span [%d, %d) %s", e.Start, e.End, e.Code)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicateSpan
}

// FormatError represents malformed codec input with context.
type FormatError struct {
	Format  string // Format being decoded (e.g., "csv", "labelstudio")
	Line    int    // 1-based row/line number, 0 if not applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", e.Format, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Format, e.Message)
}

func (e *FormatError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrFormat
}

// TextMismatchError reports a CSV matched_text column that no longer agrees
// with the document content at the recorded offsets.
type TextMismatchError struct {
	Line     int    // 1-based row number
	Expected string // Substring computed from the document
	Actual   string // matched_text column value
}

func (e *TextMismatchError) Error() string {
	return fmt.Sprintf("csv: line %d: matched_text %q does not match document substring %q",
		e.Line, e.Actual, e.Expected)
}

func (e *TextMismatchError) Unwrap() error {
	return ErrFormat
}

// CodeError represents a single malformed taxonomy entry.
type CodeError struct {
	Index   int    // Position of the entry in the load sequence
	Code    string // The offending code
	Field   string // Field that failed validation
	Message string // Human-readable error message
}

func (e *CodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("entry %d (%s): %s: %s", e.Index, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("entry %d (%s): %s", e.Index, e.Code, e.Message)
}

func (e *CodeError) Unwrap() error {
	return ErrMalformedCode
}

// NotFoundError represents a resource not found error with context.
type NotFoundError struct {
	Resource string // Type of resource (e.g., "span", "task", "document")
	ID       string // Identifier of the resource
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Helper functions for creating common errors

// NewRange creates a RangeError.
func NewRange(documentID string, start, end, length int) *RangeError {
	return &RangeError{
		DocumentID: documentID,
		Start:      start,
		End:        end,
		Length:     length,
	}
}

// NewLabel creates a LabelError.
func NewLabel(code, projectID string) *LabelError {
	return &LabelError{Code: code, ProjectID: projectID}
}

// NewDuplicate creates a DuplicateError.
func NewDuplicate(start, end int, code string) *DuplicateError {
	return &DuplicateError{Start: start, End: end, Code: code}
}

// NewFormat creates a FormatError.
func NewFormat(format string, line int, message string) *FormatError {
	return &FormatError{Format: format, Line: line, Message: message}
}

// NewTextMismatch creates a TextMismatchError.
func NewTextMismatch(line int, expected, actual string) *TextMismatchError {
	return &TextMismatchError{Line: line, Expected: expected, Actual: actual}
}

// NewNotFound creates a NotFoundError.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
