package errors

import (
	"fmt"
	"time"
)

// FillError represents a failure somewhere in the extract-and-fill pipeline
// together with the information a caller needs to decide whether to continue.
type FillError struct {
	Type        ErrorType `json:"type"`
	Message     string    `json:"message"`
	Context     string    `json:"context,omitempty"`
	Field       string    `json:"field,omitempty"`
	FilePath    string    `json:"file_path,omitempty"`
	Recoverable bool      `json:"recoverable"`
	Timestamp   time.Time `json:"timestamp"`
	Err         error     `json:"-"`
}

// ErrorType represents the categories of pipeline failures
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeConfiguration covers missing or unparseable rule sets and templates.
	ErrorTypeConfiguration
	// ErrorTypeExtractionMiss is an expected non-match; it is reported, never raised.
	ErrorTypeExtractionMiss
	// ErrorTypeAnnotationMutation is a single template field that could not be updated.
	ErrorTypeAnnotationMutation
	// ErrorTypeSerialization means the mutated document could not be written.
	ErrorTypeSerialization
	// ErrorTypeFallbackFailure means not even the summary artifact could be produced.
	ErrorTypeFallbackFailure
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

// Error implements the error interface
func (e *FillError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type.String(), e.Message)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %q)", e.Field)
	}
	if e.Context != "" {
		msg += ": " + e.Context
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause to errors.Is and errors.As
func (e *FillError) Unwrap() error {
	return e.Err
}

// Is matches another *FillError by type so that sentinel comparisons work
func (e *FillError) Is(target error) bool {
	t, ok := target.(*FillError)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Message == ""
}

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeConfiguration:
		return "CONFIGURATION"
	case ErrorTypeExtractionMiss:
		return "EXTRACTION_MISS"
	case ErrorTypeAnnotationMutation:
		return "ANNOTATION_MUTATION"
	case ErrorTypeSerialization:
		return "SERIALIZATION"
	case ErrorTypeFallbackFailure:
		return "FALLBACK_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// GetSeverity returns the severity level for a given error type
func (et ErrorType) GetSeverity() ErrorSeverity {
	switch et {
	case ErrorTypeExtractionMiss:
		return SeverityInfo
	case ErrorTypeAnnotationMutation:
		return SeverityWarning
	case ErrorTypeSerialization:
		return SeverityError
	case ErrorTypeConfiguration, ErrorTypeFallbackFailure:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// IsRecoverable determines if an error type lets the pipeline continue
func (et ErrorType) IsRecoverable() bool {
	switch et {
	case ErrorTypeExtractionMiss, ErrorTypeAnnotationMutation:
		return true
	case ErrorTypeSerialization:
		return true // degrades to the summary artifact
	default:
		return false
	}
}

// Sentinels usable with errors.Is.
var (
	ErrConfiguration      = &FillError{Type: ErrorTypeConfiguration}
	ErrAnnotationMutation = &FillError{Type: ErrorTypeAnnotationMutation}
	ErrSerialization      = &FillError{Type: ErrorTypeSerialization}
	ErrFallbackFailure    = &FillError{Type: ErrorTypeFallbackFailure}
)

// NewFillError creates a new FillError
func NewFillError(errorType ErrorType, message string) *FillError {
	return &FillError{
		Type:        errorType,
		Message:     message,
		Recoverable: errorType.IsRecoverable(),
		Timestamp:   time.Now(),
	}
}

// NewFillErrorWithContext creates a new FillError with additional context
func NewFillErrorWithContext(errorType ErrorType, message, context string) *FillError {
	e := NewFillError(errorType, message)
	e.Context = context
	return e
}

// WrapError wraps a standard error as a FillError
func WrapError(errorType ErrorType, message string, err error) *FillError {
	e := NewFillError(errorType, message)
	e.Err = err
	return e
}

// Configuration is shorthand for wrapping a fatal configuration problem.
func Configuration(message string, err error) *FillError {
	return WrapError(ErrorTypeConfiguration, message, err)
}

// WithField records the form or rule field involved
func (e *FillError) WithField(field string) *FillError {
	e.Field = field
	return e
}

// WithFile adds file path information to an existing FillError
func (e *FillError) WithFile(filePath string) *FillError {
	e.FilePath = filePath
	return e
}

// GetSeverity returns the severity of this specific error
func (e *FillError) GetSeverity() ErrorSeverity {
	return e.Type.GetSeverity()
}

// IsFatal returns true if the pipeline must stop
func (e *FillError) IsFatal() bool {
	return e.GetSeverity() == SeverityFatal
}

// ErrorCollection gathers recovered errors for a single document run
type ErrorCollection struct {
	Errors   []*FillError `json:"errors"`
	Warnings []*FillError `json:"warnings"`
	FilePath string       `json:"file_path,omitempty"`
}

// NewErrorCollection creates a new error collection
func NewErrorCollection(filePath string) *ErrorCollection {
	return &ErrorCollection{
		Errors:   make([]*FillError, 0),
		Warnings: make([]*FillError, 0),
		FilePath: filePath,
	}
}

// Add adds an error to the appropriate collection based on severity
func (ec *ErrorCollection) Add(err *FillError) {
	if err.FilePath == "" && ec.FilePath != "" {
		err.FilePath = ec.FilePath
	}

	severity := err.GetSeverity()
	if severity == SeverityWarning || severity == SeverityInfo {
		ec.Warnings = append(ec.Warnings, err)
	} else {
		ec.Errors = append(ec.Errors, err)
	}
}

// HasFatalErrors returns true if any fatal errors exist
func (ec *ErrorCollection) HasFatalErrors() bool {
	for _, err := range ec.Errors {
		if err.IsFatal() {
			return true
		}
	}
	return false
}

// Count returns the total number of errors and warnings
func (ec *ErrorCollection) Count() (errors, warnings int) {
	return len(ec.Errors), len(ec.Warnings)
}

// Summary returns a text summary of all errors and warnings
func (ec *ErrorCollection) Summary() string {
	errorCount, warningCount := ec.Count()
	if errorCount == 0 && warningCount == 0 {
		return "No errors or warnings"
	}

	summary := fmt.Sprintf("Found %d error(s) and %d warning(s)", errorCount, warningCount)

	if ec.HasFatalErrors() {
		summary += " (including fatal errors)"
	}

	return summary
}
