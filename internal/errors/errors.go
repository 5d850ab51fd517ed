// Package errors defines the error taxonomy surfaced to viewer clients.
//
// Every failure a client can observe maps to one ErrorCode. All of them are
// locally recoverable: none should terminate the server process.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode identifies the category of a ViewerError.
type ErrorCode string

const (
	// Surface errors
	ErrorSurfaceInit ErrorCode = "SURFACE_INIT_FAILED"
	ErrorImageLoad   ErrorCode = "IMAGE_LOAD_FAILED"

	// Inference service errors
	ErrorAnalysisRequest ErrorCode = "ANALYSIS_REQUEST_FAILED"
	ErrorAnalysisResult  ErrorCode = "ANALYSIS_RESULT_FAILED"

	// Viewer state errors
	ErrorStaleResult  ErrorCode = "STALE_RESULT"
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorNoImage      ErrorCode = "NO_IMAGE"
)

// ViewerError is a structured, user-facing error.
type ViewerError struct {
	Code      ErrorCode
	Message   string
	Locator   string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ViewerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ViewerError) Unwrap() error {
	return e.Cause
}

// ToMap converts the error to a map suitable for a JSON-RPC error payload.
func (e *ViewerError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}
	if e.Locator != "" {
		result["locator"] = e.Locator
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}

// CodeOf returns the ErrorCode of the first ViewerError in err's chain,
// or the empty code if there is none.
func CodeOf(err error) ErrorCode {
	var ve *ViewerError
	if stderrors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// As is a re-export of the standard library's errors.As so callers
// importing this package need not alias both.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Factory functions

func NewSurfaceInitError(width, height int) *ViewerError {
	return &ViewerError{
		Code:      ErrorSurfaceInit,
		Message:   fmt.Sprintf("host surface unavailable (%dx%d)", width, height),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"host_width":  width,
			"host_height": height,
		},
	}
}

func NewImageLoadError(locator string, cause error) *ViewerError {
	return &ViewerError{
		Code:      ErrorImageLoad,
		Message:   "Unable to load image",
		Locator:   locator,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewAnalysisRequestError(endpoint string, cause error) *ViewerError {
	return &ViewerError{
		Code:      ErrorAnalysisRequest,
		Message:   "Analysis request failed",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"endpoint": endpoint,
		},
		Cause: cause,
	}
}

// NewAnalysisResultError wraps a service-reported failure. The message is
// kept verbatim so it can be shown to the user as-is.
func NewAnalysisResultError(message string) *ViewerError {
	if message == "" {
		message = "Analysis failed"
	}
	return &ViewerError{
		Code:      ErrorAnalysisResult,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func NewStaleResultError(kind string, generation, current uint64) *ViewerError {
	return &ViewerError{
		Code:      ErrorStaleResult,
		Message:   fmt.Sprintf("%s result superseded", kind),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"generation": generation,
			"current":    current,
		},
	}
}

func NewInvalidInputError(format string, args ...interface{}) *ViewerError {
	return &ViewerError{
		Code:      ErrorInvalidInput,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

func NewNoImageError() *ViewerError {
	return &ViewerError{
		Code:      ErrorNoImage,
		Message:   "No image is loaded",
		Timestamp: time.Now(),
	}
}
