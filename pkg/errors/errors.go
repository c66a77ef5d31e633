// Package errors provides a structured error system for routefs with error codes, categories, and context.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for routefs operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration Errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig    ErrorCode = "MISSING_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave       ErrorCode = "CONFIG_SAVE"

	// Routing Errors
	ErrCodePatternInvalid      ErrorCode = "PATTERN_INVALID"
	ErrCodeEncodingUnsupported ErrorCode = "ENCODING_UNSUPPORTED"
	ErrCodeSourceInvalid       ErrorCode = "SOURCE_INVALID"

	// Filesystem Errors
	ErrCodeMountFailed      ErrorCode = "MOUNT_FAILED"
	ErrCodeUnmountFailed    ErrorCode = "UNMOUNT_FAILED"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodePathInvalid      ErrorCode = "PATH_INVALID"
	ErrCodeFileNotFound     ErrorCode = "FILE_NOT_FOUND"
	ErrCodeNotSupported     ErrorCode = "NOT_SUPPORTED"

	// Handle Errors
	ErrCodeInvalidHandle ErrorCode = "INVALID_HANDLE"

	// Handler Errors
	ErrCodeHandlerFailure ErrorCode = "HANDLER_FAILURE"

	// State Management Errors
	ErrCodeAlreadyStarted ErrorCode = "ALREADY_STARTED"
	ErrCodeNotInitialized ErrorCode = "NOT_INITIALIZED"

	// Internal System Errors
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrCodePanicRecovered ErrorCode = "PANIC_RECOVERED"
	ErrCodeUnknownError   ErrorCode = "UNKNOWN_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryRouting       ErrorCategory = "routing"
	CategoryFilesystem    ErrorCategory = "filesystem"
	CategoryHandle        ErrorCategory = "handle"
	CategoryHandler       ErrorCategory = "handler"
	CategoryState         ErrorCategory = "state"
	CategoryInternal      ErrorCategory = "internal"
)

// RouteFSError represents a structured error with context and metadata.
type RouteFSError struct {
	// Core error information
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	// Contextual information
	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	// Operational metadata
	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`

	// Error handling hints
	UserFacing bool `json:"user_facing"`

	// Debug information
	Stack string `json:"stack,omitempty"`
}

// Error implements the error interface.
func (e *RouteFSError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, msg)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *RouteFSError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *RouteFSError) Is(target error) bool {
	if routeErr, ok := target.(*RouteFSError); ok {
		return e.Code == routeErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *RouteFSError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}

	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}

	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("RouteFSError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *RouteFSError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new routefs error with default values.
func NewError(code ErrorCode, message string) *RouteFSError {
	return &RouteFSError{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Details:    make(map[string]interface{}),
		Context:    make(map[string]string),
		UserFacing: IsUserFacingByDefault(code),
	}
}

// Newf creates a new routefs error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *RouteFSError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new routefs error carrying cause.
func Wrap(cause error, code ErrorCode, message string) *RouteFSError {
	return NewError(code, message).WithCause(cause)
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeMissingConfig, ErrCodeConfigValidation,
		ErrCodeConfigLoad, ErrCodeConfigSave:
		return CategoryConfiguration
	case ErrCodePatternInvalid, ErrCodeEncodingUnsupported, ErrCodeSourceInvalid:
		return CategoryRouting
	case ErrCodeMountFailed, ErrCodeUnmountFailed, ErrCodePermissionDenied,
		ErrCodePathInvalid, ErrCodeFileNotFound, ErrCodeNotSupported:
		return CategoryFilesystem
	case ErrCodeInvalidHandle:
		return CategoryHandle
	case ErrCodeHandlerFailure:
		return CategoryHandler
	case ErrCodeAlreadyStarted, ErrCodeNotInitialized:
		return CategoryState
	default:
		return CategoryInternal
	}
}

// IsUserFacingByDefault determines if an error should be shown to users.
func IsUserFacingByDefault(code ErrorCode) bool {
	userFacingCodes := map[ErrorCode]bool{
		ErrCodeInvalidConfig:       true,
		ErrCodeMissingConfig:       true,
		ErrCodeConfigValidation:    true,
		ErrCodePatternInvalid:      true,
		ErrCodeEncodingUnsupported: true,
		ErrCodeSourceInvalid:       true,
		ErrCodePermissionDenied:    true,
		ErrCodePathInvalid:         true,
		ErrCodeFileNotFound:        true,
		ErrCodeMountFailed:         true,
	}
	return userFacingCodes[code]
}

// CodeOf returns the code of the first RouteFSError in err's chain, or
// ErrCodeUnknownError when there is none.
func CodeOf(err error) ErrorCode {
	var routeErr *RouteFSError
	if stderrors.As(err, &routeErr) {
		return routeErr.Code
	}
	return ErrCodeUnknownError
}

// HasCode reports whether err carries code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, &RouteFSError{Code: code})
}

// AsRouteFSError returns the first RouteFSError in err's chain.
func AsRouteFSError(err error) (*RouteFSError, bool) {
	var routeErr *RouteFSError
	ok := stderrors.As(err, &routeErr)
	return routeErr, ok
}

// CaptureStack captures the current stack trace for debugging.
func CaptureStack(skip int) string {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:]) // +2 to skip this function and the caller
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "errors.go") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

// WithContext adds contextual information to an error
func (e *RouteFSError) WithContext(key, value string) *RouteFSError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *RouteFSError) WithDetail(key string, value interface{}) *RouteFSError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *RouteFSError) WithComponent(component string) *RouteFSError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *RouteFSError) WithOperation(operation string) *RouteFSError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *RouteFSError) WithCause(cause error) *RouteFSError {
	e.Cause = cause
	return e
}

// WithStack captures the current stack trace
func (e *RouteFSError) WithStack() *RouteFSError {
	e.Stack = CaptureStack(2)
	return e
}

// GetRecommendation returns a user-friendly recommendation for fixing the error
func (e *RouteFSError) GetRecommendation() string {
	recommendations := map[ErrorCode]string{
		ErrCodePatternInvalid: "Capture segments must be the last segment of a pattern " +
			"and carry a name, e.g. /files/*rest.",
		ErrCodeEncodingUnsupported: "Use a WHATWG encoding label such as utf-8, utf-16le or shift_jis, " +
			"or omit the encoding for binary passthrough.",
		ErrCodeSourceInvalid: "Sources must be file:///absolute/dir or s3://bucket[/prefix].",
		ErrCodeFileNotFound:  "No registered pattern matches the path. Check the registered routes.",
		ErrCodePermissionDenied: "Append-mode opens are not supported. " +
			"Open the file for writing and seek explicitly instead.",
		ErrCodeNotSupported: "The matched pattern has no handler for this operation. " +
			"Register the corresponding read, write or link-target callback.",
		ErrCodeInvalidConfig: "Configuration validation failed. " +
			"Check your configuration file syntax and required parameters.",
		ErrCodeMountFailed: "Failed to mount filesystem. " +
			"Check mount point permissions and ensure FUSE is installed.",
	}

	if rec, exists := recommendations[e.Code]; exists {
		return rec
	}

	return "Please check the error message for details."
}

// UserFacingMessage returns a simplified message suitable for end users
func (e *RouteFSError) UserFacingMessage() string {
	if !e.UserFacing {
		return "An internal error occurred."
	}

	messages := map[ErrorCode]string{
		ErrCodeFileNotFound:     "File not found",
		ErrCodePermissionDenied: "Permission denied",
		ErrCodeInvalidConfig:    "Invalid configuration",
		ErrCodeMountFailed:      "Failed to mount filesystem",
		ErrCodePatternInvalid:   "Invalid path pattern",
	}

	if msg, exists := messages[e.Code]; exists {
		return msg
	}

	return e.Message
}

// DetailedDiagnostic returns a comprehensive diagnostic message
func (e *RouteFSError) DetailedDiagnostic() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Error: %s", e.UserFacingMessage()))
	parts = append(parts, fmt.Sprintf("Code: %s", e.Code))
	parts = append(parts, fmt.Sprintf("Category: %s", e.Category))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component: %s", e.Component))
	}

	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation: %s", e.Operation))
	}

	if len(e.Context) > 0 {
		parts = append(parts, "\nContext:")
		for k, v := range e.Context {
			parts = append(parts, fmt.Sprintf("  %s: %s", k, v))
		}
	}

	parts = append(parts, "\nRecommendation:")
	parts = append(parts, "  "+e.GetRecommendation())

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("\nUnderlying cause: %s", e.Cause.Error()))
	}

	return strings.Join(parts, "\n")
}
