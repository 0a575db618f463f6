// Package errors provides the structured error system for monitoringcenter: error codes,
// categories and contextual metadata.
package errors

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code.
type ErrorCode string

// Error code constants grouped by category.
const (
	// Argument errors
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// Naming errors
	ErrCodeDuplicateName ErrorCode = "DUPLICATE_NAME"
	ErrCodeKindMismatch  ErrorCode = "KIND_MISMATCH"

	// Operation errors
	ErrCodeUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"
	ErrCodeOperationTimeout     ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeOperationCanceled    ErrorCode = "OPERATION_CANCELED"
	ErrCodeRetryExhausted       ErrorCode = "RETRY_EXHAUSTED"

	// Lookup errors
	ErrCodeLookupNotFound ErrorCode = "LOOKUP_NOT_FOUND"
	ErrCodeNoHealthChecks ErrorCode = "NO_HEALTH_CHECKS"

	// State errors
	ErrCodeNotConfigured     ErrorCode = "NOT_CONFIGURED"
	ErrCodeAlreadyConfigured ErrorCode = "ALREADY_CONFIGURED"
	ErrCodeAlreadyShutDown   ErrorCode = "ALREADY_SHUT_DOWN"

	// Resource errors
	ErrCodeTaskRejected  ErrorCode = "TASK_REJECTED"
	ErrCodePoolClosed    ErrorCode = "POOL_CLOSED"
	ErrCodePoolExhausted ErrorCode = "POOL_EXHAUSTED"
	ErrCodeQueueFull     ErrorCode = "QUEUE_FULL"
	ErrCodeQueueClosed   ErrorCode = "QUEUE_CLOSED"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"

	// Connection errors
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	ErrCodeNetworkError     ErrorCode = "NETWORK_ERROR"
	ErrCodeCircuitOpen      ErrorCode = "CIRCUIT_OPEN"

	// Auth errors
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryArgument      ErrorCategory = "argument"
	CategoryNaming        ErrorCategory = "naming"
	CategoryOperation     ErrorCategory = "operation"
	CategoryLookup        ErrorCategory = "lookup"
	CategoryState         ErrorCategory = "state"
	CategoryResource      ErrorCategory = "resource"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryConnection    ErrorCategory = "connection"
	CategoryAuth          ErrorCategory = "auth"
	CategoryInternal      ErrorCategory = "internal"
)

// Sentinel errors for errors.Is matching. Matching compares codes only.
var (
	ErrInvalidArgument      = &MonitoringError{Code: ErrCodeInvalidArgument}
	ErrDuplicateName        = &MonitoringError{Code: ErrCodeDuplicateName}
	ErrKindMismatch         = &MonitoringError{Code: ErrCodeKindMismatch}
	ErrUnsupportedOperation = &MonitoringError{Code: ErrCodeUnsupportedOperation}
	ErrLookupNotFound       = &MonitoringError{Code: ErrCodeLookupNotFound}
	ErrNoHealthChecks       = &MonitoringError{Code: ErrCodeNoHealthChecks}
	ErrNotConfigured        = &MonitoringError{Code: ErrCodeNotConfigured}
	ErrAlreadyConfigured    = &MonitoringError{Code: ErrCodeAlreadyConfigured}
	ErrAlreadyShutDown      = &MonitoringError{Code: ErrCodeAlreadyShutDown}
	ErrRejected             = &MonitoringError{Code: ErrCodeTaskRejected}
	ErrPoolClosed           = &MonitoringError{Code: ErrCodePoolClosed}
	ErrPoolExhausted        = &MonitoringError{Code: ErrCodePoolExhausted}
	ErrQueueFull            = &MonitoringError{Code: ErrCodeQueueFull}
	ErrQueueClosed          = &MonitoringError{Code: ErrCodeQueueClosed}
	ErrCircuitOpen          = &MonitoringError{Code: ErrCodeCircuitOpen}
)

// MonitoringError represents a structured error with context and metadata.
type MonitoringError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	Retryable  bool `json:"retryable"`
	HTTPStatus int  `json:"http_status,omitempty"`
}

// Error implements the error interface.
func (e *MonitoringError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(string(e.Code), "_", " "))
	}
	if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, msg)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause error.
func (e *MonitoringError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a MonitoringError with the same code.
func (e *MonitoringError) Is(target error) bool {
	if t, ok := target.(*MonitoringError); ok {
		return e.Code == t.Code
	}
	return false
}

// String returns a detailed representation for logging.
func (e *MonitoringError) String() string {
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
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("MonitoringError{%s}", strings.Join(parts, ", "))
}

// NewError creates a new error with default values derived from the code.
func NewError(code ErrorCode, message string) *MonitoringError {
	return &MonitoringError{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Details:    make(map[string]interface{}),
		Context:    make(map[string]string),
		Retryable:  IsRetryableByDefault(code),
		HTTPStatus: GetDefaultHTTPStatus(code),
	}
}

// Newf creates a new error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *MonitoringError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// InvalidArgument reports a blank or nil argument.
func InvalidArgument(format string, args ...interface{}) *MonitoringError {
	return Newf(ErrCodeInvalidArgument, format, args...)
}

// DuplicateName reports a registration under an already bound name.
func DuplicateName(name string) *MonitoringError {
	return Newf(ErrCodeDuplicateName, "a metric named %q already exists", name).
		WithDetail("name", name)
}

// UnsupportedOperation reports a mutation through a read-only view.
func UnsupportedOperation(operation string) *MonitoringError {
	return Newf(ErrCodeUnsupportedOperation, "%s is not supported on a read-only metric", operation).
		WithOperation(operation)
}

// LookupNotFound reports a lookup of an unknown name.
func LookupNotFound(what, name string) *MonitoringError {
	return Newf(ErrCodeLookupNotFound, "%s %q not found", what, name).
		WithDetail("name", name)
}

// IsCode reports whether err (or anything it wraps) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		if me, ok := err.(*MonitoringError); ok && me.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidArgument:
		return CategoryArgument
	case ErrCodeDuplicateName, ErrCodeKindMismatch:
		return CategoryNaming
	case ErrCodeUnsupportedOperation, ErrCodeOperationTimeout, ErrCodeOperationCanceled,
		ErrCodeRetryExhausted:
		return CategoryOperation
	case ErrCodeLookupNotFound, ErrCodeNoHealthChecks:
		return CategoryLookup
	case ErrCodeNotConfigured, ErrCodeAlreadyConfigured, ErrCodeAlreadyShutDown:
		return CategoryState
	case ErrCodeTaskRejected, ErrCodePoolClosed, ErrCodePoolExhausted, ErrCodeQueueFull,
		ErrCodeQueueClosed:
		return CategoryResource
	case ErrCodeInvalidConfig, ErrCodeConfigLoad:
		return CategoryConfiguration
	case ErrCodeConnectionFailed, ErrCodeNetworkError, ErrCodeCircuitOpen:
		return CategoryConnection
	case ErrCodeAuthenticationFailed:
		return CategoryAuth
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
// Only the reporting path retries; registration and instrumentation never do.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeConnectionFailed, ErrCodeNetworkError, ErrCodeOperationTimeout:
		return true
	}
	return false
}

// GetDefaultHTTPStatus returns the default HTTP status for an error code.
func GetDefaultHTTPStatus(code ErrorCode) int {
	statusMap := map[ErrorCode]int{
		ErrCodeInvalidArgument:      400,
		ErrCodeInvalidConfig:        400,
		ErrCodeAuthenticationFailed: 401,
		ErrCodeLookupNotFound:       404,
		ErrCodeUnsupportedOperation: 405,
		ErrCodeDuplicateName:        409,
		ErrCodeKindMismatch:         409,
		ErrCodeAlreadyConfigured:    409,
		ErrCodeTaskRejected:         429,
		ErrCodeQueueFull:            429,
		ErrCodePoolExhausted:        429,
		ErrCodeNoHealthChecks:       501,
		ErrCodeNotConfigured:        503,
		ErrCodeAlreadyShutDown:      503,
		ErrCodeCircuitOpen:          503,
		ErrCodeOperationTimeout:     504,
	}

	if status, ok := statusMap[code]; ok {
		return status
	}
	return 500
}

// WithContext adds contextual information to an error
func (e *MonitoringError) WithContext(key, value string) *MonitoringError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *MonitoringError) WithDetail(key string, value interface{}) *MonitoringError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *MonitoringError) WithComponent(component string) *MonitoringError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *MonitoringError) WithOperation(operation string) *MonitoringError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *MonitoringError) WithCause(cause error) *MonitoringError {
	e.Cause = cause
	return e
}
