package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the library.
type ErrorCode string

// Configuration errors: reported synchronously, the caller never receives
// a Work handle.
const (
	ErrInvalidOptions    ErrorCode = "INVALID_OPTIONS"
	ErrInvalidRank       ErrorCode = "INVALID_RANK"
	ErrBackendNotFound   ErrorCode = "BACKEND_NOT_FOUND"
	ErrUnsupportedOp     ErrorCode = "UNSUPPORTED_OPERATION"
	ErrUnknownDeviceType ErrorCode = "UNKNOWN_DEVICE_TYPE"
	ErrUnsupportedDevice ErrorCode = "UNSUPPORTED_DEVICE"
)

// Consistency errors: invalid registry or lifecycle mutations.
const (
	ErrBoundDeviceMismatch ErrorCode = "BOUND_DEVICE_MISMATCH"
	ErrBoundDeviceNoIndex  ErrorCode = "BOUND_DEVICE_NO_INDEX"
	ErrCoalesceNested      ErrorCode = "COALESCE_NESTED"
	ErrCoalesceInactive    ErrorCode = "COALESCE_INACTIVE"
)

// Operational errors: captured into a Work handle, never thrown
// synchronously once the call is forwarded to a backend.
const (
	ErrOpFailed      ErrorCode = "OPERATION_FAILED"
	ErrTimeout       ErrorCode = "TIMEOUT"
	ErrCanceled      ErrorCode = "CANCELED"
	ErrStoreFailed   ErrorCode = "STORE_FAILED"
	ErrRankMismatch  ErrorCode = "RANK_MISMATCH"
	ErrBackendClosed ErrorCode = "BACKEND_CLOSED"
)

// Error is a structured error carrying a stable code, a human-readable
// message, the backend it originated from (when known) and an optional
// wrapped cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Backend string    `json:"backend,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithBackend annotates the error with the originating backend name.
func (e *Error) WithBackend(name string) *Error {
	e.Backend = name
	return e
}

// NewError creates a structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a structured error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps cause into a structured error.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether err carries the given code anywhere in its
// chain.
func IsErrorCode(err error, code ErrorCode) bool {
	if e, ok := AsError(err); ok {
		return e.Code == code
	}
	return false
}
