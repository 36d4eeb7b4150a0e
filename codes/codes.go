// Package codes defines the numeric status codes shared by every layer of the
// uvbus stack. Transports, the message bus, the async primitives and the RPC
// facade all report failures through these codes so that a value observed at
// the facade is identical to the value that originated deep in a transport.
package codes

import (
	"errors"
	"fmt"
)

// Core status codes. The zero value is success; every failure is negative.
// These values travel on the wire inside error envelopes and must never be
// renumbered.
const (
	OK                int32 = 0
	ErrGeneric        int32 = -1
	ErrInvalidParam   int32 = -2
	ErrNoMemory       int32 = -3
	ErrNotConnected   int32 = -4
	ErrTimeout        int32 = -5
	ErrIO             int32 = -6
	ErrAlreadyExists  int32 = -7
	ErrNotFound       int32 = -8
	ErrNotImplemented int32 = -9
)

// Extended status codes used by the async primitives and the facade.
const (
	ErrInvalidState  int32 = -10 // settle attempted on a non-pending promise
	ErrCancelled     int32 = -11
	ErrRateLimited   int32 = -12 // pending-request cap reached on a client
	ErrTransport     int32 = -13
	ErrCallbackLimit int32 = -14
	ErrPoolExhausted int32 = -15
)

// Scheduler status codes. Each concern owns a hundred-wide range so a bare
// number in a log line still identifies the failing subsystem.
const (
	ErrContextInvalid        int32 = -100
	ErrContextNoLoop         int32 = -101
	ErrSchedulerInvalid      int32 = -200
	ErrSchedulerInitFailed   int32 = -201
	ErrConcurrencyInvalid    int32 = -202
	ErrTaskInvalid           int32 = -300
	ErrTaskSubmitFailed      int32 = -301
	ErrTaskCancelled         int32 = -302
	ErrWaitTimeout           int32 = -400
	ErrWaitInvalid           int32 = -401
	ErrSchedulerNoMemory     int32 = -500
	ErrSchedulerInvalidParam int32 = -600
)

// Error carries a status code together with a human-readable message. It is
// the error type every uvbus package returns for protocol-level failures;
// callers that only care about the class of failure can switch on Code.
type Error struct {
	Code    int32
	Message string
}

// New builds an Error for the given code. An empty message falls back to the
// canonical Strerror text.
func New(code int32, message string) *Error {
	if message == "" {
		message = Strerror(code)
	}
	return &Error{Code: code, Message: message}
}

// Errorf builds an Error with a formatted message.
func Errorf(code int32, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return Strerror(OK)
	}
	if e.Message != "" {
		return e.Message
	}
	return Strerror(e.Code)
}

// CodeOf extracts the status code from an error. A nil error is OK; a
// *codes.Error anywhere in the chain yields its own code; anything else
// maps to ErrGeneric.
func CodeOf(err error) int32 {
	if err == nil {
		return OK
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrGeneric
}

// Strerror returns the canonical description for a status code.
func Strerror(code int32) string {
	switch code {
	case OK:
		return "Success"
	case ErrGeneric:
		return "General error"
	case ErrInvalidParam:
		return "Invalid parameter provided"
	case ErrNoMemory:
		return "Memory allocation failed"
	case ErrNotConnected:
		return "Not connected"
	case ErrTimeout:
		return "Operation timed out"
	case ErrIO:
		return "I/O error occurred"
	case ErrAlreadyExists:
		return "Resource already exists"
	case ErrNotFound:
		return "Resource not found"
	case ErrNotImplemented:
		return "Feature not implemented"
	case ErrInvalidState:
		return "Invalid state for operation"
	case ErrCancelled:
		return "Operation was cancelled"
	case ErrRateLimited:
		return "Rate limit exceeded"
	case ErrTransport:
		return "Transport layer error"
	case ErrCallbackLimit:
		return "Callback limit exceeded (pending buffer full)"
	case ErrPoolExhausted:
		return "Connection pool exhausted"
	case ErrContextInvalid:
		return "Invalid async context"
	case ErrContextNoLoop:
		return "Async context has no event loop"
	case ErrSchedulerInvalid:
		return "Invalid scheduler"
	case ErrSchedulerInitFailed:
		return "Failed to initialize scheduler"
	case ErrConcurrencyInvalid:
		return "Invalid concurrency limit"
	case ErrTaskInvalid:
		return "Invalid task"
	case ErrTaskSubmitFailed:
		return "Failed to submit task"
	case ErrTaskCancelled:
		return "Task was cancelled"
	case ErrWaitTimeout:
		return "Wait operation timed out"
	case ErrWaitInvalid:
		return "Invalid wait operation"
	case ErrSchedulerNoMemory:
		return "Scheduler allocation failed"
	case ErrSchedulerInvalidParam:
		return "Invalid scheduler parameter"
	default:
		return "Unknown error"
	}
}
