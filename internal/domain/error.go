package domain

import (
	"context"
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeUnavailable      ErrorCode = "UNAVAILABLE"
	CodeFailedPrecond    ErrorCode = "FAILED_PRECONDITION"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeInternal         ErrorCode = "INTERNAL"
	CodeCanceled         ErrorCode = "CANCELED"
	CodeDeadlineExceeded ErrorCode = "DEADLINE_EXCEEDED"
)

var (
	// ErrToolNotFound indicates the (server, name) key is not registered.
	ErrToolNotFound = errors.New("tool not found")
	// ErrUnknownServer indicates no connector exists for the server id.
	ErrUnknownServer = errors.New("unknown server")
	// ErrConnectorNotReady indicates the connector is outside READY/DEGRADED.
	ErrConnectorNotReady = errors.New("connector not ready")
	// ErrConnectionClosed indicates the underlying session was closed.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrInvalidArguments indicates arguments failed schema validation.
	ErrInvalidArguments = errors.New("invalid arguments")
	// ErrSafetyRejected indicates a remediation call failed its pre-flight checks.
	ErrSafetyRejected = errors.New("safety validation rejected")
)

// Error is the structured error propagated to the orchestration boundary.
// Intermediate layers wrap; the boundary logs once.
type Error struct {
	Code      ErrorCode
	Op        string
	Message   string
	Cause     error
	Retryable bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

// Transient marks an error as retryable by the retry executor.
func Transient(code ErrorCode, op string, cause error) *Error {
	err := E(code, op, "", cause)
	err.Retryable = true
	return err
}

// CodeFrom classifies an error into the code taxonomy.
func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	switch {
	case errors.Is(err, ErrToolNotFound), errors.Is(err, ErrUnknownServer):
		return CodeNotFound, true
	case errors.Is(err, ErrInvalidArguments):
		return CodeInvalidArgument, true
	case errors.Is(err, ErrConnectorNotReady), errors.Is(err, ErrConnectionClosed):
		return CodeUnavailable, true
	case errors.Is(err, ErrSafetyRejected):
		return CodeFailedPrecond, true
	case errors.Is(err, context.DeadlineExceeded):
		return CodeDeadlineExceeded, true
	case errors.Is(err, context.Canceled):
		return CodeCanceled, true
	default:
		return "", false
	}
}

// IsRetryable reports whether the retry executor may attempt the
// operation again. Unknown tool names, validation failures, and safety
// rejections are permanent-per-call and never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Retryable
	}
	switch {
	case errors.Is(err, ErrToolNotFound),
		errors.Is(err, ErrUnknownServer),
		errors.Is(err, ErrInvalidArguments),
		errors.Is(err, ErrSafetyRejected),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrConnectionClosed),
		errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		// Unclassified transport failures are assumed transient.
		return true
	}
}
