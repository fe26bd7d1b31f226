package ipccore

import (
	"errors"
	"fmt"
)

// ErrorCode is the high-level error taxonomy every operation returns
// through, semantic and language-independent per spec §7.
type ErrorCode string

const (
	ErrCodeInvalidHandle    ErrorCode = "invalid handle"
	ErrCodeInvalidArg       ErrorCode = "invalid argument"
	ErrCodeWouldBlock       ErrorCode = "would block"
	ErrCodeTimeout          ErrorCode = "timeout"
	ErrCodeBusy             ErrorCode = "busy"
	ErrCodeNotOwner         ErrorCode = "not owner"
	ErrCodeAlreadyExists    ErrorCode = "already exists"
	ErrCodeNotFound         ErrorCode = "not found"
	ErrCodeNoResources      ErrorCode = "no resources"
	ErrCodeDestroyed        ErrorCode = "destroyed"
	ErrCodePermissionDenied ErrorCode = "permission denied"
	ErrCodeOverflow         ErrorCode = "overflow"
)

// Error is the structured error every public operation returns on
// failure. It carries enough context to log and to match against with
// errors.Is/errors.As without parsing a message string.
type Error struct {
	Op     string    // Operation that failed (e.g., "Mutex.Lock")
	Handle Handle    // Object handle involved, zero if not applicable
	TaskID TaskID    // Task involved, 0 if not applicable
	Code   ErrorCode // High-level error category
	Msg    string    // Human-readable detail
	Inner  error     // Wrapped error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	var ctx []string
	if e.Op != "" {
		ctx = append(ctx, fmt.Sprintf("op=%s", e.Op))
	}
	if !e.Handle.IsZero() {
		ctx = append(ctx, fmt.Sprintf("handle=%s", e.Handle))
	}
	if e.TaskID != 0 {
		ctx = append(ctx, fmt.Sprintf("task=%d", e.TaskID))
	}

	if len(ctx) > 0 {
		return fmt.Sprintf("ipccore: %s (%s)", msg, ctx[0])
	}
	return fmt.Sprintf("ipccore: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is reports whether target is an *Error with the same Code, which is
// how callers are expected to compare: errors.Is(err, &ipccore.Error{Code: ipccore.ErrCodeBusy}).
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// NewError creates a structured error for the given operation and code.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewHandleError creates a structured error scoped to a specific object handle.
func NewHandleError(op string, handle Handle, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Handle: handle, Code: code, Msg: msg}
}

// NewTaskError creates a structured error scoped to a specific task.
func NewTaskError(op string, task TaskID, code ErrorCode, msg string) *Error {
	return &Error{Op: op, TaskID: task, Code: code, Msg: msg}
}

// WrapError wraps an existing error with operation context, preserving
// the original code and handle when inner is already a structured Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if ie, ok := inner.(*Error); ok {
		return &Error{
			Op:     op,
			Handle: ie.Handle,
			TaskID: ie.TaskID,
			Code:   ie.Code,
			Msg:    ie.Msg,
			Inner:  ie.Inner,
		}
	}

	return &Error{Op: op, Code: ErrCodeInvalidArg, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is (or wraps) a structured Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
