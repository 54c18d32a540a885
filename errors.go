package binder

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/ngrantham/go-binder/internal/loop"
)

// ErrorCode classifies a Driver Engine failure at the level callers
// reason about, independent of the underlying status_t value or errno.
type ErrorCode string

const (
	ErrCodeDeadObject      ErrorCode = "dead object"
	ErrCodeFailed          ErrorCode = "failed"
	ErrCodeBadMessage      ErrorCode = "bad message"
	ErrCodeDriverFailure   ErrorCode = "driver failure"
	ErrCodeVersionMismatch ErrorCode = "kernel version mismatch"
)

// Error is a structured Driver Engine error: the operation that failed,
// its classified code, the transaction status or kernel errno behind it
// (whichever applies), and the wrapped cause.
type Error struct {
	Op     string
	Code   ErrorCode
	Status int32         // set when Code came from a transaction's terminal status
	Errno  syscall.Errno // set when Code came from a driver-level syscall error
	Inner  error
}

func (e *Error) Error() string {
	switch {
	case e.Errno != 0:
		return fmt.Sprintf("binder: %s: %s (errno=%d)", e.Op, e.Code, e.Errno)
	case e.Status != 0:
		return fmt.Sprintf("binder: %s: %s (status=%d)", e.Op, e.Code, e.Status)
	default:
		return fmt.Sprintf("binder: %s: %s", e.Op, e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// WrapError wraps inner with a Driver Engine error for op, classifying it
// by errno when inner is (or wraps) a syscall.Errno, or returns nil if
// inner is nil.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if be, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: be.Code, Status: be.Status, Errno: be.Errno, Inner: be.Inner}
	}
	var errno syscall.Errno
	if errors.As(inner, &errno) {
		return &Error{Op: op, Code: ErrCodeDriverFailure, Errno: errno, Inner: inner}
	}
	return &Error{Op: op, Code: ErrCodeDriverFailure, Inner: inner}
}

// statusToCode classifies a transaction's terminal status per the Error
// Handling Design table: dead peer, a driver-reported failure, a target
// that refused the transaction, or anything else this library doesn't
// otherwise name.
func statusToCode(status int32) ErrorCode {
	switch status {
	case loop.StatusDeadObject:
		return ErrCodeDeadObject
	case loop.StatusFailed:
		return ErrCodeFailed
	case loop.StatusBadMessage:
		return ErrCodeBadMessage
	default:
		return ErrCodeDriverFailure
	}
}

// StatusError converts a non-OK transaction status into an *Error for op,
// or returns nil if status is loop.StatusOK.
func StatusError(op string, status int32) error {
	if status == loop.StatusOK {
		return nil
	}
	return &Error{Op: op, Code: statusToCode(status), Status: status}
}

// IsCode reports whether err is (or wraps) a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsDeadObject reports whether err is a dead-object transaction failure.
func IsDeadObject(err error) bool {
	return IsCode(err, ErrCodeDeadObject)
}
