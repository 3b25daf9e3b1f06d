// Package rerr defines the orchestrator's stable error kinds (spec §7),
// shared by the retry executor, RPC facade, engine, and recovery
// coordinator. Kept separate from internal/engine to avoid an import
// cycle (the retry executor must classify errors without importing the
// engine that uses it).
package rerr

import (
	"errors"
	"fmt"
)

// Code is a stable error-kind identifier.
type Code string

const (
	CodeTargetDown       Code = "target-down"
	CodeHashMismatch     Code = "hash-mismatch"
	CodeInvalidBlock     Code = "invalid-block"
	CodeSyncInProgress   Code = "sync-in-progress"
	CodeRecoveryTimeout  Code = "recovery-timeout"
	CodeReceiptTimeout   Code = "receipt-timeout"
	CodeInjectFailed     Code = "inject-failed"
	CodeConfigError      Code = "config-error"
)

// Error is a classified orchestrator error carrying a stable code.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap builds a classified error around a cause.
func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Err: cause}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// TargetDown builds a target-down classified error.
func TargetDown(cause error) *Error { return Wrap(CodeTargetDown, "target unreachable", cause) }

// HashMismatch builds a hash-mismatch classified error.
func HashMismatch(msg string) *Error { return New(CodeHashMismatch, msg) }
