// Package serrors provides the error taxonomy used across the session and
// shared-state engine: admission, locking, oplock, authentication, and
// resource errors are all values of ErrorCode wrapped in *CoreError rather
// than ad-hoc error strings, so protocol layers can map them to wire status
// codes without string matching.
package serrors

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the family of a CoreError.
type ErrorCode int

const (
	// Admission errors (file-state cache)
	ErrFileExists ErrorCode = iota + 1
	ErrSharingExclusive
	ErrSharingMismatch
	ErrSharingExclusiveRequested
	ErrSharingAnonymousImpersonation
	ErrSharingDeletePending
	ErrAccessDenied

	// Lock errors
	ErrLockConflict
	ErrNotLocked

	// Oplock errors
	ErrExistingOpLock
	ErrOplockBreakTimeout
	ErrDeferFailed

	// Authentication errors
	ErrLogonFailure
	ErrNoAuthorityAvailable
	ErrAuthorityTimeout

	// Resource errors
	ErrNoPooledMemory
	ErrRequestedSizeTooLarge
	ErrSessionLimit

	// Config/init errors
	ErrInvalidConfiguration

	// Cache/lookup errors needed by operations such as rename onto an
	// occupied key or lookups of entries that were never created.
	ErrNotFound
	ErrAlreadyExists
)

// String returns a human-readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrFileExists:
		return "FileExists"
	case ErrSharingExclusive:
		return "Sharing, exclusive"
	case ErrSharingMismatch:
		return "Sharing, mismatch"
	case ErrSharingExclusiveRequested:
		return "Sharing, exclusive requested"
	case ErrSharingAnonymousImpersonation:
		return "Sharing, anonymous impersonation"
	case ErrSharingDeletePending:
		return "Sharing, delete pending"
	case ErrAccessDenied:
		return "AccessDenied"
	case ErrLockConflict:
		return "LockConflict"
	case ErrNotLocked:
		return "NotLocked"
	case ErrExistingOpLock:
		return "ExistingOpLock"
	case ErrOplockBreakTimeout:
		return "OplockBreakTimeout"
	case ErrDeferFailed:
		return "DeferFailed"
	case ErrLogonFailure:
		return "LogonFailure"
	case ErrNoAuthorityAvailable:
		return "NoAuthorityAvailable"
	case ErrAuthorityTimeout:
		return "AuthorityTimeout"
	case ErrNoPooledMemory:
		return "NoPooledMemory"
	case ErrRequestedSizeTooLarge:
		return "RequestedSizeTooLarge"
	case ErrSessionLimit:
		return "SessionLimit"
	case ErrInvalidConfiguration:
		return "InvalidConfiguration"
	case ErrNotFound:
		return "NotFound"
	case ErrAlreadyExists:
		return "AlreadyExists"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// CoreError is the concrete error type this module uses for its documented
// failure modes; the NTLM and SPNEGO codecs and the TCP listener return
// their own plain errors instead. Path and Reason are optional context;
// callers should switch on Code rather than parsing Error().
type CoreError struct {
	Code   ErrorCode
	Reason string
	Path   string
}

func (e *CoreError) Error() string {
	switch {
	case e.Path != "" && e.Reason != "":
		return fmt.Sprintf("%s: %s (path: %s)", e.Code, e.Reason, e.Path)
	case e.Path != "":
		return fmt.Sprintf("%s (path: %s)", e.Code, e.Path)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	default:
		return e.Code.String()
	}
}

// Is allows errors.Is(err, serrors.New(code, "")) to match on code alone.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New constructs a CoreError with the given code and reason.
func New(code ErrorCode, reason string) *CoreError {
	return &CoreError{Code: code, Reason: reason}
}

// NewWithPath constructs a CoreError with code, reason, and a path.
func NewWithPath(code ErrorCode, reason, path string) *CoreError {
	return &CoreError{Code: code, Reason: reason, Path: path}
}

// Code extracts the ErrorCode from err if it is (or wraps) a *CoreError.
func Code(err error) (ErrorCode, bool) {
	var ce *CoreError
	if !errors.As(err, &ce) {
		return 0, false
	}
	return ce.Code, true
}
