// Package errs provides the unified error type used across derivr.
//
// Store drivers translate their SDK errors into *errs.Error with one of the
// transport kinds (not_found, timeout, ...). The pipeline components wrap
// those again with a domain kind describing which step failed
// (fetch_failed, upload_failed, ...), keeping the driver error as the cause.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindNotFound, "failed to get object", sdkErr)
//
//	// In the pipeline, classify the failed step:
//	if errs.IsNotFound(err) {
//	    return nil // already handled
//	}
//	return errs.Wrap(errs.ErrKindFetchFailed, "fetch staging object", err)
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing provider-specific codes.
type ErrKind int

const (
	ErrKindUnknown ErrKind = iota

	// Transport kinds, produced by filestore drivers.
	ErrKindNotFound         // no object, no bucket
	ErrKindConnectionFailed // cannot reach the backend
	ErrKindTimeout          // context deadline / cancellation
	ErrKindInvalidInput     // bad arguments from the caller
	ErrKindPermissionDenied // access denied / auth failure

	// Pipeline kinds, produced by the derivative engine.
	ErrKindMalformedKey // key does not have the expected zone shape
	ErrKindFetchFailed
	ErrKindDecodeFailed
	ErrKindEncodeFailed
	ErrKindUploadFailed
	ErrKindListFailed
	ErrKindDeleteFailed
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindMalformedKey:
		return "malformed_key"
	case ErrKindFetchFailed:
		return "fetch_failed"
	case ErrKindDecodeFailed:
		return "decode_failed"
	case ErrKindEncodeFailed:
		return "encode_failed"
	case ErrKindUploadFailed:
		return "upload_failed"
	case ErrKindListFailed:
		return "list_failed"
	case ErrKindDeleteFailed:
		return "delete_failed"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all derivr subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // underlying error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a formatted message.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a missing object or bucket.
// Only the outermost *Error is consulted, so a not-found cause wrapped
// as fetch_failed no longer counts as not found.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsMalformedKey reports whether err is a key shape violation.
func IsMalformedKey(err error) bool {
	return KindOf(err) == ErrKindMalformedKey
}

// KindOf extracts the ErrKind of the first *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// HasKind reports whether any *Error in the chain carries kind.
func HasKind(err error, kind ErrKind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}
