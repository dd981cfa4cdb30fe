/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenterr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for propagation decisions.
type Kind string

const (
	KindUnknown               Kind = "unknown"
	KindCredentialUnavailable Kind = "credential_unavailable"
	KindConfiguration         Kind = "configuration"
	KindRefNotFound           Kind = "ref_not_found"
	KindPathNotFound          Kind = "path_not_found"
	KindEditConflict          Kind = "edit_conflict"
	KindCommitConflict        Kind = "commit_conflict"
	KindSignatureInvalid      Kind = "signature_invalid"
	KindRateLimited           Kind = "rate_limited"
	KindTimeout               Kind = "timeout"
	KindValidation            Kind = "validation"
)

// Sentinels for use with errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrCredentialUnavailable = &Error{Kind: KindCredentialUnavailable}
	ErrConfiguration         = &Error{Kind: KindConfiguration}
	ErrRefNotFound           = &Error{Kind: KindRefNotFound}
	ErrPathNotFound          = &Error{Kind: KindPathNotFound}
	ErrEditConflict          = &Error{Kind: KindEditConflict}
	ErrCommitConflict        = &Error{Kind: KindCommitConflict}
	ErrSignatureInvalid      = &Error{Kind: KindSignatureInvalid}
	ErrRateLimited           = &Error{Kind: KindRateLimited}
	ErrTimeout               = &Error{Kind: KindTimeout}
	ErrValidation            = &Error{Kind: KindValidation}
)

// Error is a classified error. Op names the operation that failed,
// Index is set for edit conflicts (the failing operation's position).
type Error struct {
	Kind   Kind
	Op     string
	Index  int
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Kind == KindEditConflict {
		msg = fmt.Sprintf("%s at edit %d", msg, e.Index)
	}
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New creates a classified error wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a classified error with a formatted cause.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// EditConflict reports that the edit at index could not be applied.
func EditConflict(index int, reason string) *Error {
	return &Error{Kind: KindEditConflict, Op: "apply_edits", Index: index, Reason: reason}
}

// Validation reports a malformed request or tool argument.
func Validation(format string, args ...any) *Error {
	return Newf(KindValidation, "", format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain.
// Context deadline errors map to KindTimeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsFatal reports whether err must abort the whole session rather than
// surface as a failed tool result.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindCredentialUnavailable, KindConfiguration:
		return true
	}
	return false
}

// IsRetryable reports whether the caller may reasonably retry with the same input.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTimeout:
		return true
	}
	return false
}
