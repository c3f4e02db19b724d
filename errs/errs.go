// Package errs defines the coded error kinds shared by every conduit
// component. The cyclic buffer and doorbell never log - they only ever
// return one of these.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package errs

import (
	goerrors "github.com/agilira/go-errors"
)

// Kind identifies the coded error category, matching spec section 7.
type Kind string

const (
	// KindTimeout: a wait/lock exceeded its budget; callers may retry with
	// the remaining time returned alongside it.
	KindTimeout Kind = "CONDUIT_TIMEOUT"
	// KindAlerted: a lock wait was cancelled by Alert(); callers should
	// typically abandon rather than retry.
	KindAlerted Kind = "CONDUIT_ALERTED"
	// KindWouldBlock: a read found nothing to return.
	KindWouldBlock Kind = "CONDUIT_WOULD_BLOCK"
	// KindWriteError: a push could not reserve enough space.
	KindWriteError Kind = "CONDUIT_WRITE_ERROR"
	// KindTruncated: the destination buffer was smaller than the record;
	// the record is already consumed.
	KindTruncated Kind = "CONDUIT_TRUNCATED"
	// KindIllegalState: unlock without ownership, a concurrent reservation
	// attempt, or an invalid cursor after an unvalidated reopen.
	KindIllegalState Kind = "CONDUIT_ILLEGAL_STATE"
	// KindUnavailable: the doorbell has no paired counterpart.
	KindUnavailable Kind = "CONDUIT_UNAVAILABLE"
)

// Error is a coded conduit error. It wraps a github.com/agilira/go-errors
// error coded with its Kind, and exposes Kind()/Error()/Unwrap()/Is() to
// callers.
type Error struct {
	kind  Kind
	inner *goerrors.Error
}

// New builds a coded error for kind with message.
func New(kind Kind, message string) *Error {
	return &Error{
		kind:  kind,
		inner: goerrors.New(goerrors.ErrorCode(kind), message),
	}
}

// Wrap attaches kind to an existing error, preserving it as the cause.
func Wrap(kind Kind, message string, cause error) *Error {
	e := New(kind, message)
	if cause != nil {
		e.inner = e.inner.WithCause(cause)
	}
	return e
}

// Kind returns the coded category of this error.
func (e *Error) Kind() Kind {
	if e == nil {
		return ""
	}
	return e.kind
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.inner.Error()
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.inner.Unwrap()
}

// Is reports whether target is a conduit error of the same Kind. It lets
// callers write errors.Is(err, errs.New(errs.KindTimeout, "")) style checks
// without caring about the message text.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == other.kind
}

// Timeout reports whether err is (or wraps) a KindTimeout error.
func Timeout(err error) bool { return hasKind(err, KindTimeout) }

// Alerted reports whether err is (or wraps) a KindAlerted error.
func Alerted(err error) bool { return hasKind(err, KindAlerted) }

// IllegalState reports whether err is (or wraps) a KindIllegalState error.
func IllegalState(err error) bool { return hasKind(err, KindIllegalState) }

func hasKind(err error, kind Kind) bool {
	var ce *Error
	for err != nil {
		if ce2, ok := err.(*Error); ok {
			ce = ce2
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if ce == nil {
		return false
	}
	return ce.kind == kind
}
