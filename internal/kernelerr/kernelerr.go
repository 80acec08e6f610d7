// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package kernelerr defines the structured error kinds shared by
// every coordination-kernel component. Components return these errors
// directly; the HTTP layer is the only place that translates a Kind
// into a status code, keeping component return values transport-
// agnostic.
package kernelerr

import (
	"errors"
	"fmt"
)

// Kind classifies a kernel error for transport mapping and metrics.
type Kind int

const (
	// Unknown is the zero value; never returned deliberately.
	Unknown Kind = iota

	// Validation covers malformed identity, out-of-range port,
	// unknown enum values. Not logged as an error.
	Validation

	// Conflict covers an identity already claimed by a live pid, a
	// held lock, a preferred port in use, a file claimed by another
	// active session.
	Conflict

	// NotFound covers an unknown service/session/agent/lock on read
	// or update.
	NotFound

	// Expired covers a lock or service whose expiry has passed.
	Expired

	// Capacity covers rate-limit exceeded, too many concurrent SSE
	// streams, oversized request bodies.
	Capacity

	// Transient covers exhausted retries on serialization failures
	// or a failed free-port search. Retryable.
	Transient

	// Fatal covers store-open or schema-migration failure; aborts
	// startup.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	case Expired:
		return "expired"
	case Capacity:
		return "capacity"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the structured error type returned by kernel components.
// Detail carries structured context for the caller (e.g. the current
// lock holder, the conflicting session identity) without forcing the
// caller to parse the message string.
type Error struct {
	Kind    Kind
	Message string
	Detail  map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a kernel error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs a kernel error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs a kernel error of the given kind that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetail attaches structured detail and returns the receiver for
// chaining at the call site.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// KindOf extracts the Kind from err, walking the error chain.
// Returns Unknown if err does not wrap a *Error.
func KindOf(err error) Kind {
	var kernelErr *Error
	if errors.As(err, &kernelErr) {
		return kernelErr.Kind
	}
	return Unknown
}

// DetailOf extracts the structured detail map from err, or nil.
func DetailOf(err error) map[string]any {
	var kernelErr *Error
	if errors.As(err, &kernelErr) {
		return kernelErr.Detail
	}
	return nil
}
