// Package apierr defines the typed errors returned by the API client and the
// components built on top of it.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide how to react to it.
type Kind int

const (
	// KindServer is any non-2xx response other than 401, or an unreadable payload.
	KindServer Kind = iota

	// KindAuthentication is a 401 from the remote store or a missing session.
	KindAuthentication

	// KindConnectivity means the request never reached the server.
	KindConnectivity

	// KindValidation is a client-side rejection made before any network call.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication error"
	case KindConnectivity:
		return "connectivity error"
	case KindValidation:
		return "validation error"
	default:
		return "server error"
	}
}

// Error is the error type surfaced by every remote or validated operation.
type Error struct {
	Kind Kind

	// Op names the logical operation, e.g. "create task".
	Op string

	// StatusCode is the HTTP status, 0 when no response was received.
	StatusCode int

	// Detail is the server-provided or validation message.
	Detail string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is match on Kind and Detail against the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Detail == e.Detail && t.Op == "" && t.StatusCode == 0
}

var (
	// ErrNotAuthenticated is returned by operations that need a session when none exists.
	ErrNotAuthenticated = &Error{Kind: KindAuthentication, Detail: "not logged in"}

	// ErrTaskNotFound is returned when an id does not name a task in the collection.
	ErrTaskNotFound = &Error{Kind: KindValidation, Detail: "task not found"}
)

// Validation builds a KindValidation error.
func Validation(op, detail string) *Error {
	return &Error{Kind: KindValidation, Op: op, Detail: detail}
}

// Connectivity builds a KindConnectivity error wrapping a transport failure.
func Connectivity(op string, err error) *Error {
	return &Error{Kind: KindConnectivity, Op: op, Err: err}
}

// FromStatus builds the error for a non-2xx response.
func FromStatus(op string, status int, detail string) *Error {
	kind := KindServer
	if status == 401 {
		kind = KindAuthentication
	}
	return &Error{Kind: kind, Op: op, StatusCode: status, Detail: detail}
}

// IsKind reports whether err (or anything it wraps) is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err and whether err carries one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindServer, false
}
