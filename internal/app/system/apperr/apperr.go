// Package apperr defines the error taxonomy shared by the tenancy, membership
// and scheduling services, and the user-facing category each kind maps to.
//
// Services return sentinel-matching errors so callers can branch with
// errors.Is without inspecting messages:
//
//	if errors.Is(err, apperr.ErrAuthorizationDenied) { ... }
//
// Store errors from a primary write path are returned as-is; Category treats
// any unrecognized error as transient ("try again").
package apperr

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthenticationRequired
	KindAuthorizationDenied
	KindNotFound
	KindValidation
	KindTransient
	KindConsistency
)

func (k Kind) String() string {
	switch k {
	case KindAuthenticationRequired:
		return "authentication_required"
	case KindAuthorizationDenied:
		return "authorization_denied"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation_error"
	case KindTransient:
		return "transient_store_error"
	case KindConsistency:
		return "consistency_warning"
	}
	return "unknown"
}

// User-visible categories.
const (
	CategoryTryAgain   = "try_again"
	CategoryNotAllowed = "not_allowed"
	CategoryInvalid    = "invalid"
	CategoryNotFound   = "not_found"
	CategorySignIn     = "sign_in"
)

// Error carries a Kind plus a message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind, so every AuthorizationDenied error matches
// ErrAuthorizationDenied regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.sentinel() {
		return t.Kind == e.Kind
	}
	return t == e
}

func (e *Error) sentinel() bool { return e.Msg == "" && e.Err == nil }

// Sentinels for errors.Is.
var (
	ErrAuthenticationRequired = &Error{Kind: KindAuthenticationRequired}
	ErrAuthorizationDenied    = &Error{Kind: KindAuthorizationDenied}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrValidation             = &Error{Kind: KindValidation}
	ErrTransient              = &Error{Kind: KindTransient}
	ErrConsistency            = &Error{Kind: KindConsistency}
)

// ErrCreationInProgress is returned when an organization create is already in
// flight for the same session.
var ErrCreationInProgress = Transient("organization creation in progress", nil)

// Denied builds an AuthorizationDenied error.
func Denied(format string, args ...any) error {
	return &Error{Kind: KindAuthorizationDenied, Msg: fmt.Sprintf(format, args...)}
}

// Invalid builds a ValidationError.
func Invalid(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFound error for the named entity.
func NotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("%s %s not found", entity, id)}
}

// Transient wraps an I/O failure.
func Transient(msg string, err error) error {
	return &Error{Kind: KindTransient, Msg: msg, Err: err}
}

// Consistency describes a detected mirror divergence.
func Consistency(format string, args ...any) error {
	return &Error{Kind: KindConsistency, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, classifying well-known driver errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return KindNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	return KindUnknown
}

// Category maps err to the user-facing bucket the UI picks messaging from.
func Category(err error) string {
	switch KindOf(err) {
	case KindAuthenticationRequired:
		return CategorySignIn
	case KindAuthorizationDenied:
		return CategoryNotAllowed
	case KindValidation:
		return CategoryInvalid
	case KindNotFound:
		return CategoryNotFound
	}
	return CategoryTryAgain
}

// FromStore translates a missing-document error into NotFound for the named
// entity and returns every other error unchanged.
func FromStore(err error, entity, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return NotFound(entity, id)
	}
	return err
}
