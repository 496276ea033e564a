// Package apperr defines the error taxonomy shared by the account, registry and HTTP layers.
package apperr

import (
	"errors"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an application error.
type Kind string

// Error kinds.
const (
	KindValidation         Kind = "validation"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountUnverified  Kind = "account_unverified"
	KindAccountDisabled    Kind = "account_disabled"
	KindInvalidToken       Kind = "invalid_token"
	KindExpiredToken       Kind = "expired_token"
	KindNotAuthenticated   Kind = "not_authenticated"
	KindNotAuthorized      Kind = "not_authorized"
	KindDuplicateResource  Kind = "duplicate_resource"
	KindDuplicateKey       Kind = "duplicate_key"
	KindNotFound           Kind = "not_found"
	KindDispatchFailure    Kind = "dispatch_failure"
	KindRateLimited        Kind = "rate_limited"
	KindInternal           Kind = "internal"
)

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrAccountUnverified  = &Error{Kind: KindAccountUnverified}
	ErrAccountDisabled    = &Error{Kind: KindAccountDisabled}
	ErrInvalidToken       = &Error{Kind: KindInvalidToken}
	ErrExpiredToken       = &Error{Kind: KindExpiredToken}
	ErrNotAuthenticated   = &Error{Kind: KindNotAuthenticated}
	ErrNotAuthorized      = &Error{Kind: KindNotAuthorized}
	ErrDuplicateResource  = &Error{Kind: KindDuplicateResource}
	ErrDuplicateKey       = &Error{Kind: KindDuplicateKey}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrDispatchFailure    = &Error{Kind: KindDispatchFailure}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
	ErrInternal           = &Error{Kind: KindInternal}
)

// Error is a classified application error. Fields holds per-field messages for validation failures.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string][]string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
		}
		msg += " (" + strings.Join(parts, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// Field returns a validation error for a single field.
func Field(field, message string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: map[string][]string{field: {message}}}
}

// FieldErrors accumulates validation messages keyed by field.
type FieldErrors map[string][]string

// Add records a message for field.
func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

// Err returns a validation error when any message was recorded, nil otherwise.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: map[string][]string(f)}
}

// KindOf reports the kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindInvalidCredentials, KindInvalidToken, KindExpiredToken:
		return http.StatusBadRequest
	case KindNotAuthenticated:
		return http.StatusUnauthorized
	case KindAccountUnverified, KindAccountDisabled, KindNotAuthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateResource, KindDuplicateKey:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
