package accountlink

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the core can report.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuth
	KindStorage
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindStorage:
		return "storage"
	case KindConflict:
		return "resolution_conflict"
	}
	return "unknown"
}

// Error codes
const (
	ErrCodeMissingField     = "missing_field"
	ErrCodeInvalidEmail     = "invalid_email"
	ErrCodeWeakPassword     = "weak_password"
	ErrCodePasswordMismatch = "password_mismatch"
	ErrCodeEmailExists      = "email_exists"
	ErrCodeNameExists       = "name_exists"
	ErrCodeMalformedProfile = "malformed_profile"
	ErrCodeUnknownProvider  = "unknown_provider"
	ErrCodeInvalidCreds     = "invalid_credentials"
	ErrCodeNoLocalPassword  = "no_local_password"
	ErrCodeNotAuthenticated = "not_authenticated"
	ErrCodeStorageFailure   = "storage_failure"
	ErrCodeProviderLinked   = "provider_already_linked"
)

// Error is the single error type returned by the core.  Message is safe to
// show to an end user only for KindValidation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Field   string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Kind, and on Code as well when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks by kind.
var (
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrAuth               = &Error{Kind: KindAuth, Message: "authentication failed"}
	ErrStorage            = &Error{Kind: KindStorage, Message: "storage failure"}
	ErrResolutionConflict = &Error{Kind: KindConflict, Message: "resolution conflict"}
)

// Returned by UserDirectory implementations.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

func NewValidationError(code, message, field string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Field: field}
}

func NewAuthError(code, message string) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: message}
}

// NewStorageError wraps a directory failure.  An error that is already an
// *Error is returned unchanged.
func NewStorageError(op string, cause error) error {
	var e *Error
	if errors.As(cause, &e) {
		return cause
	}
	return &Error{Kind: KindStorage, Code: ErrCodeStorageFailure, Message: op, Cause: cause}
}

func NewResolutionConflict(provider, providerID, ownerID string) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    ErrCodeProviderLinked,
		Message: fmt.Sprintf("%s id %s is linked to user %s", provider, providerID, ownerID),
	}
}

// KindOf reports the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf reports the Code of err, or "" if err is not an *Error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
