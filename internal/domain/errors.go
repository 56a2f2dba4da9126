package domain

import "errors"

// Kind is a machine-checkable error category surfaced to callers.
type Kind string

const (
	KindInvalidAddress Kind = "invalid_address"
	KindOriginDenied   Kind = "origin_denied"
	KindUnauthorized   Kind = "unauthorized"
	KindStoreFailure   Kind = "store_failure"
	KindNotFound       Kind = "not_found"
)

// Error carries a Kind plus a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// NewError creates an Error. err may be nil.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidAddress = NewError(KindInvalidAddress, "invalid client address", nil)
	ErrOriginDenied   = NewError(KindOriginDenied, "origin not allowed", nil)
	ErrUnauthorized   = NewError(KindUnauthorized, "missing or invalid secret", nil)
	ErrStoreFailure   = NewError(KindStoreFailure, "store failure", nil)
	ErrNotFound       = NewError(KindNotFound, "no readings stored yet", nil)
)

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StoreError wraps a persistence error as KindStoreFailure.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(KindStoreFailure, op, err)
}
