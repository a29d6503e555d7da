package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation          Kind = "validation_failed"
	KindNotFound            Kind = "not_found"
	KindAuthFailed          Kind = "auth_failed"
	KindInsufficientFunds   Kind = "insufficient_funds"
	KindConflict            Kind = "conflict"
	KindExternalUnavailable Kind = "external_unavailable"
	KindInternal            Kind = "internal"
)

// Error is a sentinel carrying its taxonomy kind. Compare with errors.Is.
type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Kind() Kind { return e.kind }

func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

var (
	ErrValidation              = New(KindValidation, "validation failed")
	ErrInvalidAmount           = New(KindValidation, "invalid amount")
	ErrInvalidBook             = New(KindValidation, "invalid book value")
	ErrUserNotFound            = New(KindNotFound, "user not found")
	ErrTradeNotFound           = New(KindNotFound, "trade not found or unauthorized to close")
	ErrAccountNotFound         = New(KindNotFound, "live account not found")
	ErrNoTrades                = New(KindNotFound, "no trades found for this user")
	ErrAuthFailed              = New(KindAuthFailed, "invalid wallet pin")
	ErrInsufficientBalance     = New(KindInsufficientFunds, "insufficient balance")
	ErrInsufficientBuyingPower = New(KindInsufficientFunds, "insufficient leverage balance")
	ErrConflict                = New(KindConflict, "concurrent modification, retry")
	ErrPriceUnavailable        = New(KindExternalUnavailable, "live price not available")
)

// Validation wraps ErrValidation with a field-level reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// KindOf walks the wrap chain and returns the first taxonomy kind found.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// Retryable reports whether the caller may retry the same request unchanged.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindExternalUnavailable:
		return true
	}
	return false
}
