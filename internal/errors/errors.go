package errors

import (
	"errors"
	"fmt"
)

var ErrUnauthorized = errors.New("organizer is not authorized")
var ErrForbidden = errors.New("operation is forbidden for organizer")

var (
	ErrInvalidKeyMaterial   = errors.New("invalid key material")
	ErrEncryptionKeyMissing = errors.New("wallet encryption key is not configured")
	ErrInvalidKeyLength     = errors.New("wallet encryption key must be 32 bytes")

	ErrNotFound           = errors.New("resource not found")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("conflicting state")
	ErrSoldOut            = errors.New("ticket type is sold out")
	ErrSessionExpired     = errors.New("checkout session expired")
	ErrPaymentIncomplete  = errors.New("payment is not completed")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrAllocationConflict = errors.New("address index allocation conflict")

	ErrChainQueryFailed  = errors.New("chain query failed")
	ErrBroadcastFailed   = errors.New("transaction broadcast failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Error carries a client-facing message on top of one of the sentinel kinds.
type Error struct {
	Kind    error
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func New(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a key/value to the error's detail map.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Message returns the client-facing message of err, falling back to the sentinel text.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Message != "" {
			return appErr.Message
		}
		return appErr.Kind.Error()
	}
	for _, kind := range []error{
		ErrNotFound, ErrForbidden, ErrUnauthorized, ErrBadRequest, ErrConflict, ErrSoldOut,
		ErrSessionExpired, ErrPaymentIncomplete, ErrInvalidSignature,
		ErrChainQueryFailed, ErrBroadcastFailed, ErrInsufficientFunds,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal error"
}
