package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Base error classes. Concrete errors wrap one of them so callers can match
// either the class or the specific error with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("store unavailable")
	ErrConflict          = errors.New("conflict")
)

var (
	ErrRoomNotFound  = fmt.Errorf("room %w", ErrNotFound)
	ErrGiftNotFound  = fmt.Errorf("gift %w", ErrNotFound)
	ErrDanmuNotFound = fmt.Errorf("danmu %w", ErrNotFound)
	ErrUserNotFound  = fmt.Errorf("user %w", ErrNotFound)

	ErrRoomNotLive     = fmt.Errorf("%w: room is not live", ErrValidation)
	ErrSelfGift        = fmt.Errorf("%w: cannot send a gift to yourself", ErrValidation)
	ErrEmptyContent    = fmt.Errorf("%w: content is empty", ErrValidation)
	ErrContentTooLong  = fmt.Errorf("%w: content is too long", ErrValidation)
	ErrInvalidQuantity = fmt.Errorf("%w: invalid quantity", ErrValidation)
	ErrInvalidAmount   = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrAnonymous       = fmt.Errorf("%w: sign in required", ErrUnauthorized)
)

// Validationf builds a validation error with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// HTTPStatus maps an error to the status code returned to REST callers.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine-readable reason sent to a websocket client.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}
