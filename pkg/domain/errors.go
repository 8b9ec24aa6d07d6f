package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared by every service. Callers wrap them with context via
// fmt.Errorf("%w: ...") and the HTTP layer maps them with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrGeneration      = errors.New("generation error")
	ErrParse           = errors.New("parse error")
	ErrPaymentProvider = errors.New("payment provider error")
)

// Validationf returns an ErrValidation carrying a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf returns an ErrNotFound carrying a formatted detail.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// ErrorKind names the taxonomy entry for err, or "internal".
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrNotFound):
		return "NotFoundError"
	case errors.Is(err, ErrUnauthorized):
		return "UnauthorizedError"
	case errors.Is(err, ErrForbidden):
		return "ForbiddenError"
	case errors.Is(err, ErrGeneration):
		return "GenerationError"
	case errors.Is(err, ErrParse):
		return "ParseError"
	case errors.Is(err, ErrPaymentProvider):
		return "PaymentProviderError"
	default:
		return "InternalError"
	}
}
