package realtime

import (
	"errors"
	"fmt"

	"marketplace-realtime/internal/repositories"
)

// Error taxonomy of the realtime core. Operations wrap the underlying cause
// with one of these so callers can branch with errors.Is.
var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrTransientDelivery = errors.New("transient delivery failure")
	ErrStorage           = errors.New("storage failure")
)

func permissionDenied(reason string) error {
	return fmt.Errorf("%w: %s", ErrPermissionDenied, reason)
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// lookupError classifies a repository error returned while loading a chat or
// message.
func lookupError(op string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrChatNotFound),
		errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrPresenceNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repositories.ErrInvalidID):
		return fmt.Errorf("%w: %s: %w", ErrValidation, op, err)
	default:
		return storageError(op, err)
	}
}

// ErrorCode maps an error to the code carried by websocket error frames.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStorage):
		return "storage_failure"
	default:
		return "internal_error"
	}
}
