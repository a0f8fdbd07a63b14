package services

import "errors"

var (
	ErrValidation       = errors.New("validation error")
	ErrUnsupportedType  = errors.New("unsupported file type")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrNotFound         = errors.New("not found")
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDeletionFailed   = errors.New("deletion failed")
	ErrStore            = errors.New("store error")
	ErrDeliveryAborted  = errors.New("delivery aborted")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrConflict         = errors.New("conflict")
	ErrUnavailable      = errors.New("service unavailable")
)

// Error pairs a sentinel kind with a message that is safe to show to the
// caller. The underlying cause, if any, is kept for logs and errors.Is.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.Error() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.Error() + ": " + e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func fail(kind error, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// PublicMessage returns the caller-facing message for err, or fallback when
// err carries none.
func PublicMessage(err error, fallback string) string {
	var se *Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return fallback
}
