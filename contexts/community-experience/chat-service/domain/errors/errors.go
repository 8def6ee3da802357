package errors

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrIdempotencyConflict = errors.New("client message id reused with different content")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflict")
	ErrEditWindowExpired   = errors.New("edit window expired")

	ErrMessageNotFound = errors.New("message not found")
)
