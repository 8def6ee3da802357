package errors

import "errors"

var (
	ErrRecordNotFound     = errors.New("processing record not found")
	ErrInvalidMessage     = errors.New("invalid inbound message")
	ErrInvalidTransition  = errors.New("processing status transition not allowed")
	ErrStatusConflict     = errors.New("processing record changed concurrently")
	ErrNotDue             = errors.New("processing record is not due for retry")
	ErrInvalidRequest     = errors.New("invalid ledger request")
	ErrInvalidRetention   = errors.New("retention window must be positive")
	ErrRepositoryFailure  = errors.New("ledger repository failure")
	ErrDeadLetterNotFound = errors.New("dead-lettered record not found")
	ErrTenantMismatch     = errors.New("request tenant does not match the message tenant")
)
