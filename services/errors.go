package services

import "errors"

// Domain errors surfaced by services. Handlers map each one to a specific
// status code and user-facing message, never a generic failure string.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrRateLimited     = errors.New("daily verification limit reached")
	ErrValidation      = errors.New("invalid request")
	ErrAlreadyAppealed = errors.New("submission has already been appealed")
)
