package domain

import "errors"

// Sentinel errors for the application. Services wrap them with detail via
// fmt.Errorf("%w: ...") and handlers map them with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("resource already exists")
	ErrStorage      = errors.New("storage failure")

	// ErrDelivery marks a live push that could not reach a connection.
	// It is logged and swallowed, never returned to an API caller.
	ErrDelivery = errors.New("delivery failed")
)
