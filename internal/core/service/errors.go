package service

import "errors"

var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrNotFound        = errors.New("not found")
	ErrDomainRule      = errors.New("domain rule violation")
)

var (
	ErrInvalidCredentials = kindError("invalid credentials", ErrUnauthenticated)
	ErrDuplicateRequest   = kindError("duplicate request", ErrConflict)
	ErrInsufficientStock  = kindError("insufficient stock", ErrDomainRule)
	ErrNegativeStock      = kindError("stock cannot be negative", ErrDomainRule)
	ErrSupplierMismatch   = kindError("supplier mismatch", ErrDomainRule)
	ErrNoItems            = kindError("no items provided", ErrDomainRule)
	ErrNoConversion       = kindError("no conversion available for selected unit", ErrDomainRule)
)

// classified carries its own message while still matching the broader kind with errors.Is.
type classified struct {
	msg  string
	kind error
}

func kindError(msg string, kind error) error {
	return &classified{msg: msg, kind: kind}
}

func (e *classified) Error() string { return e.msg }

func (e *classified) Unwrap() error { return e.kind }
