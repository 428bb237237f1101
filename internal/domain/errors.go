package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidDecision   = errors.New("invalid decision")
	ErrStaleState        = errors.New("stale state")
	ErrUnroutableStep    = errors.New("unroutable step")
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	ErrInvalidState      = errors.New("operation not allowed in current state")
	ErrInvalidInput      = errors.New("invalid input")
)
