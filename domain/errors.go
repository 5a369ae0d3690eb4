package domain

import "errors"

// Error kinds surfaced by the repositories. Callers match with errors.Is;
// no store or cache detail leaks beyond the kind.
var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrConflict         = errors.New("conflict")
	ErrValidation       = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("store unavailable")
)
