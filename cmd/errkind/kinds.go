package errkind

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrValidationFailed   = errors.New("validation_failed")
	ErrInvalidScope       = errors.New("invalid_scope")
	ErrNotFound           = errors.New("not_found")
	ErrGone               = errors.New("gone")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrStorageUnavailable = errors.New("storage_unavailable")
	ErrRenderDegraded     = errors.New("render_degraded")
)
