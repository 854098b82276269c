package errkind

import (
	"errors"
	"fmt"
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Msg may include human-readable context; do not include tokens.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// ConflictError reports a uniqueness constraint violation for a logical field
// ("identifier", "token"). Creation paths catch it and regenerate.
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConflict)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// StorageError wraps a collaborator failure. It matches both the cause and
// ErrStorageUnavailable.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorageUnavailable, e.Err)
}

func (e StorageError) Unwrap() []error { return []error{ErrStorageUnavailable, e.Err} }

// Invalid standardizes validation errors.
func Invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrValidationFailed, Msg: msg}
}

// Storage wraps err as a StorageError unless it already carries a taxonomy kind
// or is nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return StorageError{Op: op, Err: err}
}

// Classified reports whether err already carries one of the taxonomy kinds.
func Classified(err error) bool {
	for _, k := range []error{
		ErrValidationFailed, ErrInvalidScope, ErrNotFound, ErrGone,
		ErrForbidden, ErrConflict, ErrStorageUnavailable, ErrRenderDegraded,
	} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// IsConflict reports whether err is a ConflictError, optionally for a specific field.
func IsConflict(err error, field string) bool {
	var ce ConflictError
	if !errors.As(err, &ce) {
		return false
	}
	return field == "" || ce.Field == field
}

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsStorageUnavailable reports whether err represents ErrStorageUnavailable.
func IsStorageUnavailable(err error) bool { return errors.Is(err, ErrStorageUnavailable) }
