package keychain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEncoding is returned when stored bytes cannot be read as the
	// requested type, or a value cannot be encoded for storage.
	ErrInvalidEncoding = errors.New("invalid encoding")

	// ErrAuthentication matches a StoreError whose status reports a failed or
	// canceled user authentication.
	ErrAuthentication = errors.New("authentication failed")
)

// StoreError reports a non-success status from the backend.
type StoreError struct {
	Op     string
	Key    string
	Status Status
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("keychain %s %q: %s (%d)", e.Op, e.Key, e.Status, int32(e.Status))
}

// Is lets callers test for ErrAuthentication without inspecting the status.
func (e *StoreError) Is(target error) bool {
	return target == ErrAuthentication && e.Status.IsAuthentication()
}

// StatusOf extracts the backend status from err, or StatusSuccess if err
// does not carry one.
func StatusOf(err error) Status {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Status
	}
	return StatusSuccess
}
