package domain

import (
	"errors"
	"fmt"
)

// ErrProviderUnavailable matches any *ProviderUnavailableError via errors.Is.
var ErrProviderUnavailable = errors.New("provider unavailable")

// ProviderUnavailableError is returned by an adapter that could not obtain a
// response. Err holds the last error observed.
type ProviderUnavailableError struct {
	Provider Provider
	Attempts int
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s provider unavailable after %d attempt(s)", e.Provider, e.Attempts)
	}
	return fmt.Sprintf("%s provider unavailable after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ProviderUnavailableError) Is(target error) bool {
	return target == ErrProviderUnavailable
}
