package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrorAllProvidersFailed ErrorCode = "ALL_PROVIDERS_FAILED"
	ErrorInternal           ErrorCode = "INTERNAL_ERROR"
)

// Error is the only error kind GenerateResponse returns. For
// ALL_PROVIDERS_FAILED both adapter errors are kept.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error

	Primary  error
	Fallback error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func allProvidersFailed(primary, fallback error) *Error {
	e := newError(ErrorAllProvidersFailed, "primary_and_fallback_failed",
		errors.Join(fmt.Errorf("primary: %w", primary), fmt.Errorf("fallback: %w", fallback)))
	e.Primary = primary
	e.Fallback = fallback
	return e
}
