package model

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyInitialized       = errors.New("pool already initialized")
	ErrNotInitialized           = errors.New("pool not initialized")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrInsufficientRewardsVault = errors.New("insufficient rewards vault balance")
	ErrLockupNotExpired         = errors.New("lockup period has not ended")
	ErrPositionExists           = errors.New("stake position already exists")
	ErrNotFound                 = errors.New("not found")
	ErrNothingToClaim           = errors.New("nothing to claim")
	ErrArithmeticOverflow       = errors.New("arithmetic overflow")
	ErrArithmeticUnderflow      = errors.New("arithmetic underflow")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrInvalidAmount            = errors.New("amount must be greater than zero")
	ErrInvalidLockup            = errors.New("lockup duration must not be negative")
)

// InvariantError marks a violated configuration or accounting invariant. It is
// never caused by the caller's own input and must not be retried.
type InvariantError struct {
	Err error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: %v", e.Err)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

// Invariant wraps err as an InvariantError.
func Invariant(err error) error {
	if err == nil {
		return nil
	}
	return &InvariantError{Err: err}
}

// IsFatal reports whether err carries an InvariantError.
func IsFatal(err error) bool {
	var target *InvariantError
	return errors.As(err, &target)
}
