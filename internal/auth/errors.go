package auth

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountInactive    = errors.New("account inactive")

	ErrPasswordUnchanged = errors.New("new password must differ from the current one")
)

// NoAttemptsHint marks a LoginError that must not reveal an attempts count.
const NoAttemptsHint = -1

// LoginError is the failure half of the login outcome contract.
type LoginError struct {
	Reason            error
	AttemptsRemaining int
	RetryAfter        time.Duration
}

func (e *LoginError) Error() string {
	switch {
	case errors.Is(e.Reason, ErrAccountLocked):
		return fmt.Sprintf("%v: retry in %d minutes", e.Reason, e.MinutesRemaining())
	case errors.Is(e.Reason, ErrInvalidCredentials) && e.AttemptsRemaining >= 0:
		return fmt.Sprintf("%v: %d attempts remaining", e.Reason, e.AttemptsRemaining)
	default:
		return e.Reason.Error()
	}
}

func (e *LoginError) Unwrap() error {
	return e.Reason
}

// MinutesRemaining rounds RetryAfter up to whole minutes.
func (e *LoginError) MinutesRemaining() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(e.RetryAfter.Minutes()))
}

// Code is a stable machine-readable reason string.
func (e *LoginError) Code() string {
	switch {
	case errors.Is(e.Reason, ErrAccountLocked):
		return "account_locked"
	case errors.Is(e.Reason, ErrAccountInactive):
		return "account_inactive"
	default:
		return "invalid_credentials"
	}
}
