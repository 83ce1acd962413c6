package auth

import (
	"time"

	"github.com/Hata214/BackEnd/internal/models"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutWindow    = 15 * time.Minute
)

// LockoutPolicy drives the per-account lockout state machine.
//
// Unlocked accounts count failed credential checks; reaching Threshold moves
// the account to Locked until now+Window. Locked is derived on every read
// from LockedUntil, and a lapsed lock is cleared by the next attempt.
type LockoutPolicy struct {
	Threshold int
	Window    time.Duration
}

// DefaultLockoutPolicy locks after 5 failures for 15 minutes.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: DefaultLockoutThreshold, Window: DefaultLockoutWindow}
}

func (p LockoutPolicy) normalized() LockoutPolicy {
	if p.Threshold <= 0 {
		p.Threshold = DefaultLockoutThreshold
	}
	if p.Window <= 0 {
		p.Window = DefaultLockoutWindow
	}
	return p
}

// ReleaseExpired moves an account whose lock has lapsed back to a fresh
// Unlocked state. It reports whether anything changed.
func (p LockoutPolicy) ReleaseExpired(a *models.Account, now time.Time) bool {
	if a.LockedUntil == nil || a.LockedAt(now) {
		return false
	}
	a.LockedUntil = nil
	a.FailedAttempts = 0
	return true
}

// RecordFailure applies one failed credential check to an unlocked account
// and reports whether it tripped the lock.
func (p LockoutPolicy) RecordFailure(a *models.Account, now time.Time) bool {
	p = p.normalized()
	a.FailedAttempts++
	if a.FailedAttempts < p.Threshold {
		return false
	}
	until := now.Add(p.Window)
	a.LockedUntil = &until
	return true
}

// RecordSuccess resets the counters after a successful credential check.
func (p LockoutPolicy) RecordSuccess(a *models.Account, now time.Time) {
	a.FailedAttempts = 0
	a.LockedUntil = nil
	at := now
	a.LastLoginAt = &at
}

// AttemptsRemaining is the number of failures left before the lock trips.
func (p LockoutPolicy) AttemptsRemaining(a models.Account) int {
	p = p.normalized()
	if left := p.Threshold - a.FailedAttempts; left > 0 {
		return left
	}
	return 0
}

// RetryAfter is the time left in the lockout window, or zero.
func RetryAfter(a models.Account, now time.Time) time.Duration {
	if !a.LockedAt(now) {
		return 0
	}
	return a.LockedUntil.Sub(now)
}
