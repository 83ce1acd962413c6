package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Hata214/BackEnd/internal/models"
)

func TestLockoutTripsAtThreshold(t *testing.T) {
	p := DefaultLockoutPolicy()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var acct models.Account

	for i := 1; i < DefaultLockoutThreshold; i++ {
		assert.False(t, p.RecordFailure(&acct, now))
		assert.Equal(t, DefaultLockoutThreshold-i, p.AttemptsRemaining(acct))
		assert.False(t, acct.LockedAt(now))
	}
	assert.True(t, p.RecordFailure(&acct, now))
	assert.Equal(t, 0, p.AttemptsRemaining(acct))
	assert.True(t, acct.LockedAt(now))
	assert.Equal(t, DefaultLockoutWindow, RetryAfter(acct, now))
	assert.True(t, acct.LockedAt(now.Add(DefaultLockoutWindow-time.Second)))
	assert.False(t, acct.LockedAt(now.Add(DefaultLockoutWindow)))
}

func TestReleaseExpiredResetsCounter(t *testing.T) {
	p := LockoutPolicy{Threshold: 2, Window: time.Minute}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var acct models.Account
	p.RecordFailure(&acct, now)
	p.RecordFailure(&acct, now)

	assert.False(t, p.ReleaseExpired(&acct, now.Add(30*time.Second)), "still locked")
	assert.Equal(t, 2, acct.FailedAttempts)

	assert.True(t, p.ReleaseExpired(&acct, now.Add(time.Minute)))
	assert.Nil(t, acct.LockedUntil)
	assert.Equal(t, 0, acct.FailedAttempts)
	assert.Equal(t, 2, p.AttemptsRemaining(acct))

	assert.False(t, p.ReleaseExpired(&acct, now.Add(time.Hour)), "nothing to release")
}

func TestRecordSuccess(t *testing.T) {
	p := DefaultLockoutPolicy()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	acct := models.Account{FailedAttempts: 3}
	p.RecordSuccess(&acct, now)
	assert.Zero(t, acct.FailedAttempts)
	assert.Nil(t, acct.LockedUntil)
	if assert.NotNil(t, acct.LastLoginAt) {
		assert.Equal(t, now, *acct.LastLoginAt)
	}
}

func TestZeroPolicyUsesDefaults(t *testing.T) {
	var p LockoutPolicy
	assert.Equal(t, DefaultLockoutThreshold, p.AttemptsRemaining(models.Account{}))
}

func TestLoginErrorMessages(t *testing.T) {
	locked := &LoginError{Reason: ErrAccountLocked, RetryAfter: 14*time.Minute + time.Second}
	assert.Equal(t, 15, locked.MinutesRemaining())
	assert.Equal(t, "account_locked", locked.Code())
	assert.ErrorIs(t, locked, ErrAccountLocked)

	invalid := &LoginError{Reason: ErrInvalidCredentials, AttemptsRemaining: 2}
	assert.Equal(t, "invalid credentials: 2 attempts remaining", invalid.Error())

	unknown := &LoginError{Reason: ErrInvalidCredentials, AttemptsRemaining: NoAttemptsHint}
	assert.Equal(t, "invalid credentials", unknown.Error())
	assert.Equal(t, "invalid_credentials", unknown.Code())

	inactive := &LoginError{Reason: ErrAccountInactive, AttemptsRemaining: NoAttemptsHint}
	assert.Equal(t, "account_inactive", inactive.Code())
}
