package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Hata214/BackEnd/internal/metrics"
	"github.com/Hata214/BackEnd/internal/models"
	"github.com/Hata214/BackEnd/internal/storage"
)

// LoginResult is the success half of the login outcome contract.
type LoginResult struct {
	Account   models.Account
	Token     string
	ExpiresAt time.Time
}

// Authenticator runs credential checks through the lockout state machine and
// issues tokens for accounts that pass.
type Authenticator struct {
	store     storage.AccountStore
	passwords Passwords
	tokens    *TokenManager
	policy    LockoutPolicy
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
	now       func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

func WithLockoutPolicy(p LockoutPolicy) Option {
	return func(a *Authenticator) { a.policy = p.normalized() }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authenticator) { a.metrics = m }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Authenticator) {
		if l != nil {
			a.log = l
		}
	}
}

// WithClock overrides the clock used for lockout decisions.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator wires an Authenticator.
func NewAuthenticator(store storage.AccountStore, passwords Passwords, tokens *TokenManager, opts ...Option) *Authenticator {
	a := &Authenticator{
		store:     store,
		passwords: passwords,
		tokens:    tokens,
		policy:    DefaultLockoutPolicy(),
		log:       logrus.StandardLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Policy returns the lockout policy in force.
func (a *Authenticator) Policy() LockoutPolicy {
	return a.policy
}

// Login performs one login attempt. Failures are *LoginError values that
// match ErrInvalidCredentials, ErrAccountLocked or ErrAccountInactive.
func (a *Authenticator) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	account, err := a.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.metrics.LoginAttempt("unknown_account")
			return LoginResult{}, &LoginError{Reason: ErrInvalidCredentials, AttemptsRemaining: NoAttemptsHint}
		}
		return LoginResult{}, fmt.Errorf("find account: %w", err)
	}

	var outcome *LoginError
	updated, err := a.store.MutateLoginState(ctx, account.ID, func(acct *models.Account) error {
		outcome = nil
		now := a.now()
		if acct.LockedAt(now) {
			return &LoginError{Reason: ErrAccountLocked, AttemptsRemaining: 0, RetryAfter: RetryAfter(*acct, now)}
		}
		a.policy.ReleaseExpired(acct, now)

		if !a.passwords.Verify(password, acct.PasswordHash) {
			if a.policy.RecordFailure(acct, now) {
				outcome = &LoginError{Reason: ErrAccountLocked, AttemptsRemaining: 0, RetryAfter: RetryAfter(*acct, now)}
			} else {
				outcome = &LoginError{Reason: ErrInvalidCredentials, AttemptsRemaining: a.policy.AttemptsRemaining(*acct)}
			}
			return nil
		}
		if !acct.Active {
			return &LoginError{Reason: ErrAccountInactive, AttemptsRemaining: NoAttemptsHint}
		}
		a.policy.RecordSuccess(acct, now)
		return nil
	})
	if err != nil {
		var loginErr *LoginError
		if errors.As(err, &loginErr) {
			a.recordFailure(account, loginErr, false)
			return LoginResult{}, loginErr
		}
		if errors.Is(err, storage.ErrNotFound) {
			a.metrics.LoginAttempt("unknown_account")
			return LoginResult{}, &LoginError{Reason: ErrInvalidCredentials, AttemptsRemaining: NoAttemptsHint}
		}
		return LoginResult{}, fmt.Errorf("update login state: %w", err)
	}
	if outcome != nil {
		a.recordFailure(updated, outcome, errors.Is(outcome, ErrAccountLocked))
		return LoginResult{}, outcome
	}

	issued, err := a.tokens.Issue(updated.ID, updated.Role)
	if err != nil {
		return LoginResult{}, err
	}
	a.metrics.LoginAttempt("success")
	a.metrics.TokenIssued("login", string(updated.Role))
	a.log.WithFields(logrus.Fields{"account_id": updated.ID, "role": updated.Role}).Info("login succeeded")
	return LoginResult{Account: updated, Token: issued.Token, ExpiresAt: issued.ExpiresAt}, nil
}

func (a *Authenticator) recordFailure(account models.Account, loginErr *LoginError, justLocked bool) {
	a.metrics.LoginAttempt(loginErr.Code())
	fields := logrus.Fields{
		"account_id":      account.ID,
		"reason":          loginErr.Code(),
		"failed_attempts": account.FailedAttempts,
	}
	if justLocked {
		a.metrics.Lockout()
		a.log.WithFields(fields).Warn("account locked after repeated failures")
		return
	}
	a.log.WithFields(fields).Info("login rejected")
}

// Register creates an active USER account and signs it in.
func (a *Authenticator) Register(ctx context.Context, username, email, password string) (LoginResult, error) {
	hash, err := a.passwords.Hash(password)
	if err != nil {
		return LoginResult{}, err
	}
	created, err := a.store.CreateAccount(ctx, models.Account{
		Username:     strings.TrimSpace(username),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Role:         models.RoleUser,
		Active:       true,
	})
	if err != nil {
		return LoginResult{}, err
	}
	issued, err := a.tokens.Issue(created.ID, created.Role)
	if err != nil {
		return LoginResult{}, err
	}
	a.metrics.TokenIssued("register", string(created.Role))
	a.log.WithField("account_id", created.ID).Info("account registered")
	return LoginResult{Account: created, Token: issued.Token, ExpiresAt: issued.ExpiresAt}, nil
}

// ChangePassword replaces the password of accountID after checking current.
// A wrong current password yields ErrInvalidCredentials and does not count
// toward lockout.
func (a *Authenticator) ChangePassword(ctx context.Context, accountID, current, next string) error {
	account, err := a.store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !a.passwords.Verify(current, account.PasswordHash) {
		a.log.WithField("account_id", accountID).Info("password change rejected")
		return ErrInvalidCredentials
	}
	if current == next {
		return ErrPasswordUnchanged
	}
	hash, err := a.passwords.Hash(next)
	if err != nil {
		return err
	}
	if _, err := a.store.SetPasswordHash(ctx, accountID, hash); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	a.log.WithField("account_id", accountID).Info("password changed")
	return nil
}
