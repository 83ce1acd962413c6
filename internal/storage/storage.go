package storage

import (
	"context"
	"errors"

	"github.com/Hata214/BackEnd/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// ErrProtectedRole is returned when a write would change or remove a
// super_admin account's role.
var ErrProtectedRole = errors.New("super_admin role is immutable")

// LoginStateFunc mutates the lockout fields of an account (FailedAttempts,
// LockedUntil, LastLoginAt). Returning an error discards the change.
type LoginStateFunc func(account *models.Account) error

// RoleChangeFunc decides a role change. admins is the number of admin
// accounts other than account. Returning an error discards the change.
type RoleChangeFunc func(account *models.Account, admins int) error

// AccountGuard vets an account before a destructive write.
type AccountGuard func(account models.Account) error

// AccountStore captures persistence operations needed by the identity core.
//
// MutateLoginState serialises read-modify-write per account. MutateRole
// serialises every role change in the store, so the admin count seen by fn
// cannot go stale before the update lands. Implementations must take the
// role-change lock before any account row lock. FindByIdentifier prefers
// an id match over an email match over a username match. SetActive(true) also clears
// lockout state.
type AccountStore interface {
	CreateAccount(ctx context.Context, account models.Account) (models.Account, error)
	FindByID(ctx context.Context, id string) (models.Account, error)
	FindByIdentifier(ctx context.Context, identifier string) (models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	CountByRole(ctx context.Context, role models.Role) (int, error)
	MutateLoginState(ctx context.Context, id string, fn LoginStateFunc) (models.Account, error)
	MutateRole(ctx context.Context, id string, fn RoleChangeFunc) (models.Account, error)
	SetActive(ctx context.Context, id string, active bool, guard AccountGuard) (models.Account, error)
	SetPasswordHash(ctx context.Context, id, hash string) (models.Account, error)
	DeleteAccount(ctx context.Context, id string, guard AccountGuard) error
	Close()
}
