// Package admin implements privilege administration: promotion and demotion
// between USER and ADMIN, account blocking and deletion, and out-of-band
// seeding of elevated accounts.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Hata214/BackEnd/internal/auth"
	"github.com/Hata214/BackEnd/internal/metrics"
	"github.com/Hata214/BackEnd/internal/models"
	"github.com/Hata214/BackEnd/internal/storage"
)

// MaxAdmins caps the number of ADMIN accounts reachable through promotion.
const MaxAdmins = 3

var (
	ErrNotFound      = errors.New("account not found")
	ErrForbidden     = errors.New("operation not permitted on this account")
	ErrAlreadyAdmin  = errors.New("account is already an admin")
	ErrAlreadyUser   = errors.New("account is already a user")
	ErrMaxAdmins     = errors.New("maximum admins reached")
	ErrSelfOperation = errors.New("cannot perform this operation on your own account")
)

// IsBadRequest reports whether err is a rejected role change rather than a
// missing account or a permission failure.
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrAlreadyAdmin) || errors.Is(err, ErrAlreadyUser) || errors.Is(err, ErrMaxAdmins) || errors.Is(err, ErrSelfOperation)
}

// Caller identifies who is performing an administrative operation.
type Caller struct {
	AccountID string
	Role      models.Role
}

// Service performs privilege administration against an AccountStore.
type Service struct {
	store   storage.AccountStore
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

// NewService wires the administration service.
func NewService(store storage.AccountStore, m *metrics.Metrics, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: store, metrics: m, log: log}
}

// Promote raises a USER to ADMIN unless MaxAdmins other admins already exist.
func (s *Service) Promote(ctx context.Context, identifier string) (models.Account, error) {
	return s.changeRole(ctx, "promote", identifier, func(acct *models.Account, admins int) error {
		switch acct.Role {
		case models.RoleSuperAdmin:
			return ErrForbidden
		case models.RoleAdmin:
			return ErrAlreadyAdmin
		}
		if admins >= MaxAdmins {
			return ErrMaxAdmins
		}
		acct.Role = models.RoleAdmin
		return nil
	})
}

// Demote lowers an ADMIN to USER.
func (s *Service) Demote(ctx context.Context, identifier string) (models.Account, error) {
	return s.changeRole(ctx, "demote", identifier, func(acct *models.Account, _ int) error {
		switch acct.Role {
		case models.RoleSuperAdmin:
			return ErrForbidden
		case models.RoleUser:
			return ErrAlreadyUser
		}
		acct.Role = models.RoleUser
		return nil
	})
}

func (s *Service) changeRole(ctx context.Context, action, identifier string, fn storage.RoleChangeFunc) (models.Account, error) {
	target, err := s.find(ctx, identifier)
	if err != nil {
		s.metrics.RoleChange(action, "not_found")
		return models.Account{}, err
	}
	updated, err := s.store.MutateRole(ctx, target.ID, fn)
	if err != nil {
		err = mapStoreError(err)
		s.metrics.RoleChange(action, resultLabel(err))
		s.log.WithFields(logrus.Fields{"action": action, "account_id": target.ID, "error": err}).Info("role change rejected")
		return models.Account{}, err
	}
	s.metrics.RoleChange(action, "ok")
	s.log.WithFields(logrus.Fields{"action": action, "account_id": updated.ID, "role": updated.Role}).Info("role changed")
	return updated, nil
}

// Delete removes an account. SUPER_ADMIN accounts are never deleted and
// ADMIN accounts only by a SUPER_ADMIN caller.
func (s *Service) Delete(ctx context.Context, caller Caller, id string) error {
	err := s.store.DeleteAccount(ctx, id, protectElevated(caller))
	if err != nil {
		err = mapStoreError(err)
		s.log.WithFields(logrus.Fields{"account_id": id, "caller_id": caller.AccountID, "error": err}).Info("account deletion rejected")
		return err
	}
	s.log.WithFields(logrus.Fields{"account_id": id, "caller_id": caller.AccountID}).Warn("account deleted")
	return nil
}

// Block deactivates an account under the same role protection as Delete.
func (s *Service) Block(ctx context.Context, caller Caller, id string) (models.Account, error) {
	guard := protectElevated(caller)
	updated, err := s.store.SetActive(ctx, id, false, func(acct models.Account) error {
		if acct.ID == caller.AccountID {
			return ErrSelfOperation
		}
		return guard(acct)
	})
	if err != nil {
		return models.Account{}, mapStoreError(err)
	}
	s.log.WithFields(logrus.Fields{"account_id": id, "caller_id": caller.AccountID}).Info("account blocked")
	return updated, nil
}

// Unblock reactivates an account and clears its lockout state.
func (s *Service) Unblock(ctx context.Context, caller Caller, id string) (models.Account, error) {
	updated, err := s.store.SetActive(ctx, id, true, protectElevated(caller))
	if err != nil {
		return models.Account{}, mapStoreError(err)
	}
	s.log.WithFields(logrus.Fields{"account_id": id, "caller_id": caller.AccountID}).Info("account unblocked")
	return updated, nil
}

// List returns every account.
func (s *Service) List(ctx context.Context) ([]models.Account, error) {
	return s.store.ListAccounts(ctx)
}

// SeedRequest describes an out-of-band provisioned account.
type SeedRequest struct {
	Username string
	Email    string
	Password string
	Role     models.Role
}

// Seed creates the account unless one with the same role already exists.
// It reports whether an account was created. Seeding bypasses MaxAdmins.
func (s *Service) Seed(ctx context.Context, passwords auth.Passwords, req SeedRequest) (bool, error) {
	if req.Role != models.RoleAdmin && req.Role != models.RoleSuperAdmin {
		return false, fmt.Errorf("seed: unsupported role %q", req.Role)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return false, fmt.Errorf("seed %s: email and password are required", req.Role)
	}
	existing, err := s.store.CountByRole(ctx, req.Role)
	if err != nil {
		return false, err
	}
	if existing > 0 {
		s.log.WithField("role", req.Role).Info("seed skipped: role already provisioned")
		return false, nil
	}
	hash, err := passwords.Hash(req.Password)
	if err != nil {
		return false, err
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = string(req.Role)
	}
	created, err := s.store.CreateAccount(ctx, models.Account{
		Username:     username,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         req.Role,
		Active:       true,
	})
	if err != nil {
		return false, fmt.Errorf("seed %s: %w", req.Role, err)
	}
	s.log.WithFields(logrus.Fields{"account_id": created.ID, "role": created.Role}).Info("account seeded")
	return true, nil
}

func (s *Service) find(ctx context.Context, identifier string) (models.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.Account{}, ErrNotFound
	}
	account, err := s.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		return models.Account{}, mapStoreError(err)
	}
	return account, nil
}

func protectElevated(caller Caller) storage.AccountGuard {
	return func(acct models.Account) error {
		switch acct.Role {
		case models.RoleSuperAdmin:
			return ErrForbidden
		case models.RoleAdmin:
			if caller.Role != models.RoleSuperAdmin {
				return ErrForbidden
			}
		}
		return nil
	}
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrProtectedRole):
		return ErrForbidden
	}
	return err
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrMaxAdmins):
		return "max_admins"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case IsBadRequest(err):
		return "already_in_role"
	}
	return "error"
}
