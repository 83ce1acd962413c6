package server

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Hata214/BackEnd/internal/admin"
	"github.com/Hata214/BackEnd/internal/auth"
	"github.com/Hata214/BackEnd/internal/config"
	"github.com/Hata214/BackEnd/internal/models"
	"github.com/Hata214/BackEnd/internal/storage"
)

// SeedDefaults provisions the SUPER_ADMIN and ADMIN accounts named in cfg.
// Unconfigured accounts and roles that already have a holder are skipped.
func SeedDefaults(ctx context.Context, cfg config.Config, store storage.AccountStore, log logrus.FieldLogger) error {
	svc := admin.NewService(store, nil, log)
	passwords := auth.NewBcryptPasswords(cfg.BcryptCost)

	seeds := []struct {
		account config.SeedAccount
		role    models.Role
	}{
		{cfg.SuperAdmin, models.RoleSuperAdmin},
		{cfg.Admin, models.RoleAdmin},
	}
	for _, seed := range seeds {
		if !seed.account.Configured() {
			continue
		}
		if _, err := svc.Seed(ctx, passwords, admin.SeedRequest{
			Username: seed.account.Username,
			Email:    seed.account.Email,
			Password: seed.account.Password,
			Role:     seed.role,
		}); err != nil {
			return err
		}
	}
	return nil
}
