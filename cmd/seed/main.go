// Command seed provisions the default SUPER_ADMIN and ADMIN accounts and exits.
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Hata214/BackEnd/internal/config"
	"github.com/Hata214/BackEnd/internal/server"
)

var errNothingToSeed = errors.New("set DEFAULT_SUPER_ADMIN_EMAIL/PASSWORD or DEFAULT_ADMIN_EMAIL/PASSWORD")

func main() {
	log := logrus.New()
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found; relying on existing environment")
	}
	if err := run(context.Background(), log); err != nil {
		log.WithError(err).Fatal("seed failed")
	}
	log.Info("seed complete")
}

func run(ctx context.Context, log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.SetLevel(cfg.LogLevel)
	if !cfg.SuperAdmin.Configured() && !cfg.Admin.Configured() {
		return errNothingToSeed
	}

	store, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer store.Close()

	if err := server.SeedDefaults(ctx, cfg, store, log); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}
