package server

import (
	"context"

	"github.com/Hata214/BackEnd/internal/config"
	"github.com/Hata214/BackEnd/internal/storage"
	"github.com/Hata214/BackEnd/internal/storage/postgres"
	"github.com/Hata214/BackEnd/internal/storage/sqlite"
)

// OpenStore opens the account store selected by DATABASE_URL: a sqlite://
// path for the embedded store, anything else is handed to pgx.
func OpenStore(ctx context.Context, cfg config.Config) (storage.AccountStore, error) {
	if path, ok := cfg.SQLitePath(); ok {
		return sqlite.NewAccountStore(ctx, path)
	}
	return postgres.NewAccountStore(ctx, cfg.DatabaseURL)
}
