package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hata214/BackEnd/internal/models"
	"github.com/Hata214/BackEnd/internal/storage"
)

// TestStoreIntegration runs the store contract against a live Postgres.
func TestStoreIntegration(t *testing.T) {
	if os.Getenv("RUN_POSTGRES_INTEGRATION") != "true" {
		t.Skip("set RUN_POSTGRES_INTEGRATION=true to run this integration test")
	}
	for _, path := range []string{".env", "../.env", "../../.env", "../../../.env"} {
		_ = godotenv.Overload(path)
	}
	dbURL := os.Getenv("DATABASE_URL")
	require.NotEmpty(t, dbURL, "DATABASE_URL is required")

	ctx := context.Background()
	store, err := NewAccountStore(ctx, dbURL)
	require.NoError(t, err)
	defer store.Close()

	suffix := time.Now().UnixNano()
	create := func(name string, role models.Role) models.Account {
		acct, err := store.CreateAccount(ctx, models.Account{
			Username:     fmt.Sprintf("%s_%d", name, suffix),
			Email:        fmt.Sprintf("%s_%d@Example.com", name, suffix),
			PasswordHash: "hash",
			Role:         role,
			Active:       true,
		})
		require.NoError(t, err)
		return acct
	}

	user := create("pguser", models.RoleUser)
	t.Cleanup(func() { _ = store.DeleteAccount(ctx, user.ID, nil) })

	t.Run("find by identifier", func(t *testing.T) {
		got, err := store.FindByIdentifier(ctx, fmt.Sprintf("PGUSER_%d@example.com", suffix))
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)

		_, err = store.FindByID(ctx, "does-not-exist")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("email match wins over username match", func(t *testing.T) {
		shadow, err := store.CreateAccount(ctx, models.Account{
			Username: user.Email, Email: fmt.Sprintf("shadow_%d@example.com", suffix), PasswordHash: "h", Active: true,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.DeleteAccount(ctx, shadow.ID, nil) })

		got, err := store.FindByIdentifier(ctx, user.Email)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("set password hash", func(t *testing.T) {
		updated, err := store.SetPasswordHash(ctx, user.ID, "rotated")
		require.NoError(t, err)
		assert.Equal(t, "rotated", updated.PasswordHash)
		_, err = store.SetPasswordHash(ctx, "does-not-exist", "x")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := store.CreateAccount(ctx, models.Account{
			Username: fmt.Sprintf("other_%d", suffix), Email: user.Email, PasswordHash: "h", Active: true,
		})
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	})

	t.Run("concurrent login state updates serialise", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.MutateLoginState(ctx, user.ID, func(a *models.Account) error {
					a.FailedAttempts++
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		got, err := store.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, got.FailedAttempts)
	})

	t.Run("super admin role is immutable", func(t *testing.T) {
		root := create("pgroot", models.RoleSuperAdmin)
		_, err := store.MutateRole(ctx, root.ID, func(a *models.Account, _ int) error {
			a.Role = models.RoleUser
			return nil
		})
		assert.ErrorIs(t, err, storage.ErrProtectedRole)
		assert.ErrorIs(t, store.DeleteAccount(ctx, root.ID, nil), storage.ErrProtectedRole)
	})
}
