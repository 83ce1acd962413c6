package admin_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Hata214/BackEnd/internal/admin"
	"github.com/Hata214/BackEnd/internal/auth"
	"github.com/Hata214/BackEnd/internal/metrics"
	"github.com/Hata214/BackEnd/internal/models"
	"github.com/Hata214/BackEnd/internal/storage/sqlite"
)

func newService(t *testing.T) (*admin.Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.NewAccountStore(context.Background(), filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return admin.NewService(store, metrics.New(), nil), store
}

func createAccount(t *testing.T, store *sqlite.Store, name string, role models.Role) models.Account {
	t.Helper()
	acct, err := store.CreateAccount(context.Background(), models.Account{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "x",
		Role:         role,
		Active:       true,
	})
	require.NoError(t, err)
	return acct
}

func TestPromoteAndDemote(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	user := createAccount(t, store, "ivy", models.RoleUser)

	promoted, err := svc.Promote(ctx, "ivy@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, promoted.Role)

	_, err = svc.Promote(ctx, user.ID)
	assert.ErrorIs(t, err, admin.ErrAlreadyAdmin)

	demoted, err := svc.Demote(ctx, "ivy")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, demoted.Role)

	_, err = svc.Demote(ctx, "ivy")
	assert.ErrorIs(t, err, admin.ErrAlreadyUser)

	_, err = svc.Promote(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, admin.ErrNotFound)
}

func TestPromoteRespectsAdminCap(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	for i := 0; i < admin.MaxAdmins; i++ {
		createAccount(t, store, fmt.Sprintf("admin%d", i), models.RoleAdmin)
	}
	jack := createAccount(t, store, "jack", models.RoleUser)

	_, err := svc.Promote(ctx, "jack")
	assert.ErrorIs(t, err, admin.ErrMaxAdmins)
	assert.True(t, admin.IsBadRequest(err))
	unchanged, err := store.FindByID(ctx, jack.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, unchanged.Role)

	_, err = svc.Demote(ctx, "admin0")
	require.NoError(t, err)
	promoted, err := svc.Promote(ctx, "jack")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, promoted.Role)
}

func TestConcurrentPromotionsNeverExceedCap(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	const candidates = 8
	for i := 0; i < candidates; i++ {
		createAccount(t, store, fmt.Sprintf("user%d", i), models.RoleUser)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < candidates; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Promote(ctx, fmt.Sprintf("user%d", i))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, admin.ErrMaxAdmins)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, admin.MaxAdmins, succeeded)
	admins, err := store.CountByRole(ctx, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, admin.MaxAdmins, admins)
}

func TestSuperAdminIsImmutable(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	root := createAccount(t, store, "root", models.RoleSuperAdmin)
	caller := admin.Caller{AccountID: root.ID, Role: models.RoleSuperAdmin}

	_, err := svc.Promote(ctx, "root")
	assert.ErrorIs(t, err, admin.ErrForbidden)
	_, err = svc.Demote(ctx, "root")
	assert.ErrorIs(t, err, admin.ErrForbidden)

	other := createAccount(t, store, "root2", models.RoleSuperAdmin)
	assert.ErrorIs(t, svc.Delete(ctx, caller, other.ID), admin.ErrForbidden)
	_, err = svc.Block(ctx, caller, other.ID)
	assert.ErrorIs(t, err, admin.ErrForbidden)

	stored, err := store.FindByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, stored.Role)
	assert.True(t, stored.Active)
}

func TestDeleteRules(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	root := createAccount(t, store, "root", models.RoleSuperAdmin)
	boss := createAccount(t, store, "boss", models.RoleAdmin)
	peer := createAccount(t, store, "peer", models.RoleAdmin)
	user := createAccount(t, store, "kim", models.RoleUser)

	asAdmin := admin.Caller{AccountID: boss.ID, Role: models.RoleAdmin}
	asRoot := admin.Caller{AccountID: root.ID, Role: models.RoleSuperAdmin}

	assert.ErrorIs(t, svc.Delete(ctx, asAdmin, peer.ID), admin.ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, asAdmin, "missing"), admin.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, asAdmin, user.ID))
	require.NoError(t, svc.Delete(ctx, asRoot, peer.ID))

	accounts, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestBlockAndUnblock(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	boss := createAccount(t, store, "boss", models.RoleAdmin)
	user := createAccount(t, store, "lee", models.RoleUser)
	caller := admin.Caller{AccountID: boss.ID, Role: models.RoleAdmin}

	_, err := svc.Block(ctx, caller, boss.ID)
	assert.ErrorIs(t, err, admin.ErrSelfOperation)

	blocked, err := svc.Block(ctx, caller, user.ID)
	require.NoError(t, err)
	assert.False(t, blocked.Active)

	_, err = store.MutateLoginState(ctx, user.ID, func(a *models.Account) error {
		a.FailedAttempts = 3
		return nil
	})
	require.NoError(t, err)

	unblocked, err := svc.Unblock(ctx, caller, user.ID)
	require.NoError(t, err)
	assert.True(t, unblocked.Active)
	assert.Zero(t, unblocked.FailedAttempts)
}

func TestSeed(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	passwords := auth.NewBcryptPasswords(bcrypt.MinCost)
	req := admin.SeedRequest{Username: "root", Email: "Root@Example.com", Password: "s3cret!", Role: models.RoleSuperAdmin}

	created, err := svc.Seed(ctx, passwords, req)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.Seed(ctx, passwords, req)
	require.NoError(t, err)
	assert.False(t, created, "second seed is a no-op")

	acct, err := store.FindByIdentifier(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, acct.Role)
	assert.True(t, passwords.Verify("s3cret!", acct.PasswordHash))

	_, err = svc.Seed(ctx, passwords, admin.SeedRequest{Email: "u@example.com", Password: "x", Role: models.RoleUser})
	assert.Error(t, err)
}
