package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hata214/BackEnd/internal/auth"
	"github.com/Hata214/BackEnd/internal/http/respond"
	"github.com/Hata214/BackEnd/internal/middleware"
	"github.com/Hata214/BackEnd/internal/models"
	"github.com/Hata214/BackEnd/internal/storage/sqlite"
)

type gateFixture struct {
	store  *sqlite.Store
	gate   *middleware.Gate
	tokens *auth.TokenManager
	now    time.Time
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	store, err := sqlite.NewAccountStore(context.Background(), filepath.Join(t.TempDir(), "gate.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	f := &gateFixture{store: store, now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.tokens = auth.NewTokenManager("secret", "test", auth.WithTokenClock(func() time.Time { return f.now }))
	f.gate = middleware.NewGate(f.tokens, store, nil, nil)
	return f
}

func (f *gateFixture) account(t *testing.T, name string, role models.Role) models.Account {
	t.Helper()
	acct, err := f.store.CreateAccount(context.Background(), models.Account{
		Username: name, Email: name + "@example.com", PasswordHash: "x", Role: role, Active: true,
	})
	require.NoError(t, err)
	return acct
}

func (f *gateFixture) token(t *testing.T, acct models.Account) string {
	t.Helper()
	issued, err := f.tokens.Issue(acct.ID, acct.Role)
	require.NoError(t, err)
	return issued.Token
}

func principalEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := middleware.PrincipalFromContext(r.Context())
		respond.JSON(w, http.StatusOK, "ok", map[string]string{"id": p.AccountID, "role": string(p.Role)})
	})
}

func serve(h http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func reasonOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Data["reason"]
}

func TestAuthenticateRejections(t *testing.T) {
	f := newGateFixture(t)
	h := f.gate.Authenticate(principalEcho())
	user := f.account(t, "mia", models.RoleUser)
	valid := f.token(t, user)

	rec := serve(h, "/", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_token", reasonOf(t, rec))

	rec = serve(h, "/", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_malformed", reasonOf(t, rec))

	forger := auth.NewTokenManager("not-the-secret", "test", auth.WithTokenClock(func() time.Time { return f.now }))
	forged, err := forger.Issue(user.ID, models.RoleSuperAdmin)
	require.NoError(t, err)
	rec = serve(h, "/", forged.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_signature_invalid", reasonOf(t, rec))

	f.now = f.now.Add(25 * time.Hour)
	rec = serve(h, "/", valid)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_expired", reasonOf(t, rec))
}

func TestAuthenticateRechecksAccount(t *testing.T) {
	f := newGateFixture(t)
	h := f.gate.Authenticate(principalEcho())
	user := f.account(t, "ned", models.RoleUser)
	token := f.token(t, user)

	_, err := f.store.SetActive(context.Background(), user.ID, false, nil)
	require.NoError(t, err)
	rec := serve(h, "/", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "account_inactive", reasonOf(t, rec))

	require.NoError(t, f.store.DeleteAccount(context.Background(), user.ID, nil))
	rec = serve(h, "/", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "account_not_found", reasonOf(t, rec))
}

func TestRenewalNearExpiry(t *testing.T) {
	f := newGateFixture(t)
	h := f.gate.Authenticate(principalEcho())
	user := f.account(t, "olga", models.RoleUser)
	original := f.token(t, user)
	issuedAt := f.now

	f.now = issuedAt.Add(24*time.Hour - 10*time.Minute)
	rec := serve(h, "/", original)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(middleware.RenewedTokenExpiresHeader), "no renewal with ten minutes left")

	f.now = issuedAt.Add(24*time.Hour - 2*time.Minute)
	rec = serve(h, "/", original)
	require.Equal(t, http.StatusOK, rec.Code)

	renewed := strings.TrimPrefix(rec.Header().Get("Authorization"), "Bearer ")
	require.NotEmpty(t, renewed)
	assert.NotEqual(t, original, renewed)
	assert.Equal(t, f.now.Add(24*time.Hour).Format(time.RFC3339), rec.Header().Get(middleware.RenewedTokenExpiresHeader))

	claims, err := f.tokens.Verify(renewed)
	require.NoError(t, err)
	assert.True(t, f.now.Add(24*time.Hour).Equal(claims.ExpiresAt.Time))

	_, err = f.tokens.Verify(original)
	assert.NoError(t, err, "the presented token stays valid until its own expiry")
}

func TestRenewalUsesCurrentRole(t *testing.T) {
	f := newGateFixture(t)
	user := f.account(t, "pam", models.RoleUser)
	original := f.token(t, user)

	_, err := f.store.MutateRole(context.Background(), user.ID, func(a *models.Account, _ int) error {
		a.Role = models.RoleAdmin
		return nil
	})
	require.NoError(t, err)

	h := f.gate.Authenticate(f.gate.RequireRole(models.RoleAdmin)(principalEcho()))
	f.now = f.now.Add(24*time.Hour - time.Minute)
	rec := serve(h, "/", original)
	assert.Equal(t, http.StatusForbidden, rec.Code, "the presented token still carries the old role")

	renewed := strings.TrimPrefix(rec.Header().Get("Authorization"), "Bearer ")
	require.NotEmpty(t, renewed)
	claims, err := f.tokens.Verify(renewed)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	rec = serve(h, "/", renewed)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRoleAndPermission(t *testing.T) {
	f := newGateFixture(t)
	user := f.token(t, f.account(t, "quinn", models.RoleUser))
	staff := f.token(t, f.account(t, "rita", models.RoleAdmin))
	root := f.token(t, f.account(t, "sam", models.RoleSuperAdmin))

	adminOnly := f.gate.Authenticate(f.gate.RequireRole(models.RoleAdmin)(principalEcho()))
	assert.Equal(t, http.StatusForbidden, serve(adminOnly, "/", user).Code)
	assert.Equal(t, http.StatusOK, serve(adminOnly, "/", staff).Code)
	assert.Equal(t, http.StatusOK, serve(adminOnly, "/", root).Code)

	superOnly := f.gate.Authenticate(f.gate.RequireRole(models.RoleSuperAdmin)(principalEcho()))
	assert.Equal(t, http.StatusForbidden, serve(superOnly, "/", staff).Code)
	assert.Equal(t, http.StatusOK, serve(superOnly, "/", root).Code)

	manageRoles := f.gate.Authenticate(f.gate.RequirePermission(models.PermSystemManageRoles)(principalEcho()))
	assert.Equal(t, http.StatusForbidden, serve(manageRoles, "/", staff).Code)
	assert.Equal(t, http.StatusOK, serve(manageRoles, "/", root).Code)

	bare := f.gate.RequireRole(models.RoleUser)(principalEcho())
	assert.Equal(t, http.StatusUnauthorized, serve(bare, "/", "").Code)
}

func TestRequireOwnership(t *testing.T) {
	f := newGateFixture(t)
	owner := f.account(t, "tara", models.RoleUser)
	stranger := f.account(t, "uma", models.RoleUser)
	staff := f.account(t, "vic", models.RoleAdmin)

	load := func(ctx context.Context, id string) (middleware.Owned, error) {
		acct, err := f.store.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return acct, nil
	}
	mux := http.NewServeMux()
	mux.Handle("GET /users/{id}", f.gate.Authenticate(f.gate.RequireOwnership(load, models.PermUserReadAll)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := middleware.ResourceFromContext(r.Context())
			require.True(t, ok)
			respond.JSON(w, http.StatusOK, "ok", res)
		}))))
	mux.Handle("GET /strict/{id}", f.gate.Authenticate(f.gate.RequireOwnership(load, "")(principalEcho())))

	assert.Equal(t, http.StatusOK, serve(mux, "/users/"+owner.ID, f.token(t, owner)).Code)
	assert.Equal(t, http.StatusForbidden, serve(mux, "/users/"+owner.ID, f.token(t, stranger)).Code)
	assert.Equal(t, http.StatusOK, serve(mux, "/users/"+owner.ID, f.token(t, staff)).Code)
	assert.Equal(t, http.StatusNotFound, serve(mux, "/users/missing", f.token(t, owner)).Code)
	assert.Equal(t, http.StatusForbidden, serve(mux, "/strict/"+owner.ID, f.token(t, staff)).Code)
}
