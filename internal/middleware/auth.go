package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Hata214/BackEnd/internal/auth"
	"github.com/Hata214/BackEnd/internal/http/respond"
	"github.com/Hata214/BackEnd/internal/metrics"
	"github.com/Hata214/BackEnd/internal/models"
	"github.com/Hata214/BackEnd/internal/storage"
)

// RenewedTokenExpiresHeader carries the expiry of a token renewed on the response.
const RenewedTokenExpiresHeader = "X-Token-Expires-At"

// Principal is the authenticated identity attached to a request.
type Principal struct {
	AccountID string
	Role      models.Role
	ExpiresAt time.Time
}

type principalKey struct{}
type resourceKey struct{}

// PrincipalFromContext returns the principal set by Gate.Authenticate.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// ResourceFromContext returns the resource loaded by Gate.RequireOwnership.
func ResourceFromContext(ctx context.Context) (any, bool) {
	v := ctx.Value(resourceKey{})
	return v, v != nil
}

// Owned is a resource with a recorded owner.
type Owned interface {
	OwnerID() string
}

// ResourceLoader loads the resource addressed by id. It returns
// storage.ErrNotFound when nothing matches.
type ResourceLoader func(ctx context.Context, id string) (Owned, error)

// AccountFinder is the slice of the account store the gate needs.
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (models.Account, error)
}

// Gate verifies bearer tokens and enforces role, permission and ownership checks.
type Gate struct {
	tokens   *auth.TokenManager
	accounts AccountFinder
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
}

// NewGate creates the authorization gate.
func NewGate(tokens *auth.TokenManager, accounts AccountFinder, m *metrics.Metrics, log logrus.FieldLogger) *Gate {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gate{tokens: tokens, accounts: accounts, metrics: m, log: log}
}

// Authenticate verifies the bearer token, confirms the account is active and
// attaches the principal. Tokens close to expiry get a replacement in the
// Authorization response header; the presented token stays valid.
//
// The principal's role is the one in the token. The replacement token is
// issued for the role currently stored on the account.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			g.unauthorized(w, "missing_token", "access denied: no token provided")
			return
		}

		claims, err := g.tokens.Verify(raw)
		if err != nil {
			reason := tokenFailureReason(err)
			g.unauthorized(w, reason, "invalid token")
			return
		}

		account, err := g.accounts.FindByID(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				g.unauthorized(w, "account_not_found", "invalid token")
				return
			}
			g.log.WithError(err).WithField("account_id", claims.Subject).Error("load account for token")
			respond.Error(w, http.StatusInternalServerError, "failed to load account")
			return
		}
		if !account.Active {
			g.unauthorized(w, "account_inactive", "account is inactive")
			return
		}

		if g.tokens.NeedsRenewal(claims) {
			g.renew(w, account)
		}

		principal := Principal{AccountID: claims.Subject, Role: claims.Role, ExpiresAt: claims.ExpiresAt.Time}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

func (g *Gate) renew(w http.ResponseWriter, account models.Account) {
	issued, err := g.tokens.Issue(account.ID, account.Role)
	if err != nil {
		g.log.WithError(err).WithField("account_id", account.ID).Error("renew token")
		return
	}
	w.Header().Set("Authorization", "Bearer "+issued.Token)
	w.Header().Set(RenewedTokenExpiresHeader, issued.ExpiresAt.UTC().Format(time.RFC3339))
	g.metrics.TokenIssued("renewal", string(account.Role))
	g.log.WithFields(logrus.Fields{"account_id": account.ID, "role": account.Role}).Debug("token renewed")
}

// RequireRole admits principals whose role satisfies any of roles.
func (g *Gate) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				g.unauthorized(w, "missing_token", "authentication required")
				return
			}
			for _, role := range roles {
				if p.Role.Satisfies(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			g.forbidden(w, "role", p, "access denied: insufficient role")
		})
	}
}

// RequirePermission admits principals whose role grants perm.
func (g *Gate) RequirePermission(perm models.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				g.unauthorized(w, "missing_token", "authentication required")
				return
			}
			if !p.Role.HasPermission(perm) {
				g.forbidden(w, "permission", p, "access denied: missing permission "+string(perm))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnership loads the resource named by the {id} path value. Missing
// resources are 404. Callers that do not own it need overridePerm; pass an
// empty permission for resource types with no override.
func (g *Gate) RequireOwnership(load ResourceLoader, overridePerm models.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				g.unauthorized(w, "missing_token", "authentication required")
				return
			}
			id := r.PathValue("id")
			resource, err := load(r.Context(), id)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					respond.Error(w, http.StatusNotFound, "resource not found")
					return
				}
				g.log.WithError(err).WithField("resource_id", id).Error("load resource")
				respond.Error(w, http.StatusInternalServerError, "failed to load resource")
				return
			}
			if resource.OwnerID() != p.AccountID && (overridePerm == "" || !p.Role.HasPermission(overridePerm)) {
				g.forbidden(w, "ownership", p, "access denied: not the owner")
				return
			}
			ctx := context.WithValue(r.Context(), resourceKey{}, resource)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g *Gate) unauthorized(w http.ResponseWriter, reason, message string) {
	g.metrics.AuthFailure(reason)
	respond.JSON(w, http.StatusUnauthorized, message, map[string]string{"reason": reason})
}

func (g *Gate) forbidden(w http.ResponseWriter, check string, p Principal, message string) {
	g.metrics.AuthzDenied(check)
	g.log.WithFields(logrus.Fields{"account_id": p.AccountID, "role": p.Role, "check": check}).Info("request forbidden")
	respond.Error(w, http.StatusForbidden, message)
}

func tokenFailureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, auth.ErrTokenSignature):
		return "token_signature_invalid"
	default:
		return "token_malformed"
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}
