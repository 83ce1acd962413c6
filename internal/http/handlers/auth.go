package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/Hata214/BackEnd/internal/auth"
	"github.com/Hata214/BackEnd/internal/http/respond"
	"github.com/Hata214/BackEnd/internal/middleware"
	"github.com/Hata214/BackEnd/internal/models"
	"github.com/Hata214/BackEnd/internal/models/dto"
	"github.com/Hata214/BackEnd/internal/storage"
)

// AuthHandler owns register/login and self-service account endpoints.
type AuthHandler struct {
	authn   *auth.Authenticator
	store   storage.AccountStore
	gate    *middleware.Gate
	limiter *middleware.RateLimiter
	log     logrus.FieldLogger
}

// NewAuthHandler constructs the handler. limiter may be nil to leave the
// credential endpoints unthrottled.
func NewAuthHandler(authn *auth.Authenticator, store storage.AccountStore, gate *middleware.Gate, limiter *middleware.RateLimiter, log logrus.FieldLogger) *AuthHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AuthHandler{authn: authn, store: store, gate: gate, limiter: limiter, log: log}
}

// Register attaches auth routes to the mux.
func (h *AuthHandler) Register(mux *http.ServeMux) {
	mux.Handle("POST /register", h.throttle(h.handleRegister))
	mux.Handle("POST /login", h.throttle(h.handleLogin))
	mux.Handle("GET /me", h.gate.Authenticate(
		h.gate.RequirePermission(models.PermUserReadOwnProfile)(http.HandlerFunc(h.handleMe))))
	mux.Handle("POST /me/password", h.gate.Authenticate(
		h.gate.RequirePermission(models.PermUserUpdateOwnProfile)(http.HandlerFunc(h.handleChangePassword))))
	mux.Handle("GET /users/{id}", h.gate.Authenticate(
		h.gate.RequireOwnership(h.loadAccount, models.PermUserReadAll)(http.HandlerFunc(h.handleGetAccount))))
}

func (h *AuthHandler) throttle(fn http.HandlerFunc) http.Handler {
	if h.limiter == nil {
		return fn
	}
	return h.limiter.Limit(fn)
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	if err := validateRegistration(req.Username, req.Email, req.Password); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.authn.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			respond.Error(w, http.StatusConflict, "user already exists")
		default:
			h.log.WithError(err).Error("create account")
			respond.Error(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	respond.JSON(w, http.StatusCreated, "User created successfully", loginResponse(result))
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" || req.Password == "" {
		respond.Error(w, http.StatusBadRequest, "identifier and password are required")
		return
	}

	result, err := h.authn.Login(r.Context(), identifier, req.Password)
	if err != nil {
		var loginErr *auth.LoginError
		if !errors.As(err, &loginErr) {
			h.log.WithError(err).Error("login")
			respond.Error(w, http.StatusInternalServerError, "failed to process login")
			return
		}
		respond.JSON(w, loginStatus(loginErr), loginErr.Error(), loginFailure(loginErr))
		return
	}
	respond.JSON(w, http.StatusOK, "login successful", loginResponse(result))
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	account, err := h.store.FindByID(r.Context(), p.AccountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "user not found")
			return
		}
		respond.Error(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}
	respond.JSON(w, http.StatusOK, "ok", map[string]any{
		"user":        account,
		"token_role":  p.Role,
		"permissions": p.Role.Permissions(),
		"expires_at":  p.ExpiresAt,
	})
}

func (h *AuthHandler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ChangePasswordRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" {
		respond.Error(w, http.StatusBadRequest, "current_password is required")
		return
	}
	if err := validatePassword(req.NewPassword); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	p, _ := middleware.PrincipalFromContext(r.Context())
	err := h.authn.ChangePassword(r.Context(), p.AccountID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
		respond.JSON(w, http.StatusOK, "password changed", nil)
	case errors.Is(err, auth.ErrInvalidCredentials):
		respond.Error(w, http.StatusUnauthorized, "current password is incorrect")
	case errors.Is(err, auth.ErrPasswordUnchanged):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		respond.Error(w, http.StatusNotFound, "user not found")
	default:
		h.log.WithError(err).Error("change password")
		respond.Error(w, http.StatusInternalServerError, "failed to change password")
	}
}

func (h *AuthHandler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	resource, _ := middleware.ResourceFromContext(r.Context())
	respond.JSON(w, http.StatusOK, "ok", resource)
}

func (h *AuthHandler) loadAccount(ctx context.Context, id string) (middleware.Owned, error) {
	account, err := h.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return account, nil
}

func loginStatus(err *auth.LoginError) int {
	if errors.Is(err, auth.ErrAccountLocked) {
		return http.StatusLocked
	}
	return http.StatusUnauthorized
}

func loginFailure(err *auth.LoginError) dto.LoginFailure {
	out := dto.LoginFailure{Reason: err.Code()}
	switch {
	case errors.Is(err, auth.ErrAccountLocked):
		minutes := err.MinutesRemaining()
		out.MinutesRemaining = &minutes
	case errors.Is(err, auth.ErrInvalidCredentials) && err.AttemptsRemaining != auth.NoAttemptsHint:
		attempts := err.AttemptsRemaining
		out.AttemptsRemaining = &attempts
	}
	return out
}

func loginResponse(result auth.LoginResult) dto.LoginResponse {
	return dto.LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Role:      result.Account.Role,
		User:      result.Account,
	}
}

func validateRegistration(username, email, password string) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(email) == "" {
		return errors.New("username and email are required")
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(username)); n < 3 || n > 50 {
		return errors.New("username must be between 3 and 50 characters")
	}
	// Usernames share the login identifier space with emails.
	if strings.Contains(username, "@") {
		return errors.New("username must not contain '@'")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(email)); err != nil {
		return errors.New("email is invalid")
	}
	return validatePassword(password)
}

func validatePassword(password string) error {
	if len(password) < 6 || !utf8.ValidString(password) {
		return errors.New("password must be at least 6 characters")
	}
	return nil
}
