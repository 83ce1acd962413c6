package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Hata214/BackEnd/internal/admin"
	"github.com/Hata214/BackEnd/internal/http/respond"
	"github.com/Hata214/BackEnd/internal/middleware"
	"github.com/Hata214/BackEnd/internal/models"
	"github.com/Hata214/BackEnd/internal/models/dto"
)

// AdminHandler exposes privilege administration.
type AdminHandler struct {
	svc  *admin.Service
	gate *middleware.Gate
	log  logrus.FieldLogger
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(svc *admin.Service, gate *middleware.Gate, log logrus.FieldLogger) *AdminHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AdminHandler{svc: svc, gate: gate, log: log}
}

// Register attaches admin routes to the mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	superAdmin := h.gate.RequireRole(models.RoleSuperAdmin)
	staff := h.gate.RequireRole(models.RoleAdmin)

	mux.Handle("GET /admin/users", h.protect(h.gate.RequirePermission(models.PermUserReadAll), h.handleList))
	mux.Handle("GET /admin/permissions", h.protect(staff, h.handlePermissions))
	mux.Handle("POST /admin/users/promote", h.protect(superAdmin, h.handlePromote))
	mux.Handle("POST /admin/users/demote", h.protect(superAdmin, h.handleDemote))
	mux.Handle("POST /admin/users/{id}/block", h.protect(h.gate.RequirePermission(models.PermUserBlock), h.handleBlock))
	mux.Handle("POST /admin/users/{id}/unblock", h.protect(h.gate.RequirePermission(models.PermUserUnblock), h.handleUnblock))
	mux.Handle("DELETE /admin/users/{id}", h.protect(staff, h.handleDelete))
}

func (h *AdminHandler) protect(check func(http.Handler) http.Handler, fn http.HandlerFunc) http.Handler {
	return h.gate.Authenticate(check(fn))
}

func (h *AdminHandler) handleList(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.List(r.Context())
	if err != nil {
		h.log.WithError(err).Error("list accounts")
		respond.Error(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	respond.JSON(w, http.StatusOK, "ok", accounts)
}

func (h *AdminHandler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	roles := make(map[models.Role][]models.Permission, len(models.Roles))
	for _, role := range models.Roles {
		roles[role] = role.Permissions()
	}
	respond.JSON(w, http.StatusOK, "ok", map[string]any{
		"roles":        roles,
		"capabilities": models.Capabilities(),
	})
}

func (h *AdminHandler) handlePromote(w http.ResponseWriter, r *http.Request) {
	h.handleRoleChange(w, r, h.svc.Promote, "user promoted to admin")
}

func (h *AdminHandler) handleDemote(w http.ResponseWriter, r *http.Request) {
	h.handleRoleChange(w, r, h.svc.Demote, "admin demoted to user")
}

type roleChangeFunc func(ctx context.Context, identifier string) (models.Account, error)

func (h *AdminHandler) handleRoleChange(w http.ResponseWriter, r *http.Request, change roleChangeFunc, message string) {
	var req dto.RoleChangeRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" {
		respond.Error(w, http.StatusBadRequest, "email or identifier is required")
		return
	}

	updated, err := change(r.Context(), identifier)
	if err != nil {
		h.writeAdminError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, message, dto.RoleChangeResponse{ID: updated.ID, Email: updated.Email, Role: updated.Role})
}

func (h *AdminHandler) handleBlock(w http.ResponseWriter, r *http.Request) {
	updated, err := h.svc.Block(r.Context(), callerFrom(r), r.PathValue("id"))
	if err != nil {
		h.writeAdminError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "user blocked", updated)
}

func (h *AdminHandler) handleUnblock(w http.ResponseWriter, r *http.Request) {
	updated, err := h.svc.Unblock(r.Context(), callerFrom(r), r.PathValue("id"))
	if err != nil {
		h.writeAdminError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "user unblocked", updated)
}

func (h *AdminHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), callerFrom(r), r.PathValue("id")); err != nil {
		h.writeAdminError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "user deleted", nil)
}

func (h *AdminHandler) writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, admin.ErrNotFound):
		respond.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, admin.ErrForbidden):
		respond.Error(w, http.StatusForbidden, err.Error())
	case admin.IsBadRequest(err):
		respond.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.log.WithError(err).Error("admin operation")
		respond.Error(w, http.StatusInternalServerError, "internal error")
	}
}

func callerFrom(r *http.Request) admin.Caller {
	p, _ := middleware.PrincipalFromContext(r.Context())
	return admin.Caller{AccountID: p.AccountID, Role: p.Role}
}
