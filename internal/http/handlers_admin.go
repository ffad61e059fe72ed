package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/domain/model"
	"github.com/wallmag/wallmag-api/internal/service"
)

// RoleAssigner applies role changes on behalf of an authorized actor.
type RoleAssigner interface {
	AssignRoles(
		ctx context.Context,
		actor domainauth.IdentityContext,
		in service.AssignRolesInput,
	) (*service.AssignRolesResult, error)
}

// UserAdministrator covers the staff listing, lookup, activation, session and audit operations.
type UserAdministrator interface {
	ListPrivileged(ctx context.Context, role string) ([]*model.User, error)
	Lookup(ctx context.Context, actor domainauth.IdentityContext, query string) ([]*model.User, error)
	SetActive(
		ctx context.Context,
		actor domainauth.IdentityContext,
		targetID string,
		active bool,
	) (*service.SetActiveResult, error)
	ListSessions(ctx context.Context, userID string) ([]service.SessionInfo, error)
	RevokeSessions(ctx context.Context, actor domainauth.IdentityContext, userID string) (int, error)
	ListAudit(ctx context.Context, kind string, limit int) ([]model.AuditEvent, error)
}

// AdminUserHandlers serves the /api/admin endpoints. Every handler runs
// behind a guard middleware that stores the actor in the request context.
type AdminUserHandlers struct {
	Roles  RoleAssigner
	Users  UserAdministrator
	Logger *slog.Logger
}

func (h *AdminUserHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// actor returns the guard-provided identity or writes a 401.
func (h *AdminUserHandlers) actor(w http.ResponseWriter, r *http.Request) (domainauth.IdentityContext, bool) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: string(domainauth.KindUnauthenticated),
			Err:     errors.New(domainauth.KindUnauthenticated.Message()),
		})
		return domainauth.IdentityContext{}, false
	}
	return *id, true
}

type rolesRequest struct {
	Roles []string `json:"roles"`
}

// AssignRoles replaces the role set of the user named in the path.
// POST /api/admin/users/{id}/roles.
func (h *AdminUserHandlers) AssignRoles(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req rolesRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	h.assign(w, r, actor, service.AssignRolesInput{TargetID: r.PathValue("id"), Roles: req.Roles})
}

// AssignRole accepts the target in the body.
// POST /api/admin/assign-role.
func (h *AdminUserHandlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in service.AssignRolesInput
	if !DecodeJSON(w, r, &in) {
		return
	}
	h.assign(w, r, actor, in)
}

func (h *AdminUserHandlers) assign(
	w http.ResponseWriter,
	r *http.Request,
	actor domainauth.IdentityContext,
	in service.AssignRolesInput,
) {
	res, err := h.Roles.AssignRoles(r.Context(), actor, in)
	if err != nil {
		WriteServiceError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// ListUsers lists staff accounts, optionally narrowed to one role.
// GET /api/admin/users?role=<editor|publisher|admin>.
func (h *AdminUserHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.ListPrivileged(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		WriteServiceError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

// Lookup searches users by email or name.
// GET /api/admin/users/lookup?q=<query>.
func (h *AdminUserHandlers) Lookup(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	users, err := h.Users.Lookup(r.Context(), actor, r.URL.Query().Get("q"))
	if err != nil {
		WriteServiceError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

type activeRequest struct {
	Active *bool `json:"active"`
}

// SetActive activates or deactivates a user.
// PUT /api/admin/users/{id}/active.
func (h *AdminUserHandlers) SetActive(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req activeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Active == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Err:     errors.New("active is required"),
			Field:   "active",
		})
		return
	}
	res, err := h.Users.SetActive(r.Context(), actor, r.PathValue("id"), *req.Active)
	if err != nil {
		WriteServiceError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// ListSessions lists the live sessions of a user.
// GET /api/admin/users/{id}/sessions.
func (h *AdminUserHandlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Users.ListSessions(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// RevokeSessions signs a user out of every session.
// DELETE /api/admin/users/{id}/sessions.
func (h *AdminUserHandlers) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	n, err := h.Users.RevokeSessions(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"revoked_sessions": n})
}

// Audit lists recent security events of one kind.
// GET /api/admin/audit?kind=<kind>&limit=<n>.
func (h *AdminUserHandlers) Audit(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 0)
	events, err := h.Users.ListAudit(r.Context(), r.URL.Query().Get("kind"), limit)
	if err != nil {
		WriteServiceError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
