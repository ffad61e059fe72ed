package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/domain/model"
	apperrors "github.com/wallmag/wallmag-api/internal/errors"
	"github.com/wallmag/wallmag-api/internal/observability/metrics"
	"github.com/wallmag/wallmag-api/internal/ports"
)

// RoleServiceOptions groups dependencies for RoleService.
type RoleServiceOptions struct {
	Users    ports.CredentialStore
	Sessions *SessionManager
	Audit    ports.AuditLog
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// RoleService changes role sets and forces affected identities to sign in again.
type RoleService struct {
	users    ports.CredentialStore
	sessions *SessionManager
	audit    auditRecorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewRoleService constructs a new RoleService.
func NewRoleService(opts RoleServiceOptions) *RoleService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleService{
		users:    opts.Users,
		sessions: opts.Sessions,
		audit:    auditRecorder{log: opts.Audit, logger: logger, now: time.Now},
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// AssignRolesInput is a role-assignment request. Roles are raw strings and
// are validated against the closed role set.
type AssignRolesInput struct {
	TargetID string   `json:"targetIdentityId"`
	Roles    []string `json:"roles"`
}

// AssignRolesResult is returned after a successful assignment.
type AssignRolesResult struct {
	Identity        *model.User `json:"identity"`
	RequiresRelogin bool        `json:"requires_relogin"`
	RevokedSessions int         `json:"revoked_sessions"`
}

// AssignRoles replaces the target's role set on behalf of actor, then revokes
// every session of the target.
func (s *RoleService) AssignRoles(
	ctx context.Context,
	actor domainauth.IdentityContext,
	in AssignRolesInput,
) (*AssignRolesResult, error) {
	res, err := s.assignRoles(ctx, actor, in)
	if err != nil {
		s.metrics.RoleChange(metrics.ResultError)
		return nil, err
	}
	s.metrics.RoleChange(metrics.ResultSuccess)
	return res, nil
}

func (s *RoleService) assignRoles(
	ctx context.Context,
	actor domainauth.IdentityContext,
	in AssignRolesInput,
) (*AssignRolesResult, error) {
	targetID := strings.TrimSpace(in.TargetID)
	if targetID == "" {
		return nil, apperrors.ValidationField("targetIdentityId", "target identity is required")
	}

	roles, err := domainauth.ParseRoleSet(in.Roles)
	if err != nil {
		return nil, apperrors.ValidationField("roles", err.Error())
	}

	if err := checkAssignment(actor, targetID, roles); err != nil {
		s.logger.Warn("role assignment refused",
			"actor_id", actor.UserID, "target_id", targetID, "roles", domainauth.RoleStrings(roles), "reason", err.Error())
		return nil, err
	}

	before, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFoundf("user %s not found", targetID)
		}
		return nil, fmt.Errorf("load target user: %w", err)
	}
	if !domainauth.CanManageRoles(actor.Roles, before.Roles) {
		return nil, apperrors.Forbidden("cannot change roles of a user at or above your own level")
	}

	updated, err := s.users.UpdateRoles(ctx, targetID, roles)
	if err != nil {
		return nil, fmt.Errorf("update roles: %w", err)
	}

	revoked, err := s.sessions.RevokeAllFor(ctx, targetID, RevokeReasonRoleChange)
	if err != nil {
		s.logger.Error("roles updated but session revocation failed",
			"target_id", targetID, "revoked", revoked, "error", err)
		return nil, fmt.Errorf("revoke sessions: %w", err)
	}

	s.logger.Info("roles assigned",
		"actor_id", actor.UserID, "target_id", targetID,
		"from", domainauth.RoleStrings(before.Roles), "to", domainauth.RoleStrings(updated.Roles),
		"revoked_sessions", revoked)
	s.audit.record(ctx, model.AuditRoleChange, actor, targetID, map[string]any{
		"from":             domainauth.RoleStrings(before.Roles),
		"to":               domainauth.RoleStrings(updated.Roles),
		"revoked_sessions": revoked,
	})

	return &AssignRolesResult{Identity: updated, RequiresRelogin: true, RevokedSessions: revoked}, nil
}

// checkAssignment applies the self-demotion and escalation rules.
func checkAssignment(actor domainauth.IdentityContext, targetID string, roles []domainauth.Role) error {
	actorIsAdmin := domainauth.HasRole(actor.Roles, domainauth.RoleAdmin)

	if actor.UserID == targetID && actorIsAdmin && !domainauth.HasRole(roles, domainauth.RoleAdmin) {
		return apperrors.Forbidden("admins cannot remove their own admin role; ask another admin")
	}

	if !domainauth.CanManageRoles(actor.Roles, roles) {
		return apperrors.Forbidden("cannot assign a role at or above your own level")
	}
	return nil
}
