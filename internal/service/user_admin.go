package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/domain/model"
	apperrors "github.com/wallmag/wallmag-api/internal/errors"
	"github.com/wallmag/wallmag-api/internal/ports"
)

// Lookup limits.
const (
	DefaultLookupLimit  = 50
	DefaultLookupWindow = time.Hour
	lookupMinQueryLen   = 2
	lookupMaxResults    = 10
	lookupRatePrefix    = "rate_limit:user_lookup:"
	defaultAuditListLen = 100
)

// UserAdminServiceOptions groups dependencies for UserAdminService.
type UserAdminServiceOptions struct {
	Users    ports.CredentialStore
	Sessions *SessionManager
	Audit    ports.AuditLog
	// Counters backs the per-actor lookup rate limit.
	Counters ports.KeyValueStore
	Logger   *slog.Logger

	LookupLimit  int
	LookupWindow time.Duration
}

// UserAdminService implements staff listing, user lookup, activation,
// session administration and the audit trail.
type UserAdminService struct {
	users        ports.CredentialStore
	sessions     *SessionManager
	auditLog     ports.AuditLog
	audit        auditRecorder
	counters     ports.KeyValueStore
	logger       *slog.Logger
	lookupLimit  int
	lookupWindow time.Duration
}

// NewUserAdminService constructs a new UserAdminService.
func NewUserAdminService(opts UserAdminServiceOptions) *UserAdminService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &UserAdminService{
		users:        opts.Users,
		sessions:     opts.Sessions,
		auditLog:     opts.Audit,
		audit:        auditRecorder{log: opts.Audit, logger: logger, now: time.Now},
		counters:     opts.Counters,
		logger:       logger,
		lookupLimit:  opts.LookupLimit,
		lookupWindow: opts.LookupWindow,
	}
	if s.lookupLimit <= 0 {
		s.lookupLimit = DefaultLookupLimit
	}
	if s.lookupWindow <= 0 {
		s.lookupWindow = DefaultLookupWindow
	}
	return s
}

// ListPrivileged returns active users holding editor or above. A non-empty
// role narrows the listing to that privileged role.
func (s *UserAdminService) ListPrivileged(ctx context.Context, role string) ([]*model.User, error) {
	roles := model.PrivilegedRoles()
	if strings.TrimSpace(role) != "" {
		r, err := domainauth.ParseRole(role)
		if err != nil || r.Level() < domainauth.RoleEditor.Level() {
			return nil, apperrors.ValidationField("role", "role must be one of editor, publisher, admin")
		}
		roles = []domainauth.Role{r}
	}
	users, err := s.users.List(ctx, model.UserListOptions{Roles: roles})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Lookup searches active users by email or name for role assignment.
// Each actor may run a limited number of lookups per window.
func (s *UserAdminService) Lookup(
	ctx context.Context,
	actor domainauth.IdentityContext,
	query string,
) ([]*model.User, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < lookupMinQueryLen {
		return nil, apperrors.ValidationField("q", fmt.Sprintf("query must be at least %d characters", lookupMinQueryLen))
	}

	if err := s.takeLookupToken(ctx, actor.UserID); err != nil {
		return nil, err
	}

	users, err := s.users.Search(ctx, query, lookupMaxResults)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	s.audit.record(ctx, model.AuditUserSearch, actor, "", map[string]any{
		"query":   query,
		"results": len(users),
	})
	return users, nil
}

func (s *UserAdminService) takeLookupToken(ctx context.Context, actorID string) error {
	if s.counters == nil {
		return nil
	}
	n, err := s.counters.IncrWithExpiry(ctx, lookupRatePrefix+actorID, s.lookupWindow)
	if err != nil {
		return fmt.Errorf("lookup rate limit: %w", err)
	}
	if n > int64(s.lookupLimit) {
		s.logger.Warn("user lookup rate limit exceeded", "actor_id", actorID, "count", n)
		return apperrors.RateLimited("too many user lookups, try again later")
	}
	return nil
}

// SetActiveResult is returned by SetActive.
type SetActiveResult struct {
	User            *model.User `json:"user"`
	RevokedSessions int         `json:"revoked_sessions"`
}

// SetActive activates or deactivates a user. Deactivation revokes every
// session of the user. Actors cannot deactivate themselves.
func (s *UserAdminService) SetActive(
	ctx context.Context,
	actor domainauth.IdentityContext,
	targetID string,
	active bool,
) (*SetActiveResult, error) {
	if !active && actor.UserID == targetID {
		return nil, apperrors.Forbidden("you cannot deactivate your own account")
	}

	user, err := s.users.SetActive(ctx, targetID, active)
	if err != nil {
		return nil, err
	}

	revoked := 0
	if !active {
		revoked, err = s.sessions.RevokeAllFor(ctx, targetID, RevokeReasonDeactivate)
		if err != nil {
			return nil, fmt.Errorf("revoke sessions: %w", err)
		}
	}

	s.audit.record(ctx, model.AuditUserActivation, actor, targetID, map[string]any{
		"active":           active,
		"revoked_sessions": revoked,
	})
	return &SetActiveResult{User: user, RevokedSessions: revoked}, nil
}

// ListSessions returns the live sessions of an existing user.
func (s *UserAdminService) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.sessions.ListSessions(ctx, userID)
}

// RevokeSessions signs an existing user out everywhere.
func (s *UserAdminService) RevokeSessions(
	ctx context.Context,
	actor domainauth.IdentityContext,
	userID string,
) (int, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return 0, err
	}
	n, err := s.sessions.RevokeAllFor(ctx, userID, RevokeReasonAdmin)
	if err != nil {
		return n, err
	}
	s.audit.record(ctx, model.AuditSessionsRevoke, actor, userID, map[string]any{"revoked_sessions": n})
	return n, nil
}

// ListAudit returns recent events of kind, newest first.
func (s *UserAdminService) ListAudit(ctx context.Context, kind string, limit int) ([]model.AuditEvent, error) {
	k, ok := model.ParseAuditKind(kind)
	if !ok {
		return nil, apperrors.ValidationField("kind", "unknown audit kind")
	}
	if limit <= 0 || limit > defaultAuditListLen {
		limit = defaultAuditListLen
	}
	if s.auditLog == nil {
		return []model.AuditEvent{}, nil
	}
	events, err := s.auditLog.List(ctx, k, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}
