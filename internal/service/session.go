package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/domain/model"
	apperrors "github.com/wallmag/wallmag-api/internal/errors"
	"github.com/wallmag/wallmag-api/internal/observability/metrics"
	"github.com/wallmag/wallmag-api/internal/ports"
	"golang.org/x/sync/errgroup"
)

// Registry key prefixes and blacklist markers.
const (
	registryPrefix  = "session:jti:"
	blacklistPrefix = "token:blacklist:"
	gracePrefix     = "token:grace:"

	blacklistRevoked  = "1"
	blacklistRotating = "rotating"
)

// Session defaults applied when options leave a field zero.
const (
	DefaultRevocationTTL     = time.Hour
	DefaultRotationGrace     = 30 * time.Second
	DefaultStoreTimeout      = 3 * time.Second
	defaultRevokeConcurrency = 8
)

// Revocation reasons used for metrics and logs.
const (
	RevokeReasonLogout     = "logout"
	RevokeReasonRoleChange = "role_change"
	RevokeReasonAdmin      = "admin"
	RevokeReasonDeactivate = "deactivate"
)

func registryKey(sessionID string) string  { return registryPrefix + sessionID }
func blacklistKey(sessionID string) string { return blacklistPrefix + sessionID }
func graceKey(sessionID string) string     { return gracePrefix + sessionID }

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	Codec    ports.TokenCodec
	Registry ports.KeyValueStore
	Users    ports.IdentityStore

	RevocationTTL time.Duration
	RotationGrace time.Duration
	StoreTimeout  time.Duration
	// RevokeConcurrency bounds parallel revocations in RevokeAll.
	RevokeConcurrency int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// SessionManager owns the session registry: it issues, validates, rotates and
// revokes sessions. It holds no mutable state and is safe for concurrent use.
type SessionManager struct {
	codec    ports.TokenCodec
	registry ports.KeyValueStore
	users    ports.IdentityStore

	revocationTTL     time.Duration
	rotationGrace     time.Duration
	storeTimeout      time.Duration
	revokeConcurrency int

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// IssuedSession is a freshly signed token with its claims.
type IssuedSession struct {
	Token  string
	Claims domainauth.SessionClaims
}

// SessionInfo describes a live registry entry.
type SessionInfo struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Rotating  bool   `json:"rotating"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	m := &SessionManager{
		codec:             opts.Codec,
		registry:          opts.Registry,
		users:             opts.Users,
		revocationTTL:     opts.RevocationTTL,
		rotationGrace:     opts.RotationGrace,
		storeTimeout:      opts.StoreTimeout,
		revokeConcurrency: opts.RevokeConcurrency,
		logger:            opts.Logger,
		metrics:           opts.Metrics,
		now:               opts.Now,
	}
	if m.revocationTTL <= 0 {
		m.revocationTTL = DefaultRevocationTTL
	}
	if m.rotationGrace <= 0 {
		m.rotationGrace = DefaultRotationGrace
	}
	if m.storeTimeout <= 0 {
		m.storeTimeout = DefaultStoreTimeout
	}
	if m.revokeConcurrency <= 0 {
		m.revokeConcurrency = defaultRevokeConcurrency
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// RevocationTTL returns the configured hard blacklist lifetime.
func (m *SessionManager) RevocationTTL() time.Duration { return m.revocationTTL }

func (m *SessionManager) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.storeTimeout)
}

// infra wraps a store failure as a fail-closed infrastructure error.
func (m *SessionManager) infra(op string, err error) error {
	m.metrics.StoreError(err)
	m.logger.Error("session store failure", "op", op, "error", err)
	return domainauth.NewError(domainauth.KindInfrastructure, err)
}

func (m *SessionManager) get(ctx context.Context, key string) (string, bool, error) {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	v, err := m.registry.Get(sctx, key)
	if errors.Is(err, ports.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (m *SessionManager) set(ctx context.Context, key, value string, ttl time.Duration) error {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	return m.registry.Set(sctx, key, value, ttl)
}

func (m *SessionManager) del(ctx context.Context, keys ...string) error {
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	return m.registry.Delete(sctx, keys...)
}

// Issue signs a token for user and registers its session id with the token's lifetime.
// The last-login timestamp is updated best-effort.
func (m *SessionManager) Issue(ctx context.Context, user *model.User) (IssuedSession, error) {
	if user == nil {
		return IssuedSession{}, errors.New("user is required")
	}
	if !user.Active {
		return IssuedSession{}, domainauth.NewError(domainauth.KindAccountInactive, nil)
	}

	token, claims, err := m.codec.Issue(ports.IssueInput{UserID: user.ID, Email: user.Email, Roles: user.Roles})
	if err != nil {
		return IssuedSession{}, err
	}

	ttl := claims.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return IssuedSession{}, errors.New("issued token is already expired")
	}
	if err := m.set(ctx, registryKey(claims.SessionID), claims.UserID, ttl); err != nil {
		return IssuedSession{}, m.infra("register", err)
	}
	m.metrics.Issued()

	uctx, cancel := m.storeCtx(ctx)
	defer cancel()
	if err := m.users.UpdateLastLogin(uctx, user.ID, m.now()); err != nil {
		m.logger.Warn("failed to update last login", "user_id", user.ID, "error", err)
	}

	return IssuedSession{Token: token, Claims: claims}, nil
}

// Validate verifies token and the session state and returns the identity with
// roles read from the credential store. Store failures fail closed.
func (m *SessionManager) Validate(ctx context.Context, token string) (domainauth.IdentityContext, error) {
	ident, _, err := m.validate(ctx, token)
	if err != nil {
		m.metrics.Validation(string(domainauth.KindOf(err)))
		return domainauth.IdentityContext{}, err
	}
	m.metrics.Validation("ok")
	return ident, nil
}

// validate also reports whether the session is inside a rotation grace window.
func (m *SessionManager) validate(ctx context.Context, token string) (domainauth.IdentityContext, bool, error) {
	if strings.TrimSpace(token) == "" {
		return domainauth.IdentityContext{}, false, domainauth.NewError(domainauth.KindUnauthenticated, nil)
	}

	claims, err := m.codec.Verify(token)
	if err != nil {
		return domainauth.IdentityContext{}, false, err
	}
	sid := claims.SessionID

	rotating, err := m.checkSessionState(ctx, claims)
	if err != nil {
		return domainauth.IdentityContext{}, false, err
	}

	uctx, cancel := m.storeCtx(ctx)
	defer cancel()
	user, err := m.users.GetByID(uctx, claims.UserID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return domainauth.IdentityContext{}, false, domainauth.NewError(domainauth.KindIdentityNotFound, err)
		}
		return domainauth.IdentityContext{}, false, m.infra("get_user", err)
	}
	if !user.Active {
		return domainauth.IdentityContext{}, false, domainauth.NewError(domainauth.KindAccountInactive, nil)
	}

	return domainauth.IdentityContext{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Roles:     domainauth.NormalizeRoles(user.Roles),
		SessionID: sid,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}, rotating, nil
}

// checkSessionState applies the blacklist, grace and registry rules.
func (m *SessionManager) checkSessionState(ctx context.Context, claims domainauth.SessionClaims) (bool, error) {
	sid := claims.SessionID

	mark, blacklisted, err := m.get(ctx, blacklistKey(sid))
	if err != nil {
		return false, m.infra("get_blacklist", err)
	}
	if blacklisted {
		if mark != blacklistRotating {
			// Any marker other than "rotating" is a hard revoke.
			if delErr := m.del(ctx, registryKey(sid)); delErr != nil {
				m.logger.Warn("failed to delete revoked session entry", "session_id", sid, "error", delErr)
			}
			return false, domainauth.NewError(domainauth.KindSessionRevoked, nil)
		}
		_, inGrace, gerr := m.get(ctx, graceKey(sid))
		if gerr != nil {
			return false, m.infra("get_grace", gerr)
		}
		if !inGrace {
			return false, domainauth.NewError(domainauth.KindSessionExpired, nil)
		}
		return true, nil
	}

	owner, live, err := m.get(ctx, registryKey(sid))
	if err != nil {
		return false, m.infra("get_registry", err)
	}
	if !live {
		return false, domainauth.NewError(domainauth.KindSessionExpired, nil)
	}
	if owner != claims.UserID {
		return false, domainauth.NewError(domainauth.KindTokenInvalid, errors.New("session bound to another identity"))
	}
	return false, nil
}

// Revoke hard-blacklists sessionID for ttl and removes its registry entry.
// reason labels the revocation metric (one of the RevokeReason values).
// A non-positive ttl uses the configured revocation TTL. Calling it twice is harmless.
func (m *SessionManager) Revoke(ctx context.Context, sessionID, reason string, ttl time.Duration) error {
	if err := m.revoke(ctx, sessionID, ttl); err != nil {
		return err
	}
	m.metrics.Revoked(reason, 1)
	return nil
}

func (m *SessionManager) revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("session id is required")
	}
	if ttl <= 0 {
		ttl = m.revocationTTL
	}
	if err := m.set(ctx, blacklistKey(sessionID), blacklistRevoked, ttl); err != nil {
		return m.infra("set_blacklist", err)
	}
	if err := m.del(ctx, registryKey(sessionID), graceKey(sessionID)); err != nil {
		return m.infra("delete_registry", err)
	}
	return nil
}

// RevokeToken revokes the session carried by token. Tokens that fail
// verification have nothing to revoke and are ignored.
func (m *SessionManager) RevokeToken(ctx context.Context, token string) error {
	claims, err := m.codec.Verify(token)
	if err != nil {
		return nil //nolint:nilerr // an unverifiable token names no session
	}
	return m.Revoke(ctx, claims.SessionID, RevokeReasonLogout, m.revocationTTL)
}

// RevokeAll revokes every live session bound to userID and returns how many were revoked.
func (m *SessionManager) RevokeAll(ctx context.Context, userID string) (int, error) {
	return m.revokeAll(ctx, userID, RevokeReasonAdmin)
}

// RevokeAllFor is RevokeAll with an explicit reason label.
func (m *SessionManager) RevokeAllFor(ctx context.Context, userID, reason string) (int, error) {
	return m.revokeAll(ctx, userID, reason)
}

func (m *SessionManager) revokeAll(ctx context.Context, userID, reason string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, errors.New("user id is required")
	}

	sessions, err := m.ListSessions(ctx, userID)
	if err != nil {
		return 0, err
	}

	var revoked atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.revokeConcurrency)
	for _, s := range sessions {
		g.Go(func() error {
			if err := m.revoke(gctx, s.SessionID, m.revocationTTL); err != nil {
				return err
			}
			revoked.Add(1)
			return nil
		})
	}
	werr := g.Wait()

	n := int(revoked.Load())
	m.metrics.Revoked(reason, n)
	m.logger.Info("revoked sessions", "user_id", userID, "count", n, "reason", reason)
	return n, werr
}

// abandon revokes a session whose token never reached the caller.
func (m *SessionManager) abandon(ctx context.Context, sessionID string) {
	if err := m.revoke(ctx, sessionID, m.revocationTTL); err != nil {
		m.logger.Warn("failed to revoke abandoned session", "session_id", sessionID, "error", err)
	}
}

// ListSessions returns the live registry entries bound to userID.
func (m *SessionManager) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	var keys []string
	sctx, cancel := m.storeCtx(ctx)
	err := m.registry.Scan(sctx, registryPrefix, func(key string) error {
		keys = append(keys, key)
		return nil
	})
	cancel()
	if err != nil {
		return nil, m.infra("scan_registry", err)
	}

	out := make([]SessionInfo, 0)
	for _, key := range keys {
		owner, ok, gerr := m.get(ctx, key)
		if gerr != nil {
			return nil, m.infra("get_registry", gerr)
		}
		if !ok || owner != userID {
			continue
		}
		sid := strings.TrimPrefix(key, registryPrefix)
		mark, _, gerr := m.get(ctx, blacklistKey(sid))
		if gerr != nil {
			return nil, m.infra("get_blacklist", gerr)
		}
		out = append(out, SessionInfo{SessionID: sid, UserID: owner, Rotating: mark == blacklistRotating})
	}
	return out, nil
}

// Rotate validates token and replaces it with a new session for the same
// identity. The old token keeps working for the rotation grace window.
// A token that is already rotating cannot be rotated again.
func (m *SessionManager) Rotate(ctx context.Context, token string) (IssuedSession, error) {
	ident, rotating, err := m.validate(ctx, token)
	if err != nil {
		return IssuedSession{}, err
	}
	if rotating {
		return IssuedSession{}, domainauth.NewError(domainauth.KindSessionExpired, errors.New("session already rotated"))
	}

	next, err := m.Issue(ctx, &model.User{ID: ident.UserID, Email: ident.Email, Roles: ident.Roles, Active: true})
	if err != nil {
		return IssuedSession{}, err
	}

	// The grace marker goes first: a rotating marker without it reads as expired.
	old := ident.SessionID
	steps := []struct {
		op, key, value string
		ttl            time.Duration
	}{
		{"set_grace", graceKey(old), "1", m.rotationGrace},
		{"set_blacklist", blacklistKey(old), blacklistRotating, m.revocationTTL},
		// Keep the old entry discoverable by RevokeAll until the grace window ends.
		{"shorten_registry", registryKey(old), ident.UserID, m.rotationGrace},
	}
	for _, st := range steps {
		if err := m.set(ctx, st.key, st.value, st.ttl); err != nil {
			m.abandon(ctx, next.Claims.SessionID)
			return IssuedSession{}, m.infra(st.op, err)
		}
	}

	m.metrics.Rotated()
	return next, nil
}
