//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"strings"
	"time"
)

// AuditKind identifies a class of audit event.
type AuditKind string

const (
	AuditRoleChange     AuditKind = "role_change"
	AuditUserSearch     AuditKind = "user_search"
	AuditSessionsRevoke AuditKind = "sessions_revoke"
	AuditUserActivation AuditKind = "user_activation"
)

// ParseAuditKind normalizes value and reports whether it names a known kind.
func ParseAuditKind(value string) (AuditKind, bool) {
	k := AuditKind(strings.ToLower(strings.TrimSpace(value)))
	switch k {
	case AuditRoleChange, AuditUserSearch, AuditSessionsRevoke, AuditUserActivation:
		return k, true
	default:
		return "", false
	}
}

// Retention returns how long events of kind k are kept.
func (k AuditKind) Retention() time.Duration {
	const day = 24 * time.Hour
	switch k {
	case AuditRoleChange, AuditUserActivation:
		return 90 * day
	default:
		return 30 * day
	}
}

// AuditEvent is a single entry in the security log.
type AuditEvent struct {
	ID         string         `json:"id"`
	Kind       AuditKind      `json:"kind"`
	ActorID    string         `json:"actor_id"`
	ActorEmail string         `json:"actor_email,omitempty"`
	TargetID   string         `json:"target_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	At         time.Time      `json:"at"`
}
