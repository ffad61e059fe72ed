package service

import (
	"context"
	"log/slog"
	"time"

	domainauth "github.com/wallmag/wallmag-api/internal/domain/auth"
	"github.com/wallmag/wallmag-api/internal/domain/model"
	"github.com/wallmag/wallmag-api/internal/ports"
)

// auditTimeout bounds a single audit write so it never holds up the caller.
const auditTimeout = 2 * time.Second

// auditRecorder writes audit events best-effort: failures are logged, never returned.
type auditRecorder struct {
	log    ports.AuditLog
	logger *slog.Logger
	now    func() time.Time
}

func (a auditRecorder) record(
	ctx context.Context,
	kind model.AuditKind,
	actor domainauth.IdentityContext,
	targetID string,
	details map[string]any,
) {
	if a.log == nil {
		return
	}
	ev := model.AuditEvent{
		Kind:       kind,
		ActorID:    actor.UserID,
		ActorEmail: actor.Email,
		TargetID:   targetID,
		Details:    details,
		At:         a.now().UTC(),
	}
	// Detach from request cancellation; the primary operation already succeeded.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := a.log.Record(actx, ev); err != nil {
		a.logger.Warn("failed to write audit event", "kind", kind, "actor_id", actor.UserID, "error", err)
	}
}
