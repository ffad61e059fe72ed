package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/wallmag/wallmag-api/internal/domain/model"
	"github.com/wallmag/wallmag-api/internal/ports"
)

const auditPrefix = "audit:"

// AuditLog stores audit events as individual expiring keys named
// audit:<kind>:<ulid>. ULIDs sort by creation time, so listing is a key sort.
type AuditLog struct {
	client redis.UniversalClient
}

var _ ports.AuditLog = (*AuditLog)(nil)

// NewAuditLog creates a Redis-backed audit log.
func NewAuditLog(client redis.UniversalClient) *AuditLog {
	return &AuditLog{client: client}
}

// Record assigns an id to ev when missing and writes it with the kind's retention.
func (a *AuditLog) Record(ctx context.Context, ev model.AuditEvent) error {
	if ev.Kind == "" {
		return errors.New("audit event kind is required")
	}
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	key := auditPrefix + string(ev.Kind) + ":" + ev.ID
	if err := a.client.Set(ctx, key, data, ev.Kind.Retention()).Err(); err != nil {
		return fmt.Errorf("redis set audit: %w", err)
	}
	return nil
}

// List returns up to limit events of kind, newest first.
func (a *AuditLog) List(ctx context.Context, kind model.AuditKind, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	prefix := auditPrefix + string(kind) + ":"
	var keys []string
	iter := a.client.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan audit: %w", err)
	}
	if len(keys) == 0 {
		return []model.AuditEvent{}, nil
	}

	slices.SortFunc(keys, func(x, y string) int { return strings.Compare(y, x) })
	if len(keys) > limit {
		keys = keys[:limit]
	}

	vals, err := a.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget audit: %w", err)
	}

	out := make([]model.AuditEvent, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		var ev model.AuditEvent
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal audit event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}
