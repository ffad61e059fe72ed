package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wallmag/wallmag-api/internal/domain/model"
)

func TestAuditLog_RecordAndList(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	log := NewAuditLog(client)
	ctx := context.Background()

	for _, target := range []string{"u1", "u2", "u3"} {
		require.NoError(t, log.Record(ctx, model.AuditEvent{
			Kind:     model.AuditRoleChange,
			ActorID:  "admin",
			TargetID: target,
			At:       time.Now().UTC(),
		}))
	}
	require.NoError(t, log.Record(ctx, model.AuditEvent{Kind: model.AuditUserSearch, ActorID: "admin"}))

	events, err := log.List(ctx, model.AuditRoleChange, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "u3", events[0].TargetID)
	assert.Equal(t, "u2", events[1].TargetID)
	assert.NotEmpty(t, events[0].ID)

	ttl, err := client.TTL(ctx, "audit:role_change:"+events[0].ID).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 89*24*time.Hour)

	searches, err := log.List(ctx, model.AuditUserSearch, 10)
	require.NoError(t, err)
	assert.Len(t, searches, 1)
}

func TestAuditLog_ListEmpty(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	events, err := NewAuditLog(client).List(context.Background(), model.AuditSessionsRevoke, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAuditLog_RecordRequiresKind(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	err := NewAuditLog(client).Record(context.Background(), model.AuditEvent{ActorID: "a"})
	assert.Error(t, err)
}
