package repository

import (
	"context"
	"testing"

	"Mansoor88-6/facility-sync-agent/internal/database"
	"Mansoor88-6/facility-sync-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestKVRepository(t *testing.T) {
	repo := NewKVRepository(newTestDB(t).DB)

	_, found, err := repo.Get("offline_queue")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.Set("offline_queue", "[]"))
	require.NoError(t, repo.Set("offline_queue", `[{"id":"a"}]`))

	value, found, err := repo.Get("offline_queue")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[{"id":"a"}]`, value)

	require.NoError(t, repo.Delete("offline_queue"))
	_, found, err = repo.Get("offline_queue")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPeerRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPeerRepository(newTestDB(t).DB)

	err := repo.SaveHeartbeats(ctx, []models.Heartbeat{
		{ID: "reader-1", Kind: models.PeerDevice, Timestamp: "2026-10-15T09:00:00Z"},
		{ID: "agent-7", Kind: models.PeerAgent, Timestamp: "2026-10-15T09:01:00Z"},
	})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, "reader-1", models.StatusOnline))

	err = repo.SaveHeartbeats(ctx, []models.Heartbeat{
		{ID: "reader-1", Kind: models.PeerDevice, Timestamp: "2026-10-15T09:05:00Z"},
	})
	require.NoError(t, err)

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "agent-7", records[0].ID)
	assert.Equal(t, models.StatusOffline, records[0].Status)
	assert.Equal(t, models.PeerAgent, records[0].Kind)

	assert.Equal(t, "reader-1", records[1].ID)
	assert.Equal(t, "2026-10-15T09:05:00Z", records[1].LastHeartbeat)
	// a newer heartbeat must not reset a status the monitor already decided
	assert.Equal(t, models.StatusOnline, records[1].Status)

	assert.Error(t, repo.UpdateStatus(ctx, "ghost", models.StatusOnline))
}

func TestPeerRepositoryKeepsNewestHeartbeat(t *testing.T) {
	ctx := context.Background()
	repo := NewPeerRepository(newTestDB(t).DB)

	require.NoError(t, repo.SaveHeartbeats(ctx, []models.Heartbeat{
		{ID: "reader-1", Kind: models.PeerDevice, Timestamp: "2026-10-15T11:59:00Z"},
	}))
	// older, then the same instant written with an offset
	require.NoError(t, repo.SaveHeartbeats(ctx, []models.Heartbeat{
		{ID: "reader-1", Kind: models.PeerDevice, Timestamp: "2026-10-15T11:40:00Z"},
		{ID: "reader-1", Kind: models.PeerDevice, Timestamp: "2026-10-15T13:59:00+02:00"},
	}))

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2026-10-15T11:59:00Z", records[0].LastHeartbeat)

	require.NoError(t, repo.SaveHeartbeats(ctx, []models.Heartbeat{
		{ID: "reader-1", Kind: models.PeerDevice, Timestamp: "garbled"},
	}))
	records, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "garbled", records[0].LastHeartbeat)

	require.NoError(t, repo.SaveHeartbeats(ctx, []models.Heartbeat{
		{ID: "reader-1", Kind: models.PeerDevice, Timestamp: "2026-10-15T11:30:00Z"},
	}))
	records, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-15T11:30:00Z", records[0].LastHeartbeat)
}
