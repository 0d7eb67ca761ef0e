package collector

import (
	"sync"
	"testing"
	"time"

	"Mansoor88-6/facility-sync-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]models.Heartbeat
}

func (r *batchRecorder) record(batch []models.Heartbeat) {
	r.mu.Lock()
	r.batches = append(r.batches, batch)
	r.mu.Unlock()
}

func (r *batchRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestFlushOnBatchSize(t *testing.T) {
	rec := &batchRecorder{}
	c := NewHeartbeatCollector(2, time.Hour, zaptest.NewLogger(t))
	c.Start(rec.record)
	defer c.Stop()

	c.Add(models.Heartbeat{ID: "reader-1"})
	assert.Equal(t, 0, rec.count())
	assert.Equal(t, 1, c.PendingCount())

	c.Add(models.Heartbeat{ID: "reader-2"})
	require.Equal(t, 1, rec.count())
	assert.Len(t, rec.batches[0], 2)
	assert.Equal(t, 0, c.PendingCount())
}

func TestFlushOnInterval(t *testing.T) {
	rec := &batchRecorder{}
	c := NewHeartbeatCollector(50, 20*time.Millisecond, zaptest.NewLogger(t))
	c.Start(rec.record)
	defer c.Stop()

	c.Add(models.Heartbeat{ID: "reader-1"})

	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStopFlushesRemainder(t *testing.T) {
	rec := &batchRecorder{}
	c := NewHeartbeatCollector(50, time.Hour, zaptest.NewLogger(t))
	c.Start(rec.record)

	c.Add(models.Heartbeat{ID: "reader-1"})
	c.Stop()
	c.Stop()

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "reader-1", rec.batches[0][0].ID)
}

func TestFlushEmptyIsNoop(t *testing.T) {
	rec := &batchRecorder{}
	c := NewHeartbeatCollector(50, time.Hour, zaptest.NewLogger(t))
	c.Start(rec.record)
	defer c.Stop()

	c.Flush()
	assert.Equal(t, 0, rec.count())
}
