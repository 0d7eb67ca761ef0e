package queue

import (
	"encoding/json"
	"sync"
	"time"

	"Mansoor88-6/facility-sync-agent/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// StorageKey is where the queue is kept in the key-value store
	StorageKey   = "offline_queue"
	MaxQueueSize = 100
	MaxRetries   = 5
)

// Storage is the durable key-value primitive the queue persists into
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// OperationQueue holds mutations captured while offline. The in-memory slice
// is authoritative; storage is written after every change on a best-effort basis.
type OperationQueue struct {
	storage Storage
	logger  *zap.Logger
	now     func() time.Time

	mu  sync.Mutex
	ops []models.QueuedOperation
}

// NewOperationQueue creates an empty queue; call Load to restore persisted entries
func NewOperationQueue(storage Storage, logger *zap.Logger) *OperationQueue {
	return &OperationQueue{
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// Load replaces the in-memory queue with the persisted one. Missing or
// malformed storage yields an empty queue.
func (q *OperationQueue) Load() []models.QueuedOperation {
	ops := q.read()

	q.mu.Lock()
	q.ops = ops
	out := q.snapshotLocked()
	q.mu.Unlock()

	q.logger.Info("Offline queue loaded", zap.Int("count", len(out)))
	return out
}

func (q *OperationQueue) read() []models.QueuedOperation {
	raw, found, err := q.storage.Get(StorageKey)
	if err != nil {
		q.logger.Warn("Failed to read offline queue, starting empty", zap.Error(err))
		return nil
	}
	if !found || raw == "" {
		return nil
	}

	var stored []models.QueuedOperation
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		q.logger.Warn("Persisted offline queue is malformed, starting empty", zap.Error(err))
		return nil
	}

	ops := make([]models.QueuedOperation, 0, len(stored))
	for _, op := range stored {
		if op.ID == "" || !op.Type.Valid() {
			q.logger.Warn("Dropping unreadable queued operation",
				zap.String("id", op.ID),
				zap.String("type", string(op.Type)),
			)
			continue
		}
		if op.SyncStatus == models.SyncSynced {
			continue
		}
		if op.LastRetry.IsZero() {
			op.LastRetry = models.EpochZero
		}
		if op.RetryCount < 0 {
			op.RetryCount = 0
		}
		if op.RetryCount >= MaxRetries {
			op.SyncStatus = models.SyncFailed
		} else {
			op.SyncStatus = models.SyncPending
		}
		if op.IdempotencyKey == "" {
			op.IdempotencyKey = op.ID
		}
		ops = append(ops, op)
	}

	if len(ops) > MaxQueueSize {
		ops = ops[len(ops)-MaxQueueSize:]
	}
	return ops
}

// Enqueue appends a pending operation, persists, and returns its id.
// Storage failures are logged, never returned.
func (q *OperationQueue) Enqueue(opType models.OperationType, payload map[string]any) string {
	return q.EnqueueOperation(models.QueuedOperation{
		Type:    opType,
		Payload: payload,
	})
}

// EnqueueOperation appends op as a fresh pending entry. An id or idempotency
// key already set on op is kept, so a replay goes out under the same key as
// an earlier direct attempt.
func (q *OperationQueue) EnqueueOperation(op models.QueuedOperation) string {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.IdempotencyKey == "" {
		op.IdempotencyKey = uuid.NewString()
	}
	if op.QueuedAt.IsZero() {
		op.QueuedAt = q.now().UTC()
	}
	op.SyncStatus = models.SyncPending
	op.RetryCount = 0
	op.LastRetry = models.EpochZero
	op = op.Clone()

	q.mu.Lock()
	q.ops = append(q.ops, op)
	q.persistLocked()
	q.mu.Unlock()

	q.logger.Debug("Operation queued",
		zap.String("id", op.ID),
		zap.String("type", string(op.Type)),
	)
	return op.ID
}

// List returns a copy of the current queue
func (q *OperationQueue) List() []models.QueuedOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Apply records the outcome of replay attempts. Entries are matched by id so
// operations enqueued during a flush are kept; synced entries are removed.
func (q *OperationQueue) Apply(results []models.QueuedOperation) {
	if len(results) == 0 {
		return
	}

	byID := make(map[string]models.QueuedOperation, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.ops[:0]
	for _, op := range q.ops {
		if r, ok := byID[op.ID]; ok {
			op = r
		}
		if op.SyncStatus == models.SyncSynced {
			continue
		}
		kept = append(kept, op)
	}
	q.ops = kept
	q.persistLocked()
}

// ResetFailed moves every failed entry back to pending with a fresh retry
// budget. It returns how many entries were reset and persists only if any were.
func (q *OperationQueue) ResetFailed() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for i := range q.ops {
		if q.ops[i].SyncStatus != models.SyncFailed {
			continue
		}
		q.ops[i].SyncStatus = models.SyncPending
		q.ops[i].RetryCount = 0
		q.ops[i].LastRetry = models.EpochZero
		q.ops[i].Error = ""
		count++
	}

	if count > 0 {
		q.persistLocked()
		q.logger.Info("Reset failed operations for retry", zap.Int("count", count))
	}
	return count
}

func (q *OperationQueue) PendingCount() int {
	return q.count(models.SyncPending)
}

func (q *OperationQueue) FailedCount() int {
	return q.count(models.SyncFailed)
}

func (q *OperationQueue) count(status models.SyncStatus) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, op := range q.ops {
		if op.SyncStatus == status {
			n++
		}
	}
	return n
}

// persistLocked trims the queue to MaxQueueSize, oldest first, and writes it
func (q *OperationQueue) persistLocked() {
	if overflow := len(q.ops) - MaxQueueSize; overflow > 0 {
		q.logger.Warn("Offline queue over capacity, dropping oldest operations",
			zap.Int("dropped", overflow),
			zap.Int("max_size", MaxQueueSize),
		)
		q.ops = append([]models.QueuedOperation(nil), q.ops[overflow:]...)
	}

	data, err := json.Marshal(q.ops)
	if err != nil {
		q.logger.Error("Failed to encode offline queue", zap.Error(err))
		return
	}

	if err := q.storage.Set(StorageKey, string(data)); err != nil {
		q.logger.Error("Failed to persist offline queue", zap.Error(err))
	}
}

func (q *OperationQueue) snapshotLocked() []models.QueuedOperation {
	out := make([]models.QueuedOperation, len(q.ops))
	for i, op := range q.ops {
		out[i] = op.Clone()
	}
	return out
}
