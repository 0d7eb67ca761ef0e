package service

import (
	"context"
	"errors"
	"fmt"

	"Mansoor88-6/facility-sync-agent/internal/client"
	"Mansoor88-6/facility-sync-agent/internal/conflict"
	"Mansoor88-6/facility-sync-agent/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrOffline is returned for operations that need the backend
var ErrOffline = errors.New("backend is unreachable")

// EntityUpdater runs updates through conflict detection
type EntityUpdater interface {
	Update(ctx context.Context, kind models.EntityKind, local, changes models.Entity) (models.Entity, *conflict.Context, error)
	Lookup(kind models.EntityKind, id string) (*conflict.Context, bool)
}

// MutationResult tells the console what happened to a mutation
type MutationResult struct {
	Queued      bool              `json:"queued"`
	OperationID string            `json:"operation_id,omitempty"`
	Entity      models.Entity     `json:"entity,omitempty"`
	Conflict    *conflict.Context `json:"conflict,omitempty"`
}

func (s *SyncService) CreateVisitor(ctx context.Context, visitor map[string]any) (MutationResult, error) {
	return s.Submit(ctx, models.OpCreateVisitor, visitor)
}

func (s *SyncService) DeleteVisitor(ctx context.Context, visitorID string) (MutationResult, error) {
	return s.Submit(ctx, models.OpDeleteVisitor, map[string]any{"id": visitorID})
}

func (s *SyncService) CheckIn(ctx context.Context, visitorID string, details map[string]any) (MutationResult, error) {
	return s.Submit(ctx, models.OpCheckIn, withField(details, "visitor_id", visitorID))
}

func (s *SyncService) CheckOut(ctx context.Context, visitorID string, details map[string]any) (MutationResult, error) {
	return s.Submit(ctx, models.OpCheckOut, withField(details, "visitor_id", visitorID))
}

func (s *SyncService) CreateSecurityRequest(ctx context.Context, request map[string]any) (MutationResult, error) {
	return s.Submit(ctx, models.OpCreateSecurityRequest, request)
}

func (s *SyncService) CreateEvent(ctx context.Context, event map[string]any) (MutationResult, error) {
	return s.Submit(ctx, models.OpCreateEvent, event)
}

func (s *SyncService) DeleteEvent(ctx context.Context, eventID string) (MutationResult, error) {
	return s.Submit(ctx, models.OpDeleteEvent, map[string]any{"id": eventID})
}

// UpdateVisitor saves changes to a visitor the console last saw as local.
// Online, the update is checked for conflicts; offline, it is queued with the
// local version stamp.
func (s *SyncService) UpdateVisitor(ctx context.Context, local, changes models.Entity) (MutationResult, error) {
	if s.network.IsOnline() {
		return s.UpdateEntity(ctx, models.KindVisitor, local, changes)
	}

	id := local.ID()
	if id == "" {
		id = changes.ID()
	}
	if id == "" {
		return MutationResult{}, fmt.Errorf("update of visitor requires an id")
	}

	payload := map[string]any(changes.Clone())
	if payload == nil {
		payload = map[string]any{}
	}
	payload[models.FieldID] = id
	if stamp, ok := local[models.FieldUpdatedAt]; ok {
		payload[models.FieldUpdatedAt] = stamp
	}
	return s.enqueue(models.OpUpdateVisitor, payload), nil
}

// UpdateEntity applies changes online through the conflict resolver. Edits
// of an entity with an unresolved conflict are refused.
func (s *SyncService) UpdateEntity(ctx context.Context, kind models.EntityKind, local, changes models.Entity) (MutationResult, error) {
	if !s.network.IsOnline() {
		return MutationResult{}, ErrOffline
	}

	id := local.ID()
	if id == "" {
		id = changes.ID()
	}
	if cc, ok := s.resolver.Lookup(kind, id); ok {
		return MutationResult{Conflict: cc}, conflict.ErrConflictPending
	}

	updated, cc, err := s.resolver.Update(ctx, kind, local, changes)
	if err != nil {
		return MutationResult{Conflict: cc}, err
	}
	return MutationResult{Entity: updated}, nil
}

// Submit sends a mutation straight to the backend when online and queues it
// otherwise. A request that gets no response is queued as well.
func (s *SyncService) Submit(ctx context.Context, opType models.OperationType, payload map[string]any) (MutationResult, error) {
	if !opType.Valid() {
		return MutationResult{}, fmt.Errorf("unsupported operation type %q", opType)
	}

	if !s.network.IsOnline() {
		return s.enqueue(opType, payload), nil
	}

	op := models.QueuedOperation{
		ID:             uuid.NewString(),
		Type:           opType,
		Payload:        payload,
		QueuedAt:       s.now().UTC(),
		SyncStatus:     models.SyncPending,
		LastRetry:      models.EpochZero,
		IdempotencyKey: uuid.NewString(),
	}

	err := s.remote.Execute(ctx, op)
	if err == nil {
		return MutationResult{}, nil
	}

	var netErr *client.NetworkError
	if errors.As(err, &netErr) {
		s.logger.Warn("Backend unreachable, queuing mutation",
			zap.String("type", string(opType)),
			zap.Error(err),
		)
		// the backend may have applied it; the replay reuses the key
		id := s.queue.EnqueueOperation(op)
		s.sink.Success("Saved offline, will sync when the connection returns")
		return MutationResult{Queued: true, OperationID: id}, nil
	}

	s.logger.Warn("Mutation rejected by backend",
		zap.String("type", string(opType)),
		zap.Error(err),
	)
	return MutationResult{}, err
}

func (s *SyncService) enqueue(opType models.OperationType, payload map[string]any) MutationResult {
	id := s.queue.Enqueue(opType, payload)
	s.sink.Success("Saved offline, will sync when the connection returns")
	return MutationResult{Queued: true, OperationID: id}
}

func withField(m map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}
