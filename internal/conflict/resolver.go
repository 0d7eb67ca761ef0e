package conflict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"Mansoor88-6/facility-sync-agent/internal/client"
	"Mansoor88-6/facility-sync-agent/internal/models"
	"Mansoor88-6/facility-sync-agent/internal/notify"

	"go.uber.org/zap"
)

var (
	// ErrConflict is returned with the raised Context when an update is stale
	ErrConflict = errors.New("update conflicts with a newer server version")
	// ErrConflictPending refuses edits of an entity awaiting a resolution
	ErrConflictPending = errors.New("entity has an unresolved conflict")
	// ErrConflictSuperseded means the context was replaced or already resolved
	ErrConflictSuperseded = errors.New("conflict is no longer pending")
	// ErrConflictResolving means another resolution of the context is in flight
	ErrConflictResolving = errors.New("conflict is already being resolved")
)

// Remote reads and writes authoritative entities. UpdateEntity must return an
// error matching client.ErrVersionConflict when the server rejects the version.
type Remote interface {
	FetchEntity(ctx context.Context, kind models.EntityKind, id string) (models.Entity, error)
	UpdateEntity(ctx context.Context, kind models.EntityKind, id string, changes models.Entity) (models.Entity, error)
}

// Context describes a stale edit awaiting the user's decision
type Context struct {
	Kind         models.EntityKind `json:"kind"`
	EntityID     string            `json:"entity_id"`
	LocalEntity  models.Entity     `json:"local_entity"`
	ServerEntity models.Entity     `json:"server_entity"`
	LocalChanges models.Entity     `json:"local_changes"`
	DetectedAt   time.Time         `json:"detected_at"`
}

type entityKey struct {
	kind models.EntityKind
	id   string
}

// Resolver runs optimistic-concurrency checks for online updates and applies
// resolutions. At most one Context is pending per entity.
type Resolver struct {
	remote Remote
	sink   notify.Sink
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	cache     map[entityKey]models.Entity
	pending   map[entityKey]*Context
	resolving map[*Context]bool
}

func NewResolver(remote Remote, sink notify.Sink, logger *zap.Logger) *Resolver {
	return &Resolver{
		remote:    remote,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
		cache:     make(map[entityKey]models.Entity),
		pending:   make(map[entityKey]*Context),
		resolving: make(map[*Context]bool),
	}
}

// Remember records the latest server copy of an entity for stale checks
func (r *Resolver) Remember(kind models.EntityKind, entity models.Entity) {
	id := entity.ID()
	if id == "" {
		return
	}
	r.mu.Lock()
	r.cache[entityKey{kind, id}] = entity.Clone()
	r.mu.Unlock()
}

// Cached returns the remembered server copy, if any
func (r *Resolver) Cached(kind models.EntityKind, id string) (models.Entity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cache[entityKey{kind, id}]
	return e.Clone(), ok
}

// Update applies changes to the entity the caller last saw as local.
// A stale local copy raises a Context and returns ErrConflict.
func (r *Resolver) Update(ctx context.Context, kind models.EntityKind, local, changes models.Entity) (models.Entity, *Context, error) {
	id := local.ID()
	if id == "" {
		id = changes.ID()
	}
	if id == "" {
		return nil, nil, fmt.Errorf("update of %s requires an entity id", kind)
	}
	key := entityKey{kind, id}

	localStamp, hasStamp := local.UpdatedAt()
	if hasStamp {
		r.mu.Lock()
		cached, ok := r.cache[key]
		r.mu.Unlock()

		if ok {
			if cachedStamp, ok := cached.UpdatedAt(); ok && localStamp.Before(cachedStamp) {
				cc := r.raise(key, local, cached, changes, "stale local copy")
				return nil, cc, ErrConflict
			}
		}
	}

	body := changes.Clone()
	if body == nil {
		body = models.Entity{}
	}
	delete(body, models.FieldID)
	if hasStamp {
		body[models.FieldUpdatedAt] = local[models.FieldUpdatedAt]
	}

	updated, err := r.remote.UpdateEntity(ctx, kind, id, body)
	if errors.Is(err, client.ErrVersionConflict) {
		server, fetchErr := r.remote.FetchEntity(ctx, kind, id)
		if fetchErr != nil {
			r.logger.Error("Failed to fetch entity after version conflict",
				zap.String("kind", string(kind)),
				zap.String("id", id),
				zap.Error(fetchErr),
			)
			return nil, nil, fmt.Errorf("failed to fetch %s %s after conflict: %w", kind, id, fetchErr)
		}
		r.Remember(kind, server)
		cc := r.raise(key, local, server, changes, "rejected by server")
		return nil, cc, ErrConflict
	}
	if err != nil {
		return nil, nil, err
	}

	result := merged(local, body, updated)
	r.Remember(kind, result)
	return result, nil, nil
}

// Resolve applies a resolution to a pending context. Cancel always clears
// the context; Overwrite and Merge clear it only when the write succeeds.
func (r *Resolver) Resolve(ctx context.Context, cc *Context, res Resolution) (models.Entity, error) {
	if cc == nil || res == nil {
		return nil, fmt.Errorf("conflict context and resolution are required")
	}
	key := entityKey{cc.Kind, cc.EntityID}

	if err := r.claim(key, cc); err != nil {
		return nil, err
	}
	defer r.release(cc)

	logger := r.logger.With(
		zap.String("kind", string(cc.Kind)),
		zap.String("id", cc.EntityID),
		zap.String("resolution", res.String()),
	)

	var (
		result models.Entity
		err    error
	)

	switch res.(type) {
	case Cancel:
		r.clear(key, cc)
		result, err = r.remote.FetchEntity(ctx, cc.Kind, cc.EntityID)
		if err != nil {
			logger.Warn("Failed to refresh entity after cancel", zap.Error(err))
			return nil, err
		}
		r.Remember(cc.Kind, result)

	case Overwrite:
		body := cc.LocalChanges.Clone()
		if body == nil {
			body = models.Entity{}
		}
		delete(body, models.FieldID)
		body[models.FieldUpdatedAt] = models.FormatTimestamp(r.now())

		var updated models.Entity
		updated, err = r.remote.UpdateEntity(ctx, cc.Kind, cc.EntityID, body)
		if err != nil {
			logger.Warn("Overwrite failed", zap.Error(err))
			r.sink.Failure(fmt.Sprintf("Could not save %s %s", cc.Kind, cc.EntityID))
			return nil, err
		}
		result = merged(cc.ServerEntity, body, updated)
		r.clear(key, cc)
		r.Remember(cc.Kind, result)

	case Merge:
		var latest models.Entity
		latest, err = r.remote.FetchEntity(ctx, cc.Kind, cc.EntityID)
		if err != nil {
			logger.Warn("Failed to fetch entity for merge", zap.Error(err))
			return nil, err
		}

		body := merged(latest, cc.LocalChanges, nil)
		delete(body, models.FieldID)
		if stamp, ok := latest[models.FieldUpdatedAt]; ok {
			body[models.FieldUpdatedAt] = stamp
		}

		var updated models.Entity
		updated, err = r.remote.UpdateEntity(ctx, cc.Kind, cc.EntityID, body)
		if err != nil {
			logger.Warn("Merge failed", zap.Error(err))
			r.sink.Failure(fmt.Sprintf("Could not merge %s %s", cc.Kind, cc.EntityID))
			return nil, err
		}
		result = merged(latest, body, updated)
		r.clear(key, cc)
		r.Remember(cc.Kind, result)

	default:
		return nil, fmt.Errorf("unsupported resolution %T", res)
	}

	logger.Info("Conflict resolved")
	r.sink.Success(fmt.Sprintf("Conflict on %s %s resolved (%s)", cc.Kind, cc.EntityID, res))
	return result, nil
}

// claim marks cc as being resolved so a concurrent Resolve of the same
// context cannot reach the server twice
func (r *Resolver) claim(key entityKey, cc *Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending[key] != cc {
		return ErrConflictSuperseded
	}
	if r.resolving[cc] {
		return ErrConflictResolving
	}
	r.resolving[cc] = true
	return nil
}

func (r *Resolver) release(cc *Context) {
	r.mu.Lock()
	delete(r.resolving, cc)
	r.mu.Unlock()
}

// Dismiss drops a pending context without touching the server
func (r *Resolver) Dismiss(cc *Context) {
	if cc == nil {
		return
	}
	r.clear(entityKey{cc.Kind, cc.EntityID}, cc)
}

// Pending reports whether the entity has an unresolved conflict
func (r *Resolver) Pending(kind models.EntityKind, id string) bool {
	_, ok := r.Lookup(kind, id)
	return ok
}

// Lookup returns the pending context for an entity
func (r *Resolver) Lookup(kind models.EntityKind, id string) (*Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cc, ok := r.pending[entityKey{kind, id}]
	return cc, ok
}

// Contexts lists pending conflicts, oldest first
func (r *Resolver) Contexts() []*Context {
	r.mu.Lock()
	out := make([]*Context, 0, len(r.pending))
	for _, cc := range r.pending {
		out = append(out, cc)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})
	return out
}

// raise stores a new context for key, replacing any unresolved one
func (r *Resolver) raise(key entityKey, local, server, changes models.Entity, reason string) *Context {
	cc := &Context{
		Kind:         key.kind,
		EntityID:     key.id,
		LocalEntity:  local.Clone(),
		ServerEntity: server.Clone(),
		LocalChanges: changes.Clone(),
		DetectedAt:   r.now().UTC(),
	}

	r.mu.Lock()
	_, replaced := r.pending[key]
	r.pending[key] = cc
	r.mu.Unlock()

	r.logger.Warn("Update conflict detected",
		zap.String("kind", string(key.kind)),
		zap.String("id", key.id),
		zap.String("reason", reason),
		zap.Bool("replaced_pending", replaced),
		zap.Any("local_updated_at", local[models.FieldUpdatedAt]),
		zap.Any("server_updated_at", server[models.FieldUpdatedAt]),
	)
	r.sink.Failure(fmt.Sprintf("%s %s was changed by someone else", key.kind, key.id))
	return cc
}

func (r *Resolver) clear(key entityKey, cc *Context) {
	r.mu.Lock()
	if r.pending[key] == cc {
		delete(r.pending, key)
	}
	r.mu.Unlock()
}

// merged returns base overlaid with changes, or the server's response when it
// sent one back
func merged(base, changes, response models.Entity) models.Entity {
	if len(response) > 0 {
		return response.Clone()
	}
	out := base.Clone()
	if out == nil {
		out = models.Entity{}
	}
	for k, v := range changes {
		out[k] = v
	}
	return out
}
