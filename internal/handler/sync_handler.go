package handler

import (
	"context"
	"errors"
	"net/http"

	"Mansoor88-6/facility-sync-agent/internal/client"
	"Mansoor88-6/facility-sync-agent/internal/conflict"
	"Mansoor88-6/facility-sync-agent/internal/models"
	"Mansoor88-6/facility-sync-agent/internal/service"

	"go.uber.org/zap"
)

// SyncAPI is the part of the sync service the console drives
type SyncAPI interface {
	Submit(ctx context.Context, opType models.OperationType, payload map[string]any) (service.MutationResult, error)
	UpdateVisitor(ctx context.Context, local, changes models.Entity) (service.MutationResult, error)
	UpdateEntity(ctx context.Context, kind models.EntityKind, local, changes models.Entity) (service.MutationResult, error)
	Status() service.Status
	Flush(ctx context.Context) service.FlushReport
	RetryFailed(ctx context.Context) service.FlushReport
}

type SyncHandler struct {
	sync   SyncAPI
	logger *zap.Logger
}

func NewSyncHandler(sync SyncAPI, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		sync:   sync,
		logger: logger,
	}
}

// MutationRequest carries one console mutation. Local is the entity as the
// console last saw it and is only used by update_visitor.
type MutationRequest struct {
	Type    models.OperationType `json:"type"`
	Payload map[string]any       `json:"payload"`
	Local   models.Entity        `json:"local,omitempty"`
}

// UpdateRequest is an online entity edit
type UpdateRequest struct {
	Kind    models.EntityKind `json:"kind"`
	Local   models.Entity     `json:"local"`
	Changes models.Entity     `json:"changes"`
}

func (h *SyncHandler) Mutate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req MutationRequest
	if !decode(w, r, &req, h.logger) {
		return
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "Unsupported mutation type")
		return
	}

	var (
		result service.MutationResult
		err    error
	)
	if req.Type == models.OpUpdateVisitor {
		local := req.Local
		if local == nil {
			local = models.Entity{models.FieldID: req.Payload[models.FieldID]}
		}
		changes := models.Entity(req.Payload).Clone()
		delete(changes, models.FieldID)
		result, err = h.sync.UpdateVisitor(r.Context(), local, changes)
	} else {
		result, err = h.sync.Submit(r.Context(), req.Type, req.Payload)
	}

	if err != nil {
		h.writeMutationError(w, result, err)
		return
	}

	status := http.StatusOK
	if result.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func (h *SyncHandler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UpdateRequest
	if !decode(w, r, &req, h.logger) {
		return
	}
	if req.Kind != models.KindVisitor && req.Kind != models.KindEvent {
		writeError(w, http.StatusBadRequest, "Unsupported entity kind")
		return
	}

	result, err := h.sync.UpdateEntity(r.Context(), req.Kind, req.Local, req.Changes)
	if err != nil {
		h.writeMutationError(w, result, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.sync.Status())
}

func (h *SyncHandler) Flush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.sync.Flush(r.Context()))
}

func (h *SyncHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.sync.RetryFailed(r.Context()))
}

func (h *SyncHandler) writeMutationError(w http.ResponseWriter, result service.MutationResult, err error) {
	var badRequest *client.BadRequestError

	switch {
	case errors.Is(err, conflict.ErrConflict), errors.Is(err, conflict.ErrConflictPending):
		writeJSON(w, http.StatusConflict, result)
	case errors.Is(err, service.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &badRequest):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("Mutation failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
