package handler

import (
	"context"
	"errors"
	"net/http"

	"Mansoor88-6/facility-sync-agent/internal/conflict"
	"Mansoor88-6/facility-sync-agent/internal/models"

	"go.uber.org/zap"
)

// ConflictAPI exposes pending conflicts and their resolution
type ConflictAPI interface {
	Contexts() []*conflict.Context
	Lookup(kind models.EntityKind, id string) (*conflict.Context, bool)
	Resolve(ctx context.Context, cc *conflict.Context, res conflict.Resolution) (models.Entity, error)
	Dismiss(cc *conflict.Context)
}

type ConflictHandler struct {
	resolver ConflictAPI
	logger   *zap.Logger
}

func NewConflictHandler(resolver ConflictAPI, logger *zap.Logger) *ConflictHandler {
	return &ConflictHandler{
		resolver: resolver,
		logger:   logger,
	}
}

type ResolveRequest struct {
	Kind   models.EntityKind `json:"kind"`
	ID     string            `json:"id"`
	Action string            `json:"action"`
}

func (h *ConflictHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.resolver.Contexts())
}

func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ResolveRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	res, err := conflict.ParseResolution(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cc, ok := h.resolver.Lookup(req.Kind, req.ID)
	if !ok {
		writeError(w, http.StatusNotFound, "No pending conflict for entity")
		return
	}

	entity, err := h.resolver.Resolve(r.Context(), cc, res)
	if errors.Is(err, conflict.ErrConflictSuperseded) || errors.Is(err, conflict.ErrConflictResolving) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to resolve conflict",
			zap.String("kind", string(req.Kind)),
			zap.String("id", req.ID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, entity)
}

type DismissRequest struct {
	Kind models.EntityKind `json:"kind"`
	ID   string            `json:"id"`
}

// Dismiss drops the pending conflict of an entity; the server copy is left as is
func (h *ConflictHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DismissRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	cc, ok := h.resolver.Lookup(req.Kind, req.ID)
	if !ok {
		writeError(w, http.StatusNotFound, "No pending conflict for entity")
		return
	}

	h.resolver.Dismiss(cc)
	h.logger.Info("Conflict dismissed",
		zap.String("kind", string(req.Kind)),
		zap.String("id", req.ID),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}
