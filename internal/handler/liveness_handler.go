package handler

import (
	"net/http"

	"Mansoor88-6/facility-sync-agent/internal/models"

	"go.uber.org/zap"
)

// HeartbeatSink accepts heartbeats for batching
type HeartbeatSink interface {
	Add(hb models.Heartbeat)
}

// LivenessView exposes the current device and agent status
type LivenessView interface {
	Snapshot() map[string]models.LivenessSnapshot
}

type LivenessHandler struct {
	sink   HeartbeatSink
	view   LivenessView
	logger *zap.Logger
}

func NewLivenessHandler(sink HeartbeatSink, view LivenessView, logger *zap.Logger) *LivenessHandler {
	return &LivenessHandler{
		sink:   sink,
		view:   view,
		logger: logger,
	}
}

// HeartbeatRequest holds either one heartbeat or a batch
type HeartbeatRequest struct {
	models.Heartbeat
	Heartbeats []models.Heartbeat `json:"heartbeats,omitempty"`
}

func (h *LivenessHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req HeartbeatRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	batch := req.Heartbeats
	if req.ID != "" {
		batch = append(batch, req.Heartbeat)
	}
	if len(batch) == 0 {
		writeError(w, http.StatusBadRequest, "No heartbeats in request")
		return
	}

	for _, hb := range batch {
		if hb.ID == "" {
			writeError(w, http.StatusBadRequest, "Heartbeat id is required")
			return
		}
	}
	for _, hb := range batch {
		h.sink.Add(hb)
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(batch)})
}

func (h *LivenessHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.view.Snapshot())
}
