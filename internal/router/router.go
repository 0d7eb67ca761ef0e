package router

import (
	"net/http"
	"time"

	"Mansoor88-6/facility-sync-agent/internal/handler"

	"go.uber.org/zap"
)

type Handlers struct {
	Sync     *handler.SyncHandler
	Conflict *handler.ConflictHandler
	Liveness *handler.LivenessHandler
}

func New(h Handlers, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/api/v1/mutations", h.Sync.Mutate)
	mux.HandleFunc("/api/v1/entities/update", h.Sync.UpdateEntity)
	mux.HandleFunc("/api/v1/sync/status", h.Sync.Status)
	mux.HandleFunc("/api/v1/sync/flush", h.Sync.Flush)
	mux.HandleFunc("/api/v1/sync/retry-failed", h.Sync.RetryFailed)

	mux.HandleFunc("/api/v1/conflicts", h.Conflict.List)
	mux.HandleFunc("/api/v1/conflicts/resolve", h.Conflict.Resolve)
	mux.HandleFunc("/api/v1/conflicts/dismiss", h.Conflict.Dismiss)

	mux.HandleFunc("/api/v1/heartbeats", h.Liveness.Ingest)
	mux.HandleFunc("/api/v1/liveness", h.Liveness.Snapshot)

	return withLogging(withCORS(mux), logger)
}

// withCORS lets the console UI call the agent from its own origin
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func withLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
