package liveness

import (
	"context"
	"sort"
	"sync"
	"time"

	"Mansoor88-6/facility-sync-agent/internal/models"

	"go.uber.org/zap"
)

// Store persists liveness rows
type Store interface {
	List(ctx context.Context) ([]models.DeviceLivenessRecord, error)
	SaveHeartbeats(ctx context.Context, heartbeats []models.Heartbeat) error
	UpdateStatus(ctx context.Context, id string, status models.LivenessStatus) error
}

// Transition is a status change produced by Recompute
type Transition struct {
	ID   string
	Kind models.PeerKind
	From models.LivenessStatus
	To   models.LivenessStatus
}

// Monitor derives online/offline status for devices and agents from the age
// of their last heartbeat. Status is only recomputed on its own timer.
type Monitor struct {
	store      Store
	thresholds map[models.PeerKind]time.Duration
	interval   time.Duration
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.RWMutex
	records   map[string]*models.DeviceLivenessRecord
	malformed map[string]string

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a new liveness monitor
func NewMonitor(
	store Store,
	interval time.Duration,
	deviceThreshold time.Duration,
	agentThreshold time.Duration,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		store: store,
		thresholds: map[models.PeerKind]time.Duration{
			models.PeerDevice: deviceThreshold,
			models.PeerAgent:  agentThreshold,
		},
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		records:   make(map[string]*models.DeviceLivenessRecord),
		malformed: make(map[string]string),
		stopChan:  make(chan struct{}),
	}
}

// Load restores records saved by a previous run
func (m *Monitor) Load(ctx context.Context) error {
	records, err := m.store.List(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	for _, rec := range records {
		r := rec
		m.records[r.ID] = &r
	}
	m.mu.Unlock()

	m.logger.Info("Liveness records loaded", zap.Int("count", len(records)))
	return nil
}

// Track registers a record, replacing any record with the same id. A record
// without a heartbeat is always offline.
func (m *Monitor) Track(rec models.DeviceLivenessRecord) {
	m.mu.Lock()
	m.trackLocked(rec)
	m.mu.Unlock()
}

func (m *Monitor) trackLocked(rec models.DeviceLivenessRecord) *models.DeviceLivenessRecord {
	if rec.ID == "" {
		return nil
	}
	if rec.Kind == "" {
		rec.Kind = models.PeerDevice
	}
	if rec.Status == "" || rec.LastHeartbeat == "" {
		rec.Status = models.StatusOffline
	}
	m.records[rec.ID] = &rec
	return &rec
}

// ApplyHeartbeats records the latest heartbeat of each sender and persists
// the ones that moved it forward. A heartbeat older than the one already
// held is dropped. Status changes wait for the next Recompute.
func (m *Monitor) ApplyHeartbeats(ctx context.Context, batch []models.Heartbeat) {
	advanced := make([]models.Heartbeat, 0, len(batch))

	m.mu.Lock()
	for _, hb := range batch {
		if hb.ID == "" {
			m.logger.Warn("Dropping heartbeat without id", zap.String("timestamp", hb.Timestamp))
			continue
		}
		rec, ok := m.records[hb.ID]
		if !ok {
			rec = m.trackLocked(models.DeviceLivenessRecord{ID: hb.ID, Kind: hb.Kind})
		}
		if hb.Kind != "" {
			rec.Kind = hb.Kind
		}
		if !models.HeartbeatAdvances(rec.LastHeartbeat, hb.Timestamp) {
			m.logger.Debug("Ignoring out-of-order heartbeat",
				zap.String("id", hb.ID),
				zap.String("timestamp", hb.Timestamp),
				zap.String("last_heartbeat", rec.LastHeartbeat),
			)
			continue
		}
		rec.LastHeartbeat = hb.Timestamp
		hb.Kind = rec.Kind
		advanced = append(advanced, hb)
	}
	m.mu.Unlock()

	if len(advanced) == 0 {
		return
	}

	if err := m.store.SaveHeartbeats(ctx, advanced); err != nil {
		m.logger.Error("Failed to persist heartbeats",
			zap.Int("count", len(advanced)),
			zap.Error(err),
		)
	}
}

// Start recomputes immediately and then on every interval
func (m *Monitor) Start() {
	m.Recompute(m.now())

	m.wg.Add(1)
	go m.checkLoop()

	m.logger.Info("Liveness monitor started",
		zap.Duration("interval", m.interval),
		zap.Duration("device_threshold", m.thresholds[models.PeerDevice]),
		zap.Duration("agent_threshold", m.thresholds[models.PeerAgent]),
	)
}

// Stop stops the recompute timer
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
		m.wg.Wait()
		m.logger.Info("Liveness monitor stopped")
	})
}

func (m *Monitor) checkLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Recompute(m.now())
		case <-m.stopChan:
			return
		}
	}
}

// Recompute evaluates every record against now. Only changed statuses are
// logged and written to the store.
func (m *Monitor) Recompute(now time.Time) []Transition {
	var transitions []Transition

	m.mu.Lock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec := m.records[id]
		next := m.evaluate(rec, now)
		if next == rec.Status {
			continue
		}
		transitions = append(transitions, Transition{
			ID:   rec.ID,
			Kind: rec.Kind,
			From: rec.Status,
			To:   next,
		})
		rec.Status = next
		m.logTransition(rec, now)
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, t := range transitions {
		if err := m.store.UpdateStatus(ctx, t.ID, t.To); err != nil {
			m.logger.Error("Failed to persist liveness status",
				zap.String("id", t.ID),
				zap.String("status", string(t.To)),
				zap.Error(err),
			)
		}
	}
	return transitions
}

// evaluate must be called with m.mu held
func (m *Monitor) evaluate(rec *models.DeviceLivenessRecord, now time.Time) models.LivenessStatus {
	if rec.LastHeartbeat == "" {
		return models.StatusOffline
	}

	last, err := models.ParseTimestamp(rec.LastHeartbeat)
	if err != nil {
		if m.malformed[rec.ID] != rec.LastHeartbeat {
			m.malformed[rec.ID] = rec.LastHeartbeat
			m.logger.Warn("Malformed heartbeat timestamp, treating as offline",
				zap.String("id", rec.ID),
				zap.String("last_heartbeat", rec.LastHeartbeat),
			)
		}
		return models.StatusOffline
	}
	delete(m.malformed, rec.ID)

	if now.Sub(last) > m.threshold(rec.Kind) {
		return models.StatusOffline
	}
	return models.StatusOnline
}

func (m *Monitor) threshold(kind models.PeerKind) time.Duration {
	if d, ok := m.thresholds[kind]; ok {
		return d
	}
	return m.thresholds[models.PeerDevice]
}

func (m *Monitor) logTransition(rec *models.DeviceLivenessRecord, now time.Time) {
	if rec.Status == models.StatusOnline {
		m.logger.Info("Device reconnected",
			zap.String("id", rec.ID),
			zap.String("kind", string(rec.Kind)),
		)
		return
	}

	fields := []zap.Field{
		zap.String("id", rec.ID),
		zap.String("kind", string(rec.Kind)),
	}
	if last, err := models.ParseTimestamp(rec.LastHeartbeat); err == nil {
		fields = append(fields, zap.Int("minutes_since_heartbeat", int(now.Sub(last).Minutes())))
	}
	m.logger.Warn("Device went offline", fields...)
}

// Snapshot returns the current status of every tracked record
func (m *Monitor) Snapshot() map[string]models.LivenessSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]models.LivenessSnapshot, len(m.records))
	for id, rec := range m.records {
		snap := models.LivenessSnapshot{Kind: rec.Kind, Status: rec.Status}
		if last, err := models.ParseTimestamp(rec.LastHeartbeat); err == nil {
			snap.LastHeartbeat = &last
		}
		out[id] = snap
	}
	return out
}
