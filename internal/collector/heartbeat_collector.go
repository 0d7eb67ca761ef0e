package collector

import (
	"sync"
	"time"

	"Mansoor88-6/facility-sync-agent/internal/models"

	"go.uber.org/zap"
)

// HeartbeatCollector batches incoming heartbeats. A batch is handed off when
// it reaches batchSize or when the flush interval elapses.
type HeartbeatCollector struct {
	heartbeats    []models.Heartbeat
	batchSize     int
	flushInterval time.Duration
	onBatchReady  func([]models.Heartbeat)
	logger        *zap.Logger
	mu            sync.Mutex
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewHeartbeatCollector creates a new heartbeat collector
func NewHeartbeatCollector(batchSize int, flushInterval time.Duration, logger *zap.Logger) *HeartbeatCollector {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &HeartbeatCollector{
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the collector with auto-flush
func (c *HeartbeatCollector) Start(onBatchReady func([]models.Heartbeat)) {
	c.mu.Lock()
	c.onBatchReady = onBatchReady
	c.mu.Unlock()

	c.wg.Add(1)
	go c.autoFlushLoop()

	c.logger.Info("Heartbeat collector started",
		zap.Int("batch_size", c.batchSize),
		zap.Duration("flush_interval", c.flushInterval),
	)
}

// Stop stops the auto-flush loop and hands off what is left
func (c *HeartbeatCollector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
		c.Flush()
		c.logger.Info("Heartbeat collector stopped")
	})
}

// Add queues a heartbeat, flushing when the batch is full
func (c *HeartbeatCollector) Add(hb models.Heartbeat) {
	c.mu.Lock()
	c.heartbeats = append(c.heartbeats, hb)
	if len(c.heartbeats) < c.batchSize {
		c.mu.Unlock()
		return
	}
	batch, handler := c.takeLocked()
	c.mu.Unlock()

	c.logger.Debug("Batch size reached, flushing heartbeats", zap.Int("count", len(batch)))
	if handler != nil {
		handler(batch)
	}
}

// Flush hands off all pending heartbeats
func (c *HeartbeatCollector) Flush() {
	c.mu.Lock()
	if len(c.heartbeats) == 0 {
		c.mu.Unlock()
		return
	}
	batch, handler := c.takeLocked()
	c.mu.Unlock()

	if handler != nil {
		handler(batch)
	}
}

// PendingCount returns the number of heartbeats not yet handed off
func (c *HeartbeatCollector) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.heartbeats)
}

func (c *HeartbeatCollector) takeLocked() ([]models.Heartbeat, func([]models.Heartbeat)) {
	batch := make([]models.Heartbeat, len(c.heartbeats))
	copy(batch, c.heartbeats)
	c.heartbeats = c.heartbeats[:0]
	return batch, c.onBatchReady
}

func (c *HeartbeatCollector) autoFlushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Flush()
		case <-c.stopChan:
			return
		}
	}
}
