package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Mansoor88-6/facility-sync-agent/internal/models"
	"Mansoor88-6/facility-sync-agent/internal/notify"
	"Mansoor88-6/facility-sync-agent/internal/queue"

	"go.uber.org/zap"
)

// Remote replays a queued operation against the backend
type Remote interface {
	Execute(ctx context.Context, op models.QueuedOperation) error
}

// NetworkStatus is the connectivity oracle
type NetworkStatus interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) func()
}

// FlushReport summarizes one flush cycle
type FlushReport struct {
	Skipped   bool `json:"skipped"`
	Attempted int  `json:"attempted"`
	Synced    int  `json:"synced"`
	Retrying  int  `json:"retrying"`
	Failed    int  `json:"failed"`
}

// Status is the queue state shown by the console
type Status struct {
	Online   bool                     `json:"online"`
	Flushing bool                     `json:"flushing"`
	Pending  int                      `json:"pending"`
	Failed   int                      `json:"failed"`
	Queue    []models.QueuedOperation `json:"queue"`
}

// SyncService replays the offline queue and routes console mutations
type SyncService struct {
	queue         *queue.OperationQueue
	remote        Remote
	network       NetworkStatus
	resolver      EntityUpdater
	sink          notify.Sink
	flushInterval time.Duration
	logger        *zap.Logger
	now           func() time.Time

	mu           sync.Mutex
	flushing     bool
	observers    map[int]func()
	nextObserver int

	trigger     chan struct{}
	stopChan    chan struct{}
	stopOnce    sync.Once
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewSyncService creates a new sync service
func NewSyncService(
	q *queue.OperationQueue,
	remote Remote,
	network NetworkStatus,
	resolver EntityUpdater,
	sink notify.Sink,
	flushInterval time.Duration,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		queue:         q,
		remote:        remote,
		network:       network,
		resolver:      resolver,
		sink:          sink,
		flushInterval: flushInterval,
		logger:        logger,
		now:           time.Now,
		observers:     make(map[int]func()),
		trigger:       make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
	}
}

// Start runs the flush loop. A flush happens every interval and whenever the
// network comes back.
func (s *SyncService) Start() {
	s.logger.Info("Starting sync service",
		zap.Duration("flush_interval", s.flushInterval),
		zap.Int("pending", s.queue.PendingCount()),
		zap.Int("failed", s.queue.FailedCount()),
	)

	s.unsubscribe = s.network.Subscribe(func(online bool) {
		if !online {
			return
		}
		select {
		case s.trigger <- struct{}{}:
		default:
		}
	})

	s.wg.Add(1)
	go s.flushLoop()
}

// Stop stops the flush loop. An in-flight flush finishes first.
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping sync service")
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		close(s.stopChan)
		s.wg.Wait()
		s.logger.Info("Sync service stopped")
	})
}

func (s *SyncService) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush(context.Background())
		case <-s.trigger:
			s.logger.Info("Network restored, flushing offline queue")
			s.Flush(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

// Flush replays every pending operation whose backoff has elapsed, in queue
// order, one at a time. It is a no-op while offline or while another flush
// runs. Failed operations wait for RetryFailed.
func (s *SyncService) Flush(ctx context.Context) FlushReport {
	if !s.network.IsOnline() {
		s.logger.Debug("Offline, skipping flush")
		return FlushReport{Skipped: true}
	}

	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		s.logger.Debug("Flush already in progress")
		return FlushReport{Skipped: true}
	}
	s.flushing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.flushing = false
		s.mu.Unlock()
	}()

	now := s.now()
	var batch []models.QueuedOperation
	for _, op := range s.queue.List() {
		if op.SyncStatus == models.SyncPending && queue.Eligible(op, now) {
			batch = append(batch, op)
		}
	}

	var report FlushReport
	if len(batch) == 0 {
		return report
	}

	s.logger.Debug("Processing offline queue", zap.Int("eligible", len(batch)))

	results := make([]models.QueuedOperation, 0, len(batch))
	for _, op := range batch {
		report.Attempted++
		results = append(results, s.replay(ctx, op, &report))
	}

	s.queue.Apply(results)

	s.logger.Info("Flush completed",
		zap.Int("attempted", report.Attempted),
		zap.Int("synced", report.Synced),
		zap.Int("retrying", report.Retrying),
		zap.Int("failed", report.Failed),
	)

	if report.Synced > 0 {
		s.sink.Success(fmt.Sprintf("Synced %d offline change(s)", report.Synced))
		s.refresh()
	}
	if report.Failed > 0 {
		s.sink.Failure(fmt.Sprintf("%d change(s) could not be synced after %d attempts", report.Failed, queue.MaxRetries))
	}
	return report
}

func (s *SyncService) replay(ctx context.Context, op models.QueuedOperation, report *FlushReport) models.QueuedOperation {
	err := s.remote.Execute(ctx, op)
	if err == nil {
		op.SyncStatus = models.SyncSynced
		op.Error = ""
		report.Synced++
		s.logger.Debug("Operation synced",
			zap.String("id", op.ID),
			zap.String("type", string(op.Type)),
		)
		return op
	}

	op.RetryCount++
	op.LastRetry = s.now().UTC()
	op.Error = err.Error()

	if op.RetryCount >= queue.MaxRetries {
		op.SyncStatus = models.SyncFailed
		report.Failed++
		s.logger.Error("Operation failed permanently",
			zap.String("id", op.ID),
			zap.String("type", string(op.Type)),
			zap.Int("retry_count", op.RetryCount),
			zap.Error(err),
		)
		return op
	}

	report.Retrying++
	s.logger.Warn("Failed to sync operation",
		zap.String("id", op.ID),
		zap.String("type", string(op.Type)),
		zap.Int("retry_count", op.RetryCount),
		zap.Duration("next_delay", queue.Delay(op.RetryCount)),
		zap.Error(err),
	)
	return op
}

// RetryFailed gives every failed operation a fresh retry budget and flushes.
// Nothing happens when no operation has failed.
func (s *SyncService) RetryFailed(ctx context.Context) FlushReport {
	if s.queue.ResetFailed() == 0 {
		return FlushReport{}
	}
	return s.Flush(ctx)
}

func (s *SyncService) PendingCount() int {
	return s.queue.PendingCount()
}

func (s *SyncService) FailedCount() int {
	return s.queue.FailedCount()
}

// Status returns a snapshot for the console
func (s *SyncService) Status() Status {
	s.mu.Lock()
	flushing := s.flushing
	s.mu.Unlock()

	return Status{
		Online:   s.network.IsOnline(),
		Flushing: flushing,
		Pending:  s.queue.PendingCount(),
		Failed:   s.queue.FailedCount(),
		Queue:    s.queue.List(),
	}
}

// OnRefresh registers fn to run after a flush that synced at least one
// operation. The returned function removes it.
func (s *SyncService) OnRefresh(fn func()) func() {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *SyncService) refresh() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		s.runObserver(fn)
	}
}

func (s *SyncService) runObserver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Refresh observer panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
