package network

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Prober checks whether the backend is reachable
type Prober interface {
	HealthCheck(ctx context.Context) error
}

// Monitor is the agent's online/offline oracle. It probes the backend on an
// interval and notifies subscribers on every transition.
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   *zap.Logger

	mu          sync.RWMutex
	online      bool
	nextID      int
	subscribers map[int]func(online bool)

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor that assumes offline until the first probe succeeds
func NewMonitor(prober Prober, interval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		prober:      prober,
		interval:    interval,
		logger:      logger,
		subscribers: make(map[int]func(bool)),
		stopChan:    make(chan struct{}),
	}
}

// Start probes once immediately and then on every tick
func (m *Monitor) Start() {
	m.Check()

	m.wg.Add(1)
	go m.checkLoop()

	m.logger.Info("Network monitor started", zap.Duration("interval", m.interval))
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	m.wg.Wait()
	m.logger.Info("Network monitor stopped")
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe registers fn for transitions and returns a function that removes it
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Check probes the backend and records the result
func (m *Monitor) Check() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	err := m.prober.HealthCheck(ctx)
	if err != nil {
		m.logger.Debug("Backend health check failed", zap.Error(err))
	}
	m.SetOnline(err == nil)
}

// SetOnline records the network state and fans out transitions
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	var subs []func(bool)
	if changed {
		subs = make([]func(bool), 0, len(m.subscribers))
		for _, fn := range m.subscribers {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		m.logger.Info("Backend reachable, console is online")
	} else {
		m.logger.Warn("Backend unreachable, console is offline")
	}

	for _, fn := range subs {
		fn(online)
	}
}

func (m *Monitor) checkLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check()
		case <-m.stopChan:
			return
		}
	}
}
