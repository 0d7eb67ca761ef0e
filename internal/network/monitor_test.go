package network

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type fakeProber struct {
	mu  sync.Mutex
	err error
}

func (p *fakeProber) HealthCheck(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakeProber) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func TestMonitorTransitions(t *testing.T) {
	prober := &fakeProber{err: errors.New("connection refused")}
	m := NewMonitor(prober, time.Hour, zaptest.NewLogger(t))

	var events []bool
	unsubscribe := m.Subscribe(func(online bool) { events = append(events, online) })

	m.Check()
	assert.False(t, m.IsOnline())
	assert.Empty(t, events, "offline to offline is not a transition")

	prober.set(nil)
	m.Check()
	m.Check()
	assert.True(t, m.IsOnline())
	assert.Equal(t, []bool{true}, events)

	prober.set(errors.New("timeout"))
	m.Check()
	assert.Equal(t, []bool{true, false}, events)

	unsubscribe()
	prober.set(nil)
	m.Check()
	assert.Len(t, events, 2)
}

func TestMonitorStartProbesImmediately(t *testing.T) {
	m := NewMonitor(&fakeProber{}, time.Hour, zaptest.NewLogger(t))
	m.Start()
	defer m.Stop()

	assert.True(t, m.IsOnline())
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	m := NewMonitor(&fakeProber{}, time.Hour, zaptest.NewLogger(t))
	m.Start()
	m.Stop()
	m.Stop()
}
