package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"Mansoor88-6/facility-sync-agent/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingSink struct {
	mu         sync.Mutex
	heartbeats []models.Heartbeat
}

func (s *recordingSink) Add(hb models.Heartbeat) {
	s.mu.Lock()
	s.heartbeats = append(s.heartbeats, hb)
	s.mu.Unlock()
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.heartbeats))
	for i, hb := range s.heartbeats {
		out[i] = hb.ID
	}
	return out
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscriberReceivesHeartbeats(t *testing.T) {
	headers := make(chan http.Header, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteJSON(message{Type: "heartbeat", ID: "reader-1", Kind: models.PeerDevice, Timestamp: "2026-10-15T12:00:00Z"})
		conn.WriteJSON(message{Type: "status"})
		conn.WriteJSON(message{Type: "heartbeats", Heartbeats: []models.Heartbeat{
			{ID: "agent-1", Kind: models.PeerAgent, Timestamp: "2026-10-15T12:00:01Z"},
			{ID: "agent-2", Kind: models.PeerAgent, Timestamp: "2026-10-15T12:00:02Z"},
		}})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := &recordingSink{}
	sub := NewSubscriber(wsURL(srv), "secret", "console-1", 10*time.Millisecond, sink, zaptest.NewLogger(t))
	sub.Start(context.Background())
	defer sub.Stop()

	require.Eventually(t, func() bool { return len(sink.ids()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"reader-1", "agent-1", "agent-2"}, sink.ids())
	h := <-headers
	assert.Equal(t, "Bearer secret", h.Get("Authorization"))
	assert.Equal(t, "console-1", h.Get("X-Console-ID"))
}

func TestSubscriberReconnects(t *testing.T) {
	var connections int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&connections, 1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if n == 1 {
			conn.WriteJSON(message{Type: "heartbeat", ID: "first"})
			return
		}
		conn.WriteJSON(message{Type: "heartbeat", ID: "second"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := &recordingSink{}
	sub := NewSubscriber(wsURL(srv), "", "", 10*time.Millisecond, sink, zaptest.NewLogger(t))
	sub.Start(context.Background())
	defer sub.Stop()

	require.Eventually(t, func() bool { return len(sink.ids()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, sink.ids())
	assert.GreaterOrEqual(t, atomic.LoadInt32(&connections), int32(2))
}

func TestSubscriberStopsWhileUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	sub := NewSubscriber(url, "", "", time.Hour, &recordingSink{}, zaptest.NewLogger(t))
	sub.Start(context.Background())

	done := make(chan struct{})
	go func() {
		sub.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestSubscriberStopsOnContextCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := NewSubscriber(wsURL(srv), "", "", 10*time.Millisecond, &recordingSink{}, zaptest.NewLogger(t))
	sub.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		sub.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not exit after cancel")
	}
}
