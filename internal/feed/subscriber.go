package feed

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"Mansoor88-6/facility-sync-agent/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	writeWait      = 10 * time.Second
	maxReconnect   = 30 * time.Second
	handshakeLimit = 10 * time.Second
)

// Sink receives heartbeats read from the feed
type Sink interface {
	Add(hb models.Heartbeat)
}

// message is one frame of the backend's heartbeat push feed. A frame carries
// either a single heartbeat or a batch.
type message struct {
	Type       string             `json:"type"`
	ID         string             `json:"id,omitempty"`
	Kind       models.PeerKind    `json:"kind,omitempty"`
	Timestamp  string             `json:"timestamp,omitempty"`
	Heartbeats []models.Heartbeat `json:"heartbeats,omitempty"`
}

// Subscriber keeps a websocket open to the backend heartbeat feed and
// reconnects with exponential backoff when it drops
type Subscriber struct {
	url            string
	header         http.Header
	reconnectDelay time.Duration
	sink           Sink
	logger         *zap.Logger
	dialer         *websocket.Dialer

	connMu sync.Mutex
	conn   *websocket.Conn

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSubscriber creates a new heartbeat feed subscriber
func NewSubscriber(url, apiKey, consoleID string, reconnectDelay time.Duration, sink Sink, logger *zap.Logger) *Subscriber {
	header := http.Header{}
	if apiKey != "" {
		header.Set("Authorization", "Bearer "+apiKey)
	}
	if consoleID != "" {
		header.Set("X-Console-ID", consoleID)
	}
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}

	return &Subscriber{
		url:            url,
		header:         header,
		reconnectDelay: reconnectDelay,
		sink:           sink,
		logger:         logger.With(zap.String("feed_url", url)),
		dialer:         &websocket.Dialer{HandshakeTimeout: handshakeLimit},
		stopChan:       make(chan struct{}),
	}
}

// Start runs the subscription until Stop is called or ctx is done
func (s *Subscriber) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.run(ctx)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
			s.closeConn()
		case <-s.stopChan:
		}
	}()
	s.logger.Info("Heartbeat feed subscriber started")
}

// Stop closes the connection and waits for the read loop to exit
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.closeConn()
		s.wg.Wait()
		s.logger.Info("Heartbeat feed subscriber stopped")
	})
}

func (s *Subscriber) run(ctx context.Context) {
	defer s.wg.Done()

	backoff := s.reconnectDelay
	for {
		if s.stopped(ctx) {
			return
		}

		conn, err := s.connect(ctx)
		if err != nil {
			s.logger.Warn("Failed to connect to heartbeat feed",
				zap.Error(err),
				zap.Duration("retry_in", backoff),
			)
			if !s.wait(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > maxReconnect {
				backoff = maxReconnect
			}
			continue
		}

		s.logger.Info("Connected to heartbeat feed")
		backoff = s.reconnectDelay

		err = s.readLoop(conn)
		s.closeConn()
		if s.stopped(ctx) {
			return
		}
		s.logger.Warn("Heartbeat feed disconnected", zap.Error(err))
		if !s.wait(ctx, backoff) {
			return
		}
	}
}

func (s *Subscriber) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	// Stop may have run between the dial and the assignment
	select {
	case <-s.stopChan:
		s.closeConn()
		return nil, fmt.Errorf("subscriber stopped")
	default:
	}
	return conn, nil
}

func (s *Subscriber) readLoop(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(conn, done)

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		s.handle(msg)
	}
}

func (s *Subscriber) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Subscriber) handle(msg message) {
	switch msg.Type {
	case "heartbeat":
		s.sink.Add(models.Heartbeat{ID: msg.ID, Kind: msg.Kind, Timestamp: msg.Timestamp})
	case "heartbeats":
		for _, hb := range msg.Heartbeats {
			s.sink.Add(hb)
		}
	default:
		s.logger.Debug("Ignoring feed message", zap.String("type", msg.Type))
	}
}

func (s *Subscriber) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Subscriber) stopped(ctx context.Context) bool {
	select {
	case <-s.stopChan:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *Subscriber) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
}
