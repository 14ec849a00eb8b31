package feeds

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vaultpilot/vaultpilot/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// Stream consumes the yield feed's websocket channel and writes every update
// through to the cache, so the Observer's cached fallback stays warm even
// when the REST endpoint is down.
type Stream struct {
	wsURL  string
	cache  domain.YieldCache
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

// NewStream creates a yield stream for the given websocket endpoint.
func NewStream(wsURL string, cache domain.YieldCache, logger *slog.Logger) *Stream {
	return &Stream{
		wsURL:  wsURL,
		cache:  cache,
		logger: logger.With(slog.String("component", "yield_stream")),
		done:   make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the read and ping
// loops. Reconnection with exponential backoff is handled internally.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrContextDone
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return err
	}
	s.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.readLoop(conn)
	go s.pingLoop(conn)
	return nil
}

// Close shuts the stream down.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	if s.conn != nil {
		_ = s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return s.conn.Close()
	}
	return nil
}

func (s *Stream) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warn("stream read failed, reconnecting", slog.String("error", err.Error()))
			s.reconnect()
			return
		}

		s.handleMessage(message)
	}
}

func (s *Stream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Stream) handleMessage(raw []byte) {
	var payload yieldPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return // drop unparseable messages
	}
	if payload.Venue == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.cache.SetYield(ctx, payload.toDomain()); err != nil {
		s.logger.Warn("cache write failed",
			slog.String("venue", payload.Venue),
			slog.String("error", err.Error()))
	}
}

func (s *Stream) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-s.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := s.Connect(ctx)
		cancel()
		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
