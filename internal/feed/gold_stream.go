package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/goldline/ratedesk/pkg/model"
)

// GoldStream subscribes to a websocket that pushes gold ticks as JSON text
// frames and forwards each to a TickSink, reconnecting after failures.
type GoldStream struct {
	url            string
	header         http.Header
	sink           TickSink
	logger         *zap.Logger
	dialer         websocket.Dialer
	reconnectDelay time.Duration

	connMu    sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewGoldStream creates a push gold feed client.
func NewGoldStream(url string, creds Credentials, sink TickSink, logger *zap.Logger) *GoldStream {
	return &GoldStream{
		url:            url,
		header:         authHeader(creds),
		sink:           sink,
		logger:         logger,
		dialer:         websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		reconnectDelay: 5 * time.Second,
	}
}

// WithReconnectDelay overrides the pause between reconnect attempts.
func (s *GoldStream) WithReconnectDelay(d time.Duration) *GoldStream {
	s.reconnectDelay = d
	return s
}

// IsConnected returns whether the stream currently holds a connection.
func (s *GoldStream) IsConnected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.connected
}

// Run connects and consumes ticks until ctx is canceled.
func (s *GoldStream) Run(ctx context.Context) {
	for {
		if err := s.connect(ctx); err != nil {
			s.logger.Warn("feed.gold_stream_connect_failed", zap.Error(err))
		} else {
			s.readLoop(ctx)
		}

		if ctx.Err() != nil {
			s.logger.Info("feed.gold_stream_stopped")
			return
		}
		s.sink.Update(nil)
		s.logger.Info("feed.gold_stream_reconnect_scheduled", zap.Duration("delay", s.reconnectDelay))

		t := time.NewTimer(s.reconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			s.logger.Info("feed.gold_stream_stopped")
			return
		case <-t.C:
		}
	}
}

func (s *GoldStream) connect(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return fmt.Errorf("dial gold stream: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connected = true
	s.connMu.Unlock()

	s.logger.Info("feed.gold_stream_connected")
	return nil
}

func (s *GoldStream) readLoop(ctx context.Context) {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()

	// unblock ReadMessage when ctx ends
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
		s.connMu.Lock()
		s.connected = false
		s.conn = nil
		s.connMu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("feed.gold_stream_closed")
				return
			}
			s.logger.Warn("feed.gold_stream_read_failed", zap.Error(err))
			return
		}

		var tick model.RawGoldTick
		if err := json.Unmarshal(message, &tick); err != nil {
			s.logger.Warn("feed.gold_stream_decode_failed",
				zap.Error(err),
				zap.ByteString("payload", message))
			continue
		}
		s.sink.Update(&tick)
	}
}
