package feed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"claudeview/internal/types"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Subscriber follows a server's /ws change feed and reconnects with
// exponential backoff when the connection drops.
type Subscriber struct {
	wsURL      string
	logger     *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewSubscriber creates a subscriber for the server at baseURL (http or https).
func NewSubscriber(baseURL string, logger *zap.Logger) (*Subscriber, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path += "/ws"

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		wsURL:      u.String(),
		logger:     logger,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}, nil
}

// Run delivers events to handle until ctx is done. Events can be missed
// while disconnected, so every reconnect after the first delivers a
// synthetic conversations:changed event.
func (s *Subscriber) Run(ctx context.Context, handle func(types.EventEnvelope)) error {
	backoff := s.minBackoff
	connected := false

	for {
		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debug("feed connect failed", zap.String("url", s.wsURL), zap.Duration("retry_in", backoff), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, s.maxBackoff)
			continue
		}

		backoff = s.minBackoff
		if connected {
			s.logger.Info("feed reconnected", zap.String("url", s.wsURL))
			handle(types.EventEnvelope{EventType: types.EventConversationsChanged})
		} else {
			s.logger.Info("feed connected", zap.String("url", s.wsURL))
		}
		connected = true

		err = s.read(ctx, conn, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("feed disconnected", zap.Error(err))
	}
}

func (s *Subscriber) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	return conn, err
}

func (s *Subscriber) read(ctx context.Context, conn *websocket.Conn, handle func(types.EventEnvelope)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		var event types.EventEnvelope
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("server closed feed: %w", err)
			}
			return err
		}
		handle(event)
	}
}
