// Package ws bridges live websocket connections to the event broker.
// Each accepted socket becomes a session with a small buffered outbox;
// the broker writes into the outbox without blocking and the session's
// write pump drains it onto the wire.
package ws

import (
	"time"

	"github.com/gorilla/websocket"

	"parley/pkg/broker"
	"parley/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// Inbound frames are client keepalives only; keep the limit tight.
	maxInboundBytes = 512
	outboxSize      = 32
)

// Session is one live client socket registered with the broker.
type Session struct {
	userID string
	conn   *websocket.Conn
	b      *broker.Broker
	outbox chan broker.Event
	done   chan struct{}
}

func newSession(userID string, conn *websocket.Conn, b *broker.Broker) *Session {
	return &Session{
		userID: userID,
		conn:   conn,
		b:      b,
		outbox: make(chan broker.Event, outboxSize),
		done:   make(chan struct{}),
	}
}

// TrySend queues an event for delivery. It never blocks; a full outbox
// means the client is too slow and the event is dropped.
func (s *Session) TrySend(ev broker.Event) bool {
	select {
	case s.outbox <- ev:
		return true
	default:
		return false
	}
}

// run registers the session and starts both pumps. It returns when the
// socket closes for any reason.
func (s *Session) run() {
	s.b.Register(s.userID, s)
	defer func() {
		s.b.Unregister(s.userID, s)
		_ = s.conn.Close()
	}()
	go s.writePump()
	s.readPump()
}

// readPump consumes inbound frames until the peer goes away. Clients do
// not send application data over the socket; all writes go through HTTP.
func (s *Session) readPump() {
	defer close(s.done)
	s.conn.SetReadLimit(maxInboundBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("ws_read_closed", "user", s.userID, "error", err)
			}
			return
		}
	}
}

// writePump drains the outbox onto the wire and keeps the connection
// alive with periodic pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev := <-s.outbox:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(ev); err != nil {
				logger.Debug("ws_write_failed", "user", s.userID, "error", err)
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.conn.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
