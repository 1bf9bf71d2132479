package signaling

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP messages

	// sendBuffer is the number of outbound frames queued per session.
	sendBuffer = 256
)

// ErrRateLimited is reported to a session that sends faster than allowed.
var ErrRateLimited = errors.New("Too many messages")

// Session is the relay's side of a single websocket connection.
type Session struct {
	ID   string
	Name string

	hub     *Hub
	conn    *websocket.Conn
	send    chan *Message
	limiter *rate.Limiter
}

// NewSession wraps an upgraded connection. The session is not known to the
// hub until Start is called.
func NewSession(hub *Hub, conn *websocket.Conn) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Name:    DefaultName,
		hub:     hub,
		conn:    conn,
		send:    make(chan *Message, sendBuffer),
		limiter: rate.NewLimiter(hub.limits.Rate, hub.limits.Burst),
	}
}

// Start registers the session and runs its pumps.
func (s *Session) Start() {
	select {
	case s.hub.register <- s:
	case <-s.hub.done:
		s.conn.Close()
		return
	}
	go s.WritePump()
	go s.ReadPump()
}

// deliver queues a frame without blocking the caller. A session whose buffer
// is full is too slow to keep up and loses the frame.
func (s *Session) deliver(msg *Message) {
	select {
	case s.send <- msg:
	default:
		slog.Warn("Dropping frame for slow session", "session", s.ID, "type", msg.Type)
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (s *Session) ReadPump() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("Websocket read failed", "session", s.ID, "error", err)
			}
			return
		}

		if !s.limiter.Allow() {
			slog.Warn("Session rate limited", "session", s.ID, "type", msg.Type)
			s.deliver(errorMessage(ErrRateLimited))
			continue
		}

		msg.session = s

		select {
		case s.hub.inbound <- &msg:
		case <-s.hub.done:
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(message); err != nil {
				slog.Debug("Websocket write failed", "session", s.ID, "error", err)
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.hub.done:
			return
		}
	}
}
