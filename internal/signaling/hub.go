package signaling

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// Limits bounds how fast a single session may send frames to the relay.
type Limits struct {
	Rate  rate.Limit
	Burst int
}

// DefaultLimits allows a steady trickle of candidates with room for the
// burst that follows an offer.
var DefaultLimits = Limits{Rate: 20, Burst: 60}

// Hub is the central brain of the signaling relay.
// It owns the set of connected sessions and drives the room registry.
type Hub struct {
	registry *Registry
	limits   Limits

	// sessions is only touched by the Run goroutine.
	sessions map[string]*Session

	register   chan *Session
	unregister chan *Session
	inbound    chan *Message
	done       chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub(limits Limits) *Hub {
	if limits.Rate <= 0 {
		limits = DefaultLimits
	}
	if limits.Burst <= 0 {
		limits.Burst = DefaultLimits.Burst
	}
	return &Hub{
		registry:   NewRegistry(),
		limits:     limits,
		sessions:   make(map[string]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		inbound:    make(chan *Message),
		done:       make(chan struct{}),
	}
}

// Registry exposes the hub's room registry for inspection.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run starts the hub's main processing loop and blocks until ctx is done.
// This is the single goroutine that dispatches every session event.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for _, s := range h.sessions {
			s.conn.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case s := <-h.register:
			h.sessions[s.ID] = s
			slog.Debug("Session registered", "session", s.ID, "remote", s.conn.RemoteAddr())

		case s := <-h.unregister:
			if _, ok := h.sessions[s.ID]; !ok {
				continue
			}
			slog.Debug("Session unregistered", "session", s.ID)
			h.leave(s)
			delete(h.sessions, s.ID)
			close(s.send)
			h.broadcastLobby()

		case msg := <-h.inbound:
			h.dispatch(msg)
		}
	}
}

func (h *Hub) dispatch(msg *Message) {
	s := msg.session
	if _, ok := h.sessions[s.ID]; !ok {
		return
	}

	switch msg.Type {
	case MessageTypeLobbySubscribe:
		h.rename(s, msg)
		s.deliver(h.lobbyMessage())

	case MessageTypeLobbyUpdate:
		h.rename(s, msg)
		h.broadcastLobby()

	case MessageTypeJoin:
		h.join(s, msg)

	case MessageTypeLeave:
		if h.leave(s) {
			h.broadcastLobby()
		}

	case MessageTypeOffer, MessageTypeAnswer, MessageTypeCandidate:
		h.relay(s, msg)

	default:
		slog.Debug("Unknown message type", "session", s.ID, "type", msg.Type)
	}
}

func (h *Hub) rename(s *Session, msg *Message) {
	var payload NamePayload
	if err := msg.Decode(&payload); err != nil {
		slog.Debug("Malformed name payload", "session", s.ID, "error", err)
	}
	s.Name = NormalizeName(payload.Name)
	h.registry.Rename(s.ID, s.Name)
}

func (h *Hub) join(s *Session, msg *Message) {
	var payload JoinPayload
	if err := msg.Decode(&payload); err != nil {
		slog.Debug("Malformed join payload", "session", s.ID, "error", err)
	}

	name := NormalizeName(payload.Name)
	result, moved, err := h.registry.Join(payload.Code, s.ID, name)
	if err != nil {
		slog.Info("Join refused", "session", s.ID, "code", NormalizeCode(payload.Code), "reason", err)
		s.deliver(errorMessage(err))
		return
	}
	s.Name = name

	if moved != nil && moved.Peer != nil {
		h.notifyPeerLeft(moved.Peer.ID)
	}

	slog.Info("Session joined room", "session", s.ID, "code", result.Code, "role", result.Role)

	ack, _ := NewMessage(MessageTypeJoinAck, JoinAckPayload{Role: result.Role, Code: result.Code})
	s.deliver(ack)

	if result.Peer != nil {
		if peer, ok := h.sessions[result.Peer.ID]; ok {
			joined, _ := NewMessage(MessageTypePeerJoined, PeerJoinedPayload{Name: s.Name})
			peer.deliver(joined)
		}
	}
	h.broadcastLobby()
}

// leave notifies the remaining member before the session is removed.
// It reports whether the session was in a room.
func (h *Hub) leave(s *Session) bool {
	if peer, ok, err := h.registry.Peer(s.ID); err == nil && ok {
		h.notifyPeerLeft(peer.ID)
	}
	result, ok := h.registry.Leave(s.ID)
	if !ok {
		return false
	}
	if result.Peer == nil {
		slog.Info("Room deleted", "code", result.Code)
	} else {
		slog.Info("Session left room", "session", s.ID, "code", result.Code)
	}
	return true
}

func (h *Hub) notifyPeerLeft(id string) {
	if peer, ok := h.sessions[id]; ok {
		peer.deliver(&Message{Type: MessageTypePeerLeft})
	}
}

// relay forwards negotiation payloads verbatim to the other member.
func (h *Hub) relay(s *Session, msg *Message) {
	peer, ok, err := h.registry.Peer(s.ID)
	if err != nil {
		s.deliver(errorMessage(err))
		return
	}
	if !ok {
		slog.Debug("No peer to relay to", "session", s.ID, "type", msg.Type)
		return
	}
	target, ok := h.sessions[peer.ID]
	if !ok {
		return
	}
	slog.Debug("Relaying signal", "from", s.ID, "to", peer.ID, "type", msg.Type)
	target.deliver(&Message{Type: msg.Type, Payload: msg.Payload})
}

func (h *Hub) lobbyMessage() *Message {
	msg, _ := NewMessage(MessageTypeLobby, LobbyPayload{Rooms: h.registry.ListWaiting()})
	return msg
}

func (h *Hub) broadcastLobby() {
	msg := h.lobbyMessage()
	for _, s := range h.sessions {
		s.deliver(msg)
	}
}
