package signaling

import "log/slog"

// Handler routes incoming relay messages to typed channels.
type Handler struct {
	client *Client

	JoinAck    chan JoinAckPayload
	PeerJoined chan PeerJoinedPayload
	PeerLeft   chan struct{}
	Signal     chan *Message
	Lobby      chan []LobbyEntry
	Error      chan string

	done chan struct{}
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:     client,
		JoinAck:    make(chan JoinAckPayload, 1),
		PeerJoined: make(chan PeerJoinedPayload, 1),
		PeerLeft:   make(chan struct{}, 1),
		Signal:     make(chan *Message, 32),
		Lobby:      make(chan []LobbyEntry, 1),
		Error:      make(chan string, 4),
		done:       make(chan struct{}),
	}
}

// Done is closed once the relay connection is gone.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Start begins listening to incoming messages and routing them.
// It returns when the connection closes.
func (h *Handler) Start() {
	defer close(h.done)

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case MessageTypeJoinAck:
			var ack JoinAckPayload
			if err := msg.Decode(&ack); err != nil {
				h.reportDecode(msg, err)
				continue
			}
			h.JoinAck <- ack

		case MessageTypePeerJoined:
			var peer PeerJoinedPayload
			if err := msg.Decode(&peer); err != nil {
				h.reportDecode(msg, err)
				continue
			}
			h.PeerJoined <- peer

		case MessageTypePeerLeft:
			select {
			case h.PeerLeft <- struct{}{}:
			default:
			}

		case MessageTypeOffer, MessageTypeAnswer, MessageTypeCandidate:
			h.Signal <- msg

		case MessageTypeLobby:
			var lobby LobbyPayload
			if err := msg.Decode(&lobby); err != nil {
				h.reportDecode(msg, err)
				continue
			}
			h.publishLobby(lobby.Rooms)

		case MessageTypeError:
			var errPayload ErrorPayload
			if err := msg.Decode(&errPayload); err != nil || errPayload.Message == "" {
				errPayload.Message = "Unknown error from server"
			}
			select {
			case h.Error <- errPayload.Message:
			default:
				slog.Warn("Relay error dropped", "message", errPayload.Message)
			}

		default:
			slog.Debug("Ignoring relay message", "type", msg.Type)
		}
	}
}

// publishLobby keeps only the most recent lobby snapshot.
func (h *Handler) publishLobby(rooms []LobbyEntry) {
	for {
		select {
		case h.Lobby <- rooms:
			return
		default:
		}
		select {
		case <-h.Lobby:
		default:
		}
	}
}

func (h *Handler) reportDecode(msg *Message, err error) {
	slog.Debug("Malformed relay payload", "type", msg.Type, "error", err)
}
