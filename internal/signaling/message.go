package signaling

import "encoding/json"

// Message is the envelope of every websocket frame exchanged with the relay,
// in both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// session is the relay session that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	session *Session
}

// Message type constants.
const (
	MessageTypeLobbySubscribe = "lobby-subscribe"
	MessageTypeLobbyUpdate    = "lobby-update"
	MessageTypeJoin           = "join"
	MessageTypeLeave          = "leave"

	MessageTypeOffer     = "offer"
	MessageTypeAnswer    = "answer"
	MessageTypeCandidate = "candidate"

	MessageTypeJoinAck    = "join-ack"
	MessageTypePeerJoined = "peer-joined"
	MessageTypePeerLeft   = "peer-left"
	MessageTypeLobby      = "lobby"
	MessageTypeError      = "error"
)

const (
	// DefaultName is used whenever a client gives no display name.
	DefaultName = "Anonymous"

	// MaxNameLength caps display names, in characters.
	MaxNameLength = 40
)

// Role is the position of a session within its room.
type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

// NamePayload is sent with lobby-subscribe and lobby-update.
type NamePayload struct {
	Name string `json:"name"`
}

// JoinPayload asks the relay to place the session in a room.
type JoinPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// JoinAckPayload confirms a join with the assigned role and normalized code.
type JoinAckPayload struct {
	Role Role   `json:"role"`
	Code string `json:"code"`
}

// PeerJoinedPayload tells the first member who completed the room.
type PeerJoinedPayload struct {
	Name string `json:"name"`
}

// LobbyEntry is a room waiting for its second participant.
type LobbyEntry struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// LobbyPayload carries the current list of waiting rooms.
type LobbyPayload struct {
	Rooms []LobbyEntry `json:"rooms"`
}

// ErrorPayload represents error messages from the relay.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewMessage builds a message with the given payload encoded as JSON.
// A nil payload produces a message without a payload field.
func NewMessage(msgType string, payload any) (*Message, error) {
	msg := &Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg.Payload = raw
	return msg, nil
}

// Decode unmarshals the payload into v. An absent payload leaves v untouched.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

func errorMessage(err error) *Message {
	msg, _ := NewMessage(MessageTypeError, ErrorPayload{Message: err.Error()})
	return msg
}
