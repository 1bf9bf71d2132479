package webrtc

import (
	"log/slog"

	pion "github.com/pion/webrtc/v4"

	"github.com/Maolipeng/web-drop/internal/config"
)

// Signal payloads use the browser's shapes so CLI and web peers interoperate.

// OfferPayload is the payload of an offer message.
type OfferPayload struct {
	Offer pion.SessionDescription `json:"offer"`
}

// AnswerPayload is the payload of an answer message.
type AnswerPayload struct {
	Answer pion.SessionDescription `json:"answer"`
}

// CandidatePayload is the payload of a candidate message. A nil Candidate
// marks the end of gathering.
type CandidatePayload struct {
	Candidate *pion.ICECandidateInit `json:"candidate"`
}

// Signaler sends negotiation messages to the other member of the room.
type Signaler interface {
	Send(msgType string, payload any) error
}

// ICEServers converts relay-provided descriptors for pion.
func ICEServers(servers []config.ICEServer) []pion.ICEServer {
	out := make([]pion.ICEServer, 0, len(servers))
	for _, s := range servers {
		if len(s.URLs) == 0 {
			continue
		}
		// pion refuses TURN entries without credentials
		if config.HasTURN([]config.ICEServer{s}) && s.Username == "" {
			slog.Warn("Skipping TURN server without credentials", "urls", s.URLs)
			continue
		}
		server := pion.ICEServer{URLs: append([]string(nil), s.URLs...)}
		if s.Username != "" || s.Credential != "" {
			server.Username = s.Username
			server.Credential = s.Credential
		}
		out = append(out, server)
	}
	return out
}
