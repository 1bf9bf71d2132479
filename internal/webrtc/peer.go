package webrtc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/Maolipeng/web-drop/internal/config"
	"github.com/Maolipeng/web-drop/internal/signaling"
	"github.com/Maolipeng/web-drop/internal/transfer"
	"github.com/Maolipeng/web-drop/internal/utils"
)

// DataChannelLabel names the single channel carrying control messages and
// chunks. The caller creates it.
const DataChannelLabel = "file"

// Config selects ICE servers for a Peer.
type Config struct {
	ICEServers []config.ICEServer

	// ForceRelay restricts candidates to TURN. It only applies when a TURN
	// server is configured.
	ForceRelay bool
}

// Peer owns one peer connection and the transfer session running on its data
// channel.
type Peer struct {
	pc      *pion.PeerConnection
	role    signaling.Role
	signals Signaler
	opts    transfer.Options

	mu        sync.Mutex
	session   *transfer.Session
	remoteSet bool
	pending   []pion.ICECandidateInit

	ready     chan *transfer.Session
	failed    chan error
	closeOnce sync.Once
}

// NewPeer creates the peer connection for role. A caller also creates the
// data channel; a callee waits for it.
func NewPeer(cfg Config, role signaling.Role, signals Signaler, opts transfer.Options) (*Peer, error) {
	policy := pion.ICETransportPolicyAll
	if config.HasTURN(cfg.ICEServers) && (cfg.ForceRelay || utils.ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{
		ICEServers:         ICEServers(cfg.ICEServers),
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, transfer.NewError("create peer connection", err)
	}

	p := &Peer{
		pc:      pc,
		role:    role,
		signals: signals,
		opts:    opts,
		ready:   make(chan *transfer.Session, 1),
		failed:  make(chan error, 1),
	}
	p.setupHandlers()

	if role == signaling.RoleCaller {
		dc, err := pc.CreateDataChannel(DataChannelLabel, nil)
		if err != nil {
			pc.Close()
			return nil, transfer.NewError("create data channel", err)
		}
		p.bind(dc)
	} else {
		pc.OnDataChannel(func(dc *pion.DataChannel) {
			if dc.Label() == DataChannelLabel {
				p.bind(dc)
			}
		})
	}

	return p, nil
}

func (p *Peer) setupHandlers() {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		candidate := c.ToJSON()
		if err := p.signals.Send(signaling.MessageTypeCandidate, CandidatePayload{Candidate: &candidate}); err != nil {
			slog.Debug("Dropping local candidate", "error", err)
		}
	})

	p.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		slog.Debug("Peer connection state", "state", state.String())
		switch state {
		case pion.PeerConnectionStateFailed:
			p.fail(transfer.ErrNegotiationFailed)
		case pion.PeerConnectionStateDisconnected, pion.PeerConnectionStateClosed:
			p.fail(transfer.ErrChannelClosed)
		}
	})
}

// bind creates the transfer session for dc before any handler runs, so
// messages read ahead of OnOpen are not lost. OnOpen only publishes it.
func (p *Peer) bind(dc *pion.DataChannel) {
	s := transfer.NewSession(dc, p.opts)
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()

	dc.OnMessage(func(msg pion.DataChannelMessage) {
		s.Handle(msg.IsString, msg.Data)
	})

	dc.OnOpen(func() {
		p.ready <- s
	})

	dc.OnClose(func() {
		s.Close(transfer.StatusConnLost)
		p.fail(transfer.ErrChannelClosed)
	})
}

func (p *Peer) current() *transfer.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *Peer) fail(err error) {
	select {
	case p.failed <- err:
	default:
	}
}

// Ready yields the transfer session once the data channel is open.
func (p *Peer) Ready() <-chan *transfer.Session {
	return p.ready
}

// Failed yields the first connection failure.
func (p *Peer) Failed() <-chan error {
	return p.failed
}

// Offer starts negotiation. Only the caller offers.
func (p *Peer) Offer() error {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return transfer.NewError("create offer", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return transfer.NewError("set local description", err)
	}
	return p.signals.Send(signaling.MessageTypeOffer, OfferPayload{Offer: *p.pc.LocalDescription()})
}

// HandleSignal applies an offer, answer or candidate relayed from the peer.
func (p *Peer) HandleSignal(msg *signaling.Message) error {
	switch msg.Type {
	case signaling.MessageTypeOffer:
		var payload OfferPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return transfer.NewError("decode offer", err)
		}
		if err := p.setRemote(payload.Offer); err != nil {
			return err
		}
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return transfer.NewError("create answer", err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return transfer.NewError("set local description", err)
		}
		return p.signals.Send(signaling.MessageTypeAnswer, AnswerPayload{Answer: *p.pc.LocalDescription()})

	case signaling.MessageTypeAnswer:
		var payload AnswerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return transfer.NewError("decode answer", err)
		}
		return p.setRemote(payload.Answer)

	case signaling.MessageTypeCandidate:
		var payload CandidatePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return transfer.NewError("decode candidate", err)
		}
		if payload.Candidate == nil {
			return nil
		}
		return p.addCandidate(*payload.Candidate)
	}
	return fmt.Errorf("unexpected signal %q", msg.Type)
}

// setRemote applies desc and flushes candidates that arrived before it.
func (p *Peer) setRemote(desc pion.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return transfer.NewError("set remote description", err)
	}

	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			slog.Debug("Ignoring queued candidate", "error", err)
		}
	}
	return nil
}

func (p *Peer) addCandidate(c pion.ICECandidateInit) error {
	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(c); err != nil {
		return transfer.NewError("add ICE candidate", err)
	}
	return nil
}

// Close tears down the connection. The session, if any, is closed with reason.
func (p *Peer) Close(reason string) {
	p.closeOnce.Do(func() {
		if s := p.current(); s != nil {
			s.Close(reason)
		}
		if err := p.pc.Close(); err != nil {
			slog.Debug("Closing peer connection", "error", err)
		}
	})
}
