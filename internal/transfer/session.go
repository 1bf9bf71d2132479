package transfer

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// Hooks are notified of session activity. Every field is optional.
// Hooks run on the goroutine that caused the change and never under a lock,
// so they may call back into the Session.
type Hooks struct {
	// OnSendUpdate fires whenever a send item changes.
	OnSendUpdate func(SendItem)

	// OnReceiveUpdate fires whenever a receive item changes.
	OnReceiveUpdate func(ReceiveItem)

	// OnOffer fires when an offer is presented for a decision.
	OnOffer func(ReceiveItem)

	// OnReceived fires when a file has been fully received.
	OnReceived func(Received)

	// OnChat fires for every chat line or image from the peer.
	OnChat func(ChatMessage)

	// OnClose fires once, after the session has shut down.
	OnClose func(reason string)
}

// Options configure a Session.
type Options struct {
	// Name is the local display name used in chat messages.
	Name string

	// Hash enables SHA-256 content hashing of outgoing files.
	Hash bool

	// Sinks opens storage for accepted files. Defaults to in-memory sinks.
	Sinks SinkFactory

	Hooks Hooks
}

// Session runs the transfer protocol over one open peer channel: file
// offers with their decisions, chunk streaming in both directions, and chat.
type Session struct {
	ch     Channel
	opts   Options
	ledger *Ledger
	window *window

	mu      sync.Mutex
	send    sendQueue
	recv    receiveQueue
	closed  chan struct{}
	reason  string
	stopped bool
}

// NewSession starts a session on an open channel.
func NewSession(ch Channel, opts Options) *Session {
	if opts.Sinks == nil {
		opts.Sinks = MemorySinks(nil)
	}
	if opts.Name == "" {
		opts.Name = DefaultChatName
	}
	return &Session{
		ch:     ch,
		opts:   opts,
		ledger: NewLedger(),
		window: newWindow(ch),
		closed: make(chan struct{}),
	}
}

// Done is closed when the session shuts down.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// Reason returns why the session was closed.
func (s *Session) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Handle demultiplexes one incoming channel message: text frames carry
// control messages, binary frames carry file chunks.
func (s *Session) Handle(isString bool, data []byte) {
	if isString {
		s.HandleText(string(data))
		return
	}
	s.HandleChunk(data)
}

// HandleText dispatches a control message.
func (s *Session) HandleText(text string) {
	msg, err := DecodeMessage(text)
	if err != nil {
		slog.Debug("Dropping malformed control message", "error", err)
		return
	}

	switch m := msg.(type) {
	case FileMeta:
		s.handleOffer(m)
	case FileAccept:
		if !s.ledger.Resolve(m.ID, true) {
			slog.Debug("Accept for unknown transfer", "id", m.ID)
		}
	case FileReject:
		if !s.ledger.Resolve(m.ID, false) {
			slog.Debug("Reject for unknown transfer", "id", m.ID)
		}
	case FileDone:
		s.handleDone(m)
	case Chat:
		s.emitChat(ChatMessage{Name: m.Name, Text: m.Text, Time: fromMillis(m.TS)})
	case ChatImage:
		s.emitChat(ChatMessage{Name: m.Name, ImageDataURL: m.DataURL, Time: fromMillis(m.TS)})
	case Unknown:
		slog.Debug("Ignoring unknown control message", "type", m.Type)
	}
}

// Close shuts the session down. Pending offers resolve as rejected, active
// and queued send items are paused with reason, and any partially received
// file is discarded. Close is idempotent.
func (s *Session) Close(reason string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.reason = reason
	close(s.closed)

	paused := s.send.pauseAll(reason)
	discarded, sink := s.recv.discard(reason)
	s.mu.Unlock()

	// Items are paused before the ledger wakes their workers, so the
	// implicit reject below never overwrites the paused state.
	s.ledger.RejectAll()

	if sink != nil {
		if err := sink.Abort(); err != nil {
			slog.Warn("Discarding partial file failed", "error", err)
		}
	}

	for _, item := range paused {
		s.emitSend(item)
	}
	if discarded != nil {
		s.emitReceive(*discarded)
	}
	if s.opts.Hooks.OnClose != nil {
		s.opts.Hooks.OnClose(reason)
	}
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) sendControl(m Message) error {
	if s.isClosed() {
		return ErrChannelClosed
	}
	text, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	if err := s.ch.SendText(text); err != nil {
		return WrapError("send "+m.MessageType(), ErrChannelClosed, err.Error())
	}
	return nil
}

func (s *Session) emitSend(item SendItem) {
	if s.opts.Hooks.OnSendUpdate != nil {
		s.opts.Hooks.OnSendUpdate(item)
	}
}

func (s *Session) emitReceive(item ReceiveItem) {
	if s.opts.Hooks.OnReceiveUpdate != nil {
		s.opts.Hooks.OnReceiveUpdate(item)
	}
}

func (s *Session) emitOffer(item ReceiveItem) {
	if s.opts.Hooks.OnOffer != nil {
		s.opts.Hooks.OnOffer(item)
	}
}

func (s *Session) emitChat(msg ChatMessage) {
	if s.opts.Hooks.OnChat != nil {
		s.opts.Hooks.OnChat(msg)
	}
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}

// percent returns done/total as 0..100; an empty total counts as complete.
func percent(done, total int64) int {
	if total <= 0 {
		return 100
	}
	p := int(math.Round(float64(done) / float64(total) * 100))
	return min(100, max(0, p))
}
