package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Maolipeng/web-drop/internal/config"
	"github.com/Maolipeng/web-drop/internal/files"
	"github.com/Maolipeng/web-drop/internal/signaling"
	"github.com/Maolipeng/web-drop/internal/transfer"
	"github.com/Maolipeng/web-drop/internal/ui"
	"github.com/Maolipeng/web-drop/internal/utils"
	"github.com/Maolipeng/web-drop/internal/webrtc"
)

// ErrNotConnected is returned by actions issued before the data channel opens.
var ErrNotConnected = errors.New("not connected to a peer yet")

// ConnectionContext is an open relay connection.
type ConnectionContext struct {
	Client  *signaling.Client
	Handler *signaling.Handler
	Config  *config.Config
}

func NewConnectionContext(ctx context.Context, cfg *config.Config) (*ConnectionContext, error) {
	client := signaling.NewClient(cfg.ServerURL)
	if err := client.Connect(ctx); err != nil {
		return nil, transfer.NewError("connect to relay", err)
	}

	handler := signaling.NewHandler(client)
	go handler.Start()

	return &ConnectionContext{
		Client:  client,
		Handler: handler,
		Config:  cfg,
	}, nil
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// join asks the relay for a place in the room and waits for the answer.
func (c *ConnectionContext) join(ctx context.Context, code string) (signaling.JoinAckPayload, error) {
	if err := c.Client.Send(signaling.MessageTypeJoin, signaling.JoinPayload{Code: code, Name: c.Config.Name}); err != nil {
		return signaling.JoinAckPayload{}, transfer.NewError("join room", err)
	}

	select {
	case ack := <-c.Handler.JoinAck:
		return ack, nil
	case errMsg := <-c.Handler.Error:
		return signaling.JoinAckPayload{}, transfer.WrapError("join room", transfer.ErrSignaling, errMsg)
	case <-c.Handler.Done():
		return signaling.JoinAckPayload{}, transfer.WrapError("join room", transfer.ErrSignaling, "relay connection closed")
	case <-ctx.Done():
		return signaling.JoinAckPayload{}, ctx.Err()
	}
}

// RoomOptions control how a Room behaves once connected.
type RoomOptions struct {
	Mode ui.Mode

	// AutoAccept accepts every incoming offer without asking.
	AutoAccept bool

	// Sinks stores accepted files.
	Sinks transfer.SinkFactory

	// ImageDir, when set, is where received chat images are written.
	ImageDir string

	// Initial files are offered as soon as the channel opens.
	Initial []transfer.Source
}

// Room drives one room membership: the peer connection lifecycle, the
// transfer session on top of it, and the view. It implements ui.Actions.
type Room struct {
	conn *ConnectionContext
	opts RoomOptions
	ice  []config.ICEServer
	post func(tea.Msg)

	code      string
	role      signaling.Role
	peerLabel string

	mu       sync.Mutex
	peer     *webrtc.Peer
	session  *transfer.Session
	pending  []transfer.Source
	received []transfer.Received
	linked   bool

	changed  chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
}

func NewRoom(conn *ConnectionContext, opts RoomOptions) *Room {
	return &Room{
		conn:    conn,
		opts:    opts,
		post:    func(tea.Msg) {},
		pending: opts.Initial,
		changed: make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
}

// Received returns the files committed so far.
func (r *Room) Received() []transfer.Received {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transfer.Received(nil), r.received...)
}

// Run joins code and serves the room until the session is finished, the
// relay goes away, the user quits or ctx is cancelled.
func (r *Room) Run(ctx context.Context, code string) error {
	r.post(ui.StatusMsg("Fetching ICE servers"))
	r.ice = r.conn.Config.ICEServers(ctx)
	if r.conn.Config.ForceRelay && !config.HasTURN(r.ice) {
		r.post(ui.NoticeMsg("No TURN server available, relay mode ignored"))
	}

	ack, err := r.conn.join(ctx, code)
	if err != nil {
		return err
	}
	r.code, r.role = ack.Code, ack.Role
	r.post(ui.RoomMsg{Code: ack.Code, Role: ack.Role})
	slog.Debug("Joined room", "code", ack.Code, "role", ack.Role)

	var ready <-chan *transfer.Session
	var failed <-chan error

	if ack.Role == signaling.RoleCallee {
		r.post(ui.StatusMsg("Connecting to peer"))
		if ready, failed, err = r.newPeer(signaling.RoleCallee); err != nil {
			return err
		}
	} else {
		r.post(ui.StatusMsg("Waiting for a peer to join"))
	}

	handler := r.conn.Handler
	for {
		select {
		case joined := <-handler.PeerJoined:
			// The member already waiting in the room always makes the offer,
			// including a former callee whose partner left.
			r.role = signaling.RoleCaller
			r.peerLabel = joined.Name
			r.post(ui.PeerMsg{Name: joined.Name, Present: true})
			r.post(ui.StatusMsg("Connecting to peer"))
			if ready, failed, err = r.newPeer(signaling.RoleCaller); err != nil {
				return err
			}
			if err := r.currentPeer().Offer(); err != nil {
				r.post(ui.NoticeMsg(err.Error()))
			}

		case msg := <-handler.Signal:
			peer := r.currentPeer()
			if peer == nil {
				if ready, failed, err = r.newPeer(signaling.RoleCallee); err != nil {
					return err
				}
				peer = r.currentPeer()
			}
			if err := peer.HandleSignal(msg); err != nil {
				slog.Warn("Signal handling failed", "type", msg.Type, "error", err)
			}

		case <-handler.PeerLeft:
			ready, failed = nil, nil
			if done, err := r.lost("Peer left, waiting for a peer to join"); done {
				return err
			}

		case s := <-ready:
			ready = nil
			r.attach(s)
			r.post(ui.PeerMsg{Name: r.peerLabel, Present: true})
			r.post(ui.StatusMsg("Connected"))

		case err := <-failed:
			ready, failed = nil, nil
			slog.Debug("Peer connection ended", "error", err)
			if done, err := r.lost("Connection lost, waiting for the peer"); done {
				return err
			}

		case <-r.changed:
			if r.opts.Mode == ui.ModeSend && r.sendSettled() {
				return r.sendOutcome()
			}

		case errMsg := <-handler.Error:
			r.post(ui.NoticeMsg(errMsg))

		case <-handler.Done():
			return transfer.WrapError("relay", transfer.ErrSignaling, "connection closed")

		case <-r.quit:
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

// newPeer replaces the current peer with a fresh one for role.
func (r *Room) newPeer(role signaling.Role) (<-chan *transfer.Session, <-chan error, error) {
	r.closePeer(transfer.StatusConnLost)

	peer, err := webrtc.NewPeer(webrtc.Config{
		ICEServers: r.ice,
		ForceRelay: r.conn.Config.ForceRelay,
	}, role, r.conn.Client, r.transferOptions())
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	r.peer = peer
	r.mu.Unlock()
	return peer.Ready(), peer.Failed(), nil
}

func (r *Room) currentPeer() *webrtc.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peer
}

func (r *Room) current() *transfer.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

func (r *Room) wasLinked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.linked
}

// lost tears down the peer after the link dropped. It reports whether the
// room is finished: a receive ends with its sender, and a send that had
// started cannot resume on a new peer.
func (r *Room) lost(status string) (bool, error) {
	linked := r.wasLinked()
	settled := r.sendSettled()
	outcome := r.sendOutcome()

	r.closePeer(transfer.StatusConnLost)
	r.post(ui.PeerMsg{Present: false})
	r.post(ui.StatusMsg(status))

	switch {
	case !linked:
		return false, nil
	case r.opts.Mode == ui.ModeReceive:
		return true, nil
	case r.opts.Mode == ui.ModeSend && settled:
		return true, outcome
	case r.opts.Mode == ui.ModeSend:
		return true, transfer.WrapError("send", transfer.ErrChannelClosed, "peer disconnected")
	default:
		return false, nil
	}
}

// attach binds a freshly opened session and offers anything queued so far.
func (r *Room) attach(s *transfer.Session) {
	r.mu.Lock()
	r.session = s
	r.linked = true
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(pending) > 0 {
		if _, err := s.Enqueue(pending...); err != nil {
			r.post(ui.NoticeMsg(err.Error()))
		}
	}
	// an offer can land before the local open event
	if _, ok := s.Presented(); ok && r.opts.AutoAccept {
		go s.Accept()
	}
	r.notify()
}

func (r *Room) closePeer(reason string) {
	r.mu.Lock()
	peer := r.peer
	r.peer = nil
	r.session = nil
	r.mu.Unlock()

	if peer != nil {
		peer.Close(reason)
	}
}

func (r *Room) notify() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// sendSettled reports whether every offered file reached a final state.
func (r *Room) sendSettled() bool {
	s := r.current()
	if s == nil {
		return false
	}
	items := s.SendItems()
	if len(items) == 0 || s.SendPending() > 0 {
		return false
	}
	for _, item := range items {
		if !item.State.Terminal() {
			return false
		}
	}
	return true
}

func (r *Room) sendOutcome() error {
	s := r.current()
	if s == nil {
		return nil
	}
	for _, item := range s.SendItems() {
		if item.State == transfer.SendPaused {
			return transfer.NewFileError("send", item.Name, transfer.ErrChannelClosed)
		}
	}
	return nil
}

func (r *Room) transferOptions() transfer.Options {
	return transfer.Options{
		Name:  r.conn.Config.Name,
		Hash:  r.conn.Config.Hash,
		Sinks: r.opts.Sinks,
		Hooks: transfer.Hooks{
			OnSendUpdate: func(item transfer.SendItem) {
				r.post(ui.SendUpdateMsg(item))
				r.notify()
			},
			OnReceiveUpdate: func(item transfer.ReceiveItem) {
				r.post(ui.ReceiveUpdateMsg(item))
			},
			OnOffer: func(item transfer.ReceiveItem) {
				if r.opts.AutoAccept {
					go r.Accept()
					return
				}
				r.post(ui.OfferMsg(item))
			},
			OnReceived: func(rec transfer.Received) {
				r.mu.Lock()
				r.received = append(r.received, rec)
				r.mu.Unlock()
				slog.Info("File received", "file", rec.Item.Name, "location", rec.Location)
			},
			OnChat: func(msg transfer.ChatMessage) {
				r.post(ui.ChatMsg(msg))
				if msg.IsImage() && r.opts.ImageDir != "" {
					if path, err := saveChatImage(r.opts.ImageDir, msg); err != nil {
						r.post(ui.NoticeMsg(err.Error()))
					} else {
						r.post(ui.NoticeMsg("Image saved to " + path))
					}
				}
			},
		},
	}
}

// saveChatImage writes a received chat image next to downloaded files.
func saveChatImage(dir string, msg transfer.ChatMessage) (string, error) {
	mimeType, data, err := transfer.DecodeDataURL(msg.ImageDataURL)
	if err != nil {
		return "", err
	}
	ext := ".bin"
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		ext = exts[0]
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", transfer.NewError("create image dir", err)
	}
	path := utils.GetUniqueFilename(filepath.Join(dir, fmt.Sprintf("chat-%d%s", msg.Time.UnixMilli(), ext)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", transfer.NewFileError("save image", path, err)
	}
	return path, nil
}

func (r *Room) Accept() error {
	s := r.current()
	if s == nil {
		return ErrNotConnected
	}
	return s.Accept()
}

func (r *Room) Reject() error {
	s := r.current()
	if s == nil {
		return ErrNotConnected
	}
	return s.Reject()
}

func (r *Room) SendChat(text string) (transfer.ChatMessage, error) {
	s := r.current()
	if s == nil {
		return transfer.ChatMessage{}, ErrNotConnected
	}
	return s.SendChat(text)
}

func (r *Room) SendImage(path string) (transfer.ChatMessage, error) {
	s := r.current()
	if s == nil {
		return transfer.ChatMessage{}, ErrNotConnected
	}
	infos, err := files.ValidateFiles([]string{path})
	if err != nil {
		return transfer.ChatMessage{}, err
	}
	if infos[0].Size > transfer.MaxChatImageSize {
		return transfer.ChatMessage{}, transfer.ErrImageTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return transfer.ChatMessage{}, transfer.NewFileError("read image", path, err)
	}
	return s.SendChatImage(infos[0].Type, data)
}

// SendFiles offers paths to the peer, or holds them until a peer connects.
func (r *Room) SendFiles(paths []string) error {
	infos, err := files.ValidateFiles(paths)
	if err != nil {
		return err
	}
	sources := files.Sources(infos)

	r.mu.Lock()
	s := r.session
	if s == nil {
		r.pending = append(r.pending, sources...)
	}
	r.mu.Unlock()

	if s == nil {
		return nil
	}
	_, err = s.Enqueue(sources...)
	return err
}

func (r *Room) Quit() {
	r.quitOnce.Do(func() { close(r.quit) })
}

// Close releases the peer connection.
func (r *Room) Close() {
	r.Quit()
	r.closePeer(transfer.StatusConnLost)
}

// runRoom shows the session view while the room is served and returns the
// final summary.
func runRoom(ctx context.Context, room *Room, code string) (ui.Summary, error) {
	model := ui.NewSessionModel(room.opts.Mode, room)
	program := tea.NewProgram(model, tea.WithContext(ctx))
	room.post = program.Send

	result := make(chan error, 1)
	go func() {
		err := room.Run(ctx, code)
		program.Send(ui.DoneMsg{Err: err})
		result <- err
	}()

	_, uiErr := program.Run()
	room.Quit()
	runErr := <-result
	room.Close()

	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return model.Summary(), uiErr
	}
	return model.Summary(), runErr
}
