package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"strings"
	"time"

	"github.com/Maolipeng/web-drop/internal/utils"
)

// ReceiveState is the lifecycle position of an incoming file.
type ReceiveState string

const (
	ReceivePending  ReceiveState = "pending"
	ReceiveAccepted ReceiveState = "accepted"
	ReceiveRejected ReceiveState = "rejected"
)

// Verification is the integrity outcome of a received file.
type Verification int

const (
	Unverified Verification = iota
	Verified
	VerificationFailed
)

func (v Verification) String() string {
	switch v {
	case Verified:
		return "verified"
	case VerificationFailed:
		return "verification failed"
	default:
		return "unverified"
	}
}

// ReceiveItem is a snapshot of an incoming file.
type ReceiveItem struct {
	ID       string
	Name     string
	Size     int64
	MIME     string
	Hash     string
	State    ReceiveState
	Status   string
	Meta     string
	Progress int
	Received int64

	// Finished is set once an accepted item is complete or discarded.
	Finished     bool
	Verification Verification
}

// Received is a completed file handed to the consumer.
type Received struct {
	Item ReceiveItem

	// Location is where the sink committed the file.
	Location string
	Sink     Sink
}

type receiveEntry struct {
	ReceiveItem
	meta FileMeta
}

type activeReceive struct {
	entry   *receiveEntry
	sink    Sink
	hasher  hash.Hash
	started time.Time
	lastPct int
}

// receiveQueue is guarded by Session.mu.
type receiveQueue struct {
	items     []*receiveEntry
	presented *receiveEntry
	active    *activeReceive
}

// present picks the earliest pending offer when nothing is presented or
// being received.
func (q *receiveQueue) present() *ReceiveItem {
	if q.presented != nil || q.active != nil {
		return nil
	}
	for _, e := range q.items {
		if e.State == ReceivePending {
			q.presented = e
			item := e.ReceiveItem
			return &item
		}
	}
	return nil
}

func (q *receiveQueue) discard(reason string) (*ReceiveItem, Sink) {
	q.presented = nil
	if q.active == nil {
		return nil, nil
	}
	a := q.active
	q.active = nil
	a.entry.Status = reason
	a.entry.Finished = true
	item := a.entry.ReceiveItem
	return &item, a.sink
}

func (q *receiveQueue) snapshot() []ReceiveItem {
	items := make([]ReceiveItem, len(q.items))
	for i, e := range q.items {
		items[i] = e.ReceiveItem
	}
	return items
}

// ReceiveItems returns a snapshot of the receive queue.
func (s *Session) ReceiveItems() []ReceiveItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recv.snapshot()
}

// Presented returns the offer currently awaiting a decision.
func (s *Session) Presented() (ReceiveItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recv.presented == nil {
		return ReceiveItem{}, false
	}
	return s.recv.presented.ReceiveItem, true
}

func (s *Session) handleOffer(meta FileMeta) {
	if meta.MIME == "" {
		meta.MIME = DefaultMIME
	}
	e := &receiveEntry{
		ReceiveItem: ReceiveItem{
			ID:     meta.ID,
			Name:   meta.Name,
			Size:   meta.Size,
			MIME:   meta.MIME,
			Hash:   meta.Hash,
			State:  ReceivePending,
			Status: StatusAwaiting,
			Meta:   utils.FormatSize(meta.Size),
		},
		meta: meta,
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.recv.items = append(s.recv.items, e)
	item := e.ReceiveItem
	next := s.recv.present()
	s.mu.Unlock()

	s.emitReceive(item)
	if next != nil {
		s.emitOffer(*next)
	}
}

// Accept approves the presented offer and starts receiving it.
func (s *Session) Accept() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrChannelClosed
	}
	e := s.recv.presented
	if e == nil {
		s.mu.Unlock()
		return ErrNoOffer
	}
	s.recv.presented = nil

	sink, err := s.opts.Sinks(e.meta)
	if err != nil {
		e.State = ReceiveRejected
		e.Status = StatusSaveFailed
		item := e.ReceiveItem
		next := s.recv.present()
		s.mu.Unlock()

		slog.Warn("Cannot store incoming file", "file", e.Name, "error", err)
		s.emitReceive(item)
		if rerr := s.sendControl(FileReject{ID: e.ID}); rerr != nil {
			s.lose(rerr)
			return err
		}
		if next != nil {
			s.emitOffer(*next)
		}
		return err
	}

	e.State = ReceiveAccepted
	e.Status = StatusAccepted
	a := &activeReceive{entry: e, sink: sink, started: time.Now(), lastPct: -1}
	if e.Hash != "" {
		a.hasher = sha256.New()
	}
	s.recv.active = a
	item := e.ReceiveItem
	s.mu.Unlock()

	s.emitReceive(item)
	if err := s.sendControl(FileAccept{ID: e.ID}); err != nil {
		s.lose(err)
		return err
	}
	return nil
}

// Reject declines the presented offer and presents the next one.
func (s *Session) Reject() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrChannelClosed
	}
	e := s.recv.presented
	if e == nil {
		s.mu.Unlock()
		return ErrNoOffer
	}
	s.recv.presented = nil
	e.State = ReceiveRejected
	e.Status = StatusDeclined
	item := e.ReceiveItem
	next := s.recv.present()
	s.mu.Unlock()

	s.emitReceive(item)
	err := s.sendControl(FileReject{ID: e.ID})
	if next != nil {
		s.emitOffer(*next)
	}
	if err != nil {
		s.lose(err)
	}
	return err
}

// HandleChunk appends a binary chunk to the active file. Chunks arriving with
// no accepted file are dropped.
func (s *Session) HandleChunk(chunk []byte) {
	s.mu.Lock()
	a := s.recv.active
	if a == nil {
		s.mu.Unlock()
		slog.Debug("Dropping chunk without active transfer", "bytes", len(chunk))
		return
	}

	if _, err := a.sink.Write(chunk); err != nil {
		s.mu.Unlock()
		slog.Warn("Writing chunk failed", "file", a.entry.Name, "error", err)
		s.Close(fmt.Sprintf("%s: %v", StatusSaveFailed, err))
		return
	}
	if a.hasher != nil {
		a.hasher.Write(chunk)
	}

	e := a.entry
	e.Received += int64(len(chunk))
	e.Progress = percent(e.Received, e.Size)
	e.Status = StatusReceiving
	speed := utils.Rate(e.Received, time.Since(a.started))
	e.Meta = fmt.Sprintf("%s / %s · %s", utils.FormatSize(e.Received), utils.FormatSize(e.Size), utils.FormatSpeed(speed))

	if e.Received >= e.Size {
		s.finalizeLocked()
		return
	}

	changed := e.Progress != a.lastPct
	a.lastPct = e.Progress
	item := e.ReceiveItem
	s.mu.Unlock()

	if changed {
		s.emitReceive(item)
	}
}

// handleDone finalizes the active file when the sender reports the end and
// every byte is already in. A done for any other id is ignored.
func (s *Session) handleDone(done FileDone) {
	s.mu.Lock()
	a := s.recv.active
	if a == nil || a.entry.ID != done.ID {
		s.mu.Unlock()
		slog.Debug("Ignoring file-done", "id", done.ID)
		return
	}
	if a.entry.Received >= a.entry.Size {
		s.finalizeLocked()
		return
	}
	s.mu.Unlock()
}

// finalizeLocked completes the active file. It is entered with s.mu held and
// releases it.
func (s *Session) finalizeLocked() {
	a := s.recv.active
	s.recv.active = nil
	e := a.entry

	e.Verification = Unverified
	hashLabel := "not provided"
	if a.hasher != nil {
		if strings.EqualFold(hex.EncodeToString(a.hasher.Sum(nil)), e.Hash) {
			e.Verification = Verified
			hashLabel = "match"
		} else {
			e.Verification = VerificationFailed
			hashLabel = "mismatch"
		}
	}

	location, err := a.sink.Commit()
	e.Progress = 100
	e.Finished = true
	switch {
	case err != nil:
		e.Status = StatusSaveFailed
		hashLabel = err.Error()
	case e.Verification == VerificationFailed:
		e.Status = StatusBadHash
	default:
		e.Status = StatusComplete
	}
	e.Meta = fmt.Sprintf("%s · SHA-256 %s", utils.FormatSize(e.Size), hashLabel)

	item := e.ReceiveItem
	next := s.recv.present()
	s.mu.Unlock()

	if err != nil {
		slog.Warn("Saving received file failed", "file", e.Name, "error", err)
	}
	s.emitReceive(item)
	if err == nil && s.opts.Hooks.OnReceived != nil {
		s.opts.Hooks.OnReceived(Received{Item: item, Location: location, Sink: a.sink})
	}
	if next != nil {
		s.emitOffer(*next)
	}
}
