package transfer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Maolipeng/web-drop/internal/utils"
	"github.com/google/uuid"
)

// SendState is the lifecycle position of an outgoing file.
type SendState string

const (
	SendQueued   SendState = "queued"
	SendHashing  SendState = "hashing"
	SendWaiting  SendState = "waiting"
	SendSending  SendState = "sending"
	SendPaused   SendState = "paused"
	SendDone     SendState = "done"
	SendRejected SendState = "rejected"
)

// Active reports whether the item occupies the single send slot.
func (s SendState) Active() bool {
	return s == SendHashing || s == SendWaiting || s == SendSending
}

// Terminal reports whether the item will never change again on its own.
func (s SendState) Terminal() bool {
	return s == SendPaused || s == SendDone || s == SendRejected
}

// SendItem is a snapshot of an outgoing file.
type SendItem struct {
	ID       string
	Name     string
	Size     int64
	MIME     string
	Hash     string
	State    SendState
	Status   string
	Meta     string
	Progress int
	Sent     int64
}

type sendEntry struct {
	SendItem
	src Source
}

// sendQueue is guarded by Session.mu.
type sendQueue struct {
	items   []*sendEntry
	running bool
}

func (q *sendQueue) nextQueued() *sendEntry {
	for _, e := range q.items {
		if e.State == SendQueued {
			return e
		}
	}
	return nil
}

func (q *sendQueue) pauseAll(reason string) []SendItem {
	var changed []SendItem
	for _, e := range q.items {
		if e.State == SendQueued || e.State.Active() {
			e.State = SendPaused
			e.Status = reason
			changed = append(changed, e.SendItem)
		}
	}
	q.running = false
	return changed
}

func (q *sendQueue) snapshot() []SendItem {
	items := make([]SendItem, len(q.items))
	for i, e := range q.items {
		items[i] = e.SendItem
	}
	return items
}

// Enqueue appends files to the send queue and returns their ids.
// Files are offered one at a time in the order they were queued.
func (s *Session) Enqueue(sources ...Source) ([]string, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrChannelClosed
	}

	ids := make([]string, 0, len(sources))
	added := make([]SendItem, 0, len(sources))
	for _, src := range sources {
		e := &sendEntry{
			SendItem: SendItem{
				ID:     uuid.NewString(),
				Name:   src.Name(),
				Size:   src.Size(),
				MIME:   src.MIME(),
				State:  SendQueued,
				Status: StatusQueued,
				Meta:   utils.FormatSize(src.Size()),
			},
			src: src,
		}
		s.send.items = append(s.send.items, e)
		ids = append(ids, e.ID)
		added = append(added, e.SendItem)
	}

	start := !s.send.running
	s.send.running = true
	s.mu.Unlock()

	for _, item := range added {
		s.emitSend(item)
	}
	if start {
		go s.processSendQueue()
	}
	return ids, nil
}

// SendItems returns a snapshot of the send queue.
func (s *Session) SendItems() []SendItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send.snapshot()
}

// SendPending returns the number of items not yet in a terminal state.
func (s *Session) SendPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.send.items {
		if !e.State.Terminal() {
			n++
		}
	}
	return n
}

// update applies fn to the entry under the session lock and publishes the
// result. It reports false when the entry was paused by Close meanwhile.
func (s *Session) update(e *sendEntry, fn func(*SendItem)) bool {
	s.mu.Lock()
	if e.State == SendPaused {
		s.mu.Unlock()
		return false
	}
	fn(&e.SendItem)
	item := e.SendItem
	s.mu.Unlock()

	s.emitSend(item)
	return true
}

// processSendQueue is the single send worker. It always picks the earliest
// queued item and handles it to completion before looking again.
func (s *Session) processSendQueue() {
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		e := s.send.nextQueued()
		if e == nil {
			s.send.running = false
			s.mu.Unlock()
			return
		}
		e.State = SendHashing
		e.Status = StatusSkipHash
		if s.opts.Hash {
			e.Status = StatusHashing
		}
		item := e.SendItem
		s.mu.Unlock()

		s.emitSend(item)
		s.sendOne(e)
	}
}

func (s *Session) sendOne(e *sendEntry) {
	var hash string
	if s.opts.Hash {
		h, err := HashSource(e.src)
		if err != nil {
			slog.Warn("Hashing failed", "file", e.Name, "error", err)
			s.update(e, func(it *SendItem) {
				it.State = SendPaused
				it.Status = StatusReadFailed
			})
			return
		}
		hash = h
	}

	if !s.update(e, func(it *SendItem) {
		it.Hash = hash
		it.State = SendWaiting
		it.Status = StatusAwaiting
	}) {
		return
	}

	decision := s.ledger.Await(e.ID)
	meta := FileMeta{ID: e.ID, Name: e.Name, Size: e.Size, MIME: e.MIME, Hash: hash}
	if err := s.sendControl(meta); err != nil {
		s.ledger.Resolve(e.ID, false)
		s.lose(err)
		return
	}

	if accepted := <-decision; !accepted {
		s.update(e, func(it *SendItem) {
			it.State = SendRejected
			it.Status = StatusRejected
		})
		return
	}

	if err := s.stream(e); err != nil {
		if errors.Is(err, ErrChannelClosed) {
			s.lose(err)
			return
		}
		slog.Warn("Sending file failed", "file", e.Name, "error", err)
		s.update(e, func(it *SendItem) {
			it.State = SendPaused
			it.Status = fmt.Sprintf("%s: %v", StatusReadFailed, err)
		})
		return
	}

	if err := s.sendControl(FileDone{ID: e.ID}); err != nil {
		s.lose(err)
		return
	}

	hashLabel := "not provided"
	if hash != "" {
		hashLabel = "sent"
	}
	s.update(e, func(it *SendItem) {
		it.State = SendDone
		it.Status = StatusSent
		it.Progress = 100
		it.Sent = it.Size
		it.Meta = fmt.Sprintf("%s · SHA-256 %s", utils.FormatSize(it.Size), hashLabel)
	})
}

// stream writes the file as raw chunks in offset order.
func (s *Session) stream(e *sendEntry) error {
	r, err := e.src.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	s.update(e, func(it *SendItem) {
		it.State = SendSending
		it.Status = StatusSending
	})

	src := io.LimitReader(r, e.Size)
	start := time.Now()
	lastProgress := -1
	var sent int64

	for sent < e.Size {
		if err := s.window.wait(s.closed); err != nil {
			return err
		}

		chunk := make([]byte, ChunkSize)
		n, err := io.ReadFull(src, chunk)
		if n > 0 {
			if err := s.ch.Send(chunk[:n]); err != nil {
				return WrapError("send chunk", ErrChannelClosed, err.Error())
			}
			sent += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			if sent < e.Size {
				return NewFileError("read", e.Name, io.ErrUnexpectedEOF)
			}
			break
		}
		if err != nil {
			return NewFileError("read", e.Name, err)
		}

		progress := percent(sent, e.Size)
		if progress == lastProgress && sent < e.Size {
			continue
		}
		lastProgress = progress
		speed := utils.Rate(sent, time.Since(start))
		if !s.update(e, func(it *SendItem) {
			it.Sent = sent
			it.Progress = progress
			it.Meta = fmt.Sprintf("%s / %s · %s", utils.FormatSize(sent), utils.FormatSize(it.Size), utils.FormatSpeed(speed))
		}) {
			return ErrChannelClosed
		}
	}
	// file-done goes through the same window
	return s.window.wait(s.closed)
}

// lose closes the session after a failed channel write.
func (s *Session) lose(err error) {
	slog.Debug("Peer channel write failed", "error", err)
	s.Close(StatusConnLost)
}
