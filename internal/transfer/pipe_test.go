package transfer

import (
	"errors"
	"sync"
)

var errPipeClosed = errors.New("pipe closed")

type frame struct {
	text bool
	data []byte
}

// pipeEnd is one side of an in-memory ordered channel. Frames sent on it are
// handed, in order, to the session bound to the other side.
type pipeEnd struct {
	mu          sync.Mutex
	buffered    uint64
	maxBuffered uint64
	threshold   uint64
	onLow       func()
	closed      bool
	chunks      int
	texts       []string

	out  chan frame
	done chan struct{}
}

func newPipe() (*pipeEnd, *pipeEnd) {
	a := &pipeEnd{out: make(chan frame, 4096), done: make(chan struct{})}
	b := &pipeEnd{out: make(chan frame, 4096), done: make(chan struct{})}
	return a, b
}

func (p *pipeEnd) enqueue(f frame) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errPipeClosed
	}
	p.buffered += uint64(len(f.data))
	p.maxBuffered = max(p.maxBuffered, p.buffered)
	if f.text {
		p.texts = append(p.texts, string(f.data))
	} else {
		p.chunks++
	}
	p.mu.Unlock()

	select {
	case p.out <- f:
		return nil
	case <-p.done:
		return errPipeClosed
	}
}

func (p *pipeEnd) Send(data []byte) error {
	return p.enqueue(frame{data: append([]byte(nil), data...)})
}

func (p *pipeEnd) SendText(text string) error {
	return p.enqueue(frame{text: true, data: []byte(text)})
}

func (p *pipeEnd) BufferedAmount() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffered
}

func (p *pipeEnd) SetBufferedAmountLowThreshold(threshold uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threshold = threshold
}

func (p *pipeEnd) OnBufferedAmountLow(f func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onLow = f
}

func (p *pipeEnd) chunkCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chunks
}

func (p *pipeEnd) sentTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

func (p *pipeEnd) peakBuffered() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxBuffered
}

// deliver feeds frames to the receiving session until the pipe closes.
func (p *pipeEnd) deliver(to *Session) {
	for {
		select {
		case f := <-p.out:
			to.Handle(f.text, f.data)

			p.mu.Lock()
			before := p.buffered
			p.buffered -= uint64(len(f.data))
			fire := before > p.threshold && p.buffered <= p.threshold
			cb := p.onLow
			p.mu.Unlock()
			if fire && cb != nil {
				cb()
			}
		case <-p.done:
			return
		}
	}
}

func (p *pipeEnd) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
}

// peers is a connected pair of sessions.
type peers struct {
	a, b      *Session
	pipeA     *pipeEnd
	pipeB     *pipeEnd
	closeOnce sync.Once
}

func connect(optsA, optsB Options) *peers {
	pa, pb := newPipe()
	p := &peers{pipeA: pa, pipeB: pb}
	p.a = NewSession(pa, optsA)
	p.b = NewSession(pb, optsB)
	go pa.deliver(p.b)
	go pb.deliver(p.a)
	return p
}

// close mimics both ends observing the channel close.
func (p *peers) close(reason string) {
	p.closeOnce.Do(func() {
		p.pipeA.close()
		p.pipeB.close()
		p.a.Close(reason)
		p.b.Close(reason)
	})
}

// stuckChannel accepts writes but never drains.
type stuckChannel struct {
	mu     sync.Mutex
	chunks int
	texts  []string
}

func (c *stuckChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks++
	return nil
}

func (c *stuckChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *stuckChannel) BufferedAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chunks == 0 {
		return 0
	}
	return HighWaterMark + 1
}

func (c *stuckChannel) SetBufferedAmountLowThreshold(uint64) {}
func (c *stuckChannel) OnBufferedAmountLow(func())           {}

func (c *stuckChannel) chunkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunks
}

func (c *stuckChannel) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

// heldChannel counts every byte written and never drains.
type heldChannel struct {
	mu       sync.Mutex
	buffered uint64
	chunks   int
}

func (c *heldChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffered += uint64(len(data))
	c.chunks++
	return nil
}

func (c *heldChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffered += uint64(len(text))
	return nil
}

func (c *heldChannel) BufferedAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

func (c *heldChannel) SetBufferedAmountLowThreshold(uint64) {}
func (c *heldChannel) OnBufferedAmountLow(func())           {}

func (c *heldChannel) chunkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunks
}

// brokenChannel fails every write.
type brokenChannel struct{}

func (brokenChannel) Send([]byte) error                    { return errPipeClosed }
func (brokenChannel) SendText(string) error                { return errPipeClosed }
func (brokenChannel) BufferedAmount() uint64               { return 0 }
func (brokenChannel) SetBufferedAmountLowThreshold(uint64) {}
func (brokenChannel) OnBufferedAmountLow(func())           {}
