package transfer

// Channel is the ordered, reliable peer channel a Session runs on.
// *webrtc.DataChannel from pion satisfies it.
type Channel interface {
	Send(data []byte) error
	SendText(text string) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(threshold uint64)
	OnBufferedAmountLow(f func())
}

// window blocks chunk writes while one more chunk would push the channel's
// outgoing buffer above the high-water mark and releases them once it drains below the low-water mark.
type window struct {
	ch      Channel
	drained chan struct{}
}

func newWindow(ch Channel) *window {
	w := &window{
		ch:      ch,
		drained: make(chan struct{}, 1),
	}
	ch.SetBufferedAmountLowThreshold(LowWaterMark)
	ch.OnBufferedAmountLow(func() {
		select {
		case w.drained <- struct{}{}:
		default:
		}
	})
	return w
}

// wait returns once there is room for another chunk, or ErrChannelClosed
// when closed fires first. There is no timeout.
func (w *window) wait(closed <-chan struct{}) error {
	for w.ch.BufferedAmount()+ChunkSize > HighWaterMark {
		select {
		case <-w.drained:
		case <-closed:
			return ErrChannelClosed
		}
	}
	select {
	case <-closed:
		return ErrChannelClosed
	default:
		return nil
	}
}
