package transfer

// --- Flow Control Constants ---
const (
	ChunkSize     = 16 * 1024       // 16 KB - payload of every binary message
	HighWaterMark = 4 * 1024 * 1024 // 4 MB - backpressure threshold
	LowWaterMark  = 512 * 1024      // 512 KB - resume threshold
)

const (
	// MaxChatImageSize is the largest image accepted for a chat-image message.
	MaxChatImageSize = 3 * 1024 * 1024

	// DefaultMIME is announced for sources without a content type.
	DefaultMIME = "application/octet-stream"

	// DefaultChatName is used when the local display name is empty.
	DefaultChatName = "Anonymous"
)

// Status labels shown next to queue items.
const (
	StatusQueued     = "Waiting to send"
	StatusHashing    = "Hashing"
	StatusSkipHash   = "Skipping hash"
	StatusAwaiting   = "Awaiting confirmation"
	StatusSending    = "Sending"
	StatusSent       = "Sent"
	StatusRejected   = "Rejected by peer"
	StatusConnLost   = "Connection lost"
	StatusReadFailed = "Read failed"
	StatusAccepted   = "Accepted"
	StatusReceiving  = "Receiving"
	StatusVerifying  = "Verifying"
	StatusComplete   = "Complete"
	StatusBadHash    = "Verification failed"
	StatusDeclined   = "Rejected"
	StatusSaveFailed = "Save failed"
)
