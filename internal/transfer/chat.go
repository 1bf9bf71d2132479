package transfer

import (
	"encoding/base64"
	"strings"
	"time"
)

// ChatMessage is a chat line or image, sent or received.
type ChatMessage struct {
	Name         string
	Text         string
	ImageDataURL string
	Time         time.Time
	Self         bool
}

// IsImage reports whether the message carries an image.
func (m ChatMessage) IsImage() bool {
	return m.ImageDataURL != ""
}

// SendChat sends a text line to the peer. Chat is never queued and never
// acknowledged; it interleaves freely with file chunks.
func (s *Session) SendChat(text string) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, ErrEmptyMessage
	}
	now := time.Now()
	if err := s.sendControl(Chat{Text: text, TS: now.UnixMilli(), Name: s.opts.Name}); err != nil {
		return ChatMessage{}, err
	}
	return ChatMessage{Name: s.opts.Name, Text: text, Time: now, Self: true}, nil
}

// SendChatImage sends an image inline as a data URL.
func (s *Session) SendChatImage(mime string, data []byte) (ChatMessage, error) {
	if len(data) > MaxChatImageSize {
		return ChatMessage{}, ErrImageTooLarge
	}
	if mime == "" {
		mime = DefaultMIME
	}
	dataURL := EncodeDataURL(mime, data)
	now := time.Now()
	if err := s.sendControl(ChatImage{DataURL: dataURL, TS: now.UnixMilli(), Name: s.opts.Name}); err != nil {
		return ChatMessage{}, err
	}
	return ChatMessage{Name: s.opts.Name, ImageDataURL: dataURL, Time: now, Self: true}, nil
}

// EncodeDataURL builds a base64 data URL.
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL splits a base64 data URL into its MIME type and content.
func DecodeDataURL(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", nil, WrapError("decode data URL", ErrInvalidDataURL, "not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, WrapError("decode data URL", ErrInvalidDataURL, err.Error())
	}
	return mime, data, nil
}
