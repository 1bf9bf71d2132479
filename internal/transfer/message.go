package transfer

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Control message types exchanged as text on the peer channel.
const (
	MessageTypeFileMeta   = "file-meta"
	MessageTypeFileAccept = "file-accept"
	MessageTypeFileReject = "file-reject"
	MessageTypeFileDone   = "file-done"
	MessageTypeChat       = "chat"
	MessageTypeChatImage  = "chat-image"
)

// Message is a control message. The set of implementations is closed;
// anything unrecognized decodes to Unknown.
type Message interface {
	MessageType() string
	isMessage()
}

// FileMeta offers a file to the peer.
type FileMeta struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	MIME string `json:"mime"`
	// Hash is the lowercase hex SHA-256 of the content; empty when hashing is off.
	Hash string `json:"hash,omitempty"`
}

// FileAccept approves an offer.
type FileAccept struct {
	ID string `json:"id"`
}

// FileReject declines an offer.
type FileReject struct {
	ID string `json:"id"`
}

// FileDone follows the last chunk of a file.
type FileDone struct {
	ID string `json:"id"`
}

// Chat is a text chat line. TS is milliseconds since the Unix epoch.
type Chat struct {
	Text string `json:"text"`
	TS   int64  `json:"ts"`
	Name string `json:"name"`
}

// ChatImage carries an image inline as a data URL.
type ChatImage struct {
	DataURL string `json:"dataUrl"`
	TS      int64  `json:"ts"`
	Name    string `json:"name"`
}

// Unknown is any well-formed message with an unrecognized type.
type Unknown struct {
	Type string
	Raw  []byte
}

func (FileMeta) MessageType() string   { return MessageTypeFileMeta }
func (FileAccept) MessageType() string { return MessageTypeFileAccept }
func (FileReject) MessageType() string { return MessageTypeFileReject }
func (FileDone) MessageType() string   { return MessageTypeFileDone }
func (Chat) MessageType() string       { return MessageTypeChat }
func (ChatImage) MessageType() string  { return MessageTypeChatImage }
func (u Unknown) MessageType() string  { return u.Type }

func (FileMeta) isMessage()   {}
func (FileAccept) isMessage() {}
func (FileReject) isMessage() {}
func (FileDone) isMessage()   {}
func (Chat) isMessage()       {}
func (ChatImage) isMessage()  {}
func (Unknown) isMessage()    {}

// EncodeMessage serializes a control message to its JSON text form.
func EncodeMessage(m Message) (string, error) {
	var (
		data []byte
		err  error
	)
	switch v := m.(type) {
	case FileMeta:
		data, err = sonic.Marshal(struct {
			Type string `json:"type"`
			FileMeta
		}{MessageTypeFileMeta, v})
	case FileAccept:
		data, err = sonic.Marshal(struct {
			Type string `json:"type"`
			FileAccept
		}{MessageTypeFileAccept, v})
	case FileReject:
		data, err = sonic.Marshal(struct {
			Type string `json:"type"`
			FileReject
		}{MessageTypeFileReject, v})
	case FileDone:
		data, err = sonic.Marshal(struct {
			Type string `json:"type"`
			FileDone
		}{MessageTypeFileDone, v})
	case Chat:
		data, err = sonic.Marshal(struct {
			Type string `json:"type"`
			Chat
		}{MessageTypeChat, v})
	case ChatImage:
		data, err = sonic.Marshal(struct {
			Type string `json:"type"`
			ChatImage
		}{MessageTypeChatImage, v})
	case Unknown:
		return string(v.Raw), nil
	default:
		return "", fmt.Errorf("unsupported message %T", m)
	}
	if err != nil {
		return "", NewError("encode message", err)
	}
	return string(data), nil
}

// DecodeMessage parses a text frame. Unrecognized types yield Unknown;
// malformed JSON is an error.
func DecodeMessage(text string) (Message, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := sonic.UnmarshalString(text, &head); err != nil {
		return nil, NewError("decode message", err)
	}

	var (
		msg Message
		err error
	)
	switch head.Type {
	case MessageTypeFileMeta:
		var v FileMeta
		err = sonic.UnmarshalString(text, &v)
		msg = v
	case MessageTypeFileAccept:
		var v FileAccept
		err = sonic.UnmarshalString(text, &v)
		msg = v
	case MessageTypeFileReject:
		var v FileReject
		err = sonic.UnmarshalString(text, &v)
		msg = v
	case MessageTypeFileDone:
		var v FileDone
		err = sonic.UnmarshalString(text, &v)
		msg = v
	case MessageTypeChat:
		var v Chat
		err = sonic.UnmarshalString(text, &v)
		msg = v
	case MessageTypeChatImage:
		var v ChatImage
		err = sonic.UnmarshalString(text, &v)
		msg = v
	default:
		return Unknown{Type: head.Type, Raw: []byte(text)}, nil
	}
	if err != nil {
		return nil, WrapError("decode message", err, head.Type)
	}
	return msg, nil
}
