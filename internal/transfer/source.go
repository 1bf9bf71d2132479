package transfer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// Source is a file offered to the peer.
type Source interface {
	Name() string
	Size() int64
	MIME() string
	Open() (io.ReadCloser, error)
}

// FileSource is a Source backed by a file on disk.
type FileSource struct {
	Path        string
	FileName    string
	FileSize    int64
	ContentType string
}

func (f *FileSource) Name() string { return f.FileName }
func (f *FileSource) Size() int64  { return f.FileSize }

func (f *FileSource) MIME() string {
	if f.ContentType == "" {
		return DefaultMIME
	}
	return f.ContentType
}

func (f *FileSource) Open() (io.ReadCloser, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, NewFileError("open", f.FileName, err)
	}
	return file, nil
}

// BytesSource is an in-memory Source.
type BytesSource struct {
	name string
	mime string
	data []byte
}

// NewBytesSource wraps data as a Source.
func NewBytesSource(name, mime string, data []byte) *BytesSource {
	return &BytesSource{name: name, mime: mime, data: data}
}

func (b *BytesSource) Name() string { return b.name }
func (b *BytesSource) Size() int64  { return int64(len(b.data)) }

func (b *BytesSource) MIME() string {
	if b.mime == "" {
		return DefaultMIME
	}
	return b.mime
}

func (b *BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// HashSource returns the lowercase hex SHA-256 of the source content.
func HashSource(src Source) (string, error) {
	r, err := src.Open()
	if err != nil {
		return "", err
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", NewFileError("hash", src.Name(), err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
