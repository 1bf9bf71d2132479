package transfer

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"

	"github.com/Maolipeng/web-drop/internal/utils"
)

// Sink accumulates the bytes of one accepted file.
type Sink interface {
	Write(data []byte) (int, error)

	// Commit finalizes the artifact and returns where it ended up.
	Commit() (string, error)

	// Abort discards everything written so far.
	Abort() error
}

// SinkFactory opens a sink for an accepted offer.
type SinkFactory func(meta FileMeta) (Sink, error)

// MemorySink keeps a received file in memory.
type MemorySink struct {
	mu        sync.Mutex
	name      string
	buf       bytes.Buffer
	committed bool
	aborted   bool
}

// MemorySinks returns a SinkFactory that hands every sink to keep.
func MemorySinks(keep func(*MemorySink)) SinkFactory {
	return func(meta FileMeta) (Sink, error) {
		s := &MemorySink{name: meta.Name}
		if keep != nil {
			keep(s)
		}
		return s, nil
	}
}

func (m *MemorySink) Write(data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Write(data)
}

func (m *MemorySink) Commit() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = true
	return m.name, nil
}

func (m *MemorySink) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = true
	m.buf.Reset()
	return nil
}

// Bytes returns a copy of the received content.
func (m *MemorySink) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.buf.Bytes())
}

// Committed reports whether the file was finalized.
func (m *MemorySink) Committed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed
}

// Aborted reports whether the partial file was discarded.
func (m *MemorySink) Aborted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborted
}

// FileSink writes a received file into a directory. Data goes to a partial
// file that is renamed to a unique final name on Commit.
type FileSink struct {
	File          *os.File
	Dir           string
	Meta          FileMeta
	ReceivedBytes int64
}

// FileSinks returns a SinkFactory writing into dir.
func FileSinks(dir string) SinkFactory {
	return func(meta FileMeta) (Sink, error) {
		return NewFileSink(dir, meta)
	}
}

// NewFileSink creates the partial file for meta inside dir.
func NewFileSink(dir string, meta FileMeta) (*FileSink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, NewFileError("create directory", dir, err)
	}

	file, err := os.CreateTemp(dir, "."+safeName(meta.Name)+".*.part")
	if err != nil {
		return nil, NewFileError("create file", meta.Name, err)
	}

	return &FileSink{
		File: file,
		Dir:  dir,
		Meta: meta,
	}, nil
}

func (w *FileSink) Write(data []byte) (int, error) {
	n, err := w.File.Write(data)
	if err != nil {
		return n, NewFileError("write", w.Meta.Name, err)
	}
	w.ReceivedBytes += int64(n)
	return n, nil
}

func (w *FileSink) Commit() (string, error) {
	if err := w.File.Close(); err != nil {
		return "", NewFileError("close", w.Meta.Name, err)
	}
	target := utils.GetUniqueFilename(filepath.Join(w.Dir, safeName(w.Meta.Name)))
	if err := os.Rename(w.File.Name(), target); err != nil {
		return "", NewFileError("rename", w.Meta.Name, err)
	}
	return target, nil
}

func (w *FileSink) Abort() error {
	w.File.Close()
	if err := os.Remove(w.File.Name()); err != nil && !os.IsNotExist(err) {
		return NewFileError("remove", w.Meta.Name, err)
	}
	return nil
}

// safeName strips directories from a peer-supplied file name.
func safeName(name string) string {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == "" {
		return "file"
	}
	return base
}
