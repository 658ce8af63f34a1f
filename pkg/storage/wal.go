package storage

import (
	"bufio"
	"fmt"
	"os"
	"sync"
)

// Journal records accepted commands, one line each, so a run can be
// replayed later.
type Journal interface {
	Append(line []byte) error
	Close() error
}

type NopWAL struct{}

func NewNopWAL() *NopWAL                { return &NopWAL{} }
func (w *NopWAL) Append(_ []byte) error { return nil }
func (w *NopWAL) Close() error          { return nil }

// FileWAL appends lines to a file and syncs after every write.
type FileWAL struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func NewFileWAL(path string) (*FileWAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &FileWAL{f: f, w: bufio.NewWriter(f)}, nil
}

func (w *FileWAL) Append(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(line); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

var _ Journal = (*NopWAL)(nil)
var _ Journal = (*FileWAL)(nil)
