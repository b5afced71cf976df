package models

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// ErrNoContent is returned when a SelectedFile has no content accessor.
var ErrNoContent = errors.New("file has no content accessor")

// SelectedFile is a user-chosen file. Its content is read on demand, so the
// same file may be opened once for header inspection and again for upload.
type SelectedFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`

	open func() (io.ReadCloser, error)
}

// NewSelectedFile creates a SelectedFile backed by an arbitrary content accessor.
func NewSelectedFile(name string, size int64, open func() (io.ReadCloser, error)) *SelectedFile {
	return &SelectedFile{
		Name: name,
		Size: size,
		open: open,
	}
}

// FileFromBytes wraps in-memory content.
func FileFromBytes(name string, data []byte) *SelectedFile {
	return NewSelectedFile(name, int64(len(data)), func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// FileFromPath wraps a file on disk. The file is not opened until Open is called.
func FileFromPath(path string) (*SelectedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("path is a directory: " + path)
	}
	return NewSelectedFile(filepath.Base(path), info.Size(), func() (io.ReadCloser, error) {
		return os.Open(path)
	}), nil
}

// Open returns a fresh reader over the file content.
func (f *SelectedFile) Open() (io.ReadCloser, error) {
	if f == nil || f.open == nil {
		return nil, ErrNoContent
	}
	return f.open()
}
