// Package storage spools files received by the console server so their
// content can be read again on demand.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/email-verifier/console/internal/logging"
	"github.com/email-verifier/console/internal/models"
)

var (
	// ErrNotFound is returned for unknown file IDs.
	ErrNotFound = errors.New("file not found")
	// ErrTooLarge is returned when a file exceeds the configured size limit.
	ErrTooLarge = errors.New("file exceeds size limit")
)

// Store defines the interface for the file spool.
type Store interface {
	Save(name string, r io.Reader) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	Open(id string) (io.ReadCloser, error)
	SelectedFile(id string) (*models.SelectedFile, error)
	Delete(id string) error
}

// LocalStore implements Store using a local directory.
type LocalStore struct {
	mu      sync.RWMutex
	dir     string
	maxSize int64
	files   map[string]*models.FileInfo
	logger  *log.Logger
}

// NewLocalStore creates a LocalStore in dir. maxSize <= 0 disables the size limit.
func NewLocalStore(dir string, maxSize int64, logger *log.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}
	if logger == nil {
		logger = logging.Discard("storage")
	}

	return &LocalStore{
		dir:     dir,
		maxSize: maxSize,
		files:   make(map[string]*models.FileInfo),
		logger:  logger,
	}, nil
}

// Save writes r to the spool under a new ID.
func (s *LocalStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.dir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}

	size, err := io.Copy(f, src)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}
	if s.maxSize > 0 && size > s.maxSize {
		os.Remove(path)
		return nil, fmt.Errorf("%s: %w (%d bytes)", name, ErrTooLarge, s.maxSize)
	}

	info := &models.FileInfo{
		ID:        id,
		Name:      name,
		Size:      size,
		SpooledAt: time.Now(),
	}

	s.mu.Lock()
	s.files[id] = info
	s.mu.Unlock()

	s.logger.Debugf("spooled %s as %s (%d bytes)", name, id[:8], size)
	return info, nil
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return info, nil
}

// Open returns a reader over the spooled content.
func (s *LocalStore) Open(id string) (io.ReadCloser, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, id))
	if err != nil {
		return nil, fmt.Errorf("opening spooled file: %w", err)
	}
	return f, nil
}

// SelectedFile wraps a spooled file so the workflow can read it on demand.
// Reads fail once the file is deleted.
func (s *LocalStore) SelectedFile(id string) (*models.SelectedFile, error) {
	info, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return models.NewSelectedFile(info.Name, info.Size, func() (io.ReadCloser, error) {
		return s.Open(id)
	}), nil
}

// Delete removes a file from the spool.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	path := filepath.Join(s.dir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// Purge removes every spooled file.
func (s *LocalStore) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.files {
		if err := os.Remove(filepath.Join(s.dir, id)); err != nil && !os.IsNotExist(err) {
			s.logger.Warnf("purging %s: %v", id[:8], err)
		}
		delete(s.files, id)
	}
}

// Count returns the number of spooled files.
func (s *LocalStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
