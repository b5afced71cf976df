// Package session keeps one workflow Controller per console browser session.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/email-verifier/console/internal/logging"
	"github.com/email-verifier/console/internal/models"
	"github.com/email-verifier/console/internal/storage"
	"github.com/email-verifier/console/internal/workflow"
)

// DefaultMaxSessions limits concurrent sessions when no limit is configured.
const DefaultMaxSessions = 10

// SessionKeepAliveWindow is how long a recently used session is protected from cleanup.
const SessionKeepAliveWindow = 5 * time.Minute

var (
	// ErrNotFound is returned for unknown session IDs.
	ErrNotFound = errors.New("session not found")
	// ErrTooManySessions is returned when the limit is reached and no session can be evicted.
	ErrTooManySessions = errors.New("too many active sessions")
)

// ControllerFactory builds the Controller of a new session.
type ControllerFactory func() *workflow.Controller

// Manager handles active console sessions.
type Manager struct {
	sessions    map[string]*SessionState
	mu          sync.RWMutex
	store       storage.Store
	newCtrl     ControllerFactory
	maxSessions int
	logger      *log.Logger
}

// SessionState holds the session metadata, its Controller and the spooled file
// currently selected in it. Retired lists replaced files kept on disk until no
// upload of the session is in flight.
type SessionState struct {
	Session      *models.ConsoleSession
	Controller   *workflow.Controller
	FileID       string
	Retired      []string
	LastAccessed time.Time
}

// NewManager creates a session manager.
func NewManager(store storage.Store, newCtrl ControllerFactory, maxSessions int, logger *log.Logger) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = logging.Discard("session")
	}
	return &Manager{
		sessions:    make(map[string]*SessionState),
		store:       store,
		newCtrl:     newCtrl,
		maxSessions: maxSessions,
		logger:      logger,
	}
}

// StartSession creates a session with a fresh Controller in the Idle state.
func (m *Manager) StartSession() (*models.ConsoleSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.maxSessions && !m.evictOldestLocked() {
		return nil, ErrTooManySessions
	}

	now := time.Now()
	sess := &models.ConsoleSession{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		LastAccessed: now,
		Status:       models.StatusIdle,
	}
	m.sessions[sess.ID] = &SessionState{
		Session:      sess,
		Controller:   m.newCtrl(),
		LastAccessed: now,
	}

	m.logger.Infof("[Session %s] started (%d active)", sess.ID[:8], len(m.sessions))
	out := *sess
	return &out, nil
}

// GetSession returns a copy of the session metadata.
func (m *Manager) GetSession(id string) (*models.ConsoleSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	out := *state.Session
	out.LastAccessed = state.LastAccessed
	out.Status = state.Controller.Status()
	return &out, true
}

// Controller returns the Controller of a session and marks it as used.
func (m *Manager) Controller(id string) (*workflow.Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	state.LastAccessed = time.Now()
	return state.Controller, true
}

// TouchSession updates the LastAccessed timestamp for a session.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// SelectFile spools r and makes it the selected file of the session. The
// previously spooled file is removed once no upload of the session is in
// flight. Errors from the header
// inspection are returned as *workflow.Error together with the (empty)
// ColumnSet; the file stays selected.
func (m *Manager) SelectFile(ctx context.Context, id, name string, r io.Reader) (models.ColumnSet, error) {
	ctrl, ok := m.Controller(id)
	if !ok {
		return models.NewColumnSet(nil), fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	info, err := m.store.Save(name, r)
	if err != nil {
		return models.NewColumnSet(nil), err
	}
	file, err := m.store.SelectedFile(info.ID)
	if err != nil {
		return models.NewColumnSet(nil), err
	}

	m.mu.Lock()
	state, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		m.store.Delete(info.ID)
		return models.NewColumnSet(nil), fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	previous := state.FileID
	state.FileID = info.ID
	m.mu.Unlock()

	columns, err := ctrl.SelectFile(ctx, file)
	m.retire(id, previous)
	return columns, err
}

// retire queues a replaced file for removal and removes the queued files of
// the session unless an upload is running. An upload started before the
// replacement may still be reading them.
func (m *Manager) retire(id, fileID string) {
	m.mu.Lock()
	state, ok := m.sessions[id]
	var ids []string
	if !ok {
		// The session was released without knowing about fileID.
		if fileID != "" {
			ids = []string{fileID}
		}
	} else {
		if fileID != "" {
			state.Retired = append(state.Retired, fileID)
		}
		ids = sweepLocked(state)
	}
	m.mu.Unlock()

	m.deleteFiles(id, ids)
}

// sweepLocked takes the retired files of an idle session.
func sweepLocked(state *SessionState) []string {
	if len(state.Retired) == 0 || state.Controller.Status() == models.StatusUploading {
		return nil
	}
	ids := state.Retired
	state.Retired = nil
	return ids
}

func (m *Manager) deleteFiles(sessionID string, ids []string) {
	for _, fileID := range ids {
		if err := m.store.Delete(fileID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warnf("[Session %s] removing previous file: %v", sessionID[:8], err)
		}
	}
}

// EndSession closes a session and removes its spooled file.
func (m *Manager) EndSession(id string) bool {
	m.mu.Lock()
	state, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.releaseState(state)
	m.logger.Infof("[Session %s] ended", id[:8])
	return true
}

// CleanupOldSessions removes sessions idle for longer than maxAge. Sessions
// with an upload in flight or used within SessionKeepAliveWindow are kept.
// Retired files of kept sessions are removed once their upload has settled.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	var removed []*SessionState
	retired := make(map[string][]string)
	for id, state := range m.sessions {
		if ids := sweepLocked(state); len(ids) > 0 {
			retired[id] = ids
		}
		if state.Controller.Status() == models.StatusUploading {
			continue
		}
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			delete(m.sessions, id)
			removed = append(removed, state)
			m.logger.Infof("[Session %s] cleaned up (last accessed: %s ago)",
				id[:8], time.Since(state.LastAccessed).Round(time.Second))
		}
	}
	m.mu.Unlock()

	for id, ids := range retired {
		m.deleteFiles(id, ids)
	}
	for _, state := range removed {
		m.releaseState(state)
	}
	return len(removed)
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown ends every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	states := make([]*SessionState, 0, len(m.sessions))
	for id, state := range m.sessions {
		states = append(states, state)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, state := range states {
		m.releaseState(state)
	}
}

// evictOldestLocked drops the least recently used session that is not
// uploading. It reports whether a session was evicted.
func (m *Manager) evictOldestLocked() bool {
	var oldestID string
	var oldest time.Time
	for id, state := range m.sessions {
		if state.Controller.Status() == models.StatusUploading {
			continue
		}
		if oldestID == "" || state.LastAccessed.Before(oldest) {
			oldestID, oldest = id, state.LastAccessed
		}
	}
	if oldestID == "" {
		return false
	}

	state := m.sessions[oldestID]
	delete(m.sessions, oldestID)
	m.releaseState(state)
	m.logger.Infof("[Session %s] evicted to make room", oldestID[:8])
	return true
}

func (m *Manager) releaseState(state *SessionState) {
	state.Controller.Close()
	if state.FileID != "" {
		if err := m.store.Delete(state.FileID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warnf("[Session %s] removing file: %v", state.Session.ID[:8], err)
		}
	}
	m.deleteFiles(state.Session.ID, state.Retired)
}
