// mock_uploader.go - Fakes for the upload workflow used across package tests
package testutil

import (
	"context"
	"sync"

	"github.com/email-verifier/console/internal/models"
)

// MockUploader implements workflow.Uploader for testing. When blocked, each
// Upload call signals Started and waits for Release or context cancellation.
type MockUploader struct {
	mu       sync.Mutex
	requests []models.UploadRequest
	result   *models.VerificationResult
	err      error
	gate     chan struct{}
	started  chan struct{}
}

// NewMockUploader creates an uploader that succeeds with an empty result.
func NewMockUploader() *MockUploader {
	return &MockUploader{
		result:  &models.VerificationResult{},
		started: make(chan struct{}, 16),
	}
}

// WithResult sets the result returned by later calls.
func (m *MockUploader) WithResult(r *models.VerificationResult) *MockUploader {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result, m.err = r, nil
	return m
}

// WithError makes later calls fail with err.
func (m *MockUploader) WithError(err error) *MockUploader {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result, m.err = nil, err
	return m
}

// Block makes later calls wait until Release is called.
func (m *MockUploader) Block() *MockUploader {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
	return m
}

// Release unblocks all waiting calls.
func (m *MockUploader) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Started receives a value every time Upload is entered.
func (m *MockUploader) Started() <-chan struct{} {
	return m.started
}

func (m *MockUploader) Upload(ctx context.Context, req models.UploadRequest) (*models.VerificationResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	gate := m.gate
	m.mu.Unlock()

	m.started <- struct{}{}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result.Clone(), m.err
}

// Calls returns the number of Upload calls made.
func (m *MockUploader) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request.
func (m *MockUploader) LastRequest() (models.UploadRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return models.UploadRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// RecordingOpener implements workflow.Opener and records every locator.
type RecordingOpener struct {
	mu     sync.Mutex
	opened []string
	Err    error
}

func (o *RecordingOpener) Open(locator string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, locator)
	return o.Err
}

// Opened returns the locators opened so far.
func (o *RecordingOpener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string{}, o.opened...)
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
