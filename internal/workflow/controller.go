// Package workflow implements the upload and verification workflow: file
// selection, header inspection, a single-flight upload to the verification
// service, and the notices and results shown to the user.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/email-verifier/console/internal/logging"
	"github.com/email-verifier/console/internal/models"
)

// Uploader performs one upload round trip.
type Uploader interface {
	Upload(ctx context.Context, req models.UploadRequest) (*models.VerificationResult, error)
}

// HeaderInspector derives the ColumnSet of a file.
type HeaderInspector interface {
	Inspect(ctx context.Context, file *models.SelectedFile) (models.ColumnSet, error)
}

// Opener hands a result locator to the hosting environment.
type Opener interface {
	Open(locator string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(locator string) error

func (f OpenerFunc) Open(locator string) error { return f(locator) }

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithOpener sets the download opener. Without one, download intents are
// only published to subscribers.
func WithOpener(o Opener) Option {
	return func(c *Controller) { c.opener = o }
}

// WithClock overrides time.Now for notice timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns the workflow state of one user. All methods are safe for
// concurrent use. At most one upload is in flight per Controller.
type Controller struct {
	uploader  Uploader
	inspector HeaderInspector
	opener    Opener
	logger    *log.Logger
	now       func() time.Time

	mu      sync.Mutex
	cycleID string
	file    *models.SelectedFile
	columns models.ColumnSet
	// inspecting is set while the header of the current cycle's file is
	// being read; uploads are refused until it clears.
	inspecting bool
	status     models.WorkflowStatus
	result     *models.VerificationResult
	notice     *models.Notice
	subs       subscribers
}

// New creates a Controller in the Idle state.
func New(uploader Uploader, inspector HeaderInspector, opts ...Option) *Controller {
	c := &Controller{
		uploader:  uploader,
		inspector: inspector,
		now:       time.Now,
		cycleID:   uuid.New().String(),
		columns:   models.NewColumnSet(nil),
		status:    models.StatusIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Discard("workflow")
	}
	return c
}

// SelectFile replaces the selected file and starts a new workflow cycle. The
// ColumnSet is reset immediately and then rebuilt from the file header; until
// that finishes every submit fails with HeaderPending. A nil file clears the
// selection. When the header cannot be read the ColumnSet stays empty, an
// error notice is raised and an *Error of kind HeaderReadFailure is returned;
// the file remains selected.
func (c *Controller) SelectFile(ctx context.Context, file *models.SelectedFile) (models.ColumnSet, error) {
	c.mu.Lock()
	cycle := uuid.New().String()
	c.cycleID = cycle
	c.file = file
	c.columns = models.NewColumnSet(nil)
	c.inspecting = file != nil
	c.publishLocked()
	c.mu.Unlock()

	if file == nil {
		c.logger.Debugf("[Cycle %s] selection cleared", cycle[:8])
		return models.NewColumnSet(nil), nil
	}

	c.logger.Debugf("[Cycle %s] inspecting header of %s", cycle[:8], file.Name)
	columns, err := c.inspector.Inspect(ctx, file)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cycleID != cycle {
		// A newer selection won; its inspection owns the ColumnSet.
		c.logger.Debugf("[Cycle %s] discarding stale header of %s", cycle[:8], file.Name)
		return columns.Clone(), nil
	}
	c.inspecting = false

	if err != nil {
		c.logger.Warnf("[Cycle %s] header of %s unreadable: %v", cycle[:8], file.Name, err)
		c.columns = models.NewColumnSet(nil)
		c.raiseLocked(models.NoticeError, MsgHeaderReadFailure)
		c.publishLocked()
		return c.columns.Clone(), newError(KindHeaderReadFailure, MsgHeaderReadFailure, err)
	}

	c.columns = columns.Clone()
	if c.columns.Columns == nil {
		c.columns.Columns = []string{}
	}
	c.logger.Infof("[Cycle %s] %s: %d columns, default %q", cycle[:8], file.Name, len(c.columns.Columns), c.columns.Selected)
	c.publishLocked()
	return c.columns.Clone(), nil
}

// SelectColumn chooses the email column. When the file header is known the
// name must be one of its columns.
func (c *Controller) SelectColumn(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.columns.Empty() && !c.columns.Contains(name) {
		c.raiseLocked(models.NoticeError, MsgUnknownColumn)
		c.publishLocked()
		return newError(KindUnknownColumn, MsgUnknownColumn, fmt.Errorf("column %q not in header", name))
	}

	c.columns.Selected = name
	c.publishLocked()
	return nil
}

// SubmitSelected submits the currently selected file and column. Both are
// read under the same lock that starts the upload.
func (c *Controller) SubmitSelected(ctx context.Context) (*models.VerificationResult, error) {
	return c.submit(ctx, func() (*models.SelectedFile, string) {
		return c.file, c.columns.Selected
	})
}

// Submit uploads file with the given email column and waits for the outcome.
//
// A nil file fails with NoFileSelected before anything else is checked and no
// request is made. A call made while another upload is in flight fails with
// UploadInProgress and changes nothing, as does a call made while the header
// of a newly selected file is still being read (HeaderPending). Otherwise the
// status moves to Uploading, exactly one request is sent, and the status
// settles to Succeeded (result published, success notice) or Failed (generic
// error notice, previous result kept).
func (c *Controller) Submit(ctx context.Context, file *models.SelectedFile, column string) (*models.VerificationResult, error) {
	return c.submit(ctx, func() (*models.SelectedFile, string) {
		return file, column
	})
}

func (c *Controller) submit(ctx context.Context, pick func() (*models.SelectedFile, string)) (*models.VerificationResult, error) {
	c.mu.Lock()
	file, column := pick()
	if file == nil {
		c.raiseLocked(models.NoticeError, MsgNoFileSelected)
		c.publishLocked()
		c.mu.Unlock()
		return nil, ErrNoFileSelected
	}
	if c.status == models.StatusUploading {
		c.mu.Unlock()
		c.logger.Warnf("submit of %s rejected: upload already in progress", file.Name)
		return nil, ErrUploadInProgress
	}
	if c.inspecting {
		cycle := c.cycleID
		c.mu.Unlock()
		c.logger.Warnf("[Cycle %s] submit of %s rejected: header not read yet", cycle[:8], file.Name)
		return nil, ErrHeaderPending
	}

	req := models.UploadRequest{File: file, EmailColumn: column}
	cycle := c.cycleID
	c.status = models.StatusUploading
	c.notice = nil
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Infof("[Cycle %s] uploading %s with column %q", cycle[:8], file.Name, column)
	result, err := c.upload(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.logger.Errorf("[Cycle %s] upload of %s failed: %v", cycle[:8], file.Name, err)
		c.status = models.StatusFailed
		c.raiseLocked(models.NoticeError, MsgUploadFailed)
		c.publishLocked()
		return nil, newError(KindUploadFailure, MsgUploadFailed, err)
	}

	if result == nil {
		result = &models.VerificationResult{}
	}
	c.status = models.StatusSucceeded
	c.result = result.Clone()
	c.raiseLocked(models.NoticeSuccess, MsgUploadSucceeded)
	c.publishLocked()
	return result.Clone(), nil
}

// upload calls the Uploader and turns a panic into an error so the status
// never stays Uploading.
func (c *Controller) upload(ctx context.Context, req models.UploadRequest) (result *models.VerificationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("upload panicked: %v", r)
			result, err = nil, fmt.Errorf("upload panicked: %v", r)
		}
	}()
	return c.uploader.Upload(ctx, req)
}

// RequestDownload signals that the artifact at locator should be opened. A nil
// or empty locator raises a NoDownloadAvailable notice instead.
func (c *Controller) RequestDownload(locator *string) error {
	c.mu.Lock()
	if locator == nil || *locator == "" {
		c.raiseLocked(models.NoticeError, MsgNoDownloadAvailable)
		c.publishLocked()
		c.mu.Unlock()
		return ErrNoDownloadAvailable
	}
	loc := *locator
	c.subs.send(Event{Type: EventOpen, Locator: loc})
	c.mu.Unlock()

	if c.opener == nil {
		return nil
	}
	if err := c.opener.Open(loc); err != nil {
		c.logger.Warnf("opening %s failed: %v", loc, err)
		return fmt.Errorf("opening %s: %w", loc, err)
	}
	return nil
}

// RequestCategoryDownload opens the result file of a category from the
// current result.
func (c *Controller) RequestCategoryDownload(category models.Category) error {
	c.mu.Lock()
	locator := c.result.Locator(category)
	c.mu.Unlock()

	return c.RequestDownload(locator)
}

// DismissNotice clears the current notice if its ID matches.
func (c *Controller) DismissNotice(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.notice == nil || c.notice.ID != id {
		return false
	}
	c.notice = nil
	c.publishLocked()
	return true
}

// Status returns the current workflow status.
func (c *Controller) Status() models.WorkflowStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel of events and a function that ends the
// subscription. The current state is delivered first.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ch := c.subs.add()
	snap := c.snapshotLocked()
	ch <- Event{Type: EventState, State: &snap}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			c.subs.remove(id)
			c.mu.Unlock()
		})
	}
}

// Close ends all subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs.closeAll()
}

func (c *Controller) snapshotLocked() models.Snapshot {
	snap := models.Snapshot{
		CycleID:        c.cycleID,
		Columns:        append([]string{}, c.columns.Columns...),
		SelectedColumn: c.columns.Selected,
		Status:         c.status,
		Result:         c.result.Clone(),
		CanSubmit:      c.status != models.StatusUploading && !c.inspecting,
	}
	if c.file != nil {
		snap.FileName = c.file.Name
	}
	if c.notice != nil {
		n := *c.notice
		snap.Notice = &n
	}
	return snap
}

func (c *Controller) raiseLocked(kind models.NoticeKind, message string) {
	c.notice = &models.Notice{
		ID:       uuid.New().String(),
		Kind:     kind,
		Message:  message,
		RaisedAt: c.now(),
	}
}

func (c *Controller) publishLocked() {
	snap := c.snapshotLocked()
	c.subs.send(Event{Type: EventState, State: &snap})
}
