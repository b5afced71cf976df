package workflow

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/email-verifier/console/internal/inspector"
	"github.com/email-verifier/console/internal/models"
	"github.com/email-verifier/console/internal/testutil"
)

func newTestController(t *testing.T, up Uploader, opts ...Option) *Controller {
	t.Helper()
	c := New(up, inspector.New(inspector.ModeNaive), opts...)
	t.Cleanup(c.Close)
	return c
}

func csvFile(content string) *models.SelectedFile {
	return models.FileFromBytes("contacts.csv", []byte(content))
}

func TestController_InitialState(t *testing.T) {
	c := newTestController(t, testutil.NewMockUploader())

	snap := c.Snapshot()
	assert.Equal(t, models.StatusIdle, snap.Status)
	assert.Empty(t, snap.Columns)
	assert.Equal(t, "", snap.SelectedColumn)
	assert.Nil(t, snap.Result)
	assert.Nil(t, snap.Notice)
	assert.True(t, snap.CanSubmit)
	assert.NotEmpty(t, snap.CycleID)
}

func TestController_SelectFile(t *testing.T) {
	c := newTestController(t, testutil.NewMockUploader())
	before := c.Snapshot().CycleID

	cs, err := c.SelectFile(context.Background(), csvFile("name,email\nA,a@x.io\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "email"}, cs.Columns)
	assert.Equal(t, "name", cs.Selected)

	snap := c.Snapshot()
	assert.Equal(t, "contacts.csv", snap.FileName)
	assert.Equal(t, []string{"name", "email"}, snap.Columns)
	assert.Equal(t, "name", snap.SelectedColumn)
	assert.NotEqual(t, before, snap.CycleID)

	t.Run("new file resets columns", func(t *testing.T) {
		require.NoError(t, c.SelectColumn("email"))
		_, err := c.SelectFile(context.Background(), csvFile("mail,phone\n"))
		require.NoError(t, err)

		snap := c.Snapshot()
		assert.Equal(t, []string{"mail", "phone"}, snap.Columns)
		assert.Equal(t, "mail", snap.SelectedColumn)
	})

	t.Run("empty file", func(t *testing.T) {
		cs, err := c.SelectFile(context.Background(), csvFile(""))
		require.NoError(t, err)
		assert.Empty(t, cs.Columns)

		snap := c.Snapshot()
		assert.Empty(t, snap.Columns)
		assert.Equal(t, "", snap.SelectedColumn)
		assert.Equal(t, "contacts.csv", snap.FileName)
	})

	t.Run("nil clears selection", func(t *testing.T) {
		cs, err := c.SelectFile(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, cs.Columns)
		assert.Equal(t, "", c.Snapshot().FileName)
	})
}

func TestController_SelectFileReadFailure(t *testing.T) {
	c := newTestController(t, testutil.NewMockUploader())
	_, err := c.SelectFile(context.Background(), csvFile("name,email\n"))
	require.NoError(t, err)

	broken := models.NewSelectedFile("broken.csv", 3, func() (io.ReadCloser, error) {
		return nil, errors.New("handle revoked")
	})
	cs, err := c.SelectFile(context.Background(), broken)
	require.ErrorIs(t, err, ErrHeaderReadFailure)
	require.ErrorIs(t, err, inspector.ErrReadFailure)
	assert.Empty(t, cs.Columns)

	snap := c.Snapshot()
	assert.Empty(t, snap.Columns)
	assert.Equal(t, "", snap.SelectedColumn)
	assert.Equal(t, "broken.csv", snap.FileName)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, models.NoticeError, snap.Notice.Kind)
	assert.Equal(t, MsgHeaderReadFailure, snap.Notice.Message)
	assert.Equal(t, models.StatusIdle, snap.Status)
}

func TestController_SelectColumn(t *testing.T) {
	c := newTestController(t, testutil.NewMockUploader())

	// Any value is accepted before a header is known.
	require.NoError(t, c.SelectColumn("email"))
	assert.Equal(t, "email", c.Snapshot().SelectedColumn)

	_, err := c.SelectFile(context.Background(), csvFile("name,email\n"))
	require.NoError(t, err)

	require.NoError(t, c.SelectColumn("email"))
	assert.Equal(t, "email", c.Snapshot().SelectedColumn)

	err = c.SelectColumn("phone")
	require.ErrorIs(t, err, ErrUnknownColumn)
	snap := c.Snapshot()
	assert.Equal(t, "email", snap.SelectedColumn)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, MsgUnknownColumn, snap.Notice.Message)
}

func TestController_SubmitWithoutFile(t *testing.T) {
	up := testutil.NewMockUploader()
	c := newTestController(t, up)

	for _, column := range []string{"", "email", "not-a-column"} {
		res, err := c.Submit(context.Background(), nil, column)
		require.ErrorIs(t, err, ErrNoFileSelected)
		assert.Nil(t, res)
	}

	res, err := c.SubmitSelected(context.Background())
	require.ErrorIs(t, err, ErrNoFileSelected)
	assert.Nil(t, res)

	assert.Equal(t, 0, up.Calls())
	snap := c.Snapshot()
	assert.Equal(t, models.StatusIdle, snap.Status)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, models.NoticeError, snap.Notice.Kind)
	assert.Equal(t, MsgNoFileSelected, snap.Notice.Message)
}

func TestController_SubmitSuccess(t *testing.T) {
	want := &models.VerificationResult{
		ValidCount:       10,
		InvalidCount:     2,
		CatchAllCount:    1,
		ValidDownload:    testutil.StringPtr("a"),
		InvalidDownload:  testutil.StringPtr("b"),
		CatchAllDownload: testutil.StringPtr("c"),
	}
	up := testutil.NewMockUploader().WithResult(want)
	c := newTestController(t, up)

	file := csvFile("name,email\nA,a@x.io\n")
	_, err := c.SelectFile(context.Background(), file)
	require.NoError(t, err)
	require.NoError(t, c.SelectColumn("email"))

	got, err := c.SubmitSelected(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	req, ok := up.LastRequest()
	require.True(t, ok)
	assert.Same(t, file, req.File)
	assert.Equal(t, "email", req.EmailColumn)
	assert.Equal(t, 1, up.Calls())

	snap := c.Snapshot()
	assert.Equal(t, models.StatusSucceeded, snap.Status)
	assert.Equal(t, want, snap.Result)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, models.NoticeSuccess, snap.Notice.Kind)
	assert.Equal(t, MsgUploadSucceeded, snap.Notice.Message)
	assert.True(t, snap.CanSubmit)

	bars := snap.Chart()
	require.Len(t, bars, 3)
	assert.Equal(t, int64(10), bars[0].Count)
	assert.Equal(t, int64(2), bars[1].Count)
	assert.Equal(t, int64(1), bars[2].Count)
}

func TestController_SubmitPartialResult(t *testing.T) {
	up := testutil.NewMockUploader().WithResult(&models.VerificationResult{ValidCount: 5})
	c := newTestController(t, up)

	got, err := c.Submit(context.Background(), csvFile("email\n"), "email")
	require.NoError(t, err)
	assert.Equal(t, &models.VerificationResult{ValidCount: 5}, got)
	assert.Nil(t, got.InvalidDownload)
}

func TestController_SubmitFailureKeepsPreviousResult(t *testing.T) {
	first := &models.VerificationResult{ValidCount: 3, ValidDownload: testutil.StringPtr("https://x/valid.csv")}
	up := testutil.NewMockUploader().WithResult(first)
	c := newTestController(t, up)
	file := csvFile("email\n")

	_, err := c.Submit(context.Background(), file, "email")
	require.NoError(t, err)

	up.WithError(errors.New("connection reset"))
	got, err := c.Submit(context.Background(), file, "email")
	require.ErrorIs(t, err, ErrUploadFailure)
	assert.Nil(t, got)

	var wfErr *Error
	require.True(t, errors.As(err, &wfErr))
	assert.Equal(t, MsgUploadFailed, wfErr.Message)
	assert.EqualError(t, errors.Unwrap(err), "connection reset")

	snap := c.Snapshot()
	assert.Equal(t, models.StatusFailed, snap.Status)
	assert.Equal(t, first, snap.Result)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, models.NoticeError, snap.Notice.Kind)
	assert.Equal(t, MsgUploadFailed, snap.Notice.Message)

	// The workflow stays usable after a failure.
	up.WithResult(&models.VerificationResult{InvalidCount: 4})
	got, err = c.Submit(context.Background(), file, "email")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.InvalidCount)
	assert.Equal(t, models.StatusSucceeded, c.Status())
	assert.Equal(t, 3, up.Calls())
}

func TestController_SingleFlight(t *testing.T) {
	up := testutil.NewMockUploader().WithResult(&models.VerificationResult{ValidCount: 1}).Block()
	c := newTestController(t, up)
	file := csvFile("email\n")

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), file, "email")
		done <- err
	}()

	select {
	case <-up.Started():
	case <-time.After(2 * time.Second):
		t.Fatal("upload did not start")
	}

	snap := c.Snapshot()
	assert.Equal(t, models.StatusUploading, snap.Status)
	assert.False(t, snap.CanSubmit)

	for i := 0; i < 3; i++ {
		_, err := c.Submit(context.Background(), file, "email")
		require.ErrorIs(t, err, ErrUploadInProgress)
	}
	assert.Equal(t, 1, up.Calls())
	assert.Equal(t, models.StatusUploading, c.Status())

	up.Release()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("upload did not settle")
	}

	assert.Equal(t, models.StatusSucceeded, c.Status())
	assert.Equal(t, 1, up.Calls())
}

func TestController_SubmitClearsNoticeWhileUploading(t *testing.T) {
	up := testutil.NewMockUploader().Block()
	c := newTestController(t, up)

	_, err := c.Submit(context.Background(), nil, "")
	require.Error(t, err)
	require.NotNil(t, c.Snapshot().Notice)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Submit(context.Background(), csvFile("email\n"), "email")
	}()
	<-up.Started()

	assert.Nil(t, c.Snapshot().Notice)
	up.Release()
	<-done
}

// gatedInspector holds the inspection of files named slow until released.
type gatedInspector struct {
	inner   HeaderInspector
	started chan struct{}
	release chan struct{}
}

func newGatedInspector() *gatedInspector {
	return &gatedInspector{
		inner:   inspector.New(inspector.ModeNaive),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (g *gatedInspector) Inspect(ctx context.Context, file *models.SelectedFile) (models.ColumnSet, error) {
	if file.Name == "slow.csv" {
		g.started <- struct{}{}
		select {
		case <-g.release:
		case <-ctx.Done():
			return models.ColumnSet{}, ctx.Err()
		}
	}
	return g.inner.Inspect(ctx, file)
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(what)
	}
}

func TestController_SubmitWhileHeaderPending(t *testing.T) {
	up := testutil.NewMockUploader().WithResult(&models.VerificationResult{ValidCount: 1})
	insp := newGatedInspector()
	c := New(up, insp)
	t.Cleanup(c.Close)

	_, err := c.SelectFile(context.Background(), models.FileFromBytes("first.csv", []byte("name\n")))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.SelectFile(context.Background(), models.FileFromBytes("slow.csv", []byte("id,email\n")))
	}()
	waitFor(t, insp.started, "inspection did not start")

	snap := c.Snapshot()
	assert.Equal(t, "slow.csv", snap.FileName)
	assert.Empty(t, snap.Columns)
	assert.False(t, snap.CanSubmit)

	_, err = c.SubmitSelected(context.Background())
	require.ErrorIs(t, err, ErrHeaderPending)
	_, err = c.Submit(context.Background(), csvFile("email\n"), "email")
	require.ErrorIs(t, err, ErrHeaderPending)
	assert.Equal(t, 0, up.Calls())
	assert.Equal(t, models.StatusIdle, c.Status())
	assert.Nil(t, c.Snapshot().Notice)

	close(insp.release)
	waitFor(t, done, "inspection did not finish")

	assert.True(t, c.Snapshot().CanSubmit)
	_, err = c.SubmitSelected(context.Background())
	require.NoError(t, err)
	req, ok := up.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "slow.csv", req.File.Name)
	assert.Equal(t, "id", req.EmailColumn)
}

func TestController_StaleInspectionKeepsNewerCycle(t *testing.T) {
	up := testutil.NewMockUploader()
	insp := newGatedInspector()
	c := New(up, insp)
	t.Cleanup(c.Close)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.SelectFile(context.Background(), models.FileFromBytes("slow.csv", []byte("id\n")))
	}()
	waitFor(t, insp.started, "inspection did not start")

	_, err := c.SelectFile(context.Background(), models.FileFromBytes("fast.csv", []byte("mail\n")))
	require.NoError(t, err)
	assert.True(t, c.Snapshot().CanSubmit)

	close(insp.release)
	waitFor(t, done, "inspection did not finish")

	snap := c.Snapshot()
	assert.Equal(t, "fast.csv", snap.FileName)
	assert.Equal(t, []string{"mail"}, snap.Columns)
	assert.True(t, snap.CanSubmit)

	_, err = c.SubmitSelected(context.Background())
	require.NoError(t, err)
	req, ok := up.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "mail", req.EmailColumn)
}

type panicUploader struct{}

func (panicUploader) Upload(context.Context, models.UploadRequest) (*models.VerificationResult, error) {
	panic("boom")
}

func TestController_UploaderPanic(t *testing.T) {
	c := newTestController(t, panicUploader{})

	_, err := c.Submit(context.Background(), csvFile("email\n"), "email")
	require.ErrorIs(t, err, ErrUploadFailure)
	assert.Equal(t, models.StatusFailed, c.Status())
	assert.Equal(t, MsgUploadFailed, c.Snapshot().Notice.Message)
}

func TestController_RequestDownload(t *testing.T) {
	opener := &testutil.RecordingOpener{}
	c := newTestController(t, testutil.NewMockUploader(), WithOpener(opener))

	err := c.RequestDownload(nil)
	require.ErrorIs(t, err, ErrNoDownloadAvailable)
	assert.Empty(t, opener.Opened())
	snap := c.Snapshot()
	require.NotNil(t, snap.Notice)
	assert.Equal(t, MsgNoDownloadAvailable, snap.Notice.Message)

	err = c.RequestDownload(testutil.StringPtr(""))
	require.ErrorIs(t, err, ErrNoDownloadAvailable)
	assert.Empty(t, opener.Opened())

	require.NoError(t, c.RequestDownload(testutil.StringPtr("https://x/y")))
	assert.Equal(t, []string{"https://x/y"}, opener.Opened())

	opener.Err = errors.New("no browser")
	assert.Error(t, c.RequestDownload(testutil.StringPtr("https://x/z")))
}

func TestController_RequestCategoryDownload(t *testing.T) {
	opener := &testutil.RecordingOpener{}
	up := testutil.NewMockUploader().WithResult(&models.VerificationResult{
		ValidDownload: testutil.StringPtr("https://files/valid.csv"),
	})
	c := newTestController(t, up, WithOpener(opener))

	// No result yet.
	require.ErrorIs(t, c.RequestCategoryDownload(models.CategoryValid), ErrNoDownloadAvailable)

	_, err := c.Submit(context.Background(), csvFile("email\n"), "email")
	require.NoError(t, err)

	require.NoError(t, c.RequestCategoryDownload(models.CategoryValid))
	require.ErrorIs(t, c.RequestCategoryDownload(models.CategoryCatchAll), ErrNoDownloadAvailable)
	assert.Equal(t, []string{"https://files/valid.csv"}, opener.Opened())
}

func TestController_DismissNotice(t *testing.T) {
	c := newTestController(t, testutil.NewMockUploader())

	_, _ = c.Submit(context.Background(), nil, "")
	notice := c.Snapshot().Notice
	require.NotNil(t, notice)

	assert.False(t, c.DismissNotice("other"))
	assert.True(t, c.DismissNotice(notice.ID))
	assert.Nil(t, c.Snapshot().Notice)
	assert.False(t, c.DismissNotice(notice.ID))
}

func TestController_NoticeTimestamp(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	c := newTestController(t, testutil.NewMockUploader(), WithClock(func() time.Time { return at }))

	_, err := c.Submit(context.Background(), nil, "")
	require.ErrorIs(t, err, ErrNoFileSelected)
	notice := c.Snapshot().Notice
	require.NotNil(t, notice)
	assert.Equal(t, at, notice.RaisedAt)

	_, err = c.Submit(context.Background(), csvFile("email\n"), "email")
	require.NoError(t, err)
	notice = c.Snapshot().Notice
	require.NotNil(t, notice)
	assert.Equal(t, models.NoticeSuccess, notice.Kind)
	assert.Equal(t, at, notice.RaisedAt)
}

func TestController_Subscribe(t *testing.T) {
	c := newTestController(t, testutil.NewMockUploader().WithResult(&models.VerificationResult{ValidCount: 2}))

	events, cancel := c.Subscribe()
	defer cancel()

	next := func() Event {
		select {
		case ev := <-events:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("no event")
			return Event{}
		}
	}

	first := next()
	assert.Equal(t, EventState, first.Type)
	assert.Equal(t, models.StatusIdle, first.State.Status)

	_, err := c.Submit(context.Background(), csvFile("email\n"), "email")
	require.NoError(t, err)

	uploading := next()
	assert.Equal(t, models.StatusUploading, uploading.State.Status)
	settled := next()
	assert.Equal(t, models.StatusSucceeded, settled.State.Status)
	assert.Equal(t, int64(2), settled.State.Result.ValidCount)

	require.NoError(t, c.RequestDownload(testutil.StringPtr("https://x/y")))
	open := next()
	assert.Equal(t, EventOpen, open.Type)
	assert.Equal(t, "https://x/y", open.Locator)

	cancel()
	_, ok := <-events
	assert.False(t, ok)
}
