// handlers_workflow.go - Upload workflow handlers for a console session
package api

import (
	"bytes"
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/email-verifier/console/internal/models"
	"github.com/email-verifier/console/internal/workflow"
)

// WorkflowHandlerImpl implements the WorkflowHandler interface
type WorkflowHandlerImpl struct {
	sessions SessionManager
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(sessions SessionManager) WorkflowHandler {
	return &WorkflowHandlerImpl{sessions: sessions}
}

// StateResponse is the rendered workflow state of a session.
type StateResponse struct {
	models.Snapshot
	Chart []models.ChartBar `json:"chart"`
}

func newStateResponse(snap models.Snapshot) StateResponse {
	return StateResponse{Snapshot: snap, Chart: snap.Chart()}
}

type selectColumnRequest struct {
	Column *string `json:"column"`
}

type downloadRequest struct {
	Category string  `json:"category"`
	Locator  *string `json:"locator"`
}

func (h *WorkflowHandlerImpl) controller(c echo.Context) (*workflow.Controller, error) {
	id := c.Param("id")
	ctrl, ok := h.sessions.Controller(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}
	return ctrl, nil
}

// HandleGetState returns the current workflow state as JSON
func (h *WorkflowHandlerImpl) HandleGetState(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newStateResponse(ctrl.Snapshot()))
}

// HandleGetStateMsgpack returns the current workflow state in MessagePack
// format, keyed like the JSON representation.
func (h *WorkflowHandlerImpl) HandleGetStateMsgpack(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}

	data, err := encodeMsgpack(newStateResponse(ctrl.Snapshot()))
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleSelectFile accepts a multipart "file" field, spools it and inspects
// its header.
func (h *WorkflowHandlerImpl) HandleSelectFile(c echo.Context) error {
	id := c.Param("id")
	if _, ok := h.sessions.GetSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return NewValidationError("file")
	}
	src, err := fh.Open()
	if err != nil {
		return NewBadRequestError("cannot read uploaded file", err)
	}
	defer src.Close()

	if _, err := h.sessions.SelectFile(c.Request().Context(), id, fh.Filename, src); err != nil {
		return classify(err, id)
	}

	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newStateResponse(ctrl.Snapshot()))
}

// HandleSelectColumn changes the email column
func (h *WorkflowHandlerImpl) HandleSelectColumn(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}

	var req selectColumnRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Column == nil {
		return NewValidationError("column")
	}

	if err := ctrl.SelectColumn(*req.Column); err != nil {
		return NewWorkflowError(err)
	}
	return c.JSON(http.StatusOK, newStateResponse(ctrl.Snapshot()))
}

// HandleUpload submits the selected file and column and waits for the
// verification service. A disconnecting client does not abort the upload.
func (h *WorkflowHandlerImpl) HandleUpload(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}

	ctx := context.WithoutCancel(c.Request().Context())
	if _, err := ctrl.SubmitSelected(ctx); err != nil {
		return NewWorkflowError(err)
	}
	return c.JSON(http.StatusOK, newStateResponse(ctrl.Snapshot()))
}

// HandleDownload opens a result file, by category of the current result or
// by explicit locator. The open intent is pushed to the session's stream.
func (h *WorkflowHandlerImpl) HandleDownload(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}

	var req downloadRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	locator := req.Locator
	if req.Category != "" {
		category, err := models.ParseCategory(req.Category)
		if err != nil {
			return NewValidationError("category")
		}
		snap := ctrl.Snapshot()
		locator = snap.Result.Locator(category)
	}

	if err := ctrl.RequestDownload(locator); err != nil {
		return NewWorkflowError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"locator": *locator})
}

// HandleDismissNotice clears the current notice
func (h *WorkflowHandlerImpl) HandleDismissNotice(c echo.Context) error {
	ctrl, err := h.controller(c)
	if err != nil {
		return err
	}

	noticeID := c.Param("noticeId")
	if !ctrl.DismissNotice(noticeID) {
		return NewNotFoundError("notice", noticeID)
	}
	return c.NoContent(http.StatusNoContent)
}

// encodeMsgpack encodes v using its json struct tags.
func encodeMsgpack(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
