// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/email-verifier/console/internal/session"
	"github.com/email-verifier/console/internal/storage"
	"github.com/email-verifier/console/internal/workflow"
)

// ExposeErrorDetails controls whether unexpected errors carry their cause in
// the response. The server turns it on at debug log level.
var ExposeErrorDetails = false

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewTooLargeError creates a 413 error for files over the spool limit
func NewTooLargeError(cause error) *APIError {
	err := &APIError{
		Status:  http.StatusRequestEntityTooLarge,
		Code:    "FILE_TOO_LARGE",
		Message: "file exceeds the configured size limit",
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil && ExposeErrorDetails {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// workflowStatus maps workflow error kinds to HTTP status and code.
var workflowStatus = map[workflow.ErrorKind]struct {
	status int
	code   string
}{
	workflow.KindNoFileSelected:      {http.StatusBadRequest, "NO_FILE_SELECTED"},
	workflow.KindUnknownColumn:       {http.StatusBadRequest, "UNKNOWN_COLUMN"},
	workflow.KindHeaderReadFailure:   {http.StatusUnprocessableEntity, "HEADER_READ_FAILURE"},
	workflow.KindNoDownloadAvailable: {http.StatusNotFound, "NO_DOWNLOAD_AVAILABLE"},
	workflow.KindUploadInProgress:    {http.StatusConflict, "UPLOAD_IN_PROGRESS"},
	workflow.KindHeaderPending:       {http.StatusConflict, "HEADER_PENDING"},
	workflow.KindUploadFailure:       {http.StatusBadGateway, "UPLOAD_FAILED"},
}

// NewWorkflowError converts a Controller error into an APIError. The message
// is the user-facing notice text; the underlying cause never reaches the
// client.
func NewWorkflowError(err error) *APIError {
	var wfErr *workflow.Error
	if !errors.As(err, &wfErr) {
		return NewInternalError("workflow operation failed", err)
	}
	m, ok := workflowStatus[wfErr.Kind]
	if !ok {
		return NewInternalError(wfErr.Message, err)
	}
	return &APIError{
		Status:  m.status,
		Code:    m.code,
		Message: wfErr.Message,
	}
}

// classify maps errors returned by the session layer.
func classify(err error, sessionID string) *APIError {
	var wfErr *workflow.Error
	switch {
	case errors.Is(err, session.ErrNotFound):
		return NewNotFoundError("session", sessionID)
	case errors.Is(err, session.ErrTooManySessions):
		return NewServiceUnavailableError("too many active sessions")
	case errors.Is(err, storage.ErrTooLarge):
		return NewTooLargeError(err)
	case errors.As(err, &wfErr):
		return NewWorkflowError(err)
	default:
		return NewInternalError("request failed", err)
	}
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError

	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	default:
		apiErr = &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "UNKNOWN_ERROR",
			Message: "An unexpected error occurred",
		}
		if ExposeErrorDetails {
			apiErr.Details = err.Error()
		}
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}
