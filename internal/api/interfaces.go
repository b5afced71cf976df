// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/email-verifier/console/internal/models"
	"github.com/email-verifier/console/internal/workflow"
)

// SessionHandler handles console session lifecycle
type SessionHandler interface {
	HandleStartSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleEndSession(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
}

// WorkflowHandler drives the upload workflow of one session
type WorkflowHandler interface {
	HandleGetState(c echo.Context) error
	HandleGetStateMsgpack(c echo.Context) error
	HandleSelectFile(c echo.Context) error
	HandleSelectColumn(c echo.Context) error
	HandleUpload(c echo.Context) error
	HandleDownload(c echo.Context) error
	HandleDismissNotice(c echo.Context) error
}

// StateStreamHandler pushes workflow events to the browser
type StateStreamHandler interface {
	HandleWebSocket(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	StartSession() (*models.ConsoleSession, error)
	GetSession(id string) (*models.ConsoleSession, bool)
	Controller(id string) (*workflow.Controller, bool)
	TouchSession(id string) bool
	SelectFile(ctx context.Context, id, name string, r io.Reader) (models.ColumnSet, error)
	EndSession(id string) bool
	Count() int
}
