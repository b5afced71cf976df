// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Sessions    SessionManager
	Version     string
	Endpoint    string
	CheckOrigin func(r *http.Request) bool
	Logger      *log.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Session  SessionHandler
	Workflow WorkflowHandler
	Stream   StateStreamHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(deps.Version, deps.Endpoint, deps.Sessions),
		Session:  NewSessionHandler(deps.Sessions),
		Workflow: NewWorkflowHandler(deps.Sessions),
		Stream:   NewWebSocketHandler(deps.Sessions, deps.CheckOrigin, deps.Logger),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/health", handlers.Health.HandleHealth)

	sessionGroup := e.Group("/api/sessions")
	sessionGroup.POST("", handlers.Session.HandleStartSession)
	sessionGroup.GET("/:id", handlers.Session.HandleGetSession)
	sessionGroup.DELETE("/:id", handlers.Session.HandleEndSession)
	sessionGroup.POST("/:id/keepalive", handlers.Session.HandleSessionKeepAlive)

	// Workflow routes
	sessionGroup.GET("/:id/state", handlers.Workflow.HandleGetState)
	sessionGroup.GET("/:id/state/msgpack", handlers.Workflow.HandleGetStateMsgpack)
	sessionGroup.POST("/:id/file", handlers.Workflow.HandleSelectFile)
	sessionGroup.PUT("/:id/column", handlers.Workflow.HandleSelectColumn)
	sessionGroup.POST("/:id/upload", handlers.Workflow.HandleUpload)
	sessionGroup.POST("/:id/download", handlers.Workflow.HandleDownload)
	sessionGroup.DELETE("/:id/notices/:noticeId", handlers.Workflow.HandleDismissNotice)

	sessionGroup.GET("/:id/ws", handlers.Stream.HandleWebSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
