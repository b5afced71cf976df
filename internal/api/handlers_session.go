// handlers_session.go - Console session lifecycle handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessions SessionManager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions SessionManager) SessionHandler {
	return &SessionHandlerImpl{sessions: sessions}
}

// HandleStartSession creates a session with an idle workflow
func (h *SessionHandlerImpl) HandleStartSession(c echo.Context) error {
	sess, err := h.sessions.StartSession()
	if err != nil {
		return classify(err, "")
	}
	return c.JSON(http.StatusCreated, sess)
}

// HandleGetSession returns session metadata
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	id := c.Param("id")
	sess, ok := h.sessions.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, sess)
}

// HandleEndSession closes a session and drops its spooled file
func (h *SessionHandlerImpl) HandleEndSession(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.EndSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSessionKeepAlive keeps an idle session from being cleaned up
func (h *SessionHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.TouchSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
