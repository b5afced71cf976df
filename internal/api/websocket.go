package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/email-verifier/console/internal/logging"
	"github.com/email-verifier/console/internal/workflow"
)

// WebSocket message types for the state stream
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeState     = "state"
	MsgTypeOpen      = "open"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// writeWait bounds a single frame write to a slow client.
const writeWait = 10 * time.Second

// WSMessage is the envelope of every frame
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSOpenPayload asks the renderer to open a result file
type WSOpenPayload struct {
	Locator string `json:"locator"`
}

// WSErrorResponse is sent for protocol errors
type WSErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams workflow events of one session
type WebSocketHandler struct {
	sessions SessionManager
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewWebSocketHandler creates a new state stream handler. checkOrigin may be
// nil to accept any origin.
func NewWebSocketHandler(sessions SessionManager, checkOrigin func(r *http.Request) bool, logger *log.Logger) *WebSocketHandler {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	if logger == nil {
		logger = logging.Discard("websocket")
	}
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		logger: logger,
	}
}

// wsConn serializes writes; the reader and the event pump both send.
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

// HandleWebSocket upgrades the connection and forwards Controller events until
// either side closes.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	id := c.Param("id")
	ctrl, ok := wsh.sessions.Controller(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	conn := &wsConn{ws: ws}
	defer ws.Close()

	wsh.logger.Infof("[WebSocket %s] client connected", shortID(id))

	events, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	wsh.sendMessage(conn, WSMessage{Type: MsgTypeConnected, ID: id, Timestamp: time.Now().UnixMilli()})

	done := make(chan struct{})
	go wsh.readLoop(conn, id, done)

	for {
		select {
		case <-done:
			wsh.logger.Infof("[WebSocket %s] client disconnected", shortID(id))
			return nil
		case ev, ok := <-events:
			if !ok {
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session ended"),
					time.Now().Add(writeWait))
				return nil
			}
			wsh.touch(id)
			if err := conn.send(eventMessage(id, ev)); err != nil {
				wsh.logger.Warnf("[WebSocket %s] send failed: %v", shortID(id), err)
				return nil
			}
		}
	}
}

// readLoop answers pings and closes done when the client goes away.
func (wsh *WebSocketHandler) readLoop(conn *wsConn, id string, done chan<- struct{}) {
	defer close(done)
	for {
		var msg WSMessage
		if err := conn.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsh.logger.Warnf("[WebSocket %s] connection error: %v", shortID(id), err)
			}
			return
		}

		switch msg.Type {
		case MsgTypePing:
			wsh.touch(id)
			wsh.sendMessage(conn, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})
		default:
			wsh.sendError(conn, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}
}

func (wsh *WebSocketHandler) touch(id string) {
	wsh.sessions.TouchSession(id)
}

func eventMessage(id string, ev workflow.Event) WSMessage {
	msg := WSMessage{ID: id, Timestamp: time.Now().UnixMilli()}
	switch ev.Type {
	case workflow.EventOpen:
		msg.Type = MsgTypeOpen
		msg.Payload = mustJSON(WSOpenPayload{Locator: ev.Locator})
	default:
		msg.Type = MsgTypeState
		if ev.State != nil {
			msg.Payload = mustJSON(newStateResponse(*ev.State))
		}
	}
	return msg
}

func (wsh *WebSocketHandler) sendMessage(conn *wsConn, msg WSMessage) {
	if err := conn.send(msg); err != nil {
		wsh.logger.Warnf("[WebSocket] failed to send message: %v", err)
	}
}

func (wsh *WebSocketHandler) sendError(conn *wsConn, message, code string) {
	wsh.sendMessage(conn, WSMessage{
		Type:      MsgTypeError,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSErrorResponse{
			Type:    MsgTypeError,
			Message: message,
			Code:    code,
		}),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
