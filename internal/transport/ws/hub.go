// Package ws bridges browser devices to interview sessions over WebSocket:
// the browser streams speech recognition results and camera frames in, and
// receives listening commands and session events out.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/xiaot623/mockinterview/internal/domain"
)

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

// Connection represents a single WebSocket connection.
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	mu        sync.Mutex
}

// SessionMessage is used to broadcast a message to a session.
type SessionMessage struct {
	SessionID string
	Data      []byte
}

// Hub manages all WebSocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Sessions maps session_id to set of connection IDs
	sessions map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *SessionMessage
	done       chan struct{}

	log logrus.FieldLogger
	mu  sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *SessionMessage, 256),
		done:        make(chan struct{}),
		log:         log.WithField("component", "ws_hub"),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if conn.SessionID != "" {
				h.bindLocked(conn, conn.SessionID)
			}
			h.mu.Unlock()
			h.log.WithField("connection_id", conn.ID).Debug("connection registered")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.unbindLocked(conn)
				close(conn.Send)
			}
			h.mu.Unlock()
			h.log.WithField("connection_id", conn.ID).Debug("connection unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.sessions[msg.SessionID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case conn.Send <- msg.Data:
				default:
					h.log.WithField("connection_id", connID).Warn("connection buffer full, closing")
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection creates a new connection. It is not registered yet.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:   "conn_" + uuid.New().String()[:8],
		Conn: ws,
		Send: make(chan []byte, 256),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// BindSession binds a connection to a session.
func (h *Hub) BindSession(conn *Connection, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unbindLocked(conn)
	conn.SessionID = sessionID
	h.bindLocked(conn, sessionID)
}

func (h *Hub) bindLocked(conn *Connection, sessionID string) {
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]bool)
	}
	h.sessions[sessionID][conn.ID] = true
}

func (h *Hub) unbindLocked(conn *Connection) {
	if conn.SessionID == "" || h.sessions[conn.SessionID] == nil {
		return
	}
	delete(h.sessions[conn.SessionID], conn.ID)
	if len(h.sessions[conn.SessionID]) == 0 {
		delete(h.sessions, conn.SessionID)
	}
}

// BroadcastJSON sends a JSON message to all connections of a session. The
// message is dropped when the hub is backed up.
func (h *Hub) BroadcastJSON(sessionID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &SessionMessage{SessionID: sessionID, Data: data}:
		return nil
	default:
		return ErrBufferFull
	}
}

// Broadcast pushes a recorded session event to the session's connections.
func (h *Hub) Broadcast(sessionID string, event *domain.Event) {
	msg := EventMessage{BaseMessage: newBase(TypeEvent, sessionID), Event: event}
	if err := h.BroadcastJSON(sessionID, msg); err != nil {
		h.log.WithError(err).WithField("session_id", sessionID).Warn("dropping session event")
	}
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasActiveConnections checks if a session has any active connections.
func (h *Hub) HasActiveConnections(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID]) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
