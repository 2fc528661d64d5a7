package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/xiaot623/mockinterview/internal/capture"
	"github.com/xiaot623/mockinterview/internal/domain"
)

// Config holds the connection limits of the WebSocket server.
type Config struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

// Server handles WebSocket connections.
type Server struct {
	cfg      Config
	hub      *Hub
	devices  *Registry
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// NewServer creates a new WebSocket server.
func NewServer(cfg Config, h *Hub, devices *Registry, log logrus.FieldLogger) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		cfg:     cfg,
		hub:     h,
		devices: devices,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log.WithField("component", "ws"),
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.WithError(err).Warn("failed to upgrade websocket")
		return err
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.WithError(err).WithField("connection_id", conn.ID).Warn("websocket error")
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.log.WithError(err).WithField("connection_id", conn.ID).Warn("failed to write message")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *Connection, data []byte) {
	var baseMsg BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	if baseMsg.Type == TypeHello {
		s.handleHello(conn, data)
		return
	}
	if conn.SessionID == "" {
		s.sendError(conn, ErrorCodeSessionRequired, "must send hello first")
		return
	}
	device := s.devices.Device(conn.SessionID)

	switch baseMsg.Type {
	case TypeSpeechResult:
		var msg SpeechResultMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(conn, ErrorCodeInvalidMessage, "invalid speech_result message")
			return
		}
		device.Recognized(capture.Recognition{Text: msg.Text, Final: msg.Final})
	case TypeSpeechEnd:
		device.SpeechEnded()
	case TypeCameraState:
		var msg CameraStateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(conn, ErrorCodeInvalidMessage, "invalid camera_state message")
			return
		}
		device.SetCameraEnabled(msg.Enabled)
	case TypeFrame:
		s.handleFrame(conn, device, data)
	default:
		s.sendError(conn, ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

// handleHello binds the connection to an existing interview session.
func (s *Server) handleHello(conn *Connection, data []byte) {
	var msg HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, ErrorCodeInvalidMessage, "invalid hello message")
		return
	}
	if msg.SessionID == "" {
		s.sendError(conn, ErrorCodeSessionRequired, "session_id is required")
		return
	}

	s.hub.BindSession(conn, msg.SessionID)
	ack := HelloAckMessage{
		BaseMessage:  newBase(TypeHelloAck, msg.SessionID),
		ConnectionID: conn.ID,
	}
	s.hub.SendJSONToConnection(conn, ack)

	s.log.WithFields(logrus.Fields{
		"connection_id": conn.ID,
		"session_id":    msg.SessionID,
	}).Info("device connected")
}

func (s *Server) handleFrame(conn *Connection, device *RemoteDevice, data []byte) {
	var msg FrameMessage
	if err := json.Unmarshal(data, &msg); err != nil || len(msg.Data) == 0 {
		s.sendError(conn, ErrorCodeInvalidMessage, "invalid frame message")
		return
	}

	frame := domain.Frame{ContentType: msg.ContentType, Data: msg.Data}
	if msg.CapturedAt > 0 {
		frame.CapturedAt = time.UnixMilli(msg.CapturedAt)
	}
	if !device.PutFrame(frame) {
		s.sendError(conn, ErrorCodeRateLimited, "frame upload rate exceeded")
	}
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *Connection, code, message string) {
	errMsg := ErrorMessage{
		BaseMessage: newBase(TypeError, conn.SessionID),
		Code:        code,
		Message:     message,
	}
	s.hub.SendJSONToConnection(conn, errMsg)
}
