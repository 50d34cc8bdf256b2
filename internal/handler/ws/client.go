package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatlink-backend/internal/presence"
	"chatlink-backend/pkg/constants"
	"chatlink-backend/pkg/logger"
	"chatlink-backend/pkg/metrics"
	"chatlink-backend/protocol"
)

const sendBufferSize = 256

var errSlowClient = errors.New("ws: send buffer full, frame dropped")

// Client is one WebSocket connection. It implements presence.Sender so the
// registry and coordinators can push events without knowing about websockets.
type Client struct {
	handle  string
	userID  uuid.UUID
	conn    *websocket.Conn
	handler *Handler
	send    chan []byte

	mu      sync.Mutex
	session *presence.Session
	closed  bool
}

func newClient(handler *Handler, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		handle:  uuid.NewString(),
		userID:  userID,
		conn:    conn,
		handler: handler,
		send:    make(chan []byte, sendBufferSize),
	}
}

// Handle returns the unique transport handle of this connection
func (c *Client) Handle() string {
	return c.handle
}

// Send queues an event frame for the write pump. A full buffer means the
// client cannot keep up; the frame is dropped rather than blocking the
// coordinator that called us.
func (c *Client) Send(event string, payload any) error {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		metrics.WebSocketDroppedTotal.WithLabelValues("closed").Inc()
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- frame:
		return nil
	default:
		metrics.WebSocketDroppedTotal.WithLabelValues("slow").Inc()
		logger.Warn("Dropping frame for slow client",
			zap.String("handle", c.handle),
			zap.String("event", event))
		return errSlowClient
	}
}

func (c *Client) setSession(s *presence.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Client) getSession() *presence.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// close marks the send channel closed for Send callers and shuts it, waking
// the write pump. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump reads frames until the connection drops, dispatching each event.
// Runs as the connection's owning goroutine; tears down the session on exit.
func (c *Client) readPump() {
	defer func() {
		c.handler.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.handler.maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval + constants.WebSocketWriteTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval + constants.WebSocketWriteTimeout))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read failed",
					zap.String("handle", c.handle),
					zap.Error(err))
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.sendError(protocol.ErrorPayload{Code: "INVALID_FRAME", Message: "malformed envelope"})
			continue
		}

		c.handler.dispatch(context.Background(), c, &env)
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(p protocol.ErrorPayload) {
	c.Send(protocol.EventError, &p)
}
