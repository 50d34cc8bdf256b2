// Package ws is the WebSocket transport: it upgrades connections, binds them
// to presence sessions, and dispatches socket events to the presence, call
// and delivery coordinators.
package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatlink-backend/internal/call"
	"chatlink-backend/internal/delivery"
	"chatlink-backend/internal/domain"
	"chatlink-backend/internal/presence"
	"chatlink-backend/pkg/errors"
	"chatlink-backend/pkg/logger"
	"chatlink-backend/pkg/metrics"
	"chatlink-backend/protocol"
)

const defaultMaxFrameSize = 64 * 1024

// Handler owns the socket endpoint and the event dispatch table
type Handler struct {
	registry *presence.Registry
	calls    *call.Coordinator
	delivery *delivery.Coordinator

	upgrader     websocket.Upgrader
	maxFrameSize int64
	handlers     map[string]eventFunc
}

type eventFunc func(ctx context.Context, c *Client, event string, data json.RawMessage)

// NewHandler creates the WebSocket handler
func NewHandler(registry *presence.Registry, calls *call.Coordinator, deliv *delivery.Coordinator) *Handler {
	h := &Handler{
		registry: registry,
		calls:    calls,
		delivery: deliv,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		maxFrameSize: defaultMaxFrameSize,
	}

	h.handlers = map[string]eventFunc{
		protocol.EventPresenceRegister: h.handleRegister,
		protocol.EventMessagePrivate:   h.handlePrivateMessage,
		protocol.EventMessageGroup:     h.handleGroupMessage,
		protocol.EventMarkRead:         h.handleMarkRead,
		protocol.EventUnreadFetch:      h.handleUnreadFetch,
		protocol.EventTypingStart:      h.handleTyping,
		protocol.EventTypingStop:       h.handleTyping,
		protocol.EventCallInitiate:     h.handleCallInitiate,
		protocol.EventCallAnswer:       h.handleCallAnswer,
		protocol.EventCallReject:       h.handleCallReject,
		protocol.EventCallEnd:          h.handleCallEnd,
		protocol.EventWebRTCOffer:      h.handleWebRTC,
		protocol.EventWebRTCAnswer:     h.handleWebRTC,
		protocol.EventWebRTCICE:        h.handleWebRTC,
	}
	return h
}

// ServeWS upgrades the request to a WebSocket connection. Authentication has
// already happened in middleware; the session becomes visible to other users
// only once the client sends presence:register.
func (h *Handler) ServeWS(c *gin.Context) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h, conn, userID)
	metrics.WebSocketConnections.Inc()

	go client.writePump()
	go client.readPump()
}

// dispatch routes one inbound envelope to its event handler
func (h *Handler) dispatch(ctx context.Context, c *Client, env *protocol.Envelope) {
	metrics.WebSocketEventsTotal.WithLabelValues(env.Event).Inc()

	fn, ok := h.handlers[env.Event]
	if !ok {
		c.sendError(protocol.ErrorPayload{Code: "UNKNOWN_EVENT", Message: "unknown event: " + env.Event})
		return
	}
	fn(ctx, c, env.Event, env.Data)
}

// disconnect tears the session down. Listeners on the registry force-end any
// call the session was party to and clear its typing and viewing state.
func (h *Handler) disconnect(c *Client) {
	metrics.WebSocketConnections.Dec()
	if c.getSession() != nil {
		h.registry.Unregister(context.Background(), c.handle)
	}
	c.close()
}

func (h *Handler) handleRegister(ctx context.Context, c *Client, _ string, data json.RawMessage) {
	var p protocol.RegisterPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(protocol.ErrorPayload{Code: "INVALID_PAYLOAD", Message: "malformed register payload"})
		return
	}
	if p.UserID != uuid.Nil && p.UserID != c.userID {
		c.sendError(protocol.ErrorPayload{Code: "FORBIDDEN", Message: "cannot register as another user"})
		return
	}

	session, err := h.registry.Register(ctx, c.userID, c)
	if err != nil {
		h.sendAppError(c, err)
		return
	}
	c.setSession(session)

	// Initial state push: the registry broadcast already delivered the online
	// list, the unread snapshot is per-session.
	counts, err := h.delivery.UnreadCounts(ctx, c.userID)
	if err == nil {
		c.Send(protocol.EventUnreadCounts, &protocol.UnreadCountsPayload{Counts: counts})
	}
}

func (h *Handler) handlePrivateMessage(ctx context.Context, c *Client, _ string, data json.RawMessage) {
	session := h.requireSession(c)
	if session == nil {
		return
	}
	var p protocol.PrivateMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(protocol.ErrorPayload{Code: "INVALID_PAYLOAD", Message: "malformed message payload"})
		return
	}

	msg, err := h.delivery.DeliverPrivate(ctx, session, &p)
	if err != nil {
		h.sendAppError(c, err)
		return
	}
	// Echo the confirmed message so the sender can replace its optimistic
	// render keyed by client_id.
	c.Send(protocol.EventMessageNew, &protocol.MessageNewPayload{Message: msg, ClientID: p.ClientID})
}

func (h *Handler) handleGroupMessage(ctx context.Context, c *Client, _ string, data json.RawMessage) {
	session := h.requireSession(c)
	if session == nil {
		return
	}
	var p protocol.GroupMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(protocol.ErrorPayload{Code: "INVALID_PAYLOAD", Message: "malformed message payload"})
		return
	}

	msg, err := h.delivery.DeliverGroup(ctx, session, &p)
	if err != nil {
		h.sendAppError(c, err)
		return
	}
	c.Send(protocol.EventMessageNewGroup, &protocol.MessageNewPayload{Message: msg, ClientID: p.ClientID})
}

func (h *Handler) handleMarkRead(ctx context.Context, c *Client, _ string, data json.RawMessage) {
	session := h.requireSession(c)
	if session == nil {
		return
	}
	var p protocol.MarkReadPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationKey == "" {
		c.sendError(protocol.ErrorPayload{Code: "INVALID_PAYLOAD", Message: "conversation_key required"})
		return
	}
	if err := h.delivery.MarkRead(ctx, c.userID, p.ConversationKey); err != nil {
		h.sendAppError(c, err)
	}
}

func (h *Handler) handleUnreadFetch(ctx context.Context, c *Client, _ string, _ json.RawMessage) {
	counts, err := h.delivery.UnreadCounts(ctx, c.userID)
	if err != nil {
		h.sendAppError(c, err)
		return
	}
	c.Send(protocol.EventUnreadCounts, &protocol.UnreadCountsPayload{Counts: counts})
}

func (h *Handler) handleTyping(ctx context.Context, c *Client, event string, data json.RawMessage) {
	session := h.requireSession(c)
	if session == nil {
		return
	}
	var p protocol.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationKey == "" {
		return // typing is best-effort, no error frames
	}
	h.delivery.Typing(ctx, session, event, &p)
}

func (h *Handler) handleCallInitiate(ctx context.Context, c *Client, _ string, data json.RawMessage) {
	session := h.requireSession(c)
	if session == nil {
		return
	}
	var p protocol.CallInitiatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(protocol.ErrorPayload{Code: "INVALID_PAYLOAD", Message: "malformed call payload"})
		return
	}
	if p.CallType != domain.CallTypeAudio && p.CallType != domain.CallTypeVideo {
		c.sendError(protocol.ErrorPayload{Code: "INVALID_PAYLOAD", Message: "call_type must be audio or video"})
		return
	}

	callRecord, err := h.calls.Initiate(ctx, session, p.ToUserID, p.CallType)
	if err != nil {
		if appErr := errors.GetAppError(err); appErr != nil && appErr.Code == errors.ErrCodeUserUnavailable {
			c.Send(protocol.EventCallUnavailable, &protocol.CallUnavailablePayload{
				ToUserID: p.ToUserID,
				Message:  appErr.Message,
			})
			return
		}
		h.sendAppError(c, err)
		return
	}

	c.Send(protocol.EventCallAccepted, &protocol.CallAcceptedPayload{
		CallID:       callRecord.CallID,
		CalleeHandle: callRecord.CalleeHandle,
	})
}

func (h *Handler) handleCallAnswer(ctx context.Context, c *Client, _ string, data json.RawMessage) {
	if callID, ok := h.parseCallSignal(c, data); ok {
		h.calls.Answer(ctx, callID)
	}
}

func (h *Handler) handleCallReject(ctx context.Context, c *Client, _ string, data json.RawMessage) {
	if callID, ok := h.parseCallSignal(c, data); ok {
		h.calls.Reject(ctx, callID)
	}
}

func (h *Handler) handleCallEnd(ctx context.Context, c *Client, _ string, data json.RawMessage) {
	if callID, ok := h.parseCallSignal(c, data); ok {
		h.calls.End(ctx, callID)
	}
}

func (h *Handler) handleWebRTC(_ context.Context, c *Client, event string, data json.RawMessage) {
	session := h.requireSession(c)
	if session == nil {
		return
	}
	var p protocol.WebRTCPayload
	if err := json.Unmarshal(data, &p); err != nil || p.To == "" {
		return // negotiation frames are fire-and-forget
	}
	h.calls.RelayNegotiation(event, session, &p)
}

func (h *Handler) parseCallSignal(c *Client, data json.RawMessage) (uuid.UUID, bool) {
	if h.requireSession(c) == nil {
		return uuid.Nil, false
	}
	var p protocol.CallSignalPayload
	if err := json.Unmarshal(data, &p); err != nil || p.CallID == uuid.Nil {
		c.sendError(protocol.ErrorPayload{Code: "INVALID_PAYLOAD", Message: "call_id required"})
		return uuid.Nil, false
	}
	return p.CallID, true
}

func (h *Handler) requireSession(c *Client) *presence.Session {
	session := c.getSession()
	if session == nil {
		c.sendError(protocol.ErrorPayload{Code: "NOT_REGISTERED", Message: "send presence:register first"})
	}
	return session
}

func (h *Handler) sendAppError(c *Client, err error) {
	if appErr := errors.GetAppError(err); appErr != nil {
		c.sendError(protocol.ErrorPayload{Code: string(appErr.Code), Message: appErr.Message})
		return
	}
	c.sendError(protocol.ErrorPayload{Code: "INTERNAL", Message: "internal error"})
}
