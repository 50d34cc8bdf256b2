// Package protocol defines the socket event surface shared by the server and
// the client reflector: event names, the JSON envelope, and event payloads.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatlink-backend/internal/domain"
)

// Event names, client to server
const (
	EventPresenceRegister = "presence:register"
	EventMessagePrivate   = "message:private"
	EventMessageGroup     = "message:group"
	EventMarkRead         = "message:mark-read"
	EventUnreadFetch      = "unread:fetch"
	EventCallInitiate     = "call:initiate"
	EventCallAnswer       = "call:answer"
	EventCallReject       = "call:reject"
	EventCallEnd          = "call:end"
)

// Event names, server to client
const (
	EventPresenceList    = "presence:list"
	EventCallAccepted    = "call:accepted"
	EventMessageNew      = "message:new"
	EventMessageNewGroup = "message:new-group"
	EventUnreadCounts    = "unread:counts"
	EventCallIncoming    = "call:incoming"
	EventCallConnected   = "call:connected"
	EventCallRejected    = "call:rejected"
	EventCallEnded       = "call:ended"
	EventCallUnavailable = "call:unavailable"
	EventError           = "error"
)

// Event names, both directions
const (
	EventTypingStart  = "typing:start"
	EventTypingStop   = "typing:stop"
	EventWebRTCOffer  = "webrtc:offer"
	EventWebRTCAnswer = "webrtc:answer"
	EventWebRTCICE    = "webrtc:ice"
)

// Envelope is the wire frame carrying every socket event
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals a payload into an envelope
func NewEnvelope(event string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return &Envelope{Event: event, Data: data}, nil
}

// RegisterPayload binds the session to a user id
type RegisterPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

// PrivateMessagePayload carries a 1:1 message from the client.
// ClientID is the temporary client-side id echoed back so the sender can
// replace its optimistic render with the confirmed message.
type PrivateMessagePayload struct {
	To       uuid.UUID          `json:"to"`
	Body     string             `json:"body"`
	File     *domain.Attachment `json:"file,omitempty"`
	ReplyTo  *uuid.UUID         `json:"reply_to,omitempty"`
	ClientID string             `json:"client_id,omitempty"`
}

// GroupMessagePayload carries a group message from the client
type GroupMessagePayload struct {
	GroupID  uuid.UUID          `json:"group_id"`
	Body     string             `json:"body"`
	File     *domain.Attachment `json:"file,omitempty"`
	ReplyTo  *uuid.UUID         `json:"reply_to,omitempty"`
	ClientID string             `json:"client_id,omitempty"`
}

// MessageNewPayload is the server push of a confirmed message
type MessageNewPayload struct {
	Message  *domain.Message `json:"message"`
	ClientID string          `json:"client_id,omitempty"`
}

// MarkReadPayload resets the unread counter for a conversation
type MarkReadPayload struct {
	ConversationKey string `json:"conversation_key"`
}

// UnreadCountsPayload is the server push of unread counters keyed by
// conversation key.
type UnreadCountsPayload struct {
	Counts map[string]int `json:"counts"`
}

// TypingPayload relays typing start/stop for a conversation
type TypingPayload struct {
	ConversationKey string    `json:"conversation_key"`
	UserID          uuid.UUID `json:"user_id"`
}

// CallInitiatePayload starts a call toward an online user
type CallInitiatePayload struct {
	ToUserID uuid.UUID       `json:"to_user_id"`
	CallType domain.CallType `json:"call_type"`
}

// CallIncomingPayload notifies the callee of a ringing call
type CallIncomingPayload struct {
	CallID     uuid.UUID       `json:"call_id"`
	FromUserID uuid.UUID       `json:"from_user_id"`
	FromName   string          `json:"from_name"`
	FromHandle string          `json:"from_handle"`
	CallType   domain.CallType `json:"call_type"`
}

// CallAcceptedPayload acknowledges the caller after initiate
type CallAcceptedPayload struct {
	CallID       uuid.UUID `json:"call_id"`
	CalleeHandle string    `json:"callee_handle"`
}

// CallSignalPayload acts on an existing call id
type CallSignalPayload struct {
	CallID uuid.UUID `json:"call_id"`
}

// CallEndedPayload notifies both parties of a terminal transition
type CallEndedPayload struct {
	CallID uuid.UUID `json:"call_id"`
	// Duration in seconds; zero for rejected and missed calls
	Duration int    `json:"duration"`
	Reason   string `json:"reason,omitempty"` // "hangup", "timeout", "disconnect"
}

// CallUnavailablePayload reports a callee with no live session
type CallUnavailablePayload struct {
	ToUserID uuid.UUID `json:"to_user_id"`
	Message  string    `json:"message"`
}

// WebRTCPayload is the pass-through negotiation envelope. To addresses the
// target transport handle; From is stamped by the relay so the recipient can
// address replies.
type WebRTCPayload struct {
	To      string          `json:"to"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorPayload reports a non-fatal protocol error to the initiator
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PresenceListPayload is the full online snapshot
type PresenceListPayload struct {
	Users []domain.OnlineUser `json:"users"`
	At    time.Time           `json:"at"`
}
