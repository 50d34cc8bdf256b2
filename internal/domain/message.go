package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Attachment describes an uploaded artifact referenced by a message
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
	// Duration is the measured length in seconds for voice messages
	Duration float64 `json:"duration,omitempty"`
}

// Message represents a private or group chat message.
// Exactly one of RecipientID and GroupID is set. Messages are immutable once
// created; the server-assigned MessageID is the identity used for dedup.
type Message struct {
	MessageID   uuid.UUID   `json:"message_id"`
	SenderID    uuid.UUID   `json:"sender_id"`
	RecipientID *uuid.UUID  `json:"recipient_id,omitempty"`
	GroupID     *uuid.UUID  `json:"group_id,omitempty"`
	Body        string      `json:"body"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	ReplyTo     *uuid.UUID  `json:"reply_to,omitempty"`
	SentAt      time.Time   `json:"sent_at"`
}

// IsGroup reports whether the message targets a group conversation
func (m *Message) IsGroup() bool {
	return m.GroupID != nil
}

// ConversationKey returns the key of the conversation this message belongs to
func (m *Message) ConversationKey() string {
	if m.GroupID != nil {
		return GroupKey(*m.GroupID)
	}
	if m.RecipientID != nil {
		return DirectKey(m.SenderID, *m.RecipientID)
	}
	return ""
}

// DirectKey builds the canonical conversation key for a user pair.
// The key is order-independent so both participants derive the same key.
func DirectKey(a, b uuid.UUID) string {
	as, bs := a.String(), b.String()
	if bs < as {
		as, bs = bs, as
	}
	return fmt.Sprintf("d:%s:%s", as, bs)
}

// GroupKey builds the conversation key for a group
func GroupKey(groupID uuid.UUID) string {
	return fmt.Sprintf("g:%s", groupID)
}

// ParseDirectKey extracts the participant pair from a direct conversation key
func ParseDirectKey(key string) (a, b uuid.UUID, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "d" {
		return uuid.Nil, uuid.Nil, false
	}
	a, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	b, err = uuid.Parse(parts[2])
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	return a, b, true
}

// ParseGroupKey extracts the group id from a group conversation key
func ParseGroupKey(key string) (uuid.UUID, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 2 || parts[0] != "g" {
		return uuid.Nil, false
	}
	groupID, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, false
	}
	return groupID, true
}
