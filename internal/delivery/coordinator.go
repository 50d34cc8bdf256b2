// Package delivery implements the messaging-delivery coordinator: it routes
// private and group messages to connected recipients, records unread counters
// for absent ones, and relays typing signals.
package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatlink-backend/internal/domain"
	"chatlink-backend/internal/presence"
	"chatlink-backend/pkg/errors"
	"chatlink-backend/pkg/logger"
	"chatlink-backend/pkg/metrics"
	"chatlink-backend/pkg/sanitize"
	"chatlink-backend/protocol"
)

// MessageStore persists confirmed messages
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *domain.Message) error
}

// UnreadStore persists per-recipient, per-conversation unread counters
type UnreadStore interface {
	IncrementUnread(ctx context.Context, userID uuid.UUID, conversationKey string) (int, error)
	ResetUnread(ctx context.Context, userID uuid.UUID, conversationKey string) error
	GetUnreadCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error)
}

// GroupStore resolves group membership
type GroupStore interface {
	GetGroup(ctx context.Context, groupID uuid.UUID) (*domain.Group, error)
}

// Notifier reaches recipients with no live session through push. Best-effort;
// implementations must never block delivery.
type Notifier interface {
	NotifyMessage(ctx context.Context, recipientID uuid.UUID, senderName string, msg *domain.Message)
}

// Coordinator routes messages and typing signals. It holds the map of which
// conversation each user is actively viewing; unread counters are only
// incremented for conversations the recipient does not have open.
type Coordinator struct {
	registry *presence.Registry
	messages MessageStore
	unread   UnreadStore
	groups   GroupStore
	notifier Notifier // may be nil

	mu      sync.Mutex
	viewing map[uuid.UUID]string // user id -> open conversation key
}

// NewCoordinator creates a delivery coordinator. notifier may be nil.
func NewCoordinator(registry *presence.Registry, messages MessageStore, unread UnreadStore, groups GroupStore, notifier Notifier) *Coordinator {
	return &Coordinator{
		registry: registry,
		messages: messages,
		unread:   unread,
		groups:   groups,
		notifier: notifier,
		viewing:  make(map[uuid.UUID]string),
	}
}

// DeliverPrivate confirms and routes a 1:1 message. The recipient gets a live
// push only when online and actively viewing the conversation; otherwise the
// unread counter for (recipient, conversation) is incremented and, when the
// recipient is offline, a push notification goes out. The confirmed message
// is returned so the transport can echo it to the sender.
func (c *Coordinator) DeliverPrivate(ctx context.Context, sender *presence.Session, payload *protocol.PrivateMessagePayload) (*domain.Message, error) {
	body := sanitize.Body(payload.Body)
	if body == "" && payload.File == nil {
		return nil, errors.ValidationError("message body or attachment required")
	}

	recipientID := payload.To
	msg := &domain.Message{
		MessageID:   uuid.New(),
		SenderID:    sender.UserID,
		RecipientID: &recipientID,
		Body:        body,
		Attachment:  payload.File,
		ReplyTo:     payload.ReplyTo,
		SentAt:      time.Now(),
	}

	if err := c.messages.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	c.route(ctx, sender, msg, protocol.EventMessageNew, []uuid.UUID{recipientID}, "private")
	return msg, nil
}

// DeliverGroup confirms and routes a group message to every member except the
// sender, with the same live-vs-unread split as private delivery.
func (c *Coordinator) DeliverGroup(ctx context.Context, sender *presence.Session, payload *protocol.GroupMessagePayload) (*domain.Message, error) {
	body := sanitize.Body(payload.Body)
	if body == "" && payload.File == nil {
		return nil, errors.ValidationError("message body or attachment required")
	}

	group, err := c.groups.GetGroup(ctx, payload.GroupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(sender.UserID) {
		return nil, errors.ForbiddenError("not a member of this group")
	}

	groupID := payload.GroupID
	msg := &domain.Message{
		MessageID:  uuid.New(),
		SenderID:   sender.UserID,
		GroupID:    &groupID,
		Body:       body,
		Attachment: payload.File,
		ReplyTo:    payload.ReplyTo,
		SentAt:     time.Now(),
	}

	if err := c.messages.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	recipients := make([]uuid.UUID, 0, len(group.Members))
	for _, member := range group.Members {
		if member != sender.UserID {
			recipients = append(recipients, member)
		}
	}

	c.route(ctx, sender, msg, protocol.EventMessageNewGroup, recipients, "group")
	return msg, nil
}

// route applies the live-push-or-queue-unread decision per recipient
func (c *Coordinator) route(ctx context.Context, sender *presence.Session, msg *domain.Message, event string, recipients []uuid.UUID, kind string) {
	key := msg.ConversationKey()

	for _, recipientID := range recipients {
		session, online := c.registry.Lookup(recipientID)

		if online && c.isViewing(recipientID, key) {
			c.send(session, event, &protocol.MessageNewPayload{Message: msg})
			metrics.MessagesDeliveredTotal.WithLabelValues(kind, "live").Inc()
			continue
		}

		count, err := c.unread.IncrementUnread(ctx, recipientID, key)
		if err != nil {
			logger.Error("Failed to increment unread counter",
				zap.String("recipient", recipientID.String()),
				zap.String("conversation", key),
				zap.Error(err))
			continue
		}
		metrics.MessagesDeliveredTotal.WithLabelValues(kind, "queued").Inc()

		if online {
			// Online but looking elsewhere: no message push, just the badge.
			c.send(session, protocol.EventUnreadCounts, &protocol.UnreadCountsPayload{
				Counts: map[string]int{key: count},
			})
		} else if c.notifier != nil {
			c.notifier.NotifyMessage(ctx, recipientID, sender.Username, msg)
		}
	}
}

// MarkRead resets the unread counter for (user, conversation), records the
// conversation as the one the user is actively viewing, and pushes the zero
// count to the user's session if online.
func (c *Coordinator) MarkRead(ctx context.Context, userID uuid.UUID, conversationKey string) error {
	if err := c.unread.ResetUnread(ctx, userID, conversationKey); err != nil {
		return err
	}
	metrics.UnreadResetTotal.Inc()

	c.mu.Lock()
	c.viewing[userID] = conversationKey
	c.mu.Unlock()

	if session, ok := c.registry.Lookup(userID); ok {
		c.send(session, protocol.EventUnreadCounts, &protocol.UnreadCountsPayload{
			Counts: map[string]int{conversationKey: 0},
		})
	}
	return nil
}

// UnreadCounts returns the persisted unread snapshot for a user
func (c *Coordinator) UnreadCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	return c.unread.GetUnreadCounts(ctx, userID)
}

// Typing relays a typing start/stop signal to the other online occupants of
// the conversation, never back to the sender. The coordinator relays each
// discrete signal exactly once; expiry is the client's local failsafe.
func (c *Coordinator) Typing(ctx context.Context, sender *presence.Session, event string, payload *protocol.TypingPayload) {
	switch event {
	case protocol.EventTypingStart:
		metrics.TypingEventsTotal.WithLabelValues("start").Inc()
	case protocol.EventTypingStop:
		metrics.TypingEventsTotal.WithLabelValues("stop").Inc()
	}

	out := &protocol.TypingPayload{
		ConversationKey: payload.ConversationKey,
		UserID:          sender.UserID,
	}

	if a, b, ok := domain.ParseDirectKey(payload.ConversationKey); ok {
		peer := a
		if peer == sender.UserID {
			peer = b
		}
		if session, online := c.registry.Lookup(peer); online {
			c.send(session, event, out)
		}
		return
	}

	if groupID, ok := domain.ParseGroupKey(payload.ConversationKey); ok {
		group, err := c.groups.GetGroup(ctx, groupID)
		if err != nil {
			return
		}
		for _, member := range group.Members {
			if member == sender.UserID {
				continue
			}
			if session, online := c.registry.Lookup(member); online {
				c.send(session, event, out)
			}
		}
	}
}

// SessionLost clears the viewing state of the disconnected user so a queued
// message after the disconnect counts as unread. Implements presence.Listener.
func (c *Coordinator) SessionLost(session *presence.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.viewing, session.UserID)
}

func (c *Coordinator) isViewing(userID uuid.UUID, conversationKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewing[userID] == conversationKey
}

func (c *Coordinator) send(session *presence.Session, event string, payload any) {
	if err := session.Sender.Send(event, payload); err != nil {
		metrics.WebSocketDroppedTotal.WithLabelValues("closed").Inc()
	}
}
