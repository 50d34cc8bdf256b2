package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatlink-backend/protocol"
)

// Conn is a WebSocket connection to the server, bound to a reflector that
// absorbs every pushed event.
type Conn struct {
	ws        *websocket.Conn
	reflector *Reflector

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// Dial connects to the socket endpoint using the given access token and
// starts the read loop. The returned Conn is ready to send events.
func Dial(ctx context.Context, url, accessToken string, reflector *Reflector) (*Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	c := &Conn{
		ws:        ws,
		reflector: reflector,
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Register binds the connection to the user and requests the initial state
func (c *Conn) Register(userID uuid.UUID) error {
	return c.Send(protocol.EventPresenceRegister, &protocol.RegisterPayload{UserID: userID})
}

// Send marshals and writes one event frame
func (c *Conn) Send(event string, payload any) error {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(env)
}

// SendPrivate sends a 1:1 message; clientID is echoed back on confirmation
func (c *Conn) SendPrivate(p *protocol.PrivateMessagePayload) error {
	return c.Send(protocol.EventMessagePrivate, p)
}

// SendGroup sends a group message
func (c *Conn) SendGroup(p *protocol.GroupMessagePayload) error {
	return c.Send(protocol.EventMessageGroup, p)
}

// MarkRead tells the server the conversation is open and read, and mirrors
// the optimistic zero locally.
func (c *Conn) MarkRead(conversationKey string) error {
	c.reflector.SelectConversation(conversationKey)
	return c.Send(protocol.EventMarkRead, &protocol.MarkReadPayload{ConversationKey: conversationKey})
}

// TypingStart signals typing in a conversation
func (c *Conn) TypingStart(conversationKey string) error {
	return c.Send(protocol.EventTypingStart, &protocol.TypingPayload{ConversationKey: conversationKey})
}

// TypingStop signals the end of typing
func (c *Conn) TypingStop(conversationKey string) error {
	return c.Send(protocol.EventTypingStop, &protocol.TypingPayload{ConversationKey: conversationKey})
}

// Done closes when the read loop exits
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close tears the connection down
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	defer func() {
		c.Close()
		close(c.done)
	}()

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			continue
		}
		c.reflector.HandleEvent(env.Event, env.Data)
	}
}
