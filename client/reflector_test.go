package client

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatlink-backend/internal/domain"
	"chatlink-backend/protocol"
)

func marshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

type recordedState struct {
	mu       sync.Mutex
	messages []*domain.Message
	unread   []map[string]int
	typing   map[string][]uuid.UUID
}

func newRecordedState() *recordedState {
	return &recordedState{typing: make(map[string][]uuid.UUID)}
}

func (s *recordedState) callbacks() Callbacks {
	return Callbacks{
		OnMessage: func(msg *domain.Message, clientID string) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.messages = append(s.messages, msg)
		},
		OnUnread: func(counts map[string]int) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.unread = append(s.unread, counts)
		},
		OnTyping: func(key string, typing []uuid.UUID) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.typing[key] = typing
		},
	}
}

func (s *recordedState) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *recordedState) typingFor(key string) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing[key]
}

func directMessage(from, to uuid.UUID, body string) *domain.Message {
	recipient := to
	return &domain.Message{
		MessageID:   uuid.New(),
		SenderID:    from,
		RecipientID: &recipient,
		Body:        body,
		SentAt:      time.Now(),
	}
}

func TestDuplicateMessageRenderedOnce(t *testing.T) {
	state := newRecordedState()
	r := NewReflector(Options{}, state.callbacks())

	msg := directMessage(uuid.New(), uuid.New(), "hi")
	payload := marshal(t, &protocol.MessageNewPayload{Message: msg})

	r.HandleEvent(protocol.EventMessageNew, payload)
	r.HandleEvent(protocol.EventMessageNew, payload)
	r.HandleEvent(protocol.EventMessageNew, payload)

	assert.Equal(t, 1, state.messageCount(), "replayed id must not render twice")
}

func TestDedupWindowExpires(t *testing.T) {
	state := newRecordedState()
	r := NewReflector(Options{DedupWindow: 20 * time.Millisecond}, state.callbacks())

	msg := directMessage(uuid.New(), uuid.New(), "hi")
	payload := marshal(t, &protocol.MessageNewPayload{Message: msg})

	r.HandleEvent(protocol.EventMessageNew, payload)
	time.Sleep(40 * time.Millisecond)
	r.HandleEvent(protocol.EventMessageNew, payload)

	assert.Equal(t, 2, state.messageCount(), "id evicted after the window")
}

func TestTypingFailsafeClears(t *testing.T) {
	state := newRecordedState()
	r := NewReflector(Options{TypingTTL: 30 * time.Millisecond}, state.callbacks())

	alice := uuid.New()
	key := "d:a:b"
	r.HandleEvent(protocol.EventTypingStart, marshal(t, &protocol.TypingPayload{
		ConversationKey: key, UserID: alice,
	}))

	assert.Equal(t, []uuid.UUID{alice}, r.TypingUsers(key))

	// No stop signal arrives; the local timer must clear the indicator
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, r.TypingUsers(key))
	assert.Empty(t, state.typingFor(key))
}

func TestTypingStopClearsImmediately(t *testing.T) {
	state := newRecordedState()
	r := NewReflector(Options{TypingTTL: time.Minute}, state.callbacks())

	alice := uuid.New()
	key := "d:a:b"
	start := marshal(t, &protocol.TypingPayload{ConversationKey: key, UserID: alice})

	r.HandleEvent(protocol.EventTypingStart, start)
	require.Len(t, r.TypingUsers(key), 1)

	r.HandleEvent(protocol.EventTypingStop, start)
	assert.Empty(t, r.TypingUsers(key))
}

func TestMessageClearsSendersTypingIndicator(t *testing.T) {
	state := newRecordedState()
	r := NewReflector(Options{TypingTTL: time.Minute}, state.callbacks())

	alice := uuid.New()
	bob := uuid.New()
	msg := directMessage(alice, bob, "done typing")
	key := msg.ConversationKey()

	r.HandleEvent(protocol.EventTypingStart, marshal(t, &protocol.TypingPayload{
		ConversationKey: key, UserID: alice,
	}))
	require.Len(t, r.TypingUsers(key), 1)

	r.HandleEvent(protocol.EventMessageNew, marshal(t, &protocol.MessageNewPayload{Message: msg}))
	assert.Empty(t, r.TypingUsers(key), "a delivered message implies typing ended")
}

func TestUnreadMergePreservesSelectedZero(t *testing.T) {
	state := newRecordedState()
	r := NewReflector(Options{}, state.callbacks())

	selected := "d:x:y"
	other := "g:z"

	// User opens the conversation; local state optimistically zeroes it
	r.SelectConversation(selected)

	// A stale server push races the markRead round-trip
	r.HandleEvent(protocol.EventUnreadCounts, marshal(t, &protocol.UnreadCountsPayload{
		Counts: map[string]int{selected: 3, other: 2},
	}))

	counts := r.Unread()
	assert.Equal(t, 0, counts[selected], "stale positive count must not clobber the local zero")
	assert.Equal(t, 2, counts[other], "other conversations merge normally")

	// The authoritative zero from the server is accepted
	r.HandleEvent(protocol.EventUnreadCounts, marshal(t, &protocol.UnreadCountsPayload{
		Counts: map[string]int{selected: 0},
	}))
	assert.Equal(t, 0, r.Unread()[selected])

	// After navigating away, server counts apply again
	r.Deselect()
	r.HandleEvent(protocol.EventUnreadCounts, marshal(t, &protocol.UnreadCountsPayload{
		Counts: map[string]int{selected: 5},
	}))
	assert.Equal(t, 5, r.Unread()[selected])
}

func TestPresenceSnapshotReplaces(t *testing.T) {
	r := NewReflector(Options{}, Callbacks{})

	alice := domain.OnlineUser{ID: uuid.New(), Username: "alice", Handle: "h-1"}
	bob := domain.OnlineUser{ID: uuid.New(), Username: "bob", Handle: "h-2"}

	r.HandleEvent(protocol.EventPresenceList, marshal(t, &protocol.PresenceListPayload{
		Users: []domain.OnlineUser{alice, bob},
	}))
	assert.Len(t, r.Online(), 2)

	r.HandleEvent(protocol.EventPresenceList, marshal(t, &protocol.PresenceListPayload{
		Users: []domain.OnlineUser{bob},
	}))
	online := r.Online()
	require.Len(t, online, 1)
	assert.Equal(t, "bob", online[0].Username)
}

func TestUnknownEventIgnored(t *testing.T) {
	r := NewReflector(Options{}, Callbacks{})
	r.HandleEvent("future:event", json.RawMessage(`{"anything":true}`))
}
