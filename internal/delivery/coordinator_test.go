package delivery

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatlink-backend/internal/domain"
	"chatlink-backend/internal/presence"
	"chatlink-backend/protocol"
)

// MockMessageStore is a mock implementation of MessageStore
type MockMessageStore struct {
	mock.Mock
}

func (m *MockMessageStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockUnreadStore is a mock implementation of UnreadStore
type MockUnreadStore struct {
	mock.Mock
}

func (m *MockUnreadStore) IncrementUnread(ctx context.Context, userID uuid.UUID, conversationKey string) (int, error) {
	args := m.Called(ctx, userID, conversationKey)
	return args.Int(0), args.Error(1)
}

func (m *MockUnreadStore) ResetUnread(ctx context.Context, userID uuid.UUID, conversationKey string) error {
	args := m.Called(ctx, userID, conversationKey)
	return args.Error(0)
}

func (m *MockUnreadStore) GetUnreadCounts(ctx context.Context, userID uuid.UUID) (map[string]int, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

// MockGroupStore is a mock implementation of GroupStore
type MockGroupStore struct {
	mock.Mock
}

func (m *MockGroupStore) GetGroup(ctx context.Context, groupID uuid.UUID) (*domain.Group, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Group), args.Error(1)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyMessage(ctx context.Context, recipientID uuid.UUID, senderName string, msg *domain.Message) {
	m.Called(ctx, recipientID, senderName, msg)
}

// MockUserStore is a mock implementation of presence.UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserStore) SetUserPresence(ctx context.Context, userID uuid.UUID, online bool, handle string) error {
	args := m.Called(ctx, userID, online, handle)
	return args.Error(0)
}

type fakeSender struct {
	mu     sync.Mutex
	handle string
	events []sentEvent
}

type sentEvent struct {
	event   string
	payload any
}

func newFakeSender(handle string) *fakeSender {
	return &fakeSender{handle: handle}
}

func (f *fakeSender) Handle() string { return f.handle }

func (f *fakeSender) Send(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{event: event, payload: payload})
	return nil
}

func (f *fakeSender) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (f *fakeSender) last(event string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].event == event {
			return f.events[i].payload, true
		}
	}
	return nil, false
}

type fixture struct {
	registry *presence.Registry
	users    *MockUserStore
	messages *MockMessageStore
	unread   *MockUnreadStore
	groups   *MockGroupStore
	notifier *MockNotifier
	coord    *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:    new(MockUserStore),
		messages: new(MockMessageStore),
		unread:   new(MockUnreadStore),
		groups:   new(MockGroupStore),
		notifier: new(MockNotifier),
	}
	f.registry = presence.NewRegistry(f.users, nil)
	f.coord = NewCoordinator(f.registry, f.messages, f.unread, f.groups, f.notifier)
	f.registry.AddListener(f.coord)
	return f
}

func (f *fixture) connect(t *testing.T, userID uuid.UUID, name, handle string) (*presence.Session, *fakeSender) {
	t.Helper()
	f.users.On("GetUser", mock.Anything, userID).Return(&domain.User{UserID: userID, Username: name}, nil)
	f.users.On("SetUserPresence", mock.Anything, userID, mock.Anything, mock.Anything).Return(nil)
	sender := newFakeSender(handle)
	session, err := f.registry.Register(context.Background(), userID, sender)
	require.NoError(t, err)
	return session, sender
}

func TestDeliverPrivateToViewingRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()
	aliceSession, _ := f.connect(t, alice, "alice", "h-alice")
	_, bobSender := f.connect(t, bob, "bob", "h-bob")

	key := domain.DirectKey(alice, bob)
	f.messages.On("AppendMessage", mock.Anything, mock.AnythingOfType("*domain.Message")).Return(nil)
	f.unread.On("ResetUnread", mock.Anything, bob, key).Return(nil)

	// bob has the conversation open
	require.NoError(t, f.coord.MarkRead(ctx, bob, key))

	msg, err := f.coord.DeliverPrivate(ctx, aliceSession, &protocol.PrivateMessagePayload{To: bob, Body: "hi"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, msg.MessageID, "server assigns final identity")

	assert.Equal(t, 1, bobSender.count(protocol.EventMessageNew))
	f.unread.AssertNotCalled(t, "IncrementUnread", mock.Anything, bob, key)
}

func TestDeliverPrivateToOnlineNotViewingRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()
	aliceSession, _ := f.connect(t, alice, "alice", "h-alice")
	_, bobSender := f.connect(t, bob, "bob", "h-bob")

	key := domain.DirectKey(alice, bob)
	f.messages.On("AppendMessage", mock.Anything, mock.AnythingOfType("*domain.Message")).Return(nil)
	f.unread.On("IncrementUnread", mock.Anything, bob, key).Return(1, nil)

	_, err := f.coord.DeliverPrivate(ctx, aliceSession, &protocol.PrivateMessagePayload{To: bob, Body: "hi"})
	require.NoError(t, err)

	assert.Equal(t, 0, bobSender.count(protocol.EventMessageNew), "no live push when not viewing")
	assert.Equal(t, 1, bobSender.count(protocol.EventUnreadCounts), "badge update instead")

	payload, _ := bobSender.last(protocol.EventUnreadCounts)
	assert.Equal(t, 1, payload.(*protocol.UnreadCountsPayload).Counts[key])
}

func TestDeliverPrivateToOfflineRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New() // never connects
	aliceSession, _ := f.connect(t, alice, "alice", "h-alice")

	key := domain.DirectKey(alice, bob)
	f.messages.On("AppendMessage", mock.Anything, mock.AnythingOfType("*domain.Message")).Return(nil)
	f.unread.On("IncrementUnread", mock.Anything, bob, key).Return(1, nil)
	f.notifier.On("NotifyMessage", mock.Anything, bob, "alice", mock.AnythingOfType("*domain.Message")).Return()

	_, err := f.coord.DeliverPrivate(ctx, aliceSession, &protocol.PrivateMessagePayload{To: bob, Body: "hi"})
	require.NoError(t, err)

	f.unread.AssertNumberOfCalls(t, "IncrementUnread", 1)
	f.notifier.AssertExpectations(t)
}

func TestOfflineThenRegisterThenMarkRead(t *testing.T) {
	// A online, B offline. A sends "hi" -> B unread becomes 1,
	// no push. B connects -> unread unaffected until explicit markRead.
	f := newFixture(t)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()
	aliceSession, _ := f.connect(t, alice, "alice", "h-alice")

	key := domain.DirectKey(alice, bob)
	f.messages.On("AppendMessage", mock.Anything, mock.AnythingOfType("*domain.Message")).Return(nil)
	f.unread.On("IncrementUnread", mock.Anything, bob, key).Return(1, nil)
	f.notifier.On("NotifyMessage", mock.Anything, bob, "alice", mock.Anything).Return()

	_, err := f.coord.DeliverPrivate(ctx, aliceSession, &protocol.PrivateMessagePayload{To: bob, Body: "hi"})
	require.NoError(t, err)

	_, bobSender := f.connect(t, bob, "bob", "h-bob")
	f.unread.AssertNotCalled(t, "ResetUnread", mock.Anything, bob, key)

	f.unread.On("ResetUnread", mock.Anything, bob, key).Return(nil)
	require.NoError(t, f.coord.MarkRead(ctx, bob, key))

	payload, ok := bobSender.last(protocol.EventUnreadCounts)
	require.True(t, ok)
	assert.Equal(t, 0, payload.(*protocol.UnreadCountsPayload).Counts[key])
}

func TestDeliverGroupFansOutToMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New() // offline member
	groupID := uuid.New()

	aliceSession, aliceSender := f.connect(t, alice, "alice", "h-alice")
	_, bobSender := f.connect(t, bob, "bob", "h-bob")

	key := domain.GroupKey(groupID)
	f.groups.On("GetGroup", mock.Anything, groupID).Return(&domain.Group{
		GroupID: groupID,
		Members: []uuid.UUID{alice, bob, carol},
	}, nil)
	f.messages.On("AppendMessage", mock.Anything, mock.AnythingOfType("*domain.Message")).Return(nil)
	f.unread.On("ResetUnread", mock.Anything, bob, key).Return(nil)
	f.unread.On("IncrementUnread", mock.Anything, carol, key).Return(1, nil)
	f.notifier.On("NotifyMessage", mock.Anything, carol, "alice", mock.Anything).Return()

	// bob is viewing the group chat
	require.NoError(t, f.coord.MarkRead(ctx, bob, key))

	_, err := f.coord.DeliverGroup(ctx, aliceSession, &protocol.GroupMessagePayload{GroupID: groupID, Body: "hello all"})
	require.NoError(t, err)

	assert.Equal(t, 1, bobSender.count(protocol.EventMessageNewGroup))
	assert.Equal(t, 0, aliceSender.count(protocol.EventMessageNewGroup), "sender not echoed by fan-out")
	f.notifier.AssertExpectations(t)
}

func TestDeliverGroupRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := uuid.New()
	groupID := uuid.New()
	aliceSession, _ := f.connect(t, alice, "alice", "h-alice")

	f.groups.On("GetGroup", mock.Anything, groupID).Return(&domain.Group{
		GroupID: groupID,
		Members: []uuid.UUID{uuid.New()},
	}, nil)

	_, err := f.coord.DeliverGroup(ctx, aliceSession, &protocol.GroupMessagePayload{GroupID: groupID, Body: "hi"})
	assert.Error(t, err)
	f.messages.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
}

func TestTypingRelaysToPeerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()
	aliceSession, aliceSender := f.connect(t, alice, "alice", "h-alice")
	_, bobSender := f.connect(t, bob, "bob", "h-bob")

	key := domain.DirectKey(alice, bob)
	f.coord.Typing(ctx, aliceSession, protocol.EventTypingStart, &protocol.TypingPayload{ConversationKey: key})

	assert.Equal(t, 1, bobSender.count(protocol.EventTypingStart))
	assert.Equal(t, 0, aliceSender.count(protocol.EventTypingStart), "never relayed back to sender")

	f.coord.Typing(ctx, aliceSession, protocol.EventTypingStop, &protocol.TypingPayload{ConversationKey: key})
	assert.Equal(t, 1, bobSender.count(protocol.EventTypingStop))
}

func TestViewingClearedOnDisconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()
	aliceSession, _ := f.connect(t, alice, "alice", "h-alice")
	_, _ = f.connect(t, bob, "bob", "h-bob")

	key := domain.DirectKey(alice, bob)
	f.unread.On("ResetUnread", mock.Anything, bob, key).Return(nil)
	require.NoError(t, f.coord.MarkRead(ctx, bob, key))

	f.registry.Unregister(ctx, "h-bob")

	// bob reconnects but has not reopened the conversation; a new message
	// must count as unread
	_, bobSender := f.connect(t, bob, "bob", "h-bob2")
	f.messages.On("AppendMessage", mock.Anything, mock.AnythingOfType("*domain.Message")).Return(nil)
	f.unread.On("IncrementUnread", mock.Anything, bob, key).Return(1, nil)

	_, err := f.coord.DeliverPrivate(ctx, aliceSession, &protocol.PrivateMessagePayload{To: bob, Body: "hi"})
	require.NoError(t, err)

	assert.Equal(t, 0, bobSender.count(protocol.EventMessageNew))
	f.unread.AssertNumberOfCalls(t, "IncrementUnread", 1)
}

func TestViewingClearedOnReconnectWithoutDisconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()
	aliceSession, _ := f.connect(t, alice, "alice", "h-alice")
	_, _ = f.connect(t, bob, "bob", "h-bob")

	key := domain.DirectKey(alice, bob)
	f.unread.On("ResetUnread", mock.Anything, bob, key).Return(nil)
	require.NoError(t, f.coord.MarkRead(ctx, bob, key))

	// bob's new socket registers before the old one ever disconnects; the
	// displaced session must still drop the viewing state
	_, bobSender := f.connect(t, bob, "bob", "h-bob2")
	f.messages.On("AppendMessage", mock.Anything, mock.AnythingOfType("*domain.Message")).Return(nil)
	f.unread.On("IncrementUnread", mock.Anything, bob, key).Return(1, nil)

	_, err := f.coord.DeliverPrivate(ctx, aliceSession, &protocol.PrivateMessagePayload{To: bob, Body: "hi"})
	require.NoError(t, err)

	assert.Equal(t, 0, bobSender.count(protocol.EventMessageNew))
	f.unread.AssertNumberOfCalls(t, "IncrementUnread", 1)
}
