package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatlink-backend/internal/domain"
	"chatlink-backend/internal/presence"
	"chatlink-backend/pkg/errors"
	"chatlink-backend/protocol"
)

// MockHistoryStore is a mock implementation of HistoryStore
type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) AppendCall(ctx context.Context, call *domain.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
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

// fakeSender records events with payloads
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
	history  *MockHistoryStore
	coord    *Coordinator

	alice, bob             uuid.UUID
	aliceSender, bobSender *fakeSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := new(MockUserStore)
	registry := presence.NewRegistry(users, nil)
	history := new(MockHistoryStore)
	coord := NewCoordinator(registry, history, 0)
	registry.AddListener(coord)

	f := &fixture{
		registry:    registry,
		history:     history,
		coord:       coord,
		alice:       uuid.New(),
		bob:         uuid.New(),
		aliceSender: newFakeSender("h-alice"),
		bobSender:   newFakeSender("h-bob"),
	}

	for id, name := range map[uuid.UUID]string{f.alice: "alice", f.bob: "bob"} {
		users.On("GetUser", mock.Anything, id).Return(&domain.User{UserID: id, Username: name}, nil)
		users.On("SetUserPresence", mock.Anything, id, mock.Anything, mock.Anything).Return(nil)
	}

	ctx := context.Background()
	_, err := registry.Register(ctx, f.alice, f.aliceSender)
	require.NoError(t, err)
	_, err = registry.Register(ctx, f.bob, f.bobSender)
	require.NoError(t, err)

	return f
}

func (f *fixture) aliceSession(t *testing.T) *presence.Session {
	t.Helper()
	s, ok := f.registry.Lookup(f.alice)
	require.True(t, ok)
	return s
}

func TestInitiateToOfflineUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.Initiate(ctx, f.aliceSession(t), uuid.New(), domain.CallTypeAudio)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUserUnavailable, errors.GetAppError(err).Code)
	assert.Equal(t, 0, f.coord.ActiveCount(), "no call object created")
}

func TestInitiateRingsCallee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	call, err := f.coord.Initiate(ctx, f.aliceSession(t), f.bob, domain.CallTypeVideo)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusRinging, call.Status)
	assert.Equal(t, "h-bob", call.CalleeHandle)
	assert.Equal(t, 1, f.coord.ActiveCount())

	require.Equal(t, 1, f.bobSender.count(protocol.EventCallIncoming))
	payload, _ := f.bobSender.last(protocol.EventCallIncoming)
	incoming := payload.(*protocol.CallIncomingPayload)
	assert.Equal(t, call.CallID, incoming.CallID)
	assert.Equal(t, f.alice, incoming.FromUserID)
	assert.Equal(t, domain.CallTypeVideo, incoming.CallType)
}

func TestAnswerConnectsBothParties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	call, err := f.coord.Initiate(ctx, f.aliceSession(t), f.bob, domain.CallTypeAudio)
	require.NoError(t, err)

	f.coord.Answer(ctx, call.CallID)

	got, ok := f.coord.Get(call.CallID)
	require.True(t, ok)
	assert.Equal(t, domain.CallStatusConnected, got.Status)
	assert.Equal(t, 1, f.aliceSender.count(protocol.EventCallConnected))
	assert.Equal(t, 1, f.bobSender.count(protocol.EventCallConnected))
}

func TestAnswerUnknownCallIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.coord.Answer(context.Background(), uuid.New())
	assert.Equal(t, 0, f.aliceSender.count(protocol.EventCallConnected))
}

func TestRejectRecordsZeroDurationHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.history.On("AppendCall", mock.Anything, mock.AnythingOfType("*domain.Call")).Return(nil)

	call, err := f.coord.Initiate(ctx, f.aliceSession(t), f.bob, domain.CallTypeAudio)
	require.NoError(t, err)

	f.coord.Reject(ctx, call.CallID)

	assert.Equal(t, 0, f.coord.ActiveCount())
	assert.Equal(t, 1, f.aliceSender.count(protocol.EventCallRejected))

	f.history.AssertNumberOfCalls(t, "AppendCall", 1)
	recorded := f.history.Calls[0].Arguments.Get(1).(*domain.Call)
	assert.Equal(t, domain.CallStatusRejected, recorded.Status)
	assert.Equal(t, 0, recorded.Duration)
	assert.NotNil(t, recorded.EndedAt)

	// duplicate reject: no second history entry, no second notification
	f.coord.Reject(ctx, call.CallID)
	f.history.AssertNumberOfCalls(t, "AppendCall", 1)
	assert.Equal(t, 1, f.aliceSender.count(protocol.EventCallRejected))
}

func TestEndStampsDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.history.On("AppendCall", mock.Anything, mock.AnythingOfType("*domain.Call")).Return(nil)

	start := time.Now()
	f.coord.now = func() time.Time { return start }

	call, err := f.coord.Initiate(ctx, f.aliceSession(t), f.bob, domain.CallTypeAudio)
	require.NoError(t, err)
	f.coord.Answer(ctx, call.CallID)

	f.coord.now = func() time.Time { return start.Add(42 * time.Second) }
	f.coord.End(ctx, call.CallID)

	recorded := f.history.Calls[0].Arguments.Get(1).(*domain.Call)
	assert.Equal(t, domain.CallStatusCompleted, recorded.Status)
	assert.Equal(t, 42, recorded.Duration)

	payload, ok := f.bobSender.last(protocol.EventCallEnded)
	require.True(t, ok)
	assert.Equal(t, 42, payload.(*protocol.CallEndedPayload).Duration)

	// end again: unknown id, silent no-op
	f.coord.End(ctx, call.CallID)
	f.history.AssertNumberOfCalls(t, "AppendCall", 1)
}

func TestDisconnectForcesCallCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.history.On("AppendCall", mock.Anything, mock.AnythingOfType("*domain.Call")).Return(nil)

	call, err := f.coord.Initiate(ctx, f.aliceSession(t), f.bob, domain.CallTypeAudio)
	require.NoError(t, err)
	f.coord.Answer(ctx, call.CallID)

	// caller drops; the registry notifies the coordinator
	f.registry.Unregister(ctx, "h-alice")

	assert.Equal(t, 0, f.coord.ActiveCount(), "no call left active after disconnect")
	f.history.AssertNumberOfCalls(t, "AppendCall", 1)
	recorded := f.history.Calls[0].Arguments.Get(1).(*domain.Call)
	assert.Equal(t, domain.CallStatusCompleted, recorded.Status)
	assert.GreaterOrEqual(t, recorded.Duration, 0)

	// the surviving party is told; the gone party's miss must not matter
	payload, ok := f.bobSender.last(protocol.EventCallEnded)
	require.True(t, ok)
	assert.Equal(t, "disconnect", payload.(*protocol.CallEndedPayload).Reason)
}

func TestDisconnectDuringRinging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.history.On("AppendCall", mock.Anything, mock.AnythingOfType("*domain.Call")).Return(nil)

	_, err := f.coord.Initiate(ctx, f.aliceSession(t), f.bob, domain.CallTypeAudio)
	require.NoError(t, err)

	f.registry.Unregister(ctx, "h-bob")

	assert.Equal(t, 0, f.coord.ActiveCount())
	f.history.AssertNumberOfCalls(t, "AppendCall", 1)
}

func TestReconnectDuringCallForcesCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.history.On("AppendCall", mock.Anything, mock.AnythingOfType("*domain.Call")).Return(nil)

	call, err := f.coord.Initiate(ctx, f.aliceSession(t), f.bob, domain.CallTypeAudio)
	require.NoError(t, err)
	f.coord.Answer(ctx, call.CallID)

	// bob reconnects on a fresh socket; the displaced session must tear the
	// call down because its transport is gone
	_, err = f.registry.Register(ctx, f.bob, newFakeSender("h-bob-2"))
	require.NoError(t, err)

	assert.Equal(t, 0, f.coord.ActiveCount(), "no call left active after a reconnect")
	f.history.AssertNumberOfCalls(t, "AppendCall", 1)

	// the late disconnect of the old socket and the eventual disconnect of
	// the new one must not write a second history record
	f.registry.Unregister(ctx, "h-bob")
	f.registry.Unregister(ctx, "h-bob-2")
	assert.Equal(t, 0, f.coord.ActiveCount())
	f.history.AssertNumberOfCalls(t, "AppendCall", 1)
}

func TestRingTimeoutForceRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.history.On("AppendCall", mock.Anything, mock.AnythingOfType("*domain.Call")).Return(nil)

	call, err := f.coord.Initiate(ctx, f.aliceSession(t), f.bob, domain.CallTypeAudio)
	require.NoError(t, err)

	f.coord.onRingTimeout(call.CallID)

	assert.Equal(t, 0, f.coord.ActiveCount())
	recorded := f.history.Calls[0].Arguments.Get(1).(*domain.Call)
	assert.Equal(t, domain.CallStatusRejected, recorded.Status)

	payload, ok := f.aliceSender.last(protocol.EventCallRejected)
	require.True(t, ok)
	assert.Equal(t, "timeout", payload.(*protocol.CallEndedPayload).Reason)
	assert.Equal(t, 1, f.bobSender.count(protocol.EventCallEnded))

	// an answer arriving after the timeout is a no-op
	f.coord.Answer(ctx, call.CallID)
	assert.Equal(t, 0, f.aliceSender.count(protocol.EventCallConnected))
}

func TestRelayNegotiationStampsSender(t *testing.T) {
	f := newFixture(t)

	payload := &protocol.WebRTCPayload{To: "h-bob", Payload: []byte(`{"sdp":"offer"}`)}
	f.coord.RelayNegotiation(protocol.EventWebRTCOffer, f.aliceSession(t), payload)

	got, ok := f.bobSender.last(protocol.EventWebRTCOffer)
	require.True(t, ok)
	relayed := got.(*protocol.WebRTCPayload)
	assert.Equal(t, "h-alice", relayed.From)
	assert.JSONEq(t, `{"sdp":"offer"}`, string(relayed.Payload))

	// unknown target: dropped silently
	f.coord.RelayNegotiation(protocol.EventWebRTCOffer, f.aliceSession(t), &protocol.WebRTCPayload{To: "nowhere"})
	assert.Equal(t, 1, f.bobSender.count(protocol.EventWebRTCOffer))
}
