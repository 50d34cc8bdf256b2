// Package client is the protocol client: it reconciles server-pushed events
// into local conversation state, tolerating at-least-once delivery and
// out-of-order typing signals. Usable headless, from tests and bots as well
// as UI frontends.
package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatlink-backend/internal/domain"
	"chatlink-backend/pkg/cache"
	"chatlink-backend/pkg/constants"
	"chatlink-backend/protocol"
)

// Callbacks receive reconciled state changes. Nil callbacks are skipped.
// They are invoked from the event-handling goroutine and from typing
// failsafe timers; implementations must be safe for that.
type Callbacks struct {
	OnMessage         func(msg *domain.Message, clientID string)
	OnPresence        func(users []domain.OnlineUser)
	OnUnread          func(counts map[string]int)
	OnTyping          func(conversationKey string, typing []uuid.UUID)
	OnCallIncoming    func(p *protocol.CallIncomingPayload)
	OnCallAccepted    func(p *protocol.CallAcceptedPayload)
	OnCallConnected   func(callID uuid.UUID)
	OnCallRejected    func(callID uuid.UUID)
	OnCallEnded       func(p *protocol.CallEndedPayload)
	OnCallUnavailable func(p *protocol.CallUnavailablePayload)
	OnWebRTC          func(event string, p *protocol.WebRTCPayload)
	OnError           func(p *protocol.ErrorPayload)
}

// Options tune the reflector's local policies
type Options struct {
	// DedupWindow is how long seen message ids are remembered
	DedupWindow time.Duration
	// DedupCapacity bounds the seen-id set
	DedupCapacity int
	// TypingTTL is the local failsafe clearing a typing indicator when the
	// stop signal is lost
	TypingTTL time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.DedupWindow <= 0 {
		out.DedupWindow = constants.DefaultDedupWindow
	}
	if out.DedupCapacity <= 0 {
		out.DedupCapacity = constants.DefaultDedupCapacity
	}
	if out.TypingTTL <= 0 {
		out.TypingTTL = constants.DefaultTypingTTL
	}
	return out
}

// Reflector holds the client-side mirror of conversation state
type Reflector struct {
	opts      Options
	callbacks Callbacks
	seen      *cache.MemoryCache

	mu       sync.Mutex
	online   []domain.OnlineUser
	unread   map[string]int
	selected string
	typing   map[string]map[uuid.UUID]*time.Timer

	handlers map[string]func(data json.RawMessage)
}

// NewReflector creates a reflector with the given callbacks
func NewReflector(opts Options, callbacks Callbacks) *Reflector {
	o := opts.withDefaults()
	r := &Reflector{
		opts:      o,
		callbacks: callbacks,
		seen:      cache.NewMemoryCache(o.DedupWindow, o.DedupCapacity),
		unread:    make(map[string]int),
		typing:    make(map[string]map[uuid.UUID]*time.Timer),
	}

	r.handlers = map[string]func(json.RawMessage){
		protocol.EventPresenceList:    r.onPresenceList,
		protocol.EventMessageNew:      r.onMessage,
		protocol.EventMessageNewGroup: r.onMessage,
		protocol.EventUnreadCounts:    r.onUnreadCounts,
		protocol.EventTypingStart:     r.onTypingStart,
		protocol.EventTypingStop:      r.onTypingStop,
		protocol.EventCallIncoming:    r.onCallIncoming,
		protocol.EventCallAccepted:    r.onCallAccepted,
		protocol.EventCallConnected:   r.onCallConnected,
		protocol.EventCallRejected:    r.onCallRejected,
		protocol.EventCallEnded:       r.onCallEnded,
		protocol.EventCallUnavailable: r.onCallUnavailable,
		protocol.EventWebRTCOffer:     func(d json.RawMessage) { r.onWebRTC(protocol.EventWebRTCOffer, d) },
		protocol.EventWebRTCAnswer:    func(d json.RawMessage) { r.onWebRTC(protocol.EventWebRTCAnswer, d) },
		protocol.EventWebRTCICE:       func(d json.RawMessage) { r.onWebRTC(protocol.EventWebRTCICE, d) },
		protocol.EventError:           r.onError,
	}
	return r
}

// HandleEvent reconciles one server event. Unknown events are ignored so
// older clients tolerate protocol additions.
func (r *Reflector) HandleEvent(event string, data json.RawMessage) {
	if fn, ok := r.handlers[event]; ok {
		fn(data)
	}
}

// SelectConversation marks a conversation as the one the user is viewing and
// optimistically zeroes its unread count. The server push racing this keeps
// being merged around the local zero.
func (r *Reflector) SelectConversation(conversationKey string) {
	r.mu.Lock()
	r.selected = conversationKey
	r.unread[conversationKey] = 0
	counts := r.copyUnreadLocked()
	r.mu.Unlock()

	if r.callbacks.OnUnread != nil {
		r.callbacks.OnUnread(counts)
	}
}

// Deselect clears the viewed conversation (user navigated away)
func (r *Reflector) Deselect() {
	r.mu.Lock()
	r.selected = ""
	r.mu.Unlock()
}

// Online returns the last received presence snapshot
func (r *Reflector) Online() []domain.OnlineUser {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.OnlineUser, len(r.online))
	copy(out, r.online)
	return out
}

// Unread returns a copy of the merged unread counters
func (r *Reflector) Unread() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyUnreadLocked()
}

// TypingUsers returns who is currently typing in a conversation
func (r *Reflector) TypingUsers(conversationKey string) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typingLocked(conversationKey)
}

func (r *Reflector) onPresenceList(data json.RawMessage) {
	var p protocol.PresenceListPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	r.mu.Lock()
	r.online = p.Users
	r.mu.Unlock()

	if r.callbacks.OnPresence != nil {
		r.callbacks.OnPresence(p.Users)
	}
}

func (r *Reflector) onMessage(data json.RawMessage) {
	var p protocol.MessageNewPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Message == nil {
		return
	}

	// At-least-once delivery: a replayed id is dropped, not rendered twice.
	if !r.seen.SetIfAbsent(p.Message.MessageID.String(), struct{}{}, r.opts.DedupWindow) {
		return
	}

	// A message from someone implies they stopped typing
	r.clearTyping(p.Message.ConversationKey(), p.Message.SenderID)

	if r.callbacks.OnMessage != nil {
		r.callbacks.OnMessage(p.Message, p.ClientID)
	}
}

func (r *Reflector) onUnreadCounts(data json.RawMessage) {
	var p protocol.UnreadCountsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	r.mu.Lock()
	for key, count := range p.Counts {
		// Merge, don't replace: the locally selected conversation was
		// optimistically zeroed and a stale positive push must not undo that.
		if key == r.selected && count > 0 {
			continue
		}
		r.unread[key] = count
	}
	counts := r.copyUnreadLocked()
	r.mu.Unlock()

	if r.callbacks.OnUnread != nil {
		r.callbacks.OnUnread(counts)
	}
}

func (r *Reflector) onTypingStart(data json.RawMessage) {
	var p protocol.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	r.mu.Lock()
	byUser, ok := r.typing[p.ConversationKey]
	if !ok {
		byUser = make(map[uuid.UUID]*time.Timer)
		r.typing[p.ConversationKey] = byUser
	}
	if timer, ok := byUser[p.UserID]; ok {
		// Repeated start refreshes the failsafe
		timer.Stop()
	}
	key, userID := p.ConversationKey, p.UserID
	byUser[p.UserID] = time.AfterFunc(r.opts.TypingTTL, func() {
		r.clearTyping(key, userID)
	})
	typing := r.typingLocked(p.ConversationKey)
	r.mu.Unlock()

	if r.callbacks.OnTyping != nil {
		r.callbacks.OnTyping(p.ConversationKey, typing)
	}
}

func (r *Reflector) onTypingStop(data json.RawMessage) {
	var p protocol.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	r.clearTyping(p.ConversationKey, p.UserID)
}

// clearTyping removes one typing entry and fires the callback if it was set
func (r *Reflector) clearTyping(conversationKey string, userID uuid.UUID) {
	r.mu.Lock()
	byUser, ok := r.typing[conversationKey]
	if !ok {
		r.mu.Unlock()
		return
	}
	timer, present := byUser[userID]
	if !present {
		r.mu.Unlock()
		return
	}
	timer.Stop()
	delete(byUser, userID)
	if len(byUser) == 0 {
		delete(r.typing, conversationKey)
	}
	typing := r.typingLocked(conversationKey)
	r.mu.Unlock()

	if r.callbacks.OnTyping != nil {
		r.callbacks.OnTyping(conversationKey, typing)
	}
}

func (r *Reflector) onCallIncoming(data json.RawMessage) {
	var p protocol.CallIncomingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if r.callbacks.OnCallIncoming != nil {
		r.callbacks.OnCallIncoming(&p)
	}
}

func (r *Reflector) onCallAccepted(data json.RawMessage) {
	var p protocol.CallAcceptedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if r.callbacks.OnCallAccepted != nil {
		r.callbacks.OnCallAccepted(&p)
	}
}

func (r *Reflector) onCallConnected(data json.RawMessage) {
	var p protocol.CallSignalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if r.callbacks.OnCallConnected != nil {
		r.callbacks.OnCallConnected(p.CallID)
	}
}

func (r *Reflector) onCallRejected(data json.RawMessage) {
	var p protocol.CallSignalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if r.callbacks.OnCallRejected != nil {
		r.callbacks.OnCallRejected(p.CallID)
	}
}

func (r *Reflector) onCallEnded(data json.RawMessage) {
	var p protocol.CallEndedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if r.callbacks.OnCallEnded != nil {
		r.callbacks.OnCallEnded(&p)
	}
}

func (r *Reflector) onCallUnavailable(data json.RawMessage) {
	var p protocol.CallUnavailablePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if r.callbacks.OnCallUnavailable != nil {
		r.callbacks.OnCallUnavailable(&p)
	}
}

func (r *Reflector) onWebRTC(event string, data json.RawMessage) {
	var p protocol.WebRTCPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if r.callbacks.OnWebRTC != nil {
		r.callbacks.OnWebRTC(event, &p)
	}
}

func (r *Reflector) onError(data json.RawMessage) {
	var p protocol.ErrorPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if r.callbacks.OnError != nil {
		r.callbacks.OnError(&p)
	}
}

func (r *Reflector) copyUnreadLocked() map[string]int {
	out := make(map[string]int, len(r.unread))
	for k, v := range r.unread {
		out[k] = v
	}
	return out
}

func (r *Reflector) typingLocked(conversationKey string) []uuid.UUID {
	byUser := r.typing[conversationKey]
	out := make([]uuid.UUID, 0, len(byUser))
	for id := range byUser {
		out = append(out, id)
	}
	return out
}
