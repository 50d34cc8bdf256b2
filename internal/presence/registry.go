// Package presence tracks which users currently have a live transport
// session. The registry is the single owner of session state; the call and
// delivery coordinators resolve live transport handles through it.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatlink-backend/internal/domain"
	"chatlink-backend/pkg/logger"
	"chatlink-backend/pkg/metrics"
	"chatlink-backend/protocol"
)

// Sender is the transport side of a session: the websocket client pump or a
// test double.
type Sender interface {
	// Handle returns the unique transport handle of the connection
	Handle() string
	// Send delivers an event to the connection; best-effort, an error means
	// the payload was dropped, not that the caller should retry
	Send(event string, payload any) error
}

// Session is the ephemeral binding of a user to a transport connection
type Session struct {
	UserID      uuid.UUID
	Handle      string
	Sender      Sender
	ConnectedAt time.Time

	// Profile projection cached at registration for the online list
	Username  string
	AvatarURL string
}

// OnlineUser returns the derived projection for the online list
func (s *Session) OnlineUser() domain.OnlineUser {
	return domain.OnlineUser{
		ID:        s.UserID,
		Username:  s.Username,
		AvatarURL: s.AvatarURL,
		Handle:    s.Handle,
	}
}

// UserStore is the persisted profile collaborator
type UserStore interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	SetUserPresence(ctx context.Context, userID uuid.UUID, online bool, handle string) error
}

// Mirror reflects presence changes into an external store (Redis). Optional;
// the registry itself stays authoritative.
type Mirror interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
}

// Listener is notified after a session is removed from the registry, so
// dependent state (active calls, typing indicators) can be forced terminal.
type Listener interface {
	SessionLost(session *Session)
}

// Registry is the in-memory presence registry. All mutations are serialized
// behind the mutex so no half-updated session entry is ever observable.
type Registry struct {
	mu       sync.Mutex
	byUser   map[uuid.UUID]*Session
	byHandle map[string]*Session

	users     UserStore
	mirror    Mirror
	listeners []Listener
}

// NewRegistry creates a presence registry. mirror may be nil.
func NewRegistry(users UserStore, mirror Mirror) *Registry {
	return &Registry{
		byUser:   make(map[uuid.UUID]*Session),
		byHandle: make(map[string]*Session),
		users:    users,
		mirror:   mirror,
	}
}

// AddListener registers a session-loss listener. Must be called during setup,
// before sessions exist.
func (r *Registry) AddListener(l Listener) {
	r.listeners = append(r.listeners, l)
}

// Register binds a user to a transport connection, replacing any prior
// session for the same user (idempotent re-registration on reconnect).
// Broadcasts the updated online list to all connected sessions.
func (r *Registry) Register(ctx context.Context, userID uuid.UUID, sender Sender) (*Session, error) {
	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	session := &Session{
		UserID:      userID,
		Handle:      sender.Handle(),
		Sender:      sender,
		ConnectedAt: time.Now(),
		Username:    user.Username,
		AvatarURL:   user.AvatarURL,
	}

	r.mu.Lock()
	prior, reconnect := r.byUser[userID]
	displaced := reconnect && prior.Handle != session.Handle
	if displaced {
		// Stale session from before a reconnect; drop its handle mapping so a
		// late disconnect for it cannot resurrect anything.
		delete(r.byHandle, prior.Handle)
	}
	r.byUser[userID] = session
	r.byHandle[session.Handle] = session
	online := len(r.byUser)
	listeners := r.listeners
	r.mu.Unlock()

	if displaced {
		// The old handle will never come back through Unregister, so dependent
		// state keyed on it (active calls, viewing) is torn down here.
		for _, l := range listeners {
			l.SessionLost(prior)
		}
	}

	if reconnect {
		metrics.PresenceRegisterTotal.WithLabelValues("reconnect").Inc()
	} else {
		metrics.PresenceRegisterTotal.WithLabelValues("new").Inc()
	}
	metrics.PresenceOnlineUsers.Set(float64(online))

	if err := r.users.SetUserPresence(ctx, userID, true, session.Handle); err != nil {
		logger.Warn("Failed to persist online status",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
	if r.mirror != nil {
		if err := r.mirror.SetUserOnline(ctx, userID); err != nil {
			logger.Warn("Failed to mirror presence",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}

	r.broadcastList()

	logger.Info("Session registered",
		zap.String("user_id", userID.String()),
		zap.String("handle", session.Handle))

	return session, nil
}

// Unregister removes the session with the given transport handle. No-op when
// the handle is unknown: a disconnect may race a second registration, and the
// stale handle must not tear down the fresh session.
func (r *Registry) Unregister(ctx context.Context, handle string) {
	r.mu.Lock()
	session, ok := r.byHandle[handle]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byHandle, handle)

	userGone := false
	if current, exists := r.byUser[session.UserID]; exists && current.Handle == handle {
		delete(r.byUser, session.UserID)
		userGone = true
	}
	online := len(r.byUser)
	listeners := r.listeners
	r.mu.Unlock()

	metrics.PresenceUnregisterTotal.Inc()
	metrics.PresenceOnlineUsers.Set(float64(online))

	if userGone {
		if err := r.users.SetUserPresence(ctx, session.UserID, false, ""); err != nil {
			logger.Warn("Failed to persist offline status",
				zap.String("user_id", session.UserID.String()),
				zap.Error(err))
		}
		if r.mirror != nil {
			if err := r.mirror.SetUserOffline(ctx, session.UserID); err != nil {
				logger.Warn("Failed to mirror presence",
					zap.String("user_id", session.UserID.String()),
					zap.Error(err))
			}
		}
	}

	// Listeners run outside the lock; they call back into the registry.
	for _, l := range listeners {
		l.SessionLost(session)
	}

	r.broadcastList()

	logger.Info("Session unregistered",
		zap.String("user_id", session.UserID.String()),
		zap.String("handle", handle))
}

// Lookup resolves a user id to its live session
func (r *Registry) Lookup(userID uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.byUser[userID]
	return session, ok
}

// LookupHandle resolves a transport handle to its live session
func (r *Registry) LookupHandle(handle string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.byHandle[handle]
	return session, ok
}

// Snapshot returns the current online list
func (r *Registry) Snapshot() []domain.OnlineUser {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]domain.OnlineUser, 0, len(r.byUser))
	for _, session := range r.byUser {
		users = append(users, session.OnlineUser())
	}
	return users
}

// Count returns the number of online users
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}

// Broadcast sends an event to every connected session. Send failures are
// dropped: a dead connection is cleaned up by its own disconnect path.
func (r *Registry) Broadcast(event string, payload any) {
	r.mu.Lock()
	senders := make([]Sender, 0, len(r.byUser))
	for _, session := range r.byUser {
		senders = append(senders, session.Sender)
	}
	r.mu.Unlock()

	for _, sender := range senders {
		if err := sender.Send(event, payload); err != nil {
			metrics.WebSocketDroppedTotal.WithLabelValues("closed").Inc()
		}
	}
}

func (r *Registry) broadcastList() {
	r.Broadcast(protocol.EventPresenceList, &protocol.PresenceListPayload{
		Users: r.Snapshot(),
		At:    time.Now(),
	})
}
