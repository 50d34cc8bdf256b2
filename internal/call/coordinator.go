// Package call implements the call-signaling coordinator: the per-call
// lifecycle state machine, the WebRTC negotiation relay, and the forced
// teardown of calls whose participants disconnect.
package call

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
	"chatlink-backend/protocol"
)

// HistoryStore is the append-only call history collaborator
type HistoryStore interface {
	AppendCall(ctx context.Context, call *domain.Call) error
}

// Coordinator owns the active-call set. State machine per call:
//
//	ringing --answer--> connected --end--> completed
//	ringing --reject--> rejected
//
// No other transitions are permitted; signals referencing unknown or
// already-terminal call ids are no-ops, which makes duplicate client signals
// harmless.
type Coordinator struct {
	mu      sync.Mutex
	active  map[uuid.UUID]*domain.Call
	timers  map[uuid.UUID]*time.Timer
	parties map[uuid.UUID][2]*presence.Session // caller, callee

	registry    *presence.Registry
	history     HistoryStore
	ringTimeout time.Duration
	now         func() time.Time
}

// NewCoordinator creates a call coordinator. ringTimeout <= 0 disables the
// ring timeout, leaving unanswered calls ringing until rejected or torn down
// by a disconnect.
func NewCoordinator(registry *presence.Registry, history HistoryStore, ringTimeout time.Duration) *Coordinator {
	return &Coordinator{
		active:      make(map[uuid.UUID]*domain.Call),
		timers:      make(map[uuid.UUID]*time.Timer),
		parties:     make(map[uuid.UUID][2]*presence.Session),
		registry:    registry,
		history:     history,
		ringTimeout: ringTimeout,
		now:         time.Now,
	}
}

// Initiate creates a ringing call from the caller's session toward an online
// user. When the callee has no live session the returned error carries the
// unavailable taxonomy and no state is changed.
func (c *Coordinator) Initiate(ctx context.Context, caller *presence.Session, toUserID uuid.UUID, callType domain.CallType) (*domain.Call, error) {
	callee, ok := c.registry.Lookup(toUserID)
	if !ok {
		metrics.CallsTotal.WithLabelValues("unavailable").Inc()
		return nil, errors.UserUnavailableError(toUserID.String())
	}

	call := &domain.Call{
		CallID:       uuid.New(),
		CallerID:     caller.UserID,
		CalleeID:     callee.UserID,
		CallerHandle: caller.Handle,
		CalleeHandle: callee.Handle,
		Type:         callType,
		Status:       domain.CallStatusRinging,
		StartedAt:    c.now(),
	}

	c.mu.Lock()
	c.active[call.CallID] = call
	c.parties[call.CallID] = [2]*presence.Session{caller, callee}
	if c.ringTimeout > 0 {
		callID := call.CallID
		c.timers[callID] = time.AfterFunc(c.ringTimeout, func() {
			c.onRingTimeout(callID)
		})
	}
	c.mu.Unlock()

	metrics.CallsActive.Set(float64(c.ActiveCount()))

	c.send(callee, protocol.EventCallIncoming, &protocol.CallIncomingPayload{
		CallID:     call.CallID,
		FromUserID: caller.UserID,
		FromName:   caller.Username,
		FromHandle: caller.Handle,
		CallType:   callType,
	})

	logger.Info("Call initiated",
		zap.String("call_id", call.CallID.String()),
		zap.String("caller", caller.UserID.String()),
		zap.String("callee", callee.UserID.String()),
		zap.String("type", string(callType)))

	return call, nil
}

// Answer transitions ringing -> connected and notifies both parties.
// No-op for unknown or non-ringing calls.
func (c *Coordinator) Answer(ctx context.Context, callID uuid.UUID) {
	c.mu.Lock()
	call, ok := c.active[callID]
	if !ok || call.Status != domain.CallStatusRinging {
		c.mu.Unlock()
		return
	}
	call.Status = domain.CallStatusConnected
	c.stopTimerLocked(callID)
	caller, callee := c.partiesLocked(callID)
	c.mu.Unlock()

	payload := &protocol.CallSignalPayload{CallID: callID}
	c.send(caller, protocol.EventCallConnected, payload)
	c.send(callee, protocol.EventCallConnected, payload)

	logger.Info("Call connected", zap.String("call_id", callID.String()))
}

// Reject transitions ringing -> rejected, records a zero-duration history
// entry, and notifies the caller. No-op for unknown or non-ringing calls.
func (c *Coordinator) Reject(ctx context.Context, callID uuid.UUID) {
	c.terminate(ctx, callID, domain.CallStatusRejected, "hangup", func(call *domain.Call) bool {
		return call.Status == domain.CallStatusRinging
	})
}

// End completes a call from any non-terminal state, stamping the measured
// duration. No-op for unknown or already-terminal calls: no history entry is
// duplicated and no notification is sent.
func (c *Coordinator) End(ctx context.Context, callID uuid.UUID) {
	c.terminate(ctx, callID, domain.CallStatusCompleted, "hangup", func(call *domain.Call) bool {
		return !call.Status.Terminal()
	})
}

// SessionLost force-ends every active call referencing the lost session with
// the same bookkeeping as End, so no call is left permanently active after
// either party disconnects. Implements presence.Listener.
func (c *Coordinator) SessionLost(session *presence.Session) {
	c.mu.Lock()
	var affected []uuid.UUID
	for id, call := range c.active {
		if call.References(session.Handle) {
			affected = append(affected, id)
		}
	}
	c.mu.Unlock()

	for _, id := range affected {
		c.terminate(context.Background(), id, domain.CallStatusCompleted, "disconnect", func(call *domain.Call) bool {
			return !call.Status.Terminal()
		})
	}
}

// RelayNegotiation forwards a WebRTC offer/answer/ICE payload verbatim to the
// target session, stamped with the sender's transport handle so the recipient
// can address replies. Purely pass-through; unknown targets are dropped.
func (c *Coordinator) RelayNegotiation(event string, from *presence.Session, payload *protocol.WebRTCPayload) {
	target, ok := c.registry.LookupHandle(payload.To)
	if !ok {
		logger.Debug("Dropping negotiation payload for unknown target",
			zap.String("event", event),
			zap.String("target", payload.To))
		return
	}

	switch event {
	case protocol.EventWebRTCOffer:
		metrics.SignalsRelayedTotal.WithLabelValues("offer").Inc()
	case protocol.EventWebRTCAnswer:
		metrics.SignalsRelayedTotal.WithLabelValues("answer").Inc()
	case protocol.EventWebRTCICE:
		metrics.SignalsRelayedTotal.WithLabelValues("ice").Inc()
	}

	stamped := *payload
	stamped.From = from.Handle
	c.send(target, event, &stamped)
}

// Get returns an active call by id
func (c *Coordinator) Get(callID uuid.UUID) (*domain.Call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call, ok := c.active[callID]
	if !ok {
		return nil, false
	}
	copied := *call
	return &copied, true
}

// ActiveCount returns the number of non-terminal calls
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// onRingTimeout force-rejects a call that nobody answered in time
func (c *Coordinator) onRingTimeout(callID uuid.UUID) {
	c.terminate(context.Background(), callID, domain.CallStatusRejected, "timeout", func(call *domain.Call) bool {
		return call.Status == domain.CallStatusRinging
	})
}

// terminate applies a terminal transition: the call atomically moves from the
// active set into history, then both parties are notified. The guard decides
// whether the transition is permitted; failing the guard is a silent no-op.
func (c *Coordinator) terminate(ctx context.Context, callID uuid.UUID, status domain.CallStatus, reason string, guard func(*domain.Call) bool) {
	c.mu.Lock()
	call, ok := c.active[callID]
	if !ok || !guard(call) {
		c.mu.Unlock()
		return
	}

	endedAt := c.now()
	call.EndedAt = &endedAt
	call.Status = status
	if status == domain.CallStatusCompleted {
		call.Duration = int(endedAt.Sub(call.StartedAt).Seconds())
		if call.Duration < 0 {
			call.Duration = 0
		}
	}

	delete(c.active, callID)
	c.stopTimerLocked(callID)
	caller, callee := c.partiesLocked(callID)
	delete(c.parties, callID)
	record := *call
	c.mu.Unlock()

	if err := c.history.AppendCall(ctx, &record); err != nil {
		logger.Error("Failed to record call history",
			zap.String("call_id", callID.String()),
			zap.Error(err))
	}

	label := string(status)
	if reason == "timeout" {
		label = "missed"
	}
	metrics.CallsTotal.WithLabelValues(label).Inc()
	metrics.CallsActive.Set(float64(c.ActiveCount()))
	if status == domain.CallStatusCompleted {
		metrics.CallDurationSeconds.Observe(float64(record.Duration))
	}

	payload := &protocol.CallEndedPayload{
		CallID:   callID,
		Duration: record.Duration,
		Reason:   reason,
	}

	// A party that already disconnected simply misses its notification; the
	// send must not fail the teardown.
	switch status {
	case domain.CallStatusRejected:
		c.send(caller, protocol.EventCallRejected, payload)
		if reason == "timeout" {
			c.send(callee, protocol.EventCallEnded, payload)
		}
	default:
		c.send(caller, protocol.EventCallEnded, payload)
		c.send(callee, protocol.EventCallEnded, payload)
	}

	logger.Info("Call terminated",
		zap.String("call_id", callID.String()),
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.Int("duration", record.Duration))
}

// partiesLocked returns the recorded sessions. Caller must hold c.mu.
func (c *Coordinator) partiesLocked(callID uuid.UUID) (caller, callee *presence.Session) {
	pair := c.parties[callID]
	return pair[0], pair[1]
}

// stopTimerLocked cancels the ring timer. Caller must hold c.mu.
func (c *Coordinator) stopTimerLocked(callID uuid.UUID) {
	if timer, ok := c.timers[callID]; ok {
		timer.Stop()
		delete(c.timers, callID)
	}
}

func (c *Coordinator) send(session *presence.Session, event string, payload any) {
	if session == nil {
		return
	}
	if err := session.Sender.Send(event, payload); err != nil {
		metrics.WebSocketDroppedTotal.WithLabelValues("closed").Inc()
	}
}
