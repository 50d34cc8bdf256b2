package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallType represents the media kind requested for a call
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// CallStatus represents the lifecycle state of a call
type CallStatus string

const (
	CallStatusRinging   CallStatus = "ringing"
	CallStatusConnected CallStatus = "connected"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusCompleted CallStatus = "completed"
)

// Terminal reports whether the status admits no further transitions
func (s CallStatus) Terminal() bool {
	return s == CallStatusRejected || s == CallStatusCompleted
}

// Call represents a 1:1 audio/video call.
// A call has exactly one entry in the active set until it reaches a terminal
// status, at which point it is appended to history and removed.
type Call struct {
	CallID       uuid.UUID  `json:"call_id"`
	CallerID     uuid.UUID  `json:"caller_id"`
	CalleeID     uuid.UUID  `json:"callee_id"`
	CallerHandle string     `json:"caller_handle"`
	CalleeHandle string     `json:"callee_handle"`
	Type         CallType   `json:"call_type"`
	Status       CallStatus `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	// Duration in seconds, stamped on the terminal transition
	Duration int `json:"duration,omitempty"`
}

// References reports whether the call involves the given transport handle
func (c *Call) References(handle string) bool {
	return c.CallerHandle == handle || c.CalleeHandle == handle
}
