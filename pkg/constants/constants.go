// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteTimeout bounds a single frame write to a client
	WebSocketWriteTimeout = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// Real-time policy defaults. These are policy knobs, not fixed law; all of them
// can be overridden through configuration.
const (
	// DefaultRingTimeout is how long an unanswered call stays ringing before
	// it is force-rejected as missed
	DefaultRingTimeout = 45 * time.Second

	// DefaultTypingTTL is the client-side failsafe for clearing a typing
	// indicator when the stop signal was lost
	DefaultTypingTTL = 3 * time.Second

	// DefaultTypingIdle is the input-inactivity window after which a client
	// emits typing:stop on its own
	DefaultTypingIdle = 1 * time.Second

	// DefaultDedupWindow is how long a delivered message id is remembered for
	// duplicate suppression on the receiving side
	DefaultDedupWindow = 5 * time.Second

	// DefaultDedupCapacity bounds the recently-seen message id set
	DefaultDedupCapacity = 512

	// DefaultMaxVoiceDuration is the recording cap for voice messages
	DefaultMaxVoiceDuration = 60 * time.Second
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute

	// RefreshTokenExpiry is the default refresh token lifetime
	RefreshTokenExpiry = 30 * 24 * time.Hour
)

// Storage and file upload constants
const (
	// MaxUploadSize caps a single media upload
	MaxUploadSize = 25 << 20 // 25 MB

	// PresenceMirrorTTL is the lifetime of a Redis presence key before it
	// must be refreshed
	PresenceMirrorTTL = 5 * time.Minute
)
