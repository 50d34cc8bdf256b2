// Package push delivers notifications to devices with no live socket session,
// through Firebase Cloud Messaging for Android and APNs for iOS.
package push

import "context"

// Platform names match the platform field of registered device tokens
const (
	PlatformFCM  = "fcm"
	PlatformAPNs = "apns"
)

// Notification is a provider-independent push payload
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
	// HighPriority requests immediate delivery, used for incoming calls
	HighPriority bool `json:"high_priority,omitempty"`
}

// SendResult summarizes one provider send
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
}

// Provider sends a notification to a batch of device tokens
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}
