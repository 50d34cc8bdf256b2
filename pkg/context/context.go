// Package context provides shared timeout helpers so call sites agree on
// how long an external dependency may take.
package context

import (
	"context"
	"time"
)

const (
	// ShortTimeout is for quick operations like Redis lookups
	ShortTimeout = 5 * time.Second

	// MediumTimeout is for push gateway and object storage calls
	MediumTimeout = 10 * time.Second
)

// WithShortTimeout creates a context with ShortTimeout.
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}

// WithMediumTimeout creates a context with MediumTimeout.
func WithMediumTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, MediumTimeout)
}
