// Package lockout throttles repeated failed logins per username, backed by
// Redis so the counter survives restarts and is shared across replicas.
package lockout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxAttempts  = 5
	defaultLockDuration = 15 * time.Minute
)

// Manager counts failed login attempts and reports when an account is
// temporarily locked.
type Manager struct {
	client       *redis.Client
	maxAttempts  int
	lockDuration time.Duration
}

// NewManager creates a lockout manager with the default policy of 5
// attempts per 15 minute window.
func NewManager(client *redis.Client) *Manager {
	return &Manager{
		client:       client,
		maxAttempts:  defaultMaxAttempts,
		lockDuration: defaultLockDuration,
	}
}

// Config overrides the lockout policy.
type Config struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// SetConfig applies non-zero fields of cfg.
func (m *Manager) SetConfig(cfg Config) {
	if cfg.MaxAttempts > 0 {
		m.maxAttempts = cfg.MaxAttempts
	}
	if cfg.LockDuration > 0 {
		m.lockDuration = cfg.LockDuration
	}
}

func (m *Manager) key(username string) string {
	return fmt.Sprintf("lockout:login:%s", strings.ToLower(username))
}

// Locked reports whether the username has exhausted its attempts, and if
// so how long until the lock expires.
func (m *Manager) Locked(ctx context.Context, username string) (bool, time.Duration, error) {
	key := m.key(username)

	attempts, err := m.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("lockout: get attempts: %w", err)
	}
	if attempts < m.maxAttempts {
		return false, 0, nil
	}

	ttl, err := m.client.TTL(ctx, key).Result()
	if err != nil {
		return true, m.lockDuration, nil
	}
	return true, ttl, nil
}

// RecordFailure registers a failed login attempt. The attempt window
// starts at the first failure and resets after the lock duration.
func (m *Manager) RecordFailure(ctx context.Context, username string) error {
	key := m.key(username)

	attempts, err := m.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("lockout: incr attempts: %w", err)
	}
	if attempts == 1 {
		if err := m.client.Expire(ctx, key, m.lockDuration).Err(); err != nil {
			return fmt.Errorf("lockout: set window: %w", err)
		}
	}
	return nil
}

// Reset clears the attempt counter after a successful login.
func (m *Manager) Reset(ctx context.Context, username string) error {
	if err := m.client.Del(ctx, m.key(username)).Err(); err != nil {
		return fmt.Errorf("lockout: reset: %w", err)
	}
	return nil
}
