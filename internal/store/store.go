// Package store implements the flat JSON file persistence backing the chat
// server. All reads are served from memory; mutations mark a collection dirty
// and hand the disk write to a background flusher so file I/O never blocks
// event handling.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatlink-backend/internal/domain"
	"chatlink-backend/pkg/logger"
	"chatlink-backend/pkg/metrics"
)

// Collection names, doubling as file basenames
const (
	collectionUsers    = "users"
	collectionGroups   = "groups"
	collectionMessages = "messages"
	collectionCalls    = "calls"
	collectionUnread   = "unread"
	collectionTokens   = "push_tokens"
)

// Store is the JSON-file backed data store
type Store struct {
	dir string

	mu       sync.RWMutex
	users    map[uuid.UUID]*domain.User
	groups   map[uuid.UUID]*domain.Group
	messages map[string][]*domain.Message // keyed by conversation key
	calls    []*domain.Call               // call history, append-only
	unread   map[string]map[string]int    // user id -> conversation key -> count
	tokens   map[string]*PushToken        // token value -> token

	flushMu  sync.Mutex
	dirty    map[string]bool
	flushSig chan struct{}
	closing  chan struct{}
	done     chan struct{}
}

// Open loads all collections from dir, creating it when missing, and starts
// the background flusher.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	s := &Store{
		dir:      dir,
		users:    make(map[uuid.UUID]*domain.User),
		groups:   make(map[uuid.UUID]*domain.Group),
		messages: make(map[string][]*domain.Message),
		unread:   make(map[string]map[string]int),
		tokens:   make(map[string]*PushToken),
		dirty:    make(map[string]bool),
		flushSig: make(chan struct{}, 1),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	if err := s.loadAll(); err != nil {
		return nil, err
	}

	go s.flushLoop()

	return s, nil
}

// Close flushes all pending writes and stops the flusher
func (s *Store) Close() error {
	close(s.closing)
	<-s.done

	for _, c := range []string{collectionUsers, collectionGroups, collectionMessages, collectionCalls, collectionUnread, collectionTokens} {
		if err := s.flush(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadAll() error {
	loaders := []struct {
		name string
		dest any
	}{
		{collectionUsers, &s.users},
		{collectionGroups, &s.groups},
		{collectionMessages, &s.messages},
		{collectionCalls, &s.calls},
		{collectionUnread, &s.unread},
		{collectionTokens, &s.tokens},
	}

	for _, l := range loaders {
		if err := s.loadFile(l.name, l.dest); err != nil {
			return fmt.Errorf("failed to load %s: %w", l.name, err)
		}
	}
	return nil
}

func (s *Store) loadFile(collection string, dest any) error {
	path := filepath.Join(s.dir, collection+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

// markDirty records a collection as pending flush and wakes the flusher.
// Never blocks, and a mark is never lost: the per-collection flag stays set
// until the flusher drains it.
func (s *Store) markDirty(collection string) {
	s.flushMu.Lock()
	s.dirty[collection] = true
	metrics.StoreFlushQueueLength.Set(float64(len(s.dirty)))
	s.flushMu.Unlock()

	select {
	case s.flushSig <- struct{}{}:
	default:
	}
}

// takeDirty swaps out the pending set so new marks accumulate while the
// flusher writes.
func (s *Store) takeDirty() map[string]bool {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	pending := s.dirty
	s.dirty = make(map[string]bool)
	metrics.StoreFlushQueueLength.Set(0)
	return pending
}

func (s *Store) flushLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.flushSig:
			for collection := range s.takeDirty() {
				if err := s.flush(collection); err != nil {
					metrics.StoreFlushTotal.WithLabelValues(collection, "error").Inc()
					logger.Error("Failed to flush collection",
						zap.String("collection", collection),
						zap.Error(err))
					continue
				}
				metrics.StoreFlushTotal.WithLabelValues(collection, "ok").Inc()
			}
		case <-s.closing:
			return
		}
	}
}

// flush snapshots a collection under the read lock and writes it atomically
// via a temp file rename.
func (s *Store) flush(collection string) error {
	s.mu.RLock()
	var data []byte
	var err error
	switch collection {
	case collectionUsers:
		data, err = json.MarshalIndent(s.users, "", "  ")
	case collectionGroups:
		data, err = json.MarshalIndent(s.groups, "", "  ")
	case collectionMessages:
		data, err = json.MarshalIndent(s.messages, "", "  ")
	case collectionCalls:
		data, err = json.MarshalIndent(s.calls, "", "  ")
	case collectionUnread:
		data, err = json.MarshalIndent(s.unread, "", "  ")
	case collectionTokens:
		data, err = json.MarshalIndent(s.tokens, "", "  ")
	default:
		s.mu.RUnlock()
		return fmt.Errorf("unknown collection %q", collection)
	}
	s.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", collection, err)
	}

	path := filepath.Join(s.dir, collection+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
