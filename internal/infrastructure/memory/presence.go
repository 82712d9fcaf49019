package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PresenceStore is an in-process presence.Store.
type PresenceStore struct {
	mu      sync.Mutex
	markers map[presenceKey]time.Time
}

type presenceKey struct {
	conversationID uuid.UUID
	actorID        uuid.UUID
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{markers: make(map[presenceKey]time.Time)}
}

func (s *PresenceStore) SetTyping(_ context.Context, conversationID, actorID uuid.UUID, on bool, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := presenceKey{conversationID: conversationID, actorID: actorID}
	if !on {
		delete(s.markers, key)
		return nil
	}
	s.markers[key] = time.Now().Add(ttl)
	return nil
}

func (s *PresenceStore) ListTyping(_ context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []uuid.UUID
	for key, expires := range s.markers {
		if key.conversationID == conversationID && expires.After(now) {
			out = append(out, key.actorID)
		}
	}
	return out, nil
}

func (s *PresenceStore) DeleteExpired(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	n := 0
	for key, expires := range s.markers {
		if n >= limit {
			break
		}
		if !expires.After(now) {
			delete(s.markers, key)
			n++
		}
	}
	return n, nil
}
