// Package presence tracks ephemeral typing markers. A marker that outlives
// its TTL reads as "stopped typing", so a crashed writer self-heals.
package presence

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_store.go -package=mocks . Store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Marker is one actor's live typing signal.
type Marker struct {
	ConversationID uuid.UUID `json:"conversationId"`
	ActorID        uuid.UUID `json:"actorId"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Store persists typing markers with a mandatory TTL.
type Store interface {
	SetTyping(ctx context.Context, conversationID, actorID uuid.UUID, on bool, ttl time.Duration) error
	ListTyping(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error)
}
