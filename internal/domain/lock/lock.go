// Package lock defines the short-lived mutual-exclusion layer used to
// guarantee at-most-one AI generation per conversation per turn.
package lock

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_locker.go -package=mocks . Locker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLocked signals that another generation for the conversation is already
// in flight. It is an expected converge-or-defer condition, not a failure.
var ErrLocked = errors.New("another generation is in flight")

// PurposeGeneration is the lock purpose for AI reply generation.
const PurposeGeneration = "ai-generation"

// Entry is an ephemeral lock record. An entry whose TTL has elapsed is
// logically void even before it is physically removed.
type Entry struct {
	Key         string    `json:"key"`
	HolderToken string    `json:"holderToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Locker is an atomic set-if-absent-with-expiry store. If two callers race
// TryAcquire on the same key, exactly one succeeds.
type Locker interface {
	TryAcquire(ctx context.Context, key, holderToken string, ttl time.Duration) (bool, error)
	// Release is a no-op when the lock is already expired or held by a
	// different token, so a slow caller can never release a lock it no
	// longer owns.
	Release(ctx context.Context, key, holderToken string) error
	// DeleteExpired physically removes expired entries. Expiry alone
	// already voids an entry; this is housekeeping.
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// GenerationKey names the per-conversation generation lock.
func GenerationKey(conversationID uuid.UUID) string {
	return conversationID.String() + ":" + PurposeGeneration
}
