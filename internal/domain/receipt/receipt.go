// Package receipt tracks durable per-participant read positions. This is
// shared, persisted state on purpose: an in-process map would neither
// survive restarts nor scale past one instance.
package receipt

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Receipt records the highest event sequence a participant has read.
type Receipt struct {
	ConversationID uuid.UUID `json:"conversationId"`
	ParticipantID  uuid.UUID `json:"participantId"`
	LastReadSeq    int64     `json:"lastReadSeq"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Repository persists read receipts. Upsert never moves a receipt backward.
type Repository interface {
	Upsert(ctx context.Context, r *Receipt) error
	Get(ctx context.Context, conversationID, participantID uuid.UUID) (*Receipt, error)
	CountUnread(ctx context.Context, conversationID, participantID uuid.UUID) (int, error)
}
