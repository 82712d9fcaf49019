// Package readmodel serves per-participant read positions and unread
// counts derived from the event log.
package readmodel

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/turnhub/turnhub/internal/domain/conversation"
	"github.com/turnhub/turnhub/internal/domain/receipt"
)

// Service tracks how far each participant has read.
type Service struct {
	receipts receipt.Repository
	repo     conversation.Repository
	logger   zerolog.Logger
}

// NewService creates a readmodel service.
func NewService(receipts receipt.Repository, repo conversation.Repository, logger zerolog.Logger) *Service {
	return &Service{
		receipts: receipts,
		repo:     repo,
		logger:   logger.With().Str("service", "readmodel").Logger(),
	}
}

// MarkRead advances a participant's read position. Positions never move
// backward; marking an older seq is a no-op.
func (s *Service) MarkRead(ctx context.Context, conversationID, participantID uuid.UUID, seq int64) error {
	p, err := s.repo.GetParticipantByID(ctx, participantID)
	if err != nil {
		return err
	}
	if p == nil || p.ConversationID != conversationID {
		return conversation.ErrNotParticipant
	}
	return s.receipts.Upsert(ctx, &receipt.Receipt{
		ConversationID: conversationID,
		ParticipantID:  participantID,
		LastReadSeq:    seq,
		UpdatedAt:      time.Now().UTC(),
	})
}

// Unread counts the messages past a participant's read position.
func (s *Service) Unread(ctx context.Context, conversationID, participantID uuid.UUID) (int, error) {
	p, err := s.repo.GetParticipantByID(ctx, participantID)
	if err != nil {
		return 0, err
	}
	if p == nil || p.ConversationID != conversationID {
		return 0, conversation.ErrNotParticipant
	}
	return s.receipts.CountUnread(ctx, conversationID, participantID)
}

// Receipt returns the stored read position, or nil when the participant has
// never marked anything read.
func (s *Service) Receipt(ctx context.Context, conversationID, participantID uuid.UUID) (*receipt.Receipt, error) {
	return s.receipts.Get(ctx, conversationID, participantID)
}
