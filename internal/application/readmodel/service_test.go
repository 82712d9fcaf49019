package readmodel

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/turnhub/turnhub/internal/domain/conversation"
	conversationMocks "github.com/turnhub/turnhub/internal/domain/conversation/mocks"
	"github.com/turnhub/turnhub/internal/domain/receipt"
	receiptMocks "github.com/turnhub/turnhub/internal/domain/receipt/mocks"
)

func TestMarkRead(t *testing.T) {
	ctrl := gomock.NewController(t)
	receipts := receiptMocks.NewMockRepository(ctrl)
	repo := conversationMocks.NewMockRepository(ctrl)
	svc := NewService(receipts, repo, zerolog.Nop())

	ctx := context.Background()
	conversationID := uuid.New()
	participant := &conversation.Participant{
		ParticipantID:  uuid.New(),
		ConversationID: conversationID,
		Role:           conversation.RoleMember,
	}

	repo.EXPECT().GetParticipantByID(ctx, participant.ParticipantID).Return(participant, nil)
	receipts.EXPECT().
		Upsert(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, r *receipt.Receipt) error {
			assert.Equal(t, int64(7), r.LastReadSeq)
			assert.Equal(t, conversationID, r.ConversationID)
			return nil
		})

	require.NoError(t, svc.MarkRead(ctx, conversationID, participant.ParticipantID, 7))
}

func TestMarkRead_RejectsOutsiders(t *testing.T) {
	ctrl := gomock.NewController(t)
	receipts := receiptMocks.NewMockRepository(ctrl)
	repo := conversationMocks.NewMockRepository(ctrl)
	svc := NewService(receipts, repo, zerolog.Nop())

	ctx := context.Background()
	outsiderID := uuid.New()
	repo.EXPECT().GetParticipantByID(ctx, outsiderID).Return(nil, nil)

	err := svc.MarkRead(ctx, uuid.New(), outsiderID, 3)
	assert.ErrorIs(t, err, conversation.ErrNotParticipant)
}

func TestUnread(t *testing.T) {
	ctrl := gomock.NewController(t)
	receipts := receiptMocks.NewMockRepository(ctrl)
	repo := conversationMocks.NewMockRepository(ctrl)
	svc := NewService(receipts, repo, zerolog.Nop())

	ctx := context.Background()
	conversationID := uuid.New()
	participant := &conversation.Participant{
		ParticipantID:  uuid.New(),
		ConversationID: conversationID,
		Role:           conversation.RoleMember,
	}

	repo.EXPECT().GetParticipantByID(ctx, participant.ParticipantID).Return(participant, nil)
	receipts.EXPECT().CountUnread(ctx, conversationID, participant.ParticipantID).Return(4, nil)

	n, err := svc.Unread(ctx, conversationID, participant.ParticipantID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
