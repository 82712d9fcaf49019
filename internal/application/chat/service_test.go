package chat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"github.com/turnhub/turnhub/internal/domain/conversation"
	conversationMocks "github.com/turnhub/turnhub/internal/domain/conversation/mocks"
	presenceMocks "github.com/turnhub/turnhub/internal/domain/presence/mocks"
	realtimeMocks "github.com/turnhub/turnhub/internal/domain/realtime/mocks"
)

type queueStub struct {
	calls []int64
	depth []int
}

func (q *queueStub) Enqueue(_ uuid.UUID, triggerSeq int64, depth int) bool {
	q.calls = append(q.calls, triggerSeq)
	q.depth = append(q.depth, depth)
	return true
}

type chatFixture struct {
	repo        *conversationMocks.MockRepository
	presence    *presenceMocks.MockStore
	broadcaster *realtimeMocks.MockBroadcaster
	queue       *queueStub
	svc         *Service
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &chatFixture{
		repo:        conversationMocks.NewMockRepository(ctrl),
		presence:    presenceMocks.NewMockStore(ctrl),
		broadcaster: realtimeMocks.NewMockBroadcaster(ctrl),
		queue:       &queueStub{},
	}
	f.svc = NewService(f.repo, f.presence, f.broadcaster, f.queue, zerolog.Nop())
	return f
}

func activeConversation(policy conversation.Policy) (*conversation.Conversation, *conversation.Participant, *conversation.Participant) {
	conversationID := uuid.New()
	creator := &conversation.Participant{
		ParticipantID:  uuid.New(),
		ConversationID: conversationID,
		Role:           conversation.RoleCreator,
		Ref:            "alice",
		JoinedAt:       time.Now().UTC(),
	}
	assistant := &conversation.Participant{
		ParticipantID:  uuid.New(),
		ConversationID: conversationID,
		Role:           conversation.RoleAssistant,
		Ref:            "assistant",
		JoinedAt:       time.Now().UTC(),
	}
	conv := &conversation.Conversation{
		ConversationID: conversationID,
		Title:          "test",
		Policy:         policy,
		Status:         conversation.StatusActive,
		CreatorID:      creator.ParticipantID,
	}
	return conv, creator, assistant
}

func TestOnParticipantMessage_AcceptedEnqueuesResponder(t *testing.T) {
	f := newChatFixture(t)
	conv, creator, assistant := activeConversation(conversation.PolicyFlexible)
	parts := []*conversation.Participant{creator, assistant}
	ctx := context.Background()

	f.repo.EXPECT().GetConversationByID(ctx, conv.ConversationID).Return(conv, nil)
	f.repo.EXPECT().TailEvents(ctx, conv.ConversationID, nil, gomock.Any()).Return(nil, nil)
	f.repo.EXPECT().ListParticipants(ctx, conv.ConversationID).Return(parts, nil)

	f.repo.EXPECT().
		AppendEvent(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, e *conversation.Event) error {
			assert.Equal(t, conversation.KindMessage, e.Kind)
			assert.Equal(t, creator.ParticipantID, *e.SenderID)
			assert.Equal(t, "hello", e.Text())
			e.Seq = 1
			return nil
		})

	// Prior state matches the recomputed one, so no turn change event.
	f.repo.EXPECT().GetTurnState(ctx, conv.ConversationID).Return(&conversation.TurnState{
		ConversationID: conv.ConversationID,
		Policy:         conversation.PolicyFlexible,
		NextRole:       conversation.RoleMember,
	}, nil)
	f.repo.EXPECT().UpsertTurnState(ctx, gomock.Any()).Return(nil)
	f.broadcaster.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	result, err := f.svc.OnParticipantMessage(ctx, conv.ConversationID, creator.ParticipantID, "hello")
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.NotNil(t, result.Event)
	assert.Equal(t, int64(1), result.Event.Seq)

	require.Len(t, f.queue.calls, 1)
	assert.Equal(t, int64(1), f.queue.calls[0])
	assert.Equal(t, 0, f.queue.depth[0])
}

func TestOnParticipantMessage_DeniedOutOfTurn(t *testing.T) {
	f := newChatFixture(t)
	conv, creator, assistant := activeConversation(conversation.PolicyStrict)
	member := &conversation.Participant{
		ParticipantID:  uuid.New(),
		ConversationID: conv.ConversationID,
		Role:           conversation.RoleMember,
		Ref:            "bob",
		JoinedAt:       creator.JoinedAt.Add(time.Second),
	}
	parts := []*conversation.Participant{creator, member, assistant}
	ctx := context.Background()

	f.repo.EXPECT().GetConversationByID(ctx, conv.ConversationID).Return(conv, nil)
	f.repo.EXPECT().TailEvents(ctx, conv.ConversationID, nil, gomock.Any()).Return(nil, nil)
	f.repo.EXPECT().ListParticipants(ctx, conv.ConversationID).Return(parts, nil)

	// Empty tail: the creator opens; bob is out of turn. No append, no
	// enqueue.
	result, err := f.svc.OnParticipantMessage(ctx, conv.ConversationID, member.ParticipantID, "me first")
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, "not your turn", result.Reason)
	assert.Empty(t, f.queue.calls)
}

func TestOnParticipantMessage_NotParticipant(t *testing.T) {
	f := newChatFixture(t)
	conv, creator, assistant := activeConversation(conversation.PolicyFlexible)
	ctx := context.Background()

	f.repo.EXPECT().GetConversationByID(ctx, conv.ConversationID).Return(conv, nil)
	f.repo.EXPECT().TailEvents(ctx, conv.ConversationID, nil, gomock.Any()).Return(nil, nil)
	f.repo.EXPECT().ListParticipants(ctx, conv.ConversationID).
		Return([]*conversation.Participant{creator, assistant}, nil)

	result, err := f.svc.OnParticipantMessage(ctx, conv.ConversationID, uuid.New(), "hi")
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, "not a participant", result.Reason)
}

func TestOnParticipantMessage_CompletedConversation(t *testing.T) {
	f := newChatFixture(t)
	conv, creator, _ := activeConversation(conversation.PolicyFlexible)
	conv.Status = conversation.StatusCompleted
	ctx := context.Background()

	f.repo.EXPECT().GetConversationByID(ctx, conv.ConversationID).Return(conv, nil)

	result, err := f.svc.OnParticipantMessage(ctx, conv.ConversationID, creator.ParticipantID, "hi")
	require.NoError(t, err)
	assert.False(t, result.Accepted)
}

func TestAcceptInvite(t *testing.T) {
	f := newChatFixture(t)
	conv, creator, assistant := activeConversation(conversation.PolicyFlexible)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("sesame"), bcrypt.MinCost)
	require.NoError(t, err)
	invite := &conversation.Invite{
		InviteID:       uuid.New(),
		ConversationID: conv.ConversationID,
		CodeHash:       hash,
		Role:           conversation.RoleMember,
	}

	f.repo.EXPECT().GetConversationByID(ctx, conv.ConversationID).Return(conv, nil)
	f.repo.EXPECT().GetParticipantByRef(ctx, conv.ConversationID, "carol").Return(nil, nil)
	f.repo.EXPECT().ListOpenInvites(ctx, conv.ConversationID).Return([]*conversation.Invite{invite}, nil)
	f.repo.EXPECT().MarkInviteUsed(ctx, invite.InviteID, gomock.Any()).Return(nil)

	var joined *conversation.Participant
	f.repo.EXPECT().
		CreateParticipant(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, p *conversation.Participant) error {
			joined = p
			return nil
		})

	f.repo.EXPECT().AppendEvent(ctx, gomock.Any()).Return(nil)
	f.repo.EXPECT().TailEvents(ctx, conv.ConversationID, nil, gomock.Any()).Return(nil, nil)
	f.repo.EXPECT().ListParticipants(ctx, conv.ConversationID).
		DoAndReturn(func(context.Context, uuid.UUID) ([]*conversation.Participant, error) {
			return []*conversation.Participant{creator, assistant, joined}, nil
		})
	f.repo.EXPECT().UpsertTurnState(ctx, gomock.Any()).Return(nil)
	f.broadcaster.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	p, err := f.svc.AcceptInvite(ctx, conv.ConversationID, "sesame", "carol")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "carol", p.Ref)
	assert.Equal(t, conversation.RoleMember, p.Role)
}

func TestAcceptInvite_WrongCode(t *testing.T) {
	f := newChatFixture(t)
	conv, _, _ := activeConversation(conversation.PolicyFlexible)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("sesame"), bcrypt.MinCost)
	require.NoError(t, err)
	invite := &conversation.Invite{InviteID: uuid.New(), CodeHash: hash, Role: conversation.RoleMember}

	f.repo.EXPECT().GetConversationByID(ctx, conv.ConversationID).Return(conv, nil)
	f.repo.EXPECT().GetParticipantByRef(ctx, conv.ConversationID, "mallory").Return(nil, nil)
	f.repo.EXPECT().ListOpenInvites(ctx, conv.ConversationID).Return([]*conversation.Invite{invite}, nil)

	_, err = f.svc.AcceptInvite(ctx, conv.ConversationID, "guess", "mallory")
	assert.ErrorIs(t, err, conversation.ErrInviteInvalid)
}

func TestSignalDone_LastHumanCompletes(t *testing.T) {
	f := newChatFixture(t)
	conv, creator, assistant := activeConversation(conversation.PolicyFlexible)
	ctx := context.Background()
	doneAt := time.Now().UTC()
	member := &conversation.Participant{
		ParticipantID:  uuid.New(),
		ConversationID: conv.ConversationID,
		Role:           conversation.RoleMember,
		Ref:            "bob",
		DoneAt:         &doneAt,
	}

	f.repo.EXPECT().GetConversationByID(ctx, conv.ConversationID).Return(conv, nil)
	f.repo.EXPECT().GetParticipantByID(ctx, creator.ParticipantID).Return(creator, nil)
	f.repo.EXPECT().MarkParticipantDone(ctx, creator.ParticipantID, gomock.Any()).Return(nil)

	// Completion marker, then the closing system message.
	f.repo.EXPECT().AppendEvent(ctx, gomock.Any()).Return(nil).Times(2)
	f.repo.EXPECT().ListParticipants(ctx, conv.ConversationID).
		Return([]*conversation.Participant{creator, member, assistant}, nil)
	f.repo.EXPECT().UpdateConversationStatus(ctx, conv.ConversationID, conversation.StatusCompleted, gomock.Any()).Return(nil)
	f.broadcaster.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	require.NoError(t, f.svc.SignalDone(ctx, conv.ConversationID, creator.ParticipantID))
}

func TestSignalDone_WaitsForRemainingHumans(t *testing.T) {
	f := newChatFixture(t)
	conv, creator, assistant := activeConversation(conversation.PolicyFlexible)
	ctx := context.Background()
	member := &conversation.Participant{
		ParticipantID:  uuid.New(),
		ConversationID: conv.ConversationID,
		Role:           conversation.RoleMember,
		Ref:            "bob",
	}

	f.repo.EXPECT().GetConversationByID(ctx, conv.ConversationID).Return(conv, nil)
	f.repo.EXPECT().GetParticipantByID(ctx, creator.ParticipantID).Return(creator, nil)
	f.repo.EXPECT().MarkParticipantDone(ctx, creator.ParticipantID, gomock.Any()).Return(nil)
	f.repo.EXPECT().AppendEvent(ctx, gomock.Any()).Return(nil)
	f.repo.EXPECT().ListParticipants(ctx, conv.ConversationID).
		Return([]*conversation.Participant{creator, member, assistant}, nil)
	f.broadcaster.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	// bob has not signaled; the conversation stays active.
	require.NoError(t, f.svc.SignalDone(ctx, conv.ConversationID, creator.ParticipantID))
}

func TestGetTurnState_SelfHealsDrift(t *testing.T) {
	f := newChatFixture(t)
	conv, creator, assistant := activeConversation(conversation.PolicyStrict)
	parts := []*conversation.Participant{creator, assistant}
	ctx := context.Background()

	// Stored state points at a participant who is no longer next.
	staleID := uuid.New()
	stale := &conversation.TurnState{
		ConversationID: conv.ConversationID,
		Policy:         conversation.PolicyStrict,
		NextActorID:    &staleID,
		NextRole:       conversation.RoleMember,
	}

	f.repo.EXPECT().GetConversationByID(ctx, conv.ConversationID).Return(conv, nil)
	f.repo.EXPECT().GetTurnState(ctx, conv.ConversationID).Return(stale, nil)
	f.repo.EXPECT().TailEvents(ctx, conv.ConversationID, nil, gomock.Any()).Return(nil, nil)
	f.repo.EXPECT().ListParticipants(ctx, conv.ConversationID).Return(parts, nil)
	f.repo.EXPECT().UpsertTurnState(ctx, gomock.Any()).Return(nil)

	st, err := f.svc.GetTurnState(ctx, conv.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, st.NextActorID)
	assert.Equal(t, creator.ParticipantID, *st.NextActorID)
}

func TestForceRecover_ClearsTypingAndRebroadcasts(t *testing.T) {
	f := newChatFixture(t)
	conv, creator, assistant := activeConversation(conversation.PolicyFlexible)
	parts := []*conversation.Participant{creator, assistant}
	ctx := context.Background()

	f.repo.EXPECT().GetConversationByID(ctx, conv.ConversationID).Return(conv, nil)
	f.presence.EXPECT().ListTyping(ctx, conv.ConversationID).
		Return([]uuid.UUID{assistant.ParticipantID}, nil)
	f.presence.EXPECT().SetTyping(ctx, conv.ConversationID, assistant.ParticipantID, false, time.Duration(0)).Return(nil)
	f.repo.EXPECT().TailEvents(ctx, conv.ConversationID, nil, gomock.Any()).Return(nil, nil)
	f.repo.EXPECT().ListParticipants(ctx, conv.ConversationID).Return(parts, nil)
	f.repo.EXPECT().UpsertTurnState(ctx, gomock.Any()).Return(nil)
	f.broadcaster.EXPECT().Publish(gomock.Any(), "refresh", gomock.Any()).Return(nil)

	require.NoError(t, f.svc.ForceRecover(ctx, conv.ConversationID))
}

func TestCreateConversation_InvalidPolicy(t *testing.T) {
	f := newChatFixture(t)
	_, err := f.svc.CreateConversation(context.Background(), CreateConversationInput{
		Policy:     "FREEFORM",
		CreatorRef: "alice",
	})
	require.Error(t, err)
}
