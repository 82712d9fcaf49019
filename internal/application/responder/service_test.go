package responder

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/turnhub/turnhub/internal/domain/conversation"
	conversationMocks "github.com/turnhub/turnhub/internal/domain/conversation/mocks"
	"github.com/turnhub/turnhub/internal/domain/lock"
	lockMocks "github.com/turnhub/turnhub/internal/domain/lock/mocks"
	presenceMocks "github.com/turnhub/turnhub/internal/domain/presence/mocks"
	"github.com/turnhub/turnhub/internal/domain/provider"
	providerMocks "github.com/turnhub/turnhub/internal/domain/provider/mocks"
	realtimeMocks "github.com/turnhub/turnhub/internal/domain/realtime/mocks"
)

type fixture struct {
	repo        *conversationMocks.MockRepository
	locker      *lockMocks.MockLocker
	presence    *presenceMocks.MockStore
	completer   *providerMocks.MockCompleter
	broadcaster *realtimeMocks.MockBroadcaster
	svc         *Service
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		repo:        conversationMocks.NewMockRepository(ctrl),
		locker:      lockMocks.NewMockLocker(ctrl),
		presence:    presenceMocks.NewMockStore(ctrl),
		completer:   providerMocks.NewMockCompleter(ctrl),
		broadcaster: realtimeMocks.NewMockBroadcaster(ctrl),
	}
	svc, err := NewService(f.repo, f.locker, f.presence, f.completer, f.broadcaster, cfg, zerolog.Nop())
	require.NoError(t, err)
	f.svc = svc
	return f
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.GenerationTimeout = 200 * time.Millisecond
	cfg.LockTTL = 400 * time.Millisecond
	cfg.LockWait = 100 * time.Millisecond
	cfg.LockPoll = 10 * time.Millisecond
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

type scenario struct {
	conv      *conversation.Conversation
	creator   *conversation.Participant
	assistant *conversation.Participant
	tail      []*conversation.Event
}

func flexibleScenario() *scenario {
	conversationID := uuid.New()
	creatorID := uuid.New()
	creator := &conversation.Participant{
		ParticipantID:  creatorID,
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
	payload, _ := json.Marshal(conversation.MessagePayload{Text: "hello there"})
	return &scenario{
		conv: &conversation.Conversation{
			ConversationID: conversationID,
			Policy:         conversation.PolicyFlexible,
			Status:         conversation.StatusActive,
			CreatorID:      creatorID,
		},
		creator:   creator,
		assistant: assistant,
		tail: []*conversation.Event{{
			EventID:        uuid.New(),
			ConversationID: conversationID,
			Seq:            1,
			Kind:           conversation.KindMessage,
			SenderID:       &creatorID,
			Payload:        payload,
			CreatedAt:      time.Now().UTC(),
		}},
	}
}

func (sc *scenario) parts() []*conversation.Participant {
	return []*conversation.Participant{sc.creator, sc.assistant}
}

func TestRespond_GeneratesAndCleansUp(t *testing.T) {
	f := newFixture(t, fastConfig())
	sc := flexibleScenario()
	ctx := context.Background()
	id := sc.conv.ConversationID

	f.repo.EXPECT().GetConversationByID(ctx, id).Return(sc.conv, nil)
	f.locker.EXPECT().TryAcquire(ctx, lock.GenerationKey(id), gomock.Any(), f.svc.cfg.LockTTL).Return(true, nil)

	f.repo.EXPECT().TailEvents(ctx, id, nil, f.svc.cfg.TailLimit).Return(sc.tail, nil)
	f.repo.EXPECT().ListParticipants(ctx, id).Return(sc.parts(), nil)

	f.presence.EXPECT().SetTyping(ctx, id, sc.assistant.ParticipantID, true, f.svc.cfg.TypingTTL).Return(nil)
	f.broadcaster.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	f.completer.EXPECT().
		Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, prompt provider.PromptContext) (string, error) {
			require.Len(t, prompt.Messages, 1)
			assert.Equal(t, "user", prompt.Messages[0].Role)
			assert.Equal(t, "hello there", prompt.Messages[0].Text)
			return "hi, how can I help?", nil
		})

	var appended *conversation.Event
	f.repo.EXPECT().
		AppendEvent(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, e *conversation.Event) error {
			appended = e
			e.Seq = 2
			return nil
		})

	// advanceTurn recomputes from the durable tail.
	f.repo.EXPECT().TailEvents(ctx, id, nil, f.svc.cfg.TailLimit).
		DoAndReturn(func(context.Context, uuid.UUID, []conversation.EventKind, int) ([]*conversation.Event, error) {
			return append(sc.tail, appended), nil
		})
	f.repo.EXPECT().ListParticipants(ctx, id).Return(sc.parts(), nil)
	f.repo.EXPECT().UpsertTurnState(ctx, gomock.Any()).Return(nil)

	// Cleanup always clears typing and releases the lock.
	f.presence.EXPECT().SetTyping(gomock.Any(), id, sc.assistant.ParticipantID, false, time.Duration(0)).Return(nil)
	f.locker.EXPECT().Release(gomock.Any(), lock.GenerationKey(id), gomock.Any()).Return(nil)

	reply, err := f.svc.Respond(ctx, id, 1, 0)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "hi, how can I help?", reply.Text)
	assert.Equal(t, int64(2), reply.Seq)
	assert.Equal(t, sc.assistant.ParticipantID, reply.ResponderID)
	assert.False(t, reply.Converged)
	require.NotNil(t, appended)
	assert.Equal(t, conversation.KindMessage, appended.Kind)
	assert.Equal(t, sc.assistant.ParticipantID, *appended.SenderID)
}

func TestRespond_ProviderFailureStillCleansUp(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 1
	f := newFixture(t, cfg)
	sc := flexibleScenario()
	ctx := context.Background()
	id := sc.conv.ConversationID

	f.repo.EXPECT().GetConversationByID(ctx, id).Return(sc.conv, nil)
	f.locker.EXPECT().TryAcquire(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
	f.repo.EXPECT().TailEvents(ctx, id, nil, gomock.Any()).Return(sc.tail, nil)
	f.repo.EXPECT().ListParticipants(ctx, id).Return(sc.parts(), nil)
	f.presence.EXPECT().SetTyping(ctx, id, sc.assistant.ParticipantID, true, gomock.Any()).Return(nil)
	f.broadcaster.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	// Transient failures retry; both attempts fail.
	f.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("", provider.ErrFailed).Times(2)

	f.presence.EXPECT().SetTyping(gomock.Any(), id, sc.assistant.ParticipantID, false, time.Duration(0)).Return(nil)
	f.locker.EXPECT().Release(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	reply, err := f.svc.Respond(ctx, id, 1, 0)
	assert.Nil(t, reply)
	assert.ErrorIs(t, err, provider.ErrFailed)
}

func TestRespond_TimeoutIsNotRetried(t *testing.T) {
	f := newFixture(t, fastConfig())
	sc := flexibleScenario()
	ctx := context.Background()
	id := sc.conv.ConversationID

	f.repo.EXPECT().GetConversationByID(ctx, id).Return(sc.conv, nil)
	f.locker.EXPECT().TryAcquire(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
	f.repo.EXPECT().TailEvents(ctx, id, nil, gomock.Any()).Return(sc.tail, nil)
	f.repo.EXPECT().ListParticipants(ctx, id).Return(sc.parts(), nil)
	f.presence.EXPECT().SetTyping(ctx, id, sc.assistant.ParticipantID, true, gomock.Any()).Return(nil)
	f.broadcaster.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	f.completer.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("", provider.ErrTimeout).Times(1)

	f.presence.EXPECT().SetTyping(gomock.Any(), id, sc.assistant.ParticipantID, false, time.Duration(0)).Return(nil)
	f.locker.EXPECT().Release(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, err := f.svc.Respond(ctx, id, 1, 0)
	assert.ErrorIs(t, err, provider.ErrTimeout)
}

func TestRespond_ConvergesOnContention(t *testing.T) {
	f := newFixture(t, fastConfig())
	sc := flexibleScenario()
	ctx := context.Background()
	id := sc.conv.ConversationID

	replyPayload, _ := json.Marshal(conversation.MessagePayload{Text: "already answered"})
	assistantID := sc.assistant.ParticipantID
	answered := append(sc.tail, &conversation.Event{
		EventID:        uuid.New(),
		ConversationID: id,
		Seq:            2,
		Kind:           conversation.KindMessage,
		SenderID:       &assistantID,
		Payload:        replyPayload,
	})

	f.repo.EXPECT().GetConversationByID(ctx, id).Return(sc.conv, nil)
	f.locker.EXPECT().TryAcquire(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
	f.repo.EXPECT().TailEvents(ctx, id, nil, gomock.Any()).Return(answered, nil)
	f.repo.EXPECT().ListParticipants(ctx, id).Return(sc.parts(), nil)

	reply, err := f.svc.Respond(ctx, id, 1, 0)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.True(t, reply.Converged)
	assert.Equal(t, "already answered", reply.Text)
	assert.Equal(t, int64(2), reply.Seq)
}

func TestRespond_LockedWhenHolderNeverFinishes(t *testing.T) {
	f := newFixture(t, fastConfig())
	sc := flexibleScenario()
	ctx := context.Background()
	id := sc.conv.ConversationID

	f.repo.EXPECT().GetConversationByID(ctx, id).Return(sc.conv, nil)
	f.locker.EXPECT().TryAcquire(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
	// The holder never persists a reply within LockWait.
	f.repo.EXPECT().TailEvents(ctx, id, nil, gomock.Any()).Return(sc.tail, nil).AnyTimes()
	f.repo.EXPECT().ListParticipants(ctx, id).Return(sc.parts(), nil).AnyTimes()

	reply, err := f.svc.Respond(ctx, id, 1, 0)
	assert.Nil(t, reply)
	assert.ErrorIs(t, err, lock.ErrLocked)
}

func TestRespond_IdempotentAfterCrashedHolder(t *testing.T) {
	f := newFixture(t, fastConfig())
	sc := flexibleScenario()
	ctx := context.Background()
	id := sc.conv.ConversationID

	// The previous holder persisted the reply but crashed before cleanup,
	// so its expired lock lets us in and the recheck finds the reply.
	replyPayload, _ := json.Marshal(conversation.MessagePayload{Text: "recovered reply"})
	assistantID := sc.assistant.ParticipantID
	answered := append(sc.tail, &conversation.Event{
		EventID:        uuid.New(),
		ConversationID: id,
		Seq:            2,
		Kind:           conversation.KindMessage,
		SenderID:       &assistantID,
		Payload:        replyPayload,
	})

	f.repo.EXPECT().GetConversationByID(ctx, id).Return(sc.conv, nil)
	f.locker.EXPECT().TryAcquire(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
	f.repo.EXPECT().TailEvents(ctx, id, nil, gomock.Any()).Return(answered, nil)
	f.repo.EXPECT().ListParticipants(ctx, id).Return(sc.parts(), nil)
	f.locker.EXPECT().Release(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	reply, err := f.svc.Respond(ctx, id, 1, 0)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.True(t, reply.Converged)
	assert.Equal(t, "recovered reply", reply.Text)
}

func TestRespond_CompletedConversation(t *testing.T) {
	f := newFixture(t, fastConfig())
	sc := flexibleScenario()
	sc.conv.Status = conversation.StatusCompleted
	ctx := context.Background()

	f.repo.EXPECT().GetConversationByID(ctx, sc.conv.ConversationID).Return(sc.conv, nil)

	_, err := f.svc.Respond(ctx, sc.conv.ConversationID, 1, 0)
	assert.ErrorIs(t, err, conversation.ErrCompleted)
}

func TestEnqueue_DepthCap(t *testing.T) {
	f := newFixture(t, fastConfig())
	id := uuid.New()

	assert.True(t, f.svc.Enqueue(id, 1, 0))
	assert.True(t, f.svc.Enqueue(id, 2, f.svc.cfg.MaxChainDepth))
	assert.False(t, f.svc.Enqueue(id, 3, f.svc.cfg.MaxChainDepth+1))
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LockTTL = cfg.GenerationTimeout
	_, err := NewService(nil, nil, nil, nil, nil, cfg, zerolog.Nop())
	require.Error(t, err)
}
