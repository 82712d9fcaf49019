// Package chat owns conversation lifecycle and message intake: policy
// checks, event-log appends, turn-state upkeep, and handing generation
// work to the responder.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/turnhub/turnhub/internal/domain/conversation"
	"github.com/turnhub/turnhub/internal/domain/presence"
	"github.com/turnhub/turnhub/internal/domain/realtime"
	"github.com/turnhub/turnhub/internal/domain/turn"
)

// ResponderQueue hands generation tasks to the reply orchestrator without
// blocking the caller's response.
type ResponderQueue interface {
	Enqueue(conversationID uuid.UUID, triggerSeq int64, depth int) bool
}

// Service manages mediated conversations.
type Service struct {
	repo        conversation.Repository
	presence    presence.Store
	broadcaster realtime.Broadcaster
	queue       ResponderQueue
	logger      zerolog.Logger
}

// NewService creates a chat service.
func NewService(
	repo conversation.Repository,
	presenceStore presence.Store,
	broadcaster realtime.Broadcaster,
	queue ResponderQueue,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:        repo,
		presence:    presenceStore,
		broadcaster: broadcaster,
		queue:       queue,
		logger:      logger.With().Str("service", "chat").Logger(),
	}
}

// CreateConversationInput creates a new mediated conversation. Invite codes
// are minted by the external issuance system and arrive pre-generated; we
// only store their hashes.
type CreateConversationInput struct {
	Title       string
	Policy      string
	CreatorRef  string
	MemberRefs  []string
	InviteCodes []string
}

// CreateConversation creates the conversation, its participants (creator,
// members, the assistant, and a counterpart bot for role rotation), the
// initial turn state and the opening system event.
func (s *Service) CreateConversation(ctx context.Context, in CreateConversationInput) (*conversation.Conversation, error) {
	policy, err := conversation.ParsePolicy(in.Policy)
	if err != nil {
		return nil, err
	}
	creatorRef := strings.TrimSpace(in.CreatorRef)
	if creatorRef == "" {
		return nil, fmt.Errorf("creator_ref is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "conversation"
	}

	now := time.Now().UTC()
	creatorID := uuid.New()
	conv := &conversation.Conversation{
		ConversationID: uuid.New(),
		Title:          title,
		Policy:         policy,
		Status:         conversation.StatusActive,
		CreatorID:      creatorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	participants := []*conversation.Participant{
		{ParticipantID: creatorID, ConversationID: conv.ConversationID, Role: conversation.RoleCreator, Ref: creatorRef, JoinedAt: now},
	}
	for i, ref := range in.MemberRefs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		participants = append(participants, &conversation.Participant{
			ParticipantID:  uuid.New(),
			ConversationID: conv.ConversationID,
			Role:           conversation.RoleMember,
			Ref:            ref,
			JoinedAt:       now.Add(time.Duration(i+1) * time.Microsecond),
		})
	}
	participants = append(participants, &conversation.Participant{
		ParticipantID:  uuid.New(),
		ConversationID: conv.ConversationID,
		Role:           conversation.RoleAssistant,
		Ref:            "assistant",
		JoinedAt:       now,
	})
	if policy == conversation.PolicyRoleRotation {
		participants = append(participants, &conversation.Participant{
			ParticipantID:  uuid.New(),
			ConversationID: conv.ConversationID,
			Role:           conversation.RoleCounterpart,
			Ref:            "counterpart",
			JoinedAt:       now,
		})
	}
	for _, p := range participants {
		if err := s.repo.CreateParticipant(ctx, p); err != nil {
			return nil, err
		}
	}

	for _, code := range in.InviteCodes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		inv := &conversation.Invite{
			InviteID:       uuid.New(),
			ConversationID: conv.ConversationID,
			CodeHash:       hash,
			Role:           conversation.RoleMember,
			CreatedAt:      now,
		}
		if err := s.repo.CreateInvite(ctx, inv); err != nil {
			return nil, err
		}
	}

	s.appendSystemMessage(ctx, conv.ConversationID, fmt.Sprintf("conversation %q created", title))

	decision, err := turn.Decide(policy, nil, participants)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertTurnState(ctx, turn.State(conv.ConversationID, policy, decision, now)); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("conversation_id", conv.ConversationID.String()).
		Str("policy", string(policy)).
		Int("participants", len(participants)).
		Msg("conversation created")

	return conv, nil
}

// MessageResult reports the outcome of a message intake attempt. A policy
// denial is an expected condition, not an error.
type MessageResult struct {
	Accepted  bool                    `json:"accepted"`
	Reason    string                  `json:"reason,omitempty"`
	Event     *conversation.Event     `json:"event,omitempty"`
	TurnState *conversation.TurnState `json:"turnState,omitempty"`
}

// OnParticipantMessage validates the sender against the active policy,
// appends the message, advances the turn state and, when the policy says
// the responder has a turn, enqueues a generation task.
func (s *Service) OnParticipantMessage(ctx context.Context, conversationID, actorID uuid.UUID, text string) (*MessageResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	conv, err := s.repo.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, conversation.ErrNotFound
	}
	if conv.Status != conversation.StatusActive {
		return &MessageResult{Accepted: false, Reason: "conversation is completed"}, nil
	}

	tail, parts, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if err := turn.CheckSender(conv.Policy, tail, parts, actorID); err != nil {
		switch {
		case errors.Is(err, turn.ErrNotYourTurn):
			return &MessageResult{Accepted: false, Reason: "not your turn"}, nil
		case errors.Is(err, conversation.ErrNotParticipant):
			return &MessageResult{Accepted: false, Reason: "not a participant"}, nil
		default:
			return nil, err
		}
	}

	payload, _ := json.Marshal(conversation.MessagePayload{Text: text})
	event := &conversation.Event{
		EventID:        uuid.New(),
		ConversationID: conversationID,
		Kind:           conversation.KindMessage,
		SenderID:       &actorID,
		Payload:        payload,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("%w: %w", conversation.ErrPersistence, err)
	}

	prior, _ := s.repo.GetTurnState(ctx, conversationID)
	decision, err := turn.Decide(conv.Policy, append(tail, event), parts)
	if err != nil {
		return nil, err
	}
	st := turn.State(conversationID, conv.Policy, decision, event.CreatedAt)
	if err := s.repo.UpsertTurnState(ctx, st); err != nil {
		s.logger.Warn().Err(err).
			Str("conversation_id", conversationID.String()).
			Msg("failed to persist turn state; will self-heal on next read")
	}
	if turnChanged(prior, st) {
		s.appendTurnChanged(ctx, conversationID, decision)
	}

	s.broadcastEvent(conversationID, event)
	s.broadcastTurn(conversationID, st)

	if decision.InvokeResponder && decision.ResponderID != nil {
		s.queue.Enqueue(conversationID, event.Seq, 0)
	}

	return &MessageResult{Accepted: true, Event: event, TurnState: st}, nil
}

// AcceptInvite admits a new member presenting a valid, unused invite code.
func (s *Service) AcceptInvite(ctx context.Context, conversationID uuid.UUID, code, ref string) (*conversation.Participant, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("ref is required")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, conversation.ErrInviteInvalid
	}
	conv, err := s.repo.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, conversation.ErrNotFound
	}
	if conv.Status != conversation.StatusActive {
		return nil, conversation.ErrCompleted
	}
	if existing, err := s.repo.GetParticipantByRef(ctx, conversationID, ref); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	invites, err := s.repo.ListOpenInvites(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	var matched *conversation.Invite
	for _, inv := range invites {
		if bcrypt.CompareHashAndPassword(inv.CodeHash, []byte(code)) == nil {
			matched = inv
			break
		}
	}
	if matched == nil {
		return nil, conversation.ErrInviteInvalid
	}

	now := time.Now().UTC()
	// Single use: a concurrent acceptance of the same code loses here.
	if err := s.repo.MarkInviteUsed(ctx, matched.InviteID, now); err != nil {
		return nil, err
	}

	p := &conversation.Participant{
		ParticipantID:  uuid.New(),
		ConversationID: conversationID,
		Role:           matched.Role,
		Ref:            ref,
		JoinedAt:       now,
	}
	if err := s.repo.CreateParticipant(ctx, p); err != nil {
		return nil, err
	}

	s.appendSystemMessage(ctx, conversationID, fmt.Sprintf("%s joined the conversation", ref))

	// The queue must pick up the new participant; stale queues rebuild
	// from the live list.
	if st, err := s.recomputeTurnState(ctx, conv); err == nil {
		s.broadcastTurn(conversationID, st)
	}

	return p, nil
}

// SignalDone records one participant's completion. The conversation only
// completes when every human participant has independently signaled.
func (s *Service) SignalDone(ctx context.Context, conversationID, actorID uuid.UUID) error {
	conv, err := s.repo.GetConversationByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return conversation.ErrNotFound
	}
	p, err := s.repo.GetParticipantByID(ctx, actorID)
	if err != nil {
		return err
	}
	if p == nil || p.ConversationID != conversationID {
		return conversation.ErrNotParticipant
	}
	if p.Role.Synthetic() {
		return fmt.Errorf("synthetic participants cannot signal completion")
	}

	now := time.Now().UTC()
	if err := s.repo.MarkParticipantDone(ctx, actorID, now); err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]any{"participantId": actorID})
	marker := &conversation.Event{
		EventID:        uuid.New(),
		ConversationID: conversationID,
		Kind:           conversation.KindCompletionMarker,
		SenderID:       &actorID,
		Payload:        payload,
		CreatedAt:      now,
	}
	if err := s.repo.AppendEvent(ctx, marker); err != nil {
		return fmt.Errorf("%w: %w", conversation.ErrPersistence, err)
	}
	s.broadcastEvent(conversationID, marker)

	parts, err := s.repo.ListParticipants(ctx, conversationID)
	if err != nil {
		return err
	}
	for _, part := range parts {
		if !part.Role.Synthetic() && part.DoneAt == nil && part.ParticipantID != actorID {
			return nil
		}
	}

	if err := s.repo.UpdateConversationStatus(ctx, conversationID, conversation.StatusCompleted, now); err != nil {
		return err
	}
	s.appendSystemMessage(ctx, conversationID, "conversation completed")
	s.logger.Info().Str("conversation_id", conversationID.String()).Msg("conversation completed")
	return nil
}

// GetTurnState returns the stored turn state, silently recomputing it from
// the event log when it has drifted. Drift is self-healed, never surfaced.
func (s *Service) GetTurnState(ctx context.Context, conversationID uuid.UUID) (*conversation.TurnState, error) {
	conv, err := s.repo.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, conversation.ErrNotFound
	}

	stored, err := s.repo.GetTurnState(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	computed, err := s.computeTurnState(ctx, conv)
	if err != nil {
		return nil, err
	}
	if stored == nil || turnChanged(stored, computed) {
		s.logger.Debug().
			Str("conversation_id", conversationID.String()).
			Msg("turn state drifted from event log; recomputed")
		if err := s.repo.UpsertTurnState(ctx, computed); err != nil {
			s.logger.Warn().Err(err).
				Str("conversation_id", conversationID.String()).
				Msg("failed to persist recomputed turn state")
		}
		return computed, nil
	}
	return stored, nil
}

// RebuildTurnState replays the event log to reconstruct the turn state.
// This is the recovery path when the turn state store is lost.
func (s *Service) RebuildTurnState(ctx context.Context, conversationID uuid.UUID) (*conversation.TurnState, error) {
	conv, err := s.repo.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, conversation.ErrNotFound
	}
	return s.recomputeTurnState(ctx, conv)
}

// ForceRecover is the operator remedy for a desynced UI: clear typing
// markers and rebroadcast a fresh turn state. It deliberately never touches
// the generation lock and is safe while a generation is in flight.
func (s *Service) ForceRecover(ctx context.Context, conversationID uuid.UUID) error {
	conv, err := s.repo.GetConversationByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return conversation.ErrNotFound
	}

	typing, err := s.presence.ListTyping(ctx, conversationID)
	if err != nil {
		return err
	}
	for _, actorID := range typing {
		if err := s.presence.SetTyping(ctx, conversationID, actorID, false, 0); err != nil {
			s.logger.Warn().Err(err).
				Str("conversation_id", conversationID.String()).
				Str("actor_id", actorID.String()).
				Msg("failed to clear typing marker during recovery")
		}
	}

	st, err := s.recomputeTurnState(ctx, conv)
	if err != nil {
		return err
	}

	data, _ := json.Marshal(map[string]any{
		"turnState":      st,
		"typingCleared":  typing,
		"conversationId": conversationID,
	})
	if err := s.broadcaster.Publish(realtime.ConversationChannel(conversationID), realtime.EventRefresh, data); err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("recovery broadcast failed")
	}
	s.logger.Info().Str("conversation_id", conversationID.String()).Msg("forced recovery completed")
	return nil
}

// GetConversation returns one conversation.
func (s *Service) GetConversation(ctx context.Context, conversationID uuid.UUID) (*conversation.Conversation, error) {
	return s.repo.GetConversationByID(ctx, conversationID)
}

// ListParticipants returns all participants of a conversation.
func (s *Service) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]*conversation.Participant, error) {
	return s.repo.ListParticipants(ctx, conversationID)
}

// ListEvents returns the conversation tail, oldest first.
func (s *Service) ListEvents(ctx context.Context, conversationID uuid.UUID, kinds []conversation.EventKind, limit int) ([]*conversation.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	return s.repo.TailEvents(ctx, conversationID, kinds, limit)
}

// ListTyping returns the actors currently typing.
func (s *Service) ListTyping(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	return s.presence.ListTyping(ctx, conversationID)
}

func (s *Service) load(ctx context.Context, conversationID uuid.UUID) ([]*conversation.Event, []*conversation.Participant, error) {
	tail, err := s.repo.TailEvents(ctx, conversationID, nil, 100)
	if err != nil {
		return nil, nil, err
	}
	parts, err := s.repo.ListParticipants(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	return tail, parts, nil
}

func (s *Service) computeTurnState(ctx context.Context, conv *conversation.Conversation) (*conversation.TurnState, error) {
	tail, parts, err := s.load(ctx, conv.ConversationID)
	if err != nil {
		return nil, err
	}
	decision, err := turn.Decide(conv.Policy, tail, parts)
	if err != nil {
		return nil, err
	}
	return turn.State(conv.ConversationID, conv.Policy, decision, time.Now().UTC()), nil
}

func (s *Service) recomputeTurnState(ctx context.Context, conv *conversation.Conversation) (*conversation.TurnState, error) {
	st, err := s.computeTurnState(ctx, conv)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertTurnState(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) appendSystemMessage(ctx context.Context, conversationID uuid.UUID, text string) {
	payload, _ := json.Marshal(conversation.MessagePayload{Text: text})
	event := &conversation.Event{
		EventID:        uuid.New(),
		ConversationID: conversationID,
		Kind:           conversation.KindSystemMessage,
		Payload:        payload,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		s.logger.Warn().Err(err).
			Str("conversation_id", conversationID.String()).
			Msg("failed to append system message")
		return
	}
	s.broadcastEvent(conversationID, event)
}

func (s *Service) appendTurnChanged(ctx context.Context, conversationID uuid.UUID, d turn.Decision) {
	payload, _ := json.Marshal(conversation.TurnChangedPayload{
		NextActorID: d.NextActorID,
		NextRole:    d.NextRole,
	})
	event := &conversation.Event{
		EventID:        uuid.New(),
		ConversationID: conversationID,
		Kind:           conversation.KindTurnChanged,
		Payload:        payload,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		s.logger.Warn().Err(err).
			Str("conversation_id", conversationID.String()).
			Msg("failed to append turn change event")
	}
}

func (s *Service) broadcastEvent(conversationID uuid.UUID, e *conversation.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := s.broadcaster.Publish(realtime.ConversationChannel(conversationID), realtime.EventMessage, data); err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("broadcast failed")
	}
}

func (s *Service) broadcastTurn(conversationID uuid.UUID, st *conversation.TurnState) {
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := s.broadcaster.Publish(realtime.ConversationChannel(conversationID), realtime.EventTurn, data); err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("turn broadcast failed")
	}
}

// turnChanged compares the fields that matter for "whose turn is it".
func turnChanged(prior, next *conversation.TurnState) bool {
	if prior == nil || next == nil {
		return prior != next
	}
	if prior.Policy != next.Policy || prior.NextRole != next.NextRole || prior.QueuePos != next.QueuePos {
		return true
	}
	if (prior.NextActorID == nil) != (next.NextActorID == nil) {
		return true
	}
	if prior.NextActorID != nil && *prior.NextActorID != *next.NextActorID {
		return true
	}
	if len(prior.Queue) != len(next.Queue) {
		return true
	}
	for i := range prior.Queue {
		if prior.Queue[i] != next.Queue[i] {
			return true
		}
	}
	return false
}
