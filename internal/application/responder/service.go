// Package responder coordinates one AI reply per turn across concurrent
// invocations: lock, typing marker, provider call, exactly-one persisted
// event, turn advance, broadcast, and guaranteed cleanup.
package responder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/turnhub/turnhub/internal/domain/conversation"
	"github.com/turnhub/turnhub/internal/domain/lock"
	"github.com/turnhub/turnhub/internal/domain/presence"
	"github.com/turnhub/turnhub/internal/domain/provider"
	"github.com/turnhub/turnhub/internal/domain/realtime"
	"github.com/turnhub/turnhub/internal/domain/turn"
)

// Config bounds every blocking step of a generation run.
type Config struct {
	// LockTTL must stay strictly greater than GenerationTimeout so a
	// crashed holder self-heals without ever overlapping a live one.
	LockTTL           time.Duration
	GenerationTimeout time.Duration
	TypingTTL         time.Duration
	LockWait          time.Duration
	LockPoll          time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	MaxChainDepth     int
	TailLimit         int
	QueueSize         int
	SystemPrompt      string
	Personas          map[conversation.Role]string
}

// DefaultConfig returns the production bounds.
func DefaultConfig() Config {
	return Config{
		LockTTL:           150 * time.Second,
		GenerationTimeout: 120 * time.Second,
		TypingTTL:         15 * time.Second,
		LockWait:          2 * time.Second,
		LockPoll:          250 * time.Millisecond,
		MaxRetries:        2,
		RetryBackoff:      time.Second,
		MaxChainDepth:     1,
		TailLimit:         50,
		QueueSize:         64,
		SystemPrompt:      "You are the moderator of a small group conversation. Reply briefly and keep the discussion constructive.",
	}
}

func (c Config) validate() error {
	if c.LockTTL <= c.GenerationTimeout {
		return fmt.Errorf("lock TTL %s must exceed generation timeout %s", c.LockTTL, c.GenerationTimeout)
	}
	return nil
}

// GeneratedReply is the outcome of one Respond run. Converged means another
// invocation produced the reply and this one returned it without
// generating.
type GeneratedReply struct {
	EventID     uuid.UUID `json:"eventId"`
	ResponderID uuid.UUID `json:"responderId"`
	Seq         int64     `json:"seq"`
	Text        string    `json:"text"`
	Converged   bool      `json:"converged"`
}

type task struct {
	conversationID uuid.UUID
	triggerSeq     int64
	depth          int
}

// Service is the AI reply orchestrator.
type Service struct {
	repo        conversation.Repository
	locker      lock.Locker
	presence    presence.Store
	completer   provider.Completer
	broadcaster realtime.Broadcaster
	cfg         Config
	logger      zerolog.Logger
	tasks       chan task
}

// NewService creates the orchestrator.
func NewService(
	repo conversation.Repository,
	locker lock.Locker,
	presenceStore presence.Store,
	completer provider.Completer,
	broadcaster realtime.Broadcaster,
	cfg Config,
	logger zerolog.Logger,
) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Service{
		repo:        repo,
		locker:      locker,
		presence:    presenceStore,
		completer:   completer,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger.With().Str("service", "responder").Logger(),
		tasks:       make(chan task, cfg.QueueSize),
	}, nil
}

// Enqueue hands a generation task to the worker without blocking the
// caller. Chained generations pass an incremented depth; the bound stops
// two bots from replying to each other forever.
func (s *Service) Enqueue(conversationID uuid.UUID, triggerSeq int64, depth int) bool {
	if depth > s.cfg.MaxChainDepth {
		s.logger.Warn().
			Str("conversation_id", conversationID.String()).
			Int("depth", depth).
			Msg("generation chain depth exceeded; dropping task")
		return false
	}
	select {
	case s.tasks <- task{conversationID: conversationID, triggerSeq: triggerSeq, depth: depth}:
		return true
	default:
		s.logger.Warn().
			Str("conversation_id", conversationID.String()).
			Msg("responder queue full; dropping task")
		return false
	}
}

// Start launches the task worker. It exits when ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-s.tasks:
				runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.LockTTL)
				_, err := s.Respond(runCtx, t.conversationID, t.triggerSeq, t.depth)
				cancel()
				if err != nil && !errors.Is(err, lock.ErrLocked) {
					s.logger.Error().Err(err).
						Str("conversation_id", t.conversationID.String()).
						Int64("trigger_seq", t.triggerSeq).
						Msg("generation task failed")
				}
			}
		}
	}()
}

// Respond produces at most one AI reply for the turn that triggerSeq opened.
// Concurrent invocations for the same turn converge on a single persisted
// event: lock contention waits briefly and re-reads the log instead of
// generating twice.
func (s *Service) Respond(ctx context.Context, conversationID uuid.UUID, triggerSeq int64, depth int) (reply *GeneratedReply, err error) {
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

	key := lock.GenerationKey(conversationID)
	token := uuid.NewString()
	acquired, err := s.locker.TryAcquire(ctx, key, token, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return s.converge(ctx, conversationID, triggerSeq)
	}

	var typingFor *uuid.UUID
	defer func() {
		// Cleanup runs on every path, including provider failures, so the
		// conversation never keeps a stale typing marker or a held lock.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if typingFor != nil {
			if cerr := s.presence.SetTyping(cleanupCtx, conversationID, *typingFor, false, 0); cerr != nil {
				s.logger.Warn().Err(cerr).Str("conversation_id", conversationID.String()).Msg("failed to clear typing marker")
			}
			s.broadcastTyping(conversationID, *typingFor, false)
		}
		if cerr := s.locker.Release(cleanupCtx, key, token); cerr != nil {
			s.logger.Warn().Err(cerr).Str("conversation_id", conversationID.String()).Msg("failed to release generation lock")
		}
	}()

	tail, parts, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	decision, err := turn.Decide(conv.Policy, tail, parts)
	if err != nil {
		return nil, err
	}
	if !decision.InvokeResponder || decision.ResponderID == nil {
		// Another invocation already completed this turn.
		if prior := syntheticReplyAfter(tail, parts, triggerSeq); prior != nil {
			return convergedReply(prior), nil
		}
		return nil, nil
	}
	responder := participantByID(parts, *decision.ResponderID)
	if responder == nil {
		return nil, conversation.ErrNotParticipant
	}
	// Idempotent recovery: a previous holder may have persisted the reply
	// and crashed before cleanup.
	for _, e := range tail {
		if e.Kind == conversation.KindMessage && e.Seq > triggerSeq &&
			e.SenderID != nil && *e.SenderID == responder.ParticipantID {
			return convergedReply(e), nil
		}
	}

	id := responder.ParticipantID
	typingFor = &id
	if terr := s.presence.SetTyping(ctx, conversationID, id, true, s.cfg.TypingTTL); terr != nil {
		s.logger.Warn().Err(terr).Str("conversation_id", conversationID.String()).Msg("failed to set typing marker")
	}
	s.broadcastTyping(conversationID, id, true)

	prompt := s.buildPrompt(tail, parts, responder)
	text, err := s.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(conversation.MessagePayload{Text: text})
	event := &conversation.Event{
		EventID:        uuid.New(),
		ConversationID: conversationID,
		Kind:           conversation.KindMessage,
		SenderID:       &id,
		Payload:        payload,
		CreatedAt:      time.Now().UTC(),
	}
	if perr := s.repo.AppendEvent(ctx, event); perr != nil {
		// The paid generation must not vanish without a trace.
		promptJSON, _ := json.Marshal(prompt)
		s.logger.Error().Err(perr).
			Str("conversation_id", conversationID.String()).
			Str("responder_id", id.String()).
			Str("generated_text", text).
			RawJSON("prompt", promptJSON).
			Msg("failed to persist generated reply")
		return nil, fmt.Errorf("%w: %w", conversation.ErrPersistence, perr)
	}

	next, err := s.advanceTurn(ctx, conv, event)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("conversation_id", conversationID.String()).
			Msg("failed to advance turn state; will self-heal on next read")
	}

	s.broadcastEvent(conversationID, event)
	if next != nil {
		s.broadcastTurn(conversationID, next)
	}

	if next != nil && next.InvokeResponder && next.ResponderID != nil && depth < s.cfg.MaxChainDepth {
		s.Enqueue(conversationID, event.Seq, depth+1)
	}

	s.logger.Info().
		Str("conversation_id", conversationID.String()).
		Str("responder_id", id.String()).
		Int64("seq", event.Seq).
		Msg("generated reply persisted")

	return &GeneratedReply{
		EventID:     event.EventID,
		ResponderID: id,
		Seq:         event.Seq,
		Text:        text,
	}, nil
}

// converge waits briefly for the in-flight holder to finish, then either
// returns its reply or surfaces ErrLocked. It never generates.
func (s *Service) converge(ctx context.Context, conversationID uuid.UUID, triggerSeq int64) (*GeneratedReply, error) {
	deadline := time.Now().Add(s.cfg.LockWait)
	for {
		tail, parts, err := s.load(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if prior := syntheticReplyAfter(tail, parts, triggerSeq); prior != nil {
			return convergedReply(prior), nil
		}
		if time.Now().After(deadline) {
			return nil, lock.ErrLocked
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.LockPoll):
		}
	}
}

// generate runs the provider with bounded retries for transient failures.
// A hard timeout is fatal for the attempt and is not retried.
func (s *Service) generate(ctx context.Context, prompt provider.PromptContext) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %w", provider.ErrTimeout, ctx.Err())
			case <-time.After(s.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
		genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
		text, err := s.completer.Complete(genCtx, prompt)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if errors.Is(err, provider.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		s.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("provider call failed; retrying")
	}
	return "", lastErr
}

func (s *Service) advanceTurn(ctx context.Context, conv *conversation.Conversation, appended *conversation.Event) (*turn.Decision, error) {
	// Recompute from the durable tail, never from in-memory assumptions.
	tail, parts, err := s.load(ctx, conv.ConversationID)
	if err != nil {
		return nil, err
	}
	decision, err := turn.Decide(conv.Policy, tail, parts)
	if err != nil {
		return nil, err
	}
	st := turn.State(conv.ConversationID, conv.Policy, decision, appended.CreatedAt)
	if err := s.repo.UpsertTurnState(ctx, st); err != nil {
		return &decision, err
	}
	return &decision, nil
}

func (s *Service) load(ctx context.Context, conversationID uuid.UUID) ([]*conversation.Event, []*conversation.Participant, error) {
	tail, err := s.repo.TailEvents(ctx, conversationID, nil, s.cfg.TailLimit)
	if err != nil {
		return nil, nil, err
	}
	parts, err := s.repo.ListParticipants(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	return tail, parts, nil
}

func (s *Service) buildPrompt(tail []*conversation.Event, parts []*conversation.Participant, responder *conversation.Participant) provider.PromptContext {
	prompt := provider.PromptContext{
		System:  s.cfg.SystemPrompt,
		Persona: s.cfg.Personas[responder.Role],
	}
	for _, e := range tail {
		if e.Kind != conversation.KindMessage || e.SenderID == nil {
			continue
		}
		role := "user"
		sender := ""
		if *e.SenderID == responder.ParticipantID {
			role = "assistant"
		} else if p := participantByID(parts, *e.SenderID); p != nil {
			sender = p.Ref
		}
		prompt.Messages = append(prompt.Messages, provider.Message{
			Role:   role,
			Sender: sender,
			Text:   e.Text(),
		})
	}
	return prompt
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

func (s *Service) broadcastTyping(conversationID, actorID uuid.UUID, typing bool) {
	data, _ := json.Marshal(map[string]any{
		"conversationId": conversationID,
		"actorId":        actorID,
		"typing":         typing,
	})
	if err := s.broadcaster.Publish(realtime.ConversationChannel(conversationID), realtime.EventTyping, data); err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("typing broadcast failed")
	}
}

func (s *Service) broadcastTurn(conversationID uuid.UUID, d *turn.Decision) {
	data, _ := json.Marshal(conversation.TurnChangedPayload{
		NextActorID: d.NextActorID,
		NextRole:    d.NextRole,
	})
	if err := s.broadcaster.Publish(realtime.ConversationChannel(conversationID), realtime.EventTurn, data); err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("turn broadcast failed")
	}
}

// syntheticReplyAfter finds an AI-sent message event newer than seq.
func syntheticReplyAfter(tail []*conversation.Event, parts []*conversation.Participant, seq int64) *conversation.Event {
	for i := len(tail) - 1; i >= 0; i-- {
		e := tail[i]
		if e.Kind != conversation.KindMessage || e.SenderID == nil || e.Seq <= seq {
			continue
		}
		if p := participantByID(parts, *e.SenderID); p != nil && p.Role.Synthetic() {
			return e
		}
	}
	return nil
}

func convergedReply(e *conversation.Event) *GeneratedReply {
	r := &GeneratedReply{
		EventID:   e.EventID,
		Seq:       e.Seq,
		Text:      e.Text(),
		Converged: true,
	}
	if e.SenderID != nil {
		r.ResponderID = *e.SenderID
	}
	return r
}

func participantByID(parts []*conversation.Participant, id uuid.UUID) *conversation.Participant {
	for _, p := range parts {
		if p.ParticipantID == id {
			return p
		}
	}
	return nil
}
