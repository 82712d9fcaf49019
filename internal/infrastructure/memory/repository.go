package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turnhub/turnhub/internal/domain/conversation"
)

// Repository is an in-process conversation.Repository. Appends serialize
// under one mutex, which gives the same total-order guarantee the postgres
// implementation gets from its advisory lock.
type Repository struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*conversation.Conversation
	participants  map[uuid.UUID]*conversation.Participant
	events        map[uuid.UUID][]*conversation.Event
	turnStates    map[uuid.UUID]*conversation.TurnState
	invites       map[uuid.UUID]*conversation.Invite
	nextID        int64
}

func NewRepository() *Repository {
	return &Repository{
		conversations: make(map[uuid.UUID]*conversation.Conversation),
		participants:  make(map[uuid.UUID]*conversation.Participant),
		events:        make(map[uuid.UUID][]*conversation.Event),
		turnStates:    make(map[uuid.UUID]*conversation.TurnState),
		invites:       make(map[uuid.UUID]*conversation.Invite),
	}
}

func (r *Repository) CreateConversation(_ context.Context, c *conversation.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *c
	cp.ID = r.nextID
	r.conversations[c.ConversationID] = &cp
	return nil
}

func (r *Repository) GetConversationByID(_ context.Context, conversationID uuid.UUID) (*conversation.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *Repository) UpdateConversationStatus(_ context.Context, conversationID uuid.UUID, status conversation.Status, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conversations[conversationID]; ok {
		c.Status = status
		c.UpdatedAt = updatedAt
	}
	return nil
}

func (r *Repository) CreateParticipant(_ context.Context, p *conversation.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *p
	cp.ID = r.nextID
	r.participants[p.ParticipantID] = &cp
	return nil
}

func (r *Repository) GetParticipantByID(_ context.Context, participantID uuid.UUID) (*conversation.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[participantID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *Repository) GetParticipantByRef(_ context.Context, conversationID uuid.UUID, ref string) (*conversation.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p.ConversationID == conversationID && p.Ref == ref {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *Repository) ListParticipants(_ context.Context, conversationID uuid.UUID) ([]*conversation.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*conversation.Participant
	for _, p := range r.participants {
		if p.ConversationID == conversationID {
			cp := *p
			out = append(out, &cp)
		}
	}
	// Stable join order, matching the postgres ORDER BY.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && less(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func less(a, b *conversation.Participant) bool {
	if a.JoinedAt.Equal(b.JoinedAt) {
		return a.ID < b.ID
	}
	return a.JoinedAt.Before(b.JoinedAt)
}

func (r *Repository) MarkParticipantDone(_ context.Context, participantID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[participantID]; ok && p.DoneAt == nil {
		t := at
		p.DoneAt = &t
	}
	return nil
}

func (r *Repository) AppendEvent(_ context.Context, e *conversation.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	e.Seq = int64(len(r.events[e.ConversationID])) + 1
	cp := *e
	r.events[e.ConversationID] = append(r.events[e.ConversationID], &cp)
	return nil
}

func (r *Repository) TailEvents(_ context.Context, conversationID uuid.UUID, kinds []conversation.EventKind, limit int) ([]*conversation.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	all := r.events[conversationID]
	var filtered []*conversation.Event
	for _, e := range all {
		if len(kinds) > 0 && !kindMatch(kinds, e.Kind) {
			continue
		}
		cp := *e
		filtered = append(filtered, &cp)
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

func kindMatch(kinds []conversation.EventKind, k conversation.EventKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func (r *Repository) UpsertTurnState(_ context.Context, st *conversation.TurnState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *st
	r.turnStates[st.ConversationID] = &cp
	return nil
}

func (r *Repository) GetTurnState(_ context.Context, conversationID uuid.UUID) (*conversation.TurnState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.turnStates[conversationID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (r *Repository) CreateInvite(_ context.Context, inv *conversation.Invite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *inv
	cp.ID = r.nextID
	r.invites[inv.InviteID] = &cp
	return nil
}

func (r *Repository) ListOpenInvites(_ context.Context, conversationID uuid.UUID) ([]*conversation.Invite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*conversation.Invite
	for _, inv := range r.invites {
		if inv.ConversationID == conversationID && inv.UsedAt == nil {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *Repository) MarkInviteUsed(_ context.Context, inviteID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invites[inviteID]
	if !ok || inv.UsedAt != nil {
		return conversation.ErrInviteInvalid
	}
	t := at
	inv.UsedAt = &t
	return nil
}
