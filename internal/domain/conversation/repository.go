package conversation

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for conversations, participants, the
// append-only event log and the derived turn state.
type Repository interface {
	CreateConversation(ctx context.Context, c *Conversation) error
	GetConversationByID(ctx context.Context, conversationID uuid.UUID) (*Conversation, error)
	UpdateConversationStatus(ctx context.Context, conversationID uuid.UUID, status Status, updatedAt time.Time) error

	CreateParticipant(ctx context.Context, p *Participant) error
	GetParticipantByID(ctx context.Context, participantID uuid.UUID) (*Participant, error)
	GetParticipantByRef(ctx context.Context, conversationID uuid.UUID, ref string) (*Participant, error)
	ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]*Participant, error)
	MarkParticipantDone(ctx context.Context, participantID uuid.UUID, at time.Time) error

	// AppendEvent atomically assigns the next per-conversation sequence
	// number and persists the event. Concurrent appends serialize; a
	// failure surfaces as an error, never a partial write.
	AppendEvent(ctx context.Context, e *Event) error
	// TailEvents returns the newest events in ascending sequence order,
	// optionally filtered by kind.
	TailEvents(ctx context.Context, conversationID uuid.UUID, kinds []EventKind, limit int) ([]*Event, error)

	UpsertTurnState(ctx context.Context, st *TurnState) error
	GetTurnState(ctx context.Context, conversationID uuid.UUID) (*TurnState, error)

	CreateInvite(ctx context.Context, inv *Invite) error
	ListOpenInvites(ctx context.Context, conversationID uuid.UUID) ([]*Invite, error)
	MarkInviteUsed(ctx context.Context, inviteID uuid.UUID, at time.Time) error
}
