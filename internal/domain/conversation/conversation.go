package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status describes conversation lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
)

// Policy selects the turn-taking rule set for a conversation.
type Policy string

const (
	PolicyFlexible     Policy = "FLEXIBLE"
	PolicyStrict       Policy = "STRICT"
	PolicyModerated    Policy = "MODERATED"
	PolicyRoleRotation Policy = "ROLE_ROTATION"
)

// Role describes how a participant is bound to a conversation.
type Role string

const (
	RoleCreator     Role = "CREATOR"
	RoleMember      Role = "MEMBER"
	RoleAssistant   Role = "ASSISTANT"
	RoleCounterpart Role = "COUNTERPART_BOT"
)

// Synthetic reports whether the role is AI-driven rather than human.
func (r Role) Synthetic() bool {
	return r == RoleAssistant || r == RoleCounterpart
}

// EventKind discriminates entries in the conversation event log.
type EventKind string

const (
	KindMessage          EventKind = "MESSAGE"
	KindSystemMessage    EventKind = "SYSTEM_MESSAGE"
	KindCompletionMarker EventKind = "COMPLETION_MARKER"
	KindTurnChanged      EventKind = "TURN_CHANGED"
)

var (
	ErrNotFound       = errors.New("conversation not found")
	ErrCompleted      = errors.New("conversation is completed")
	ErrNotParticipant = errors.New("sender is not a participant")
	ErrPersistence    = errors.New("persistence failure")
	ErrStaleTurnState = errors.New("turn state is stale")
	ErrInviteInvalid  = errors.New("invite code invalid or already used")
)

// Conversation is one mediated multi-party chat session.
type Conversation struct {
	ID             int64     `json:"id"`
	ConversationID uuid.UUID `json:"conversationId"`
	Title          string    `json:"title"`
	Policy         Policy    `json:"policy"`
	Status         Status    `json:"status"`
	CreatorID      uuid.UUID `json:"creatorId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Participant is a human or synthetic actor bound to one conversation.
// Participants are never removed, only excluded by turn policy.
type Participant struct {
	ID             int64      `json:"id"`
	ParticipantID  uuid.UUID  `json:"participantId"`
	ConversationID uuid.UUID  `json:"conversationId"`
	Role           Role       `json:"role"`
	Ref            string     `json:"ref"`
	DoneAt         *time.Time `json:"doneAt,omitempty"`
	JoinedAt       time.Time  `json:"joinedAt"`
}

// Event is an immutable, strictly ordered fact about a conversation.
// Seq is assigned by the store and is a per-conversation total order;
// all derived state must be re-derivable from events alone.
type Event struct {
	ID             int64           `json:"id"`
	EventID        uuid.UUID       `json:"eventId"`
	ConversationID uuid.UUID       `json:"conversationId"`
	Seq            int64           `json:"seq"`
	Kind           EventKind       `json:"kind"`
	SenderID       *uuid.UUID      `json:"senderId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// MessagePayload is the payload of MESSAGE and SYSTEM_MESSAGE events.
type MessagePayload struct {
	Text string `json:"text"`
}

// TurnChangedPayload is the payload of TURN_CHANGED events.
type TurnChangedPayload struct {
	NextActorID *uuid.UUID `json:"nextActorId,omitempty"`
	NextRole    Role       `json:"nextRole,omitempty"`
}

// Text extracts the message text from a MESSAGE event payload.
func (e *Event) Text() string {
	var p MessagePayload
	if len(e.Payload) == 0 {
		return ""
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return ""
	}
	return p.Text
}

// TurnState is the derived, mutable per-conversation record of who may act
// next. It is only ever written after a successful event append and can be
// rebuilt from the event log.
type TurnState struct {
	ConversationID  uuid.UUID   `json:"conversationId"`
	Policy          Policy      `json:"policy"`
	NextActorID     *uuid.UUID  `json:"nextActorId,omitempty"`
	NextRole        Role        `json:"nextRole,omitempty"`
	Queue           []uuid.UUID `json:"queue,omitempty"`
	QueuePos        int         `json:"queuePos"`
	GenerationToken *string     `json:"generationToken,omitempty"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Invite admits one new member when its code is presented. The code is
// stored as a bcrypt hash and is single-use.
type Invite struct {
	ID             int64      `json:"id"`
	InviteID       uuid.UUID  `json:"inviteId"`
	ConversationID uuid.UUID  `json:"conversationId"`
	CodeHash       []byte     `json:"-"`
	Role           Role       `json:"role"`
	UsedAt         *time.Time `json:"usedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ParsePolicy normalizes a policy tag.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(normalizeTag(s)) {
	case PolicyFlexible:
		return PolicyFlexible, nil
	case PolicyStrict:
		return PolicyStrict, nil
	case PolicyModerated:
		return PolicyModerated, nil
	case PolicyRoleRotation:
		return PolicyRoleRotation, nil
	}
	return "", fmt.Errorf("unknown turn policy: %q", s)
}

func normalizeTag(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		case c == '-':
			out = append(out, '_')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
