package turn

import (
	"time"

	"github.com/google/uuid"

	"github.com/turnhub/turnhub/internal/domain/conversation"
)

// State materializes a Decision into the stored turn state record.
func State(conversationID uuid.UUID, policy conversation.Policy, d Decision, at time.Time) *conversation.TurnState {
	return &conversation.TurnState{
		ConversationID: conversationID,
		Policy:         policy,
		NextActorID:    d.NextActorID,
		NextRole:       d.NextRole,
		Queue:          d.Queue,
		QueuePos:       d.QueuePos,
		UpdatedAt:      at,
	}
}
