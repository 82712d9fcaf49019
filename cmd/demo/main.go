// Command demo runs a scripted role-rotation conversation entirely
// in-process: creator, assistant and counterpart bot take turns with no
// database or provider credentials required.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/turnhub/turnhub/internal/application/chat"
	"github.com/turnhub/turnhub/internal/application/responder"
	"github.com/turnhub/turnhub/internal/domain/conversation"
	"github.com/turnhub/turnhub/internal/infrastructure/memory"
	"github.com/turnhub/turnhub/internal/infrastructure/provider"
	"github.com/turnhub/turnhub/internal/infrastructure/sse"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.WarnLevel)

	repo := memory.NewRepository()
	locker := memory.NewLocker()
	presence := memory.NewPresenceStore()
	hub := sse.NewHub()

	completer := provider.NewScripted(map[string][]string{
		"moderator": {
			"Thanks for kicking us off. Counterpart, what is your opening position?",
			"Noted. Let's keep the next round focused on trade-offs.",
			"Good exchange. I'll summarize once everyone has spoken again.",
		},
		"debater": {
			"My position is simple: ship the smallest thing that works.",
			"Trade-off accepted, but reliability beats novelty every time.",
			"Summarize away; I stand by the boring option.",
		},
	})

	cfg := responder.DefaultConfig()
	cfg.GenerationTimeout = 5 * time.Second
	cfg.LockTTL = 10 * time.Second
	cfg.Personas = map[conversation.Role]string{
		conversation.RoleAssistant:   "moderator",
		conversation.RoleCounterpart: "debater",
	}

	responderSvc, err := responder.NewService(repo, locker, presence, completer, hub, cfg, logger)
	if err != nil {
		log.Fatalf("responder config error: %v", err)
	}
	chatSvc := chat.NewService(repo, presence, hub, responderSvc, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	responderSvc.Start(ctx)

	conv, err := chatSvc.CreateConversation(ctx, chat.CreateConversationInput{
		Title:      "release planning debate",
		Policy:     string(conversation.PolicyRoleRotation),
		CreatorRef: "alice",
	})
	if err != nil {
		log.Fatalf("create conversation: %v", err)
	}

	parts, err := chatSvc.ListParticipants(ctx, conv.ConversationID)
	if err != nil {
		log.Fatalf("list participants: %v", err)
	}
	var creator *conversation.Participant
	for _, p := range parts {
		if p.Role == conversation.RoleCreator {
			creator = p
		}
	}

	openers := []string{
		"Welcome both. Topic today: do we ship the minimal version on Friday?",
		"Hearing you both, I lean toward Friday with a feature flag.",
		"Decision made: Friday it is, flag on by default for staff only.",
	}
	for _, text := range openers {
		result, err := chatSvc.OnParticipantMessage(ctx, conv.ConversationID, creator.ParticipantID, text)
		if err != nil {
			log.Fatalf("send message: %v", err)
		}
		if !result.Accepted {
			log.Fatalf("message rejected: %s", result.Reason)
		}
		// Wait for the assistant and counterpart to take their seats in
		// the rotation before the creator speaks again.
		if err := waitForTurn(ctx, chatSvc, conv.ConversationID, creator.ParticipantID); err != nil {
			log.Fatalf("rotation stalled: %v", err)
		}
	}

	events, err := chatSvc.ListEvents(ctx, conv.ConversationID, []conversation.EventKind{conversation.KindMessage}, 50)
	if err != nil {
		log.Fatalf("list events: %v", err)
	}
	fmt.Println("--- transcript ---")
	for _, e := range events {
		ref := "system"
		if e.SenderID != nil {
			for _, p := range parts {
				if p.ParticipantID == *e.SenderID {
					ref = p.Ref
				}
			}
		}
		fmt.Printf("%2d %-12s %s\n", e.Seq, ref, e.Text())
	}
}

// waitForTurn polls until the rotation comes back around to actorID.
func waitForTurn(ctx context.Context, chatSvc *chat.Service, conversationID, actorID uuid.UUID) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			st, err := chatSvc.GetTurnState(ctx, conversationID)
			if err != nil {
				return err
			}
			if st.NextActorID != nil && *st.NextActorID == actorID {
				return nil
			}
		}
	}
}
