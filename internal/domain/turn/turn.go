// Package turn holds the pure turn-taking decision logic. Decide and
// CheckSender are deterministic functions of the event tail and the live
// participant list; they never read or write any store, which is what lets
// two concurrent recomputations converge to the same answer.
package turn

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/turnhub/turnhub/internal/domain/conversation"
)

var ErrNotYourTurn = errors.New("not your turn")

// Decision is the outcome of evaluating a policy against the event tail.
// A nil NextActorID means any human participant may send.
type Decision struct {
	NextActorID     *uuid.UUID
	NextRole        conversation.Role
	Queue           []uuid.UUID
	QueuePos        int
	InvokeResponder bool
	ResponderID     *uuid.UUID
}

// machine is one turn policy. Implementations are stateless.
type machine interface {
	decide(tail []*conversation.Event, parts []*conversation.Participant) Decision
	allowed(tail []*conversation.Event, parts []*conversation.Participant, sender *conversation.Participant) bool
}

// forPolicy dispatches the policy tag to its implementation once, at entry.
func forPolicy(p conversation.Policy) (machine, error) {
	switch p {
	case conversation.PolicyFlexible:
		return flexible{}, nil
	case conversation.PolicyStrict:
		return strict{}, nil
	case conversation.PolicyModerated:
		return moderated{}, nil
	case conversation.PolicyRoleRotation:
		return roleRotation{}, nil
	}
	return nil, fmt.Errorf("unknown turn policy: %q", p)
}

// Decide evaluates who acts next and whether the AI responder should be
// invoked, given the policy, the ascending event tail and the live
// participant list.
func Decide(policy conversation.Policy, tail []*conversation.Event, parts []*conversation.Participant) (Decision, error) {
	m, err := forPolicy(policy)
	if err != nil {
		return Decision{}, err
	}
	return m.decide(tail, parts), nil
}

// CheckSender reports whether senderID may append the next message. A sender
// not present in parts is always denied regardless of policy. Synthetic
// senders are admitted; their turns are governed by the orchestrator.
func CheckSender(policy conversation.Policy, tail []*conversation.Event, parts []*conversation.Participant, senderID uuid.UUID) error {
	m, err := forPolicy(policy)
	if err != nil {
		return err
	}
	sender := byID(parts, senderID)
	if sender == nil {
		return conversation.ErrNotParticipant
	}
	if sender.Role.Synthetic() {
		return nil
	}
	if !m.allowed(tail, parts, sender) {
		return ErrNotYourTurn
	}
	return nil
}

// flexible lets any participant send at any time; the responder has a turn
// after every human message.
type flexible struct{}

func (flexible) allowed(_ []*conversation.Event, _ []*conversation.Participant, _ *conversation.Participant) bool {
	return true
}

func (flexible) decide(tail []*conversation.Event, parts []*conversation.Participant) Decision {
	d := Decision{NextRole: conversation.RoleMember}
	if pendingHumanMessage(tail, parts) {
		d.InvokeResponder = true
		d.ResponderID = roleID(parts, conversation.RoleAssistant)
	}
	return d
}

// strict is a round-robin over human participants; the responder is invoked
// only once the whole round has spoken, not per message.
type strict struct{}

func (strict) allowed(tail []*conversation.Event, parts []*conversation.Participant, sender *conversation.Participant) bool {
	queue := humanQueue(parts)
	if len(queue) == 0 {
		return false
	}
	next := nextInQueue(tail, parts, queue)
	return queue[next].ParticipantID == sender.ParticipantID
}

func (strict) decide(tail []*conversation.Event, parts []*conversation.Participant) Decision {
	queue := humanQueue(parts)
	if len(queue) == 0 {
		return Decision{}
	}
	next := nextInQueue(tail, parts, queue)
	id := queue[next].ParticipantID
	d := Decision{
		NextActorID: &id,
		NextRole:    queue[next].Role,
		Queue:       queueIDs(queue),
		QueuePos:    next,
	}
	// Round complete: the last queue member has spoken and the responder
	// has not replied since.
	if next == 0 && pendingHumanMessage(tail, parts) {
		d.InvokeResponder = true
		d.ResponderID = roleID(parts, conversation.RoleAssistant)
	}
	return d
}

// moderatedQuota is the number of consecutive messages one human may send
// before another participant has to act.
const moderatedQuota = 2

// moderated rate-limits each human to a fixed consecutive-message quota; the
// responder reacts to every message.
type moderated struct{}

func (moderated) allowed(tail []*conversation.Event, parts []*conversation.Participant, sender *conversation.Participant) bool {
	return consecutiveHumanMessages(tail, parts, sender.ParticipantID) < moderatedQuota
}

func (moderated) decide(tail []*conversation.Event, parts []*conversation.Participant) Decision {
	d := Decision{NextRole: conversation.RoleMember}
	if pendingHumanMessage(tail, parts) {
		d.InvokeResponder = true
		d.ResponderID = roleID(parts, conversation.RoleAssistant)
	}
	return d
}

// roleRotation cycles a fixed ordered role list deterministically. Used for
// scripted multi-bot demos where a generation may trigger the next synthetic
// seat.
type roleRotation struct{}

// rotationOrder is the fixed seat order for scripted rotations.
var rotationOrder = []conversation.Role{
	conversation.RoleCreator,
	conversation.RoleAssistant,
	conversation.RoleCounterpart,
}

func (roleRotation) allowed(tail []*conversation.Event, parts []*conversation.Participant, sender *conversation.Participant) bool {
	seats := rotationSeats(parts)
	if len(seats) == 0 {
		return false
	}
	next := seats[nextSeat(tail, parts, seats)]
	return next.ParticipantID == sender.ParticipantID
}

func (roleRotation) decide(tail []*conversation.Event, parts []*conversation.Participant) Decision {
	seats := rotationSeats(parts)
	if len(seats) == 0 {
		return Decision{}
	}
	pos := nextSeat(tail, parts, seats)
	next := seats[pos]
	id := next.ParticipantID
	d := Decision{
		NextActorID: &id,
		NextRole:    next.Role,
		Queue:       queueIDs(seats),
		QueuePos:    pos,
	}
	if next.Role.Synthetic() {
		d.InvokeResponder = true
		d.ResponderID = &id
	}
	return d
}

// humanQueue orders the human participants by join time, creator first.
// Rebuilt from the live list on every call so a participant joining
// mid-round slots in without erroring, preserving relative join order.
func humanQueue(parts []*conversation.Participant) []*conversation.Participant {
	out := make([]*conversation.Participant, 0, len(parts))
	for _, p := range parts {
		if !p.Role.Synthetic() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Role == conversation.RoleCreator && out[j].Role != conversation.RoleCreator {
			return true
		}
		if out[j].Role == conversation.RoleCreator && out[i].Role != conversation.RoleCreator {
			return false
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// nextInQueue finds the queue position after the last human message sender.
// An empty tail means the creator (queue head) is implicitly first.
func nextInQueue(tail []*conversation.Event, parts []*conversation.Participant, queue []*conversation.Participant) int {
	last := lastHumanMessage(tail, parts)
	if last == nil || last.SenderID == nil {
		return 0
	}
	for i, p := range queue {
		if p.ParticipantID == *last.SenderID {
			return (i + 1) % len(queue)
		}
	}
	// Sender no longer in the rebuilt queue; restart the round.
	return 0
}

func rotationSeats(parts []*conversation.Participant) []*conversation.Participant {
	seats := make([]*conversation.Participant, 0, len(rotationOrder))
	for _, role := range rotationOrder {
		if p := byRole(parts, role); p != nil {
			seats = append(seats, p)
		}
	}
	return seats
}

func nextSeat(tail []*conversation.Event, parts []*conversation.Participant, seats []*conversation.Participant) int {
	for i := len(tail) - 1; i >= 0; i-- {
		e := tail[i]
		if e.Kind != conversation.KindMessage || e.SenderID == nil {
			continue
		}
		for s, p := range seats {
			if p.ParticipantID == *e.SenderID {
				return (s + 1) % len(seats)
			}
		}
	}
	return 0
}

// pendingHumanMessage reports whether the newest message is from a human
// with no synthetic reply after it.
func pendingHumanMessage(tail []*conversation.Event, parts []*conversation.Participant) bool {
	for i := len(tail) - 1; i >= 0; i-- {
		e := tail[i]
		if e.Kind != conversation.KindMessage || e.SenderID == nil {
			continue
		}
		p := byID(parts, *e.SenderID)
		if p == nil {
			return false
		}
		return !p.Role.Synthetic()
	}
	return false
}

// consecutiveHumanMessages counts how many of the trailing human messages
// were sent by senderID. Synthetic replies do not break the run; only a
// different human participant resets the quota.
func consecutiveHumanMessages(tail []*conversation.Event, parts []*conversation.Participant, senderID uuid.UUID) int {
	count := 0
	for i := len(tail) - 1; i >= 0; i-- {
		e := tail[i]
		if e.Kind != conversation.KindMessage || e.SenderID == nil {
			continue
		}
		p := byID(parts, *e.SenderID)
		if p == nil || p.Role.Synthetic() {
			continue
		}
		if *e.SenderID != senderID {
			return count
		}
		count++
	}
	return count
}

func lastHumanMessage(tail []*conversation.Event, parts []*conversation.Participant) *conversation.Event {
	for i := len(tail) - 1; i >= 0; i-- {
		e := tail[i]
		if e.Kind != conversation.KindMessage || e.SenderID == nil {
			continue
		}
		p := byID(parts, *e.SenderID)
		if p != nil && !p.Role.Synthetic() {
			return e
		}
	}
	return nil
}

func byID(parts []*conversation.Participant, id uuid.UUID) *conversation.Participant {
	for _, p := range parts {
		if p.ParticipantID == id {
			return p
		}
	}
	return nil
}

func byRole(parts []*conversation.Participant, role conversation.Role) *conversation.Participant {
	for _, p := range parts {
		if p.Role == role {
			return p
		}
	}
	return nil
}

func roleID(parts []*conversation.Participant, role conversation.Role) *uuid.UUID {
	if p := byRole(parts, role); p != nil {
		id := p.ParticipantID
		return &id
	}
	return nil
}

func queueIDs(queue []*conversation.Participant) []uuid.UUID {
	out := make([]uuid.UUID, len(queue))
	for i, p := range queue {
		out[i] = p.ParticipantID
	}
	return out
}
