package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/turnhub/turnhub/internal/domain/conversation"
	"github.com/turnhub/turnhub/internal/domain/receipt"
)

// ReceiptStore is an in-process receipt.Repository. Unread counts are
// derived from the paired event repository, mirroring the postgres join.
type ReceiptStore struct {
	mu       sync.Mutex
	receipts map[presenceKey]*receipt.Receipt
	events   *Repository
}

func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{receipts: make(map[presenceKey]*receipt.Receipt)}
}

// NewReceiptStoreWithEvents wires the store to an event repository so
// CountUnread can see the log.
func NewReceiptStoreWithEvents(events *Repository) *ReceiptStore {
	s := NewReceiptStore()
	s.events = events
	return s
}

func (s *ReceiptStore) Upsert(_ context.Context, r *receipt.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := presenceKey{conversationID: r.ConversationID, actorID: r.ParticipantID}
	if existing, ok := s.receipts[key]; ok && existing.LastReadSeq >= r.LastReadSeq {
		return nil
	}
	cp := *r
	s.receipts[key] = &cp
	return nil
}

func (s *ReceiptStore) Get(_ context.Context, conversationID, participantID uuid.UUID) (*receipt.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[presenceKey{conversationID: conversationID, actorID: participantID}]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *ReceiptStore) CountUnread(ctx context.Context, conversationID, participantID uuid.UUID) (int, error) {
	var lastRead int64
	if r, err := s.Get(ctx, conversationID, participantID); err != nil {
		return 0, err
	} else if r != nil {
		lastRead = r.LastReadSeq
	}
	if s.events == nil {
		return 0, nil
	}
	events, err := s.events.TailEvents(ctx, conversationID, nil, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range events {
		if e.Seq > lastRead && e.Kind == conversation.KindMessage {
			n++
		}
	}
	return n, nil
}
