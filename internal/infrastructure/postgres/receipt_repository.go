package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turnhub/turnhub/internal/domain/conversation"
	"github.com/turnhub/turnhub/internal/domain/receipt"
)

// ReceiptRepository implements receipt.Repository.
type ReceiptRepository struct {
	pool *pgxpool.Pool
}

func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool}
}

func (r *ReceiptRepository) Upsert(ctx context.Context, rec *receipt.Receipt) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO read_receipts (conversation_id, participant_id, last_read_seq, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (conversation_id, participant_id) DO UPDATE SET
			last_read_seq=GREATEST(read_receipts.last_read_seq, EXCLUDED.last_read_seq),
			updated_at=EXCLUDED.updated_at
	`, rec.ConversationID, rec.ParticipantID, rec.LastReadSeq, rec.UpdatedAt)
	return err
}

func (r *ReceiptRepository) Get(ctx context.Context, conversationID, participantID uuid.UUID) (*receipt.Receipt, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT conversation_id, participant_id, last_read_seq, updated_at
		FROM read_receipts
		WHERE conversation_id=$1 AND participant_id=$2
	`, conversationID, participantID)

	var rec receipt.Receipt
	err := row.Scan(&rec.ConversationID, &rec.ParticipantID, &rec.LastReadSeq, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *ReceiptRepository) CountUnread(ctx context.Context, conversationID, participantID uuid.UUID) (int, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM conversation_events e
		WHERE e.conversation_id=$1
		  AND e.kind=$2
		  AND e.seq > COALESCE((
			SELECT last_read_seq FROM read_receipts
			WHERE conversation_id=$1 AND participant_id=$3
		  ), 0)
	`, conversationID, conversation.KindMessage, participantID)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
