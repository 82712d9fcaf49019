package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turnhub/turnhub/internal/domain/conversation"
)

// ConversationRepository implements conversation.Repository.
type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

func (r *ConversationRepository) CreateConversation(ctx context.Context, c *conversation.Conversation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversations
		(conversation_id, title, policy, status, creator_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, c.ConversationID, c.Title, c.Policy, c.Status, c.CreatorID, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *ConversationRepository) GetConversationByID(ctx context.Context, conversationID uuid.UUID) (*conversation.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, conversation_id, title, policy, status, creator_id, created_at, updated_at
		FROM conversations
		WHERE conversation_id=$1
	`, conversationID)
	return scanConversation(row)
}

func (r *ConversationRepository) UpdateConversationStatus(ctx context.Context, conversationID uuid.UUID, status conversation.Status, updatedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET status=$1, updated_at=$2
		WHERE conversation_id=$3
	`, status, updatedAt, conversationID)
	return err
}

func (r *ConversationRepository) CreateParticipant(ctx context.Context, p *conversation.Participant) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO participants
		(participant_id, conversation_id, role, ref, done_at, joined_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, p.ParticipantID, p.ConversationID, p.Role, p.Ref, p.DoneAt, p.JoinedAt)
	return err
}

func (r *ConversationRepository) GetParticipantByID(ctx context.Context, participantID uuid.UUID) (*conversation.Participant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, participant_id, conversation_id, role, ref, done_at, joined_at
		FROM participants
		WHERE participant_id=$1
	`, participantID)
	return scanParticipant(row)
}

func (r *ConversationRepository) GetParticipantByRef(ctx context.Context, conversationID uuid.UUID, ref string) (*conversation.Participant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, participant_id, conversation_id, role, ref, done_at, joined_at
		FROM participants
		WHERE conversation_id=$1 AND ref=$2
	`, conversationID, ref)
	return scanParticipant(row)
}

func (r *ConversationRepository) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]*conversation.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, participant_id, conversation_id, role, ref, done_at, joined_at
		FROM participants
		WHERE conversation_id=$1
		ORDER BY joined_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*conversation.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ConversationRepository) MarkParticipantDone(ctx context.Context, participantID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE participants
		SET done_at=$1
		WHERE participant_id=$2 AND done_at IS NULL
	`, at, participantID)
	return err
}

// AppendEvent serializes appends per conversation with a transaction-scoped
// advisory lock, so sequence numbers are gapless and totally ordered even
// under concurrent writers.
func (r *ConversationRepository) AppendEvent(ctx context.Context, e *conversation.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin append: %w", conversation.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))
	`, e.ConversationID.String()); err != nil {
		return fmt.Errorf("%w: acquire append lock: %w", conversation.ErrPersistence, err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO conversation_events
		(event_id, conversation_id, seq, kind, sender_id, payload, created_at)
		VALUES (
			$1, $2,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_events WHERE conversation_id=$2),
			$3, $4, $5, $6
		)
		RETURNING id, seq
	`, e.EventID, e.ConversationID, e.Kind, e.SenderID, e.Payload, e.CreatedAt)
	if err := row.Scan(&e.ID, &e.Seq); err != nil {
		return fmt.Errorf("%w: insert event: %w", conversation.ErrPersistence, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit append: %w", conversation.ErrPersistence, err)
	}
	return nil
}

func (r *ConversationRepository) TailEvents(ctx context.Context, conversationID uuid.UUID, kinds []conversation.EventKind, limit int) ([]*conversation.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var kindFilter []string
	for _, k := range kinds {
		kindFilter = append(kindFilter, string(k))
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, conversation_id, seq, kind, sender_id, payload, created_at
		FROM conversation_events
		WHERE conversation_id=$1
		  AND ($2::text[] IS NULL OR kind = ANY($2))
		ORDER BY seq DESC
		LIMIT $3
	`, conversationID, kindFilter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*conversation.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Query is newest-first to honor the limit; callers want ascending.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *ConversationRepository) UpsertTurnState(ctx context.Context, st *conversation.TurnState) error {
	queue := make([]string, len(st.Queue))
	for i, id := range st.Queue {
		queue[i] = id.String()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO turn_states
		(conversation_id, policy, next_actor_id, next_role, queue, queue_pos, generation_token, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (conversation_id) DO UPDATE SET
			policy=EXCLUDED.policy,
			next_actor_id=EXCLUDED.next_actor_id,
			next_role=EXCLUDED.next_role,
			queue=EXCLUDED.queue,
			queue_pos=EXCLUDED.queue_pos,
			generation_token=EXCLUDED.generation_token,
			updated_at=EXCLUDED.updated_at
	`, st.ConversationID, st.Policy, st.NextActorID, st.NextRole, queue, st.QueuePos, st.GenerationToken, st.UpdatedAt)
	return err
}

func (r *ConversationRepository) GetTurnState(ctx context.Context, conversationID uuid.UUID) (*conversation.TurnState, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT conversation_id, policy, next_actor_id, next_role, queue, queue_pos, generation_token, updated_at
		FROM turn_states
		WHERE conversation_id=$1
	`, conversationID)

	var st conversation.TurnState
	var queue []string
	err := row.Scan(&st.ConversationID, &st.Policy, &st.NextActorID, &st.NextRole, &queue, &st.QueuePos, &st.GenerationToken, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	for _, s := range queue {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		st.Queue = append(st.Queue, id)
	}
	return &st, nil
}

func (r *ConversationRepository) CreateInvite(ctx context.Context, inv *conversation.Invite) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO invites
		(invite_id, conversation_id, code_hash, role, used_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, inv.InviteID, inv.ConversationID, inv.CodeHash, inv.Role, inv.UsedAt, inv.CreatedAt)
	return err
}

func (r *ConversationRepository) ListOpenInvites(ctx context.Context, conversationID uuid.UUID) ([]*conversation.Invite, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, invite_id, conversation_id, code_hash, role, used_at, created_at
		FROM invites
		WHERE conversation_id=$1 AND used_at IS NULL
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*conversation.Invite
	for rows.Next() {
		var inv conversation.Invite
		if err := rows.Scan(&inv.ID, &inv.InviteID, &inv.ConversationID, &inv.CodeHash, &inv.Role, &inv.UsedAt, &inv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &inv)
	}
	return out, rows.Err()
}

func (r *ConversationRepository) MarkInviteUsed(ctx context.Context, inviteID uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invites
		SET used_at=$1
		WHERE invite_id=$2 AND used_at IS NULL
	`, at, inviteID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return conversation.ErrInviteInvalid
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*conversation.Conversation, error) {
	var c conversation.Conversation
	err := row.Scan(&c.ID, &c.ConversationID, &c.Title, &c.Policy, &c.Status, &c.CreatorID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func scanParticipant(row rowScanner) (*conversation.Participant, error) {
	var p conversation.Participant
	err := row.Scan(&p.ID, &p.ParticipantID, &p.ConversationID, &p.Role, &p.Ref, &p.DoneAt, &p.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func scanEvent(row rowScanner) (*conversation.Event, error) {
	var e conversation.Event
	err := row.Scan(&e.ID, &e.EventID, &e.ConversationID, &e.Seq, &e.Kind, &e.SenderID, &e.Payload, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}
