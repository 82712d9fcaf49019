package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PresenceRepository implements presence.Store. Expired markers read as
// absent before the sweep removes them.
type PresenceRepository struct {
	pool *pgxpool.Pool
}

func NewPresenceRepository(pool *pgxpool.Pool) *PresenceRepository {
	return &PresenceRepository{pool: pool}
}

func (r *PresenceRepository) SetTyping(ctx context.Context, conversationID, actorID uuid.UUID, on bool, ttl time.Duration) error {
	if !on {
		_, err := r.pool.Exec(ctx, `
			DELETE FROM typing_markers
			WHERE conversation_id=$1 AND actor_id=$2
		`, conversationID, actorID)
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO typing_markers (conversation_id, actor_id, expires_at)
		VALUES ($1, $2, now() + make_interval(secs => $3))
		ON CONFLICT (conversation_id, actor_id) DO UPDATE SET
			expires_at=EXCLUDED.expires_at
	`, conversationID, actorID, ttl.Seconds())
	return err
}

func (r *PresenceRepository) ListTyping(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT actor_id
		FROM typing_markers
		WHERE conversation_id=$1 AND expires_at > now()
		ORDER BY actor_id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *PresenceRepository) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM typing_markers
		WHERE (conversation_id, actor_id) IN (
			SELECT conversation_id, actor_id FROM typing_markers
			WHERE expires_at <= $1
			LIMIT $2
		)
	`, now, limit)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
