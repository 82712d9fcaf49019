package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LockRepository implements lock.Locker on a single table. Acquisition is
// one atomic upsert: the conditional DO UPDATE only fires when the existing
// entry has expired (or the caller already holds it), so of two racers
// exactly one sees a row affected.
type LockRepository struct {
	pool *pgxpool.Pool
}

func NewLockRepository(pool *pgxpool.Pool) *LockRepository {
	return &LockRepository{pool: pool}
}

func (r *LockRepository) TryAcquire(ctx context.Context, key, holderToken string, ttl time.Duration) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO generation_locks (key, holder_token, expires_at)
		VALUES ($1, $2, now() + make_interval(secs => $3))
		ON CONFLICT (key) DO UPDATE SET
			holder_token=EXCLUDED.holder_token,
			expires_at=EXCLUDED.expires_at
		WHERE generation_locks.expires_at <= now()
		   OR generation_locks.holder_token = EXCLUDED.holder_token
	`, key, holderToken, ttl.Seconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Release deletes the entry only when holderToken still owns it. Releasing
// an expired or foreign lock is a no-op, never an error.
func (r *LockRepository) Release(ctx context.Context, key, holderToken string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM generation_locks
		WHERE key=$1 AND holder_token=$2
	`, key, holderToken)
	return err
}

func (r *LockRepository) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM generation_locks
		WHERE key IN (
			SELECT key FROM generation_locks
			WHERE expires_at <= $1
			LIMIT $2
		)
	`, now, limit)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
