package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"parimarket/internal/domain"
)

// unlockScript deletes the lock key only if the caller still holds it,
// so an expired lock re-acquired by someone else is never released by
// the original holder.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// LockManager provides distributed per-key locks backed by Redis SETNX.
type LockManager struct {
	rdb *redis.Client
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager on top of an existing client.
func NewLockManager(client *Client) *LockManager {
	return &LockManager{rdb: client.Underlying()}
}

// Acquire takes the lock for key, holding it for at most ttl. It
// returns a release func on success and domain.ErrLockHeld when the
// lock is already taken by another holder.
func (l *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lockKey := "lock:" + key

	ok, err := l.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	release := func() {
		// Release must not depend on the caller's context, which is
		// often already cancelled by the time the deferred release runs.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.rdb.Eval(rctx, unlockScript, []string{lockKey}, token).Err()
	}
	return release, nil
}
