package domain

import (
	"context"
	"time"
)

// MarketCache is a read-through cache for market records. Resolved markets
// are immutable apart from bet claim flags, which live on the bets, so they
// cache indefinitely; open markets are never cached because their totals
// move under them.
type MarketCache interface {
	Get(ctx context.Context, marketID uint64) (Market, error)
	Set(ctx context.Context, m Market) error
	Invalidate(ctx context.Context, marketID uint64) error
}

// LockManager serializes cross-process writers on a shared key. The store
// transaction already sequences same-record writers within one process;
// the lock extends that guarantee across replicas.
type LockManager interface {
	// Acquire obtains the lock or fails with ErrLockHeld. The returned
	// function releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter caps the request rate for a key over a sliding window.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted, counting it
	// when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
