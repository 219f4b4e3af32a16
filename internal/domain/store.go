package domain

import "context"

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists market records keyed by market id.
type MarketStore interface {
	// Create inserts a new market, failing with ErrMarketExists if the id
	// is taken.
	Create(ctx context.Context, m Market) error

	// Get returns the market, or ErrNotFound.
	Get(ctx context.Context, marketID uint64) (Market, error)

	// AddStake accumulates amount onto one outcome's total. The update is
	// conditional: it only applies while the market is unresolved and the
	// new total still fits in uint64.
	AddStake(ctx context.Context, marketID uint64, outcome bool, amount uint64) error

	// SetResolved marks the market resolved with the winning outcome. It
	// applies at most once; a second call fails with ErrMarketResolved.
	SetResolved(ctx context.Context, marketID uint64, winningOutcome bool) error

	// List returns markets ordered by creation time, newest first.
	List(ctx context.Context, opts ListOpts) ([]Market, error)

	// Count returns the total number of markets.
	Count(ctx context.Context) (int64, error)
}

// BetStore persists bet records keyed by (market id, bettor).
type BetStore interface {
	// Create inserts a new bet, failing with ErrBetExists if the bettor
	// already holds a bet on the market.
	Create(ctx context.Context, b Bet) error

	// Get returns the bettor's bet on the market, or ErrNotFound.
	Get(ctx context.Context, marketID uint64, bettor Principal) (Bet, error)

	// MarkClaimed flips is_claimed exactly once; a second call fails with
	// ErrAlreadyClaimed.
	MarkClaimed(ctx context.Context, marketID uint64, bettor Principal) error

	// ListByMarket returns the market's bets ordered by placement time.
	ListByMarket(ctx context.Context, marketID uint64, opts ListOpts) ([]Bet, error)
}

// EventStore persists the append-only notification log.
type EventStore interface {
	Append(ctx context.Context, e Event) error
	ListByMarket(ctx context.Context, marketID uint64, opts ListOpts) ([]Event, error)

	// ListBefore returns events created strictly before the cutoff, for
	// archival.
	ListBefore(ctx context.Context, before int64) ([]Event, error)
}

// Tx bundles the stores participating in one atomic state transition.
type Tx interface {
	Markets() MarketStore
	Bets() BetStore
	Ledger() LedgerStore
	Events() EventStore
}

// Store owns the persistence substrate. Update runs fn as one atomic unit:
// every write inside commits together or none persist, and writers against
// the same records are serialized. View runs fn read-only against a
// consistent snapshot.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}
