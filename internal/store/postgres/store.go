package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"parimarket/internal/domain"
)

// Store implements domain.Store: every Update runs in one database
// transaction, so the market, bet, ledger, and event writes of an
// operation commit together or not at all. Row-level locks on the touched
// records serialize concurrent writers the way a hosted ledger sequences
// same-record callers.
type Store struct {
	client   *Client
	verifier domain.CapabilityVerifier
}

// NewStore creates a Store. The verifier gates escrow-out transfers in the
// ledger sub-store.
func NewStore(client *Client, verifier domain.CapabilityVerifier) *Store {
	return &Store{client: client, verifier: verifier}
}

// Update runs fn inside a read-write transaction.
func (s *Store) Update(ctx context.Context, fn func(tx domain.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{}, fn)
}

// View runs fn inside a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx domain.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, fn func(tx domain.Tx) error) error {
	pgtx, err := s.client.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() {
		_ = pgtx.Rollback(ctx)
	}()

	if err := fn(&txBundle{q: pgtx, verifier: s.verifier}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// txBundle hands the sub-stores a shared transaction handle.
type txBundle struct {
	q        queryer
	verifier domain.CapabilityVerifier
}

func (t *txBundle) Markets() domain.MarketStore { return &MarketStore{q: t.q} }
func (t *txBundle) Bets() domain.BetStore       { return &BetStore{q: t.q} }
func (t *txBundle) Ledger() domain.LedgerStore  { return &LedgerStore{q: t.q, verifier: t.verifier} }
func (t *txBundle) Events() domain.EventStore   { return &EventStore{q: t.q} }

// Compile-time interface check.
var _ domain.Store = (*Store)(nil)
