package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"parimarket/internal/domain"
)

// LedgerStore implements domain.LedgerStore on an accounts table. Debits
// take a row lock on the source account, so two transfers out of the same
// account serialize; the balance check and the debit are one conditional
// update, so funds can never go negative.
type LedgerStore struct {
	q        queryer
	verifier domain.CapabilityVerifier
}

// OpenAccount creates an empty account, create-or-fail.
func (s *LedgerStore) OpenAccount(ctx context.Context, id domain.AccountID, owner domain.Principal) error {
	const query = `
		INSERT INTO accounts (account_id, owner, balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (account_id) DO NOTHING`

	tag, err := s.q.Exec(ctx, query, string(id), string(owner))
	if err != nil {
		return fmt.Errorf("postgres: open account %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountExists
	}
	return nil
}

// Balance returns the current balance.
func (s *LedgerStore) Balance(ctx context.Context, id domain.AccountID) (uint64, error) {
	var balance string
	err := s.q.QueryRow(ctx,
		`SELECT balance::text FROM accounts WHERE account_id = $1`, string(id),
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("postgres: balance of %s: %w", id, err)
	}
	return parseU64(balance)
}

// Deposit credits an account unconditionally (up to the uint64 cap).
func (s *LedgerStore) Deposit(ctx context.Context, id domain.AccountID, amount uint64) error {
	const query = `
		UPDATE accounts SET balance = balance + $2::numeric
		WHERE account_id = $1
		  AND balance + $2::numeric <= ` + maxU64 + `::numeric`

	tag, err := s.q.Exec(ctx, query, string(id), u64str(amount))
	if err != nil {
		return fmt.Errorf("postgres: deposit to %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Balance(ctx, id); err != nil {
			return err
		}
		return domain.ErrStakeOverflow
	}
	return nil
}

// Transfer moves amount between accounts after checking the debit
// authority: the owner principal for user accounts, a valid market
// capability for escrow accounts.
func (s *LedgerStore) Transfer(ctx context.Context, from, to domain.AccountID, auth domain.TransferAuthority, amount uint64) error {
	var owner string
	err := s.q.QueryRow(ctx,
		`SELECT owner FROM accounts WHERE account_id = $1 FOR UPDATE`, string(from),
	).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: lock account %s: %w", from, err)
	}

	if marketID, ok := domain.EscrowMarketID(from); ok {
		if s.verifier == nil || !s.verifier.Verify(marketID, auth.Capability) {
			return domain.ErrBadCapability
		}
	} else if auth.Principal == "" || string(auth.Principal) != owner {
		return domain.ErrNotBettor
	}

	const debit = `
		UPDATE accounts SET balance = balance - $2::numeric
		WHERE account_id = $1 AND balance >= $2::numeric`
	tag, err := s.q.Exec(ctx, debit, string(from), u64str(amount))
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}

	const credit = `
		UPDATE accounts SET balance = balance + $2::numeric
		WHERE account_id = $1
		  AND balance + $2::numeric <= ` + maxU64 + `::numeric`
	tag, err = s.q.Exec(ctx, credit, string(to), u64str(amount))
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", to, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Balance(ctx, to); err != nil {
			return err
		}
		return domain.ErrStakeOverflow
	}
	return nil
}
