package domain

import (
	"context"
	"strconv"
	"strings"
)

// AccountID addresses a token-holding account in the ledger collaborator.
// User accounts belong to a principal; escrow accounts belong to a market.
type AccountID string

// UserAccount returns the account ID for a principal's own funds.
func UserAccount(p Principal) AccountID {
	return AccountID("user:" + string(p))
}

// EscrowAccount returns the account ID for a market's pooled escrow. The ID
// is derived deterministically from the market id, so no directory of
// escrow accounts is needed.
func EscrowAccount(marketID uint64) AccountID {
	return AccountID("escrow:" + strconv.FormatUint(marketID, 10))
}

// EscrowMarketID extracts the market id from an escrow account ID. The
// second return is false for user accounts.
func EscrowMarketID(id AccountID) (uint64, bool) {
	s, ok := strings.CutPrefix(string(id), "escrow:")
	if !ok {
		return 0, false
	}
	marketID, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return marketID, true
}

// TransferAuthority proves the right to debit the source account of a
// transfer. Exactly one field is set: Principal for user accounts,
// Capability (a market-scoped token minted by the vault) for escrow
// accounts.
type TransferAuthority struct {
	Principal  Principal
	Capability string
}

// CapabilityVerifier checks a market-scoped escrow capability token. The
// vault implements it; the ledger consults it before releasing escrow
// funds.
type CapabilityVerifier interface {
	Verify(marketID uint64, token string) bool
}

// LedgerStore is the value-transfer collaborator. It moves fungible token
// units between custodial accounts; the core decides whether and how much
// to move, never the mechanics.
type LedgerStore interface {
	// OpenAccount creates an empty account. It fails with ErrAccountExists
	// if the ID is taken.
	OpenAccount(ctx context.Context, id AccountID, owner Principal) error

	// Balance returns the current balance, or ErrNotFound.
	Balance(ctx context.Context, id AccountID) (uint64, error)

	// Deposit credits an account unconditionally. Value issuance is the
	// host platform's concern; this exists for seeding and tests.
	Deposit(ctx context.Context, id AccountID, amount uint64) error

	// Transfer moves amount from one account to another. The authority
	// must match the source account's owner, or carry a valid capability
	// for the source escrow's market. Fails with ErrInsufficientFunds if
	// the source balance is too small; nothing moves on failure.
	Transfer(ctx context.Context, from, to AccountID, auth TransferAuthority, amount uint64) error
}
