package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"parimarket/internal/domain"
	"parimarket/internal/store/memory"
	"parimarket/internal/vault"
)

type testClock struct {
	now int64
}

func (c *testClock) Now() int64 { return c.now }

type fixture struct {
	markets *MarketService
	bets    *BetService
	store   *memory.Store
	clock   *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	v, err := vault.New([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}

	store := memory.New(v)
	clock := &testClock{now: 1_000}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		markets: NewMarketService(store, clock, nil, nil, nil, logger),
		bets:    NewBetService(store, clock, v, nil, nil, nil, 0, logger),
		store:   store,
		clock:   clock,
	}
}

func (f *fixture) fund(t *testing.T, p domain.Principal, amount uint64) {
	t.Helper()
	err := f.store.Update(context.Background(), func(tx domain.Tx) error {
		if err := tx.Ledger().OpenAccount(context.Background(), domain.UserAccount(p), p); err != nil {
			return err
		}
		return tx.Ledger().Deposit(context.Background(), domain.UserAccount(p), amount)
	})
	if err != nil {
		t.Fatalf("fund %s: %v", p, err)
	}
}

func (f *fixture) balance(t *testing.T, id domain.AccountID) uint64 {
	t.Helper()
	var balance uint64
	err := f.store.View(context.Background(), func(tx domain.Tx) error {
		var err error
		balance, err = tx.Ledger().Balance(context.Background(), id)
		return err
	})
	if err != nil {
		t.Fatalf("balance %s: %v", id, err)
	}
	return balance
}

func (f *fixture) createMarket(t *testing.T, marketID uint64, authority domain.Principal, endTime int64, minBet uint64) domain.Market {
	t.Helper()
	m, err := f.markets.Create(context.Background(), CreateMarketInput{
		MarketID:     marketID,
		Description:  "Will it rain tomorrow?",
		EndTime:      endTime,
		MinBetAmount: minBet,
		Authority:    authority,
	})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	return m
}

func TestPlaceBetMovesStakeIntoEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createMarket(t, 1, "alice", 2_000, 10)
	f.fund(t, "bob", 500)

	bet, err := f.bets.Place(ctx, 1, true, 100, "bob")
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}
	if bet.IsClaimed {
		t.Fatal("new bet must not be claimed")
	}
	if bet.Timestamp != 1_000 {
		t.Fatalf("expected timestamp 1000, got %d", bet.Timestamp)
	}

	m, err := f.markets.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	if m.TotalYesBets != 100 || m.TotalNoBets != 0 {
		t.Fatalf("expected totals 100/0, got %d/%d", m.TotalYesBets, m.TotalNoBets)
	}

	if got := f.balance(t, domain.UserAccount("bob")); got != 400 {
		t.Fatalf("expected bettor balance 400, got %d", got)
	}
	if got := f.balance(t, domain.EscrowAccount(1)); got != 100 {
		t.Fatalf("expected escrow balance 100, got %d", got)
	}
}

func TestPlaceBetRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createMarket(t, 1, "alice", 2_000, 10)
	f.fund(t, "bob", 500)

	if _, err := f.bets.Place(ctx, 99, true, 100, "bob"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown market: expected ErrNotFound, got %v", err)
	}
	if _, err := f.bets.Place(ctx, 1, true, 9, "bob"); !errors.Is(err, domain.ErrBetTooSmall) {
		t.Fatalf("below minimum: expected ErrBetTooSmall, got %v", err)
	}

	f.clock.now = 2_000
	if _, err := f.bets.Place(ctx, 1, true, 100, "bob"); !errors.Is(err, domain.ErrMarketExpired) {
		t.Fatalf("at deadline: expected ErrMarketExpired, got %v", err)
	}

	// Nothing may have leaked out of the failed attempts.
	if got := f.balance(t, domain.UserAccount("bob")); got != 500 {
		t.Fatalf("expected untouched balance 500, got %d", got)
	}
	m, _ := f.markets.Get(ctx, 1)
	if m.TotalYesBets != 0 || m.TotalNoBets != 0 {
		t.Fatalf("expected untouched totals, got %d/%d", m.TotalYesBets, m.TotalNoBets)
	}
}

func TestPlaceBetInsufficientFundsIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createMarket(t, 1, "alice", 2_000, 10)
	f.fund(t, "bob", 50)

	if _, err := f.bets.Place(ctx, 1, true, 100, "bob"); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	m, _ := f.markets.Get(ctx, 1)
	if m.TotalYesBets != 0 {
		t.Fatalf("totals must not change on failed transfer, got %d", m.TotalYesBets)
	}
	if got := f.balance(t, domain.EscrowAccount(1)); got != 0 {
		t.Fatalf("escrow must stay empty, got %d", got)
	}
	if _, err := f.bets.Get(ctx, 1, "bob"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("no bet record may survive, got %v", err)
	}
}

func TestPlaceBetOncePerBettorPerMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createMarket(t, 1, "alice", 2_000, 10)
	f.fund(t, "bob", 500)

	if _, err := f.bets.Place(ctx, 1, true, 100, "bob"); err != nil {
		t.Fatalf("first bet: %v", err)
	}
	if _, err := f.bets.Place(ctx, 1, false, 100, "bob"); !errors.Is(err, domain.ErrBetExists) {
		t.Fatalf("second bet: expected ErrBetExists, got %v", err)
	}

	// The rejected second bet must not have moved funds or totals.
	if got := f.balance(t, domain.UserAccount("bob")); got != 400 {
		t.Fatalf("expected balance 400 after one bet, got %d", got)
	}
	m, _ := f.markets.Get(ctx, 1)
	if m.TotalYesBets != 100 || m.TotalNoBets != 0 {
		t.Fatalf("expected totals 100/0, got %d/%d", m.TotalYesBets, m.TotalNoBets)
	}
}

func TestPlaceBetAccumulatesAcrossBettors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createMarket(t, 1, "alice", 2_000, 1)

	var want uint64
	stakes := []uint64{1, 10, 100, 1000}
	for i, stake := range stakes {
		bettor := domain.Principal(string(rune('a' + i)))
		f.fund(t, bettor, stake)
		outcome := i%2 == 0
		if _, err := f.bets.Place(ctx, 1, outcome, stake, bettor); err != nil {
			t.Fatalf("bet %d: %v", i, err)
		}
		want += stake
	}

	m, _ := f.markets.Get(ctx, 1)
	total, err := m.TotalPool()
	if err != nil {
		t.Fatalf("total pool: %v", err)
	}
	if total != want {
		t.Fatalf("expected pool %d, got %d", want, total)
	}
	if got := f.balance(t, domain.EscrowAccount(1)); got != want {
		t.Fatalf("expected escrow %d, got %d", want, got)
	}
}

func TestClaimProportionalShare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Market with min bet 10: A stakes 100 on YES, B stakes 300 on NO.
	f.createMarket(t, 1, "alice", 2_000, 10)
	f.fund(t, "a", 100)
	f.fund(t, "b", 300)

	if _, err := f.bets.Place(ctx, 1, true, 100, "a"); err != nil {
		t.Fatalf("bet a: %v", err)
	}
	if _, err := f.bets.Place(ctx, 1, false, 300, "b"); err != nil {
		t.Fatalf("bet b: %v", err)
	}

	f.clock.now = 2_000
	if _, err := f.markets.Resolve(ctx, 1, false, "alice"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// B takes the whole pool: floor(300*400/300) = 400.
	winnings, err := f.bets.Claim(ctx, 1, "b")
	if err != nil {
		t.Fatalf("claim b: %v", err)
	}
	if winnings != 400 {
		t.Fatalf("expected winnings 400, got %d", winnings)
	}
	if got := f.balance(t, domain.UserAccount("b")); got != 400 {
		t.Fatalf("expected b balance 400, got %d", got)
	}
	if got := f.balance(t, domain.EscrowAccount(1)); got != 0 {
		t.Fatalf("expected drained escrow, got %d", got)
	}

	// A lost; the claim is rejected, not zero-paid.
	if _, err := f.bets.Claim(ctx, 1, "a"); !errors.Is(err, domain.ErrLosingBet) {
		t.Fatalf("expected ErrLosingBet, got %v", err)
	}
	betA, err := f.bets.Get(ctx, 1, "a")
	if err != nil {
		t.Fatalf("get bet a: %v", err)
	}
	if betA.IsClaimed {
		t.Fatal("losing bet must stay unclaimed")
	}
}

func TestClaimExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createMarket(t, 1, "alice", 2_000, 10)
	f.fund(t, "bob", 50)
	if _, err := f.bets.Place(ctx, 1, true, 50, "bob"); err != nil {
		t.Fatalf("bet: %v", err)
	}

	f.clock.now = 2_000
	if _, err := f.markets.Resolve(ctx, 1, true, "alice"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// One-sided pool: floor(50*50/50) = 50, no dilution.
	winnings, err := f.bets.Claim(ctx, 1, "bob")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if winnings != 50 {
		t.Fatalf("expected winnings 50, got %d", winnings)
	}

	if _, err := f.bets.Claim(ctx, 1, "bob"); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Fatalf("second claim: expected ErrAlreadyClaimed, got %v", err)
	}
	if got := f.balance(t, domain.UserAccount("bob")); got != 50 {
		t.Fatalf("double transfer detected: balance %d", got)
	}
}

func TestClaimBeforeResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createMarket(t, 1, "alice", 2_000, 10)
	f.fund(t, "bob", 50)
	if _, err := f.bets.Place(ctx, 1, true, 50, "bob"); err != nil {
		t.Fatalf("bet: %v", err)
	}

	if _, err := f.bets.Claim(ctx, 1, "bob"); !errors.Is(err, domain.ErrMarketNotResolved) {
		t.Fatalf("expected ErrMarketNotResolved, got %v", err)
	}
}

func TestClaimWithoutBet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createMarket(t, 1, "alice", 2_000, 10)
	f.fund(t, "bob", 50)
	if _, err := f.bets.Place(ctx, 1, true, 50, "bob"); err != nil {
		t.Fatalf("bet: %v", err)
	}

	f.clock.now = 2_000
	if _, err := f.markets.Resolve(ctx, 1, true, "alice"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := f.bets.Claim(ctx, 1, "mallory"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimRoundingRemainderStaysInEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Three winners staking 1 each against 1 on the losing side: each gets
	// floor(1*4/3) = 1, leaving 1 unit of rounding remainder in escrow.
	f.createMarket(t, 1, "alice", 2_000, 1)
	winners := []domain.Principal{"w1", "w2", "w3"}
	for _, w := range winners {
		f.fund(t, w, 1)
		if _, err := f.bets.Place(ctx, 1, true, 1, w); err != nil {
			t.Fatalf("bet %s: %v", w, err)
		}
	}
	f.fund(t, "loser", 1)
	if _, err := f.bets.Place(ctx, 1, false, 1, "loser"); err != nil {
		t.Fatalf("bet loser: %v", err)
	}

	f.clock.now = 2_000
	if _, err := f.markets.Resolve(ctx, 1, true, "alice"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var paid uint64
	for _, w := range winners {
		winnings, err := f.bets.Claim(ctx, 1, w)
		if err != nil {
			t.Fatalf("claim %s: %v", w, err)
		}
		paid += winnings
	}

	if paid != 3 {
		t.Fatalf("expected 3 paid in total, got %d", paid)
	}
	remainder := f.balance(t, domain.EscrowAccount(1))
	if remainder != 1 {
		t.Fatalf("expected remainder 1 in escrow, got %d", remainder)
	}
	if remainder >= uint64(len(winners)) {
		t.Fatalf("remainder %d not bounded by winner count", remainder)
	}
}

func TestEventLogRecordsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createMarket(t, 1, "alice", 2_000, 10)
	f.fund(t, "bob", 50)
	if _, err := f.bets.Place(ctx, 1, true, 50, "bob"); err != nil {
		t.Fatalf("bet: %v", err)
	}
	f.clock.now = 2_000
	if _, err := f.markets.Resolve(ctx, 1, true, "alice"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := f.bets.Claim(ctx, 1, "bob"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	events, err := f.markets.Events(ctx, 1, domain.ListOpts{})
	if err != nil {
		t.Fatalf("events: %v", err)
	}

	want := []domain.EventType{
		domain.EventMarketCreated,
		domain.EventBetPlaced,
		domain.EventMarketResolved,
		domain.EventWinningsClaimed,
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, e := range events {
		if e.Type != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], e.Type)
		}
		if e.MarketID != 1 {
			t.Fatalf("event %d: expected market 1, got %d", i, e.MarketID)
		}
		if e.ID == "" {
			t.Fatalf("event %d: missing id", i)
		}
	}

	claimed := events[3]
	if claimed.Actor != "bob" || claimed.Amount != 50 {
		t.Fatalf("claim event carries %s/%d", claimed.Actor, claimed.Amount)
	}
}
