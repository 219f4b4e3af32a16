package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"parimarket/internal/domain"
)

func TestCreateMarketInitialState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.createMarket(t, 7, "alice", 5_000, 10)
	if created.CreatedAt != 1_000 {
		t.Fatalf("expected created_at 1000, got %d", created.CreatedAt)
	}

	m, err := f.markets.Get(ctx, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.TotalYesBets != 0 || m.TotalNoBets != 0 {
		t.Fatalf("expected zero totals, got %d/%d", m.TotalYesBets, m.TotalNoBets)
	}
	if m.IsResolved || m.WinningOutcome != nil {
		t.Fatal("new market must be unresolved with no outcome")
	}
	if m.Authority != "alice" || m.MinBetAmount != 10 || m.EndTime != 5_000 {
		t.Fatalf("unexpected record: %+v", m)
	}

	// The escrow account opens with the market.
	if got := f.balance(t, domain.EscrowAccount(7)); got != 0 {
		t.Fatalf("expected empty escrow, got %d", got)
	}
}

func TestCreateMarketValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateMarketInput
		err  error
	}{
		{
			name: "end time not in future",
			in:   CreateMarketInput{MarketID: 1, Description: "q", EndTime: 1_000, MinBetAmount: 1, Authority: "alice"},
			err:  domain.ErrInvalidEndTime,
		},
		{
			name: "description too long",
			in:   CreateMarketInput{MarketID: 1, Description: strings.Repeat("x", 281), EndTime: 2_000, MinBetAmount: 1, Authority: "alice"},
			err:  domain.ErrDescriptionTooLong,
		},
		{
			name: "zero minimum bet",
			in:   CreateMarketInput{MarketID: 1, Description: "q", EndTime: 2_000, MinBetAmount: 0, Authority: "alice"},
			err:  domain.ErrInvalidMinBet,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.markets.Create(ctx, tc.in); !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}

	// Failed creates leave nothing behind.
	count, err := f.markets.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no markets, got %d", count)
	}
}

func TestCreateMarketDuplicateID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createMarket(t, 7, "alice", 5_000, 10)
	_, err := f.markets.Create(ctx, CreateMarketInput{
		MarketID:     7,
		Description:  "another question",
		EndTime:      9_000,
		MinBetAmount: 1,
		Authority:    "carol",
	})
	if !errors.Is(err, domain.ErrMarketExists) {
		t.Fatalf("expected ErrMarketExists, got %v", err)
	}

	// The original record is untouched.
	m, _ := f.markets.Get(ctx, 7)
	if m.Authority != "alice" {
		t.Fatalf("expected original authority, got %s", m.Authority)
	}
}

func TestResolveMarketTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createMarket(t, 7, "alice", 5_000, 10)

	// Before the deadline resolution always fails.
	if _, err := f.markets.Resolve(ctx, 7, true, "alice"); !errors.Is(err, domain.ErrMarketNotExpired) {
		t.Fatalf("expected ErrMarketNotExpired, got %v", err)
	}

	// After the deadline a non-authority always fails.
	f.clock.now = 5_000
	if _, err := f.markets.Resolve(ctx, 7, true, "mallory"); !errors.Is(err, domain.ErrNotAuthority) {
		t.Fatalf("expected ErrNotAuthority, got %v", err)
	}

	// Exactly one resolution succeeds.
	m, err := f.markets.Resolve(ctx, 7, true, "alice")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !m.IsResolved || m.WinningOutcome == nil || !*m.WinningOutcome {
		t.Fatalf("expected resolved YES, got %+v", m)
	}

	if _, err := f.markets.Resolve(ctx, 7, false, "alice"); !errors.Is(err, domain.ErrMarketResolved) {
		t.Fatalf("second resolve: expected ErrMarketResolved, got %v", err)
	}

	// The outcome never flips.
	m, _ = f.markets.Get(ctx, 7)
	if m.WinningOutcome == nil || !*m.WinningOutcome {
		t.Fatal("winning outcome changed after failed re-resolution")
	}

	// A resolved market accepts no bets even if time rewinds.
	f.clock.now = 1_000
	f.fund(t, "bob", 100)
	if _, err := f.bets.Place(ctx, 7, true, 100, "bob"); !errors.Is(err, domain.ErrMarketResolved) {
		t.Fatalf("expected ErrMarketResolved, got %v", err)
	}
}

func TestResolveUnknownMarket(t *testing.T) {
	f := newFixture(t)

	if _, err := f.markets.Resolve(context.Background(), 404, true, "alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListMarketsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createMarket(t, 1, "alice", 5_000, 10)
	f.clock.now = 1_500
	f.createMarket(t, 2, "alice", 5_000, 10)

	markets, err := f.markets.List(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(markets))
	}
	if markets[0].MarketID != 2 || markets[1].MarketID != 1 {
		t.Fatalf("expected newest first, got %d then %d", markets[0].MarketID, markets[1].MarketID)
	}

	page, err := f.markets.List(ctx, domain.ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 1 || page[0].MarketID != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
}
