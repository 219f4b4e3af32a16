package app

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/errgroup"

	"parimarket/internal/crypto"
	"parimarket/internal/domain"
	"parimarket/internal/server"
	"parimarket/internal/server/handler"
	"parimarket/internal/server/ws"
	"parimarket/internal/service"
)

// ServeMode runs the HTTP API, the WebSocket event stream, and blocks
// until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	clock := domain.SystemClock{}
	marketSvc := service.NewMarketService(deps.Store, clock, deps.Cache, hub, deps.Notifier, a.logger)
	betSvc := service.NewBetService(
		deps.Store, clock, deps.Vault, deps.Locks, hub, deps.Notifier,
		a.cfg.Notify.ClaimAlertThreshold, a.logger,
	)

	pingers := map[string]handler.Pinger{}
	if deps.PG != nil {
		pingers["postgres"] = deps.PG
	}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(pingers, a.logger),
		Markets: handler.NewMarketHandler(marketSvc, a.logger),
		Bets:    handler.NewBetHandler(betSvc, a.logger),
	}, hub, deps.Limiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// ArchiveMode offloads events older than the retention window to object
// storage and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	before := time.Now().AddDate(0, 0, -a.cfg.Archive.RetentionDays).Unix()
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
		slog.Int64("before", before),
	)

	n, err := deps.Archiver.ArchiveEvents(ctx, before)
	if err != nil {
		return fmt.Errorf("app: archive events: %w", err)
	}
	a.logger.InfoContext(ctx, "archive complete", slog.Int64("events", n))
	return nil
}

// demoClock is a settable clock so the demo can step past a market's
// deadline without sleeping.
type demoClock struct {
	now atomic.Int64
}

func (c *demoClock) Now() int64 {
	return c.now.Load()
}

// DemoMode walks a market through its full lifecycle on the in-memory
// store: create, three bets, resolution, and claims, logging balances
// along the way. It needs no external services.
func (a *App) DemoMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting demo mode")

	clock := &demoClock{}
	clock.now.Store(time.Now().Unix())

	marketSvc := service.NewMarketService(deps.Store, clock, nil, nil, nil, a.logger)
	betSvc := service.NewBetService(deps.Store, clock, deps.Vault, nil, nil, nil, 0, a.logger)

	authorityKey, err := ethcrypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("app: demo: generate key: %w", err)
	}
	bettorKeys := make([]*ecdsa.PrivateKey, 3)
	for i := range bettorKeys {
		if bettorKeys[i], err = ethcrypto.GenerateKey(); err != nil {
			return fmt.Errorf("app: demo: generate key: %w", err)
		}
	}

	authority := crypto.PrincipalOf(authorityKey)
	names := []string{"alice", "bob", "carol"}
	bettors := make([]domain.Principal, len(bettorKeys))
	for i, key := range bettorKeys {
		bettors[i] = crypto.PrincipalOf(key)
	}

	// Seed bettor accounts. Value issuance is the host platform's concern
	// in production; the demo mints directly.
	err = deps.Store.Update(ctx, func(tx domain.Tx) error {
		for _, p := range bettors {
			if err := tx.Ledger().OpenAccount(ctx, domain.UserAccount(p), p); err != nil {
				return err
			}
			if err := tx.Ledger().Deposit(ctx, domain.UserAccount(p), 1_000_000); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("app: demo: seed accounts: %w", err)
	}

	const marketID = 1
	market, err := marketSvc.Create(ctx, service.CreateMarketInput{
		MarketID:     marketID,
		Description:  "Will it rain in Lisbon tomorrow?",
		EndTime:      clock.Now() + 3600,
		MinBetAmount: 1_000,
		Authority:    authority,
	})
	if err != nil {
		return fmt.Errorf("app: demo: create market: %w", err)
	}
	a.logger.InfoContext(ctx, "market created",
		slog.Uint64("market_id", market.MarketID),
		slog.String("description", market.Description),
		slog.String("authority", string(authority)),
	)

	// The first bet goes through the same signature path the HTTP API
	// uses: the bettor signs the canonical message and the server
	// recovers their address from it.
	stakes := []struct {
		outcome bool
		amount  uint64
	}{
		{true, 40_000},
		{false, 25_000},
		{true, 10_000},
	}
	sig, err := crypto.SignMessage(bettorKeys[0], crypto.PlaceBetMessage(marketID, stakes[0].outcome, stakes[0].amount))
	if err != nil {
		return fmt.Errorf("app: demo: sign bet: %w", err)
	}
	recovered, err := crypto.RecoverPrincipal(crypto.PlaceBetMessage(marketID, stakes[0].outcome, stakes[0].amount), sig)
	if err != nil {
		return fmt.Errorf("app: demo: recover bettor: %w", err)
	}
	if recovered != bettors[0] {
		return fmt.Errorf("app: demo: recovered principal %s does not match signer %s", recovered, bettors[0])
	}

	for i, s := range stakes {
		bet, err := betSvc.Place(ctx, marketID, s.outcome, s.amount, bettors[i])
		if err != nil {
			return fmt.Errorf("app: demo: place bet for %s: %w", names[i], err)
		}
		a.logger.InfoContext(ctx, "bet placed",
			slog.String("bettor", names[i]),
			slog.String("outcome", domain.OutcomeLabel(bet.Outcome)),
			slog.Uint64("amount", bet.Amount),
		)
	}

	// Step past the deadline so the market can resolve.
	clock.now.Store(market.EndTime + 1)

	market, err = marketSvc.Resolve(ctx, marketID, true, authority)
	if err != nil {
		return fmt.Errorf("app: demo: resolve market: %w", err)
	}
	pool, err := market.TotalPool()
	if err != nil {
		return fmt.Errorf("app: demo: total pool: %w", err)
	}
	a.logger.InfoContext(ctx, "market resolved",
		slog.String("winning_outcome", domain.OutcomeLabel(true)),
		slog.Uint64("total_pool", pool),
	)

	for i := range bettors {
		winnings, err := betSvc.Claim(ctx, marketID, bettors[i])
		switch {
		case errors.Is(err, domain.ErrLosingBet):
			a.logger.InfoContext(ctx, "claim rejected",
				slog.String("bettor", names[i]),
				slog.String("reason", "losing bet"),
			)
		case err != nil:
			return fmt.Errorf("app: demo: claim for %s: %w", names[i], err)
		default:
			a.logger.InfoContext(ctx, "winnings claimed",
				slog.String("bettor", names[i]),
				slog.Uint64("winnings", winnings),
			)
		}
	}

	return deps.Store.View(ctx, func(tx domain.Tx) error {
		for i, p := range bettors {
			balance, err := tx.Ledger().Balance(ctx, domain.UserAccount(p))
			if err != nil {
				return err
			}
			a.logger.InfoContext(ctx, "final balance",
				slog.String("account", names[i]),
				slog.Uint64("balance", balance),
			)
		}
		escrow, err := tx.Ledger().Balance(ctx, domain.EscrowAccount(marketID))
		if err != nil {
			return err
		}
		a.logger.InfoContext(ctx, "final balance",
			slog.String("account", "escrow"),
			slog.Uint64("balance", escrow),
		)
		return nil
	})
}
