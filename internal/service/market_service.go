// Package service implements the four market operations as atomic state
// transitions over the domain stores. Each operation validates against the
// committed record state inside one store transaction and either commits
// every effect or none.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"parimarket/internal/domain"
)

// EventPublisher receives committed events for live stream consumers. It is
// a side channel: publish failures never affect an operation's outcome.
type EventPublisher interface {
	Publish(e domain.Event)
}

// Notifier delivers operator alerts. Matches the notify package.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// CreateMarketInput carries the create_market parameters.
type CreateMarketInput struct {
	MarketID     uint64
	Description  string
	EndTime      int64
	MinBetAmount uint64
	Authority    domain.Principal
}

// MarketService handles market creation, resolution, and reads.
type MarketService struct {
	store     domain.Store
	clock     domain.Clock
	cache     domain.MarketCache
	publisher EventPublisher
	notifier  Notifier
	logger    *slog.Logger
}

// NewMarketService creates a MarketService. Cache, publisher, and notifier
// may be nil; the service degrades to store-only behavior.
func NewMarketService(
	store domain.Store,
	clock domain.Clock,
	cache domain.MarketCache,
	publisher EventPublisher,
	notifier Notifier,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		store:     store,
		clock:     clock,
		cache:     cache,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "market_service")),
	}
}

// Create performs create_market: validates the inputs, inserts the market
// record, opens its escrow account, and appends the MarketCreated event,
// all in one transaction.
func (s *MarketService) Create(ctx context.Context, in CreateMarketInput) (domain.Market, error) {
	now := s.clock.Now()
	if err := domain.ValidateCreate(in.Description, in.EndTime, in.MinBetAmount, now); err != nil {
		return domain.Market{}, err
	}

	m := domain.Market{
		Authority:    in.Authority,
		MarketID:     in.MarketID,
		Description:  in.Description,
		EndTime:      in.EndTime,
		MinBetAmount: in.MinBetAmount,
		CreatedAt:    now,
	}
	event := domain.NewMarketCreated(uuid.NewString(), &m)

	err := s.store.Update(ctx, func(tx domain.Tx) error {
		if err := tx.Markets().Create(ctx, m); err != nil {
			return err
		}
		if err := tx.Ledger().OpenAccount(ctx, domain.EscrowAccount(m.MarketID), ""); err != nil {
			return fmt.Errorf("open escrow: %w", err)
		}
		return tx.Events().Append(ctx, event)
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create market %d: %w", in.MarketID, err)
	}

	s.publish(event)
	s.logger.InfoContext(ctx, "market created",
		slog.Uint64("market_id", m.MarketID),
		slog.String("authority", string(m.Authority)),
		slog.Int64("end_time", m.EndTime),
	)
	return m, nil
}

// Resolve performs resolve_market: the single transition from open to
// resolved. Only the market authority may call it, only at or after the
// deadline, and only once.
func (s *MarketService) Resolve(ctx context.Context, marketID uint64, winningOutcome bool, caller domain.Principal) (domain.Market, error) {
	now := s.clock.Now()
	event := domain.NewMarketResolved(uuid.NewString(), marketID, winningOutcome, caller, now)

	var resolved domain.Market
	err := s.store.Update(ctx, func(tx domain.Tx) error {
		m, err := tx.Markets().Get(ctx, marketID)
		if err != nil {
			return err
		}
		if err := m.Resolvable(caller, now); err != nil {
			return err
		}
		if err := tx.Markets().SetResolved(ctx, marketID, winningOutcome); err != nil {
			return err
		}

		m.IsResolved = true
		m.WinningOutcome = &winningOutcome
		resolved = m
		return tx.Events().Append(ctx, event)
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: resolve market %d: %w", marketID, err)
	}

	// Resolved markets are immutable; prime the cache.
	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, resolved); cacheErr != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.Uint64("market_id", marketID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	s.publish(event)
	s.alertResolved(ctx, &resolved)

	s.logger.InfoContext(ctx, "market resolved",
		slog.Uint64("market_id", marketID),
		slog.String("winning_outcome", domain.OutcomeLabel(winningOutcome)),
		slog.String("resolver", string(caller)),
	)
	return resolved, nil
}

// Get retrieves a market, consulting the cache before the store.
func (s *MarketService) Get(ctx context.Context, marketID uint64) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, marketID); err == nil {
			return m, nil
		}
	}

	var m domain.Market
	err := s.store.View(ctx, func(tx domain.Tx) error {
		var err error
		m, err = tx.Markets().Get(ctx, marketID)
		return err
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %d: %w", marketID, err)
	}

	// Only resolved markets are safe to cache; open totals keep moving.
	if s.cache != nil && m.IsResolved {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.Uint64("market_id", marketID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// List returns markets, newest first.
func (s *MarketService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	var markets []domain.Market
	err := s.store.View(ctx, func(tx domain.Tx) error {
		var err error
		markets, err = tx.Markets().List(ctx, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.store.View(ctx, func(tx domain.Tx) error {
		var err error
		count, err = tx.Markets().Count(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("market_service: count markets: %w", err)
	}
	return count, nil
}

// Events returns a market's notification log.
func (s *MarketService) Events(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Event, error) {
	var events []domain.Event
	err := s.store.View(ctx, func(tx domain.Tx) error {
		var err error
		events, err = tx.Events().ListByMarket(ctx, marketID, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("market_service: list events for market %d: %w", marketID, err)
	}
	return events, nil
}

func (s *MarketService) publish(e domain.Event) {
	if s.publisher != nil {
		s.publisher.Publish(e)
	}
}

func (s *MarketService) alertResolved(ctx context.Context, m *domain.Market) {
	if s.notifier == nil {
		return
	}
	title := fmt.Sprintf("Market %d resolved: %s", m.MarketID, domain.OutcomeLabel(*m.WinningOutcome))
	msg := fmt.Sprintf("%s\nYES pool: %d, NO pool: %d", m.Description, m.TotalYesBets, m.TotalNoBets)
	if err := s.notifier.Notify(ctx, string(domain.EventMarketResolved), title, msg); err != nil {
		s.logger.WarnContext(ctx, "resolve notification failed",
			slog.Uint64("market_id", m.MarketID),
			slog.String("error", err.Error()),
		)
	}
}
