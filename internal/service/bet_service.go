package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"parimarket/internal/domain"
)

// lockTTL bounds how long a crashed holder can block a market's writers.
const lockTTL = 10 * time.Second

// EscrowAuthority mints the transfer authority for a market's escrow
// account. The vault implements it.
type EscrowAuthority interface {
	Capability(marketID uint64) domain.TransferAuthority
}

// BetService handles stake placement and winnings claims.
type BetService struct {
	store     domain.Store
	clock     domain.Clock
	escrow    EscrowAuthority
	locks     domain.LockManager
	publisher EventPublisher
	notifier  Notifier
	// claimAlertThreshold triggers an operator alert for payouts at or
	// above this amount. Zero disables the alert.
	claimAlertThreshold uint64
	logger              *slog.Logger
}

// NewBetService creates a BetService. Locks, publisher, and notifier may be
// nil.
func NewBetService(
	store domain.Store,
	clock domain.Clock,
	escrow EscrowAuthority,
	locks domain.LockManager,
	publisher EventPublisher,
	notifier Notifier,
	claimAlertThreshold uint64,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		store:               store,
		clock:               clock,
		escrow:              escrow,
		locks:               locks,
		publisher:           publisher,
		notifier:            notifier,
		claimAlertThreshold: claimAlertThreshold,
		logger:              logger.With(slog.String("component", "bet_service")),
	}
}

// Place performs place_bet as one atomic unit: stake moves from the
// bettor's account into the market escrow, the outcome total accumulates
// with checked addition, and the bet record is inserted. A second bet by
// the same bettor on the same market fails with ErrBetExists; the record
// key forecloses merging stakes.
func (s *BetService) Place(ctx context.Context, marketID uint64, outcome bool, amount uint64, bettor domain.Principal) (domain.Bet, error) {
	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: place bet on market %d: %w", marketID, err)
	}
	defer unlock()

	now := s.clock.Now()
	bet := domain.Bet{
		Bettor:    bettor,
		MarketID:  marketID,
		Outcome:   outcome,
		Amount:    amount,
		Timestamp: now,
	}
	event := domain.NewBetPlaced(uuid.NewString(), &bet)

	err = s.store.Update(ctx, func(tx domain.Tx) error {
		m, err := tx.Markets().Get(ctx, marketID)
		if err != nil {
			return err
		}
		if err := m.AcceptsBets(now); err != nil {
			return err
		}
		if amount < m.MinBetAmount {
			return domain.ErrBetTooSmall
		}

		auth := domain.TransferAuthority{Principal: bettor}
		if err := tx.Ledger().Transfer(ctx, domain.UserAccount(bettor), domain.EscrowAccount(marketID), auth, amount); err != nil {
			return fmt.Errorf("escrow deposit: %w", err)
		}
		if err := tx.Markets().AddStake(ctx, marketID, outcome, amount); err != nil {
			return err
		}
		if err := tx.Bets().Create(ctx, bet); err != nil {
			return err
		}
		return tx.Events().Append(ctx, event)
	})
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: place bet on market %d: %w", marketID, err)
	}

	s.publish(event)
	s.logger.InfoContext(ctx, "bet placed",
		slog.Uint64("market_id", marketID),
		slog.String("bettor", string(bettor)),
		slog.String("outcome", domain.OutcomeLabel(outcome)),
		slog.Uint64("amount", amount),
	)
	return bet, nil
}

// Claim performs claim_winnings: exactly-once payout of a winning bet's
// proportional share. The share is floor(stake * total_pool /
// winning_pool), computed with a 128-bit intermediate; the escrow account
// releases it under the market's own capability, never the bettor's
// authority. The claimed flag flips in the same transaction as the
// transfer, so a failed transfer leaves the bet claimable and a second
// claim fails with ErrAlreadyClaimed.
func (s *BetService) Claim(ctx context.Context, marketID uint64, bettor domain.Principal) (uint64, error) {
	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("bet_service: claim on market %d: %w", marketID, err)
	}
	defer unlock()

	now := s.clock.Now()

	var winnings uint64
	var event domain.Event
	err = s.store.Update(ctx, func(tx domain.Tx) error {
		m, err := tx.Markets().Get(ctx, marketID)
		if err != nil {
			return err
		}
		bet, err := tx.Bets().Get(ctx, marketID, bettor)
		if err != nil {
			return err
		}
		if err := bet.Claimable(&m, bettor); err != nil {
			return err
		}

		totalPool, err := m.TotalPool()
		if err != nil {
			return err
		}
		winnings, err = domain.Winnings(bet.Amount, m.WinningPool(), totalPool)
		if err != nil {
			return err
		}

		if err := tx.Ledger().Transfer(ctx, domain.EscrowAccount(marketID), domain.UserAccount(bettor), s.escrow.Capability(marketID), winnings); err != nil {
			return fmt.Errorf("escrow payout: %w", err)
		}
		if err := tx.Bets().MarkClaimed(ctx, marketID, bettor); err != nil {
			return err
		}

		event = domain.NewWinningsClaimed(uuid.NewString(), marketID, bettor, winnings, now)
		return tx.Events().Append(ctx, event)
	})
	if err != nil {
		return 0, fmt.Errorf("bet_service: claim on market %d: %w", marketID, err)
	}

	s.publish(event)
	s.alertLargeClaim(ctx, marketID, bettor, winnings)

	s.logger.InfoContext(ctx, "winnings claimed",
		slog.Uint64("market_id", marketID),
		slog.String("bettor", string(bettor)),
		slog.Uint64("winnings", winnings),
	)
	return winnings, nil
}

// Get returns a bettor's bet on a market.
func (s *BetService) Get(ctx context.Context, marketID uint64, bettor domain.Principal) (domain.Bet, error) {
	var bet domain.Bet
	err := s.store.View(ctx, func(tx domain.Tx) error {
		var err error
		bet, err = tx.Bets().Get(ctx, marketID, bettor)
		return err
	})
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: get bet on market %d: %w", marketID, err)
	}
	return bet, nil
}

// ListByMarket returns a market's bets in placement order.
func (s *BetService) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Bet, error) {
	var bets []domain.Bet
	err := s.store.View(ctx, func(tx domain.Tx) error {
		var err error
		bets, err = tx.Bets().ListByMarket(ctx, marketID, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bet_service: list bets on market %d: %w", marketID, err)
	}
	return bets, nil
}

// lockMarket serializes cross-process writers on one market. Without a
// lock manager the store transaction alone provides the ordering.
func (s *BetService) lockMarket(ctx context.Context, marketID uint64) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	return s.locks.Acquire(ctx, "market:"+strconv.FormatUint(marketID, 10), lockTTL)
}

func (s *BetService) publish(e domain.Event) {
	if s.publisher != nil {
		s.publisher.Publish(e)
	}
}

func (s *BetService) alertLargeClaim(ctx context.Context, marketID uint64, bettor domain.Principal, winnings uint64) {
	if s.notifier == nil || s.claimAlertThreshold == 0 || winnings < s.claimAlertThreshold {
		return
	}
	title := fmt.Sprintf("Large claim on market %d", marketID)
	msg := fmt.Sprintf("%s claimed %d", bettor, winnings)
	if err := s.notifier.Notify(ctx, string(domain.EventWinningsClaimed), title, msg); err != nil {
		s.logger.WarnContext(ctx, "claim notification failed",
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
