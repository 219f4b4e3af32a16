package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"parimarket/internal/domain"
)

// maxU64 is the largest value a stake total may reach; the conditional
// updates refuse additions past it so NUMERIC columns cannot silently
// exceed the uint64 range the domain works in.
const maxU64 = "18446744073709551615"

// MarketStore implements domain.MarketStore.
type MarketStore struct {
	q queryer
}

const marketCols = `market_id::text, authority, description, end_time,
	min_bet_amount::text, total_yes_bets::text, total_no_bets::text,
	is_resolved, winning_outcome, created_at`

// Create inserts a new market; the primary key makes it create-or-fail.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			market_id, authority, description, end_time, min_bet_amount,
			total_yes_bets, total_no_bets, is_resolved, winning_outcome, created_at
		) VALUES (
			$1::numeric, $2, $3, $4, $5::numeric,
			$6::numeric, $7::numeric, $8, $9, $10
		)
		ON CONFLICT (market_id) DO NOTHING`

	tag, err := s.q.Exec(ctx, query,
		u64str(m.MarketID), string(m.Authority), m.Description, m.EndTime,
		u64str(m.MinBetAmount), u64str(m.TotalYesBets), u64str(m.TotalNoBets),
		m.IsResolved, m.WinningOutcome, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %d: %w", m.MarketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMarketExists
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var marketID, minBet, totalYes, totalNo string
	err := row.Scan(
		&marketID, (*string)(&m.Authority), &m.Description, &m.EndTime,
		&minBet, &totalYes, &totalNo,
		&m.IsResolved, &m.WinningOutcome, &m.CreatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	if m.MarketID, err = parseU64(marketID); err != nil {
		return domain.Market{}, err
	}
	if m.MinBetAmount, err = parseU64(minBet); err != nil {
		return domain.Market{}, err
	}
	if m.TotalYesBets, err = parseU64(totalYes); err != nil {
		return domain.Market{}, err
	}
	if m.TotalNoBets, err = parseU64(totalNo); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// Get retrieves a market by id.
func (s *MarketStore) Get(ctx context.Context, marketID uint64) (domain.Market, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE market_id = $1::numeric`,
		u64str(marketID))
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", marketID, err)
	}
	return m, nil
}

// AddStake accumulates a stake onto one outcome's total. The guard clauses
// repeat the domain invariants at the storage layer: no accumulation on a
// resolved market, no total past the uint64 cap.
func (s *MarketStore) AddStake(ctx context.Context, marketID uint64, outcome bool, amount uint64) error {
	column := "total_no_bets"
	if outcome {
		column = "total_yes_bets"
	}
	query := `
		UPDATE markets SET ` + column + ` = ` + column + ` + $2::numeric
		WHERE market_id = $1::numeric
		  AND NOT is_resolved
		  AND ` + column + ` + $2::numeric <= ` + maxU64 + `::numeric`

	tag, err := s.q.Exec(ctx, query, u64str(marketID), u64str(amount))
	if err != nil {
		return fmt.Errorf("postgres: add stake to market %d: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyStakeFailure(ctx, marketID)
	}
	return nil
}

// classifyStakeFailure distinguishes why a conditional stake update
// matched no row.
func (s *MarketStore) classifyStakeFailure(ctx context.Context, marketID uint64) error {
	m, err := s.Get(ctx, marketID)
	if err != nil {
		return err
	}
	if m.IsResolved {
		return domain.ErrMarketResolved
	}
	return domain.ErrStakeOverflow
}

// SetResolved flips the market to its terminal state, at most once.
func (s *MarketStore) SetResolved(ctx context.Context, marketID uint64, winningOutcome bool) error {
	const query = `
		UPDATE markets SET is_resolved = TRUE, winning_outcome = $2
		WHERE market_id = $1::numeric AND NOT is_resolved`

	tag, err := s.q.Exec(ctx, query, u64str(marketID), winningOutcome)
	if err != nil {
		return fmt.Errorf("postgres: resolve market %d: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, marketID); err != nil {
			return err
		}
		return domain.ErrMarketResolved
	}
	return nil
}

// List returns markets newest first with pagination.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets
		ORDER BY created_at DESC, market_id DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.q.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}
