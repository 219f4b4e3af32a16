package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"parimarket/internal/domain"
)

// BetStore implements domain.BetStore. Bets are keyed by (market_id,
// bettor); the composite primary key is what makes a second bet by the
// same bettor a structural failure rather than a merge.
type BetStore struct {
	q queryer
}

const betCols = `market_id::text, bettor, outcome, amount::text, placed_at, is_claimed`

// Create inserts a new bet, failing on key collision.
func (s *BetStore) Create(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (market_id, bettor, outcome, amount, placed_at, is_claimed)
		VALUES ($1::numeric, $2, $3, $4::numeric, $5, $6)
		ON CONFLICT (market_id, bettor) DO NOTHING`

	tag, err := s.q.Exec(ctx, query,
		u64str(b.MarketID), string(b.Bettor), b.Outcome,
		u64str(b.Amount), b.Timestamp, b.IsClaimed,
	)
	if err != nil {
		return fmt.Errorf("postgres: create bet on market %d: %w", b.MarketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBetExists
	}
	return nil
}

func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var marketID, amount string
	err := row.Scan(&marketID, (*string)(&b.Bettor), &b.Outcome, &amount, &b.Timestamp, &b.IsClaimed)
	if err != nil {
		return domain.Bet{}, err
	}
	if b.MarketID, err = parseU64(marketID); err != nil {
		return domain.Bet{}, err
	}
	if b.Amount, err = parseU64(amount); err != nil {
		return domain.Bet{}, err
	}
	return b, nil
}

// Get retrieves a bettor's bet on a market.
func (s *BetStore) Get(ctx context.Context, marketID uint64, bettor domain.Principal) (domain.Bet, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+betCols+` FROM bets WHERE market_id = $1::numeric AND bettor = $2`,
		u64str(marketID), string(bettor))
	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet on market %d: %w", marketID, err)
	}
	return b, nil
}

// MarkClaimed flips is_claimed exactly once.
func (s *BetStore) MarkClaimed(ctx context.Context, marketID uint64, bettor domain.Principal) error {
	const query = `
		UPDATE bets SET is_claimed = TRUE
		WHERE market_id = $1::numeric AND bettor = $2 AND NOT is_claimed`

	tag, err := s.q.Exec(ctx, query, u64str(marketID), string(bettor))
	if err != nil {
		return fmt.Errorf("postgres: mark bet claimed on market %d: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, marketID, bettor); err != nil {
			return err
		}
		return domain.ErrAlreadyClaimed
	}
	return nil
}

// ListByMarket returns a market's bets in placement order.
func (s *BetStore) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets
		WHERE market_id = $1::numeric
		ORDER BY placed_at ASC, bettor ASC`
	args := []any{u64str(marketID)}
	argIdx := 2

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
		return nil, fmt.Errorf("postgres: list bets on market %d: %w", marketID, err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets rows: %w", err)
	}
	return bets, nil
}
