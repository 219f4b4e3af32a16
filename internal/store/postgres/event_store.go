package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"parimarket/internal/domain"
)

// EventStore implements domain.EventStore as an append-only table. A
// sequence column keeps listing order stable when events share a
// timestamp.
type EventStore struct {
	q queryer
}

const eventCols = `id, event_type, market_id::text, actor, outcome,
	amount::text, description, end_time, created_at`

// Append inserts one notification record.
func (s *EventStore) Append(ctx context.Context, e domain.Event) error {
	const query = `
		INSERT INTO market_events (
			id, event_type, market_id, actor, outcome,
			amount, description, end_time, created_at
		) VALUES ($1, $2, $3::numeric, $4, $5, $6::numeric, $7, $8, $9)`

	_, err := s.q.Exec(ctx, query,
		e.ID, string(e.Type), u64str(e.MarketID), string(e.Actor), e.Outcome,
		u64str(e.Amount), e.Description, e.EndTime, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", e.ID, err)
	}
	return nil
}

func scanEvent(row pgx.Row) (domain.Event, error) {
	var e domain.Event
	var eventType, marketID, amount string
	err := row.Scan(
		&e.ID, &eventType, &marketID, (*string)(&e.Actor), &e.Outcome,
		&amount, &e.Description, &e.EndTime, &e.CreatedAt,
	)
	if err != nil {
		return domain.Event{}, err
	}
	e.Type = domain.EventType(eventType)
	if e.MarketID, err = parseU64(marketID); err != nil {
		return domain.Event{}, err
	}
	if e.Amount, err = parseU64(amount); err != nil {
		return domain.Event{}, err
	}
	return e, nil
}

// ListByMarket returns a market's events in append order.
func (s *EventStore) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT ` + eventCols + ` FROM market_events
		WHERE market_id = $1::numeric
		ORDER BY seq ASC`
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

	return s.list(ctx, query, args...)
}

// ListBefore returns events created strictly before the cutoff, oldest
// first, for archival.
func (s *EventStore) ListBefore(ctx context.Context, before int64) ([]domain.Event, error) {
	const query = `SELECT ` + eventCols + ` FROM market_events
		WHERE created_at < $1
		ORDER BY seq ASC`
	return s.list(ctx, query, before)
}

func (s *EventStore) list(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}
