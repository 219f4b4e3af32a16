package domain

// EventType identifies one of the four notification records the core emits.
type EventType string

const (
	EventMarketCreated   EventType = "market_created"
	EventBetPlaced       EventType = "bet_placed"
	EventMarketResolved  EventType = "market_resolved"
	EventWinningsClaimed EventType = "winnings_claimed"
)

// Event is one append-only notification record. Events are a side channel
// for off-core indexers and stream consumers; correctness never depends on
// them being read.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	MarketID    uint64    `json:"market_id"`
	Actor       Principal `json:"actor"`
	Outcome     *bool     `json:"outcome,omitempty"`
	Amount      uint64    `json:"amount,omitempty"`
	Description string    `json:"description,omitempty"`
	EndTime     int64     `json:"end_time,omitempty"`
	CreatedAt   int64     `json:"created_at"`
}

// NewMarketCreated builds the MarketCreated event for a freshly created
// market. The caller assigns the event ID.
func NewMarketCreated(id string, m *Market) Event {
	return Event{
		ID:          id,
		Type:        EventMarketCreated,
		MarketID:    m.MarketID,
		Actor:       m.Authority,
		Description: m.Description,
		EndTime:     m.EndTime,
		CreatedAt:   m.CreatedAt,
	}
}

// NewBetPlaced builds the BetPlaced event for an accepted stake.
func NewBetPlaced(id string, b *Bet) Event {
	outcome := b.Outcome
	return Event{
		ID:        id,
		Type:      EventBetPlaced,
		MarketID:  b.MarketID,
		Actor:     b.Bettor,
		Outcome:   &outcome,
		Amount:    b.Amount,
		CreatedAt: b.Timestamp,
	}
}

// NewMarketResolved builds the MarketResolved event.
func NewMarketResolved(id string, marketID uint64, winningOutcome bool, resolver Principal, at int64) Event {
	return Event{
		ID:        id,
		Type:      EventMarketResolved,
		MarketID:  marketID,
		Actor:     resolver,
		Outcome:   &winningOutcome,
		CreatedAt: at,
	}
}

// NewWinningsClaimed builds the WinningsClaimed event for a paid-out bet.
func NewWinningsClaimed(id string, marketID uint64, bettor Principal, winnings uint64, at int64) Event {
	return Event{
		ID:        id,
		Type:      EventWinningsClaimed,
		MarketID:  marketID,
		Actor:     bettor,
		Amount:    winnings,
		CreatedAt: at,
	}
}
