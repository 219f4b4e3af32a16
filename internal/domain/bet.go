package domain

// Bet is one participant's stake on one outcome of one market. A bettor
// holds at most one bet per market; the (MarketID, Bettor) pair is the
// storage key and a second insert fails with ErrBetExists.
type Bet struct {
	Bettor    Principal
	MarketID  uint64
	Outcome   bool
	Amount    uint64
	Timestamp int64
	IsClaimed bool
}

// Claimable reports whether this bet can be paid out of the given market
// to the given caller. The market must already be resolved.
func (b *Bet) Claimable(m *Market, caller Principal) error {
	if !m.IsResolved || m.WinningOutcome == nil {
		return ErrMarketNotResolved
	}
	if b.MarketID != m.MarketID {
		return ErrMarketMismatch
	}
	if b.Bettor != caller {
		return ErrNotBettor
	}
	if b.IsClaimed {
		return ErrAlreadyClaimed
	}
	if b.Outcome != *m.WinningOutcome {
		return ErrLosingBet
	}
	return nil
}
