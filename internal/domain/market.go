// Package domain defines the records, collaborator interfaces, and error
// taxonomy for the binary-outcome pooled betting market. All value amounts
// are unsigned 64-bit token units; all timestamps are Unix seconds.
package domain

// Principal is a verified caller identity. The core treats it as an opaque
// comparable value; the server layer derives it from a request signature.
type Principal string

// Outcome labels for the two sides of a market, used in logs and the API.
const (
	OutcomeYes = "YES"
	OutcomeNo  = "NO"
)

// OutcomeLabel renders a boolean outcome as YES/NO.
func OutcomeLabel(outcome bool) string {
	if outcome {
		return OutcomeYes
	}
	return OutcomeNo
}

// MaxDescriptionLen is the longest accepted market question, in bytes.
const MaxDescriptionLen = 280

// Market is the root record for one yes/no prediction question. Stake
// totals only grow, only while the market is open; WinningOutcome is nil
// exactly until resolution and set exactly once.
type Market struct {
	Authority      Principal
	MarketID       uint64
	Description    string
	EndTime        int64
	MinBetAmount   uint64
	TotalYesBets   uint64
	TotalNoBets    uint64
	IsResolved     bool
	WinningOutcome *bool
	CreatedAt      int64
}

// AcceptsBets reports whether the market can take a new stake at the given
// time. Betting closes strictly at the deadline.
func (m *Market) AcceptsBets(now int64) error {
	if m.IsResolved {
		return ErrMarketResolved
	}
	if now >= m.EndTime {
		return ErrMarketExpired
	}
	return nil
}

// Resolvable reports whether the market can be resolved by caller at the
// given time. Resolution opens at the deadline, inclusive.
func (m *Market) Resolvable(caller Principal, now int64) error {
	if caller != m.Authority {
		return ErrNotAuthority
	}
	if m.IsResolved {
		return ErrMarketResolved
	}
	if now < m.EndTime {
		return ErrMarketNotExpired
	}
	return nil
}

// TotalPool returns the combined stake on both outcomes. The stake totals
// are maintained with checked addition, so their sum fits in uint64 only if
// every accepted bet did; an overflowing sum reports ErrStakeOverflow.
func (m *Market) TotalPool() (uint64, error) {
	return CheckedAdd(m.TotalYesBets, m.TotalNoBets)
}

// WinningPool returns the stake total on the resolved winning side. It is
// only meaningful once the market is resolved.
func (m *Market) WinningPool() uint64 {
	if m.WinningOutcome != nil && *m.WinningOutcome {
		return m.TotalYesBets
	}
	return m.TotalNoBets
}

// ValidateCreate checks the create_market inputs against the current time.
func ValidateCreate(description string, endTime int64, minBetAmount uint64, now int64) error {
	if endTime <= now {
		return ErrInvalidEndTime
	}
	if len(description) > MaxDescriptionLen {
		return ErrDescriptionTooLong
	}
	if minBetAmount == 0 {
		return ErrInvalidMinBet
	}
	return nil
}
