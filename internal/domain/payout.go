package domain

import "math/bits"

// CheckedAdd returns a+b, or ErrStakeOverflow if the sum does not fit in
// uint64. Stake totals must never wrap.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrStakeOverflow
	}
	return sum, nil
}

// Winnings computes a winning bet's share of the combined pool:
//
//	floor(stake * totalPool / winningPool)
//
// The multiplication runs in 128 bits so it cannot overflow for any pair of
// uint64 inputs; the division floors toward zero. The flooring remainder
// across all claimants is bounded by the number of winning bets and stays
// in escrow.
//
// An empty winning pool means no record can legitimately claim; it is
// rejected rather than divided by.
func Winnings(stake, winningPool, totalPool uint64) (uint64, error) {
	if winningPool == 0 {
		return 0, ErrEmptyWinningPool
	}

	hi, lo := bits.Mul64(stake, totalPool)
	// stake <= winningPool for any well-formed market, so the quotient fits
	// in 64 bits; the guard keeps bits.Div64 from panicking on corrupt
	// records.
	if hi >= winningPool {
		return 0, ErrStakeOverflow
	}
	quo, _ := bits.Div64(hi, lo, winningPool)
	return quo, nil
}
