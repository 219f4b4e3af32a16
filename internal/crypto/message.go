package crypto

import (
	"fmt"

	"parimarket/internal/domain"
)

// Canonical messages each operation signs. Binding the operation name
// and its parameters into the signed text keeps a signature from being
// replayed against a different operation or market.

// CreateMarketMessage is signed by the market authority.
func CreateMarketMessage(marketID uint64) []byte {
	return []byte(fmt.Sprintf("parimarket:create_market:%d", marketID))
}

// ResolveMarketMessage is signed by the market authority.
func ResolveMarketMessage(marketID uint64, winningOutcome bool) []byte {
	return []byte(fmt.Sprintf("parimarket:resolve_market:%d:%s", marketID, domain.OutcomeLabel(winningOutcome)))
}

// PlaceBetMessage is signed by the bettor.
func PlaceBetMessage(marketID uint64, outcome bool, amount uint64) []byte {
	return []byte(fmt.Sprintf("parimarket:place_bet:%d:%s:%d", marketID, domain.OutcomeLabel(outcome), amount))
}

// ClaimWinningsMessage is signed by the bettor.
func ClaimWinningsMessage(marketID uint64) []byte {
	return []byte(fmt.Sprintf("parimarket:claim_winnings:%d", marketID))
}
