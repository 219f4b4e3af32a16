package domain

import "errors"

// Validation errors: the input itself is malformed.
var (
	ErrInvalidEndTime     = errors.New("end time must be in the future")
	ErrDescriptionTooLong = errors.New("description exceeds 280 characters")
	ErrInvalidMinBet      = errors.New("minimum bet amount must be positive")
	ErrBetTooSmall        = errors.New("bet amount below market minimum")
	ErrMarketMismatch     = errors.New("market id does not match record")
)

// State errors: the operation is legal, but not in this lifecycle state.
var (
	ErrMarketResolved    = errors.New("market already resolved")
	ErrMarketNotResolved = errors.New("market not resolved yet")
	ErrMarketExpired     = errors.New("market betting deadline has passed")
	ErrMarketNotExpired  = errors.New("market betting deadline not reached")
	ErrAlreadyClaimed    = errors.New("winnings already claimed")
	ErrBetExists         = errors.New("bettor already has a bet on this market")
	ErrMarketExists      = errors.New("market id already in use")
	ErrNotFound          = errors.New("not found")
)

// Authorization errors.
var (
	ErrNotAuthority = errors.New("caller is not the market authority")
	ErrNotBettor    = errors.New("caller does not own this bet")
)

// Outcome errors.
var ErrLosingBet = errors.New("bet is on the losing outcome")

// Arithmetic errors.
var (
	ErrStakeOverflow    = errors.New("stake total would overflow")
	ErrEmptyWinningPool = errors.New("winning pool is empty")
)

// Collaborator errors.
var (
	ErrInsufficientFunds = errors.New("insufficient account balance")
	ErrBadCapability     = errors.New("escrow capability rejected")
	ErrAccountExists     = errors.New("account already exists")
	ErrLockHeld          = errors.New("lock already held")
)
