// Package memory implements the domain store interfaces in process. A
// single mutex serializes every Update, mirroring the per-record
// sequencing the production store gets from database transactions. Used by
// the service tests and by demo mode; not durable.
package memory

import (
	"context"
	"sort"
	"sync"

	"parimarket/internal/domain"
)

type betKey struct {
	marketID uint64
	bettor   domain.Principal
}

type account struct {
	owner   domain.Principal
	balance uint64
}

// Store holds all records in maps guarded by one mutex.
type Store struct {
	mu       sync.Mutex
	markets  map[uint64]domain.Market
	bets     map[betKey]domain.Bet
	accounts map[domain.AccountID]account
	events   []domain.Event
	verifier domain.CapabilityVerifier
}

// New creates an empty Store. The verifier gates escrow-out transfers.
func New(verifier domain.CapabilityVerifier) *Store {
	return &Store{
		markets:  make(map[uint64]domain.Market),
		bets:     make(map[betKey]domain.Bet),
		accounts: make(map[domain.AccountID]account),
		verifier: verifier,
	}
}

// Update runs fn atomically: on error every write inside is rolled back.
func (s *Store) Update(ctx context.Context, fn func(tx domain.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&tx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// View runs fn against the current state without write intent. The same
// mutex is held, so the snapshot is consistent.
func (s *Store) View(ctx context.Context, fn func(tx domain.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&tx{s: s})
}

type snapshot struct {
	markets  map[uint64]domain.Market
	bets     map[betKey]domain.Bet
	accounts map[domain.AccountID]account
	events   []domain.Event
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		markets:  make(map[uint64]domain.Market, len(s.markets)),
		bets:     make(map[betKey]domain.Bet, len(s.bets)),
		accounts: make(map[domain.AccountID]account, len(s.accounts)),
		events:   append([]domain.Event(nil), s.events...),
	}
	for k, v := range s.markets {
		snap.markets[k] = v
	}
	for k, v := range s.bets {
		snap.bets[k] = v
	}
	for k, v := range s.accounts {
		snap.accounts[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.markets = snap.markets
	s.bets = snap.bets
	s.accounts = snap.accounts
	s.events = snap.events
}

// tx exposes the sub-stores while the store mutex is held.
type tx struct {
	s *Store
}

func (t *tx) Markets() domain.MarketStore { return (*marketStore)(t) }
func (t *tx) Bets() domain.BetStore       { return (*betStore)(t) }
func (t *tx) Ledger() domain.LedgerStore  { return (*ledgerStore)(t) }
func (t *tx) Events() domain.EventStore   { return (*eventStore)(t) }

// --------------------------------------------------------------------------
// Markets
// --------------------------------------------------------------------------

type marketStore tx

func (ms *marketStore) Create(ctx context.Context, m domain.Market) error {
	if _, ok := ms.s.markets[m.MarketID]; ok {
		return domain.ErrMarketExists
	}
	ms.s.markets[m.MarketID] = m
	return nil
}

func (ms *marketStore) Get(ctx context.Context, marketID uint64) (domain.Market, error) {
	m, ok := ms.s.markets[marketID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (ms *marketStore) AddStake(ctx context.Context, marketID uint64, outcome bool, amount uint64) error {
	m, ok := ms.s.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.IsResolved {
		return domain.ErrMarketResolved
	}

	if outcome {
		total, err := domain.CheckedAdd(m.TotalYesBets, amount)
		if err != nil {
			return err
		}
		m.TotalYesBets = total
	} else {
		total, err := domain.CheckedAdd(m.TotalNoBets, amount)
		if err != nil {
			return err
		}
		m.TotalNoBets = total
	}
	ms.s.markets[marketID] = m
	return nil
}

func (ms *marketStore) SetResolved(ctx context.Context, marketID uint64, winningOutcome bool) error {
	m, ok := ms.s.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.IsResolved {
		return domain.ErrMarketResolved
	}
	m.IsResolved = true
	m.WinningOutcome = &winningOutcome
	ms.s.markets[marketID] = m
	return nil
}

func (ms *marketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets := make([]domain.Market, 0, len(ms.s.markets))
	for _, m := range ms.s.markets {
		markets = append(markets, m)
	}
	sort.Slice(markets, func(i, j int) bool {
		if markets[i].CreatedAt != markets[j].CreatedAt {
			return markets[i].CreatedAt > markets[j].CreatedAt
		}
		return markets[i].MarketID > markets[j].MarketID
	})
	return paginate(markets, opts), nil
}

func (ms *marketStore) Count(ctx context.Context) (int64, error) {
	return int64(len(ms.s.markets)), nil
}

// --------------------------------------------------------------------------
// Bets
// --------------------------------------------------------------------------

type betStore tx

func (bs *betStore) Create(ctx context.Context, b domain.Bet) error {
	key := betKey{marketID: b.MarketID, bettor: b.Bettor}
	if _, ok := bs.s.bets[key]; ok {
		return domain.ErrBetExists
	}
	bs.s.bets[key] = b
	return nil
}

func (bs *betStore) Get(ctx context.Context, marketID uint64, bettor domain.Principal) (domain.Bet, error) {
	b, ok := bs.s.bets[betKey{marketID: marketID, bettor: bettor}]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return b, nil
}

func (bs *betStore) MarkClaimed(ctx context.Context, marketID uint64, bettor domain.Principal) error {
	key := betKey{marketID: marketID, bettor: bettor}
	b, ok := bs.s.bets[key]
	if !ok {
		return domain.ErrNotFound
	}
	if b.IsClaimed {
		return domain.ErrAlreadyClaimed
	}
	b.IsClaimed = true
	bs.s.bets[key] = b
	return nil
}

func (bs *betStore) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Bet, error) {
	var bets []domain.Bet
	for key, b := range bs.s.bets {
		if key.marketID == marketID {
			bets = append(bets, b)
		}
	}
	sort.Slice(bets, func(i, j int) bool {
		if bets[i].Timestamp != bets[j].Timestamp {
			return bets[i].Timestamp < bets[j].Timestamp
		}
		return bets[i].Bettor < bets[j].Bettor
	})
	return paginate(bets, opts), nil
}

// --------------------------------------------------------------------------
// Ledger
// --------------------------------------------------------------------------

type ledgerStore tx

func (ls *ledgerStore) OpenAccount(ctx context.Context, id domain.AccountID, owner domain.Principal) error {
	if _, ok := ls.s.accounts[id]; ok {
		return domain.ErrAccountExists
	}
	ls.s.accounts[id] = account{owner: owner}
	return nil
}

func (ls *ledgerStore) Balance(ctx context.Context, id domain.AccountID) (uint64, error) {
	acct, ok := ls.s.accounts[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return acct.balance, nil
}

func (ls *ledgerStore) Deposit(ctx context.Context, id domain.AccountID, amount uint64) error {
	acct, ok := ls.s.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	balance, err := domain.CheckedAdd(acct.balance, amount)
	if err != nil {
		return err
	}
	acct.balance = balance
	ls.s.accounts[id] = acct
	return nil
}

func (ls *ledgerStore) Transfer(ctx context.Context, from, to domain.AccountID, auth domain.TransferAuthority, amount uint64) error {
	src, ok := ls.s.accounts[from]
	if !ok {
		return domain.ErrNotFound
	}
	dst, ok := ls.s.accounts[to]
	if !ok {
		return domain.ErrNotFound
	}

	if err := authorize(from, src, auth, ls.s.verifier); err != nil {
		return err
	}

	if src.balance < amount {
		return domain.ErrInsufficientFunds
	}
	credited, err := domain.CheckedAdd(dst.balance, amount)
	if err != nil {
		return err
	}

	src.balance -= amount
	dst.balance = credited
	ls.s.accounts[from] = src
	ls.s.accounts[to] = dst
	return nil
}

// authorize checks debit rights on the source account: the owner principal
// for user accounts, a valid market capability for escrow accounts.
func authorize(id domain.AccountID, acct account, auth domain.TransferAuthority, verifier domain.CapabilityVerifier) error {
	if marketID, ok := domain.EscrowMarketID(id); ok {
		if verifier == nil || !verifier.Verify(marketID, auth.Capability) {
			return domain.ErrBadCapability
		}
		return nil
	}
	if auth.Principal == "" || auth.Principal != acct.owner {
		return domain.ErrNotBettor
	}
	return nil
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

type eventStore tx

func (es *eventStore) Append(ctx context.Context, e domain.Event) error {
	es.s.events = append(es.s.events, e)
	return nil
}

func (es *eventStore) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Event, error) {
	var events []domain.Event
	for _, e := range es.s.events {
		if e.MarketID == marketID {
			events = append(events, e)
		}
	}
	return paginate(events, opts), nil
}

func (es *eventStore) ListBefore(ctx context.Context, before int64) ([]domain.Event, error) {
	var events []domain.Event
	for _, e := range es.s.events {
		if e.CreatedAt < before {
			events = append(events, e)
		}
	}
	return events, nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	offset := opts.Offset
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]

	limit := opts.Limit
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	return items[:limit]
}

// Compile-time interface check.
var _ domain.Store = (*Store)(nil)
