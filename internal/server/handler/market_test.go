package handler

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"parimarket/internal/crypto"
	"parimarket/internal/domain"
	"parimarket/internal/service"
	"parimarket/internal/store/memory"
	"parimarket/internal/vault"
)

type testClock struct {
	now int64
}

func (c *testClock) Now() int64 { return c.now }

type apiFixture struct {
	mux   *http.ServeMux
	store *memory.Store
	clock *testClock
}

// newAPIFixture wires the real services over the in-memory store behind
// the same route patterns the server registers.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	v, err := vault.New([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	store := memory.New(v)
	clock := &testClock{now: 1_000}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	markets := service.NewMarketService(store, clock, nil, nil, nil, logger)
	bets := service.NewBetService(store, clock, v, nil, nil, nil, 0, logger)

	mh := NewMarketHandler(markets, logger)
	bh := NewBetHandler(bets, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/markets", mh.CreateMarket)
	mux.HandleFunc("GET /api/markets", mh.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", mh.GetMarket)
	mux.HandleFunc("POST /api/markets/{id}/resolve", mh.ResolveMarket)
	mux.HandleFunc("GET /api/markets/{id}/events", mh.ListEvents)
	mux.HandleFunc("POST /api/markets/{id}/bets", bh.PlaceBet)
	mux.HandleFunc("GET /api/markets/{id}/bets", bh.ListBets)
	mux.HandleFunc("GET /api/markets/{id}/bets/{bettor}", bh.GetBet)
	mux.HandleFunc("POST /api/markets/{id}/claim", bh.ClaimWinnings)

	return &apiFixture{mux: mux, store: store, clock: clock}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) fund(t *testing.T, p domain.Principal, amount uint64) {
	t.Helper()
	err := f.store.Update(context.Background(), func(tx domain.Tx) error {
		if err := tx.Ledger().OpenAccount(context.Background(), domain.UserAccount(p), p); err != nil {
			return err
		}
		return tx.Ledger().Deposit(context.Background(), domain.UserAccount(p), amount)
	})
	if err != nil {
		t.Fatalf("fund %s: %v", p, err)
	}
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func sign(t *testing.T, key *ecdsa.PrivateKey, message []byte) string {
	t.Helper()
	sig, err := crypto.SignMessage(key, message)
	if err != nil {
		t.Fatalf("sign message: %v", err)
	}
	return sig
}

func (f *apiFixture) createMarket(t *testing.T, key *ecdsa.PrivateKey, marketID uint64, endTime int64) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/markets", map[string]any{
		"market_id":      marketID,
		"description":    "Will the launch happen this quarter?",
		"end_time":       endTime,
		"min_bet_amount": 100,
		"signature":      sign(t, key, crypto.CreateMarketMessage(marketID)),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create market: status %d, body %s", rec.Code, rec.Body)
	}
}

func TestCreateMarketRecoversAuthorityFromSignature(t *testing.T) {
	f := newAPIFixture(t)
	key := newKey(t)

	f.createMarket(t, key, 1, 2_000)

	rec := f.do(t, http.MethodGet, "/api/markets/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get market: status %d", rec.Code)
	}
	var m domain.Market
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode market: %v", err)
	}
	if m.Authority != crypto.PrincipalOf(key) {
		t.Errorf("authority = %s, want signer %s", m.Authority, crypto.PrincipalOf(key))
	}
}

func TestCreateMarketRejectsBadSignature(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/markets", map[string]any{
		"market_id":      1,
		"description":    "x",
		"end_time":       2_000,
		"min_bet_amount": 100,
		"signature":      "0xdeadbeef",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSignatureDoesNotReplayAcrossMarkets(t *testing.T) {
	f := newAPIFixture(t)
	key := newKey(t)

	// A signature over market 1's create message recovers a different
	// principal when presented for market 2, so the caller cannot reuse
	// it to act as the same authority elsewhere. Creation still
	// succeeds; it just binds a principal nobody controls.
	sig := sign(t, key, crypto.CreateMarketMessage(1))
	rec := f.do(t, http.MethodPost, "/api/markets", map[string]any{
		"market_id":      2,
		"description":    "x",
		"end_time":       2_000,
		"min_bet_amount": 100,
		"signature":      sig,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rec.Code)
	}
	var m domain.Market
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode market: %v", err)
	}
	if m.Authority == crypto.PrincipalOf(key) {
		t.Error("replayed signature recovered the original signer")
	}
}

func TestResolveByNonAuthorityIsForbidden(t *testing.T) {
	f := newAPIFixture(t)
	authority := newKey(t)
	intruder := newKey(t)

	f.createMarket(t, authority, 1, 2_000)
	f.clock.now = 3_000

	rec := f.do(t, http.MethodPost, "/api/markets/1/resolve", map[string]any{
		"winning_outcome": true,
		"signature":       sign(t, intruder, crypto.ResolveMarketMessage(1, true)),
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestMarketLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	authority := newKey(t)
	winner := newKey(t)
	loser := newKey(t)
	winnerAddr := crypto.PrincipalOf(winner)
	loserAddr := crypto.PrincipalOf(loser)

	f.fund(t, winnerAddr, 10_000)
	f.fund(t, loserAddr, 10_000)
	f.createMarket(t, authority, 1, 2_000)

	// Two opposing bets.
	rec := f.do(t, http.MethodPost, "/api/markets/1/bets", map[string]any{
		"outcome":   true,
		"amount":    600,
		"signature": sign(t, winner, crypto.PlaceBetMessage(1, true, 600)),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("place winning bet: status %d, body %s", rec.Code, rec.Body)
	}
	rec = f.do(t, http.MethodPost, "/api/markets/1/bets", map[string]any{
		"outcome":   false,
		"amount":    400,
		"signature": sign(t, loser, crypto.PlaceBetMessage(1, false, 400)),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("place losing bet: status %d, body %s", rec.Code, rec.Body)
	}

	// Claiming before resolution conflicts.
	claimSig := sign(t, winner, crypto.ClaimWinningsMessage(1))
	rec = f.do(t, http.MethodPost, "/api/markets/1/claim", map[string]any{"signature": claimSig})
	if rec.Code != http.StatusConflict {
		t.Errorf("claim before resolution: status %d, want 409", rec.Code)
	}

	f.clock.now = 3_000
	rec = f.do(t, http.MethodPost, "/api/markets/1/resolve", map[string]any{
		"winning_outcome": true,
		"signature":       sign(t, authority, crypto.ResolveMarketMessage(1, true)),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: status %d, body %s", rec.Code, rec.Body)
	}

	// Winner takes the whole pool: floor(600 * 1000 / 600) = 1000.
	rec = f.do(t, http.MethodPost, "/api/markets/1/claim", map[string]any{"signature": claimSig})
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: status %d, body %s", rec.Code, rec.Body)
	}
	var claim struct {
		Bettor   domain.Principal `json:"bettor"`
		Winnings uint64           `json:"winnings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &claim); err != nil {
		t.Fatalf("decode claim: %v", err)
	}
	if claim.Bettor != winnerAddr {
		t.Errorf("claim bettor = %s, want %s", claim.Bettor, winnerAddr)
	}
	if claim.Winnings != 1_000 {
		t.Errorf("winnings = %d, want 1000", claim.Winnings)
	}

	// Exactly once.
	rec = f.do(t, http.MethodPost, "/api/markets/1/claim", map[string]any{"signature": claimSig})
	if rec.Code != http.StatusConflict {
		t.Errorf("second claim: status %d, want 409", rec.Code)
	}

	// The loser's claim conflicts too.
	rec = f.do(t, http.MethodPost, "/api/markets/1/claim", map[string]any{
		"signature": sign(t, loser, crypto.ClaimWinningsMessage(1)),
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("losing claim: status %d, want 409", rec.Code)
	}

	// The event log records the whole lifecycle.
	rec = f.do(t, http.MethodGet, "/api/markets/1/events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list events: status %d", rec.Code)
	}
	var events listEventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	types := make([]domain.EventType, len(events.Events))
	for i, e := range events.Events {
		types[i] = e.Type
	}
	want := []domain.EventType{
		domain.EventMarketCreated,
		domain.EventBetPlaced,
		domain.EventBetPlaced,
		domain.EventMarketResolved,
		domain.EventWinningsClaimed,
	}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Errorf("event types = %v, want %v", types, want)
	}

	rec = f.do(t, http.MethodGet, "/api/markets/1/bets/"+string(winnerAddr), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get bet: status %d", rec.Code)
	}
}

func TestListMarketsReturnsEmptyArray(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/markets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp listMarketsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Markets == nil || len(resp.Markets) != 0 {
		t.Errorf("markets = %v, want empty non-nil slice", resp.Markets)
	}
	if resp.Total != 0 {
		t.Errorf("total = %d, want 0", resp.Total)
	}
}

func TestMarketIDParamValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/markets/not-a-number", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
